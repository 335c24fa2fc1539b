package broker

import (
	"errors"
	"fmt"
)

// ErrUnavailable marks a transient broker failure: connection loss, timeout,
// or any condition where the call may succeed if retried. It is distinct from
// a business-level rejection, which is returned as a normal OrderResult.
var ErrUnavailable = errors.New("broker unavailable")

// ConnectError is fatal for the run — no symbol can proceed without a broker
// session.
type ConnectError struct {
	Broker string
	Err    error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connecting to %s: %v", e.Broker, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// ---------------------------------------------------------------------------
// Broker return codes
// ---------------------------------------------------------------------------

// Return codes carried on OrderResult. The numbering follows HTTP status
// conventions so the Alpaca gateway can map API responses directly; the
// simulator uses the same codes so both gateways share one taxonomy.
const (
	CodeOK          = 0
	CodeTimeout     = 408
	CodeRequote     = 409
	CodeInvalid     = 422
	CodeRateLimited = 429
	CodeUnavailable = 503

	// Business-level terminal rejections.
	CodeInsufficientMargin = 460
	CodeInvalidStops       = 461
	CodeMarketClosed       = 462
)

// TransientCode reports whether a broker return code may clear on retry.
// Terminal rejections (insufficient margin, invalid stops, market closed,
// malformed requests) must never be retried blindly.
func TransientCode(code int) bool {
	switch code {
	case CodeTimeout, CodeRequote, CodeRateLimited, CodeUnavailable:
		return true
	}
	return false
}
