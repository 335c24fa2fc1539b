package broker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"

	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/domain"
	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/util"
)

// Compile-time interface check.
var _ Gateway = (*AlpacaGateway)(nil)

// AlpacaGateway implements the Gateway contract against the Alpaca brokerage
// API. Submissions are serialized on a mutex so concurrent symbol pipelines
// never interleave calls on the shared session; data fetches are paced by a
// rate limiter but may run concurrently.
type AlpacaGateway struct {
	trading *alpaca.Client
	data    *marketdata.Client
	limiter *util.RateLimiter

	submitMu  sync.Mutex
	accountID string
}

// NewAlpacaGateway creates a gateway for the given credentials. callTimeout
// bounds every HTTP call; a call that exceeds it surfaces as ErrUnavailable.
func NewAlpacaGateway(apiKey, apiSecret, baseURL, dataURL string, callTimeout time.Duration, dataRatePerMin int) *AlpacaGateway {
	httpClient := &http.Client{Timeout: callTimeout}

	tradingOpts := alpaca.ClientOpts{
		APIKey:     apiKey,
		APISecret:  apiSecret,
		HTTPClient: httpClient,
	}
	if baseURL != "" {
		tradingOpts.BaseURL = baseURL
	}

	dataOpts := marketdata.ClientOpts{
		APIKey:     apiKey,
		APISecret:  apiSecret,
		HTTPClient: httpClient,
	}
	if dataURL != "" {
		dataOpts.BaseURL = dataURL
	}

	return &AlpacaGateway{
		trading: alpaca.NewClient(tradingOpts),
		data:    marketdata.NewClient(dataOpts),
		limiter: util.NewRateLimiter(dataRatePerMin),
	}
}

// Name returns "alpaca".
func (g *AlpacaGateway) Name() string { return "alpaca" }

// Connect verifies the session by fetching the account once.
func (g *AlpacaGateway) Connect(ctx context.Context) (*SessionInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, &ConnectError{Broker: "alpaca", Err: err}
	}
	acct, err := g.trading.GetAccount()
	if err != nil {
		return nil, &ConnectError{Broker: "alpaca", Err: err}
	}
	g.accountID = acct.ID
	return &SessionInfo{
		Broker:      "alpaca",
		AccountID:   acct.ID,
		ConnectedAt: time.Now(),
	}, nil
}

// Disconnect is a no-op: the Alpaca API is stateless HTTP.
func (g *AlpacaGateway) Disconnect() {}

// FetchBars returns the count most recent bars for the symbol.
func (g *AlpacaGateway) FetchBars(ctx context.Context, symbol, timeframe string, count int) ([]domain.Bar, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	tf, err := parseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}

	// Look back far enough to cover count bars over weekends and halts.
	start := time.Now().Add(-barLookback(tf, count))

	bars, err := g.data.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame:  tf,
		Start:      start,
		TotalLimit: count,
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars %s: %w", symbol, asUnavailable(err))
	}

	out := make([]domain.Bar, 0, len(bars))
	for _, ab := range bars {
		out = append(out, domain.Bar{
			Symbol:    strings.ToUpper(symbol),
			Timestamp: ab.Timestamp,
			Open:      ab.Open,
			High:      ab.High,
			Low:       ab.Low,
			Close:     ab.Close,
			Volume:    int64(ab.Volume),
		})
	}
	return out, nil
}

// FetchPositions returns the broker's open positions.
func (g *AlpacaGateway) FetchPositions(ctx context.Context) ([]domain.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	positions, err := g.trading.GetPositions()
	if err != nil {
		return nil, fmt.Errorf("GetPositions: %w", asUnavailable(err))
	}

	out := make([]domain.Position, 0, len(positions))
	for _, p := range positions {
		out = append(out, domain.Position{
			Symbol:        p.Symbol,
			Qty:           p.Qty.InexactFloat64(),
			AvgEntryPrice: p.AvgEntryPrice.InexactFloat64(),
		})
	}
	return out, nil
}

// AccountState returns a snapshot of the account's financial metrics. The
// daily counters are filled in by the engine, not the broker.
func (g *AlpacaGateway) AccountState(ctx context.Context) (*domain.AccountState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	acct, err := g.trading.GetAccount()
	if err != nil {
		return nil, fmt.Errorf("GetAccount: %w", asUnavailable(err))
	}
	return &domain.AccountState{
		Balance:    acct.Cash.InexactFloat64(),
		Equity:     acct.Equity.InexactFloat64(),
		MarginFree: acct.BuyingPower.InexactFloat64(),
		AsOf:       time.Now(),
	}, nil
}

// SubmitOrder sends one submission attempt. API errors are classified into
// the shared return-code taxonomy and come back as OrderResult statuses, so
// the caller never sees an error for a business rejection.
func (g *AlpacaGateway) SubmitOrder(ctx context.Context, req domain.OrderRequest) domain.OrderResult {
	g.submitMu.Lock()
	defer g.submitMu.Unlock()

	now := time.Now()
	if err := ctx.Err(); err != nil {
		return domain.OrderResult{
			CorrelationID: req.CorrelationID,
			Symbol:        req.Symbol,
			Status:        domain.OrderStatusUnreachable,
			Code:          CodeUnavailable,
			Message:       err.Error(),
			Timestamp:     now,
		}
	}

	qty := decimal.NewFromFloat(req.Qty)
	placeReq := alpaca.PlaceOrderRequest{
		Symbol:      req.Symbol,
		Qty:         &qty,
		Side:        alpacaSide(req.Side),
		Type:        alpacaType(req.Kind),
		TimeInForce: alpaca.Day,
		// Reusing the correlation id across retries lets Alpaca's duplicate
		// detection reject a resubmission whose prior attempt actually landed.
		ClientOrderID: req.CorrelationID,
	}
	if req.Kind == domain.OrderKindLimit {
		price := decimal.NewFromFloat(req.Price)
		placeReq.LimitPrice = &price
	}
	if req.Kind == domain.OrderKindStop {
		price := decimal.NewFromFloat(req.Price)
		placeReq.StopPrice = &price
	}

	order, err := g.trading.PlaceOrder(placeReq)
	if err != nil {
		status, code, msg := classifySubmitError(err)
		return domain.OrderResult{
			CorrelationID: req.CorrelationID,
			Symbol:        req.Symbol,
			Status:        status,
			Code:          code,
			Message:       msg,
			Timestamp:     now,
		}
	}

	res := domain.OrderResult{
		CorrelationID: req.CorrelationID,
		Symbol:        req.Symbol,
		Status:        alpacaStatus(string(order.Status)),
		BrokerOrderID: order.ID,
		FilledQty:     order.FilledQty.InexactFloat64(),
		Code:          CodeOK,
		Timestamp:     now,
	}
	if order.FilledAvgPrice != nil {
		res.FilledPrice = order.FilledAvgPrice.InexactFloat64()
	}
	return res
}

// CancelOrder requests cancellation of an open order.
func (g *AlpacaGateway) CancelOrder(ctx context.Context, brokerOrderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := g.trading.CancelOrder(brokerOrderID); err != nil {
		return fmt.Errorf("CancelOrder %s: %w", brokerOrderID, asUnavailable(err))
	}
	return nil
}

// ---------------------------------------------------------------------------
// Mapping helpers
// ---------------------------------------------------------------------------

func alpacaSide(s domain.Side) alpaca.Side {
	if s == domain.SideSell {
		return alpaca.Sell
	}
	return alpaca.Buy
}

func alpacaType(k domain.OrderKind) alpaca.OrderType {
	switch k {
	case domain.OrderKindLimit:
		return alpaca.Limit
	case domain.OrderKindStop:
		return alpaca.Stop
	}
	return alpaca.Market
}

func alpacaStatus(s string) domain.OrderStatus {
	switch s {
	case "filled":
		return domain.OrderStatusFilled
	case "partially_filled":
		return domain.OrderStatusPartial
	case "rejected", "canceled", "expired":
		return domain.OrderStatusRejected
	}
	return domain.OrderStatusAccepted
}

// classifySubmitError maps an Alpaca API error into the shared taxonomy:
// transport-level failures become broker-unreachable (retryable), HTTP 4xx
// business responses become terminal rejections with a specific code.
func classifySubmitError(err error) (domain.OrderStatus, int, string) {
	var apiErr *alpaca.APIError
	if !errors.As(err, &apiErr) {
		// Network failure or client timeout.
		return domain.OrderStatusUnreachable, CodeUnavailable, err.Error()
	}

	msg := apiErr.Message
	lower := strings.ToLower(msg)

	switch {
	case apiErr.StatusCode == http.StatusRequestTimeout:
		return domain.OrderStatusUnreachable, CodeTimeout, msg
	case apiErr.StatusCode == http.StatusTooManyRequests:
		return domain.OrderStatusUnreachable, CodeRateLimited, msg
	case apiErr.StatusCode >= 500:
		return domain.OrderStatusUnreachable, CodeUnavailable, msg
	case strings.Contains(lower, "insufficient") || strings.Contains(lower, "buying power"):
		return domain.OrderStatusRejected, CodeInsufficientMargin, msg
	case strings.Contains(lower, "market") && strings.Contains(lower, "closed"):
		return domain.OrderStatusRejected, CodeMarketClosed, msg
	case strings.Contains(lower, "stop"):
		return domain.OrderStatusRejected, CodeInvalidStops, msg
	default:
		return domain.OrderStatusRejected, CodeInvalid, msg
	}
}

// asUnavailable wraps transport-level failures as ErrUnavailable so callers
// can apply the retry policy, while 4xx API responses pass through.
func asUnavailable(err error) error {
	var apiErr *alpaca.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode < 500 &&
		apiErr.StatusCode != http.StatusRequestTimeout &&
		apiErr.StatusCode != http.StatusTooManyRequests {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func parseTimeframe(s string) (marketdata.TimeFrame, error) {
	switch s {
	case "1Min":
		return marketdata.OneMin, nil
	case "5Min":
		return marketdata.NewTimeFrame(5, marketdata.Min), nil
	case "15Min":
		return marketdata.NewTimeFrame(15, marketdata.Min), nil
	case "30Min":
		return marketdata.NewTimeFrame(30, marketdata.Min), nil
	case "1Hour":
		return marketdata.NewTimeFrame(1, marketdata.Hour), nil
	case "1Day":
		return marketdata.OneDay, nil
	}
	return marketdata.TimeFrame{}, fmt.Errorf("unsupported timeframe %q", s)
}

// barLookback returns how far back to request data to reliably cover count
// bars, padding for weekends and market closures.
func barLookback(tf marketdata.TimeFrame, count int) time.Duration {
	var per time.Duration
	switch tf.Unit {
	case marketdata.Day:
		per = 24 * time.Hour
	case marketdata.Hour:
		per = time.Hour
	default:
		per = time.Minute
	}
	return time.Duration(tf.N) * per * time.Duration(count) * 4
}
