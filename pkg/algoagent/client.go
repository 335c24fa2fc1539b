// Package algoagent provides a Go client for the engine's monitoring API.
// The API is read-only: the engine accepts no control commands over HTTP.
package algoagent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client talks to an algoagent monitor server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the monitor API at baseURL,
// e.g. "http://127.0.0.1:8090".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Status is the engine's run-level state.
type Status struct {
	State     string    `json:"state"`
	Positions int       `json:"positions"`
	AsOf      time.Time `json:"as_of"`
}

// Account mirrors the engine's account snapshot.
type Account struct {
	Balance          float64   `json:"balance"`
	Equity           float64   `json:"equity"`
	MarginFree       float64   `json:"margin_free"`
	DailyTrades      int       `json:"daily_trades"`
	DailyRealizedPnL float64   `json:"daily_realized_pnl"`
	AsOf             time.Time `json:"as_of"`
}

// Position is one open position.
type Position struct {
	Symbol        string    `json:"symbol"`
	Qty           float64   `json:"qty"`
	AvgEntryPrice float64   `json:"avg_entry_price"`
	OpenedAt      time.Time `json:"opened_at"`
	Tag           string    `json:"tag"`
}

// OrderResult is one recorded submission attempt.
type OrderResult struct {
	CorrelationID string    `json:"correlation_id"`
	Symbol        string    `json:"symbol"`
	Status        string    `json:"status"`
	BrokerOrderID string    `json:"broker_order_id,omitempty"`
	FilledQty     float64   `json:"filled_qty"`
	FilledPrice   float64   `json:"filled_price"`
	Code          int       `json:"code"`
	Message       string    `json:"message,omitempty"`
	Attempt       int       `json:"attempt"`
	Timestamp     time.Time `json:"timestamp"`
}

// Signal is one recorded strategy signal.
type Signal struct {
	ID         string    `json:"id"`
	StrategyID string    `json:"strategy_id"`
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	Action     string    `json:"action"`
	Kind       string    `json:"kind"`
	Qty        float64   `json:"qty"`
	Price      float64   `json:"price,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Event is one recorded operational event.
type Event struct {
	ID        string            `json:"id"`
	Severity  string            `json:"severity"`
	Category  string            `json:"category"`
	Type      string            `json:"type"`
	Symbol    string            `json:"symbol,omitempty"`
	Message   string            `json:"message"`
	Payload   map[string]string `json:"payload,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// GetStatus retrieves the engine's current state.
func (c *Client) GetStatus(ctx context.Context) (*Status, error) {
	var out Status
	if err := c.get(ctx, "/api/v1/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetAccount retrieves the latest account snapshot.
func (c *Client) GetAccount(ctx context.Context) (*Account, error) {
	var out Account
	if err := c.get(ctx, "/api/v1/account", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetPositions retrieves the engine's open positions.
func (c *Client) GetPositions(ctx context.Context) ([]Position, error) {
	var out []Position
	if err := c.get(ctx, "/api/v1/positions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetEvents retrieves recent audit events, newest first. category may be
// empty to match all.
func (c *Client) GetEvents(ctx context.Context, category string, limit int) ([]Event, error) {
	q := url.Values{}
	if category != "" {
		q.Set("category", category)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []Event
	if err := c.get(ctx, "/api/v1/events", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetOrders retrieves recent order results, newest first. symbol may be
// empty to match all.
func (c *Client) GetOrders(ctx context.Context, symbol string, limit int) ([]OrderResult, error) {
	q := url.Values{}
	if symbol != "" {
		q.Set("symbol", symbol)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []OrderResult
	if err := c.get(ctx, "/api/v1/orders", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSignals retrieves recent signals, newest first. symbol may be empty
// to match all.
func (c *Client) GetSignals(ctx context.Context, symbol string, limit int) ([]Signal, error) {
	q := url.Values{}
	if symbol != "" {
		q.Set("symbol", symbol)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []Signal
	if err := c.get(ctx, "/api/v1/signals", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
