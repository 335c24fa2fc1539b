package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/domain"
)

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store backed by a SQLite database in WAL mode.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS signals (
	id          TEXT NOT NULL,
	strategy_id TEXT NOT NULL,
	symbol      TEXT NOT NULL,
	side        TEXT NOT NULL,
	action      TEXT NOT NULL,
	kind        TEXT NOT NULL,
	qty         REAL NOT NULL,
	price       REAL NOT NULL,
	created_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_signals_symbol_time ON signals(symbol, created_at);

CREATE TABLE IF NOT EXISTS order_results (
	correlation_id  TEXT NOT NULL,
	symbol          TEXT NOT NULL,
	status          TEXT NOT NULL,
	broker_order_id TEXT NOT NULL DEFAULT '',
	filled_qty      REAL NOT NULL,
	filled_price    REAL NOT NULL,
	code            INTEGER NOT NULL,
	message         TEXT NOT NULL DEFAULT '',
	attempt         INTEGER NOT NULL,
	ts              TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_order_results_symbol_time ON order_results(symbol, ts);

CREATE TABLE IF NOT EXISTS events (
	id       TEXT NOT NULL,
	severity TEXT NOT NULL,
	category TEXT NOT NULL,
	type     TEXT NOT NULL,
	symbol   TEXT NOT NULL DEFAULT '',
	message  TEXT NOT NULL,
	payload  TEXT NOT NULL DEFAULT '',
	ts       TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_category_time ON events(category, ts);
`

// NewSQLiteStore opens (or creates) the audit database at dbPath and applies
// the schema. The schema is insert-only; nothing in this package issues
// UPDATE or DELETE.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// Appends
// ---------------------------------------------------------------------------

// AppendSignal inserts a signal record.
func (s *SQLiteStore) AppendSignal(ctx context.Context, sig domain.Signal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO signals (id, strategy_id, symbol, side, action, kind, qty, price, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sig.ID, sig.StrategyID, sig.Symbol, string(sig.Side), string(sig.Action),
		string(sig.Kind), sig.Qty, sig.Price, sig.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("appending signal %s: %w", sig.ID, err)
	}
	return nil
}

// AppendOrderResult inserts an order result record.
func (s *SQLiteStore) AppendOrderResult(ctx context.Context, res domain.OrderResult) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO order_results (correlation_id, symbol, status, broker_order_id,
			filled_qty, filled_price, code, message, attempt, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.CorrelationID, res.Symbol, string(res.Status), res.BrokerOrderID,
		res.FilledQty, res.FilledPrice, res.Code, res.Message, res.Attempt,
		res.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("appending order result %s: %w", res.CorrelationID, err)
	}
	return nil
}

// AppendEvent inserts an event record. The payload map is stored as JSON.
func (s *SQLiteStore) AppendEvent(ctx context.Context, ev domain.AuditEvent) error {
	payload := ""
	if len(ev.Payload) > 0 {
		b, err := json.Marshal(ev.Payload)
		if err != nil {
			return fmt.Errorf("encoding event payload: %w", err)
		}
		payload = string(b)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (id, severity, category, type, symbol, message, payload, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, string(ev.Severity), string(ev.Category), ev.Type, ev.Symbol,
		ev.Message, payload, ev.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("appending event %s: %w", ev.ID, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

// RecentEvents returns the most recent events, newest first.
func (s *SQLiteStore) RecentEvents(ctx context.Context, category domain.Category, limit int) ([]domain.AuditEvent, error) {
	query := `SELECT id, severity, category, type, symbol, message, payload, ts
		FROM events`
	args := []any{}
	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, string(category))
	}
	query += ` ORDER BY ts DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.AuditEvent
	for rows.Next() {
		var ev domain.AuditEvent
		var severity, cat, payload string
		var ts time.Time
		if err := rows.Scan(&ev.ID, &severity, &cat, &ev.Type, &ev.Symbol,
			&ev.Message, &payload, &ts); err != nil {
			return nil, err
		}
		ev.Severity = domain.Severity(severity)
		ev.Category = domain.Category(cat)
		ev.Timestamp = ts
		if payload != "" {
			if err := json.Unmarshal([]byte(payload), &ev.Payload); err != nil {
				return nil, fmt.Errorf("decoding payload of event %s: %w", ev.ID, err)
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// RecentOrderResults returns the most recent order results, newest first.
func (s *SQLiteStore) RecentOrderResults(ctx context.Context, symbol string, limit int) ([]domain.OrderResult, error) {
	query := `SELECT correlation_id, symbol, status, broker_order_id,
		filled_qty, filled_price, code, message, attempt, ts
		FROM order_results`
	args := []any{}
	if symbol != "" {
		query += ` WHERE symbol = ?`
		args = append(args, symbol)
	}
	query += ` ORDER BY ts DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.OrderResult
	for rows.Next() {
		var res domain.OrderResult
		var status string
		var ts time.Time
		if err := rows.Scan(&res.CorrelationID, &res.Symbol, &status,
			&res.BrokerOrderID, &res.FilledQty, &res.FilledPrice, &res.Code,
			&res.Message, &res.Attempt, &ts); err != nil {
			return nil, err
		}
		res.Status = domain.OrderStatus(status)
		res.Timestamp = ts
		results = append(results, res)
	}
	return results, rows.Err()
}

// RecentSignals returns the most recent signals, newest first.
func (s *SQLiteStore) RecentSignals(ctx context.Context, symbol string, limit int) ([]domain.Signal, error) {
	query := `SELECT id, strategy_id, symbol, side, action, kind, qty, price, created_at
		FROM signals`
	args := []any{}
	if symbol != "" {
		query += ` WHERE symbol = ?`
		args = append(args, symbol)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var signals []domain.Signal
	for rows.Next() {
		var sig domain.Signal
		var side, action, kind string
		var ts time.Time
		if err := rows.Scan(&sig.ID, &sig.StrategyID, &sig.Symbol, &side,
			&action, &kind, &sig.Qty, &sig.Price, &ts); err != nil {
			return nil, err
		}
		sig.Side = domain.Side(side)
		sig.Action = domain.Action(action)
		sig.Kind = domain.OrderKind(kind)
		sig.CreatedAt = ts
		signals = append(signals, sig)
	}
	return signals, rows.Err()
}
