// Package monitor serves the engine's state for read-only external
// consumption: account, positions, and recent audit records over JSON,
// live events over WebSocket, and Prometheus metrics. It accepts no
// control commands; the kill switch is the only inbound channel.
package monitor

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/audit"
	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/domain"
	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/engine"
)

// Snapshotter is the read-only view of a running engine.
type Snapshotter interface {
	State() engine.State
	Account() domain.AccountState
	Positions() []domain.Position
}

var _ Snapshotter = (*engine.Engine)(nil)

// Server is the monitoring HTTP server.
type Server struct {
	snap  Snapshotter
	store audit.Store
	hub   *Hub
	log   *slog.Logger
}

// NewServer creates a monitor Server. hub may be nil to disable the
// WebSocket stream.
func NewServer(snap Snapshotter, store audit.Store, hub *Hub, log *slog.Logger) *Server {
	return &Server{snap: snap, store: store, hub: hub, log: log}
}

// StatusResponse is the /api/v1/status payload.
type StatusResponse struct {
	State     engine.State `json:"state"`
	Positions int          `json:"positions"`
	AsOf      time.Time    `json:"as_of"`
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/account", s.handleAccount)
	mux.HandleFunc("GET /api/v1/positions", s.handlePositions)
	mux.HandleFunc("GET /api/v1/events", s.handleEvents)
	mux.HandleFunc("GET /api/v1/orders", s.handleOrders)
	mux.HandleFunc("GET /api/v1/signals", s.handleSignals)
	mux.Handle("GET /metrics", promhttp.Handler())
	if s.hub != nil {
		mux.HandleFunc("GET /ws", s.hub.HandleWebSocket)
	}
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

// ListenAndServe runs the server until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Info("monitor listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errc:
		return err
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, StatusResponse{
		State:     s.snap.State(),
		Positions: len(s.snap.Positions()),
		AsOf:      s.snap.Account().AsOf,
	})
}

func (s *Server) handleAccount(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.snap.Account())
}

func (s *Server) handlePositions(w http.ResponseWriter, _ *http.Request) {
	positions := s.snap.Positions()
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, positions)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	category := domain.Category(r.URL.Query().Get("category"))
	events, err := s.store.RecentEvents(r.Context(), category, parseLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read events")
		return
	}
	if events == nil {
		events = []domain.AuditEvent{}
	}
	writeJSON(w, events)
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	results, err := s.store.RecentOrderResults(r.Context(), r.URL.Query().Get("symbol"), parseLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read order results")
		return
	}
	if results == nil {
		results = []domain.OrderResult{}
	}
	writeJSON(w, results)
}

func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	signals, err := s.store.RecentSignals(r.Context(), r.URL.Query().Get("symbol"), parseLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read signals")
		return
	}
	if signals == nil {
		signals = []domain.Signal{}
	}
	writeJSON(w, signals)
}

// parseLimit extracts the "limit" query param, defaulting to 50.
func parseLimit(r *http.Request) int {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return 50
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 || n > 1000 {
		return 50
	}
	return n
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
