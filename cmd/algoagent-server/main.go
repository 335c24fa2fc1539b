// algoagent-server serves the audit history of past runs read-only: recent
// events, order results, and signals from the audit database, without a
// live engine attached.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/audit"
	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/config"
	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/domain"
	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/engine"
	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/monitor"
	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/util"
)

// offlineSnapshot is the Snapshotter for a server with no running engine.
type offlineSnapshot struct{}

func (offlineSnapshot) State() engine.State          { return engine.StateStopped }
func (offlineSnapshot) Account() domain.AccountState { return domain.AccountState{} }
func (offlineSnapshot) Positions() []domain.Position { return nil }

func main() {
	_ = godotenv.Load()

	cfgPath := "config/algoagent.yaml"
	if p := os.Getenv("ALGOAGENT_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level)
	util.SetDefault(logger)
	logger.Info("algoagent-server starting", "addr", cfg.Monitor.Addr)

	store, err := audit.NewSQLiteStore(cfg.Storage.AuditDBPath)
	if err != nil {
		log.Fatalf("failed to open audit store: %v", err)
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := monitor.NewServer(offlineSnapshot{}, store, nil, logger)
	if err := srv.ListenAndServe(ctx, cfg.Monitor.Addr); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
