package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/audit"
	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/broker"
	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/config"
	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/engine"
	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/killswitch"
	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/monitor"
	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/strategy"
	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/strategy/builtins"
	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/util"
)

func main() {
	// Local .env is optional; real deployments set the environment directly.
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
	logger.Info("algoagent-trader starting",
		"broker", cfg.Broker.Kind,
		"symbols", cfg.Trading.Symbols,
		"dry_run", cfg.Trading.DryRun)

	sqlStore, err := audit.NewSQLiteStore(cfg.Storage.AuditDBPath)
	if err != nil {
		log.Fatalf("failed to open audit store: %v", err)
	}
	defer sqlStore.Close()

	var archive *audit.BarArchive
	if cfg.Storage.ArchiveDir != "" {
		archive = audit.NewBarArchive(cfg.Storage.ArchiveDir)
	}

	var gw broker.Gateway
	switch cfg.Broker.Kind {
	case "alpaca":
		gw = broker.NewAlpacaGateway(
			cfg.Broker.APIKey, cfg.Broker.APISecret,
			cfg.Broker.BaseURL, cfg.Broker.DataURL,
			cfg.Broker.CallTimeout(), cfg.Broker.DataRateLimitPerMin)
	default:
		gw = broker.NewSimulatorGateway(100_000)
	}

	registry := strategy.NewRegistry()
	registry.Register(builtins.NewSMACross(10, 30, 10))
	strat, ok := registry.Get(cfg.Trading.Strategy)
	if !ok {
		log.Fatalf("unknown strategy %q (have %v)", cfg.Trading.Strategy, registry.List())
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	hub := monitor.NewHub(logger)
	go hub.Run(ctx)
	store := monitor.NewStreamingStore(sqlStore, hub)

	kill := killswitch.NewFileMonitor(cfg.Trading.KillSwitchPath)
	eng := engine.New(cfg, gw, strat, store, archive, kill, logger)

	srv := monitor.NewServer(eng, store, hub, logger)
	go func() {
		if err := srv.ListenAndServe(ctx, cfg.Monitor.Addr); err != nil {
			logger.Error("monitor server stopped", "error", err)
		}
	}()

	if err := eng.Run(ctx); err != nil {
		log.Fatalf("engine error: %v", err)
	}
}
