// Package config loads and validates the engine configuration from a YAML
// file with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for a trading engine run.
type Config struct {
	Broker  Broker  `yaml:"broker"`
	Trading Trading `yaml:"trading"`
	Risk    Risk    `yaml:"risk"`
	Retry   Retry   `yaml:"retry"`
	Storage Storage `yaml:"storage"`
	Monitor Monitor `yaml:"monitor"`
	Logging Logging `yaml:"logging"`
}

// Broker selects and configures the broker gateway.
type Broker struct {
	Kind      string `yaml:"kind"` // "alpaca" or "simulator"
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`

	// CallTimeoutSec bounds every broker I/O call. A call that exceeds it is
	// treated as unavailable and handed to the retry policy.
	CallTimeoutSec int `yaml:"call_timeout_sec"`

	// DataRateLimitPerMin paces market-data fetches.
	DataRateLimitPerMin int `yaml:"data_rate_limit_per_min"`
}

// Trading defines what the engine trades and how often.
type Trading struct {
	Symbols        []string `yaml:"symbols"`
	Timeframe      string   `yaml:"timeframe"` // e.g. "1Min", "5Min", "1Day"
	IntervalSec    int      `yaml:"interval_sec"`
	BarCount       int      `yaml:"bar_count"` // bars fetched per cycle
	DryRun         bool     `yaml:"dry_run"`
	Tag            string   `yaml:"tag"` // order tag identifying this instance
	Strategy       string   `yaml:"strategy"`
	KillSwitchPath string   `yaml:"kill_switch_path"`
}

// Risk holds the limits enforced by the risk manager.
type Risk struct {
	DefaultRiskPct  float64 `yaml:"default_risk_pct"`  // fraction of equity risked per trade
	StopDistancePct float64 `yaml:"stop_distance_pct"` // assumed stop distance as fraction of price
	MaxPositionSize float64 `yaml:"max_position_size"`
	MaxDailyTrades  int     `yaml:"max_daily_trades"`
	MaxDailyLossPct float64 `yaml:"max_daily_loss_pct"`
	LotStep         float64 `yaml:"lot_step"`
}

// Retry configures the order executor's submission retry policy.
type Retry struct {
	MaxAttempts  int     `yaml:"max_attempts"`
	BaseDelaySec float64 `yaml:"base_delay_sec"`
	MaxDelaySec  float64 `yaml:"max_delay_sec"`
}

// Storage holds paths for the audit database and bar archive.
type Storage struct {
	AuditDBPath string `yaml:"audit_db_path"`
	ArchiveDir  string `yaml:"archive_dir"`
}

// Monitor configures the read-only dashboard server.
type Monitor struct {
	Addr string `yaml:"addr"`
}

// Logging configures the application logger.
type Logging struct {
	Level string `yaml:"level"`
}

// ---------------------------------------------------------------------------
// Derived accessors
// ---------------------------------------------------------------------------

// Interval returns the cycle interval as a duration.
func (t Trading) Interval() time.Duration {
	return time.Duration(t.IntervalSec) * time.Second
}

// CallTimeout returns the per-call broker timeout as a duration.
func (b Broker) CallTimeout() time.Duration {
	return time.Duration(b.CallTimeoutSec) * time.Second
}

// BaseDelay returns the retry base delay as a duration.
func (r Retry) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelaySec * float64(time.Second))
}

// MaxDelay returns the retry backoff cap as a duration.
func (r Retry) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelaySec * float64(time.Second))
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, applies
// environment variable overrides, fills defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BROKER_KIND"); v != "" {
		cfg.Broker.Kind = v
	}
	if v := os.Getenv("AUDIT_DB_PATH"); v != "" {
		cfg.Storage.AuditDBPath = v
	}
	if v := os.Getenv("ARCHIVE_DIR"); v != "" {
		cfg.Storage.ArchiveDir = v
	}
	if v := os.Getenv("KILL_SWITCH_PATH"); v != "" {
		cfg.Trading.KillSwitchPath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DRY_RUN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Trading.DryRun = b
		}
	}

	// Standard Alpaca env vars (canonical names used by the SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Broker.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Broker.APISecret = v
	}
	if v := os.Getenv("APCA_API_BASE_URL"); v != "" {
		cfg.Broker.BaseURL = v
	}
}

// applyDefaults fills zero-value fields with safe defaults.
func applyDefaults(cfg *Config) {
	if cfg.Broker.Kind == "" {
		cfg.Broker.Kind = "simulator"
	}
	if cfg.Broker.CallTimeoutSec == 0 {
		cfg.Broker.CallTimeoutSec = 10
	}
	if cfg.Broker.DataRateLimitPerMin == 0 {
		cfg.Broker.DataRateLimitPerMin = 200
	}
	if cfg.Trading.Timeframe == "" {
		cfg.Trading.Timeframe = "1Min"
	}
	if cfg.Trading.IntervalSec == 0 {
		cfg.Trading.IntervalSec = 60
	}
	if cfg.Trading.BarCount == 0 {
		cfg.Trading.BarCount = 100
	}
	if cfg.Trading.Tag == "" {
		cfg.Trading.Tag = "algoagent"
	}
	if cfg.Trading.Strategy == "" {
		cfg.Trading.Strategy = "sma-cross"
	}
	if cfg.Risk.DefaultRiskPct == 0 {
		cfg.Risk.DefaultRiskPct = 0.005
	}
	if cfg.Risk.StopDistancePct == 0 {
		cfg.Risk.StopDistancePct = 0.01
	}
	if cfg.Risk.MaxPositionSize == 0 {
		cfg.Risk.MaxPositionSize = 100
	}
	if cfg.Risk.MaxDailyTrades == 0 {
		cfg.Risk.MaxDailyTrades = 20
	}
	if cfg.Risk.MaxDailyLossPct == 0 {
		cfg.Risk.MaxDailyLossPct = 0.02
	}
	if cfg.Risk.LotStep == 0 {
		cfg.Risk.LotStep = 0.01
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.BaseDelaySec == 0 {
		cfg.Retry.BaseDelaySec = 1
	}
	if cfg.Retry.MaxDelaySec == 0 {
		cfg.Retry.MaxDelaySec = 30
	}
	if cfg.Storage.AuditDBPath == "" {
		cfg.Storage.AuditDBPath = "data/audit.db"
	}
	if cfg.Monitor.Addr == "" {
		cfg.Monitor.Addr = "127.0.0.1:8090"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// Validate reports configuration errors that would make a run meaningless.
func (c *Config) Validate() error {
	if len(c.Trading.Symbols) == 0 {
		return fmt.Errorf("config: trading.symbols must not be empty")
	}
	if c.Broker.Kind != "alpaca" && c.Broker.Kind != "simulator" {
		return fmt.Errorf("config: unknown broker.kind %q", c.Broker.Kind)
	}
	if c.Broker.Kind == "alpaca" && !c.Trading.DryRun {
		if c.Broker.APIKey == "" || c.Broker.APISecret == "" {
			return fmt.Errorf("config: alpaca credentials required for live trading")
		}
	}
	if c.Risk.DefaultRiskPct < 0 || c.Risk.DefaultRiskPct > 1 {
		return fmt.Errorf("config: risk.default_risk_pct out of range: %v", c.Risk.DefaultRiskPct)
	}
	if c.Risk.MaxDailyLossPct < 0 || c.Risk.MaxDailyLossPct > 1 {
		return fmt.Errorf("config: risk.max_daily_loss_pct out of range: %v", c.Risk.MaxDailyLossPct)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("config: retry.max_attempts must be >= 1")
	}
	return nil
}
