// Package config defines the top-level configuration for the risk engine and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by RISKBOT_* environment variables.
type Config struct {
	Engine    EngineConfig    `toml:"engine"`
	Monitor   MonitorConfig   `toml:"monitor"`
	Risk      RiskConfig      `toml:"risk"`
	Rebalance RebalanceConfig `toml:"rebalance"`
	Executor  ExecutorConfig  `toml:"executor"`
	Exchange  ExchangeConfig  `toml:"exchange"`
	Feed      FeedConfig      `toml:"feed"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Notify    NotifyConfig    `toml:"notify"`
	Keys      KeysConfig      `toml:"keys"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// EngineConfig holds evaluation loop parameters.
type EngineConfig struct {
	FastInterval         duration          `toml:"fast_interval"`
	PortfolioInterval    duration          `toml:"portfolio_interval"`
	ArchiveInterval      duration          `toml:"archive_interval"`
	TrackerSweepInterval duration          `toml:"tracker_sweep_interval"`
	LockTTL              duration          `toml:"lock_ttl"`
	Parallelism          int               `toml:"parallelism"`
	Sectors              map[string]string `toml:"sectors"`
}

// MonitorConfig holds the position monitoring rules.
type MonitorConfig struct {
	Tier1GainPct        float64 `toml:"tier1_gain_pct"`
	Tier1LockPct        float64 `toml:"tier1_lock_pct"`
	Tier2GainPct        float64 `toml:"tier2_gain_pct"`
	Tier2LockPct        float64 `toml:"tier2_lock_pct"`
	ReviewLossPct       float64 `toml:"review_loss_pct"`
	PartialExitFraction float64 `toml:"partial_exit_fraction"`
}

// RiskConfig holds portfolio assessment thresholds and VaR simulation
// parameters.
type RiskConfig struct {
	MaxPortfolioRisk       float64            `toml:"max_portfolio_risk"`
	MaxSectorConcentration float64            `toml:"max_sector_concentration"`
	SinglePositionWarnPct  float64            `toml:"single_position_warn_pct"`
	VaRTrials              int                `toml:"var_trials"`
	VaRConfidence          float64            `toml:"var_confidence"`
	DefaultVolatility      float64            `toml:"default_volatility"`
	AssetVolatility        map[string]float64 `toml:"asset_volatility"`
}

// RebalanceConfig holds rebalancing planner parameters.
type RebalanceConfig struct {
	Threshold   float64 `toml:"threshold"`
	MinNotional float64 `toml:"min_notional"`
}

// ExecutorConfig holds order execution parameters.
type ExecutorConfig struct {
	Workers        int      `toml:"workers"`
	MaxAttempts    int      `toml:"max_attempts"`
	BaseDelay      duration `toml:"base_delay"`
	GatewayTimeout duration `toml:"gateway_timeout"`
	TrackerTTL     duration `toml:"tracker_ttl"`
}

// ExchangeConfig holds gateway parameters. Paper mode fills orders in-process
// against the price cache and requires no credentials.
type ExchangeConfig struct {
	Venue           string   `toml:"venue"`
	Paper           bool     `toml:"paper"`
	SlippageBps     float64  `toml:"slippage_bps"`
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// FeedConfig holds market data feed parameters.
type FeedConfig struct {
	WsURL    string   `toml:"ws_url"`
	Symbols  []string `toml:"symbols"`
	MaxAge   duration `toml:"max_age"`
	Internal bool     `toml:"internal"` // skip the websocket feed, rely on external cache writers
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for snapshot
// archival.
type S3Config struct {
	Enabled          bool   `toml:"enabled"`
	Endpoint         string `toml:"endpoint"`
	Region           string `toml:"region"`
	Bucket           string `toml:"bucket"`
	AccessKey        string `toml:"access_key"`
	SecretKey        string `toml:"secret_key"`
	UseSSL           bool   `toml:"use_ssl"`
	ForcePathStyle   bool   `toml:"force_path_style"`
	RetentionDays    int    `toml:"retention_days"`
	ArchiveBatchSize int    `toml:"archive_batch_size"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	Cooldown          duration `toml:"cooldown"`
}

// KeysConfig holds the master password for encrypted exchange credentials and
// the credentials imported by the import-keys mode. UserID selects whose
// stored credentials the gateway signs requests with; APIKey and APISecret
// are only read during import and should come from the environment, not the
// TOML file.
type KeysConfig struct {
	MasterPassword string `toml:"master_password"`
	UserID         string `toml:"user_id"`
	APIKey         string `toml:"api_key"`
	APISecret      string `toml:"api_secret"`
}

// MetricsConfig holds the Prometheus metrics listener settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			FastInterval:         duration{30 * time.Second},
			PortfolioInterval:    duration{5 * time.Minute},
			ArchiveInterval:      duration{24 * time.Hour},
			TrackerSweepInterval: duration{time.Minute},
			LockTTL:              duration{30 * time.Second},
			Parallelism:          4,
			Sectors:              map[string]string{},
		},
		Monitor: MonitorConfig{
			Tier1GainPct:        10,
			Tier1LockPct:        2,
			Tier2GainPct:        20,
			Tier2LockPct:        10,
			ReviewLossPct:       -10,
			PartialExitFraction: 0,
		},
		Risk: RiskConfig{
			MaxPortfolioRisk:       10,
			MaxSectorConcentration: 30,
			SinglePositionWarnPct:  15,
			VaRTrials:              1000,
			VaRConfidence:          0.95,
			DefaultVolatility:      0.02,
			AssetVolatility:        map[string]float64{},
		},
		Rebalance: RebalanceConfig{
			Threshold:   0.05,
			MinNotional: 10,
		},
		Executor: ExecutorConfig{
			Workers:        4,
			MaxAttempts:    3,
			BaseDelay:      duration{500 * time.Millisecond},
			GatewayTimeout: duration{10 * time.Second},
			TrackerTTL:     duration{10 * time.Minute},
		},
		Exchange: ExchangeConfig{
			Venue:           "paper",
			Paper:           true,
			SlippageBps:     5,
			RateLimit:       10,
			RateLimitWindow: duration{time.Second},
		},
		Feed: FeedConfig{
			WsURL:   "wss://stream.binance.com:9443/ws",
			Symbols: []string{},
			MaxAge:  duration{2 * time.Minute},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "riskbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:          false,
			Endpoint:         "http://localhost:9000",
			Region:           "us-east-1",
			Bucket:           "riskbot-data",
			UseSSL:           false,
			ForcePathStyle:   true,
			RetentionDays:    90,
			ArchiveBatchSize: 5000,
		},
		Notify: NotifyConfig{
			Events: []string{
				"stop_loss_triggered", "take_profit", "execution_failed",
				"position_review", "risk_warning", "rebalance",
			},
			Cooldown: duration{15 * time.Minute},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
		},
		Mode:     "run",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"run":         true,
	"once":        true,
	"assess":      true,
	"import-keys": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: run, once, assess, import-keys)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Engine
	if c.Engine.FastInterval.Duration <= 0 {
		errs = append(errs, "engine: fast_interval must be > 0")
	}
	if c.Engine.PortfolioInterval.Duration <= 0 {
		errs = append(errs, "engine: portfolio_interval must be > 0")
	}
	if c.Engine.Parallelism < 1 {
		errs = append(errs, "engine: parallelism must be >= 1")
	}
	if c.Engine.LockTTL.Duration <= 0 {
		errs = append(errs, "engine: lock_ttl must be > 0")
	}

	// Monitor
	if c.Monitor.Tier1GainPct <= 0 || c.Monitor.Tier2GainPct <= c.Monitor.Tier1GainPct {
		errs = append(errs, "monitor: trailing tiers must satisfy 0 < tier1_gain_pct < tier2_gain_pct")
	}
	if c.Monitor.ReviewLossPct >= 0 {
		errs = append(errs, "monitor: review_loss_pct must be negative")
	}
	if c.Monitor.PartialExitFraction < 0 || c.Monitor.PartialExitFraction >= 1 {
		errs = append(errs, "monitor: partial_exit_fraction must be in [0, 1)")
	}

	// Risk
	if c.Risk.VaRTrials < 1 {
		errs = append(errs, "risk: var_trials must be >= 1")
	}
	if c.Risk.VaRConfidence <= 0 || c.Risk.VaRConfidence >= 1 {
		errs = append(errs, "risk: var_confidence must be in (0, 1)")
	}
	if c.Risk.DefaultVolatility <= 0 {
		errs = append(errs, "risk: default_volatility must be > 0")
	}

	// Rebalance
	if c.Rebalance.Threshold <= 0 || c.Rebalance.Threshold >= 1 {
		errs = append(errs, "rebalance: threshold must be in (0, 1)")
	}
	if c.Rebalance.MinNotional < 0 {
		errs = append(errs, "rebalance: min_notional must be >= 0")
	}

	// Executor
	if c.Executor.Workers < 1 {
		errs = append(errs, "executor: workers must be >= 1")
	}
	if c.Executor.MaxAttempts < 1 {
		errs = append(errs, "executor: max_attempts must be >= 1")
	}
	if c.Executor.GatewayTimeout.Duration <= 0 {
		errs = append(errs, "executor: gateway_timeout must be > 0")
	}
	if c.Executor.TrackerTTL.Duration <= 0 {
		errs = append(errs, "executor: tracker_ttl must be > 0")
	}

	// Exchange
	if c.Exchange.Venue == "" {
		errs = append(errs, "exchange: venue must not be empty")
	}
	if !c.Exchange.Paper {
		errs = append(errs, "exchange: only paper mode is supported; set exchange.paper = true")
	}

	// Feed
	if !c.Feed.Internal && c.Feed.WsURL == "" {
		errs = append(errs, "feed: ws_url must not be empty (or set feed.internal = true)")
	}
	if c.Feed.MaxAge.Duration <= 0 {
		errs = append(errs, "feed: max_age must be > 0")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 settings are only checked when archival is enabled.
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.RetentionDays < 1 {
			errs = append(errs, "s3: retention_days must be >= 1")
		}
	}

	// Metrics
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, "metrics: addr must not be empty when enabled")
	}

	// Importing credentials needs everything the vault writes with.
	if strings.ToLower(c.Mode) == "import-keys" {
		if c.Keys.MasterPassword == "" {
			errs = append(errs, "keys: master_password is required for import-keys mode")
		}
		if c.Keys.UserID == "" {
			errs = append(errs, "keys: user_id is required for import-keys mode")
		}
		if c.Keys.APIKey == "" || c.Keys.APISecret == "" {
			errs = append(errs, "keys: api_key and api_secret are required for import-keys mode")
		}
	}

	// Telegram chat ID and token go together.
	tt := c.Notify.TelegramToken != ""
	tc := c.Notify.TelegramChatID != ""
	if tt != tc {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
