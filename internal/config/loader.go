package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies RISKBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known RISKBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// --- Engine ---
	setDuration(&cfg.Engine.FastInterval, "RISKBOT_ENGINE_FAST_INTERVAL")
	setDuration(&cfg.Engine.PortfolioInterval, "RISKBOT_ENGINE_PORTFOLIO_INTERVAL")
	setDuration(&cfg.Engine.ArchiveInterval, "RISKBOT_ENGINE_ARCHIVE_INTERVAL")
	setDuration(&cfg.Engine.TrackerSweepInterval, "RISKBOT_ENGINE_TRACKER_SWEEP_INTERVAL")
	setDuration(&cfg.Engine.LockTTL, "RISKBOT_ENGINE_LOCK_TTL")
	setInt(&cfg.Engine.Parallelism, "RISKBOT_ENGINE_PARALLELISM")

	// --- Monitor ---
	setFloat64(&cfg.Monitor.Tier1GainPct, "RISKBOT_MONITOR_TIER1_GAIN_PCT")
	setFloat64(&cfg.Monitor.Tier1LockPct, "RISKBOT_MONITOR_TIER1_LOCK_PCT")
	setFloat64(&cfg.Monitor.Tier2GainPct, "RISKBOT_MONITOR_TIER2_GAIN_PCT")
	setFloat64(&cfg.Monitor.Tier2LockPct, "RISKBOT_MONITOR_TIER2_LOCK_PCT")
	setFloat64(&cfg.Monitor.ReviewLossPct, "RISKBOT_MONITOR_REVIEW_LOSS_PCT")
	setFloat64(&cfg.Monitor.PartialExitFraction, "RISKBOT_MONITOR_PARTIAL_EXIT_FRACTION")

	// --- Risk ---
	setFloat64(&cfg.Risk.MaxPortfolioRisk, "RISKBOT_RISK_MAX_PORTFOLIO_RISK")
	setFloat64(&cfg.Risk.MaxSectorConcentration, "RISKBOT_RISK_MAX_SECTOR_CONCENTRATION")
	setFloat64(&cfg.Risk.SinglePositionWarnPct, "RISKBOT_RISK_SINGLE_POSITION_WARN_PCT")
	setInt(&cfg.Risk.VaRTrials, "RISKBOT_RISK_VAR_TRIALS")
	setFloat64(&cfg.Risk.VaRConfidence, "RISKBOT_RISK_VAR_CONFIDENCE")
	setFloat64(&cfg.Risk.DefaultVolatility, "RISKBOT_RISK_DEFAULT_VOLATILITY")

	// --- Rebalance ---
	setFloat64(&cfg.Rebalance.Threshold, "RISKBOT_REBALANCE_THRESHOLD")
	setFloat64(&cfg.Rebalance.MinNotional, "RISKBOT_REBALANCE_MIN_NOTIONAL")

	// --- Executor ---
	setInt(&cfg.Executor.Workers, "RISKBOT_EXECUTOR_WORKERS")
	setInt(&cfg.Executor.MaxAttempts, "RISKBOT_EXECUTOR_MAX_ATTEMPTS")
	setDuration(&cfg.Executor.BaseDelay, "RISKBOT_EXECUTOR_BASE_DELAY")
	setDuration(&cfg.Executor.GatewayTimeout, "RISKBOT_EXECUTOR_GATEWAY_TIMEOUT")
	setDuration(&cfg.Executor.TrackerTTL, "RISKBOT_EXECUTOR_TRACKER_TTL")

	// --- Exchange ---
	setStr(&cfg.Exchange.Venue, "RISKBOT_EXCHANGE_VENUE")
	setBool(&cfg.Exchange.Paper, "RISKBOT_EXCHANGE_PAPER")
	setFloat64(&cfg.Exchange.SlippageBps, "RISKBOT_EXCHANGE_SLIPPAGE_BPS")
	setInt(&cfg.Exchange.RateLimit, "RISKBOT_EXCHANGE_RATE_LIMIT")
	setDuration(&cfg.Exchange.RateLimitWindow, "RISKBOT_EXCHANGE_RATE_LIMIT_WINDOW")

	// --- Feed ---
	setStr(&cfg.Feed.WsURL, "RISKBOT_FEED_WS_URL")
	setStringSlice(&cfg.Feed.Symbols, "RISKBOT_FEED_SYMBOLS")
	setDuration(&cfg.Feed.MaxAge, "RISKBOT_FEED_MAX_AGE")
	setBool(&cfg.Feed.Internal, "RISKBOT_FEED_INTERNAL")

	// --- Postgres ---
	setStr(&cfg.Postgres.DSN, "RISKBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "RISKBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "RISKBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "RISKBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "RISKBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "RISKBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "RISKBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "RISKBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "RISKBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "RISKBOT_POSTGRES_RUN_MIGRATIONS")

	// --- Redis ---
	setStr(&cfg.Redis.Addr, "RISKBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "RISKBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "RISKBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "RISKBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "RISKBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "RISKBOT_REDIS_TLS_ENABLED")

	// --- S3 ---
	setBool(&cfg.S3.Enabled, "RISKBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "RISKBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "RISKBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "RISKBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "RISKBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "RISKBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "RISKBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "RISKBOT_S3_FORCE_PATH_STYLE")
	setInt(&cfg.S3.RetentionDays, "RISKBOT_S3_RETENTION_DAYS")
	setInt(&cfg.S3.ArchiveBatchSize, "RISKBOT_S3_ARCHIVE_BATCH_SIZE")

	// --- Notify ---
	setStr(&cfg.Notify.TelegramToken, "RISKBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "RISKBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "RISKBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "RISKBOT_NOTIFY_EVENTS")
	setDuration(&cfg.Notify.Cooldown, "RISKBOT_NOTIFY_COOLDOWN")

	// --- Keys ---
	setStr(&cfg.Keys.MasterPassword, "RISKBOT_KEYS_MASTER_PASSWORD")
	setStr(&cfg.Keys.UserID, "RISKBOT_KEYS_USER_ID")
	setStr(&cfg.Keys.APIKey, "RISKBOT_KEYS_API_KEY")
	setStr(&cfg.Keys.APISecret, "RISKBOT_KEYS_API_SECRET")

	// --- Metrics ---
	setBool(&cfg.Metrics.Enabled, "RISKBOT_METRICS_ENABLED")
	setStr(&cfg.Metrics.Addr, "RISKBOT_METRICS_ADDR")

	// --- Top-level ---
	setStr(&cfg.Mode, "RISKBOT_MODE")
	setStr(&cfg.LogLevel, "RISKBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
