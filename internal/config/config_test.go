package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_MergesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
mode = "once"
log_level = "debug"

[engine]
fast_interval = "10s"
parallelism = 8

[monitor]
review_loss_pct = -15.0

[feed]
symbols = ["BTC/USDT", "ETH/USDT"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "once", cfg.Mode)
	assert.Equal(t, 10*time.Second, cfg.Engine.FastInterval.Duration)
	assert.Equal(t, 8, cfg.Engine.Parallelism)
	assert.Equal(t, -15.0, cfg.Monitor.ReviewLossPct)
	assert.Equal(t, []string{"BTC/USDT", "ETH/USDT"}, cfg.Feed.Symbols)

	// Untouched sections keep their defaults.
	assert.Equal(t, 1000, cfg.Risk.VaRTrials)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoad_EnvOverridesWin(t *testing.T) {
	path := writeConfig(t, `
[postgres]
password = "from-file"

[engine]
fast_interval = "30s"
`)

	t.Setenv("RISKBOT_POSTGRES_PASSWORD", "from-env")
	t.Setenv("RISKBOT_ENGINE_FAST_INTERVAL", "5s")
	t.Setenv("RISKBOT_EXCHANGE_PAPER", "false")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Postgres.Password)
	assert.Equal(t, 5*time.Second, cfg.Engine.FastInterval.Duration)
	assert.False(t, cfg.Exchange.Paper)
}

func TestValidate_DefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	assert.NoError(t, cfg.Validate())
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "bogus"
	cfg.Monitor.ReviewLossPct = 5 // must be negative
	cfg.Rebalance.Threshold = 2   // must be < 1
	cfg.Redis.Addr = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "review_loss_pct")
	assert.Contains(t, err.Error(), "rebalance: threshold")
	assert.Contains(t, err.Error(), "redis: addr")
}

func TestValidate_TrailingTierOrdering(t *testing.T) {
	cfg := Defaults()
	cfg.Monitor.Tier2GainPct = cfg.Monitor.Tier1GainPct // tiers collapsed

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trailing tiers")
}

func TestValidate_S3OnlyCheckedWhenEnabled(t *testing.T) {
	cfg := Defaults()
	cfg.S3.Enabled = false
	cfg.S3.Bucket = ""
	assert.NoError(t, cfg.Validate())

	cfg.S3.Enabled = true
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3: bucket")
}

func TestValidate_ImportKeysModeRequiresCredentials(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "import-keys"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "keys: master_password")
	assert.Contains(t, err.Error(), "keys: user_id")
	assert.Contains(t, err.Error(), "keys: api_key")

	cfg.Keys.MasterPassword = "master"
	cfg.Keys.UserID = "u-1"
	cfg.Keys.APIKey = "k"
	cfg.Keys.APISecret = "s"
	assert.NoError(t, cfg.Validate())
}

func TestRedactedConfig_HidesSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "hunter2"
	cfg.Notify.TelegramToken = "123:abc"
	cfg.Keys.MasterPassword = "master"
	cfg.Keys.APISecret = "sekrit"

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Notify.TelegramToken)
	assert.Equal(t, "***", red.Keys.MasterPassword)
	assert.Equal(t, "***", red.Keys.APISecret)

	// Original is untouched.
	assert.Equal(t, "hunter2", cfg.Postgres.Password)

	// Mutating the copy's slices must not leak back.
	red.Notify.Events[0] = "mutated"
	assert.NotEqual(t, "mutated", cfg.Notify.Events[0])
}
