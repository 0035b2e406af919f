package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValidInDryRun(t *testing.T) {
	cfg := Defaults()
	cfg.Trading.DryRun = true

	require.NoError(t, cfg.Validate())
}

func TestValidateRequiresWalletForLiveTrading(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Trading.DryRun = false

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "private_key or encrypted_key_path")
}

func TestValidateSkipsWalletInMonitorMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "monitor"

	require.NoError(t, cfg.Validate())
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "monitor"
	cfg.Trading.CostCeiling = 1.5
	cfg.Trading.OrderSize = 0
	cfg.Trading.PollInterval = duration{5 * time.Second}
	cfg.Trading.PollTimeout = duration{1 * time.Second}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cost_ceiling")
	assert.Contains(t, err.Error(), "order_size")
	assert.Contains(t, err.Error(), "poll_interval must be shorter")
}

func TestValidateBackendSectionsOnlyWhenEnabled(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "monitor"

	// Disabled backends may be empty.
	cfg.Postgres = PostgresConfig{Enabled: false}
	cfg.Redis = RedisConfig{Enabled: false}
	cfg.S3 = S3Config{Enabled: false}
	require.NoError(t, cfg.Validate())

	cfg.Redis.Enabled = true
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis: addr")
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	data := `
mode = "monitor"
log_level = "debug"

[market]
slug_stem = "eth-updown-15m"
min_time_left = "45s"

[trading]
cost_ceiling = 0.97
order_size = 25
cooldown = "5s"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	t.Setenv("UPDOWN_TRADING_ORDER_SIZE", "100")
	t.Setenv("UPDOWN_MARKET_SLUG_STEM", "sol-updown-15m")

	cfg, err := Load(path)
	require.NoError(t, err)

	// File values on top of defaults.
	assert.Equal(t, "monitor", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 0.97, cfg.Trading.CostCeiling)
	assert.Equal(t, 45*time.Second, cfg.Market.MinTimeLeft.Duration)
	assert.Equal(t, 5*time.Second, cfg.Trading.Cooldown.Duration)

	// Env overrides win over the file.
	assert.Equal(t, 100.0, cfg.Trading.OrderSize)
	assert.Equal(t, "sol-updown-15m", cfg.Market.SlugStem)

	// Untouched defaults survive the merge.
	assert.Equal(t, "https://clob.polymarket.com", cfg.Polymarket.ClobHost)
	assert.Equal(t, 137, cfg.Polymarket.ChainID)
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "0xdeadbeef"
	cfg.Postgres.Password = "hunter2"
	cfg.Redis.Password = "hunter2"
	cfg.S3.SecretKey = "supersecret"
	cfg.Notify.TelegramToken = "123:abc"

	red := RedactedConfig(&cfg)

	assert.Equal(t, "***", red.Wallet.PrivateKey)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Redis.Password)
	assert.Equal(t, "***", red.S3.SecretKey)
	assert.Equal(t, "***", red.Notify.TelegramToken)

	// Original is untouched.
	assert.Equal(t, "0xdeadbeef", cfg.Wallet.PrivateKey)
	assert.Equal(t, "hunter2", cfg.Postgres.Password)

	// Empty secrets stay empty rather than becoming placeholders.
	assert.Empty(t, red.Wallet.KeyPassword)
}

func TestValidateDataSource(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "monitor"
	cfg.Market.DataSource = "ftp"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data_source")

	cfg.Market.DataSource = "poll"
	cfg.Market.PollInterval = duration{}
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "poll_interval must be > 0")

	cfg.Market.PollInterval = duration{500 * time.Millisecond}
	require.NoError(t, cfg.Validate())
}
