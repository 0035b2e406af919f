// Package config defines the top-level configuration for the up/down
// trading bot and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by UPDOWN_* environment
// variables.
type Config struct {
	Wallet     WalletConfig     `toml:"wallet"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Market     MarketConfig     `toml:"market"`
	Trading    TradingConfig    `toml:"trading"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// WalletConfig holds Ethereum wallet credentials.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PolymarketConfig holds API endpoints and chain parameters.
type PolymarketConfig struct {
	ClobHost  string `toml:"clob_host"`
	GammaHost string `toml:"gamma_host"`
	WsHost    string `toml:"ws_host"`
	ChainID   int    `toml:"chain_id"`
}

// MarketConfig selects the up/down market family to trade.
type MarketConfig struct {
	// SlugStem is the market family prefix; the current window's slug is
	// the stem plus the unix start time, e.g. "btc-updown-15m-1725004800".
	SlugStem string `toml:"slug_stem"`

	// MinTimeLeft stops new entries this close to settlement.
	MinTimeLeft duration `toml:"min_time_left"`

	// RolloverRetry is the wait between discovery attempts when the next
	// window is not listed yet.
	RolloverRetry duration `toml:"rollover_retry"`

	// DataSource selects how books are kept current: "stream" uses the
	// WebSocket feed, "poll" re-fetches REST snapshots on an interval.
	DataSource string `toml:"data_source"`

	// PollInterval is the REST snapshot cadence when data_source is "poll".
	PollInterval duration `toml:"poll_interval"`
}

// TradingConfig holds the detection and execution parameters.
type TradingConfig struct {
	// CostCeiling is the maximum combined worst-price cost per share pair
	// at which an entry is still taken.
	CostCeiling float64 `toml:"cost_ceiling"`

	// OrderSize is the target share count per leg.
	OrderSize float64 `toml:"order_size"`

	// Cooldown is the minimum gap between execution attempts.
	Cooldown duration `toml:"cooldown"`

	// MinNotional is the venue's minimum order value in USDC.
	MinNotional float64 `toml:"min_notional"`

	// BalanceSafety multiplies the required spend for the balance check.
	BalanceSafety float64 `toml:"balance_safety"`

	// PollInterval and PollTimeout bound the per-leg wait for a terminal
	// order state.
	PollInterval duration `toml:"poll_interval"`
	PollTimeout  duration `toml:"poll_timeout"`

	// DryRun detects and sizes but never sends orders.
	DryRun bool `toml:"dry_run"`

	// DetectGap drops book events that arrive closer together than this,
	// bounding detector work under bursty feeds. Zero disables the gate.
	DetectGap duration `toml:"detect_gap"`
}

// PostgresConfig holds the trade journal connection parameters.
type PostgresConfig struct {
	Enabled      bool   `toml:"enabled"`
	DSN          string `toml:"dsn"`
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	Database     string `toml:"database"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	SSLMode      string `toml:"ssl_mode"`
	PoolMaxConns int    `toml:"pool_max_conns"`
	PoolMinConns int    `toml:"pool_min_conns"`
}

// RedisConfig holds the event bus connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds the settlement report archive parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds the status/dashboard HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`

	// APIKey protects the dashboard API when set; empty disables auth.
	APIKey string `toml:"api_key"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
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
		Polymarket: PolymarketConfig{
			ClobHost:  "https://clob.polymarket.com",
			GammaHost: "https://gamma-api.polymarket.com",
			WsHost:    "wss://ws-subscriptions-clob.polymarket.com/ws/market",
			ChainID:   137,
		},
		Market: MarketConfig{
			SlugStem:      "btc-updown-15m",
			MinTimeLeft:   duration{30 * time.Second},
			RolloverRetry: duration{5 * time.Second},
			DataSource:    "stream",
			PollInterval:  duration{500 * time.Millisecond},
		},
		Trading: TradingConfig{
			CostCeiling:   0.99,
			OrderSize:     50,
			Cooldown:      duration{3 * time.Second},
			MinNotional:   1.0,
			BalanceSafety: 1.2,
			PollInterval:  duration{250 * time.Millisecond},
			PollTimeout:   duration{3 * time.Second},
			DryRun:        false,
			DetectGap:     duration{50 * time.Millisecond},
		},
		Postgres: PostgresConfig{
			Enabled:      false,
			Host:         "localhost",
			Port:         5432,
			Database:     "updownbot",
			User:         "postgres",
			SSLMode:      "disable",
			PoolMaxConns: 10,
			PoolMinConns: 2,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "updownbot-data",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Events: []string{"opportunity_found", "trade_executed", "trade_failed", "session_summary"},
		},
		Mode:     "trade",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":   true,
	"monitor": true,
	"server":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and
// returns a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, monitor, server)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet credentials are required only when orders will be sent.
	needsWallet := strings.ToLower(c.Mode) == "trade" && !c.Trading.DryRun
	if needsWallet {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for mode trade")
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
	}

	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	if c.Polymarket.WsHost == "" && strings.ToLower(c.Market.DataSource) != "poll" {
		errs = append(errs, "polymarket: ws_host must not be empty")
	}
	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}
	if c.Polymarket.ChainID <= 0 {
		errs = append(errs, "polymarket: chain_id must be positive")
	}

	if c.Market.SlugStem == "" {
		errs = append(errs, "market: slug_stem must not be empty")
	}
	switch strings.ToLower(c.Market.DataSource) {
	case "stream", "poll":
	default:
		errs = append(errs, fmt.Sprintf("market: unknown data_source %q (valid: stream, poll)", c.Market.DataSource))
	}
	if strings.ToLower(c.Market.DataSource) == "poll" && c.Market.PollInterval.Duration <= 0 {
		errs = append(errs, "market: poll_interval must be > 0 when data_source is poll")
	}

	if c.Trading.CostCeiling <= 0 || c.Trading.CostCeiling > 1 {
		errs = append(errs, fmt.Sprintf("trading: cost_ceiling must be in (0, 1], got %v", c.Trading.CostCeiling))
	}
	if c.Trading.OrderSize <= 0 {
		errs = append(errs, "trading: order_size must be > 0")
	}
	if c.Trading.BalanceSafety < 1 {
		errs = append(errs, "trading: balance_safety must be >= 1")
	}
	if c.Trading.PollTimeout.Duration <= 0 {
		errs = append(errs, "trading: poll_timeout must be > 0")
	}
	if c.Trading.PollInterval.Duration <= 0 {
		errs = append(errs, "trading: poll_interval must be > 0")
	}
	if c.Trading.PollInterval.Duration >= c.Trading.PollTimeout.Duration {
		errs = append(errs, "trading: poll_interval must be shorter than poll_timeout")
	}
	if c.Trading.DetectGap.Duration < 0 {
		errs = append(errs, "trading: detect_gap must be >= 0")
	}

	if c.Postgres.Enabled {
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
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
