// Package config defines the top-level configuration for the trigger engine
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by TRIGGERD_* environment
// variables.
type Config struct {
	Provider Provider       `toml:"provider"`
	Engine   EngineConfig   `toml:"engine"`
	Redis    RedisConfig    `toml:"redis"`
	Postgres PostgresConfig `toml:"postgres"`
	S3       S3Config       `toml:"s3"`
	TradeAPI TradeAPIConfig `toml:"tradeapi"`
	Notify   NotifyConfig   `toml:"notify"`
	Server   ServerConfig   `toml:"server"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// Provider holds the upstream market-data provider endpoints and
// credentials.
type Provider struct {
	WsURL   string `toml:"ws_url"`
	RestURL string `toml:"rest_url"`
	APIKey  string `toml:"api_key"`
	// Symbols is the instrument universe subscribed after authentication.
	Symbols []string `toml:"symbols"`
	// ("EUR/USD" etc. keyed to their class for spread fallbacks)
	Majors  []string `toml:"majors"`
	Crosses []string `toml:"crosses"`
	// PriceDecimals maps a symbol to its canonical decimal precision.
	// Symbols not listed use DefaultDecimals.
	PriceDecimals   map[string]int `toml:"price_decimals"`
	DefaultDecimals int            `toml:"default_decimals"`
}

// EngineConfig holds the trigger-engine timing knobs. The cooldown and
// throttle trade latency against duplicate-trigger risk and were tuned
// empirically, so they are configuration rather than constants.
type EngineConfig struct {
	// CloseCooldown is how long a position stays marked "closing" after a
	// trigger, regardless of the close outcome.
	CloseCooldown duration `toml:"close_cooldown"`
	// EvaluateThrottle is the minimum gap between evaluations of the same
	// position under bursty ticks.
	EvaluateThrottle duration `toml:"evaluate_throttle"`
	// RefreshInterval is the trigger-index full-refresh timer period.
	RefreshInterval duration `toml:"refresh_interval"`
	// FlushInterval is the durable-cache batcher flush period.
	FlushInterval duration `toml:"flush_interval"`
	// SnapshotInterval is the S3 price-snapshot period; zero disables it.
	SnapshotInterval duration `toml:"snapshot_interval"`
	// HeartbeatInterval is the liveness ping period while subscribed.
	HeartbeatInterval duration `toml:"heartbeat_interval"`
	// ReconnectBase is the first reconnect delay; each attempt multiplies
	// it by ReconnectMultiplier, up to ReconnectMaxAttempts.
	ReconnectBase        duration `toml:"reconnect_base"`
	ReconnectMultiplier  float64  `toml:"reconnect_multiplier"`
	ReconnectMaxAttempts int      `toml:"reconnect_max_attempts"`
	// DispatchQueueSize bounds the close coordinator's async work queue.
	DispatchQueueSize int `toml:"dispatch_queue_size"`
}

// RedisConfig holds connection parameters for the shared durable price
// cache.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// PostgresConfig holds connection parameters for the durable position store.
type PostgresConfig struct {
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

// S3Config holds S3-compatible object storage parameters for snapshot
// archival.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// TradeAPIConfig holds the trading core's internal API endpoint used for
// automatic position closes.
type TradeAPIConfig struct {
	BaseURL string   `toml:"base_url"`
	Token   string   `toml:"token"`
	Timeout duration `toml:"timeout"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// ServerConfig holds the read-only ops HTTP server parameters.
type ServerConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
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

// Defaults returns the built-in configuration that Load layers the TOML file
// on top of.
func Defaults() Config {
	return Config{
		Provider: Provider{
			WsURL:           "wss://socket.polygon.io/forex",
			RestURL:         "https://api.polygon.io",
			DefaultDecimals: 5,
		},
		Engine: EngineConfig{
			CloseCooldown:        duration{10 * time.Second},
			EvaluateThrottle:     duration{1 * time.Second},
			RefreshInterval:      duration{30 * time.Second},
			FlushInterval:        duration{2 * time.Second},
			SnapshotInterval:     duration{0},
			HeartbeatInterval:    duration{15 * time.Second},
			ReconnectBase:        duration{3 * time.Second},
			ReconnectMultiplier:  1.5,
			ReconnectMaxAttempts: 10,
			DispatchQueueSize:    256,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Postgres: PostgresConfig{
			Host:         "localhost",
			Port:         5432,
			SSLMode:      "disable",
			PoolMaxConns: 4,
			PoolMinConns: 1,
		},
		TradeAPI: TradeAPIConfig{
			Timeout: duration{10 * time.Second},
		},
		Server: ServerConfig{
			Port: 8080,
		},
		Mode:     "engine",
		LogLevel: "info",
	}
}

// Validate checks the configuration for the selected mode and returns a
// descriptive error for the first problem found.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Mode) {
	case "engine", "monitor":
	default:
		return fmt.Errorf("config: unsupported mode %q", c.Mode)
	}

	if c.Provider.APIKey == "" {
		return fmt.Errorf("config: provider.api_key is required")
	}
	if c.Provider.WsURL == "" {
		return fmt.Errorf("config: provider.ws_url is required")
	}
	if len(c.Provider.Symbols) == 0 {
		return fmt.Errorf("config: provider.symbols must not be empty")
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr is required")
	}

	if strings.ToLower(c.Mode) == "engine" {
		if c.Postgres.DSN == "" && c.Postgres.Database == "" {
			return fmt.Errorf("config: postgres.dsn or postgres.database is required in engine mode")
		}
		if c.TradeAPI.BaseURL == "" {
			return fmt.Errorf("config: tradeapi.base_url is required in engine mode")
		}
	}

	if c.Engine.ReconnectMultiplier < 1 {
		return fmt.Errorf("config: engine.reconnect_multiplier must be >= 1")
	}
	if c.Engine.ReconnectMaxAttempts <= 0 {
		return fmt.Errorf("config: engine.reconnect_max_attempts must be positive")
	}
	if c.Engine.CloseCooldown.Duration <= 0 {
		return fmt.Errorf("config: engine.close_cooldown must be positive")
	}
	if c.Engine.FlushInterval.Duration <= 0 {
		return fmt.Errorf("config: engine.flush_interval must be positive")
	}

	if c.Engine.SnapshotInterval.Duration > 0 {
		if c.S3.Bucket == "" || c.S3.Region == "" {
			return fmt.Errorf("config: s3.bucket and s3.region are required when snapshots are enabled")
		}
	}

	return nil
}
