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
// built-in defaults, applies TRIGGERD_* environment variable overrides, and
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

// applyEnvOverrides reads well-known TRIGGERD_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Provider ──
	setStr(&cfg.Provider.WsURL, "TRIGGERD_PROVIDER_WS_URL")
	setStr(&cfg.Provider.RestURL, "TRIGGERD_PROVIDER_REST_URL")
	setStr(&cfg.Provider.APIKey, "TRIGGERD_PROVIDER_API_KEY")
	setStringSlice(&cfg.Provider.Symbols, "TRIGGERD_PROVIDER_SYMBOLS")

	// ── Engine ──
	setDuration(&cfg.Engine.CloseCooldown, "TRIGGERD_ENGINE_CLOSE_COOLDOWN")
	setDuration(&cfg.Engine.EvaluateThrottle, "TRIGGERD_ENGINE_EVALUATE_THROTTLE")
	setDuration(&cfg.Engine.RefreshInterval, "TRIGGERD_ENGINE_REFRESH_INTERVAL")
	setDuration(&cfg.Engine.FlushInterval, "TRIGGERD_ENGINE_FLUSH_INTERVAL")
	setDuration(&cfg.Engine.SnapshotInterval, "TRIGGERD_ENGINE_SNAPSHOT_INTERVAL")
	setDuration(&cfg.Engine.HeartbeatInterval, "TRIGGERD_ENGINE_HEARTBEAT_INTERVAL")
	setDuration(&cfg.Engine.ReconnectBase, "TRIGGERD_ENGINE_RECONNECT_BASE")
	setFloat64(&cfg.Engine.ReconnectMultiplier, "TRIGGERD_ENGINE_RECONNECT_MULTIPLIER")
	setInt(&cfg.Engine.ReconnectMaxAttempts, "TRIGGERD_ENGINE_RECONNECT_MAX_ATTEMPTS")
	setInt(&cfg.Engine.DispatchQueueSize, "TRIGGERD_ENGINE_DISPATCH_QUEUE_SIZE")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "TRIGGERD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TRIGGERD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TRIGGERD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TRIGGERD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TRIGGERD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TRIGGERD_REDIS_TLS_ENABLED")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "TRIGGERD_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "TRIGGERD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "TRIGGERD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "TRIGGERD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "TRIGGERD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "TRIGGERD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "TRIGGERD_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "TRIGGERD_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "TRIGGERD_POSTGRES_POOL_MIN_CONNS")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "TRIGGERD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TRIGGERD_S3_REGION")
	setStr(&cfg.S3.Bucket, "TRIGGERD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TRIGGERD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TRIGGERD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "TRIGGERD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "TRIGGERD_S3_FORCE_PATH_STYLE")

	// ── TradeAPI ──
	setStr(&cfg.TradeAPI.BaseURL, "TRIGGERD_TRADEAPI_BASE_URL")
	setStr(&cfg.TradeAPI.Token, "TRIGGERD_TRADEAPI_TOKEN")
	setDuration(&cfg.TradeAPI.Timeout, "TRIGGERD_TRADEAPI_TIMEOUT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TRIGGERD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TRIGGERD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TRIGGERD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "TRIGGERD_NOTIFY_EVENTS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "TRIGGERD_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "TRIGGERD_SERVER_PORT")

	// ── Top-level ──
	setStr(&cfg.Mode, "TRIGGERD_MODE")
	setStr(&cfg.LogLevel, "TRIGGERD_LOG_LEVEL")
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
