package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/alanyoungcy/triggerd/internal/blob/s3"
	"github.com/alanyoungcy/triggerd/internal/cache/redis"
	"github.com/alanyoungcy/triggerd/internal/config"
	"github.com/alanyoungcy/triggerd/internal/domain"
	"github.com/alanyoungcy/triggerd/internal/notify"
	"github.com/alanyoungcy/triggerd/internal/platform/tradeapi"
	"github.com/alanyoungcy/triggerd/internal/store/postgres"
)

// Dependencies bundles every external collaborator the run modes need. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// PositionStore is the durable position store read boundary; nil in
	// monitor mode.
	PositionStore domain.PositionStore
	// Closer invokes the trading core's close-position operation; nil in
	// monitor mode.
	Closer domain.PositionCloser
	// PriceStore is the shared durable price cache written by the batcher.
	PriceStore domain.PriceStore
	// BlobWriter is the snapshot target; nil when snapshots are disabled.
	BlobWriter domain.BlobWriter
	// Notifier fans operator alerts out to the configured channels. Always
	// non-nil; with no channels configured it is a no-op.
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them with a cleanup function for shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}
	engineMode := strings.ToLower(cfg.Mode) == "engine"

	// --- Redis (always: both modes republish prices) ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })
	deps.PriceStore = redis.NewPriceStore(redisClient)

	// --- PostgreSQL + trade API (engine mode only) ---
	if engineMode {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)
		deps.PositionStore = postgres.NewPositionStore(pgClient.Pool())

		deps.Closer = tradeapi.NewClient(
			cfg.TradeAPI.BaseURL,
			cfg.TradeAPI.Token,
			cfg.TradeAPI.Timeout.Duration,
		)
	}

	// --- S3 snapshots (only when enabled) ---
	if cfg.Engine.SnapshotInterval.Duration > 0 {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.BlobWriter = s3blob.NewWriter(s3Client)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
