package app

import (
	"context"

	"golang.org/x/sync/errgroup"

	s3blob "github.com/alanyoungcy/triggerd/internal/blob/s3"
	"github.com/alanyoungcy/triggerd/internal/batcher"
	"github.com/alanyoungcy/triggerd/internal/marketdata"
	"github.com/alanyoungcy/triggerd/internal/platform/polygon"
	"github.com/alanyoungcy/triggerd/internal/server"
	"github.com/alanyoungcy/triggerd/internal/trigger"
)

// buildPipeline constructs the quote pipeline shared by both modes: the
// normalizer, spread estimator, price cache, stream client, and batcher.
func (a *App) buildPipeline(deps *Dependencies) (*marketdata.Stream, *marketdata.PriceCache, *batcher.Batcher) {
	cfg := a.cfg

	norm := marketdata.NewNormalizer(cfg.Provider.PriceDecimals, cfg.Provider.DefaultDecimals)
	spread := marketdata.NewSpreadEstimator(
		marketdata.ClassesFromLists(cfg.Provider.Majors, cfg.Provider.Crosses),
	)
	cache := marketdata.NewPriceCache()
	rest := polygon.NewRESTClient(cfg.Provider.RestURL, cfg.Provider.APIKey)

	stream := marketdata.NewStream(marketdata.StreamConfig{
		WsURL:                cfg.Provider.WsURL,
		APIKey:               cfg.Provider.APIKey,
		Symbols:              cfg.Provider.Symbols,
		HeartbeatInterval:    cfg.Engine.HeartbeatInterval.Duration,
		ReconnectBase:        cfg.Engine.ReconnectBase.Duration,
		ReconnectMultiplier:  cfg.Engine.ReconnectMultiplier,
		ReconnectMaxAttempts: cfg.Engine.ReconnectMaxAttempts,
	}, norm, spread, cache, rest, deps.Notifier, a.logger)

	b := batcher.New(deps.PriceStore, cfg.Engine.FlushInterval.Duration, a.logger)
	stream.OnTick(b.Enqueue)

	return stream, cache, b
}

// EngineMode runs the full pipeline: stream, trigger index, evaluator,
// close coordinator, durable-cache batcher, optional snapshots, and the
// ops server.
func (a *App) EngineMode(ctx context.Context, deps *Dependencies) error {
	stream, cache, b := a.buildPipeline(deps)

	index := trigger.NewIndex(deps.PositionStore, a.cfg.Engine.RefreshInterval.Duration, a.logger)
	coord := trigger.NewCoordinator(
		index,
		deps.Closer,
		a.cfg.Engine.CloseCooldown.Duration,
		a.cfg.Engine.DispatchQueueSize,
		deps.Notifier,
		a.logger,
	)
	eval := trigger.NewEvaluator(index, coord, a.cfg.Engine.EvaluateThrottle.Duration)
	stream.OnTick(eval.HandleQuote)

	stream.Warmup(ctx)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return stream.Run(ctx) })
	g.Go(func() error { return index.RunRefreshLoop(ctx) })
	g.Go(func() error { return coord.Run(ctx) })

	if deps.BlobWriter != nil {
		snap := s3blob.NewSnapshotter(deps.BlobWriter, cache, a.cfg.Engine.SnapshotInterval.Duration, a.logger)
		g.Go(func() error { return snap.Run(ctx) })
	}

	if a.cfg.Server.Enabled {
		srv := server.NewServer(server.Config{Port: a.cfg.Server.Port}, &server.Handlers{
			Prices: cache,
			Stream: stream,
			Index:  index,
		}, a.logger)
		g.Go(func() error { return srv.Run(ctx) })
	}

	err := g.Wait()
	// Do not lose the final partial batch on a clean stop.
	b.Flush()
	return err
}

// MonitorMode runs the stream and the price republishing without any
// trigger evaluation or close dispatch.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	stream, cache, b := a.buildPipeline(deps)

	stream.Warmup(ctx)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return stream.Run(ctx) })

	if deps.BlobWriter != nil {
		snap := s3blob.NewSnapshotter(deps.BlobWriter, cache, a.cfg.Engine.SnapshotInterval.Duration, a.logger)
		g.Go(func() error { return snap.Run(ctx) })
	}

	if a.cfg.Server.Enabled {
		srv := server.NewServer(server.Config{Port: a.cfg.Server.Port}, &server.Handlers{
			Prices: cache,
			Stream: stream,
		}, a.logger)
		g.Go(func() error { return srv.Run(ctx) })
	}

	err := g.Wait()
	b.Flush()
	return err
}
