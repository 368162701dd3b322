package s3blob

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/triggerd/internal/domain"
)

// snapshotLogSampleEvery samples failure logging the same way the batcher
// does: individual snapshot failures are expected to be transient and loud
// logging would add nothing.
const snapshotLogSampleEvery = 8

// PriceSource is the read side of the in-process price cache.
type PriceSource interface {
	All() map[string]domain.Quote
}

// Snapshotter periodically serializes the whole price cache to JSON and
// puts it to object storage under snapshots/YYYY/MM/DD/HHMMSS.json.
// Best-effort: a failed snapshot is skipped, never retried.
type Snapshotter struct {
	writer   domain.BlobWriter
	source   PriceSource
	interval time.Duration
	logger   *slog.Logger

	failures uint64
}

// NewSnapshotter creates a snapshotter writing from source via writer every
// interval.
func NewSnapshotter(writer domain.BlobWriter, source PriceSource, interval time.Duration, logger *slog.Logger) *Snapshotter {
	return &Snapshotter{
		writer:   writer,
		source:   source,
		interval: interval,
		logger:   logger.With(slog.String("component", "price_snapshotter")),
	}
}

type snapshotEntry struct {
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	Mid       float64 `json:"mid"`
	Timestamp int64   `json:"ts"`
	Origin    string  `json:"origin"`
}

// Run writes snapshots on the configured interval until ctx is cancelled.
func (s *Snapshotter) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.snapshot(ctx)
		}
	}
}

func (s *Snapshotter) snapshot(ctx context.Context) {
	quotes := s.source.All()
	if len(quotes) == 0 {
		return
	}

	entries := make(map[string]snapshotEntry, len(quotes))
	for symbol, q := range quotes {
		entries[symbol] = snapshotEntry{
			Bid:       q.Bid,
			Ask:       q.Ask,
			Mid:       q.Mid,
			Timestamp: q.Timestamp,
			Origin:    string(q.Origin),
		}
	}

	data, err := json.Marshal(entries)
	if err != nil {
		s.logger.Error("marshal snapshot", slog.String("error", err.Error()))
		return
	}

	now := time.Now().UTC()
	path := "snapshots/" + now.Format("2006/01/02/150405") + ".json"

	if err := s.writer.Put(ctx, path, data, "application/json"); err != nil {
		s.failures++
		if s.failures%snapshotLogSampleEvery == 1 {
			s.logger.Warn("snapshot upload failed",
				slog.String("path", path),
				slog.Uint64("total_failures", s.failures),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	s.logger.Debug("snapshot written",
		slog.String("path", path),
		slog.Int("symbols", len(entries)),
	)
}
