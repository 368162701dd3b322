// Package batcher buffers price updates and flushes them to the shared
// durable cache on a fixed interval, so consumer processes can read prices
// without holding a stream connection.
package batcher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/triggerd/internal/domain"
)

// logSampleEvery controls sampled failure logging: the first failure and
// every Nth after it are logged, the rest are counted silently.
const logSampleEvery = 16

// flushTimeout bounds one bulk upsert so a slow cache cannot pile up
// goroutines.
const flushTimeout = 5 * time.Second

// Batcher accumulates the latest (bid, ask, timestamp) per symbol and
// bulk-upserts the pending set on a fixed interval. Enqueue is called on the
// quote hot path and never blocks on I/O; flushing is best-effort with no
// retries and no backpressure.
type Batcher struct {
	store    domain.PriceStore
	interval time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	pending  map[string]domain.PriceUpdate
	armed    bool
	failures uint64
}

// New creates a batcher flushing to store every interval.
func New(store domain.PriceStore, interval time.Duration, logger *slog.Logger) *Batcher {
	return &Batcher{
		store:    store,
		interval: interval,
		logger:   logger.With(slog.String("component", "price_batcher")),
		pending:  make(map[string]domain.PriceUpdate),
	}
}

// Enqueue records the latest price for the quote's symbol, overwriting any
// pending update. The first insertion since the last flush arms a single
// flush timer.
func (b *Batcher) Enqueue(q domain.Quote) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending[q.Symbol] = domain.PriceUpdate{
		Symbol:    q.Symbol,
		Bid:       q.Bid,
		Ask:       q.Ask,
		Timestamp: q.Timestamp,
	}

	if !b.armed {
		b.armed = true
		time.AfterFunc(b.interval, b.flush)
	}
}

// Pending returns the number of symbols waiting for the next flush.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Flush writes out the pending set immediately. Exposed for shutdown so the
// last partial batch is not lost on a clean stop.
func (b *Batcher) Flush() {
	b.flush()
}

func (b *Batcher) flush() {
	b.mu.Lock()
	batch := b.pending
	b.pending = make(map[string]domain.PriceUpdate)
	b.armed = false
	b.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	updates := make([]domain.PriceUpdate, 0, len(batch))
	for _, u := range batch {
		updates = append(updates, u)
	}

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	if err := b.store.BulkUpsert(ctx, updates); err != nil {
		b.mu.Lock()
		b.failures++
		n := b.failures
		b.mu.Unlock()

		if n%logSampleEvery == 1 {
			b.logger.Warn("durable cache flush failed",
				slog.Int("symbols", len(updates)),
				slog.Uint64("total_failures", n),
				slog.String("error", err.Error()),
			)
		}
	}
}
