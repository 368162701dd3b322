package trigger

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/triggerd/internal/domain"
)

// markCleanupInterval bounds how long expired closing marks linger.
const markCleanupInterval = 30 * time.Second

// Alerter is the slice of the notifier used for unrecoverable close
// failures.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Coordinator deduplicates trigger events and dispatches the external close
// operation asynchronously through a bounded work queue. The "closing" mark
// is stamped synchronously in Dispatch, before the evaluator can see the
// next tick for the symbol, which eliminates the double-dispatch race.
type Coordinator struct {
	index    *Index
	closer   domain.PositionCloser
	cooldown time.Duration
	alert    Alerter
	logger   *slog.Logger

	queue chan []domain.TriggerEvent

	mu    sync.Mutex
	marks map[string]time.Time // positionID -> closing mark expiry

	now func() time.Time
}

// NewCoordinator creates a coordinator. cooldown is how long a triggered
// position stays blocked from re-evaluation regardless of the close
// outcome; queueSize bounds the async dispatch queue.
func NewCoordinator(index *Index, closer domain.PositionCloser, cooldown time.Duration, queueSize int, alert Alerter, logger *slog.Logger) *Coordinator {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Coordinator{
		index:    index,
		closer:   closer,
		cooldown: cooldown,
		alert:    alert,
		logger:   logger.With(slog.String("component", "close_coordinator")),
		queue:    make(chan []domain.TriggerEvent, queueSize),
		marks:    make(map[string]time.Time),
		now:      time.Now,
	}
}

// Blocked reports whether a position is marked closing or within its
// post-trigger cooldown window. Expired marks are released lazily here.
func (c *Coordinator) Blocked(positionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	until, ok := c.marks[positionID]
	if !ok {
		return false
	}
	if c.now().After(until) {
		delete(c.marks, positionID)
		return false
	}
	return true
}

// Dispatch marks every position in the batch as closing, then queues the
// batch for asynchronous processing. The marking is synchronous and must
// complete before Dispatch returns; the queueing is fire-and-forget and
// never blocks the caller. A full queue drops the batch with an error log;
// the backup reconciliation sweep catches anything lost here.
func (c *Coordinator) Dispatch(events []domain.TriggerEvent) {
	if len(events) == 0 {
		return
	}

	expiry := c.now().Add(c.cooldown)
	c.mu.Lock()
	for _, ev := range events {
		c.marks[ev.PositionID] = expiry
	}
	c.mu.Unlock()

	select {
	case c.queue <- events:
	default:
		c.logger.Error("dispatch queue full, dropping trigger batch",
			slog.Int("events", len(events)),
		)
	}
}

// Run processes queued batches until ctx is cancelled. Events within a
// batch are handled sequentially; their completion order relative to later
// quotes is not guaranteed and nothing may rely on it.
func (c *Coordinator) Run(ctx context.Context) error {
	cleanup := time.NewTicker(markCleanupInterval)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-cleanup.C:
			c.releaseExpired()
		case batch := <-c.queue:
			for _, ev := range batch {
				c.closeOne(ctx, ev)
			}
		}
	}
}

// closeOne removes the position from the index, then invokes the external
// close operation and classifies the outcome. The index removal happens
// first so the position cannot re-match even if the close later fails.
func (c *Coordinator) closeOne(ctx context.Context, ev domain.TriggerEvent) {
	c.index.Remove(ev.PositionID, ev.Symbol)

	err := c.closer.CloseAutomatic(ctx, ev.PositionID, ev.CrossedPrice, ev.Reason)
	switch {
	case err == nil:
		c.logger.Info("position closed",
			slog.String("position_id", ev.PositionID),
			slog.String("symbol", ev.Symbol),
			slog.String("reason", string(ev.Reason)),
			slog.Float64("price", ev.CrossedPrice),
		)
	case errors.Is(err, domain.ErrCloseConflict):
		// Likely already closed through another path; the index removal
		// above already makes this consistent. Not retried.
		c.logger.Debug("close conflict, position likely closed elsewhere",
			slog.String("position_id", ev.PositionID),
		)
	default:
		// Left for the backup reconciliation sweep.
		c.logger.Error("close dispatch failed",
			slog.String("position_id", ev.PositionID),
			slog.String("symbol", ev.Symbol),
			slog.String("reason", string(ev.Reason)),
			slog.String("error", err.Error()),
		)
		if c.alert != nil {
			_ = c.alert.Notify(ctx, "close_failed", "Automatic close failed",
				"position "+ev.PositionID+" on "+ev.Symbol+": "+err.Error())
		}
	}
}

// releaseExpired drops closing marks whose cooldown has passed so the map
// does not grow without bound.
func (c *Coordinator) releaseExpired() {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, until := range c.marks {
		if now.After(until) {
			delete(c.marks, id)
		}
	}
}
