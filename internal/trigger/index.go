// Package trigger holds the in-memory position trigger index, the per-tick
// evaluator, and the close coordinator. Together they detect TP/SL
// crossings and dispatch each close exactly once, without touching the
// durable store on the hot path.
package trigger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/triggerd/internal/domain"
)

// Index is the per-symbol map of open positions carrying a stop-loss or
// take-profit. It is refreshed wholesale from the durable store on a timer
// and patched incrementally by position-lifecycle events. Safe for
// concurrent use from the hot path and lifecycle callbacks.
type Index struct {
	store           domain.PositionStore
	refreshInterval time.Duration
	logger          *slog.Logger

	mu          sync.RWMutex
	bySymbol    map[string]map[string]domain.TriggerablePosition
	lastRefresh time.Time
}

// NewIndex creates an empty index backed by the given store.
// refreshInterval is the full-refresh timer period; refreshes are
// additionally rate-limited to at most once per half interval.
func NewIndex(store domain.PositionStore, refreshInterval time.Duration, logger *slog.Logger) *Index {
	return &Index{
		store:           store,
		refreshInterval: refreshInterval,
		logger:          logger.With(slog.String("component", "trigger_index")),
		bySymbol:        make(map[string]map[string]domain.TriggerablePosition),
	}
}

// Refresh replaces the whole mapping from the durable store. It is
// rate-limited; calls inside the window are no-ops so external bulk
// operations can request refreshes freely. When the store is unreachable
// the stale snapshot keeps serving and the rate-limit window is not
// consumed, so the next call retries immediately.
func (x *Index) Refresh(ctx context.Context) error {
	x.mu.Lock()
	if time.Since(x.lastRefresh) < x.refreshInterval/2 {
		x.mu.Unlock()
		return nil
	}
	x.mu.Unlock()

	positions, err := x.store.SelectOpenWithTriggers(ctx)
	if err != nil {
		x.mu.RLock()
		age := time.Since(x.lastRefresh)
		x.mu.RUnlock()
		x.logger.Warn("refresh failed, serving stale index",
			slog.Duration("snapshot_age", age),
			slog.String("error", err.Error()),
		)
		return err
	}

	fresh := make(map[string]map[string]domain.TriggerablePosition)
	for _, p := range positions {
		if !p.Triggerable() {
			continue
		}
		if fresh[p.Symbol] == nil {
			fresh[p.Symbol] = make(map[string]domain.TriggerablePosition)
		}
		fresh[p.Symbol][p.ID] = p
	}

	x.mu.Lock()
	// Carry evaluation stamps across the swap so a refresh cannot defeat
	// the per-position throttle.
	for symbol, entries := range fresh {
		if old, ok := x.bySymbol[symbol]; ok {
			for id, p := range entries {
				if prev, ok := old[id]; ok {
					p.LastEvalMs = prev.LastEvalMs
					entries[id] = p
				}
			}
		}
	}
	x.bySymbol = fresh
	x.lastRefresh = time.Now()
	x.mu.Unlock()

	x.logger.Debug("index refreshed", slog.Int("positions", len(positions)))
	return nil
}

// RunRefreshLoop refreshes the index on the configured interval until ctx
// is cancelled. An initial refresh runs immediately.
func (x *Index) RunRefreshLoop(ctx context.Context) error {
	_ = x.Refresh(ctx)

	ticker := time.NewTicker(x.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_ = x.Refresh(ctx)
		}
	}
}

// Upsert inserts or replaces the entry for a position. A position whose TP
// and SL are both cleared is removed instead. Idempotent.
func (x *Index) Upsert(p domain.TriggerablePosition) {
	if !p.Triggerable() {
		x.Remove(p.ID, p.Symbol)
		return
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.bySymbol[p.Symbol] == nil {
		x.bySymbol[p.Symbol] = make(map[string]domain.TriggerablePosition)
	}
	if prev, ok := x.bySymbol[p.Symbol][p.ID]; ok {
		p.LastEvalMs = prev.LastEvalMs
	}
	x.bySymbol[p.Symbol][p.ID] = p
}

// Remove deletes the entry for a position id. Idempotent.
func (x *Index) Remove(positionID, symbol string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	entries, ok := x.bySymbol[symbol]
	if !ok {
		return
	}
	delete(entries, positionID)
	if len(entries) == 0 {
		delete(x.bySymbol, symbol)
	}
}

// ForSymbol returns a copy of the positions indexed under one symbol.
func (x *Index) ForSymbol(symbol string) []domain.TriggerablePosition {
	x.mu.RLock()
	defer x.mu.RUnlock()

	entries := x.bySymbol[symbol]
	if len(entries) == 0 {
		return nil
	}
	out := make([]domain.TriggerablePosition, 0, len(entries))
	for _, p := range entries {
		out = append(out, p)
	}
	return out
}

// MarkEvaluated stamps the per-position throttle clock. A no-op when the
// entry has been removed meanwhile.
func (x *Index) MarkEvaluated(symbol, positionID string, atMs int64) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if p, ok := x.bySymbol[symbol][positionID]; ok {
		p.LastEvalMs = atMs
		x.bySymbol[symbol][positionID] = p
	}
}

// Size returns the total number of indexed positions.
func (x *Index) Size() int {
	x.mu.RLock()
	defer x.mu.RUnlock()

	n := 0
	for _, entries := range x.bySymbol {
		n += len(entries)
	}
	return n
}
