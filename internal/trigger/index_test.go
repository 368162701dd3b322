package trigger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/triggerd/internal/domain"
)

func TestIndexRefreshBuildsSymbolMap(t *testing.T) {
	store := &stubStore{positions: []domain.TriggerablePosition{
		{ID: "a", Symbol: "EUR/USD", Side: domain.SideLong, StopLoss: f64(1.09)},
		{ID: "b", Symbol: "EUR/USD", Side: domain.SideShort, TakeProfit: f64(1.08)},
		{ID: "c", Symbol: "USD/JPY", Side: domain.SideLong, StopLoss: f64(150.0)},
		// No levels at all: must not be indexed.
		{ID: "d", Symbol: "USD/JPY", Side: domain.SideLong},
	}}
	idx := NewIndex(store, time.Minute, discardLogger())

	require.NoError(t, idx.Refresh(context.Background()))

	assert.Len(t, idx.ForSymbol("EUR/USD"), 2)
	assert.Len(t, idx.ForSymbol("USD/JPY"), 1)
	assert.Equal(t, 3, idx.Size())
}

func TestIndexRefreshRateLimited(t *testing.T) {
	store := &stubStore{}
	idx := NewIndex(store, time.Minute, discardLogger())

	require.NoError(t, idx.Refresh(context.Background()))
	require.NoError(t, idx.Refresh(context.Background()))
	require.NoError(t, idx.Refresh(context.Background()))

	assert.Equal(t, 1, store.calls, "calls inside the window are no-ops")
}

func TestIndexRefreshFailureKeepsStaleSnapshot(t *testing.T) {
	store := &stubStore{positions: []domain.TriggerablePosition{
		{ID: "a", Symbol: "EUR/USD", Side: domain.SideLong, StopLoss: f64(1.09)},
	}}
	idx := NewIndex(store, time.Minute, discardLogger())
	require.NoError(t, idx.Refresh(context.Background()))

	// Force the rate-limit window open, then fail the store.
	idx.mu.Lock()
	idx.lastRefresh = time.Time{}
	idx.mu.Unlock()
	store.err = errors.New("connection refused")

	err := idx.Refresh(context.Background())
	require.Error(t, err)
	assert.Len(t, idx.ForSymbol("EUR/USD"), 1, "stale snapshot keeps serving")

	// The window was not consumed, so recovery is picked up immediately.
	store.err = nil
	store.positions = nil
	require.NoError(t, idx.Refresh(context.Background()))
	assert.Equal(t, 0, idx.Size())
}

func TestIndexUpsertAndRemoveIdempotent(t *testing.T) {
	idx := NewIndex(&stubStore{}, time.Minute, discardLogger())

	p := domain.TriggerablePosition{ID: "a", Symbol: "EUR/USD", Side: domain.SideLong, StopLoss: f64(1.09)}
	idx.Upsert(p)
	idx.Upsert(p)
	assert.Equal(t, 1, idx.Size())

	idx.Remove("a", "EUR/USD")
	idx.Remove("a", "EUR/USD")
	assert.Equal(t, 0, idx.Size())
	assert.Nil(t, idx.ForSymbol("EUR/USD"))
}

func TestIndexUpsertWithoutLevelsRemoves(t *testing.T) {
	idx := NewIndex(&stubStore{}, time.Minute, discardLogger())

	idx.Upsert(domain.TriggerablePosition{ID: "a", Symbol: "EUR/USD", Side: domain.SideLong, StopLoss: f64(1.09)})
	require.Equal(t, 1, idx.Size())

	// Both levels cleared: the upsert acts as a removal.
	idx.Upsert(domain.TriggerablePosition{ID: "a", Symbol: "EUR/USD", Side: domain.SideLong})
	assert.Equal(t, 0, idx.Size())
}

func TestIndexUpsertPreservesEvalStamp(t *testing.T) {
	idx := NewIndex(&stubStore{}, time.Minute, discardLogger())

	idx.Upsert(domain.TriggerablePosition{ID: "a", Symbol: "EUR/USD", Side: domain.SideLong, StopLoss: f64(1.09)})
	idx.MarkEvaluated("EUR/USD", "a", 5000)

	// Level change must not reset the throttle clock.
	idx.Upsert(domain.TriggerablePosition{ID: "a", Symbol: "EUR/USD", Side: domain.SideLong, StopLoss: f64(1.08)})

	got := idx.ForSymbol("EUR/USD")
	require.Len(t, got, 1)
	assert.Equal(t, int64(5000), got[0].LastEvalMs)
	assert.Equal(t, 1.08, *got[0].StopLoss)
}

func TestIndexRefreshCarriesEvalStamps(t *testing.T) {
	store := &stubStore{positions: []domain.TriggerablePosition{
		{ID: "a", Symbol: "EUR/USD", Side: domain.SideLong, StopLoss: f64(1.09)},
	}}
	idx := NewIndex(store, time.Minute, discardLogger())
	require.NoError(t, idx.Refresh(context.Background()))
	idx.MarkEvaluated("EUR/USD", "a", 7000)

	idx.mu.Lock()
	idx.lastRefresh = time.Time{}
	idx.mu.Unlock()
	require.NoError(t, idx.Refresh(context.Background()))

	got := idx.ForSymbol("EUR/USD")
	require.Len(t, got, 1)
	assert.Equal(t, int64(7000), got[0].LastEvalMs)
}

func TestIndexMarkEvaluatedAfterRemoveIsNoop(t *testing.T) {
	idx := NewIndex(&stubStore{}, time.Minute, discardLogger())

	idx.Upsert(domain.TriggerablePosition{ID: "a", Symbol: "EUR/USD", Side: domain.SideLong, StopLoss: f64(1.09)})
	idx.Remove("a", "EUR/USD")
	idx.MarkEvaluated("EUR/USD", "a", 5000)

	assert.Equal(t, 0, idx.Size())
}
