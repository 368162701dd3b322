package trigger

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/triggerd/internal/domain"
)

func f64(v float64) *float64 { return &v }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubStore serves a fixed position set, or an error, to Index.Refresh.
type stubStore struct {
	mu        sync.Mutex
	positions []domain.TriggerablePosition
	err       error
	calls     int
}

func (s *stubStore) SelectOpenWithTriggers(context.Context) ([]domain.TriggerablePosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.positions, nil
}

// recordingDispatcher captures dispatched batches and lets tests block
// individual positions.
type recordingDispatcher struct {
	mu      sync.Mutex
	batches [][]domain.TriggerEvent
	blocked map[string]bool
}

func (d *recordingDispatcher) Blocked(positionID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.blocked[positionID]
}

func (d *recordingDispatcher) Dispatch(events []domain.TriggerEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.batches = append(d.batches, events)
}

func (d *recordingDispatcher) all() []domain.TriggerEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []domain.TriggerEvent
	for _, b := range d.batches {
		out = append(out, b...)
	}
	return out
}

func streamQuote(symbol string, bid, ask float64, ts int64) domain.Quote {
	return domain.Quote{
		Symbol:    symbol,
		Bid:       bid,
		Ask:       ask,
		Mid:       (bid + ask) / 2,
		Timestamp: ts,
		Origin:    domain.OriginStream,
	}
}

func TestCheckLongStopLoss(t *testing.T) {
	p := domain.TriggerablePosition{
		ID:       "pos-1",
		Symbol:   "EUR/USD",
		Side:     domain.SideLong,
		StopLoss: f64(1.09500),
	}

	// Above the level: no trigger.
	_, hit := Check(p, 1.09600, 1.09610, 1000)
	assert.False(t, hit)

	// At or below the level: stop-loss at the bid.
	ev, hit := Check(p, 1.09490, 1.09500, 2000)
	require.True(t, hit)
	assert.Equal(t, domain.ReasonStopLoss, ev.Reason)
	assert.Equal(t, 1.09490, ev.CrossedPrice)
	assert.Equal(t, "pos-1", ev.PositionID)
	assert.Equal(t, int64(2000), ev.DetectedAtMs)
}

func TestCheckLongTakeProfit(t *testing.T) {
	p := domain.TriggerablePosition{
		ID:         "pos-2",
		Symbol:     "EUR/USD",
		Side:       domain.SideLong,
		TakeProfit: f64(1.11000),
	}

	_, hit := Check(p, 1.10990, 1.11000, 1000)
	assert.False(t, hit, "the ask crossing TP must not fill a long")

	ev, hit := Check(p, 1.11000, 1.11010, 2000)
	require.True(t, hit)
	assert.Equal(t, domain.ReasonTakeProfit, ev.Reason)
	assert.Equal(t, 1.11000, ev.CrossedPrice)
}

func TestCheckShortSides(t *testing.T) {
	p := domain.TriggerablePosition{
		ID:         "pos-3",
		Symbol:     "GBP/USD",
		Side:       domain.SideShort,
		StopLoss:   f64(1.27000),
		TakeProfit: f64(1.25000),
	}

	// Shorts close at the ask.
	ev, hit := Check(p, 1.24980, 1.25000, 1000)
	require.True(t, hit)
	assert.Equal(t, domain.ReasonTakeProfit, ev.Reason)
	assert.Equal(t, 1.25000, ev.CrossedPrice)

	ev, hit = Check(p, 1.26990, 1.27010, 2000)
	require.True(t, hit)
	assert.Equal(t, domain.ReasonStopLoss, ev.Reason)
	assert.Equal(t, 1.27010, ev.CrossedPrice)

	// Between the levels: nothing.
	_, hit = Check(p, 1.25990, 1.26010, 3000)
	assert.False(t, hit)
}

func TestCheckStopLossWinsOverTakeProfit(t *testing.T) {
	// Degenerate levels where a single price satisfies both. Stop-loss is
	// evaluated first and short-circuits.
	p := domain.TriggerablePosition{
		ID:         "pos-4",
		Symbol:     "EUR/USD",
		Side:       domain.SideLong,
		StopLoss:   f64(1.10000),
		TakeProfit: f64(1.10000),
	}

	ev, hit := Check(p, 1.10000, 1.10010, 1000)
	require.True(t, hit)
	assert.Equal(t, domain.ReasonStopLoss, ev.Reason)
}

func TestEvaluatorCollectsHitsBeforeDispatch(t *testing.T) {
	store := &stubStore{positions: []domain.TriggerablePosition{
		{ID: "a", Symbol: "EUR/USD", Side: domain.SideLong, StopLoss: f64(1.09500)},
		{ID: "b", Symbol: "EUR/USD", Side: domain.SideLong, StopLoss: f64(1.09600)},
		{ID: "c", Symbol: "EUR/USD", Side: domain.SideLong, StopLoss: f64(1.09000)},
	}}
	idx := NewIndex(store, time.Minute, discardLogger())
	require.NoError(t, idx.Refresh(context.Background()))

	disp := &recordingDispatcher{blocked: map[string]bool{}}
	eval := NewEvaluator(idx, disp, 0)

	eval.HandleQuote(streamQuote("EUR/USD", 1.09550, 1.09560, 1000))

	require.Len(t, disp.batches, 1, "all hits of one tick arrive in one batch")
	assert.Len(t, disp.batches[0], 1)
	assert.Equal(t, "b", disp.batches[0][0].PositionID)
}

func TestEvaluatorSkipsBlockedPositions(t *testing.T) {
	store := &stubStore{positions: []domain.TriggerablePosition{
		{ID: "a", Symbol: "EUR/USD", Side: domain.SideLong, StopLoss: f64(1.09500)},
	}}
	idx := NewIndex(store, time.Minute, discardLogger())
	require.NoError(t, idx.Refresh(context.Background()))

	disp := &recordingDispatcher{blocked: map[string]bool{"a": true}}
	eval := NewEvaluator(idx, disp, 0)

	eval.HandleQuote(streamQuote("EUR/USD", 1.09400, 1.09410, 1000))
	assert.Empty(t, disp.all())
}

func TestEvaluatorThrottlesPerPosition(t *testing.T) {
	store := &stubStore{positions: []domain.TriggerablePosition{
		{ID: "a", Symbol: "EUR/USD", Side: domain.SideLong, StopLoss: f64(0.50000)},
	}}
	idx := NewIndex(store, time.Minute, discardLogger())
	require.NoError(t, idx.Refresh(context.Background()))

	disp := &recordingDispatcher{blocked: map[string]bool{}}
	eval := NewEvaluator(idx, disp, time.Second)

	clock := time.UnixMilli(1_000_000)
	eval.now = func() time.Time { return clock }

	q := streamQuote("EUR/USD", 1.10000, 1.10010, 1000)

	// First pass evaluates and stamps the throttle clock.
	eval.HandleQuote(q)
	// 400ms later: inside the window, skipped.
	clock = clock.Add(400 * time.Millisecond)
	eval.HandleQuote(q)
	// Another 700ms: window elapsed, evaluated again.
	clock = clock.Add(700 * time.Millisecond)
	eval.HandleQuote(q)

	// The SL is far below the price, so no events, but the throttle stamp
	// must have advanced exactly twice.
	assert.Empty(t, disp.all())
	got := idx.ForSymbol("EUR/USD")
	require.Len(t, got, 1)
	assert.Equal(t, clock.UnixMilli(), got[0].LastEvalMs)
}

func TestEvaluatorTwoTickScenario(t *testing.T) {
	// Long EUR/USD entered at 1.10000 with SL 1.09500. A tick above the
	// level does nothing; the crossing tick emits exactly one stop-loss
	// event at the bid.
	store := &stubStore{positions: []domain.TriggerablePosition{
		{
			ID:         "pos-9",
			Symbol:     "EUR/USD",
			Side:       domain.SideLong,
			EntryPrice: 1.10000,
			StopLoss:   f64(1.09500),
		},
	}}
	idx := NewIndex(store, time.Minute, discardLogger())
	require.NoError(t, idx.Refresh(context.Background()))

	disp := &recordingDispatcher{blocked: map[string]bool{}}
	eval := NewEvaluator(idx, disp, 0)

	eval.HandleQuote(streamQuote("EUR/USD", 1.09600, 1.09610, 1000))
	assert.Empty(t, disp.all())

	eval.HandleQuote(streamQuote("EUR/USD", 1.09490, 1.09500, 2000))
	events := disp.all()
	require.Len(t, events, 1)
	assert.Equal(t, domain.ReasonStopLoss, events[0].Reason)
	assert.Equal(t, 1.09490, events[0].CrossedPrice)
}
