package trigger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/triggerd/internal/domain"
)

// stubCloser records close calls and returns a configurable error.
type stubCloser struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (s *stubCloser) CloseAutomatic(_ context.Context, positionID string, _ float64, _ domain.TriggerReason) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, positionID)
	return s.err
}

func (s *stubCloser) closed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

type stubAlerter struct {
	mu     sync.Mutex
	events []string
}

func (s *stubAlerter) Notify(_ context.Context, event, _, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func testEvent(id string) domain.TriggerEvent {
	return domain.TriggerEvent{
		PositionID:   id,
		Symbol:       "EUR/USD",
		CrossedPrice: 1.09490,
		Reason:       domain.ReasonStopLoss,
		DetectedAtMs: 1000,
	}
}

func TestCoordinatorMarkIsSynchronous(t *testing.T) {
	idx := NewIndex(&stubStore{}, time.Minute, discardLogger())
	c := NewCoordinator(idx, &stubCloser{}, 10*time.Second, 4, nil, discardLogger())

	assert.False(t, c.Blocked("pos-1"))

	// The mark must be visible the moment Dispatch returns, before the
	// queued batch is processed.
	c.Dispatch([]domain.TriggerEvent{testEvent("pos-1")})
	assert.True(t, c.Blocked("pos-1"))
}

func TestCoordinatorDedupAcrossRapidTicks(t *testing.T) {
	// Two evaluator passes racing on the same position: only the first
	// dispatch reaches the closer, the second pass sees Blocked.
	idx := NewIndex(&stubStore{}, time.Minute, discardLogger())
	idx.Upsert(domain.TriggerablePosition{ID: "pos-1", Symbol: "GBP/USD", Side: domain.SideShort, TakeProfit: f64(1.25000)})

	closer := &stubCloser{}
	c := NewCoordinator(idx, closer, 10*time.Second, 4, nil, discardLogger())
	eval := NewEvaluator(idx, c, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = c.Run(ctx)
		close(done)
	}()

	q := domain.Quote{Symbol: "GBP/USD", Bid: 1.24980, Ask: 1.24990, Timestamp: 1000, Origin: domain.OriginStream}
	eval.HandleQuote(q)
	q.Timestamp = 1100
	eval.HandleQuote(q)

	require.Eventually(t, func() bool {
		return len(closer.closed()) > 0
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, []string{"pos-1"}, closer.closed(), "exactly one close per trigger")
}

func TestCoordinatorRemovesFromIndexBeforeClose(t *testing.T) {
	idx := NewIndex(&stubStore{}, time.Minute, discardLogger())
	idx.Upsert(domain.TriggerablePosition{ID: "pos-1", Symbol: "EUR/USD", Side: domain.SideLong, StopLoss: f64(1.09500)})

	closer := &stubCloser{err: errors.New("trading core down")}
	alert := &stubAlerter{}
	c := NewCoordinator(idx, closer, 10*time.Second, 4, alert, discardLogger())

	c.closeOne(context.Background(), testEvent("pos-1"))

	// Even a failed close leaves the position out of the index so it
	// cannot re-match; the sweep owns recovery.
	assert.Equal(t, 0, idx.Size())
	assert.Equal(t, []string{"close_failed"}, alert.events)
}

func TestCoordinatorSwallowsCloseConflict(t *testing.T) {
	idx := NewIndex(&stubStore{}, time.Minute, discardLogger())
	closer := &stubCloser{err: domain.ErrCloseConflict}
	alert := &stubAlerter{}
	c := NewCoordinator(idx, closer, 10*time.Second, 4, alert, discardLogger())

	c.closeOne(context.Background(), testEvent("pos-1"))

	assert.Empty(t, alert.events, "a conflict means closed elsewhere, not a failure")
}

func TestCoordinatorMarkExpires(t *testing.T) {
	idx := NewIndex(&stubStore{}, time.Minute, discardLogger())
	c := NewCoordinator(idx, &stubCloser{}, 10*time.Second, 4, nil, discardLogger())

	clock := time.UnixMilli(1_000_000)
	c.now = func() time.Time { return clock }

	c.Dispatch([]domain.TriggerEvent{testEvent("pos-1")})
	assert.True(t, c.Blocked("pos-1"))

	clock = clock.Add(9 * time.Second)
	assert.True(t, c.Blocked("pos-1"), "still inside the cooldown")

	clock = clock.Add(2 * time.Second)
	assert.False(t, c.Blocked("pos-1"), "cooldown elapsed")
}

func TestCoordinatorFullQueueDropsBatch(t *testing.T) {
	idx := NewIndex(&stubStore{}, time.Minute, discardLogger())
	closer := &stubCloser{}
	c := NewCoordinator(idx, closer, 10*time.Second, 1, nil, discardLogger())

	// No Run loop draining: the second batch finds the queue full and is
	// dropped, but its marks still stand.
	c.Dispatch([]domain.TriggerEvent{testEvent("pos-1")})
	c.Dispatch([]domain.TriggerEvent{testEvent("pos-2")})

	assert.True(t, c.Blocked("pos-1"))
	assert.True(t, c.Blocked("pos-2"))
	assert.Len(t, c.queue, 1)
}

func TestCoordinatorReleaseExpired(t *testing.T) {
	idx := NewIndex(&stubStore{}, time.Minute, discardLogger())
	c := NewCoordinator(idx, &stubCloser{}, time.Second, 4, nil, discardLogger())

	clock := time.UnixMilli(1_000_000)
	c.now = func() time.Time { return clock }

	c.Dispatch([]domain.TriggerEvent{testEvent("pos-1"), testEvent("pos-2")})
	clock = clock.Add(2 * time.Second)
	c.releaseExpired()

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Empty(t, c.marks)
}
