package marketdata

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/triggerd/internal/domain"
	"github.com/alanyoungcy/triggerd/internal/platform/polygon"
)

// slowRetryInterval is the background retry cadence once the backoff attempt
// cap has been reached and the engine has degraded to fallback sources.
const slowRetryInterval = time.Minute

// TickHandler receives every quote accepted into the price cache. Handlers
// run synchronously on the message-handling path and must not block on I/O.
type TickHandler func(q domain.Quote)

// Alerter is the slice of the notifier the stream needs for operator alerts.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// StreamConfig holds the connection policy knobs.
type StreamConfig struct {
	WsURL                string
	APIKey               string
	Symbols              []string
	HeartbeatInterval    time.Duration
	ReconnectBase        time.Duration
	ReconnectMultiplier  float64
	ReconnectMaxAttempts int
}

// Stream owns the provider connection lifecycle: connect, authenticate,
// subscribe, heartbeat, decode, reconnect with backoff. It drives the
// normalizer, the spread estimator, the price cache, and the registered tick
// handlers sequentially per inbound message, which guarantees per-symbol
// quotes are evaluated in arrival order.
type Stream struct {
	cfg    StreamConfig
	norm   *Normalizer
	spread *SpreadEstimator
	cache  *PriceCache
	rest   *polygon.RESTClient
	alert  Alerter
	logger *slog.Logger

	handlers []TickHandler

	running atomic.Bool

	mu    sync.Mutex
	state domain.ConnectionState
}

// NewStream creates a stream client. rest may be nil when no REST fallback
// is configured; alert may be nil when no notifier is wired.
func NewStream(cfg StreamConfig, norm *Normalizer, spread *SpreadEstimator, cache *PriceCache, rest *polygon.RESTClient, alert Alerter, logger *slog.Logger) *Stream {
	return &Stream{
		cfg:    cfg,
		norm:   norm,
		spread: spread,
		cache:  cache,
		rest:   rest,
		alert:  alert,
		logger: logger.With(slog.String("component", "stream")),
		state:  domain.ConnectionState{Status: domain.StatusDisconnected},
	}
}

// OnTick registers a handler invoked for every accepted quote. Must be
// called before Run.
func (s *Stream) OnTick(h TickHandler) {
	s.handlers = append(s.handlers, h)
}

// IsConnected reports whether the stream is authenticated and subscribed.
func (s *Stream) IsConnected() bool {
	return s.Snapshot().Live()
}

// Snapshot returns a copy of the current connection state.
func (s *Stream) Snapshot() domain.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Run connects and processes messages until ctx is cancelled, reconnecting
// with exponential backoff on any transport or authentication error. It is
// idempotent: a second concurrent call logs and returns nil immediately, so
// at most one live connection exists per process.
func (s *Stream) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("stream already running, ignoring duplicate start")
		return nil
	}
	defer s.running.Store(false)

	for {
		err := s.runConnection(ctx)

		s.setStatus(domain.StatusDisconnected)

		if ctx.Err() != nil {
			return ctx.Err()
		}

		attempt := s.bumpAttempt()
		delay := ReconnectDelay(s.cfg.ReconnectBase, s.cfg.ReconnectMultiplier, attempt, s.cfg.ReconnectMaxAttempts)

		if attempt == s.cfg.ReconnectMaxAttempts {
			s.logger.Error("reconnect attempt cap reached, degrading to background retries",
				slog.Int("attempts", attempt),
				slog.String("error", err.Error()),
			)
			if s.alert != nil {
				_ = s.alert.Notify(ctx, "stream_degraded", "Market data stream degraded",
					"reconnect attempt cap reached; engine now relies on fallback price sources")
			}
		}
		if attempt > s.cfg.ReconnectMaxAttempts {
			delay = slowRetryInterval
		}

		s.logger.Warn("stream disconnected, reconnecting",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// Warmup seeds the price cache over REST for every configured symbol that
// has not produced a quote yet. Best-effort: individual lookup failures are
// logged and skipped.
func (s *Stream) Warmup(ctx context.Context) {
	if s.rest == nil {
		return
	}

	for _, symbol := range s.cfg.Symbols {
		if _, ok := s.cache.Get(symbol); ok {
			continue
		}

		lq, err := s.rest.LastQuote(ctx, symbol)
		if err != nil {
			s.logger.Debug("warmup lookup failed",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
			continue
		}

		q, err := s.norm.Normalize(symbol, lq.Bid, lq.Ask, lq.Timestamp, domain.OriginFallbackREST)
		if err != nil {
			continue
		}
		if s.cache.Put(q) {
			s.dispatch(q)
		}
	}
}

// ReconnectDelay computes the backoff delay before the given reconnect
// attempt (1-based): base × multiplier^(attempt-1), with growth capped at
// maxAttempts.
func ReconnectDelay(base time.Duration, multiplier float64, attempt, maxAttempts int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if maxAttempts > 0 && attempt > maxAttempts {
		attempt = maxAttempts
	}
	scale := math.Pow(multiplier, float64(attempt-1))
	return time.Duration(float64(base) * scale)
}

// runConnection performs one full connection lifecycle: dial, authenticate,
// subscribe, then read frames until the transport fails or ctx is
// cancelled.
func (s *Stream) runConnection(ctx context.Context) error {
	s.setStatus(domain.StatusConnecting)

	conn, err := polygon.Dial(ctx, s.cfg.WsURL)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Tear the connection down when ctx is cancelled so ReadMessage
	// unblocks.
	connDone := make(chan struct{})
	defer close(connDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-connDone:
		}
	}()

	s.setStatus(domain.StatusAuthenticating)
	if err := conn.SendAuth(s.cfg.APIKey); err != nil {
		return err
	}

	go s.heartbeatLoop(conn, connDone)

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		s.touch()

		events, err := polygon.DecodeFrame(data)
		if err != nil {
			// Malformed frames are dropped, never fatal.
			s.logger.Warn("dropping malformed frame", slog.String("error", err.Error()))
			continue
		}

		for _, ev := range events {
			if err := s.handleEvent(conn, ev); err != nil {
				return err
			}
		}
	}
}

// handleEvent routes one decoded event. A returned error abandons the
// connection.
func (s *Stream) handleEvent(conn *polygon.Conn, ev polygon.Event) error {
	switch {
	case ev.Status != nil:
		return s.handleStatus(conn, *ev.Status)
	case ev.Quote != nil:
		s.handleQuote(*ev.Quote)
	case ev.Aggregate != nil:
		s.handleAggregate(*ev.Aggregate)
	}
	return nil
}

func (s *Stream) handleStatus(conn *polygon.Conn, st polygon.StatusEvent) error {
	switch {
	case st.AuthOK():
		if err := conn.SendSubscribe(s.cfg.Symbols); err != nil {
			return err
		}
		s.markSubscribed()
		s.logger.Info("stream subscribed", slog.Int("symbols", len(s.cfg.Symbols)))
	case st.AuthRejected():
		s.logger.Error("stream authentication rejected", slog.String("message", st.Message))
		return domain.ErrAuthFailed
	default:
		s.logger.Debug("stream status",
			slog.String("status", st.Status),
			slog.String("message", st.Message),
		)
	}
	return nil
}

// handleQuote normalizes an organic tick, feeds the spread estimator, and
// publishes it. All downstream work on this path is in-memory.
func (s *Stream) handleQuote(ev polygon.QuoteEvent) {
	q, err := s.norm.Normalize(ev.Pair, ev.Bid, ev.Ask, ev.Timestamp, domain.OriginStream)
	if err != nil {
		if !errors.Is(err, domain.ErrInvalidQuote) {
			s.logger.Warn("normalize failed", slog.String("error", err.Error()))
			return
		}
		s.logger.Debug("dropping corrupt tick",
			slog.String("symbol", ev.Pair),
			slog.String("error", err.Error()),
		)
		return
	}

	s.spread.Observe(q.Symbol, q.Spread)

	if s.cache.Put(q) {
		s.dispatch(q)
	}
}

// handleAggregate converts a bar into a synthetic quote via the spread
// estimate. The cache's ordering guard discards it when a fresher quote is
// already held, so a synthetic update can never mask a real tick.
func (s *Stream) handleAggregate(ev polygon.AggregateEvent) {
	if ev.Close <= 0 {
		return
	}

	bid, ask := s.spread.Synthesize(ev.Pair, ev.Close)
	q, err := s.norm.Normalize(ev.Pair, bid, ask, ev.EndMs, domain.OriginSynthesized)
	if err != nil {
		return
	}

	if s.cache.Put(q) {
		s.dispatch(q)
	}
}

func (s *Stream) dispatch(q domain.Quote) {
	for _, h := range s.handlers {
		h(q)
	}
}

// heartbeatLoop pings the peer on a fixed interval while subscribed. A ping
// failure is left for the read loop to observe as a transport error.
func (s *Stream) heartbeatLoop(conn *polygon.Conn, done <-chan struct{}) {
	interval := s.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if !s.IsConnected() {
				continue
			}
			if err := conn.Ping(); err != nil {
				return
			}
		}
	}
}

func (s *Stream) setStatus(status domain.ConnStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Status = status
}

// markSubscribed transitions to subscribed and resets the reconnect attempt
// counter.
func (s *Stream) markSubscribed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Status = domain.StatusSubscribed
	s.state.ReconnectAttempt = 0
}

func (s *Stream) bumpAttempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.ReconnectAttempt++
	return s.state.ReconnectAttempt
}

func (s *Stream) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.LastMessageAtMs = time.Now().UnixMilli()
}
