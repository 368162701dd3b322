package trigger

import (
	"time"

	"github.com/alanyoungcy/triggerd/internal/domain"
)

// Dispatcher is what the evaluator hands detected crossings to. The close
// coordinator implements it; its Blocked check covers both the "closing"
// mark and the post-trigger cooldown.
type Dispatcher interface {
	Blocked(positionID string) bool
	Dispatch(events []domain.TriggerEvent)
}

// Evaluator scans one symbol's indexed positions on every accepted quote
// and emits at most one TriggerEvent per position per pass. It runs on the
// stream's message-handling goroutine and never blocks on I/O.
type Evaluator struct {
	index    *Index
	disp     Dispatcher
	throttle time.Duration

	now func() time.Time
}

// NewEvaluator creates an evaluator. throttle is the coarse per-position
// re-evaluation gap that bounds CPU under bursty ticks.
func NewEvaluator(index *Index, disp Dispatcher, throttle time.Duration) *Evaluator {
	return &Evaluator{
		index:    index,
		disp:     disp,
		throttle: throttle,
		now:      time.Now,
	}
}

// HandleQuote evaluates every indexed position on the quote's symbol. All
// hits for the tick are collected before any dispatch begins.
func (e *Evaluator) HandleQuote(q domain.Quote) {
	positions := e.index.ForSymbol(q.Symbol)
	if len(positions) == 0 {
		return
	}

	nowMs := e.now().UnixMilli()
	throttleMs := e.throttle.Milliseconds()

	var hits []domain.TriggerEvent
	for _, p := range positions {
		if e.disp.Blocked(p.ID) {
			continue
		}
		if throttleMs > 0 && nowMs-p.LastEvalMs < throttleMs {
			continue
		}
		e.index.MarkEvaluated(p.Symbol, p.ID, nowMs)

		if ev, ok := Check(p, q.Bid, q.Ask, nowMs); ok {
			hits = append(hits, ev)
		}
	}

	if len(hits) > 0 {
		e.disp.Dispatch(hits)
	}
}

// Check applies the side-aware fill rules to one position. Stop-loss is
// evaluated before take-profit and short-circuits, so a position can never
// be both SL- and TP-triggered on the same tick.
//
// Long positions close at the bid: SL hits when bid <= stopLoss, TP when
// bid >= takeProfit. Short positions close at the ask: SL hits when
// ask >= stopLoss, TP when ask <= takeProfit.
func Check(p domain.TriggerablePosition, bid, ask float64, nowMs int64) (domain.TriggerEvent, bool) {
	price := p.EffectivePrice(bid, ask)

	if p.StopLoss != nil {
		sl := *p.StopLoss
		hit := (p.Side == domain.SideLong && price <= sl) ||
			(p.Side == domain.SideShort && price >= sl)
		if hit {
			return domain.TriggerEvent{
				PositionID:   p.ID,
				Symbol:       p.Symbol,
				CrossedPrice: price,
				Reason:       domain.ReasonStopLoss,
				DetectedAtMs: nowMs,
			}, true
		}
	}

	if p.TakeProfit != nil {
		tp := *p.TakeProfit
		hit := (p.Side == domain.SideLong && price >= tp) ||
			(p.Side == domain.SideShort && price <= tp)
		if hit {
			return domain.TriggerEvent{
				PositionID:   p.ID,
				Symbol:       p.Symbol,
				CrossedPrice: price,
				Reason:       domain.ReasonTakeProfit,
				DetectedAtMs: nowMs,
			}, true
		}
	}

	return domain.TriggerEvent{}, false
}
