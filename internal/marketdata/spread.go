package marketdata

import (
	"sync"

	"github.com/alanyoungcy/triggerd/internal/domain"
)

// Blend weights for the spread EWMA. Ordinary samples move the estimate at
// standardWeight; samples that deviate more than outlierFactor from the
// current estimate are likely bad data and are blended in at outlierWeight.
const (
	standardWeight = 0.3
	outlierWeight  = 0.1
	outlierFactor  = 5.0
)

// Static spread fallbacks by instrument class, used only before any organic
// sample has ever been observed for a symbol.
var classSpreads = map[domain.InstrumentClass]float64{
	domain.ClassMajor:  0.00012,
	domain.ClassCross:  0.00030,
	domain.ClassExotic: 0.00120,
}

// SpreadEstimator maintains one exponentially weighted spread estimate per
// symbol. It is the only source of synthetic bid/ask when aggregate-only
// data has to be converted into a quote. Safe for concurrent use.
type SpreadEstimator struct {
	mu        sync.RWMutex
	estimates map[string]float64
	classes   map[string]domain.InstrumentClass
}

// NewSpreadEstimator creates an estimator. classes maps symbols to their
// instrument class for the static fallback; unmapped symbols fall back as
// exotics.
func NewSpreadEstimator(classes map[string]domain.InstrumentClass) *SpreadEstimator {
	return &SpreadEstimator{
		estimates: make(map[string]float64),
		classes:   classes,
	}
}

// Observe feeds one organic spread sample into the symbol's estimate.
// Non-positive samples are ignored.
func (e *SpreadEstimator) Observe(symbol string, spread float64) {
	if spread <= 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	current, ok := e.estimates[symbol]
	if !ok || current <= 0 {
		e.estimates[symbol] = spread
		return
	}

	weight := standardWeight
	if spread > current*outlierFactor || spread < current/outlierFactor {
		weight = outlierWeight
	}
	e.estimates[symbol] = weight*spread + (1-weight)*current
}

// Estimate returns the current spread estimate for a symbol, falling back to
// the static class table when no organic sample has ever been observed.
func (e *SpreadEstimator) Estimate(symbol string) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if s, ok := e.estimates[symbol]; ok && s > 0 {
		return s
	}

	class, ok := e.classes[symbol]
	if !ok {
		class = domain.ClassExotic
	}
	return classSpreads[class]
}

// Synthesize derives a bid/ask pair around a single trade or bar price using
// the symbol's estimated spread.
func (e *SpreadEstimator) Synthesize(symbol string, price float64) (bid, ask float64) {
	half := e.Estimate(symbol) / 2
	return price - half, price + half
}

// ClassesFromLists builds a symbol→class map from the configured major and
// cross lists; everything subscribed but absent from both is an exotic.
func ClassesFromLists(majors, crosses []string) map[string]domain.InstrumentClass {
	classes := make(map[string]domain.InstrumentClass, len(majors)+len(crosses))
	for _, s := range majors {
		classes[s] = domain.ClassMajor
	}
	for _, s := range crosses {
		classes[s] = domain.ClassCross
	}
	return classes
}
