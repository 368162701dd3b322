package marketdata

import (
	"sync"

	"github.com/alanyoungcy/triggerd/internal/domain"
)

// PriceCache is the process-wide latest-quote-per-symbol map. It is read by
// the trigger evaluator, the ops server, and the snapshot archiver, and
// written only through Put, which enforces the timestamp ordering guard:
// a stale or synthesized update never overwrites a fresher quote.
type PriceCache struct {
	mu     sync.RWMutex
	quotes map[string]domain.Quote
}

// NewPriceCache creates an empty cache.
func NewPriceCache() *PriceCache {
	return &PriceCache{quotes: make(map[string]domain.Quote)}
}

// Put stores the quote unless a quote with an equal-or-later timestamp is
// already held for the symbol. Organic stream quotes win ties against
// non-organic ones so a synthesized quote can never mask a real tick of the
// same millisecond. Returns true when the cache was updated.
func (c *PriceCache) Put(q domain.Quote) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	held, ok := c.quotes[q.Symbol]
	if ok {
		if q.Timestamp < held.Timestamp {
			return false
		}
		if q.Timestamp == held.Timestamp && q.Origin != domain.OriginStream {
			return false
		}
	}

	c.quotes[q.Symbol] = q
	return true
}

// Get returns the latest quote for a symbol.
func (c *PriceCache) Get(symbol string) (domain.Quote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	q, ok := c.quotes[symbol]
	return q, ok
}

// All returns a copy of the whole cache. Safe to mutate.
func (c *PriceCache) All() map[string]domain.Quote {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]domain.Quote, len(c.quotes))
	for s, q := range c.quotes {
		out[s] = q
	}
	return out
}

// Len returns the number of symbols held.
func (c *PriceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.quotes)
}
