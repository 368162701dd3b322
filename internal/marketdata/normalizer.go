// Package marketdata owns the quote pipeline: normalization, spread
// estimation, the in-process price cache, and the streaming client that
// feeds them.
package marketdata

import (
	"fmt"
	"math"

	"github.com/alanyoungcy/triggerd/internal/domain"
)

// Normalizer converts raw provider prices into canonical quotes, enforcing
// the bid < ask invariant and the instrument's decimal precision.
type Normalizer struct {
	decimals        map[string]int
	defaultDecimals int
}

// NewNormalizer creates a Normalizer. decimals maps a symbol to its
// canonical precision; symbols not listed use defaultDecimals.
func NewNormalizer(decimals map[string]int, defaultDecimals int) *Normalizer {
	if defaultDecimals <= 0 {
		defaultDecimals = 5
	}
	return &Normalizer{
		decimals:        decimals,
		defaultDecimals: defaultDecimals,
	}
}

// Normalize validates and canonicalizes one tick. Corrupt upstream data
// (bid >= ask, non-positive prices) is rejected with domain.ErrInvalidQuote
// and must never reach the price cache.
func (n *Normalizer) Normalize(symbol string, bid, ask float64, tsMillis int64, origin domain.QuoteOrigin) (domain.Quote, error) {
	if bid <= 0 || ask <= 0 {
		return domain.Quote{}, fmt.Errorf("normalize %s: non-positive price (bid=%v ask=%v): %w",
			symbol, bid, ask, domain.ErrInvalidQuote)
	}
	if bid >= ask {
		return domain.Quote{}, fmt.Errorf("normalize %s: crossed book (bid=%v ask=%v): %w",
			symbol, bid, ask, domain.ErrInvalidQuote)
	}

	dec := n.Decimals(symbol)
	bid = roundTo(bid, dec)
	ask = roundTo(ask, dec)
	if bid >= ask {
		// Rounding collapsed the book; the tick carries no usable spread.
		return domain.Quote{}, fmt.Errorf("normalize %s: book collapsed after rounding: %w",
			symbol, domain.ErrInvalidQuote)
	}

	// Mid is recomputed and clamped into [bid, ask] to guard against
	// rounding drift.
	mid := roundTo((bid+ask)/2, dec)
	if mid < bid {
		mid = bid
	}
	if mid > ask {
		mid = ask
	}

	return domain.Quote{
		Symbol:    symbol,
		Bid:       bid,
		Ask:       ask,
		Mid:       mid,
		Spread:    ask - bid,
		Timestamp: tsMillis,
		Origin:    origin,
	}, nil
}

// Decimals returns the canonical decimal precision for a symbol.
func (n *Normalizer) Decimals(symbol string) int {
	if d, ok := n.decimals[symbol]; ok && d > 0 {
		return d
	}
	return n.defaultDecimals
}

func roundTo(v float64, decimals int) float64 {
	pow := math.Pow10(decimals)
	return math.Round(v*pow) / pow
}
