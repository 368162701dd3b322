// Package domain holds the core types and interfaces shared by every layer
// of the trigger engine. It depends on nothing outside the standard library.
package domain

// QuoteOrigin records which source produced a quote. Origin matters for the
// cache ordering guard: organic stream ticks win timestamp ties against
// quotes derived from fallback sources.
type QuoteOrigin string

const (
	// OriginStream marks a live top-of-book tick from the provider stream.
	OriginStream QuoteOrigin = "stream"
	// OriginFallbackREST marks a quote fetched over the provider's REST API,
	// used to warm the cache and to cover stream gaps.
	OriginFallbackREST QuoteOrigin = "fallback_rest"
	// OriginSynthesized marks a bid/ask pair reconstructed from an aggregate
	// close price and the estimated spread.
	OriginSynthesized QuoteOrigin = "synthesized"
)

// Quote is a normalized top-of-book price for one instrument. Bid, Ask and
// Mid are rounded to the instrument's canonical precision and always satisfy
// Bid < Ask and Bid <= Mid <= Ask.
type Quote struct {
	Symbol    string
	Bid       float64
	Ask       float64
	Mid       float64
	Spread    float64
	Timestamp int64 // Unix milliseconds
	Origin    QuoteOrigin
}

// PriceUpdate is the durable-cache projection of a quote: just the fields
// consumer processes read, without origin or spread metadata.
type PriceUpdate struct {
	Symbol    string
	Bid       float64
	Ask       float64
	Timestamp int64 // Unix milliseconds
}

// InstrumentClass buckets instruments for static spread fallbacks when no
// organic spread sample has been observed yet.
type InstrumentClass string

const (
	ClassMajor  InstrumentClass = "major"
	ClassCross  InstrumentClass = "cross"
	ClassExotic InstrumentClass = "exotic"
)
