package polygon

import (
	"encoding/json"
	"fmt"
)

// Provider status values carried by statusMessage frames.
const (
	statusConnected   = "connected"
	statusAuthSuccess = "auth_success"
	statusAuthFailed  = "auth_failed"
	statusAuthTimeout = "auth_timeout"
	statusSuccess     = "success"
)

// Event type tags. Every object inside an inbound frame carries one in its
// "ev" field.
const (
	evStatus    = "status"
	evQuote     = "C"
	evAggregate = "CA"
)

// Event is the decoded union of the frame kinds this client understands.
// Exactly one of the pointers is non-nil.
type Event struct {
	Status    *StatusEvent
	Quote     *QuoteEvent
	Aggregate *AggregateEvent
}

// StatusEvent reports connection and subscription lifecycle changes
// (connected, auth_success, auth_failed, subscription acks).
type StatusEvent struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// AuthOK reports whether this status confirms a successful authentication.
func (s StatusEvent) AuthOK() bool { return s.Status == statusAuthSuccess }

// AuthRejected reports whether this status is a terminal auth failure.
func (s StatusEvent) AuthRejected() bool {
	return s.Status == statusAuthFailed || s.Status == statusAuthTimeout
}

// QuoteEvent is a live top-of-book tick for one currency pair.
type QuoteEvent struct {
	Pair      string  `json:"p"`
	Bid       float64 `json:"b"`
	Ask       float64 `json:"a"`
	Timestamp int64   `json:"t"` // Unix milliseconds
}

// AggregateEvent is a per-second OHLC bar. It carries no bid/ask; the engine
// synthesizes them from the close price and the estimated spread.
type AggregateEvent struct {
	Pair    string  `json:"pair"`
	Open    float64 `json:"o"`
	Close   float64 `json:"c"`
	High    float64 `json:"h"`
	Low     float64 `json:"l"`
	StartMs int64   `json:"s"`
	EndMs   int64   `json:"e"`
}

// authRequest and subscribeRequest are the two outbound command shapes.
type wsCommand struct {
	Action string `json:"action"`
	Params string `json:"params"`
}

// rawEvent is the envelope used to sniff the type tag before decoding the
// full event.
type rawEvent struct {
	Ev string `json:"ev"`
}

// DecodeFrame parses one inbound frame, which is a JSON array of events, and
// returns the events it understands. Objects with an unknown tag are
// skipped; a frame that is not valid JSON is an error for the caller to log
// and drop.
func DecodeFrame(data []byte) ([]Event, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("polygon: decode frame: %w", err)
	}

	events := make([]Event, 0, len(raws))
	for _, raw := range raws {
		var env rawEvent
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, fmt.Errorf("polygon: decode event envelope: %w", err)
		}

		switch env.Ev {
		case evStatus:
			var s StatusEvent
			if err := json.Unmarshal(raw, &s); err != nil {
				return nil, fmt.Errorf("polygon: decode status event: %w", err)
			}
			events = append(events, Event{Status: &s})
		case evQuote:
			var q QuoteEvent
			if err := json.Unmarshal(raw, &q); err != nil {
				return nil, fmt.Errorf("polygon: decode quote event: %w", err)
			}
			events = append(events, Event{Quote: &q})
		case evAggregate:
			var a AggregateEvent
			if err := json.Unmarshal(raw, &a); err != nil {
				return nil, fmt.Errorf("polygon: decode aggregate event: %w", err)
			}
			events = append(events, Event{Aggregate: &a})
		}
	}

	return events, nil
}
