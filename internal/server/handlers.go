package server

import (
	"encoding/json"
	"net/http"

	"github.com/alanyoungcy/triggerd/internal/domain"
)

// PriceReader is the read side of the in-process price cache.
type PriceReader interface {
	Get(symbol string) (domain.Quote, bool)
	All() map[string]domain.Quote
}

// StatusReader exposes the stream client's connection state.
type StatusReader interface {
	IsConnected() bool
	Snapshot() domain.ConnectionState
}

// IndexReader exposes the trigger index size for the status endpoint.
type IndexReader interface {
	Size() int
}

// Handlers aggregates the ops endpoints' dependencies. Index may be nil in
// monitor mode.
type Handlers struct {
	Prices PriceReader
	Stream StatusReader
	Index  IndexReader
}

type quotePayload struct {
	Symbol    string  `json:"symbol"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	Mid       float64 `json:"mid"`
	Spread    float64 `json:"spread"`
	Timestamp int64   `json:"timestamp"`
	Origin    string  `json:"origin"`
}

func toPayload(q domain.Quote) quotePayload {
	return quotePayload{
		Symbol:    q.Symbol,
		Bid:       q.Bid,
		Ask:       q.Ask,
		Mid:       q.Mid,
		Spread:    q.Spread,
		Timestamp: q.Timestamp,
		Origin:    string(q.Origin),
	}
}

// Health reports liveness and stream connectivity.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"connected": h.Stream.IsConnected(),
	})
}

// AllPrices returns every cached quote keyed by symbol.
func (h *Handlers) AllPrices(w http.ResponseWriter, r *http.Request) {
	all := h.Prices.All()
	out := make(map[string]quotePayload, len(all))
	for symbol, q := range all {
		out[symbol] = toPayload(q)
	}
	writeJSON(w, http.StatusOK, out)
}

// Price returns the cached quote for one symbol ("EUR/USD" style paths are
// matched by the trailing wildcard route).
func (h *Handlers) Price(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	q, ok := h.Prices.Get(symbol)
	if !ok {
		writeError(w, http.StatusNotFound, "no quote for symbol")
		return
	}
	writeJSON(w, http.StatusOK, toPayload(q))
}

// Status returns a connection-state snapshot and index size.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	snap := h.Stream.Snapshot()

	out := map[string]any{
		"status":             string(snap.Status),
		"reconnect_attempt":  snap.ReconnectAttempt,
		"last_message_at_ms": snap.LastMessageAtMs,
	}
	if h.Index != nil {
		out["indexed_positions"] = h.Index.Size()
	}
	writeJSON(w, http.StatusOK, out)
}

// writeJSON marshals v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
