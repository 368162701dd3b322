package polygon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RESTClient is the fallback price source used before the stream warms up
// and by monitor tooling. It exposes only the two lookups the engine needs.
type RESTClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewRESTClient creates a REST client for the provider HTTP API.
func NewRESTClient(baseURL, apiKey string) *RESTClient {
	return &RESTClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type lastQuoteResponse struct {
	Status string `json:"status"`
	Last   struct {
		Bid       float64 `json:"bid"`
		Ask       float64 `json:"ask"`
		Timestamp int64   `json:"timestamp"` // Unix milliseconds
	} `json:"last"`
}

type prevCloseResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Open  float64 `json:"o"`
		Close float64 `json:"c"`
		High  float64 `json:"h"`
		Low   float64 `json:"l"`
		EndMs int64   `json:"t"`
	} `json:"results"`
}

// LastQuote fetches the most recent bid/ask for a pair like "EUR/USD".
func (c *RESTClient) LastQuote(ctx context.Context, pair string) (QuoteEvent, error) {
	from, to, err := splitPair(pair)
	if err != nil {
		return QuoteEvent{}, err
	}

	var resp lastQuoteResponse
	path := fmt.Sprintf("/v1/last_quote/currencies/%s/%s", from, to)
	if err := c.get(ctx, path, &resp); err != nil {
		return QuoteEvent{}, err
	}
	if resp.Last.Bid == 0 && resp.Last.Ask == 0 {
		return QuoteEvent{}, fmt.Errorf("polygon: no last quote for %s", pair)
	}

	return QuoteEvent{
		Pair:      pair,
		Bid:       resp.Last.Bid,
		Ask:       resp.Last.Ask,
		Timestamp: resp.Last.Timestamp,
	}, nil
}

// PrevClose fetches the previous daily bar for a pair. Used to seed prices
// for symbols that have not ticked yet.
func (c *RESTClient) PrevClose(ctx context.Context, pair string) (AggregateEvent, error) {
	ticker := "C:" + strings.ReplaceAll(pair, "/", "")

	var resp prevCloseResponse
	path := fmt.Sprintf("/v2/aggs/ticker/%s/prev", ticker)
	if err := c.get(ctx, path, &resp); err != nil {
		return AggregateEvent{}, err
	}
	if len(resp.Results) == 0 {
		return AggregateEvent{}, fmt.Errorf("polygon: no previous close for %s", pair)
	}

	r := resp.Results[0]
	return AggregateEvent{
		Pair:  pair,
		Open:  r.Open,
		Close: r.Close,
		High:  r.High,
		Low:   r.Low,
		EndMs: r.EndMs,
	}, nil
}

func (c *RESTClient) get(ctx context.Context, path string, out any) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("polygon: parse url: %w", err)
	}
	q := u.Query()
	q.Set("apiKey", c.apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("polygon: build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("polygon: get %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("polygon: get %s: unexpected status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("polygon: decode %s: %w", path, err)
	}
	return nil
}

func splitPair(pair string) (string, string, error) {
	parts := strings.Split(pair, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("polygon: malformed pair %q", pair)
	}
	return parts[0], parts[1], nil
}
