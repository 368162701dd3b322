package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/triggerd/internal/domain"
)

// PriceStore implements domain.PriceStore using Redis hashes. Each symbol's
// price is stored at key "fx:price:{symbol}" with fields "bid", "ask" and
// "ts" (Unix millisecond timestamp). Consumer processes read the same keys.
type PriceStore struct {
	rdb *redis.Client
}

// NewPriceStore creates a PriceStore backed by the given Client.
func NewPriceStore(c *Client) *PriceStore {
	return &PriceStore{rdb: c.Underlying()}
}

func priceKey(symbol string) string {
	return "fx:price:" + symbol
}

// BulkUpsert writes every update in one pipeline round trip.
func (ps *PriceStore) BulkUpsert(ctx context.Context, updates []domain.PriceUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	pipe := ps.rdb.Pipeline()
	for _, u := range updates {
		pipe.HSet(ctx, priceKey(u.Symbol), map[string]interface{}{
			"bid": strconv.FormatFloat(u.Bid, 'f', -1, 64),
			"ask": strconv.FormatFloat(u.Ask, 'f', -1, 64),
			"ts":  strconv.FormatInt(u.Timestamp, 10),
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: bulk upsert %d prices: %w", len(updates), err)
	}
	return nil
}

// Get retrieves the stored price for one symbol. Returns domain.ErrNotFound
// when the key does not exist.
func (ps *PriceStore) Get(ctx context.Context, symbol string) (domain.PriceUpdate, error) {
	vals, err := ps.rdb.HGetAll(ctx, priceKey(symbol)).Result()
	if err != nil {
		return domain.PriceUpdate{}, fmt.Errorf("redis: get price %s: %w", symbol, err)
	}
	if len(vals) == 0 {
		return domain.PriceUpdate{}, domain.ErrNotFound
	}

	bid, err := strconv.ParseFloat(vals["bid"], 64)
	if err != nil {
		return domain.PriceUpdate{}, fmt.Errorf("redis: parse bid %s: %w", symbol, err)
	}
	ask, err := strconv.ParseFloat(vals["ask"], 64)
	if err != nil {
		return domain.PriceUpdate{}, fmt.Errorf("redis: parse ask %s: %w", symbol, err)
	}
	ts, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.PriceUpdate{}, fmt.Errorf("redis: parse ts %s: %w", symbol, err)
	}

	return domain.PriceUpdate{Symbol: symbol, Bid: bid, Ask: ask, Timestamp: ts}, nil
}

// Compile-time interface check.
var _ domain.PriceStore = (*PriceStore)(nil)
