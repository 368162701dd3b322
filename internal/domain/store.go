package domain

import "context"

// PositionStore is the read boundary to the durable position store. Only the
// query the trigger index needs is exposed; everything else about position
// persistence belongs to the trading core.
type PositionStore interface {
	// SelectOpenWithTriggers returns every open position that has a
	// non-null stop-loss or take-profit.
	SelectOpenWithTriggers(ctx context.Context) ([]TriggerablePosition, error)
}

// PositionCloser is the boundary to the trading core's close-position
// operation. Implementations must return an error wrapping ErrCloseConflict
// when the position was (likely) already closed elsewhere.
type PositionCloser interface {
	CloseAutomatic(ctx context.Context, positionID string, price float64, reason TriggerReason) error
}

// PriceStore is the write boundary to the shared durable price cache read by
// consumer processes that do not hold a stream connection.
type PriceStore interface {
	BulkUpsert(ctx context.Context, updates []PriceUpdate) error
	Get(ctx context.Context, symbol string) (PriceUpdate, error)
}

// BlobWriter stores an opaque object under a path. Used for periodic price
// snapshot archival.
type BlobWriter interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
}
