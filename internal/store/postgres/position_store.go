package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/triggerd/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL. The
// positions table is owned by the trading core; this engine only reads the
// projection it needs for trigger evaluation.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given
// connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// SelectOpenWithTriggers returns every open position that carries a
// non-null stop-loss or take-profit.
func (s *PositionStore) SelectOpenWithTriggers(ctx context.Context) ([]domain.TriggerablePosition, error) {
	const query = `
		SELECT id, symbol, side, stop_loss, take_profit,
		       entry_price, size, owner_id, contest_id
		FROM positions
		WHERE status = 'open'
		  AND (stop_loss IS NOT NULL OR take_profit IS NOT NULL)`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: select open positions with triggers: %w", err)
	}
	defer rows.Close()

	positions, err := scanTriggerableRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan triggerable positions: %w", err)
	}
	return positions, nil
}

func scanTriggerableRows(rows pgx.Rows) ([]domain.TriggerablePosition, error) {
	var positions []domain.TriggerablePosition
	for rows.Next() {
		var p domain.TriggerablePosition
		var side string

		if err := rows.Scan(
			&p.ID, &p.Symbol, &side,
			&p.StopLoss, &p.TakeProfit,
			&p.EntryPrice, &p.Size,
			&p.OwnerID, &p.ContestID,
		); err != nil {
			return nil, err
		}
		p.Side = domain.PositionSide(side)
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Compile-time interface check.
var _ domain.PositionStore = (*PositionStore)(nil)
