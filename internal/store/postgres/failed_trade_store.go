package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/copybot/internal/domain"
)

// FailedTradeStore implements domain.FailedTradeStore using PostgreSQL.
// The table is append-only audit data.
type FailedTradeStore struct {
	pool *pgxpool.Pool
}

// NewFailedTradeStore creates a new FailedTradeStore backed by the given pool.
func NewFailedTradeStore(pool *pgxpool.Pool) *FailedTradeStore {
	return &FailedTradeStore{pool: pool}
}

// Get returns the oldest failure row for (leaderID, leaderTradeID), or
// domain.ErrNotFound. Used as a secondary dedup guard.
func (s *FailedTradeStore) Get(ctx context.Context, leaderID int64, leaderTradeID string) (domain.FailedTrade, error) {
	var f domain.FailedTrade
	err := s.pool.QueryRow(ctx, `
		SELECT id, leader_id, leader_trade_id, trade_type, copy_relation_id, account_id,
			market_id, side, price, size, error_message, retry_count, failed_at
		FROM failed_trades
		WHERE leader_id = $1 AND leader_trade_id = $2
		ORDER BY id
		LIMIT 1`,
		leaderID, leaderTradeID,
	).Scan(
		&f.ID, &f.LeaderID, &f.LeaderTradeID, &f.TradeType, &f.CopyRelationID, &f.AccountID,
		&f.MarketID, &f.Side, &f.Price, &f.Size, &f.ErrorMessage, &f.RetryCount, &f.FailedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.FailedTrade{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.FailedTrade{}, fmt.Errorf("postgres: get failed trade %d/%s: %w", leaderID, leaderTradeID, err)
	}
	return f, nil
}

// Insert appends a failure audit row.
func (s *FailedTradeStore) Insert(ctx context.Context, rec domain.FailedTrade) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO failed_trades (leader_id, leader_trade_id, trade_type, copy_relation_id,
			account_id, market_id, side, price, size, error_message, retry_count, failed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rec.LeaderID, rec.LeaderTradeID, rec.TradeType, rec.CopyRelationID,
		rec.AccountID, rec.MarketID, rec.Side, rec.Price, rec.Size,
		rec.ErrorMessage, rec.RetryCount, rec.FailedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert failed trade %d/%s: %w", rec.LeaderID, rec.LeaderTradeID, err)
	}
	return nil
}

var _ domain.FailedTradeStore = (*FailedTradeStore)(nil)
