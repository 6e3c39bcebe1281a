package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/copybot/internal/domain"
)

// uniqueViolation is the PostgreSQL error code for a unique constraint
// violation.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// ProcessedTradeStore implements domain.ProcessedTradeStore using
// PostgreSQL. The uq_processed_trades constraint is the idempotency anchor:
// concurrent duplicate deliveries race on the insert and exactly one wins.
type ProcessedTradeStore struct {
	pool *pgxpool.Pool
}

// NewProcessedTradeStore creates a new ProcessedTradeStore backed by the
// given pool.
func NewProcessedTradeStore(pool *pgxpool.Pool) *ProcessedTradeStore {
	return &ProcessedTradeStore{pool: pool}
}

// Get returns the ledger row for (leaderID, leaderTradeID), or
// domain.ErrNotFound.
func (s *ProcessedTradeStore) Get(ctx context.Context, leaderID int64, leaderTradeID string) (domain.ProcessedTrade, error) {
	var p domain.ProcessedTrade
	err := s.pool.QueryRow(ctx, `
		SELECT id, leader_id, leader_trade_id, trade_type, source, status, processed_at
		FROM processed_trades
		WHERE leader_id = $1 AND leader_trade_id = $2`,
		leaderID, leaderTradeID,
	).Scan(&p.ID, &p.LeaderID, &p.LeaderTradeID, &p.TradeType, &p.Source, &p.Status, &p.ProcessedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ProcessedTrade{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.ProcessedTrade{}, fmt.Errorf("postgres: get processed trade %d/%s: %w", leaderID, leaderTradeID, err)
	}
	return p, nil
}

// Insert writes the ledger row. It returns domain.ErrAlreadyExists when a
// row for the same (leaderID, leaderTradeID) already exists.
func (s *ProcessedTradeStore) Insert(ctx context.Context, rec domain.ProcessedTrade) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO processed_trades (leader_id, leader_trade_id, trade_type, source, status, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.LeaderID, rec.LeaderTradeID, rec.TradeType, rec.Source, rec.Status, rec.ProcessedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("postgres: insert processed trade %d/%s: %w", rec.LeaderID, rec.LeaderTradeID, err)
	}
	return nil
}

var _ domain.ProcessedTradeStore = (*ProcessedTradeStore)(nil)
