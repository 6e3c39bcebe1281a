package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/copybot/internal/domain"
)

// TrackingStore implements domain.TrackingStore using PostgreSQL.
type TrackingStore struct {
	pool *pgxpool.Pool
}

// NewTrackingStore creates a new TrackingStore backed by the given pool.
func NewTrackingStore(pool *pgxpool.Pool) *TrackingStore {
	return &TrackingStore{pool: pool}
}

// Create inserts a new tracking row and returns its id.
func (s *TrackingStore) Create(ctx context.Context, t domain.CopyOrderTracking) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO copy_order_trackings (copy_relation_id, account_id, leader_id,
			market_id, outcome_index, buy_order_id, leader_buy_trade_id,
			quantity, price, matched_quantity, remaining_quantity, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`,
		t.CopyRelationID, t.AccountID, t.LeaderID,
		t.MarketID, t.OutcomeIndex, t.BuyOrderID, t.LeaderBuyTradeID,
		t.Quantity, t.Price, t.MatchedQuantity, t.RemainingQuantity, t.Status,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: insert tracking for order %s: %w", t.BuyOrderID, err)
	}
	return id, nil
}

// ListOpen returns the relation's trackings with remaining quantity for one
// (market, outcome), oldest first. The ordering is the FIFO contract the
// sell matcher relies on.
func (s *TrackingStore) ListOpen(ctx context.Context, relationID int64, marketID string, outcomeIndex int) ([]domain.CopyOrderTracking, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, copy_relation_id, account_id, leader_id, market_id, outcome_index,
			buy_order_id, leader_buy_trade_id, quantity, price,
			matched_quantity, remaining_quantity, status, created_at, updated_at
		FROM copy_order_trackings
		WHERE copy_relation_id = $1 AND market_id = $2 AND outcome_index = $3
			AND remaining_quantity > 0
		ORDER BY created_at, id`,
		relationID, marketID, outcomeIndex,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open trackings for relation %d: %w", relationID, err)
	}
	defer rows.Close()

	var trackings []domain.CopyOrderTracking
	for rows.Next() {
		var t domain.CopyOrderTracking
		if err := rows.Scan(
			&t.ID, &t.CopyRelationID, &t.AccountID, &t.LeaderID, &t.MarketID, &t.OutcomeIndex,
			&t.BuyOrderID, &t.LeaderBuyTradeID, &t.Quantity, &t.Price,
			&t.MatchedQuantity, &t.RemainingQuantity, &t.Status, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan tracking: %w", err)
		}
		trackings = append(trackings, t)
	}
	return trackings, rows.Err()
}

// ApplyMatch atomically moves qty from remaining to matched and recomputes
// the status. The WHERE guard refuses to drive remaining below zero, so the
// matched+remaining==quantity invariant holds even if a concurrent sweep
// slipped past the serialization lock.
func (s *TrackingStore) ApplyMatch(ctx context.Context, trackingID int64, qty decimal.Decimal) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE copy_order_trackings
		SET matched_quantity = matched_quantity + $2,
			remaining_quantity = remaining_quantity - $2,
			status = CASE WHEN remaining_quantity - $2 = 0
				THEN 'fully_matched' ELSE 'partially_matched' END,
			updated_at = NOW()
		WHERE id = $1 AND remaining_quantity >= $2`,
		trackingID, qty,
	)
	if err != nil {
		return fmt.Errorf("postgres: apply match to tracking %d: %w", trackingID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: tracking %d has insufficient remaining quantity for %s", trackingID, qty)
	}
	return nil
}

// CountCreatedSince counts the relation's trackings created at or after
// since.
func (s *TrackingStore) CountCreatedSince(ctx context.Context, relationID int64, since time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM copy_order_trackings
		WHERE copy_relation_id = $1 AND created_at >= $2`,
		relationID, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count trackings for relation %d: %w", relationID, err)
	}
	return count, nil
}

var _ domain.TrackingStore = (*TrackingStore)(nil)
