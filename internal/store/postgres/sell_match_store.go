package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/copybot/internal/domain"
)

// SellMatchStore implements domain.SellMatchStore using PostgreSQL.
type SellMatchStore struct {
	pool *pgxpool.Pool
}

// NewSellMatchStore creates a new SellMatchStore backed by the given pool.
func NewSellMatchStore(pool *pgxpool.Pool) *SellMatchStore {
	return &SellMatchStore{pool: pool}
}

// CreateWithDetails writes the match record and its details in one
// transaction and returns the record id. Either everything lands or
// nothing does.
func (s *SellMatchStore) CreateWithDetails(ctx context.Context, rec domain.SellMatchRecord, details []domain.SellMatchDetail) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: begin sell match tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var recordID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO sell_match_records (copy_relation_id, sell_order_id, leader_sell_trade_id,
			market_id, outcome_index, total_matched_quantity, sell_price, total_realized_pnl)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		rec.CopyRelationID, rec.SellOrderID, rec.LeaderSellTradeID,
		rec.MarketID, rec.OutcomeIndex, rec.TotalMatchedQuantity, rec.SellPrice, rec.TotalRealizedPnl,
	).Scan(&recordID)
	if err != nil {
		return 0, fmt.Errorf("postgres: insert sell match record for order %s: %w", rec.SellOrderID, err)
	}

	for _, d := range details {
		if _, err := tx.Exec(ctx, `
			INSERT INTO sell_match_details (match_record_id, tracking_id, buy_order_id,
				matched_quantity, buy_price, sell_price, realized_pnl)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			recordID, d.TrackingID, d.BuyOrderID,
			d.MatchedQuantity, d.BuyPrice, d.SellPrice, d.RealizedPnl,
		); err != nil {
			return 0, fmt.Errorf("postgres: insert sell match detail for tracking %d: %w", d.TrackingID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: commit sell match tx: %w", err)
	}
	return recordID, nil
}

// SumRealizedPnlSince sums the relation's realized P&L over records created
// at or after since.
func (s *SellMatchStore) SumRealizedPnlSince(ctx context.Context, relationID int64, since time.Time) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(total_realized_pnl), 0) FROM sell_match_records
		WHERE copy_relation_id = $1 AND created_at >= $2`,
		relationID, since,
	).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("postgres: sum realized pnl for relation %d: %w", relationID, err)
	}
	return sum, nil
}

// ListByRelationSince returns the relation's match records created at or
// after since, newest first.
func (s *SellMatchStore) ListByRelationSince(ctx context.Context, relationID int64, since time.Time) ([]domain.SellMatchRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, copy_relation_id, sell_order_id, leader_sell_trade_id, market_id,
			outcome_index, total_matched_quantity, sell_price, total_realized_pnl, created_at
		FROM sell_match_records
		WHERE copy_relation_id = $1 AND created_at >= $2
		ORDER BY created_at DESC`,
		relationID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list sell match records for relation %d: %w", relationID, err)
	}
	defer rows.Close()

	var recs []domain.SellMatchRecord
	for rows.Next() {
		var r domain.SellMatchRecord
		if err := rows.Scan(
			&r.ID, &r.CopyRelationID, &r.SellOrderID, &r.LeaderSellTradeID, &r.MarketID,
			&r.OutcomeIndex, &r.TotalMatchedQuantity, &r.SellPrice, &r.TotalRealizedPnl, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan sell match record: %w", err)
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

var _ domain.SellMatchStore = (*SellMatchStore)(nil)
