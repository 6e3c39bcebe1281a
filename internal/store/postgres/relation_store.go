package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/copybot/internal/domain"
)

// CopyRelationStore implements domain.CopyRelationStore using PostgreSQL.
type CopyRelationStore struct {
	pool *pgxpool.Pool
}

// NewCopyRelationStore creates a new CopyRelationStore backed by the given pool.
func NewCopyRelationStore(pool *pgxpool.Pool) *CopyRelationStore {
	return &CopyRelationStore{pool: pool}
}

const relationSelectCols = `id, account_id, leader_id, mode, ratio, fixed_amount,
	min_order_size, max_order_size, max_daily_loss, max_daily_orders,
	price_tolerance, delay_seconds, support_sell, enabled, created_at, updated_at`

func scanRelationRow(row pgx.Row) (domain.CopyRelation, error) {
	var r domain.CopyRelation
	err := row.Scan(
		&r.ID, &r.AccountID, &r.LeaderID, &r.Mode, &r.Ratio, &r.FixedAmount,
		&r.MinOrderSize, &r.MaxOrderSize, &r.MaxDailyLoss, &r.MaxDailyOrders,
		&r.PriceTolerance, &r.DelaySeconds, &r.SupportSell, &r.Enabled,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.CopyRelation{}, domain.ErrNotFound
	}
	return r, err
}

func scanRelationRows(rows pgx.Rows) ([]domain.CopyRelation, error) {
	var rels []domain.CopyRelation
	for rows.Next() {
		var r domain.CopyRelation
		if err := rows.Scan(
			&r.ID, &r.AccountID, &r.LeaderID, &r.Mode, &r.Ratio, &r.FixedAmount,
			&r.MinOrderSize, &r.MaxOrderSize, &r.MaxDailyLoss, &r.MaxDailyOrders,
			&r.PriceTolerance, &r.DelaySeconds, &r.SupportSell, &r.Enabled,
			&r.CreatedAt, &r.UpdatedAt,
		); err != nil {
			return nil, err
		}
		rels = append(rels, r)
	}
	return rels, rows.Err()
}

// GetByID returns the relation with the given id.
func (s *CopyRelationStore) GetByID(ctx context.Context, id int64) (domain.CopyRelation, error) {
	r, err := scanRelationRow(s.pool.QueryRow(ctx,
		`SELECT `+relationSelectCols+` FROM copy_relations WHERE id = $1`, id))
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.CopyRelation{}, fmt.Errorf("postgres: get relation %d: %w", id, err)
	}
	return r, err
}

// ListEnabledByLeader returns all enabled relations bound to the leader.
func (s *CopyRelationStore) ListEnabledByLeader(ctx context.Context, leaderID int64) ([]domain.CopyRelation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+relationSelectCols+` FROM copy_relations WHERE leader_id = $1 AND enabled ORDER BY id`,
		leaderID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list relations for leader %d: %w", leaderID, err)
	}
	defer rows.Close()

	rels, err := scanRelationRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan relations for leader %d: %w", leaderID, err)
	}
	return rels, nil
}

// ListEnabled returns all enabled relations.
func (s *CopyRelationStore) ListEnabled(ctx context.Context) ([]domain.CopyRelation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+relationSelectCols+` FROM copy_relations WHERE enabled ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list enabled relations: %w", err)
	}
	defer rows.Close()

	rels, err := scanRelationRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan enabled relations: %w", err)
	}
	return rels, nil
}

var _ domain.CopyRelationStore = (*CopyRelationStore)(nil)
