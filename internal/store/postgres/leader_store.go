package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/copybot/internal/domain"
)

// LeaderStore implements domain.LeaderStore using PostgreSQL.
type LeaderStore struct {
	pool *pgxpool.Pool
}

// NewLeaderStore creates a new LeaderStore backed by the given pool.
func NewLeaderStore(pool *pgxpool.Pool) *LeaderStore {
	return &LeaderStore{pool: pool}
}

const leaderSelectCols = `id, address, name, enabled, created_at`

func scanLeader(row pgx.Row) (domain.Leader, error) {
	var l domain.Leader
	err := row.Scan(&l.ID, &l.Address, &l.Name, &l.Enabled, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Leader{}, domain.ErrNotFound
	}
	return l, err
}

// GetByID returns the leader with the given id.
func (s *LeaderStore) GetByID(ctx context.Context, id int64) (domain.Leader, error) {
	l, err := scanLeader(s.pool.QueryRow(ctx,
		`SELECT `+leaderSelectCols+` FROM leaders WHERE id = $1`, id))
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.Leader{}, fmt.Errorf("postgres: get leader %d: %w", id, err)
	}
	return l, err
}

// GetByAddress returns the leader with the given wallet address.
func (s *LeaderStore) GetByAddress(ctx context.Context, address string) (domain.Leader, error) {
	l, err := scanLeader(s.pool.QueryRow(ctx,
		`SELECT `+leaderSelectCols+` FROM leaders WHERE LOWER(address) = LOWER($1)`, address))
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.Leader{}, fmt.Errorf("postgres: get leader by address %s: %w", address, err)
	}
	return l, err
}

// ListEnabled returns all enabled leaders.
func (s *LeaderStore) ListEnabled(ctx context.Context) ([]domain.Leader, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+leaderSelectCols+` FROM leaders WHERE enabled ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list enabled leaders: %w", err)
	}
	defer rows.Close()

	var leaders []domain.Leader
	for rows.Next() {
		var l domain.Leader
		if err := rows.Scan(&l.ID, &l.Address, &l.Name, &l.Enabled, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan leader: %w", err)
		}
		leaders = append(leaders, l)
	}
	return leaders, rows.Err()
}

var _ domain.LeaderStore = (*LeaderStore)(nil)
