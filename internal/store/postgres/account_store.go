package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/copybot/internal/domain"
)

// AccountStore implements domain.AccountStore using PostgreSQL. Secrets are
// stored as ciphertext; decryption is the credential vault's job.
type AccountStore struct {
	pool *pgxpool.Pool
}

// NewAccountStore creates a new AccountStore backed by the given pool.
func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

const accountSelectCols = `id, name, wallet_address, proxy_address, private_key,
	api_key, api_secret, api_passphrase, enabled, created_at`

func scanAccount(row pgx.Row) (domain.Account, error) {
	var a domain.Account
	err := row.Scan(
		&a.ID, &a.Name, &a.WalletAddress, &a.ProxyAddress, &a.PrivateKey,
		&a.APIKey, &a.APISecret, &a.APIPassphrase, &a.Enabled, &a.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Account{}, domain.ErrNotFound
	}
	return a, err
}

// GetByID returns the account with the given id.
func (s *AccountStore) GetByID(ctx context.Context, id int64) (domain.Account, error) {
	a, err := scanAccount(s.pool.QueryRow(ctx,
		`SELECT `+accountSelectCols+` FROM accounts WHERE id = $1`, id))
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.Account{}, fmt.Errorf("postgres: get account %d: %w", id, err)
	}
	return a, err
}

// ListEnabled returns all enabled accounts.
func (s *AccountStore) ListEnabled(ctx context.Context) ([]domain.Account, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+accountSelectCols+` FROM accounts WHERE enabled ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list enabled accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var a domain.Account
		if err := rows.Scan(
			&a.ID, &a.Name, &a.WalletAddress, &a.ProxyAddress, &a.PrivateKey,
			&a.APIKey, &a.APISecret, &a.APIPassphrase, &a.Enabled, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

var _ domain.AccountStore = (*AccountStore)(nil)
