package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// LeaderStore persists observed leader wallets.
type LeaderStore interface {
	GetByID(ctx context.Context, id int64) (Leader, error)
	GetByAddress(ctx context.Context, address string) (Leader, error)
	ListEnabled(ctx context.Context) ([]Leader, error)
}

// AccountStore persists local trading accounts.
type AccountStore interface {
	GetByID(ctx context.Context, id int64) (Account, error)
	ListEnabled(ctx context.Context) ([]Account, error)
}

// CopyRelationStore persists copy-trading configurations. The engine only
// reads relations; CRUD belongs to the administrative layer.
type CopyRelationStore interface {
	GetByID(ctx context.Context, id int64) (CopyRelation, error)
	ListEnabledByLeader(ctx context.Context, leaderID int64) ([]CopyRelation, error)
	ListEnabled(ctx context.Context) ([]CopyRelation, error)
}

// ProcessedTradeStore is the dedup ledger. Insert returns ErrAlreadyExists
// when another writer won the race for the same (leaderID, leaderTradeID);
// the caller must re-read and treat the existing row as authoritative.
type ProcessedTradeStore interface {
	Get(ctx context.Context, leaderID int64, leaderTradeID string) (ProcessedTrade, error)
	Insert(ctx context.Context, rec ProcessedTrade) error
}

// FailedTradeStore persists the append-only failure audit log.
type FailedTradeStore interface {
	Get(ctx context.Context, leaderID int64, leaderTradeID string) (FailedTrade, error)
	Insert(ctx context.Context, rec FailedTrade) error
}

// TrackingStore persists open buy positions.
type TrackingStore interface {
	Create(ctx context.Context, t CopyOrderTracking) (int64, error)
	// ListOpen returns trackings with remaining quantity, oldest first.
	ListOpen(ctx context.Context, relationID int64, marketID string, outcomeIndex int) ([]CopyOrderTracking, error)
	// ApplyMatch atomically moves qty from remaining to matched and
	// recomputes the status. It fails if remaining < qty.
	ApplyMatch(ctx context.Context, trackingID int64, qty decimal.Decimal) error
	CountCreatedSince(ctx context.Context, relationID int64, since time.Time) (int, error)
}

// SellMatchStore persists sell match records and their details.
type SellMatchStore interface {
	// CreateWithDetails writes the record and its details in one
	// transaction and returns the new record id.
	CreateWithDetails(ctx context.Context, rec SellMatchRecord, details []SellMatchDetail) (int64, error)
	SumRealizedPnlSince(ctx context.Context, relationID int64, since time.Time) (decimal.Decimal, error)
	ListByRelationSince(ctx context.Context, relationID int64, since time.Time) ([]SellMatchRecord, error)
}
