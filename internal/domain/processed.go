package domain

import "time"

// ProcessedStatus marks how a leader trade was settled.
type ProcessedStatus string

const (
	ProcessedSuccess ProcessedStatus = "SUCCESS"
	ProcessedFailed  ProcessedStatus = "FAILED"
)

// ProcessedTrade is the dedup ledger: at most one row per
// (LeaderID, LeaderTradeID), enforced by a uniqueness constraint in the
// store. Written once, never updated. A row with any status means the trade
// must not be reprocessed.
type ProcessedTrade struct {
	ID            int64
	LeaderID      int64
	LeaderTradeID string
	TradeType     TradeSide
	Source        string
	Status        ProcessedStatus
	ProcessedAt   time.Time
}

// FailedTrade is an append-only audit row for a replication that failed
// after retry exhaustion.
type FailedTrade struct {
	ID             int64
	LeaderID       int64
	LeaderTradeID  string
	TradeType      TradeSide
	CopyRelationID int64
	AccountID      int64
	MarketID       string
	Side           OrderSide
	Price          string
	Size           string
	ErrorMessage   string
	RetryCount     int
	FailedAt       time.Time
}
