package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CopyMode selects how the replicated buy quantity is derived from a
// leader's trade.
type CopyMode string

const (
	// CopyModeRatio scales the leader's size by a fixed ratio.
	CopyModeRatio CopyMode = "RATIO"
	// CopyModeFixed spends a fixed USDC amount per leader buy, regardless
	// of the leader's size.
	CopyModeFixed CopyMode = "FIXED"
)

// CopyRelation binds one local account to one leader under one sizing and
// risk policy. The engine treats it as read-only; create/edit/delete happens
// through the administrative layer.
type CopyRelation struct {
	ID        int64
	AccountID int64
	LeaderID  int64

	Mode        CopyMode
	Ratio       decimal.Decimal // leader size multiplier (RATIO mode)
	FixedAmount decimal.Decimal // USDC per buy (FIXED mode)

	MinOrderSize   decimal.Decimal // skip buys below this notional (RATIO mode)
	MaxOrderSize   decimal.Decimal // clamp buys above this notional (RATIO mode)
	MaxDailyLoss   decimal.Decimal // deny buys once today's realized loss reaches this
	MaxDailyOrders int             // deny buys once this many trackings exist today

	PriceTolerance decimal.Decimal // percent the limit price may chase the leader's
	DelaySeconds   int             // wait before replicating a buy
	SupportSell    bool
	Enabled        bool

	CreatedAt time.Time
	UpdatedAt time.Time
}
