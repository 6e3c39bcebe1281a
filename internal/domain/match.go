package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SellMatchRecord is one successfully submitted sell replication,
// aggregating every buy tracking it consumed. Immutable once written.
// TotalMatchedQuantity and TotalRealizedPnl equal the sums over the
// record's details.
type SellMatchRecord struct {
	ID                   int64
	CopyRelationID       int64
	SellOrderID          string
	LeaderSellTradeID    string
	MarketID             string
	OutcomeIndex         int
	TotalMatchedQuantity decimal.Decimal
	SellPrice            decimal.Decimal
	TotalRealizedPnl     decimal.Decimal
	CreatedAt            time.Time
}

// SellMatchDetail is the contribution of one buy tracking to a sell match.
// RealizedPnl = (SellPrice - BuyPrice) * MatchedQuantity.
type SellMatchDetail struct {
	ID              int64
	MatchRecordID   int64
	TrackingID      int64
	BuyOrderID      string
	MatchedQuantity decimal.Decimal
	BuyPrice        decimal.Decimal
	SellPrice       decimal.Decimal
	RealizedPnl     decimal.Decimal
}
