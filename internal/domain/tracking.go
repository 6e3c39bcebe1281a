package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TrackingStatus is the lifecycle of a replicated buy position.
//
//	filled --(partial sell match)--> partially_matched --(consumed)--> fully_matched
//	filled --(consumed in one match)--> fully_matched
type TrackingStatus string

const (
	TrackingFilled           TrackingStatus = "filled"
	TrackingPartiallyMatched TrackingStatus = "partially_matched"
	TrackingFullyMatched     TrackingStatus = "fully_matched"
)

// CopyOrderTracking records one successfully submitted buy replication and
// how much of it remains unmatched by later sells. Created by the buy
// executor, mutated only by the sell matcher. MatchedQuantity plus
// RemainingQuantity always equals Quantity.
type CopyOrderTracking struct {
	ID                int64
	CopyRelationID    int64
	AccountID         int64
	LeaderID          int64
	MarketID          string
	OutcomeIndex      int
	BuyOrderID        string // exchange order id
	LeaderBuyTradeID  string
	Quantity          decimal.Decimal
	Price             decimal.Decimal
	MatchedQuantity   decimal.Decimal
	RemainingQuantity decimal.Decimal
	Status            TrackingStatus
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// RecomputeStatus derives the status from the matched/remaining quantities.
func (t *CopyOrderTracking) RecomputeStatus() {
	switch {
	case t.RemainingQuantity.IsZero():
		t.Status = TrackingFullyMatched
	case t.MatchedQuantity.GreaterThan(decimal.Zero):
		t.Status = TrackingPartiallyMatched
	default:
		t.Status = TrackingFilled
	}
}
