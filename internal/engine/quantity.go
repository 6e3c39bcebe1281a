package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/copybot/internal/domain"
)

// ReplicationQuantity computes the proposed buy quantity for a leader trade
// under the relation's copy mode.
//
// RATIO scales the leader's size; FIXED spends a configured USDC amount at
// the leader's price and ignores the leader's size entirely.
func ReplicationQuantity(trade domain.LeaderTrade, rel domain.CopyRelation) (decimal.Decimal, error) {
	switch rel.Mode {
	case domain.CopyModeRatio:
		return trade.Size.Mul(rel.Ratio), nil
	case domain.CopyModeFixed:
		if rel.FixedAmount.LessThanOrEqual(decimal.Zero) {
			return decimal.Zero, fmt.Errorf("relation %d: fixed amount not configured: %w", rel.ID, domain.ErrInvalidPolicy)
		}
		if trade.Price.LessThanOrEqual(decimal.Zero) {
			return decimal.Zero, fmt.Errorf("relation %d: non-positive trade price: %w", rel.ID, domain.ErrInvalidPolicy)
		}
		return rel.FixedAmount.Div(trade.Price), nil
	default:
		return decimal.Zero, fmt.Errorf("relation %d: mode %q: %w", rel.ID, rel.Mode, domain.ErrUnsupportedMode)
	}
}
