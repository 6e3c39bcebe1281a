package engine

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/copybot/internal/domain"
)

// Valid price domain for binary-outcome contracts on the CLOB.
var (
	priceCeil  = decimal.RequireFromString("0.99")
	priceFloor = decimal.RequireFromString("0.01")
	hundred    = decimal.NewFromInt(100)
)

// AdjustPrice applies the relation's price tolerance to the leader's price.
// A buy chases up, a sell chases down, so the copy order still crosses when
// the book has moved slightly since the leader's fill. The result stays
// inside the exchange's (0,1) price domain.
func AdjustPrice(leaderPrice, tolerancePercent decimal.Decimal, side domain.OrderSide) decimal.Decimal {
	if tolerancePercent.IsZero() {
		return leaderPrice
	}

	delta := leaderPrice.Mul(tolerancePercent.Div(hundred))
	if side == domain.OrderSideBuy {
		p := leaderPrice.Add(delta)
		if p.GreaterThan(priceCeil) {
			return priceCeil
		}
		return p
	}
	p := leaderPrice.Sub(delta)
	if p.LessThan(priceFloor) {
		return priceFloor
	}
	return p
}
