package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/copybot/internal/domain"
)

// Decision is the outcome of a risk check. A denial is a policy no-op, not
// an error: the relation is skipped and nothing is recorded.
type Decision struct {
	Allowed bool
	Reason  string
}

var allow = Decision{Allowed: true}

// RiskGate checks a prospective buy against the relation's daily limits.
// Both checks are advisory snapshots: they are not serialized against
// concurrent order creation, so the limits can be exceeded by a small
// margin under contention.
type RiskGate struct {
	trackings domain.TrackingStore
	matches   domain.SellMatchStore
	logger    *slog.Logger
	now       func() time.Time
}

// NewRiskGate creates a RiskGate over the given stores.
func NewRiskGate(trackings domain.TrackingStore, matches domain.SellMatchStore, logger *slog.Logger) *RiskGate {
	return &RiskGate{
		trackings: trackings,
		matches:   matches,
		logger:    logger.With(slog.String("component", "risk_gate")),
		now:       time.Now,
	}
}

// Check approves or denies a prospective order for the relation. The
// proposed quantity and price are part of the contract for future checks;
// the current limits depend only on today's history.
func (g *RiskGate) Check(ctx context.Context, rel domain.CopyRelation, quantity, price decimal.Decimal) (Decision, error) {
	since := startOfDayUTC(g.now())

	if rel.MaxDailyOrders > 0 {
		count, err := g.trackings.CountCreatedSince(ctx, rel.ID, since)
		if err != nil {
			return Decision{}, fmt.Errorf("engine: count daily orders for relation %d: %w", rel.ID, err)
		}
		if count >= rel.MaxDailyOrders {
			return Decision{Reason: fmt.Sprintf("daily order limit reached: %d/%d", count, rel.MaxDailyOrders)}, nil
		}
	}

	if rel.MaxDailyLoss.GreaterThan(decimal.Zero) {
		pnl, err := g.matches.SumRealizedPnlSince(ctx, rel.ID, since)
		if err != nil {
			return Decision{}, fmt.Errorf("engine: sum daily pnl for relation %d: %w", rel.ID, err)
		}
		if pnl.IsNegative() && pnl.Abs().GreaterThanOrEqual(rel.MaxDailyLoss) {
			return Decision{Reason: fmt.Sprintf("daily loss limit reached: %s/%s", pnl.Abs(), rel.MaxDailyLoss)}, nil
		}
	}

	return allow, nil
}
