package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/copybot/internal/domain"
)

// defaultLockTTL bounds how long a match sweep may hold its serialization
// lock; it must cover the submission round-trip including one retry.
const defaultLockTTL = 30 * time.Second

// SellMatcher unwinds open copy positions when the leader sells. For each
// sell-capable relation it selects open trackings oldest-first, submits one
// aggregate fill-and-kill sell for the whole sweep, and distributes the
// result across the contributing trackings with per-tracking realized P&L.
//
// Sweeps are serialized per (relation, market, outcome) through the lock
// manager so concurrent sells cannot consume the same remaining quantity
// twice.
type SellMatcher struct {
	relations domain.CopyRelationStore
	accounts  domain.AccountStore
	trackings domain.TrackingStore
	matches   domain.SellMatchStore
	processed domain.ProcessedTradeStore
	failed    domain.FailedTradeStore
	locks     domain.LockManager
	resolver  TokenResolver
	vault     CredentialVault
	submitter *Submitter
	notifier  Notifier
	logger    *slog.Logger
	lockTTL   time.Duration
}

// NewSellMatcher wires a SellMatcher.
func NewSellMatcher(
	relations domain.CopyRelationStore,
	accounts domain.AccountStore,
	trackings domain.TrackingStore,
	matches domain.SellMatchStore,
	processed domain.ProcessedTradeStore,
	failed domain.FailedTradeStore,
	locks domain.LockManager,
	resolver TokenResolver,
	vault CredentialVault,
	submitter *Submitter,
	notifier Notifier,
	logger *slog.Logger,
) *SellMatcher {
	return &SellMatcher{
		relations: relations,
		accounts:  accounts,
		trackings: trackings,
		matches:   matches,
		processed: processed,
		failed:    failed,
		locks:     locks,
		resolver:  resolver,
		vault:     vault,
		submitter: submitter,
		notifier:  notifier,
		logger:    logger.With(slog.String("component", "sell_matcher")),
		lockTTL:   defaultLockTTL,
	}
}

// Match fans the leader sell out to all enabled, sell-capable relations.
// Per-relation failures are contained and audited; only a failure to load
// the relation list propagates.
func (m *SellMatcher) Match(ctx context.Context, leaderID int64, trade domain.LeaderTrade) error {
	rels, err := m.relations.ListEnabledByLeader(ctx, leaderID)
	if err != nil {
		return fmt.Errorf("engine: list relations for leader %d: %w", leaderID, err)
	}
	if len(rels) == 0 {
		return nil
	}

	var g errgroup.Group
	for _, rel := range rels {
		if !rel.SupportSell {
			continue
		}
		g.Go(func() error {
			if err := m.matchRelation(ctx, leaderID, trade, rel); err != nil {
				m.logger.ErrorContext(ctx, "sell match failed",
					slog.Int64("relation_id", rel.ID),
					slog.String("trade_id", trade.ID),
					slog.String("error", err.Error()),
				)
			}
			return nil
		})
	}
	return g.Wait()
}

// plannedMatch is one tracking's contribution to a sweep, computed before
// submission and applied only after the exchange accepts the order.
type plannedMatch struct {
	tracking domain.CopyOrderTracking
	qty      decimal.Decimal
}

func (m *SellMatcher) matchRelation(ctx context.Context, leaderID int64, trade domain.LeaderTrade, rel domain.CopyRelation) error {
	log := m.logger.With(
		slog.Int64("relation_id", rel.ID),
		slog.String("trade_id", trade.ID),
	)

	account, err := m.accounts.GetByID(ctx, rel.AccountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.WarnContext(ctx, "account not found, skipping", slog.Int64("account_id", rel.AccountID))
			return nil
		}
		return err
	}
	cred, privateKey, ok := openCredentials(ctx, m.vault, account, log)
	if !ok {
		return nil
	}

	// Sell matching always unwinds proportionally to the leader's sell
	// size, even when the relation buys in FIXED mode.
	needed := trade.Size.Mul(rel.Ratio)
	if needed.LessThanOrEqual(decimal.Zero) {
		return nil
	}

	unlock, err := acquireLock(ctx, m.locks, matchKey(rel.ID, trade.MarketID, trade.OutcomeIndex), m.lockTTL)
	if err != nil {
		return fmt.Errorf("engine: acquire match lock for relation %d: %w", rel.ID, err)
	}
	defer unlock()

	open, err := m.trackings.ListOpen(ctx, rel.ID, trade.MarketID, trade.OutcomeIndex)
	if err != nil {
		return fmt.Errorf("engine: list open trackings for relation %d: %w", rel.ID, err)
	}
	if len(open) == 0 {
		return nil
	}

	// FIFO sweep: consume the oldest trackings first.
	var (
		planned      []plannedMatch
		totalMatched = decimal.Zero
		stillNeeded  = needed
	)
	for _, t := range open {
		if stillNeeded.LessThanOrEqual(decimal.Zero) {
			break
		}
		qty := decimal.Min(t.RemainingQuantity, stillNeeded)
		if qty.LessThanOrEqual(decimal.Zero) {
			continue
		}
		planned = append(planned, plannedMatch{tracking: t, qty: qty})
		totalMatched = totalMatched.Add(qty)
		stillNeeded = stillNeeded.Sub(qty)
	}
	if totalMatched.LessThanOrEqual(decimal.Zero) {
		return nil
	}

	tokenID, err := m.resolver.ResolveTokenID(ctx, trade.MarketID, trade.OutcomeIndex)
	if err != nil {
		log.ErrorContext(ctx, "token resolution failed, skipping",
			slog.String("market_id", trade.MarketID),
			slog.Int("outcome_index", trade.OutcomeIndex),
			slog.String("error", err.Error()),
		)
		return nil
	}

	sellPrice := AdjustPrice(trade.Price, rel.PriceTolerance, domain.OrderSideSell)

	// One aggregate order represents the whole sweep. On failure no
	// tracking is touched and no record is written.
	orderID, attempts, err := m.submitter.Submit(ctx, SubmitRequest{
		TokenID:      tokenID,
		Side:         domain.OrderSideSell,
		Price:        sellPrice,
		Size:         totalMatched,
		PrivateKey:   privateKey,
		MakerAddress: account.ProxyAddress,
		Credential:   cred,
	})
	if err != nil {
		recordFailedTrade(ctx, m.processed, m.failed, log, failedTradeInput{
			LeaderID:       leaderID,
			Trade:          trade,
			CopyRelationID: rel.ID,
			AccountID:      rel.AccountID,
			Side:           domain.OrderSideSell,
			Price:          sellPrice,
			Size:           totalMatched,
			Cause:          err,
			RetryCount:     attempts - 1,
		})
		m.notify(ctx, EventCopyFailed, "Copy sell failed",
			fmt.Sprintf("relation %d trade %s: %v", rel.ID, trade.ID, err))
		return err
	}

	// Distribute the fill across the contributing trackings and build the
	// match details.
	details := make([]domain.SellMatchDetail, 0, len(planned))
	totalPnl := decimal.Zero
	for _, p := range planned {
		if err := m.trackings.ApplyMatch(ctx, p.tracking.ID, p.qty); err != nil {
			return fmt.Errorf("engine: apply match to tracking %d: %w", p.tracking.ID, err)
		}
		pnl := sellPrice.Sub(p.tracking.Price).Mul(p.qty)
		details = append(details, domain.SellMatchDetail{
			TrackingID:      p.tracking.ID,
			BuyOrderID:      p.tracking.BuyOrderID,
			MatchedQuantity: p.qty,
			BuyPrice:        p.tracking.Price,
			SellPrice:       sellPrice,
			RealizedPnl:     pnl,
		})
		totalPnl = totalPnl.Add(pnl)
	}

	record := domain.SellMatchRecord{
		CopyRelationID:       rel.ID,
		SellOrderID:          orderID,
		LeaderSellTradeID:    trade.ID,
		MarketID:             trade.MarketID,
		OutcomeIndex:         trade.OutcomeIndex,
		TotalMatchedQuantity: totalMatched,
		SellPrice:            sellPrice,
		TotalRealizedPnl:     totalPnl,
	}
	if _, err := m.matches.CreateWithDetails(ctx, record, details); err != nil {
		return fmt.Errorf("engine: create sell match record for order %s: %w", orderID, err)
	}

	log.InfoContext(ctx, "sell matched",
		slog.String("order_id", orderID),
		slog.String("matched", totalMatched.String()),
		slog.String("price", sellPrice.String()),
		slog.String("realized_pnl", totalPnl.String()),
		slog.Int("trackings", len(planned)),
	)
	m.notify(ctx, EventSellMatched, "Copy sell matched",
		fmt.Sprintf("relation %d sold %s @ %s, realized pnl %s (order %s)", rel.ID, totalMatched, sellPrice, totalPnl, orderID))
	return nil
}

func (m *SellMatcher) notify(ctx context.Context, event, title, message string) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Notify(ctx, event, title, message); err != nil {
		m.logger.WarnContext(ctx, "notification failed", slog.String("event", event), slog.String("error", err.Error()))
	}
}
