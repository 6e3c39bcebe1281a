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

// BuyExecutor replicates a leader's buy trade across every enabled relation
// subscribed to that leader. Relations are processed independently; one
// relation's failure or configured delay never blocks the others.
type BuyExecutor struct {
	relations domain.CopyRelationStore
	accounts  domain.AccountStore
	trackings domain.TrackingStore
	processed domain.ProcessedTradeStore
	failed    domain.FailedTradeStore
	risk      *RiskGate
	submitter *Submitter
	resolver  TokenResolver
	vault     CredentialVault
	notifier  Notifier
	logger    *slog.Logger
	sleep     sleepFunc
}

// NewBuyExecutor wires a BuyExecutor.
func NewBuyExecutor(
	relations domain.CopyRelationStore,
	accounts domain.AccountStore,
	trackings domain.TrackingStore,
	processed domain.ProcessedTradeStore,
	failed domain.FailedTradeStore,
	risk *RiskGate,
	submitter *Submitter,
	resolver TokenResolver,
	vault CredentialVault,
	notifier Notifier,
	logger *slog.Logger,
) *BuyExecutor {
	return &BuyExecutor{
		relations: relations,
		accounts:  accounts,
		trackings: trackings,
		processed: processed,
		failed:    failed,
		risk:      risk,
		submitter: submitter,
		resolver:  resolver,
		vault:     vault,
		notifier:  notifier,
		logger:    logger.With(slog.String("component", "buy_executor")),
		sleep:     sleepCtx,
	}
}

// Execute fans the leader buy out to all enabled relations. It returns an
// error only when the relation list itself cannot be loaded; per-relation
// failures are contained and audited.
func (e *BuyExecutor) Execute(ctx context.Context, leaderID int64, trade domain.LeaderTrade) error {
	rels, err := e.relations.ListEnabledByLeader(ctx, leaderID)
	if err != nil {
		return fmt.Errorf("engine: list relations for leader %d: %w", leaderID, err)
	}
	if len(rels) == 0 {
		return nil
	}

	var g errgroup.Group
	for _, rel := range rels {
		g.Go(func() error {
			if err := e.replicate(ctx, leaderID, trade, rel); err != nil {
				e.logger.ErrorContext(ctx, "buy replication failed",
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

// replicate runs the full buy pipeline for one relation: size, clamp, risk
// check, delay, token resolution, price adjustment, submission, tracking.
func (e *BuyExecutor) replicate(ctx context.Context, leaderID int64, trade domain.LeaderTrade, rel domain.CopyRelation) error {
	log := e.logger.With(
		slog.Int64("relation_id", rel.ID),
		slog.String("trade_id", trade.ID),
	)

	quantity, err := ReplicationQuantity(trade, rel)
	if err != nil {
		return err
	}
	if quantity.LessThanOrEqual(decimal.Zero) {
		log.WarnContext(ctx, "computed quantity not positive, skipping")
		return nil
	}

	// Order-notional bounds apply to RATIO mode only. Below the minimum the
	// relation is skipped; above the maximum the quantity is clamped down.
	if rel.Mode == domain.CopyModeRatio {
		amount := quantity.Mul(trade.Price)
		if amount.LessThan(rel.MinOrderSize) {
			log.InfoContext(ctx, "order below minimum size, skipping",
				slog.String("amount", amount.String()),
				slog.String("min", rel.MinOrderSize.String()),
			)
			return nil
		}
		if rel.MaxOrderSize.GreaterThan(decimal.Zero) && amount.GreaterThan(rel.MaxOrderSize) {
			quantity = rel.MaxOrderSize.Div(trade.Price)
			log.InfoContext(ctx, "order above maximum size, clamping",
				slog.String("amount", amount.String()),
				slog.String("max", rel.MaxOrderSize.String()),
				slog.String("quantity", quantity.String()),
			)
			if quantity.LessThanOrEqual(decimal.Zero) {
				return nil
			}
		}
	}

	decision, err := e.risk.Check(ctx, rel, quantity, trade.Price)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		log.WarnContext(ctx, "risk check denied, skipping", slog.String("reason", decision.Reason))
		return nil
	}

	account, cred, privateKey, ok, err := e.openAccount(ctx, rel)
	if err != nil || !ok {
		return err
	}

	if rel.DelaySeconds > 0 {
		log.InfoContext(ctx, "delaying replication", slog.Int("delay_seconds", rel.DelaySeconds))
		if err := e.sleep(ctx, time.Duration(rel.DelaySeconds)*time.Second); err != nil {
			return err
		}
	}

	tokenID, err := e.resolver.ResolveTokenID(ctx, trade.MarketID, trade.OutcomeIndex)
	if err != nil {
		log.ErrorContext(ctx, "token resolution failed, skipping",
			slog.String("market_id", trade.MarketID),
			slog.Int("outcome_index", trade.OutcomeIndex),
			slog.String("error", err.Error()),
		)
		return nil
	}

	buyPrice := AdjustPrice(trade.Price, rel.PriceTolerance, domain.OrderSideBuy)

	orderID, attempts, err := e.submitter.Submit(ctx, SubmitRequest{
		TokenID:      tokenID,
		Side:         domain.OrderSideBuy,
		Price:        buyPrice,
		Size:         quantity,
		PrivateKey:   privateKey,
		MakerAddress: account.ProxyAddress,
		Credential:   cred,
	})
	if err != nil {
		e.recordFailure(ctx, leaderID, trade, rel, domain.OrderSideBuy, buyPrice, quantity, err, attempts)
		return err
	}

	tracking := domain.CopyOrderTracking{
		CopyRelationID:    rel.ID,
		AccountID:         rel.AccountID,
		LeaderID:          rel.LeaderID,
		MarketID:          trade.MarketID,
		OutcomeIndex:      trade.OutcomeIndex,
		BuyOrderID:        orderID,
		LeaderBuyTradeID:  trade.ID,
		Quantity:          quantity,
		Price:             buyPrice,
		MatchedQuantity:   decimal.Zero,
		RemainingQuantity: quantity,
		Status:            domain.TrackingFilled,
	}
	if _, err := e.trackings.Create(ctx, tracking); err != nil {
		return fmt.Errorf("engine: create tracking for order %s: %w", orderID, err)
	}

	log.InfoContext(ctx, "buy replicated",
		slog.String("order_id", orderID),
		slog.String("quantity", quantity.String()),
		slog.String("price", buyPrice.String()),
	)
	e.notify(ctx, EventCopyExecuted, "Copy buy executed",
		fmt.Sprintf("relation %d bought %s @ %s (order %s)", rel.ID, quantity, buyPrice, orderID))
	return nil
}

// openAccount loads the relation's account and decrypts its credentials.
// Any missing or undecryptable credential makes the relation untradable:
// it is skipped, not failed.
func (e *BuyExecutor) openAccount(ctx context.Context, rel domain.CopyRelation) (domain.Account, Credential, string, bool, error) {
	account, err := e.accounts.GetByID(ctx, rel.AccountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			e.logger.WarnContext(ctx, "account not found, skipping", slog.Int64("account_id", rel.AccountID))
			return domain.Account{}, Credential{}, "", false, nil
		}
		return domain.Account{}, Credential{}, "", false, err
	}
	cred, privateKey, ok := openCredentials(ctx, e.vault, account, e.logger)
	return account, cred, privateKey, ok, nil
}

func (e *BuyExecutor) recordFailure(ctx context.Context, leaderID int64, trade domain.LeaderTrade, rel domain.CopyRelation, side domain.OrderSide, price, size decimal.Decimal, cause error, attempts int) {
	recordFailedTrade(ctx, e.processed, e.failed, e.logger, failedTradeInput{
		LeaderID:       leaderID,
		Trade:          trade,
		CopyRelationID: rel.ID,
		AccountID:      rel.AccountID,
		Side:           side,
		Price:          price,
		Size:           size,
		Cause:          cause,
		RetryCount:     attempts - 1,
	})
	e.notify(ctx, EventCopyFailed, "Copy buy failed",
		fmt.Sprintf("relation %d trade %s: %v", rel.ID, trade.ID, cause))
}

func (e *BuyExecutor) notify(ctx context.Context, event, title, message string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, event, title, message); err != nil {
		e.logger.WarnContext(ctx, "notification failed", slog.String("event", event), slog.String("error", err.Error()))
	}
}
