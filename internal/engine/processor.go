package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/copybot/internal/domain"
)

// ErrUnknownTradeSide marks a trade whose side is neither BUY nor SELL.
// Such events are unrecoverable input: logged and returned, never dispatched.
var ErrUnknownTradeSide = errors.New("unknown trade side")

// Outcome says how a trade event was settled.
type Outcome string

const (
	// OutcomeProcessed means the trade was dispatched and the ledger row
	// written by this call.
	OutcomeProcessed Outcome = "processed"
	// OutcomeDuplicate means the trade had already been settled, possibly
	// by a concurrent delivery from the other feed.
	OutcomeDuplicate Outcome = "duplicate"
)

// Processor is the sole entry point for leader trade events. It deduplicates
// against the processed-trade ledger, dispatches buys and sells, and
// finalizes the ledger row only after the downstream call succeeds, so a
// failed dispatch stays eligible for a later retry of the same event.
type Processor struct {
	processed domain.ProcessedTradeStore
	failed    domain.FailedTradeStore
	buy       *BuyExecutor
	sell      *SellMatcher
	logger    *slog.Logger
	now       func() time.Time
}

// NewProcessor wires a Processor.
func NewProcessor(processed domain.ProcessedTradeStore, failed domain.FailedTradeStore, buy *BuyExecutor, sell *SellMatcher, logger *slog.Logger) *Processor {
	return &Processor{
		processed: processed,
		failed:    failed,
		buy:       buy,
		sell:      sell,
		logger:    logger.With(slog.String("component", "trade_processor")),
		now:       time.Now,
	}
}

// Process handles one observed leader trade. Calling it again with the same
// (leaderID, trade.ID) is a no-op regardless of which call came first or
// whether they ran concurrently.
func (p *Processor) Process(ctx context.Context, leaderID int64, trade domain.LeaderTrade, source string) (Outcome, error) {
	log := p.logger.With(
		slog.Int64("leader_id", leaderID),
		slog.String("trade_id", trade.ID),
		slog.String("source", source),
	)

	// A ledger row with any status means the trade was already handled or
	// permanently failed; never reprocess.
	_, err := p.processed.Get(ctx, leaderID, trade.ID)
	switch {
	case err == nil:
		log.DebugContext(ctx, "trade already processed")
		return OutcomeDuplicate, nil
	case !errors.Is(err, domain.ErrNotFound):
		return "", fmt.Errorf("engine: look up processed trade: %w", err)
	}

	// Secondary guard for rows written by legacy failure paths.
	_, err = p.failed.Get(ctx, leaderID, trade.ID)
	switch {
	case err == nil:
		log.DebugContext(ctx, "trade already recorded as failed")
		return OutcomeDuplicate, nil
	case !errors.Is(err, domain.ErrNotFound):
		return "", fmt.Errorf("engine: look up failed trade: %w", err)
	}

	switch trade.Side {
	case domain.TradeSideBuy:
		err = p.buy.Execute(ctx, leaderID, trade)
	case domain.TradeSideSell:
		err = p.sell.Match(ctx, leaderID, trade)
	default:
		log.ErrorContext(ctx, "unknown trade side", slog.String("side", string(trade.Side)))
		return "", fmt.Errorf("engine: trade %s side %q: %w", trade.ID, trade.Side, ErrUnknownTradeSide)
	}
	if err != nil {
		// No ledger row: a later retry of this event stays eligible.
		return "", fmt.Errorf("engine: dispatch trade %s: %w", trade.ID, err)
	}

	rec := domain.ProcessedTrade{
		LeaderID:      leaderID,
		LeaderTradeID: trade.ID,
		TradeType:     trade.Side,
		Source:        source,
		Status:        domain.ProcessedSuccess,
		ProcessedAt:   p.now().UTC(),
	}
	if err := p.processed.Insert(ctx, rec); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			// A concurrent duplicate delivery won the insert race. The
			// existing row is authoritative.
			if _, rerr := p.processed.Get(ctx, leaderID, trade.ID); rerr == nil {
				log.DebugContext(ctx, "lost processed-trade insert race")
				return OutcomeDuplicate, nil
			}
			return "", fmt.Errorf("engine: processed trade conflict without row: %w", err)
		}
		return "", fmt.Errorf("engine: record processed trade: %w", err)
	}

	log.InfoContext(ctx, "trade processed", slog.String("side", string(trade.Side)))
	return OutcomeProcessed, nil
}
