package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/copybot/internal/domain"
	"github.com/alanyoungcy/copybot/internal/engine"
)

const (
	// defaultPollInterval is how often each leader's recent trades are
	// fetched when the config leaves it unset.
	defaultPollInterval = 30 * time.Second

	// defaultLookback bounds how far back a fetched trade may be and still
	// get forwarded. Anything older is assumed settled long ago.
	defaultLookback = 15 * time.Minute

	// pollFetchLimit is the page size per leader per poll.
	pollFetchLimit = 100
)

// TradeLister fetches a wallet's recent trades, newest first.
type TradeLister interface {
	TradesByUser(ctx context.Context, address string, limit int) ([]domain.LeaderTrade, error)
}

// Poller periodically fetches each followed leader's recent trades from the
// Data API and forwards them to the processor. It backstops the websocket:
// a trade missed during a disconnect is picked up on the next cycle, and
// one delivered by both paths is absorbed by the dedup ledger.
type Poller struct {
	trades    TradeLister
	leaders   domain.LeaderStore
	processor *engine.Processor
	interval  time.Duration
	lookback  time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewPoller creates a Poller. Non-positive interval or lookback fall back
// to the defaults.
func NewPoller(trades TradeLister, leaders domain.LeaderStore, processor *engine.Processor, interval, lookback time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if lookback <= 0 {
		lookback = defaultLookback
	}
	return &Poller{
		trades:    trades,
		leaders:   leaders,
		processor: processor,
		interval:  interval,
		lookback:  lookback,
		logger:    logger.With(slog.String("component", "trade_poller")),
		now:       time.Now,
	}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.InfoContext(ctx, "trade poller started", slog.Duration("interval", p.interval))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

// pollOnce runs one cycle across all enabled leaders. Failures for one
// leader are logged and do not stop the others.
func (p *Poller) pollOnce(ctx context.Context) {
	leaders, err := p.leaders.ListEnabled(ctx)
	if err != nil {
		p.logger.ErrorContext(ctx, "listing leaders failed", slog.String("error", err.Error()))
		return
	}

	cutoff := p.now().Add(-p.lookback)

	for _, leader := range leaders {
		if ctx.Err() != nil {
			return
		}
		p.pollLeader(ctx, leader, cutoff)
	}
}

func (p *Poller) pollLeader(ctx context.Context, leader domain.Leader, cutoff time.Time) {
	log := p.logger.With(slog.Int64("leader_id", leader.ID))

	trades, err := p.trades.TradesByUser(ctx, leader.Address, pollFetchLimit)
	if err != nil {
		log.WarnContext(ctx, "fetching trades failed", slog.String("error", err.Error()))
		return
	}

	// Replay oldest first so buys land before the sells that close them.
	for i := len(trades) - 1; i >= 0; i-- {
		trade := trades[i]
		if trade.Timestamp.Before(cutoff) {
			continue
		}
		if _, err := p.processor.Process(ctx, leader.ID, trade, domain.SourcePolling); err != nil {
			log.ErrorContext(ctx, "processing polled trade failed",
				slog.String("trade_id", trade.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}
