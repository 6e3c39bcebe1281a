// Package feed delivers leader trade events to the engine. Two sources run
// side by side: the activity websocket for low latency and a polling
// fallback for gap coverage. Both may deliver the same trade; the
// processed-trade ledger collapses duplicates.
package feed

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/copybot/internal/domain"
	"github.com/alanyoungcy/copybot/internal/engine"
	"github.com/alanyoungcy/copybot/internal/platform/polymarket"
)

// leaderRefreshInterval is how often the followed-wallet set is reloaded.
const leaderRefreshInterval = time.Minute

// ActivityFeed subscribes to the activity websocket and forwards trades by
// followed leaders to the processor.
type ActivityFeed struct {
	ws        *polymarket.ActivityWSClient
	leaders   domain.LeaderStore
	processor *engine.Processor
	logger    *slog.Logger

	mu      sync.RWMutex
	byAddr  map[string]domain.Leader
	pending sync.WaitGroup
}

// NewActivityFeed creates a feed for the given websocket client.
func NewActivityFeed(ws *polymarket.ActivityWSClient, leaders domain.LeaderStore, processor *engine.Processor, logger *slog.Logger) *ActivityFeed {
	return &ActivityFeed{
		ws:        ws,
		leaders:   leaders,
		processor: processor,
		logger:    logger.With(slog.String("component", "activity_feed")),
		byAddr:    make(map[string]domain.Leader),
	}
}

// Run connects, subscribes, and forwards trades until ctx is cancelled.
// Reconnection is handled inside the websocket client.
func (f *ActivityFeed) Run(ctx context.Context) error {
	if err := f.refreshLeaders(ctx); err != nil {
		return err
	}

	f.ws.OnTrade(func(wallet string, trade domain.LeaderTrade) {
		f.handleTrade(ctx, wallet, trade)
	})

	if err := f.ws.Connect(ctx); err != nil {
		return err
	}
	defer f.ws.Close()

	if err := f.ws.Subscribe(ctx); err != nil {
		return err
	}
	f.logger.InfoContext(ctx, "activity feed subscribed", slog.Int("leaders", f.leaderCount()))

	ticker := time.NewTicker(leaderRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.pending.Wait()
			return ctx.Err()
		case <-ticker.C:
			if err := f.refreshLeaders(ctx); err != nil {
				f.logger.WarnContext(ctx, "leader refresh failed", slog.String("error", err.Error()))
			}
		}
	}
}

// handleTrade forwards one websocket trade. Processing runs on its own
// goroutine so a slow replication (configured delays, exchange calls) never
// stalls the websocket read loop.
func (f *ActivityFeed) handleTrade(ctx context.Context, wallet string, trade domain.LeaderTrade) {
	f.mu.RLock()
	leader, followed := f.byAddr[strings.ToLower(wallet)]
	f.mu.RUnlock()
	if !followed {
		return
	}

	f.pending.Add(1)
	go func() {
		defer f.pending.Done()
		if _, err := f.processor.Process(ctx, leader.ID, trade, domain.SourceWebsocket); err != nil {
			f.logger.ErrorContext(ctx, "processing websocket trade failed",
				slog.Int64("leader_id", leader.ID),
				slog.String("trade_id", trade.ID),
				slog.String("error", err.Error()),
			)
		}
	}()
}

func (f *ActivityFeed) refreshLeaders(ctx context.Context) error {
	leaders, err := f.leaders.ListEnabled(ctx)
	if err != nil {
		return err
	}

	byAddr := make(map[string]domain.Leader, len(leaders))
	for _, l := range leaders {
		byAddr[strings.ToLower(l.Address)] = l
	}

	f.mu.Lock()
	f.byAddr = byAddr
	f.mu.Unlock()
	return nil
}

func (f *ActivityFeed) leaderCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.byAddr)
}
