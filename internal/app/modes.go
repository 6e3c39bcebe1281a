package app

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/copybot/internal/feed"
	"github.com/alanyoungcy/copybot/internal/platform/polymarket"
)

// FullMode runs both trade feeds plus, when S3 is enabled, the nightly ledger
// export. This is the normal production configuration: the websocket delivers
// trades with low latency and the poller backstops disconnect gaps.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.runActivityFeed(ctx, deps)
	})
	g.Go(func() error {
		return a.runPoller(ctx, deps)
	})
	if deps.Archiver != nil {
		g.Go(func() error {
			return deps.Archiver.Run(ctx)
		})
	}

	return ignoreCancel(g.Wait())
}

// PollMode runs only the polling feed. Useful where outbound websocket
// connections are blocked; replication latency rises to the poll interval.
func (a *App) PollMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting poll mode")
	return ignoreCancel(a.runPoller(ctx, deps))
}

// WsMode runs only the websocket feed. Trades missed during a disconnect are
// not recovered; prefer full mode unless the Data API is unavailable.
func (a *App) WsMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting ws mode")
	return ignoreCancel(a.runActivityFeed(ctx, deps))
}

// ExportMode writes yesterday's sell-match ledger to object storage and
// exits.
func (a *App) ExportMode(ctx context.Context, deps *Dependencies) error {
	day := time.Now().UTC().AddDate(0, 0, -1)
	a.logger.InfoContext(ctx, "starting one-shot ledger export")
	return deps.Archiver.ExportDay(ctx, day)
}

func (a *App) runActivityFeed(ctx context.Context, deps *Dependencies) error {
	ws := polymarket.NewActivityWSClient(a.cfg.Polymarket.WsHost)
	activity := feed.NewActivityFeed(ws, deps.Leaders, deps.Processor, a.logger)
	return activity.Run(ctx)
}

func (a *App) runPoller(ctx context.Context, deps *Dependencies) error {
	poller := feed.NewPoller(
		deps.Data, deps.Leaders, deps.Processor,
		a.cfg.Feed.PollInterval.Duration, a.cfg.Feed.PollLookback.Duration,
		a.logger,
	)
	return poller.Run(ctx)
}

// ignoreCancel maps context cancellation to a clean exit.
func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
