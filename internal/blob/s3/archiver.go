package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/alanyoungcy/copybot/internal/domain"
)

// ---------------------------------------------------------------------------
// Narrow interfaces required by the archiver.
//
// The archiver only needs the query methods it actually calls, not the full
// domain store interfaces. The Postgres stores satisfy these implicitly.
// ---------------------------------------------------------------------------

// ObjectWriter uploads one object.
type ObjectWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// MatchArchiveSource provides read access to sell match records for export.
type MatchArchiveSource interface {
	ListByRelationSince(ctx context.Context, relationID int64, since time.Time) ([]domain.SellMatchRecord, error)
}

// RelationSource lists the relations whose ledgers are exported.
type RelationSource interface {
	ListEnabled(ctx context.Context) ([]domain.CopyRelation, error)
}

// ledgerRow is one JSONL line in an exported ledger file.
type ledgerRow struct {
	RecordID        int64  `json:"record_id"`
	CopyRelationID  int64  `json:"copy_relation_id"`
	SellOrderID     string `json:"sell_order_id"`
	LeaderTradeID   string `json:"leader_trade_id"`
	MarketID        string `json:"market_id"`
	OutcomeIndex    int    `json:"outcome_index"`
	MatchedQuantity string `json:"matched_quantity"`
	SellPrice       string `json:"sell_price"`
	RealizedPnl     string `json:"realized_pnl"`
	MatchedAt       string `json:"matched_at"`
}

// LedgerArchiver exports each UTC day's sell match records to object
// storage as JSONL, one file per day at ledger/YYYY-MM-DD.jsonl. Exports
// are read-only snapshots; nothing is deleted from the primary store.
type LedgerArchiver struct {
	writer    ObjectWriter
	matches   MatchArchiveSource
	relations RelationSource
	logger    *slog.Logger
	now       func() time.Time
}

// NewLedgerArchiver creates a LedgerArchiver.
func NewLedgerArchiver(writer ObjectWriter, matches MatchArchiveSource, relations RelationSource, logger *slog.Logger) *LedgerArchiver {
	return &LedgerArchiver{
		writer:    writer,
		matches:   matches,
		relations: relations,
		logger:    logger.With(slog.String("component", "ledger_archiver")),
		now:       time.Now,
	}
}

// Run exports the previous day's ledger once at startup, then again shortly
// after every UTC midnight, until ctx is cancelled.
func (a *LedgerArchiver) Run(ctx context.Context) error {
	for {
		if err := a.ExportDay(ctx, previousDay(a.now())); err != nil {
			a.logger.ErrorContext(ctx, "ledger export failed", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(untilNextExport(a.now())):
		}
	}
}

// ExportDay exports all sell match records created on the given UTC day.
// Days with no matches produce no object.
func (a *LedgerArchiver) ExportDay(ctx context.Context, day time.Time) error {
	start := day.UTC().Truncate(24 * time.Hour)
	end := start.Add(24 * time.Hour)

	relations, err := a.relations.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("s3blob: list relations: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	count := 0

	for _, rel := range relations {
		records, err := a.matches.ListByRelationSince(ctx, rel.ID, start)
		if err != nil {
			return fmt.Errorf("s3blob: list matches for relation %d: %w", rel.ID, err)
		}
		for _, rec := range records {
			if !rec.CreatedAt.Before(end) {
				continue
			}
			row := ledgerRow{
				RecordID:        rec.ID,
				CopyRelationID:  rec.CopyRelationID,
				SellOrderID:     rec.SellOrderID,
				LeaderTradeID:   rec.LeaderSellTradeID,
				MarketID:        rec.MarketID,
				OutcomeIndex:    rec.OutcomeIndex,
				MatchedQuantity: rec.TotalMatchedQuantity.String(),
				SellPrice:       rec.SellPrice.String(),
				RealizedPnl:     rec.TotalRealizedPnl.String(),
				MatchedAt:       rec.CreatedAt.UTC().Format(time.RFC3339),
			}
			if err := enc.Encode(row); err != nil {
				return fmt.Errorf("s3blob: encode ledger row: %w", err)
			}
			count++
		}
	}

	if count == 0 {
		a.logger.InfoContext(ctx, "no matches to export", slog.String("day", start.Format("2006-01-02")))
		return nil
	}

	path := fmt.Sprintf("ledger/%s.jsonl", start.Format("2006-01-02"))
	if err := a.writer.Put(ctx, path, &buf, "application/x-ndjson"); err != nil {
		return err
	}

	a.logger.InfoContext(ctx, "ledger exported",
		slog.String("path", path),
		slog.Int("records", count),
	)
	return nil
}

// previousDay returns midnight UTC of the day before t.
func previousDay(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour).Add(-24 * time.Hour)
}

// untilNextExport returns the wait until five minutes past the next UTC
// midnight. The slack lets in-flight matches from the closing day commit.
func untilNextExport(t time.Time) time.Duration {
	next := t.UTC().Truncate(24 * time.Hour).Add(24*time.Hour + 5*time.Minute)
	return next.Sub(t.UTC())
}
