package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alanyoungcy/copybot/internal/cache/memory"
	"github.com/alanyoungcy/copybot/internal/domain"
)

func newProcessor(f *engineFixture) *Processor {
	return NewProcessor(f.processed, f.failed, f.buyExecutor(), f.sellMatcher(memory.NewKeyedLock()), discardLogger())
}

func TestProcessor_BuyDispatchedAndRecorded(t *testing.T) {
	f := newFixture(ratioRelation(1, "1"))
	p := newProcessor(f)

	out, err := p.Process(context.Background(), testLeaderID, buyTrade("t1", "0.50", "10"), domain.SourceWebsocket)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out != OutcomeProcessed {
		t.Fatalf("outcome=%s want=processed", out)
	}
	if got := len(f.trackings.all()); got != 1 {
		t.Fatalf("trackings=%d want=1", got)
	}
	rec, err := f.processed.Get(context.Background(), testLeaderID, "t1")
	if err != nil {
		t.Fatalf("processed.Get: %v", err)
	}
	if rec.Status != domain.ProcessedSuccess || rec.Source != domain.SourceWebsocket || rec.TradeType != domain.TradeSideBuy {
		t.Fatalf("record=%+v", rec)
	}
}

func TestProcessor_SellDispatched(t *testing.T) {
	f := newFixture(ratioRelation(1, "1"))
	openTracking(t, f, 1, "10", "0.40")
	p := newProcessor(f)

	out, err := p.Process(context.Background(), testLeaderID, sellTrade("s1", "0.60", "4"), domain.SourcePolling)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out != OutcomeProcessed {
		t.Fatalf("outcome=%s want=processed", out)
	}
	if got := len(f.matches.all()); got != 1 {
		t.Fatalf("records=%d want=1", got)
	}
}

func TestProcessor_DuplicateDeliveryIsNoOp(t *testing.T) {
	f := newFixture(ratioRelation(1, "1"))
	p := newProcessor(f)
	trade := buyTrade("t1", "0.50", "10")

	if _, err := p.Process(context.Background(), testLeaderID, trade, domain.SourceWebsocket); err != nil {
		t.Fatalf("first Process: %v", err)
	}
	// Same trade arrives again from the polling feed.
	out, err := p.Process(context.Background(), testLeaderID, trade, domain.SourcePolling)
	if err != nil {
		t.Fatalf("second Process: %v", err)
	}
	if out != OutcomeDuplicate {
		t.Fatalf("outcome=%s want=duplicate", out)
	}
	if got := len(f.trackings.all()); got != 1 {
		t.Fatalf("trackings=%d want=1", got)
	}
	if got := f.poster.callCount(); got != 1 {
		t.Fatalf("posts=%d want=1", got)
	}
}

func TestProcessor_FailedRowBlocksReprocessing(t *testing.T) {
	f := newFixture(ratioRelation(1, "1"))
	if err := f.failed.Insert(context.Background(), domain.FailedTrade{
		LeaderID:      testLeaderID,
		LeaderTradeID: "t1",
		TradeType:     domain.TradeSideBuy,
		FailedAt:      time.Now().UTC(),
	}); err != nil {
		t.Fatalf("failed.Insert: %v", err)
	}
	p := newProcessor(f)

	out, err := p.Process(context.Background(), testLeaderID, buyTrade("t1", "0.50", "10"), domain.SourcePolling)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out != OutcomeDuplicate {
		t.Fatalf("outcome=%s want=duplicate", out)
	}
	if got := f.poster.callCount(); got != 0 {
		t.Fatalf("posts=%d want=0", got)
	}
}

func TestProcessor_LosingInsertRaceYieldsDuplicate(t *testing.T) {
	f := newFixture(ratioRelation(1, "1"))
	p := newProcessor(f)
	trade := buyTrade("t1", "0.50", "10")

	// Simulate the other feed winning the ledger insert between dispatch
	// and this call's own insert.
	f.processed.beforeInsert = func() {
		f.processed.beforeInsert = nil
		f.processed.mu.Lock()
		f.processed.rows[tradeKey(testLeaderID, "t1")] = domain.ProcessedTrade{
			LeaderID:      testLeaderID,
			LeaderTradeID: "t1",
			TradeType:     domain.TradeSideBuy,
			Source:        domain.SourcePolling,
			Status:        domain.ProcessedSuccess,
		}
		f.processed.mu.Unlock()
	}

	out, err := p.Process(context.Background(), testLeaderID, trade, domain.SourceWebsocket)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out != OutcomeDuplicate {
		t.Fatalf("outcome=%s want=duplicate", out)
	}
}

func TestProcessor_UnknownSideIsRejectedWithoutLedgerRow(t *testing.T) {
	f := newFixture(ratioRelation(1, "1"))
	p := newProcessor(f)
	trade := buyTrade("t1", "0.50", "10")
	trade.Side = "HOLD"

	_, err := p.Process(context.Background(), testLeaderID, trade, domain.SourceWebsocket)
	if !errors.Is(err, ErrUnknownTradeSide) {
		t.Fatalf("err=%v want ErrUnknownTradeSide", err)
	}
	if got := f.processed.count(); got != 0 {
		t.Fatalf("processed=%d want=0", got)
	}
	if got := f.failed.count(); got != 0 {
		t.Fatalf("failed=%d want=0", got)
	}
}

// errRelations fails every lookup, standing in for an unreachable database.
type errRelations struct{}

func (errRelations) GetByID(ctx context.Context, id int64) (domain.CopyRelation, error) {
	return domain.CopyRelation{}, errors.New("db down")
}

func (errRelations) ListEnabledByLeader(ctx context.Context, leaderID int64) ([]domain.CopyRelation, error) {
	return nil, errors.New("db down")
}

func (errRelations) ListEnabled(ctx context.Context) ([]domain.CopyRelation, error) {
	return nil, errors.New("db down")
}

func TestProcessor_DispatchErrorLeavesTradeEligible(t *testing.T) {
	f := newFixture(ratioRelation(1, "1"))
	trade := buyTrade("t1", "0.50", "10")

	buy := NewBuyExecutor(errRelations{}, f.accounts, f.trackings, f.processed,
		f.failed, NewRiskGate(f.trackings, f.matches, discardLogger()),
		f.submitter, f.resolver, f.vault, f.notifier, discardLogger())
	buy.sleep = noSleep
	p := NewProcessor(f.processed, f.failed, buy, f.sellMatcher(memory.NewKeyedLock()), discardLogger())

	if _, err := p.Process(context.Background(), testLeaderID, trade, domain.SourceWebsocket); err == nil {
		t.Fatal("expected dispatch error")
	}
	// No ledger row was written, so a later redelivery still processes.
	if got := f.processed.count(); got != 0 {
		t.Fatalf("processed=%d want=0", got)
	}

	healthy := newProcessor(f)
	out, err := healthy.Process(context.Background(), testLeaderID, trade, domain.SourcePolling)
	if err != nil {
		t.Fatalf("retry Process: %v", err)
	}
	if out != OutcomeProcessed {
		t.Fatalf("outcome=%s want=processed", out)
	}
}

func TestProcessor_ExhaustedReplicationIsNotRetried(t *testing.T) {
	f := newFixture(ratioRelation(1, "1"))
	f.poster.script = []postOutcome{
		{result: domain.OrderResult{Success: false, Message: "market closed"}},
		{result: domain.OrderResult{Success: false, Message: "market closed"}},
	}
	p := newProcessor(f)
	trade := buyTrade("t1", "0.50", "10")

	// The buy fails after both attempts; the failure path marks the ledger
	// FAILED, so the processor's own insert loses and reports a duplicate.
	out, err := p.Process(context.Background(), testLeaderID, trade, domain.SourceWebsocket)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out != OutcomeDuplicate {
		t.Fatalf("outcome=%s want=duplicate", out)
	}
	rec, err := f.processed.Get(context.Background(), testLeaderID, "t1")
	if err != nil {
		t.Fatalf("processed.Get: %v", err)
	}
	if rec.Status != domain.ProcessedFailed {
		t.Fatalf("status=%s want=FAILED", rec.Status)
	}

	// Redelivery from the other feed must not resubmit the order.
	posts := f.poster.callCount()
	out, err = p.Process(context.Background(), testLeaderID, trade, domain.SourcePolling)
	if err != nil {
		t.Fatalf("redelivery Process: %v", err)
	}
	if out != OutcomeDuplicate {
		t.Fatalf("outcome=%s want=duplicate", out)
	}
	if got := f.poster.callCount(); got != posts {
		t.Fatalf("posts=%d want=%d", got, posts)
	}
}
