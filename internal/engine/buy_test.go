package engine

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/copybot/internal/domain"
)

func TestBuyExecutor_RatioReplication(t *testing.T) {
	f := newFixture(ratioRelation(1, "0.5"))
	trade := buyTrade("t1", "0.50", "20")

	if err := f.buyExecutor().Execute(context.Background(), testLeaderID, trade); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	all := f.trackings.all()
	if len(all) != 1 {
		t.Fatalf("trackings=%d want=1", len(all))
	}
	tr := all[0]
	if !tr.Quantity.Equal(dec("10")) {
		t.Fatalf("quantity=%s want=10", tr.Quantity)
	}
	if !tr.RemainingQuantity.Equal(dec("10")) || !tr.MatchedQuantity.IsZero() {
		t.Fatalf("remaining=%s matched=%s", tr.RemainingQuantity, tr.MatchedQuantity)
	}
	if tr.Status != domain.TrackingFilled {
		t.Fatalf("status=%s want=filled", tr.Status)
	}
	if tr.LeaderBuyTradeID != "t1" || tr.BuyOrderID == "" {
		t.Fatalf("leaderTradeID=%s buyOrderID=%s", tr.LeaderBuyTradeID, tr.BuyOrderID)
	}
	if events := f.notifier.events(); len(events) != 1 || events[0] != EventCopyExecuted {
		t.Fatalf("events=%v", events)
	}
}

func TestBuyExecutor_PriceToleranceChasesUp(t *testing.T) {
	rel := ratioRelation(1, "1")
	rel.PriceTolerance = dec("10")
	f := newFixture(rel)

	if err := f.buyExecutor().Execute(context.Background(), testLeaderID, buyTrade("t1", "0.50", "10")); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	all := f.trackings.all()
	if len(all) != 1 {
		t.Fatalf("trackings=%d want=1", len(all))
	}
	if !all[0].Price.Equal(dec("0.55")) {
		t.Fatalf("price=%s want=0.55", all[0].Price)
	}
}

func TestBuyExecutor_SkipsBelowMinOrderSize(t *testing.T) {
	rel := ratioRelation(1, "0.1")
	rel.MinOrderSize = dec("5")
	f := newFixture(rel)

	// 0.1 * 20 * 0.50 = 1 USDC notional, below the 5 USDC minimum.
	if err := f.buyExecutor().Execute(context.Background(), testLeaderID, buyTrade("t1", "0.50", "20")); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if got := f.poster.callCount(); got != 0 {
		t.Fatalf("posts=%d want=0", got)
	}
	if got := len(f.trackings.all()); got != 0 {
		t.Fatalf("trackings=%d want=0", got)
	}
	if got := f.failed.count(); got != 0 {
		t.Fatalf("failed=%d want=0", got)
	}
}

func TestBuyExecutor_ClampsAboveMaxOrderSize(t *testing.T) {
	rel := ratioRelation(1, "1")
	rel.MaxOrderSize = dec("10")
	f := newFixture(rel)

	// 100 * 0.50 = 50 USDC notional, clamped down to 10 USDC = 20 tokens.
	if err := f.buyExecutor().Execute(context.Background(), testLeaderID, buyTrade("t1", "0.50", "100")); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	all := f.trackings.all()
	if len(all) != 1 {
		t.Fatalf("trackings=%d want=1", len(all))
	}
	if !all[0].Quantity.Equal(dec("20")) {
		t.Fatalf("quantity=%s want=20", all[0].Quantity)
	}
}

func TestBuyExecutor_FixedModeIgnoresNotionalBounds(t *testing.T) {
	rel := ratioRelation(1, "0")
	rel.Mode = domain.CopyModeFixed
	rel.FixedAmount = dec("2")
	rel.MinOrderSize = dec("100") // would skip a RATIO buy of this size
	f := newFixture(rel)

	if err := f.buyExecutor().Execute(context.Background(), testLeaderID, buyTrade("t1", "0.50", "10")); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	all := f.trackings.all()
	if len(all) != 1 {
		t.Fatalf("trackings=%d want=1", len(all))
	}
	if !all[0].Quantity.Equal(dec("4")) {
		t.Fatalf("quantity=%s want=4", all[0].Quantity)
	}
}

func TestBuyExecutor_RiskDenialSkipsWithoutAudit(t *testing.T) {
	rel := ratioRelation(1, "1")
	rel.MaxDailyOrders = 1
	f := newFixture(rel)

	if err := f.buyExecutor().Execute(context.Background(), testLeaderID, buyTrade("t1", "0.50", "10")); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if err := f.buyExecutor().Execute(context.Background(), testLeaderID, buyTrade("t2", "0.50", "10")); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if got := len(f.trackings.all()); got != 1 {
		t.Fatalf("trackings=%d want=1", got)
	}
	if got := f.poster.callCount(); got != 1 {
		t.Fatalf("posts=%d want=1", got)
	}
	// A risk denial is a policy no-op: no failure row, no failure event.
	if got := f.failed.count(); got != 0 {
		t.Fatalf("failed=%d want=0", got)
	}
}

func TestBuyExecutor_SubmissionFailureIsAudited(t *testing.T) {
	f := newFixture(ratioRelation(1, "1"))
	f.poster.script = []postOutcome{
		{result: domain.OrderResult{Success: false, Message: "market closed"}},
		{result: domain.OrderResult{Success: false, Message: "market closed"}},
	}
	trade := buyTrade("t1", "0.50", "10")

	// The per-relation error is contained; Execute itself reports success.
	if err := f.buyExecutor().Execute(context.Background(), testLeaderID, trade); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if got := len(f.trackings.all()); got != 0 {
		t.Fatalf("trackings=%d want=0", got)
	}
	if got := f.failed.count(); got != 1 {
		t.Fatalf("failed=%d want=1", got)
	}
	fr, err := f.failed.Get(context.Background(), testLeaderID, "t1")
	if err != nil {
		t.Fatalf("failed.Get: %v", err)
	}
	if fr.RetryCount != 1 {
		t.Fatalf("retryCount=%d want=1", fr.RetryCount)
	}
	// The ledger marks the trade FAILED so it is never retried.
	pr, err := f.processed.Get(context.Background(), testLeaderID, "t1")
	if err != nil {
		t.Fatalf("processed.Get: %v", err)
	}
	if pr.Status != domain.ProcessedFailed {
		t.Fatalf("status=%s want=FAILED", pr.Status)
	}
	if events := f.notifier.events(); len(events) != 1 || events[0] != EventCopyFailed {
		t.Fatalf("events=%v", events)
	}
}

func TestBuyExecutor_DisabledAccountSkips(t *testing.T) {
	f := newFixture(ratioRelation(1, "1"))
	acct := testAccount()
	acct.Enabled = false
	f.accounts.accounts[testAccountID] = acct

	if err := f.buyExecutor().Execute(context.Background(), testLeaderID, buyTrade("t1", "0.50", "10")); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := f.poster.callCount(); got != 0 {
		t.Fatalf("posts=%d want=0", got)
	}
}

func TestBuyExecutor_UndecryptableKeySkips(t *testing.T) {
	f := newFixture(ratioRelation(1, "1"))
	f.vault.failFor = "pk-cipher"

	if err := f.buyExecutor().Execute(context.Background(), testLeaderID, buyTrade("t1", "0.50", "10")); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := f.poster.callCount(); got != 0 {
		t.Fatalf("posts=%d want=0", got)
	}
	if got := f.failed.count(); got != 0 {
		t.Fatalf("failed=%d want=0", got)
	}
}

func TestBuyExecutor_TokenResolutionFailureSkips(t *testing.T) {
	f := newFixture(ratioRelation(1, "1"))
	f.resolver.tokens = map[string]string{}

	if err := f.buyExecutor().Execute(context.Background(), testLeaderID, buyTrade("t1", "0.50", "10")); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := f.poster.callCount(); got != 0 {
		t.Fatalf("posts=%d want=0", got)
	}
	if got := f.failed.count(); got != 0 {
		t.Fatalf("failed=%d want=0", got)
	}
}

func TestBuyExecutor_FansOutToAllRelations(t *testing.T) {
	relB := ratioRelation(2, "0.1")
	f := newFixture(ratioRelation(1, "0.5"), relB)

	if err := f.buyExecutor().Execute(context.Background(), testLeaderID, buyTrade("t1", "0.50", "100")); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	all := f.trackings.all()
	if len(all) != 2 {
		t.Fatalf("trackings=%d want=2", len(all))
	}
	total := decimal.Zero
	for _, tr := range all {
		total = total.Add(tr.Quantity)
	}
	if !total.Equal(dec("60")) { // 50 + 10
		t.Fatalf("total quantity=%s want=60", total)
	}
}

func TestBuyExecutor_OneRelationFailureDoesNotBlockOthers(t *testing.T) {
	relB := ratioRelation(2, "1")
	relB.AccountID = 999 // no such account
	f := newFixture(ratioRelation(1, "1"), relB)

	if err := f.buyExecutor().Execute(context.Background(), testLeaderID, buyTrade("t1", "0.50", "10")); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	all := f.trackings.all()
	if len(all) != 1 {
		t.Fatalf("trackings=%d want=1", len(all))
	}
	if all[0].CopyRelationID != 1 {
		t.Fatalf("relation=%d want=1", all[0].CopyRelationID)
	}
}
