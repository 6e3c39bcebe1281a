package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/copybot/internal/cache/memory"
	"github.com/alanyoungcy/copybot/internal/domain"
)

// openTracking seeds one open buy position for the given relation.
func openTracking(t *testing.T, f *engineFixture, relationID int64, qty, price string) int64 {
	t.Helper()
	id, err := f.trackings.Create(context.Background(), domain.CopyOrderTracking{
		CopyRelationID:    relationID,
		AccountID:         testAccountID,
		LeaderID:          testLeaderID,
		MarketID:          testMarket,
		OutcomeIndex:      0,
		BuyOrderID:        fmt.Sprintf("buy-%s", qty),
		Quantity:          dec(qty),
		Price:             dec(price),
		MatchedQuantity:   decimal.Zero,
		RemainingQuantity: dec(qty),
		Status:            domain.TrackingFilled,
	})
	if err != nil {
		t.Fatalf("Create tracking: %v", err)
	}
	return id
}

func TestSellMatcher_FIFOSweepAcrossTrackings(t *testing.T) {
	f := newFixture(ratioRelation(1, "1"))
	first := openTracking(t, f, 1, "5", "0.40")
	second := openTracking(t, f, 1, "5", "0.50")
	third := openTracking(t, f, 1, "5", "0.60")

	m := f.sellMatcher(memory.NewKeyedLock())
	if err := m.Match(context.Background(), testLeaderID, sellTrade("s1", "0.70", "8")); err != nil {
		t.Fatalf("Match: %v", err)
	}

	// Oldest first: 5 from the first tracking, 3 from the second, none from
	// the third.
	tr1, _ := f.trackings.get(first)
	if !tr1.RemainingQuantity.IsZero() || tr1.Status != domain.TrackingFullyMatched {
		t.Fatalf("first: remaining=%s status=%s", tr1.RemainingQuantity, tr1.Status)
	}
	tr2, _ := f.trackings.get(second)
	if !tr2.RemainingQuantity.Equal(dec("2")) || tr2.Status != domain.TrackingPartiallyMatched {
		t.Fatalf("second: remaining=%s status=%s", tr2.RemainingQuantity, tr2.Status)
	}
	tr3, _ := f.trackings.get(third)
	if !tr3.RemainingQuantity.Equal(dec("5")) || tr3.Status != domain.TrackingFilled {
		t.Fatalf("third: remaining=%s status=%s", tr3.RemainingQuantity, tr3.Status)
	}

	records := f.matches.all()
	if len(records) != 1 {
		t.Fatalf("records=%d want=1", len(records))
	}
	rec := records[0]
	if !rec.TotalMatchedQuantity.Equal(dec("8")) {
		t.Fatalf("matched=%s want=8", rec.TotalMatchedQuantity)
	}
	// (0.70-0.40)*5 + (0.70-0.50)*3 = 1.5 + 0.6
	if !rec.TotalRealizedPnl.Equal(dec("2.1")) {
		t.Fatalf("pnl=%s want=2.1", rec.TotalRealizedPnl)
	}
	if rec.LeaderSellTradeID != "s1" || rec.SellOrderID == "" {
		t.Fatalf("record=%+v", rec)
	}

	details := f.matches.details[0]
	if len(details) != 2 {
		t.Fatalf("details=%d want=2", len(details))
	}
	if details[0].TrackingID != first || !details[0].MatchedQuantity.Equal(dec("5")) || !details[0].RealizedPnl.Equal(dec("1.5")) {
		t.Fatalf("detail[0]=%+v", details[0])
	}
	if details[1].TrackingID != second || !details[1].MatchedQuantity.Equal(dec("3")) || !details[1].RealizedPnl.Equal(dec("0.6")) {
		t.Fatalf("detail[1]=%+v", details[1])
	}

	// One aggregate order covers the whole sweep.
	if got := f.poster.callCount(); got != 1 {
		t.Fatalf("posts=%d want=1", got)
	}
	if events := f.notifier.events(); len(events) != 1 || events[0] != EventSellMatched {
		t.Fatalf("events=%v", events)
	}
}

func TestSellMatcher_NeededScaledByRatio(t *testing.T) {
	f := newFixture(ratioRelation(1, "0.5"))
	id := openTracking(t, f, 1, "10", "0.40")

	m := f.sellMatcher(memory.NewKeyedLock())
	if err := m.Match(context.Background(), testLeaderID, sellTrade("s1", "0.60", "8")); err != nil {
		t.Fatalf("Match: %v", err)
	}

	tr, _ := f.trackings.get(id)
	if !tr.MatchedQuantity.Equal(dec("4")) { // 8 * 0.5
		t.Fatalf("matched=%s want=4", tr.MatchedQuantity)
	}
}

func TestSellMatcher_OversizedSellConsumesEverything(t *testing.T) {
	f := newFixture(ratioRelation(1, "1"))
	openTracking(t, f, 1, "5", "0.40")
	openTracking(t, f, 1, "5", "0.50")

	m := f.sellMatcher(memory.NewKeyedLock())
	if err := m.Match(context.Background(), testLeaderID, sellTrade("s1", "0.60", "100")); err != nil {
		t.Fatalf("Match: %v", err)
	}

	records := f.matches.all()
	if len(records) != 1 {
		t.Fatalf("records=%d want=1", len(records))
	}
	if !records[0].TotalMatchedQuantity.Equal(dec("10")) {
		t.Fatalf("matched=%s want=10", records[0].TotalMatchedQuantity)
	}
	for _, tr := range f.trackings.all() {
		if !tr.RemainingQuantity.IsZero() || tr.Status != domain.TrackingFullyMatched {
			t.Fatalf("tracking %d: remaining=%s status=%s", tr.ID, tr.RemainingQuantity, tr.Status)
		}
	}
}

func TestSellMatcher_NoOpenPositionsIsNoOp(t *testing.T) {
	f := newFixture(ratioRelation(1, "1"))

	m := f.sellMatcher(memory.NewKeyedLock())
	if err := m.Match(context.Background(), testLeaderID, sellTrade("s1", "0.60", "10")); err != nil {
		t.Fatalf("Match: %v", err)
	}
	if got := f.poster.callCount(); got != 0 {
		t.Fatalf("posts=%d want=0", got)
	}
	if got := len(f.matches.all()); got != 0 {
		t.Fatalf("records=%d want=0", got)
	}
}

func TestSellMatcher_SellDisabledRelationSkipped(t *testing.T) {
	rel := ratioRelation(1, "1")
	rel.SupportSell = false
	f := newFixture(rel)
	openTracking(t, f, 1, "5", "0.40")

	m := f.sellMatcher(memory.NewKeyedLock())
	if err := m.Match(context.Background(), testLeaderID, sellTrade("s1", "0.60", "5")); err != nil {
		t.Fatalf("Match: %v", err)
	}
	if got := f.poster.callCount(); got != 0 {
		t.Fatalf("posts=%d want=0", got)
	}
}

func TestSellMatcher_PriceToleranceChasesDown(t *testing.T) {
	rel := ratioRelation(1, "1")
	rel.PriceTolerance = dec("10")
	f := newFixture(rel)
	openTracking(t, f, 1, "5", "0.40")

	m := f.sellMatcher(memory.NewKeyedLock())
	if err := m.Match(context.Background(), testLeaderID, sellTrade("s1", "0.60", "5")); err != nil {
		t.Fatalf("Match: %v", err)
	}

	records := f.matches.all()
	if len(records) != 1 {
		t.Fatalf("records=%d want=1", len(records))
	}
	if !records[0].SellPrice.Equal(dec("0.54")) {
		t.Fatalf("sellPrice=%s want=0.54", records[0].SellPrice)
	}
	// P&L is computed against the adjusted sell price: (0.54-0.40)*5.
	if !records[0].TotalRealizedPnl.Equal(dec("0.7")) {
		t.Fatalf("pnl=%s want=0.7", records[0].TotalRealizedPnl)
	}
}

func TestSellMatcher_SubmissionFailureLeavesTrackingsUntouched(t *testing.T) {
	f := newFixture(ratioRelation(1, "1"))
	id := openTracking(t, f, 1, "5", "0.40")
	f.poster.script = []postOutcome{
		{result: domain.OrderResult{Success: false, Message: "market closed"}},
		{result: domain.OrderResult{Success: false, Message: "market closed"}},
	}

	m := f.sellMatcher(memory.NewKeyedLock())
	// The per-relation error is contained; Match itself reports success.
	if err := m.Match(context.Background(), testLeaderID, sellTrade("s1", "0.60", "5")); err != nil {
		t.Fatalf("Match: %v", err)
	}

	tr, _ := f.trackings.get(id)
	if !tr.RemainingQuantity.Equal(dec("5")) || !tr.MatchedQuantity.IsZero() {
		t.Fatalf("tracking mutated: remaining=%s matched=%s", tr.RemainingQuantity, tr.MatchedQuantity)
	}
	if got := len(f.matches.all()); got != 0 {
		t.Fatalf("records=%d want=0", got)
	}
	if got := f.failed.count(); got != 1 {
		t.Fatalf("failed=%d want=1", got)
	}
	if events := f.notifier.events(); len(events) != 1 || events[0] != EventCopyFailed {
		t.Fatalf("events=%v", events)
	}
}

// Concurrent sells against the same position pool must never consume more
// than the open inventory: the per-(relation, market, outcome) lock
// serializes the sweeps.
func TestSellMatcher_ConcurrentSellsNeverOversell(t *testing.T) {
	f := newFixture(ratioRelation(1, "1"))
	openTracking(t, f, 1, "4", "0.40")
	openTracking(t, f, 1, "4", "0.45")
	openTracking(t, f, 1, "4", "0.50")

	m := f.sellMatcher(memory.NewKeyedLock())

	const sellers = 8
	var wg sync.WaitGroup
	for i := 0; i < sellers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			trade := sellTrade(fmt.Sprintf("s%d", i), "0.60", "3")
			if err := m.Match(context.Background(), testLeaderID, trade); err != nil {
				t.Errorf("Match s%d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	totalMatched := decimal.Zero
	for _, rec := range f.matches.all() {
		totalMatched = totalMatched.Add(rec.TotalMatchedQuantity)
	}
	if totalMatched.GreaterThan(dec("12")) {
		t.Fatalf("oversold: matched=%s inventory=12", totalMatched)
	}

	remaining := decimal.Zero
	for _, tr := range f.trackings.all() {
		if tr.RemainingQuantity.IsNegative() {
			t.Fatalf("tracking %d went negative: %s", tr.ID, tr.RemainingQuantity)
		}
		if !tr.MatchedQuantity.Add(tr.RemainingQuantity).Equal(tr.Quantity) {
			t.Fatalf("tracking %d broke quantity invariant: matched=%s remaining=%s quantity=%s",
				tr.ID, tr.MatchedQuantity, tr.RemainingQuantity, tr.Quantity)
		}
		remaining = remaining.Add(tr.RemainingQuantity)
	}
	if !totalMatched.Add(remaining).Equal(dec("12")) {
		t.Fatalf("inventory leak: matched=%s remaining=%s", totalMatched, remaining)
	}
}
