package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/copybot/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// ---------------------------------------------------------------------------
// In-memory stores
// ---------------------------------------------------------------------------

func tradeKey(leaderID int64, tradeID string) string {
	return strconv.FormatInt(leaderID, 10) + "/" + tradeID
}

type memProcessed struct {
	mu   sync.Mutex
	rows map[string]domain.ProcessedTrade
	// beforeInsert, when set, runs inside Insert before the write. Used to
	// interleave a concurrent duplicate delivery.
	beforeInsert func()
}

func newMemProcessed() *memProcessed {
	return &memProcessed{rows: make(map[string]domain.ProcessedTrade)}
}

func (s *memProcessed) Get(ctx context.Context, leaderID int64, tradeID string) (domain.ProcessedTrade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rows[tradeKey(leaderID, tradeID)]
	if !ok {
		return domain.ProcessedTrade{}, domain.ErrNotFound
	}
	return rec, nil
}

func (s *memProcessed) Insert(ctx context.Context, rec domain.ProcessedTrade) error {
	if s.beforeInsert != nil {
		s.beforeInsert()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := tradeKey(rec.LeaderID, rec.LeaderTradeID)
	if _, ok := s.rows[key]; ok {
		return domain.ErrAlreadyExists
	}
	rec.ID = int64(len(s.rows) + 1)
	s.rows[key] = rec
	return nil
}

func (s *memProcessed) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

type memFailed struct {
	mu   sync.Mutex
	rows []domain.FailedTrade
}

func (s *memFailed) Get(ctx context.Context, leaderID int64, tradeID string) (domain.FailedTrade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.LeaderID == leaderID && r.LeaderTradeID == tradeID {
			return r, nil
		}
	}
	return domain.FailedTrade{}, domain.ErrNotFound
}

func (s *memFailed) Insert(ctx context.Context, rec domain.FailedTrade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = int64(len(s.rows) + 1)
	s.rows = append(s.rows, rec)
	return nil
}

func (s *memFailed) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

type memRelations struct {
	rels []domain.CopyRelation
}

func (s *memRelations) GetByID(ctx context.Context, id int64) (domain.CopyRelation, error) {
	for _, r := range s.rels {
		if r.ID == id {
			return r, nil
		}
	}
	return domain.CopyRelation{}, domain.ErrNotFound
}

func (s *memRelations) ListEnabledByLeader(ctx context.Context, leaderID int64) ([]domain.CopyRelation, error) {
	var out []domain.CopyRelation
	for _, r := range s.rels {
		if r.LeaderID == leaderID && r.Enabled {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memRelations) ListEnabled(ctx context.Context) ([]domain.CopyRelation, error) {
	var out []domain.CopyRelation
	for _, r := range s.rels {
		if r.Enabled {
			out = append(out, r)
		}
	}
	return out, nil
}

type memAccounts struct {
	accounts map[int64]domain.Account
}

func (s *memAccounts) GetByID(ctx context.Context, id int64) (domain.Account, error) {
	a, ok := s.accounts[id]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	return a, nil
}

func (s *memAccounts) ListEnabled(ctx context.Context) ([]domain.Account, error) {
	var out []domain.Account
	for _, a := range s.accounts {
		if a.Enabled {
			out = append(out, a)
		}
	}
	return out, nil
}

type memTrackings struct {
	mu   sync.Mutex
	rows []domain.CopyOrderTracking
	seq  int64
}

func (s *memTrackings) Create(ctx context.Context, t domain.CopyOrderTracking) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t.ID = s.seq
	// Creation order stands in for the timestamp so FIFO ordering is exact
	// even within one nanosecond tick.
	t.CreatedAt = time.Unix(s.seq, 0)
	s.rows = append(s.rows, t)
	return t.ID, nil
}

func (s *memTrackings) ListOpen(ctx context.Context, relationID int64, marketID string, outcomeIndex int) ([]domain.CopyOrderTracking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.CopyOrderTracking
	for _, t := range s.rows {
		if t.CopyRelationID == relationID && t.MarketID == marketID && t.OutcomeIndex == outcomeIndex &&
			t.RemainingQuantity.GreaterThan(decimal.Zero) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memTrackings) ApplyMatch(ctx context.Context, trackingID int64, qty decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		t := &s.rows[i]
		if t.ID != trackingID {
			continue
		}
		if t.RemainingQuantity.LessThan(qty) {
			return fmt.Errorf("tracking %d has insufficient remaining quantity for %s", trackingID, qty)
		}
		t.MatchedQuantity = t.MatchedQuantity.Add(qty)
		t.RemainingQuantity = t.RemainingQuantity.Sub(qty)
		t.RecomputeStatus()
		return nil
	}
	return domain.ErrNotFound
}

func (s *memTrackings) CountCreatedSince(ctx context.Context, relationID int64, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, t := range s.rows {
		if t.CopyRelationID == relationID {
			count++
		}
	}
	return count, nil
}

func (s *memTrackings) get(id int64) (domain.CopyOrderTracking, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.rows {
		if t.ID == id {
			return t, true
		}
	}
	return domain.CopyOrderTracking{}, false
}

func (s *memTrackings) all() []domain.CopyOrderTracking {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.CopyOrderTracking, len(s.rows))
	copy(out, s.rows)
	return out
}

type memMatches struct {
	mu      sync.Mutex
	records []domain.SellMatchRecord
	details [][]domain.SellMatchDetail
	// pnlOverride, when set, is returned by SumRealizedPnlSince.
	pnlOverride *decimal.Decimal
}

func (s *memMatches) CreateWithDetails(ctx context.Context, rec domain.SellMatchRecord, details []domain.SellMatchDetail) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = int64(len(s.records) + 1)
	rec.CreatedAt = time.Now()
	s.records = append(s.records, rec)
	s.details = append(s.details, details)
	return rec.ID, nil
}

func (s *memMatches) SumRealizedPnlSince(ctx context.Context, relationID int64, since time.Time) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pnlOverride != nil {
		return *s.pnlOverride, nil
	}
	sum := decimal.Zero
	for _, r := range s.records {
		if r.CopyRelationID == relationID {
			sum = sum.Add(r.TotalRealizedPnl)
		}
	}
	return sum, nil
}

func (s *memMatches) ListByRelationSince(ctx context.Context, relationID int64, since time.Time) ([]domain.SellMatchRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.SellMatchRecord
	for _, r := range s.records {
		if r.CopyRelationID == relationID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memMatches) all() []domain.SellMatchRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.SellMatchRecord, len(s.records))
	copy(out, s.records)
	return out
}

// ---------------------------------------------------------------------------
// Exchange-side fakes
// ---------------------------------------------------------------------------

// fakeSigner issues a distinct salt per call, mirroring the real signer's
// fresh-salt contract.
type fakeSigner struct {
	mu       sync.Mutex
	salts    []string
	failures int // number of initial calls that fail
}

func (f *fakeSigner) SignOrder(privateKeyHex, makerAddress, tokenID string, side domain.OrderSide, price, size decimal.Decimal) (domain.SignedOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return domain.SignedOrder{}, fmt.Errorf("signer broken")
	}
	salt := strconv.Itoa(len(f.salts) + 1)
	f.salts = append(f.salts, salt)
	sideInt := 0
	if side == domain.OrderSideSell {
		sideInt = 1
	}
	return domain.SignedOrder{
		Salt:      salt,
		Maker:     makerAddress,
		Signer:    makerAddress,
		TokenID:   tokenID,
		Side:      sideInt,
		Signature: "0xsig" + salt,
	}, nil
}

type postCall struct {
	order     domain.SignedOrder
	orderType domain.OrderType
}

type postOutcome struct {
	result domain.OrderResult
	err    error
}

// scriptedPoster returns queued outcomes in order; once the script is
// exhausted every further post succeeds.
type scriptedPoster struct {
	mu     sync.Mutex
	script []postOutcome
	calls  []postCall
	seq    int
}

func (f *scriptedPoster) PostOrder(ctx context.Context, order domain.SignedOrder, cred Credential, orderType domain.OrderType) (domain.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, postCall{order: order, orderType: orderType})
	if len(f.script) > 0 {
		out := f.script[0]
		f.script = f.script[1:]
		return out.result, out.err
	}
	f.seq++
	return domain.OrderResult{Success: true, OrderID: fmt.Sprintf("ord-%d", f.seq)}, nil
}

func (f *scriptedPoster) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeResolver struct {
	tokens map[string]string // "market:idx" -> tokenID
	err    error
}

func (f *fakeResolver) ResolveTokenID(ctx context.Context, marketID string, outcomeIndex int) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	token, ok := f.tokens[fmt.Sprintf("%s:%d", marketID, outcomeIndex)]
	if !ok {
		return "", domain.ErrNotFound
	}
	return token, nil
}

// plainVault returns ciphertexts unchanged, treating them as plaintext.
type plainVault struct {
	failFor string
}

func (v *plainVault) Decrypt(ciphertext string) (string, error) {
	if v.failFor != "" && ciphertext == v.failFor {
		return "", fmt.Errorf("bad ciphertext")
	}
	return ciphertext, nil
}

type notification struct {
	event, title, message string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *recordingNotifier) Notify(ctx context.Context, event, title, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{event: event, title: title, message: message})
	return nil
}

func (n *recordingNotifier) events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, s := range n.sent {
		out = append(out, s.event)
	}
	return out
}

// noSleep satisfies sleepFunc without waiting.
func noSleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

const (
	testLeaderID  = int64(1)
	testAccountID = int64(10)
	testMarket    = "0xcond"
)

func testAccount() domain.Account {
	return domain.Account{
		ID:            testAccountID,
		Name:          "follower",
		WalletAddress: "0xeoa",
		ProxyAddress:  "0xproxy",
		PrivateKey:    "pk-cipher",
		APIKey:        "api-key",
		APISecret:     "secret-cipher",
		APIPassphrase: "phrase-cipher",
		Enabled:       true,
	}
}

func ratioRelation(id int64, ratio string) domain.CopyRelation {
	return domain.CopyRelation{
		ID:          id,
		AccountID:   testAccountID,
		LeaderID:    testLeaderID,
		Mode:        domain.CopyModeRatio,
		Ratio:       dec(ratio),
		SupportSell: true,
		Enabled:     true,
	}
}

func buyTrade(id string, price, size string) domain.LeaderTrade {
	return domain.LeaderTrade{
		ID:           id,
		MarketID:     testMarket,
		OutcomeIndex: 0,
		Side:         domain.TradeSideBuy,
		Price:        dec(price),
		Size:         dec(size),
		Timestamp:    time.Now(),
	}
}

func sellTrade(id string, price, size string) domain.LeaderTrade {
	t := buyTrade(id, price, size)
	t.Side = domain.TradeSideSell
	return t
}

// engineFixture bundles every fake the executors need.
type engineFixture struct {
	relations *memRelations
	accounts  *memAccounts
	trackings *memTrackings
	matches   *memMatches
	processed *memProcessed
	failed    *memFailed
	signer    *fakeSigner
	poster    *scriptedPoster
	resolver  *fakeResolver
	vault     *plainVault
	notifier  *recordingNotifier
	submitter *Submitter
}

func newFixture(rels ...domain.CopyRelation) *engineFixture {
	f := &engineFixture{
		relations: &memRelations{rels: rels},
		accounts:  &memAccounts{accounts: map[int64]domain.Account{testAccountID: testAccount()}},
		trackings: &memTrackings{},
		matches:   &memMatches{},
		processed: newMemProcessed(),
		failed:    &memFailed{},
		signer:    &fakeSigner{},
		poster:    &scriptedPoster{},
		resolver:  &fakeResolver{tokens: map[string]string{testMarket + ":0": "token-0"}},
		vault:     &plainVault{},
		notifier:  &recordingNotifier{},
	}
	f.submitter = NewSubmitter(f.signer, f.poster, discardLogger())
	f.submitter.sleep = noSleep
	return f
}

func (f *engineFixture) buyExecutor() *BuyExecutor {
	risk := NewRiskGate(f.trackings, f.matches, discardLogger())
	e := NewBuyExecutor(f.relations, f.accounts, f.trackings, f.processed, f.failed,
		risk, f.submitter, f.resolver, f.vault, f.notifier, discardLogger())
	e.sleep = noSleep
	return e
}

func (f *engineFixture) sellMatcher(locks domain.LockManager) *SellMatcher {
	return NewSellMatcher(f.relations, f.accounts, f.trackings, f.matches, f.processed,
		f.failed, locks, f.resolver, f.vault, f.submitter, f.notifier, discardLogger())
}
