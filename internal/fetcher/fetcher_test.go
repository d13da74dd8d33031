package fetcher

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"trade-alert/internal/alerts"
	"trade-alert/internal/config"
	apperrors "trade-alert/internal/errors"
	"trade-alert/internal/models"
	"trade-alert/internal/quote"
	"trade-alert/internal/store"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeSource fails the first failures calls with err and then returns price.
// Fetching panicOn panics.
type fakeSource struct {
	name     models.PriceSource
	price    string
	failures int
	err      error
	panicOn  string
	now      func() time.Time
	calls    atomic.Int32
}

func (f *fakeSource) Name() models.PriceSource { return f.name }

func (f *fakeSource) Fetch(_ context.Context, symbol string) (*models.PriceSample, error) {
	n := int(f.calls.Add(1))
	if symbol == f.panicOn {
		panic("quote decoder blew up on " + symbol)
	}
	if f.failures < 0 || n <= f.failures {
		return nil, f.err
	}
	now := time.Now
	if f.now != nil {
		now = f.now
	}
	return &models.PriceSample{
		Symbol:    symbol,
		Name:      symbol,
		Price:     decimal.RequireFromString(f.price),
		Volume:    1000,
		Timestamp: now().UTC(),
		Source:    f.name,
	}, nil
}

// blockingSource holds its fetch open until release is closed.
type blockingSource struct {
	price   string
	started chan struct{}
	release chan struct{}
	ctxErr  error
}

func (b *blockingSource) Name() models.PriceSource { return models.SourceYahoo }

func (b *blockingSource) Fetch(ctx context.Context, symbol string) (*models.PriceSample, error) {
	close(b.started)
	<-b.release
	b.ctxErr = ctx.Err()
	return &models.PriceSample{
		Symbol:    symbol,
		Name:      symbol,
		Price:     decimal.RequireFromString(b.price),
		Volume:    1000,
		Timestamp: time.Now().UTC(),
		Source:    models.SourceYahoo,
	}, nil
}

// failingSaveStore rejects every price history write.
type failingSaveStore struct {
	*store.SQLiteStore
	saves atomic.Int32
}

func (s *failingSaveStore) SavePrice(context.Context, models.PriceBar) error {
	s.saves.Add(1)
	return errors.New("disk I/O error")
}

type countingNotifier struct {
	calls atomic.Int32
}

func (n *countingNotifier) SendAlertNotification(context.Context, models.Alert, decimal.Decimal) error {
	n.calls.Add(1)
	return nil
}

func testFetcherConfig() config.PriceFetcherConfig {
	return config.PriceFetcherConfig{
		UpdateIntervalSecs:    60,
		CacheTTLSecs:          30,
		MaxRetries:            3,
		MaxConcurrentRequests: 5,
		MaxRequestsPerHour:    1000,
		RateLimitBackoffSecs:  60,
		RetryBaseDelayMillis:  0,
	}
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "fetcher.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func newTestService(t *testing.T, st store.Store, sources quote.Sources, notifier alerts.Notifier) *Service {
	t.Helper()
	ev := alerts.NewEvaluator(st, notifier, zerolog.Nop())
	return NewService(testFetcherConfig(), st, sources, ev, zerolog.Nop())
}

func createAlert(t *testing.T, st store.AlertStore, symbol string, cond models.AlertCondition, price string) *models.Alert {
	t.Helper()
	a, err := st.CreateAlert(context.Background(), models.CreateAlertRequest{
		UserID:    "local",
		Symbol:    symbol,
		Condition: cond,
		Price:     decimal.RequireFromString(price),
	})
	if err != nil {
		t.Fatalf("CreateAlert: %v", err)
	}
	return a
}

func TestPriceCacheFreshness(t *testing.T) {
	clock := newFakeClock()
	c := NewPriceCache(30 * time.Second)
	c.now = clock.Now

	if c.IsFresh("AAPL") {
		t.Error("empty cache reported fresh")
	}

	c.Put(models.PriceSample{Symbol: "AAPL", Price: decimal.NewFromInt(1), Timestamp: clock.Now()})
	clock.Advance(29 * time.Second)
	if !c.IsFresh("AAPL") {
		t.Error("29s old entry should be fresh")
	}
	clock.Advance(time.Second)
	if c.IsFresh("AAPL") {
		t.Error("30s old entry should be stale")
	}
	if _, ok := c.Get("AAPL"); !ok {
		t.Error("stale entries are kept")
	}
}

func TestRateBudgetWindow(t *testing.T) {
	clock := newFakeClock()
	b := newRateBudget(2, clock.Now)

	b.Record()
	b.Record()
	if b.Allow() {
		t.Error("budget should be exhausted")
	}

	clock.Advance(59 * time.Minute)
	b.Reset()
	if b.Allow() {
		t.Error("window has not elapsed yet")
	}

	clock.Advance(time.Minute)
	b.Reset()
	if !b.Allow() || b.Used() != 0 {
		t.Errorf("window should reset, used=%d", b.Used())
	}
}

func TestWaitForBudgetDefersOnlyUntilReset(t *testing.T) {
	st := newTestStore(t)
	svc := newTestService(t, st, quote.Sources{}, nil)
	clock := newFakeClock()
	svc.budget = newRateBudget(1, clock.Now)
	svc.budgetBackoff = 5 * time.Millisecond
	svc.budget.Record()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	err := svc.waitForBudget(ctx, "AAPL")
	cancel()
	if !errors.Is(err, apperrors.ErrRateLimited) {
		t.Fatalf("got %v, want ErrRateLimited", err)
	}

	done := make(chan error, 1)
	go func() { done <- svc.waitForBudget(context.Background(), "AAPL") }()
	time.Sleep(20 * time.Millisecond)
	clock.Advance(time.Hour)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("waitForBudget: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waitForBudget did not resume after the window reset")
	}
}

func TestGlobalSymbolTriggersAbove(t *testing.T) {
	st := newTestStore(t)
	alert := createAlert(t, st, "AAPL", models.ConditionAbove, "150")

	yahoo := &fakeSource{name: models.SourceYahoo, price: "151"}
	notifier := &countingNotifier{}
	svc := newTestService(t, st, quote.Sources{Global: yahoo}, notifier)

	if err := svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	got, err := st.GetAlert(context.Background(), alert.ID)
	if err != nil {
		t.Fatalf("GetAlert: %v", err)
	}
	if got.Status != models.StatusTriggered || got.TriggeredAt == nil {
		t.Errorf("alert not triggered: %+v", got)
	}
	if n := notifier.calls.Load(); n != 1 {
		t.Errorf("notifications = %d, want 1", n)
	}

	bar, err := st.LatestPrice(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("LatestPrice: %v", err)
	}
	if !bar.Close.Equal(decimal.NewFromInt(151)) {
		t.Errorf("stored close = %s", bar.Close)
	}
	if svc.budget.Used() != 1 {
		t.Errorf("budget used = %d, want 1", svc.budget.Used())
	}

	// Triggered alerts are no longer watched.
	if err := svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if yahoo.calls.Load() != 1 || notifier.calls.Load() != 1 {
		t.Error("second pass should do nothing")
	}
}

func TestDomesticSymbolFallsBackToSecondary(t *testing.T) {
	st := newTestStore(t)
	alert := createAlert(t, st, "000001.SZ", models.ConditionBelow, "10")

	primary := &fakeSource{
		name:     models.SourceSina,
		failures: -1,
		err:      apperrors.NewNetworkError("sina", "000001.SZ", errors.New("connection refused")),
	}
	secondary := &fakeSource{name: models.SourceTencent, price: "9.80"}
	global := &fakeSource{name: models.SourceYahoo, price: "1"}
	notifier := &countingNotifier{}
	svc := newTestService(t, st, quote.Sources{Global: global, DomesticPrimary: primary, DomesticSecondary: secondary}, notifier)

	res, err := svc.ProcessSymbol(context.Background(), "000001.SZ")
	if err != nil {
		t.Fatalf("ProcessSymbol: %v", err)
	}
	if primary.calls.Load() != 3 {
		t.Errorf("primary calls = %d, want 3", primary.calls.Load())
	}
	if secondary.calls.Load() != 1 {
		t.Errorf("secondary calls = %d, want 1", secondary.calls.Load())
	}
	if global.calls.Load() != 0 {
		t.Error("global source must not be used for domestic symbols")
	}
	if res.Sample.Source != models.SourceTencent || res.Triggered != 1 {
		t.Errorf("result = %+v", res)
	}

	got, _ := st.GetAlert(context.Background(), alert.ID)
	if got.Status != models.StatusTriggered {
		t.Errorf("status = %s", got.Status)
	}
	if notifier.calls.Load() != 1 {
		t.Errorf("notifications = %d", notifier.calls.Load())
	}
}

func TestNonRetryableErrorSkipsRetries(t *testing.T) {
	st := newTestStore(t)
	primary := &fakeSource{name: models.SourceSina, failures: -1, err: errors.New("bad symbol")}
	secondary := &fakeSource{name: models.SourceTencent, price: "12.5"}
	svc := newTestService(t, st, quote.Sources{DomesticPrimary: primary, DomesticSecondary: secondary}, nil)

	if _, err := svc.ProcessSymbol(context.Background(), "600519.SS"); err != nil {
		t.Fatalf("ProcessSymbol: %v", err)
	}
	if primary.calls.Load() != 1 {
		t.Errorf("primary calls = %d, want 1", primary.calls.Load())
	}
}

func TestRetryRecoversWithinSource(t *testing.T) {
	st := newTestStore(t)
	yahoo := &fakeSource{
		name:     models.SourceYahoo,
		price:    "42",
		failures: 2,
		err:      apperrors.NewUpstreamError("yahoo", "MSFT", "", "HTTP 503"),
	}
	svc := newTestService(t, st, quote.Sources{Global: yahoo}, nil)

	res, err := svc.ProcessSymbol(context.Background(), "MSFT")
	if err != nil {
		t.Fatalf("ProcessSymbol: %v", err)
	}
	if yahoo.calls.Load() != 3 || res.Sample.Source != models.SourceYahoo {
		t.Errorf("calls=%d source=%s", yahoo.calls.Load(), res.Sample.Source)
	}
}

func TestAllSourcesFailUsesSyntheticPrice(t *testing.T) {
	st := newTestStore(t)
	yahoo := &fakeSource{
		name:     models.SourceYahoo,
		failures: -1,
		err:      apperrors.NewNetworkError("yahoo", "TSLA", errors.New("timeout")),
	}
	svc := newTestService(t, st, quote.Sources{Global: yahoo}, nil)

	res, err := svc.ProcessSymbol(context.Background(), "TSLA")
	if err != nil {
		t.Fatalf("ProcessSymbol: %v", err)
	}
	s := res.Sample
	if s.Source != models.SourceFallback {
		t.Fatalf("source = %s", s.Source)
	}
	if s.Price.LessThan(decimal.NewFromInt(99)) || s.Price.GreaterThan(decimal.NewFromInt(101)) {
		t.Errorf("synthetic price %s outside [99, 101]", s.Price)
	}
	if s.Name != "TSLA Corporation" {
		t.Errorf("name = %q", s.Name)
	}
	if svc.budget.Used() != 0 {
		t.Error("synthetic samples must not consume budget")
	}
	if _, err := st.LatestPrice(context.Background(), "TSLA"); err != nil {
		t.Errorf("synthetic sample not recorded: %v", err)
	}
	if !svc.Cache().IsFresh("TSLA") {
		t.Error("synthetic sample should be cached")
	}
}

func TestCacheHitIsNoOp(t *testing.T) {
	st := newTestStore(t)
	yahoo := &fakeSource{name: models.SourceYahoo, price: "10"}
	svc := newTestService(t, st, quote.Sources{Global: yahoo}, nil)

	if _, err := svc.ProcessSymbol(context.Background(), "NVDA"); err != nil {
		t.Fatalf("ProcessSymbol: %v", err)
	}
	res, err := svc.ProcessSymbol(context.Background(), "NVDA")
	if err != nil {
		t.Fatalf("ProcessSymbol: %v", err)
	}
	if !res.CacheHit || res.Sample != nil {
		t.Errorf("expected cache hit, got %+v", res)
	}
	if yahoo.calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", yahoo.calls.Load())
	}
}

func TestCancelledContextSkipsFallback(t *testing.T) {
	st := newTestStore(t)
	yahoo := &fakeSource{name: models.SourceYahoo, price: "10"}
	svc := newTestService(t, st, quote.Sources{Global: yahoo}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := svc.ProcessSymbol(ctx, "AMD"); err == nil {
		t.Fatal("expected error on cancelled context")
	}
	if _, err := st.LatestPrice(context.Background(), "AMD"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("nothing should be recorded, got %v", err)
	}
}

func TestFallbackUsesLastClose(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	if err := st.SavePrice(ctx, models.BarFromSample(models.PriceSample{
		Symbol: "IBM", Price: decimal.NewFromInt(200), Volume: 1, Timestamp: time.Now(),
	})); err != nil {
		t.Fatalf("SavePrice: %v", err)
	}

	g := NewFallbackGenerator(st, zerolog.Nop())
	for i := 0; i < 50; i++ {
		s := g.Generate(ctx, "IBM")
		if s.Price.LessThan(decimal.NewFromInt(198)) || s.Price.GreaterThan(decimal.NewFromInt(202)) {
			t.Fatalf("price %s outside ±1%% of 200", s.Price)
		}
		if s.Volume < 1000 || s.Volume >= 11000 {
			t.Fatalf("volume %d out of range", s.Volume)
		}
		if !s.Price.Equal(s.Price.Round(2)) {
			t.Fatalf("price %s not rounded to cents", s.Price)
		}
	}
}

func TestRunOnceIsolatesSymbols(t *testing.T) {
	st := newTestStore(t)
	aapl := createAlert(t, st, "AAPL", models.ConditionAbove, "150")
	msft := createAlert(t, st, "MSFT", models.ConditionAbove, "150")

	yahoo := &fakeSource{name: models.SourceYahoo, price: "151", panicOn: "MSFT"}
	notifier := &countingNotifier{}
	svc := newTestService(t, st, quote.Sources{Global: yahoo}, notifier)

	if err := svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if !svc.Cache().IsFresh("AAPL") {
		t.Error("AAPL should be cached despite the MSFT failure")
	}
	if _, ok := svc.Cache().Get("MSFT"); ok {
		t.Error("MSFT must not be cached")
	}
	got, _ := st.GetAlert(context.Background(), aapl.ID)
	if got.Status != models.StatusTriggered {
		t.Errorf("AAPL status = %s, want triggered", got.Status)
	}
	got, _ = st.GetAlert(context.Background(), msft.ID)
	if got.Status != models.StatusActive {
		t.Errorf("MSFT status = %s, want active", got.Status)
	}
	if notifier.calls.Load() != 1 {
		t.Errorf("notifications = %d, want 1", notifier.calls.Load())
	}

	// The permit taken by the panicking task was released.
	if !svc.permits.TryAcquire(int64(testFetcherConfig().MaxConcurrentRequests)) {
		t.Error("permits leaked by the panicking task")
	}
}

func TestHistoryWriteFailureStillTriggers(t *testing.T) {
	st := &failingSaveStore{SQLiteStore: newTestStore(t)}
	alert := createAlert(t, st, "AAPL", models.ConditionAbove, "150")

	yahoo := &fakeSource{name: models.SourceYahoo, price: "151"}
	notifier := &countingNotifier{}
	svc := newTestService(t, st, quote.Sources{Global: yahoo}, notifier)

	res, err := svc.ProcessSymbol(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("ProcessSymbol: %v", err)
	}
	if st.saves.Load() != 1 {
		t.Errorf("SavePrice calls = %d, want 1", st.saves.Load())
	}
	if res.Triggered != 1 || notifier.calls.Load() != 1 {
		t.Errorf("triggered = %d, notifications = %d, want 1 and 1", res.Triggered, notifier.calls.Load())
	}
	if !svc.Cache().IsFresh("AAPL") {
		t.Error("sample should be cached even though it was not persisted")
	}
	got, _ := st.GetAlert(context.Background(), alert.ID)
	if got.Status != models.StatusTriggered {
		t.Errorf("status = %s, want triggered", got.Status)
	}
}

func TestExhaustedBudgetMakesNoUpstreamCall(t *testing.T) {
	st := newTestStore(t)
	yahoo := &fakeSource{name: models.SourceYahoo, price: "10"}
	svc := newTestService(t, st, quote.Sources{Global: yahoo}, nil)
	clock := newFakeClock()
	svc.budget = newRateBudget(1, clock.Now)
	svc.budgetBackoff = 5 * time.Millisecond

	if _, err := svc.ProcessSymbol(context.Background(), "AAPL"); err != nil {
		t.Fatalf("ProcessSymbol: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	_, err := svc.ProcessSymbol(ctx, "MSFT")
	cancel()
	if !errors.Is(err, apperrors.ErrRateLimited) {
		t.Fatalf("got %v, want ErrRateLimited", err)
	}
	if n := yahoo.calls.Load(); n != 1 {
		t.Errorf("upstream calls = %d, want 1", n)
	}
	if _, ok := svc.Cache().Get("MSFT"); ok {
		t.Error("deferred symbol must not be cached")
	}

	clock.Advance(time.Hour)
	if _, err := svc.ProcessSymbol(context.Background(), "MSFT"); err != nil {
		t.Fatalf("ProcessSymbol after reset: %v", err)
	}
	if n := yahoo.calls.Load(); n != 2 {
		t.Errorf("upstream calls = %d, want 2", n)
	}
}

func TestCacheTTLGatesUpstreamCalls(t *testing.T) {
	st := newTestStore(t)
	clock := newFakeClock()
	yahoo := &fakeSource{name: models.SourceYahoo, price: "10", now: clock.Now}
	svc := newTestService(t, st, quote.Sources{Global: yahoo}, nil)
	svc.cache.now = clock.Now
	ttl := testFetcherConfig().CacheTTL()

	if _, err := svc.ProcessSymbol(context.Background(), "NVDA"); err != nil {
		t.Fatalf("ProcessSymbol: %v", err)
	}

	clock.Advance(ttl - time.Millisecond)
	res, err := svc.ProcessSymbol(context.Background(), "NVDA")
	if err != nil || !res.CacheHit {
		t.Fatalf("within TTL: res = %+v, err = %v", res, err)
	}
	if n := yahoo.calls.Load(); n != 1 {
		t.Errorf("calls within TTL = %d, want 1", n)
	}

	clock.Advance(2 * time.Millisecond)
	res, err = svc.ProcessSymbol(context.Background(), "NVDA")
	if err != nil || res.CacheHit {
		t.Fatalf("after TTL: res = %+v, err = %v", res, err)
	}
	if n := yahoo.calls.Load(); n != 2 {
		t.Errorf("calls after TTL = %d, want 2", n)
	}
}

func TestShutdownLetsInFlightFetchFinish(t *testing.T) {
	st := newTestStore(t)
	alert := createAlert(t, st, "AAPL", models.ConditionAbove, "150")

	src := &blockingSource{price: "151", started: make(chan struct{}), release: make(chan struct{})}
	notifier := &countingNotifier{}
	svc := newTestService(t, st, quote.Sources{Global: src}, notifier)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := svc.ProcessSymbol(ctx, "AAPL")
		done <- outcome{res, err}
	}()

	<-src.started
	cancel()
	close(src.release)

	var out outcome
	select {
	case out = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ProcessSymbol did not return")
	}
	if out.err != nil {
		t.Fatalf("ProcessSymbol: %v", out.err)
	}
	if src.ctxErr != nil {
		t.Errorf("request context was cancelled mid-fetch: %v", src.ctxErr)
	}
	if out.res.Triggered != 1 || notifier.calls.Load() != 1 {
		t.Errorf("triggered = %d, notifications = %d", out.res.Triggered, notifier.calls.Load())
	}
	if _, err := st.LatestPrice(context.Background(), "AAPL"); err != nil {
		t.Errorf("fetched price not recorded: %v", err)
	}
	got, _ := st.GetAlert(context.Background(), alert.ID)
	if got.Status != models.StatusTriggered {
		t.Errorf("status = %s, want triggered", got.Status)
	}

	// A new symbol is not started once shutdown has begun.
	if _, err := svc.ProcessSymbol(ctx, "MSFT"); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}
