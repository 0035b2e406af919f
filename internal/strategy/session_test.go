package strategy

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/updownbot/internal/arbitrage"
	"github.com/alanyoungcy/updownbot/internal/book"
	"github.com/alanyoungcy/updownbot/internal/domain"
)

type fakeData struct {
	mu     sync.Mutex
	events chan domain.BookEvent
	books  map[string]*book.State
	bound  []domain.MarketWindow
}

func newFakeData() *fakeData {
	return &fakeData{
		events: make(chan domain.BookEvent, 16),
		books:  make(map[string]*book.State),
	}
}

func (f *fakeData) Events() <-chan domain.BookEvent { return f.events }

func (f *fakeData) Book(assetID string) *book.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.books[assetID]
}

func (f *fakeData) Bind(ctx context.Context, w domain.MarketWindow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bound = append(f.bound, w)
	f.books = map[string]*book.State{
		w.UpAssetID:   book.NewState(w.UpAssetID),
		w.DownAssetID: book.NewState(w.DownAssetID),
	}
	return nil
}

func (f *fakeData) fill(assetID string, asks []domain.PriceLevel) {
	f.Book(assetID).ApplySnapshot(nil, asks, time.Now())
}

type fakeExecutor struct {
	mu       sync.Mutex
	outcomes []domain.ExecutionOutcome
	errs     []error
	calls    int
}

func (f *fakeExecutor) Execute(ctx context.Context, opp domain.Opportunity) (domain.ExecutionOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	var out domain.ExecutionOutcome
	var err error
	if i < len(f.outcomes) {
		out = f.outcomes[i]
	}
	if i < len(f.errs) {
		err = f.errs[i]
	}
	out.Opportunity = opp
	return out, err
}

type fakeDiscovery struct {
	mu      sync.Mutex
	windows []domain.MarketWindow
	errs    []error
	calls   int
}

func (f *fakeDiscovery) GetCurrentWindow(ctx context.Context, stem string, now time.Time) (domain.MarketWindow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return domain.MarketWindow{}, f.errs[i]
	}
	if len(f.windows) == 0 {
		return domain.MarketWindow{}, domain.ErrNotFound
	}
	if i >= len(f.windows) {
		i = len(f.windows) - 1
	}
	return f.windows[i], nil
}

type memorySink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (m *memorySink) Publish(ctx context.Context, ev domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memorySink) ofType(t domain.EventType) []domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Event
	for _, ev := range m.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func window(start time.Time) domain.MarketWindow {
	return domain.MarketWindow{
		Slug:        "btc-updown-15m-1725004800",
		UpAssetID:   "tok-up",
		DownAssetID: "tok-down",
		WindowStart: start,
		WindowEnd:   start.Add(domain.WindowDuration),
	}
}

func newSession(data MarketData, exec Executor, disc Discovery, sink EventSink) *Session {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	det := arbitrage.NewDetector(arbitrage.Config{CostCeiling: 0.99, OrderSize: 50}, logger)
	return NewSession(
		Config{SlugStem: "btc-updown-15m", RolloverRetry: 10 * time.Millisecond, RolloverCheck: 10 * time.Millisecond},
		data, det, exec, disc, []EventSink{sink}, logger,
	)
}

func runSession(t *testing.T, s *Session, d time.Duration) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	err := s.Run(ctx)
	if err == context.DeadlineExceeded {
		return nil
	}
	return err
}

func TestSessionBindsFirstWindow(t *testing.T) {
	data := newFakeData()
	disc := &fakeDiscovery{windows: []domain.MarketWindow{window(time.Now())}}
	sink := &memorySink{}
	s := newSession(data, &fakeExecutor{}, disc, sink)

	require.NoError(t, runSession(t, s, 50*time.Millisecond))

	require.Len(t, data.bound, 1)
	assert.Equal(t, "btc-updown-15m-1725004800", data.bound[0].Slug)
	assert.Len(t, sink.ofType(domain.EventMarketRollover), 1)
	assert.Equal(t, 1, s.Summary().WindowsTraded)
}

func TestSessionExecutesOpportunity(t *testing.T) {
	data := newFakeData()
	disc := &fakeDiscovery{windows: []domain.MarketWindow{window(time.Now())}}
	exec := &fakeExecutor{outcomes: []domain.ExecutionOutcome{{
		Phase:        domain.PhaseBothFilled,
		Size:         50,
		LockedProfit: 2.50,
	}}}
	sink := &memorySink{}
	s := newSession(data, exec, disc, sink)

	done := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { done <- s.Run(ctx) }()

	// wait for the bind, then load books that form an entry
	require.Eventually(t, func() bool { return data.Book("tok-up") != nil }, time.Second, 5*time.Millisecond)
	data.fill("tok-up", []domain.PriceLevel{{Price: 0.40, Size: 100}})
	data.fill("tok-down", []domain.PriceLevel{{Price: 0.55, Size: 100}})
	data.events <- domain.BookEvent{AssetID: "tok-up", Kind: domain.BookEventDiff}

	require.Eventually(t, func() bool { return s.Summary().Attempts == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	sum := s.Summary()
	assert.Equal(t, 1, sum.Opportunities)
	assert.Equal(t, 1, sum.Successes)
	assert.InDelta(t, 2.50, sum.LockedProfit, 1e-9)
	assert.InDelta(t, 47.5, sum.TotalSpent, 1e-9)
	assert.InDelta(t, 50.0, sum.TotalLockedValue, 1e-9)
	assert.Len(t, sink.ofType(domain.EventOpportunityFound), 1)
	assert.Len(t, sink.ofType(domain.EventTradeExecuted), 1)
}

func TestSessionCooldownSkipsWithoutRecording(t *testing.T) {
	data := newFakeData()
	disc := &fakeDiscovery{windows: []domain.MarketWindow{window(time.Now())}}
	exec := &fakeExecutor{errs: []error{nil, domain.ErrCooldown}, outcomes: []domain.ExecutionOutcome{
		{Phase: domain.PhaseBothFilled, Size: 50},
	}}
	sink := &memorySink{}
	s := newSession(data, exec, disc, sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return data.Book("tok-up") != nil }, time.Second, 5*time.Millisecond)
	data.fill("tok-up", []domain.PriceLevel{{Price: 0.40, Size: 100}})
	data.fill("tok-down", []domain.PriceLevel{{Price: 0.55, Size: 100}})
	data.events <- domain.BookEvent{AssetID: "tok-up", Kind: domain.BookEventDiff}
	data.events <- domain.BookEvent{AssetID: "tok-down", Kind: domain.BookEventDiff}

	require.Eventually(t, func() bool {
		exec.mu.Lock()
		defer exec.mu.Unlock()
		return exec.calls == 2
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	// two opportunities, but only the first attempt reached the account
	sum := s.Summary()
	assert.Equal(t, 2, sum.Opportunities)
	assert.Equal(t, 1, sum.Attempts)
}

func TestSessionPartialFillCountsAsFailure(t *testing.T) {
	data := newFakeData()
	disc := &fakeDiscovery{windows: []domain.MarketWindow{window(time.Now())}}
	exec := &fakeExecutor{outcomes: []domain.ExecutionOutcome{{
		Phase:        domain.PhaseUnwinding,
		UnwindPlaced: true,
		UnwindFilled: true,
	}}}
	sink := &memorySink{}
	s := newSession(data, exec, disc, sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return data.Book("tok-up") != nil }, time.Second, 5*time.Millisecond)
	data.fill("tok-up", []domain.PriceLevel{{Price: 0.40, Size: 100}})
	data.fill("tok-down", []domain.PriceLevel{{Price: 0.55, Size: 100}})
	data.events <- domain.BookEvent{AssetID: "tok-up", Kind: domain.BookEventDiff}

	require.Eventually(t, func() bool { return s.Summary().Attempts == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	// a successful unwind is still a failed trade
	sum := s.Summary()
	assert.Equal(t, 1, sum.Failures)
	assert.Equal(t, 1, sum.Unwinds)
	assert.Zero(t, sum.Successes)
	assert.Len(t, sink.ofType(domain.EventTradeFailed), 1)
}

func TestSessionInvalidSignatureStops(t *testing.T) {
	data := newFakeData()
	disc := &fakeDiscovery{windows: []domain.MarketWindow{window(time.Now())}}
	exec := &fakeExecutor{errs: []error{domain.ErrInvalidSignature}}
	s := newSession(data, exec, disc, &memorySink{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return data.Book("tok-up") != nil }, time.Second, 5*time.Millisecond)
	data.fill("tok-up", []domain.PriceLevel{{Price: 0.40, Size: 100}})
	data.fill("tok-down", []domain.PriceLevel{{Price: 0.55, Size: 100}})
	data.events <- domain.BookEvent{AssetID: "tok-up", Kind: domain.BookEventDiff}

	err := <-done
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestSessionRollsOverAtSettlement(t *testing.T) {
	first := window(time.Now().Add(-16 * time.Minute)) // already past settlement
	second := window(time.Now())
	second.Slug = "btc-updown-15m-1725005700"
	second.UpAssetID = "tok-up-2"
	second.DownAssetID = "tok-down-2"

	data := newFakeData()
	disc := &fakeDiscovery{windows: []domain.MarketWindow{first, second}}
	sink := &memorySink{}
	s := newSession(data, &fakeExecutor{}, disc, sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		data.mu.Lock()
		defer data.mu.Unlock()
		return len(data.bound) == 2
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, second.Slug, s.Window().Slug)
	assert.Equal(t, 2, s.Summary().WindowsTraded)
	require.NotEmpty(t, sink.ofType(domain.EventWindowClosed))
	assert.Equal(t, first.Slug, sink.ofType(domain.EventWindowClosed)[0].Slug)
}

func TestSessionRetriesDiscovery(t *testing.T) {
	w := window(time.Now())
	data := newFakeData()
	disc := &fakeDiscovery{
		windows: []domain.MarketWindow{{}, w},
		errs:    []error{domain.ErrNotFound, nil},
	}
	s := newSession(data, &fakeExecutor{}, disc, &memorySink{})

	require.NoError(t, runSession(t, s, 200*time.Millisecond))

	require.Len(t, data.bound, 1)
	assert.Equal(t, w.Slug, data.bound[0].Slug)
}

func TestSessionThrottlesBookEvents(t *testing.T) {
	data := newFakeData()
	disc := &fakeDiscovery{windows: []domain.MarketWindow{window(time.Now())}}
	exec := &fakeExecutor{errs: []error{domain.ErrCooldown, domain.ErrCooldown}}
	sink := &memorySink{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	det := arbitrage.NewDetector(arbitrage.Config{CostCeiling: 0.99, OrderSize: 50}, logger)
	s := NewSession(
		Config{
			SlugStem:      "btc-updown-15m",
			RolloverRetry: 10 * time.Millisecond,
			RolloverCheck: 10 * time.Millisecond,
			MinCheckGap:   time.Hour, // everything after the first event is dropped
		},
		data, det, exec, disc, []EventSink{sink}, logger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return data.Book("tok-up") != nil }, time.Second, 5*time.Millisecond)
	data.fill("tok-up", []domain.PriceLevel{{Price: 0.40, Size: 100}})
	data.fill("tok-down", []domain.PriceLevel{{Price: 0.55, Size: 100}})
	data.events <- domain.BookEvent{AssetID: "tok-up", Kind: domain.BookEventDiff}
	data.events <- domain.BookEvent{AssetID: "tok-down", Kind: domain.BookEventDiff}

	require.Eventually(t, func() bool { return s.Summary().Opportunities == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond) // give the second event time to be (not) processed
	cancel()
	<-done

	assert.Equal(t, 1, s.Summary().Opportunities)
}

func TestSessionEstimatesSettlementOnClose(t *testing.T) {
	first := window(time.Now())
	second := window(first.WindowEnd)
	second.Slug = "btc-updown-15m-1725005700"
	second.UpAssetID = "tok-up-2"
	second.DownAssetID = "tok-down-2"

	data := newFakeData()
	disc := &fakeDiscovery{windows: []domain.MarketWindow{first, second}}
	sink := &memorySink{}
	s := newSession(data, &fakeExecutor{}, disc, sink)

	var clockMu sync.Mutex
	current := time.Now()
	s.now = func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return current
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// Let the first window bind, load its final books, then jump the clock
	// past settlement to force the rollover.
	require.Eventually(t, func() bool { return data.Book("tok-up") != nil }, time.Second, 5*time.Millisecond)
	data.fill("tok-up", []domain.PriceLevel{{Price: 0.995, Size: 100}})
	data.fill("tok-down", []domain.PriceLevel{{Price: 0.01, Size: 100}})
	clockMu.Lock()
	current = first.WindowEnd.Add(time.Second)
	clockMu.Unlock()

	require.Eventually(t, func() bool {
		return len(sink.ofType(domain.EventWindowClosed)) > 0
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	closed := sink.ofType(domain.EventWindowClosed)[0]
	result, ok := closed.Payload.(domain.WindowResult)
	require.True(t, ok)
	assert.Equal(t, "up", result.Direction)
	assert.True(t, result.Final)
	assert.InDelta(t, 0.995, result.UpBestAsk, 1e-9)
	assert.NotEmpty(t, closed.ID)
}

func TestSessionEmitsMarketUpdates(t *testing.T) {
	data := newFakeData()
	disc := &fakeDiscovery{windows: []domain.MarketWindow{window(time.Now())}}
	sink := &memorySink{}
	s := newSession(data, &fakeExecutor{}, disc, sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return data.Book("tok-up") != nil }, time.Second, 5*time.Millisecond)
	// priced above the ceiling so no opportunity fires, only the ticker
	data.fill("tok-up", []domain.PriceLevel{{Price: 0.60, Size: 100}})
	data.fill("tok-down", []domain.PriceLevel{{Price: 0.55, Size: 100}})
	data.events <- domain.BookEvent{AssetID: "tok-up", Kind: domain.BookEventDiff}

	require.Eventually(t, func() bool {
		return len(sink.ofType(domain.EventMarketUpdate)) > 0
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	update, ok := sink.ofType(domain.EventMarketUpdate)[0].Payload.(domain.MarketUpdate)
	require.True(t, ok)
	assert.InDelta(t, 0.60, update.UpBestAsk, 1e-9)
	assert.InDelta(t, 0.55, update.DownBestAsk, 1e-9)
	assert.InDelta(t, 1.15, update.TotalCost, 1e-9)
	assert.Greater(t, update.TimeRemaining, 0.0)
	assert.Empty(t, sink.ofType(domain.EventOpportunityFound))
}

// blockingSink holds every Publish until released, simulating a dead
// notification backend.
type blockingSink struct {
	release chan struct{}
}

func (b *blockingSink) Publish(ctx context.Context, ev domain.Event) error {
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return nil
}

func TestSessionLoopNotStalledBySlowSink(t *testing.T) {
	data := newFakeData()
	disc := &fakeDiscovery{windows: []domain.MarketWindow{window(time.Now())}}
	exec := &fakeExecutor{outcomes: []domain.ExecutionOutcome{{Phase: domain.PhaseBothFilled, Size: 50}}}
	slow := &blockingSink{release: make(chan struct{})}
	s := newSession(data, exec, disc, slow)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return data.Book("tok-up") != nil }, time.Second, 5*time.Millisecond)
	data.fill("tok-up", []domain.PriceLevel{{Price: 0.40, Size: 100}})
	data.fill("tok-down", []domain.PriceLevel{{Price: 0.55, Size: 100}})
	data.events <- domain.BookEvent{AssetID: "tok-up", Kind: domain.BookEventDiff}

	// the sink never returned, yet the decision loop kept going
	require.Eventually(t, func() bool { return s.Summary().Attempts == 1 }, time.Second, 5*time.Millisecond)

	close(slow.release)
	cancel()
	<-done
}
