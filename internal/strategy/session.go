// Package strategy runs the trading session: it watches the book replicas
// for entries, hands them to the executor, rolls over to the next
// 15-minute window at settlement, and keeps the running account.
package strategy

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/updownbot/internal/arbitrage"
	"github.com/alanyoungcy/updownbot/internal/book"
	"github.com/alanyoungcy/updownbot/internal/domain"
)

// Discovery locates the market window covering a point in time.
type Discovery interface {
	GetCurrentWindow(ctx context.Context, stem string, now time.Time) (domain.MarketWindow, error)
}

// MarketData is the book-replica surface the session consumes. Implemented
// by the feed stream and the REST poller.
type MarketData interface {
	Events() <-chan domain.BookEvent
	Book(assetID string) *book.State
	Bind(ctx context.Context, w domain.MarketWindow) error
}

// Executor runs one two-leg attempt.
type Executor interface {
	Execute(ctx context.Context, opp domain.Opportunity) (domain.ExecutionOutcome, error)
}

// EventSink receives every session event. Sinks are best-effort: a sink
// error is logged and never stalls the trading loop.
type EventSink interface {
	Publish(ctx context.Context, ev domain.Event) error
}

// eventQueueSize buffers events between the decision loop and the sink
// dispatcher. When full the oldest pending event is dropped.
const eventQueueSize = 256

// sinkTimeout bounds one sink delivery so a dead notifier or backend
// cannot wedge the dispatcher.
const sinkTimeout = 5 * time.Second

// Config holds the session parameters.
type Config struct {
	// SlugStem is the market family, e.g. "btc-updown-15m".
	SlugStem string

	// RolloverRetry is the wait between discovery attempts when the next
	// window is not listed yet.
	RolloverRetry time.Duration

	// RolloverCheck is how often window expiry is checked independently of
	// book traffic.
	RolloverCheck time.Duration

	// MinCheckGap drops book events arriving closer together than this,
	// bounding detector work under bursty feeds. Zero disables the gate.
	MinCheckGap time.Duration
}

func (c *Config) Defaults() {
	if c.RolloverRetry <= 0 {
		c.RolloverRetry = 5 * time.Second
	}
	if c.RolloverCheck <= 0 {
		c.RolloverCheck = time.Second
	}
}

// Session drives one continuous trading run across consecutive windows.
type Session struct {
	cfg       Config
	data      MarketData
	detector  *arbitrage.Detector
	executor  Executor
	discovery Discovery
	sinks     []EventSink
	logger    *slog.Logger

	mu      sync.RWMutex
	window  domain.MarketWindow
	summary domain.SessionSummary

	// events decouples the decision loop from sink I/O; a dispatcher
	// goroutine started by Run drains it.
	events chan domain.Event

	// lastCheck is touched only by the Run goroutine.
	lastCheck time.Time

	now func() time.Time
}

func NewSession(
	cfg Config,
	data MarketData,
	detector *arbitrage.Detector,
	executor Executor,
	discovery Discovery,
	sinks []EventSink,
	logger *slog.Logger,
) *Session {
	cfg.Defaults()
	return &Session{
		cfg:       cfg,
		data:      data,
		detector:  detector,
		executor:  executor,
		discovery: discovery,
		sinks:     sinks,
		events:    make(chan domain.Event, eventQueueSize),
		logger:    logger.With(slog.String("component", "session")),
		now:       time.Now,
	}
}

// Window returns the window currently being traded.
func (s *Session) Window() domain.MarketWindow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.window
}

// Summary returns a copy of the running session account.
func (s *Session) Summary() domain.SessionSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summary
}

// Run discovers the first window, binds the feed, then processes book
// events until ctx is cancelled or a fatal execution error occurs. On
// return the final summary is published and every queued event has been
// delivered to the sinks.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	s.summary.StartedAt = s.now()
	s.mu.Unlock()

	var sinkWG sync.WaitGroup
	sinkWG.Add(1)
	go func() {
		defer sinkWG.Done()
		s.dispatch()
	}()
	defer func() {
		s.publishSummary()
		close(s.events)
		sinkWG.Wait()
	}()

	if err := s.rollover(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(s.cfg.RolloverCheck)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			if s.Window().Closed(s.now()) {
				if err := s.rollover(ctx); err != nil {
					return err
				}
			}

		case ev, ok := <-s.data.Events():
			if !ok {
				return nil
			}
			if err := s.onBookEvent(ctx, ev); err != nil {
				return err
			}
		}
	}
}

// onBookEvent runs a detection pass after a book mutation. Only a fatal
// execution error (a venue-rejected signature) propagates.
func (s *Session) onBookEvent(ctx context.Context, _ domain.BookEvent) error {
	now := s.now()
	if s.cfg.MinCheckGap > 0 && now.Sub(s.lastCheck) < s.cfg.MinCheckGap {
		return nil
	}
	s.lastCheck = now

	w := s.Window()
	if w.Closed(now) {
		return nil
	}

	s.publishMarketUpdate(w, now)

	opp := s.detector.Check(s.data.Book(w.UpAssetID), s.data.Book(w.DownAssetID), w, now)
	if opp == nil {
		return nil
	}

	s.mu.Lock()
	s.summary.Opportunities++
	s.mu.Unlock()
	s.publish(domain.Event{
		Type:      domain.EventOpportunityFound,
		Slug:      w.Slug,
		Timestamp: now,
		Payload:   *opp,
	})

	outcome, err := s.executor.Execute(ctx, *opp)
	if errors.Is(err, domain.ErrCooldown) {
		return nil // next opportunity will retry after the gate opens
	}
	if errors.Is(err, domain.ErrInvalidSignature) {
		s.logger.Error("order signature rejected, stopping session",
			slog.String("error", err.Error()))
		return err
	}
	if err != nil {
		s.logger.Warn("execution attempt failed",
			slog.String("error", err.Error()))
	}

	s.record(outcome)
	return nil
}

// publishMarketUpdate emits the dashboard ticker for the current pass.
// Nothing is emitted until both books have a price, so a half-synced pair
// never shows up as a zero quote.
func (s *Session) publishMarketUpdate(w domain.MarketWindow, now time.Time) {
	var up, down float64
	if b := s.data.Book(w.UpAssetID); b != nil {
		up = b.BestAsk()
	}
	if b := s.data.Book(w.DownAssetID); b != nil {
		down = b.BestAsk()
	}
	if up <= 0 || down <= 0 {
		return
	}
	s.publish(domain.Event{
		Type:      domain.EventMarketUpdate,
		Slug:      w.Slug,
		Timestamp: now,
		Payload: domain.MarketUpdate{
			UpBestAsk:     up,
			DownBestAsk:   down,
			TotalCost:     up + down,
			TimeRemaining: w.TimeRemaining(now).Seconds(),
		},
	})
}

// record updates the account and publishes the outcome event. A partial
// fill counts as a failure even when the unwind succeeded.
func (s *Session) record(outcome domain.ExecutionOutcome) {
	s.mu.Lock()
	s.summary.Attempts++
	evType := domain.EventTradeFailed
	switch outcome.Phase {
	case domain.PhaseBothFilled:
		s.summary.Successes++
		s.summary.TotalSpent += outcome.Size * outcome.Opportunity.TotalCost
		s.summary.TotalLockedValue += outcome.Size * domain.PairPayout
		s.summary.LockedProfit += outcome.LockedProfit
		evType = domain.EventTradeExecuted
	case domain.PhaseUnwinding:
		s.summary.Failures++
		s.summary.Unwinds++
	default:
		s.summary.Failures++
	}
	slug := s.window.Slug
	s.mu.Unlock()

	s.publish(domain.Event{
		Type:      evType,
		Slug:      slug,
		Timestamp: s.now(),
		Payload:   outcome,
	})
}

// rollover publishes the close of the old window, discovers the window
// covering now (retrying until it is listed), and rebinds the feed. The
// window value is replaced wholesale; nothing from the previous window
// survives into the new one.
func (s *Session) rollover(ctx context.Context) error {
	old := s.Window()
	if old.Slug != "" {
		result := s.closeResult(old)
		s.logger.Info("window closed",
			slog.String("slug", old.Slug),
			slog.String("direction", result.Direction),
			slog.Bool("final", result.Final))
		s.publish(domain.Event{
			Type:      domain.EventWindowClosed,
			Slug:      old.Slug,
			Timestamp: s.now(),
			Payload:   result,
		})
	}

	for {
		w, err := s.discovery.GetCurrentWindow(ctx, s.cfg.SlugStem, s.now())
		if err == nil {
			if err := s.data.Bind(ctx, w); err != nil {
				return err
			}
			s.mu.Lock()
			s.window = w
			s.summary.WindowsTraded++
			s.mu.Unlock()

			s.logger.Info("trading window",
				slog.String("slug", w.Slug),
				slog.Time("window_end", w.WindowEnd))
			s.publish(domain.Event{
				Type:      domain.EventMarketRollover,
				Slug:      w.Slug,
				Timestamp: s.now(),
				Payload:   w,
			})
			return nil
		}

		s.logger.Warn("window discovery failed, retrying",
			slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.RolloverRetry):
		}
	}
}

// closeResult captures the final asks of the closing window and estimates
// the settlement direction from them.
func (s *Session) closeResult(w domain.MarketWindow) domain.WindowResult {
	result := domain.WindowResult{Window: w}
	if b := s.data.Book(w.UpAssetID); b != nil {
		result.UpBestAsk = b.BestAsk()
	}
	if b := s.data.Book(w.DownAssetID); b != nil {
		result.DownBestAsk = b.BestAsk()
	}
	result.Direction, result.Final = domain.EstimateSettlement(result.UpBestAsk, result.DownBestAsk)
	return result
}

// publish stamps an ID and enqueues the event for the sink dispatcher.
// Enqueueing never blocks the decision loop; when the queue is full the
// oldest pending event is dropped, the same policy the feed uses for book
// notifications.
func (s *Session) publish(ev domain.Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	select {
	case s.events <- ev:
	default:
		select {
		case <-s.events:
		default:
		}
		select {
		case s.events <- ev:
		default:
		}
	}
}

// dispatch delivers queued events to every sink until the queue closes.
// Sink errors are logged only.
func (s *Session) dispatch() {
	for ev := range s.events {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		for _, sink := range s.sinks {
			if err := sink.Publish(ctx, ev); err != nil {
				s.logger.Warn("event sink failed",
					slog.String("event", string(ev.Type)),
					slog.String("error", err.Error()))
			}
		}
		cancel()
	}
}

func (s *Session) publishSummary() {
	sum := s.Summary()
	s.logger.Info("session summary",
		slog.Int("windows", sum.WindowsTraded),
		slog.Int("opportunities", sum.Opportunities),
		slog.Int("attempts", sum.Attempts),
		slog.Int("successes", sum.Successes),
		slog.Int("failures", sum.Failures),
		slog.Int("unwinds", sum.Unwinds),
		slog.Float64("locked_profit", sum.LockedProfit))

	s.publish(domain.Event{
		Type:      domain.EventSessionSummary,
		Timestamp: s.now(),
		Payload:   sum,
	})
}
