// Package feed connects the market data WebSocket to the local book
// replicas and notifies the strategy loop when a book changes.
package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/updownbot/internal/book"
	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/platform/polymarket"
)

// logThrottle limits per-asset update logging to one line per interval.
const logThrottle = 10 * time.Second

// Stream owns one book replica per subscribed asset, keeps them current
// from the WebSocket feed, and emits a BookEvent after every applied
// mutation. Events are delivered on a buffered channel; if the consumer
// falls behind the oldest pending event is dropped, which is safe because
// the detector always reads the latest book state, not the event payload.
type Stream struct {
	wsURL  string
	logger *slog.Logger

	mu     sync.RWMutex
	books  map[string]*book.State
	client *polymarket.WSClient

	events chan domain.BookEvent

	lastLogMu sync.Mutex
	lastLog   map[string]time.Time

	closeOnce sync.Once
	done      chan struct{}
}

// NewStream creates a stream for the given WebSocket URL. Call Bind before
// Run to attach the first market window.
func NewStream(wsURL string, logger *slog.Logger) *Stream {
	return &Stream{
		wsURL:   wsURL,
		logger:  logger.With(slog.String("component", "market_stream")),
		books:   make(map[string]*book.State),
		events:  make(chan domain.BookEvent, 256),
		lastLog: make(map[string]time.Time),
		done:    make(chan struct{}),
	}
}

// Events is the stream of "book touched" notifications.
func (s *Stream) Events() <-chan domain.BookEvent {
	return s.events
}

// Book returns the replica for assetID, or nil when not subscribed.
func (s *Stream) Book(assetID string) *book.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.books[assetID]
}

// Bind replaces the tracked asset set with the window's pair. Fresh empty
// replicas are installed; the old ones are discarded wholesale so no level
// from a previous window can leak into the new one. If the stream is
// connected the subscription is replaced too.
func (s *Stream) Bind(ctx context.Context, w domain.MarketWindow) error {
	s.mu.Lock()
	s.books = map[string]*book.State{
		w.UpAssetID:   book.NewState(w.UpAssetID),
		w.DownAssetID: book.NewState(w.DownAssetID),
	}
	client := s.client
	s.mu.Unlock()

	s.logger.Info("bound market window",
		slog.String("slug", w.Slug),
		slog.Time("window_end", w.WindowEnd))

	if client != nil {
		return client.Subscribe(ctx, w.AssetIDs())
	}
	return nil
}

// Run connects and processes the feed until ctx is cancelled. Reconnects
// are handled inside the client; on each reconnect every replica is reset
// so it waits for a fresh snapshot.
func (s *Stream) Run(ctx context.Context) error {
	client := polymarket.NewWSClient(s.wsURL)

	client.OnBookUpdate(s.applySnapshot)
	client.OnPriceChange(s.applyChange)
	client.OnReconnect(func() {
		s.logger.Warn("websocket reconnecting, resetting book replicas")
		s.mu.RLock()
		for _, b := range s.books {
			b.Reset()
		}
		s.mu.RUnlock()
	})

	if err := client.Connect(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.client = client
	assetIDs := make([]string, 0, len(s.books))
	for id := range s.books {
		assetIDs = append(assetIDs, id)
	}
	s.mu.Unlock()

	if len(assetIDs) > 0 {
		if err := client.Subscribe(ctx, assetIDs); err != nil {
			client.Close()
			return err
		}
	}
	s.logger.Info("market stream connected", slog.Int("assets", len(assetIDs)))

	select {
	case <-ctx.Done():
	case <-s.done:
	}
	return client.Close()
}

// Close stops the stream.
func (s *Stream) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Stream) applySnapshot(snap domain.OrderbookSnapshot) {
	b := s.Book(snap.AssetID)
	if b == nil {
		return // message for an asset from a previous window
	}
	b.ApplySnapshot(snap.Bids, snap.Asks, snap.Timestamp)
	s.throttledLog(snap.AssetID, "book snapshot applied",
		slog.Int("bids", len(snap.Bids)), slog.Int("asks", len(snap.Asks)))
	s.emit(domain.BookEvent{AssetID: snap.AssetID, Kind: domain.BookEventSnapshot})
}

func (s *Stream) applyChange(ch domain.PriceChange) {
	b := s.Book(ch.AssetID)
	if b == nil {
		return
	}
	b.ApplyChange(ch)
	s.emit(domain.BookEvent{AssetID: ch.AssetID, Kind: domain.BookEventDiff})
}

// emit delivers an event without ever blocking the websocket read loop.
func (s *Stream) emit(ev domain.BookEvent) {
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

func (s *Stream) throttledLog(assetID, msg string, attrs ...any) {
	s.lastLogMu.Lock()
	last := s.lastLog[assetID]
	now := time.Now()
	if now.Sub(last) < logThrottle {
		s.lastLogMu.Unlock()
		return
	}
	s.lastLog[assetID] = now
	s.lastLogMu.Unlock()

	attrs = append(attrs, slog.String("asset_id", assetID))
	s.logger.Info(msg, attrs...)
}
