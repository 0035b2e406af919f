package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/updownbot/internal/book"
	"github.com/alanyoungcy/updownbot/internal/domain"
)

// defaultPollInterval is used when the configured interval is zero.
const defaultPollInterval = 500 * time.Millisecond

// BookFetcher fetches a full order book snapshot over REST.
type BookFetcher interface {
	GetOrderBook(ctx context.Context, assetID string) (domain.OrderbookSnapshot, error)
}

// Poller is the REST fallback for Stream: instead of a WebSocket feed it
// re-fetches full snapshots for every bound asset on a fixed interval.
// It exposes the same surface as Stream so the strategy loop does not
// care which one is behind it. Latency is bounded by the poll interval,
// so it is mainly useful where the WebSocket endpoint is unreachable.
type Poller struct {
	fetcher  BookFetcher
	interval time.Duration
	logger   *slog.Logger

	mu    sync.RWMutex
	books map[string]*book.State

	events chan domain.BookEvent

	lastLogMu sync.Mutex
	lastLog   map[string]time.Time
}

// NewPoller creates a poller over the given snapshot fetcher. Call Bind
// before Run to attach the first market window.
func NewPoller(fetcher BookFetcher, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Poller{
		fetcher:  fetcher,
		interval: interval,
		logger:   logger.With(slog.String("component", "market_poller")),
		books:    make(map[string]*book.State),
		events:   make(chan domain.BookEvent, 256),
		lastLog:  make(map[string]time.Time),
	}
}

// Events is the stream of "book touched" notifications.
func (p *Poller) Events() <-chan domain.BookEvent {
	return p.events
}

// Book returns the replica for assetID, or nil when not tracked.
func (p *Poller) Book(assetID string) *book.State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.books[assetID]
}

// Bind replaces the tracked asset set with the window's pair. As with the
// stream, fresh empty replicas are installed so nothing from a previous
// window survives the rollover.
func (p *Poller) Bind(ctx context.Context, w domain.MarketWindow) error {
	p.mu.Lock()
	p.books = map[string]*book.State{
		w.UpAssetID:   book.NewState(w.UpAssetID),
		w.DownAssetID: book.NewState(w.DownAssetID),
	}
	p.mu.Unlock()

	p.logger.Info("bound market window",
		slog.String("slug", w.Slug),
		slog.Time("window_end", w.WindowEnd))
	return nil
}

// Run polls every tracked asset once per interval until ctx is cancelled.
// The two legs are fetched sequentially; with a pair per window the skew
// between them stays well under the interval.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("market poller started", slog.Duration("interval", p.interval))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	p.mu.RLock()
	assetIDs := make([]string, 0, len(p.books))
	for id := range p.books {
		assetIDs = append(assetIDs, id)
	}
	p.mu.RUnlock()

	for _, id := range assetIDs {
		snap, err := p.fetcher.GetOrderBook(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.throttledLog(id, slog.LevelWarn, "order book poll failed",
				slog.String("error", err.Error()))
			continue
		}
		b := p.Book(id)
		if b == nil {
			continue // window rolled over mid-poll
		}
		b.ApplySnapshot(snap.Bids, snap.Asks, snap.Timestamp)
		p.throttledLog(id, slog.LevelInfo, "book snapshot polled",
			slog.Int("bids", len(snap.Bids)), slog.Int("asks", len(snap.Asks)))
		p.emit(domain.BookEvent{AssetID: id, Kind: domain.BookEventSnapshot})
	}
}

// emit delivers an event without ever blocking the poll loop.
func (p *Poller) emit(ev domain.BookEvent) {
	select {
	case p.events <- ev:
	default:
		select {
		case <-p.events:
		default:
		}
		select {
		case p.events <- ev:
		default:
		}
	}
}

func (p *Poller) throttledLog(assetID string, level slog.Level, msg string, attrs ...any) {
	p.lastLogMu.Lock()
	last := p.lastLog[assetID]
	now := time.Now()
	if now.Sub(last) < logThrottle {
		p.lastLogMu.Unlock()
		return
	}
	p.lastLog[assetID] = now
	p.lastLogMu.Unlock()

	attrs = append(attrs, slog.String("asset_id", assetID))
	p.logger.Log(context.Background(), level, msg, attrs...)
}
