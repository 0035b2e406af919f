// Package book maintains an in-memory replica of one asset's L2 orderbook,
// rebuilt from venue snapshots and kept current with incremental diffs.
package book

import (
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// State is the local replica of a single asset's orderbook. It is safe for
// concurrent use; the feed goroutine writes, detector and executor read.
type State struct {
	mu      sync.RWMutex
	assetID string
	bids    map[float64]float64
	asks    map[float64]float64
	updated time.Time
	synced  bool
}

// NewState returns an empty, unsynced replica for assetID. The replica is
// not usable for detection until the first snapshot arrives.
func NewState(assetID string) *State {
	return &State{
		assetID: assetID,
		bids:    make(map[float64]float64),
		asks:    make(map[float64]float64),
	}
}

func (s *State) AssetID() string { return s.assetID }

// ApplySnapshot replaces the entire replica with the snapshot contents.
// Levels with non-positive price or size are skipped.
func (s *State) ApplySnapshot(bids, asks []domain.PriceLevel, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bids = make(map[float64]float64, len(bids))
	s.asks = make(map[float64]float64, len(asks))
	for _, lv := range bids {
		if lv.Price > 0 && lv.Size > 0 {
			s.bids[lv.Price] = lv.Size
		}
	}
	for _, lv := range asks {
		if lv.Price > 0 && lv.Size > 0 {
			s.asks[lv.Price] = lv.Size
		}
	}
	s.updated = ts
	s.synced = true
}

// ApplyChange applies one incremental level update. A size <= 0 removes the
// level. Changes arriving before the first snapshot are dropped.
func (s *State) ApplyChange(ch domain.PriceChange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.synced || ch.Price <= 0 {
		return
	}
	side := s.asks
	if ch.Side == string(domain.SideBuy) {
		side = s.bids
	}
	if ch.Size <= 0 {
		delete(side, ch.Price)
	} else {
		side[ch.Price] = ch.Size
	}
	s.updated = ch.Timestamp
}

// Reset discards all levels and marks the replica unsynced. Called on
// websocket reconnect so stale levels never survive a disconnect.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bids = make(map[float64]float64)
	s.asks = make(map[float64]float64)
	s.synced = false
}

// Synced reports whether a snapshot has been applied since the last Reset.
func (s *State) Synced() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.synced
}

// BestBid returns the highest bid price, or 0 if no bids.
func (s *State) BestBid() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	best := 0.0
	for p := range s.bids {
		if p > best {
			best = p
		}
	}
	return best
}

// BestAsk returns the lowest ask price, or 0 if no asks.
func (s *State) BestAsk() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	best := 0.0
	for p := range s.asks {
		if best == 0 || p < best {
			best = p
		}
	}
	return best
}

// Asks returns the ask ladder sorted ascending by price.
func (s *State) Asks() []domain.PriceLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.PriceLevel, 0, len(s.asks))
	for p, sz := range s.asks {
		out = append(out, domain.PriceLevel{Price: p, Size: sz})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	return out
}

// Bids returns the bid ladder sorted descending by price.
func (s *State) Bids() []domain.PriceLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.PriceLevel, 0, len(s.bids))
	for p, sz := range s.bids {
		out = append(out, domain.PriceLevel{Price: p, Size: sz})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price > out[j].Price })
	return out
}

// Snapshot returns a point-in-time copy of the full book.
func (s *State) Snapshot() domain.OrderbookSnapshot {
	s.mu.RLock()
	updated := s.updated
	s.mu.RUnlock()
	return domain.OrderbookSnapshot{
		AssetID:   s.assetID,
		Bids:      s.Bids(),
		Asks:      s.Asks(),
		BestBid:   s.BestBid(),
		BestAsk:   s.BestAsk(),
		Timestamp: updated,
	}
}

// UpdatedAt returns the timestamp of the last applied mutation.
func (s *State) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updated
}
