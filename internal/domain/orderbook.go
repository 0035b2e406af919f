package domain

import "time"

// PriceLevel is a single price+size entry in an orderbook. Levels with
// non-positive size are never stored; a size of zero on the wire means
// "remove this level".
type PriceLevel struct {
	Price float64
	Size  float64
}

// OrderbookSnapshot is a full snapshot of bids and asks for an asset.
// Bids are sorted descending by price, asks ascending.
type OrderbookSnapshot struct {
	AssetID   string
	Bids      []PriceLevel
	Asks      []PriceLevel
	BestBid   float64
	BestAsk   float64
	Timestamp time.Time
	Hash      string
}

// Crossed reports whether the snapshot shows best_ask < best_bid. A crossed
// book is treated as stale/invalid data, never as an opportunity.
func (s OrderbookSnapshot) Crossed() bool {
	return s.BestBid > 0 && s.BestAsk > 0 && s.BestAsk < s.BestBid
}

// PriceChange is an incremental orderbook level update.
type PriceChange struct {
	AssetID   string
	Side      string // "BUY" or "SELL"
	Price     float64
	Size      float64 // <= 0 means remove level
	Timestamp time.Time
	Hash      string
}

// BookEventKind distinguishes the two message kinds that mutate a book.
type BookEventKind string

const (
	BookEventSnapshot BookEventKind = "book"
	BookEventDiff     BookEventKind = "price_change"
)

// BookEvent is the "book touched" notification emitted by the market data
// stream after each successful book mutation.
type BookEvent struct {
	AssetID string
	Kind    BookEventKind
}
