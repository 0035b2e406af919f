package polymarket

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// APIOrder represents an order as returned by the CLOB order endpoint.
type APIOrder struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	MarketID     string `json:"market"`
	AssetID      string `json:"asset_id"`
	Side         string `json:"side"` // "BUY" or "SELL"
	Type         string `json:"type"` // "GTC", "GTD", "FOK", "FAK"
	OriginalSize string `json:"original_size"`
	SizeMatched  string `json:"size_matched"`
	Price        string `json:"price"`
	Owner        string `json:"owner"`
	Expiration   string `json:"expiration"`
	CreatedAt    string `json:"created_at"`
}

// ToDomainOrderState converts an APIOrder to a domain.OrderState.
func (a *APIOrder) ToDomainOrderState() domain.OrderState {
	st := domain.OrderState{
		OrderID: a.ID,
		AssetID: a.AssetID,
		Status:  domain.OrderStatus(strings.ToLower(a.Status)),
	}
	switch a.Side {
	case "SELL":
		st.Side = domain.SideSell
	default:
		st.Side = domain.SideBuy
	}
	st.Price, _ = strconv.ParseFloat(a.Price, 64)
	st.Size, _ = strconv.ParseFloat(a.OriginalSize, 64)
	st.SizeMatched, _ = strconv.ParseFloat(a.SizeMatched, 64)
	// some endpoints report "matched" rather than "filled"
	if st.Status == "matched" {
		st.Status = domain.StatusFilled
	}
	return st
}

// APIOrderResult is the response from placing an order via the CLOB API.
type APIOrderResult struct {
	Success     bool   `json:"success"`
	ErrorMsg    string `json:"errorMsg,omitempty"`
	OrderID     string `json:"orderID,omitempty"`
	Status      string `json:"status,omitempty"`
	TransactID  string `json:"transactID,omitempty"`
	ShouldRetry bool   `json:"shouldRetry,omitempty"`
}

// ToDomainSubmitResult converts an APIOrderResult to a domain.SubmitResult.
func (r *APIOrderResult) ToDomainSubmitResult() domain.SubmitResult {
	return domain.SubmitResult{
		Success:  r.Success,
		OrderID:  r.OrderID,
		ErrorMsg: r.ErrorMsg,
	}
}

// APIBalance is the response from the balance-allowance endpoint.
type APIBalance struct {
	Balance string `json:"balance"`
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIMarket represents a market as returned by the Gamma markets endpoint.
// Up/down 15-minute markets carry exactly two tokens, UP listed first.
type APIMarket struct {
	ID            string   `json:"id"`
	Question      string   `json:"question"`
	ConditionID   string   `json:"conditionId"`
	Slug          string   `json:"slug"`
	ActiveFromAPI flexBool `json:"active"` // API may send bool or "true"/"false" string
	Closed        bool     `json:"closed"`
	Outcomes      string   `json:"outcomes"`      // JSON-encoded: e.g. "[\"Up\",\"Down\"]"
	ClobTokenIDs  string   `json:"clobTokenIds"`  // JSON-encoded: e.g. "[\"123\",\"456\"]"
	OutcomePrices string   `json:"outcomePrices"` // JSON-encoded: e.g. "[\"0.5\",\"0.5\"]"
	EndDateISO    string   `json:"endDateIso"`
}

// TokenIDs decodes the JSON-encoded clobTokenIds field.
func (m *APIMarket) TokenIDs() ([]string, error) {
	var ids []string
	if err := json.Unmarshal([]byte(m.ClobTokenIDs), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// --------------------------------------------------------------------------
// WebSocket DTOs
// --------------------------------------------------------------------------

// BookMessage represents a full orderbook snapshot delivered over WebSocket.
type BookMessage struct {
	AssetID   string         `json:"asset_id"`
	Market    string         `json:"market"`
	Bids      []WSPriceLevel `json:"bids"`
	Asks      []WSPriceLevel `json:"asks"`
	Timestamp string         `json:"timestamp"`
	Hash      string         `json:"hash"`
}

// WSPriceLevel is a single bid/ask level in the WebSocket orderbook data.
type WSPriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// PriceChangeMessage represents an incremental orderbook update. The feed
// delivers either flat fields (side/price/size on the message itself) or a
// batched Changes array; both shapes occur in practice.
type PriceChangeMessage struct {
	AssetID   string           `json:"asset_id"`
	Market    string           `json:"market"`
	Side      string           `json:"side,omitempty"`
	Price     string           `json:"price,omitempty"`
	Size      string           `json:"size,omitempty"` // "0" means level removed
	Changes   []WSLevelChange  `json:"changes,omitempty"`
	PriceChgs []AssetChangeSet `json:"price_changes,omitempty"`
	Timestamp string           `json:"timestamp"`
	Hash      string           `json:"hash"`
}

// WSLevelChange is one entry of a batched price_change message.
type WSLevelChange struct {
	Side  string `json:"side"`
	Price string `json:"price"`
	Size  string `json:"size"`
}

// AssetChangeSet groups level changes per asset inside a multi-asset
// price_change frame.
type AssetChangeSet struct {
	AssetID string          `json:"asset_id"`
	Changes []WSLevelChange `json:"changes"`
	Hash    string          `json:"hash"`
}

// WSCommand is the subscription payload sent on connect. The market data
// channel takes the full asset ID list and the literal type "MARKET".
type WSCommand struct {
	AssetIDs []string `json:"assets_ids"`
	Type     string   `json:"type"`
}

// --------------------------------------------------------------------------
// Conversion helpers: API types -> domain types
// --------------------------------------------------------------------------

// BookToDomainSnapshot converts a BookMessage to a domain.OrderbookSnapshot.
// Malformed levels are kept as zero values here; the replica skips them.
func BookToDomainSnapshot(b *BookMessage) domain.OrderbookSnapshot {
	snap := domain.OrderbookSnapshot{
		AssetID: b.AssetID,
		Hash:    b.Hash,
	}

	for _, lvl := range b.Bids {
		p, _ := strconv.ParseFloat(lvl.Price, 64)
		s, _ := strconv.ParseFloat(lvl.Size, 64)
		snap.Bids = append(snap.Bids, domain.PriceLevel{Price: p, Size: s})
		if p > snap.BestBid {
			snap.BestBid = p
		}
	}
	for _, lvl := range b.Asks {
		p, _ := strconv.ParseFloat(lvl.Price, 64)
		s, _ := strconv.ParseFloat(lvl.Size, 64)
		snap.Asks = append(snap.Asks, domain.PriceLevel{Price: p, Size: s})
		if snap.BestAsk == 0 || p < snap.BestAsk {
			snap.BestAsk = p
		}
	}

	snap.Timestamp = parseWSTimestamp(b.Timestamp)
	return snap
}

// PriceChangesToDomain flattens a PriceChangeMessage into individual
// domain.PriceChange updates, handling flat, batched and multi-asset shapes.
func PriceChangesToDomain(p *PriceChangeMessage) []domain.PriceChange {
	ts := parseWSTimestamp(p.Timestamp)
	var out []domain.PriceChange

	add := func(assetID, side, price, size, hash string) {
		ch := domain.PriceChange{
			AssetID:   assetID,
			Side:      side,
			Timestamp: ts,
			Hash:      hash,
		}
		ch.Price, _ = strconv.ParseFloat(price, 64)
		ch.Size, _ = strconv.ParseFloat(size, 64)
		out = append(out, ch)
	}

	switch {
	case len(p.PriceChgs) > 0:
		for _, set := range p.PriceChgs {
			for _, c := range set.Changes {
				add(set.AssetID, c.Side, c.Price, c.Size, set.Hash)
			}
		}
	case len(p.Changes) > 0:
		for _, c := range p.Changes {
			add(p.AssetID, c.Side, c.Price, c.Size, p.Hash)
		}
	default:
		add(p.AssetID, p.Side, p.Price, p.Size, p.Hash)
	}
	return out
}

// parseWSTimestamp accepts unix milliseconds, unix seconds or RFC3339.
func parseWSTimestamp(raw string) time.Time {
	if ts, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if ts > 1e12 {
			return time.UnixMilli(ts)
		}
		return time.Unix(ts, 0)
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	return time.Now()
}
