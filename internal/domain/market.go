package domain

import "time"

// WindowDuration is the fixed lifetime of an up/down market window.
const WindowDuration = 15 * time.Minute

// PairPayout is the guaranteed combined settlement value of one UP share
// plus one DOWN share.
const PairPayout = 1.0

// MarketWindow is one 15-minute up/down market: a pair of binary tokens
// settling at WindowStart+WindowDuration.
type MarketWindow struct {
	Slug        string    `json:"slug"`
	ConditionID string    `json:"condition_id"`
	UpAssetID   string    `json:"up_asset_id"`
	DownAssetID string    `json:"down_asset_id"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
}

// TimeRemaining returns the time until settlement, negative once the
// window has closed.
func (w MarketWindow) TimeRemaining(now time.Time) time.Duration {
	return w.WindowEnd.Sub(now)
}

// Closed reports whether the window has passed settlement.
func (w MarketWindow) Closed(now time.Time) bool {
	return !now.Before(w.WindowEnd)
}

// AssetIDs returns both token IDs, UP first.
func (w MarketWindow) AssetIDs() []string {
	return []string{w.UpAssetID, w.DownAssetID}
}

// settledAsk is the ask level at or above which a side is considered
// settled rather than merely leading.
const settledAsk = 0.99

// WindowResult is the payload of a window_closed event: the closed window
// plus the settlement direction estimated from the last observed asks.
type WindowResult struct {
	Window      MarketWindow `json:"window"`
	Direction   string       `json:"direction"` // "up", "down" or "unknown"
	Final       bool         `json:"final"`
	UpBestAsk   float64      `json:"up_best_ask"`
	DownBestAsk float64      `json:"down_best_ask"`
}

// EstimateSettlement derives the likely settlement direction from the final
// best asks of both legs. An ask at or above 0.99 marks that side as
// settled; otherwise the side with the higher ask is leading. Zero asks on
// both sides give "unknown".
func EstimateSettlement(upBestAsk, downBestAsk float64) (direction string, final bool) {
	switch {
	case upBestAsk >= settledAsk:
		return "up", true
	case downBestAsk >= settledAsk:
		return "down", true
	case upBestAsk <= 0 && downBestAsk <= 0:
		return "unknown", false
	case upBestAsk > downBestAsk:
		return "up", false
	case downBestAsk > upBestAsk:
		return "down", false
	default:
		return "unknown", false
	}
}
