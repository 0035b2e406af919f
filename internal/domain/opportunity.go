package domain

import "time"

// FillEstimate is the result of walking the ask ladder for a target size.
// WorstPrice is the price of the deepest level consumed and is what buy
// limit orders are priced at; VWAP is informational only.
type FillEstimate struct {
	Filled     float64
	Cost       float64
	VWAP       float64
	WorstPrice float64
	BestPrice  float64
	Sufficient bool
}

// Opportunity is a detected two-leg arbitrage entry: buying both the UP and
// DOWN token at their worst fill prices costs no more than the configured
// cost ceiling, locking in PairPayout-TotalCost per share at settlement.
type Opportunity struct {
	UpAssetID       string    `json:"up_asset_id"`
	DownAssetID     string    `json:"down_asset_id"`
	UpPrice         float64   `json:"up_price"` // worst-price limit for the UP leg
	DownPrice       float64   `json:"down_price"`
	UpVWAP          float64   `json:"up_vwap"`
	DownVWAP        float64   `json:"down_vwap"`
	TotalCost       float64   `json:"total_cost"`
	ProfitPerShare  float64   `json:"profit_per_share"`
	ProfitPct       float64   `json:"profit_pct"` // profit per share over total cost
	Size            float64   `json:"size"`       // max size fillable on both legs
	TotalInvestment float64   `json:"total_investment"`
	ExpectedPayout  float64   `json:"expected_payout"`
	ExpectedProfit  float64   `json:"expected_profit"`
	DetectedAt      time.Time `json:"detected_at"`
	WindowEnd       time.Time `json:"window_end"`
	MarketSlug      string    `json:"market_slug"`
}
