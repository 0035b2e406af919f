package domain

import "time"

// EventType names the events published to the notifier and the dashboard
// event bus.
type EventType string

const (
	EventOpportunityFound EventType = "opportunity_found"
	EventTradeExecuted    EventType = "trade_executed"
	EventTradeFailed      EventType = "trade_failed"
	EventMarketUpdate     EventType = "market_update"
	EventMarketRollover   EventType = "market_rollover"
	EventWindowClosed     EventType = "window_closed"
	EventSessionSummary   EventType = "session_summary"
)

// Event is the envelope fanned out to event sinks. Payload holds one of
// Opportunity, ExecutionOutcome, MarketUpdate, MarketWindow, WindowResult
// or SessionSummary depending on Type.
type Event struct {
	ID        string    `json:"id,omitempty"`
	Type      EventType `json:"type"`
	Slug      string    `json:"slug,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// MarketUpdate is the dashboard ticker payload: current top-of-book asks
// and time remaining, emitted on every detection pass.
type MarketUpdate struct {
	UpBestAsk     float64 `json:"up_best_ask"`
	DownBestAsk   float64 `json:"down_best_ask"`
	TotalCost     float64 `json:"total_cost"`
	TimeRemaining float64 `json:"time_remaining_seconds"`
}

// SessionSummary is the running account of a trading session, emitted on
// every rollover and at shutdown.
type SessionSummary struct {
	StartedAt        time.Time `json:"started_at"`
	WindowsTraded    int       `json:"windows_traded"`
	Opportunities    int       `json:"opportunities"`
	Attempts         int       `json:"attempts"`
	Successes        int       `json:"successes"`
	Failures         int       `json:"failures"`
	Unwinds          int       `json:"unwinds"`
	TotalSpent       float64   `json:"total_spent"`
	TotalLockedValue float64   `json:"total_locked_value"`
	LockedProfit     float64   `json:"locked_profit"`
}
