package domain

import "time"

// ExecutionPhase tracks where a two-leg execution attempt is in its life.
type ExecutionPhase string

const (
	PhaseIdle          ExecutionPhase = "idle"
	PhaseSubmitting    ExecutionPhase = "submitting"
	PhaseAwaitingFills ExecutionPhase = "awaiting_fills"
	PhaseBothFilled    ExecutionPhase = "both_filled"
	PhaseUnwinding     ExecutionPhase = "unwinding"
	PhaseFailed        ExecutionPhase = "failed"
)

// LegResult is the final observed state of one leg of an execution attempt.
type LegResult struct {
	AssetID string      `json:"asset_id"`
	OrderID string      `json:"order_id"`
	Status  OrderStatus `json:"status"`
	Price   float64     `json:"price"`
	Size    float64     `json:"size"`
	Filled  bool        `json:"filled"`
}

// ExecutionOutcome summarizes one complete execution attempt.
type ExecutionOutcome struct {
	Phase        ExecutionPhase `json:"phase"`
	Opportunity  Opportunity    `json:"opportunity"`
	Size         float64        `json:"size"`
	UpLeg        LegResult      `json:"up_leg"`
	DownLeg      LegResult      `json:"down_leg"`
	LockedProfit float64        `json:"locked_profit"`
	UnwindPlaced bool           `json:"unwind_placed"`
	UnwindFilled bool           `json:"unwind_filled"`
	Err          string         `json:"error,omitempty"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   time.Time      `json:"finished_at"`
}

// Success reports whether both legs filled.
func (o ExecutionOutcome) Success() bool {
	return o.Phase == PhaseBothFilled
}
