package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// StatusSource exposes the live session state the dashboard polls for.
// *strategy.Session satisfies it.
type StatusSource interface {
	Window() domain.MarketWindow
	Summary() domain.SessionSummary
}

// StatusHandler serves the backend status for the dashboard.
type StatusHandler struct {
	mode   string
	source StatusSource
}

// NewStatusHandler creates a StatusHandler. source may be nil when no
// trading session is running (server-only mode).
func NewStatusHandler(mode string, source StatusSource) *StatusHandler {
	return &StatusHandler{mode: mode, source: source}
}

// GetStatus responds with the runtime mode, the current market window and
// the running session summary.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"mode": h.mode,
	}

	if h.source != nil {
		win := h.source.Window()
		resp["summary"] = h.source.Summary()
		if win.Slug != "" {
			resp["window"] = win
			resp["time_remaining_seconds"] = int64(win.TimeRemaining(time.Now().UTC()).Seconds())
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
