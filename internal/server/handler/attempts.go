package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/updownbot/internal/store/postgres"
)

// AttemptLister reads recent execution attempts from the trade journal.
// *postgres.Journal satisfies it.
type AttemptLister interface {
	RecentAttempts(ctx context.Context, limit int) ([]postgres.AttemptRecord, error)
}

// AttemptsHandler serves the journaled execution history.
type AttemptsHandler struct {
	journal AttemptLister
	logger  *slog.Logger
}

// NewAttemptsHandler creates an AttemptsHandler backed by the given journal.
func NewAttemptsHandler(journal AttemptLister, logger *slog.Logger) *AttemptsHandler {
	return &AttemptsHandler{journal: journal, logger: logger}
}

// ListAttempts responds with recent execution attempts, newest first.
// GET /api/attempts?limit=50
func (h *AttemptsHandler) ListAttempts(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 50, 500)

	records, err := h.journal.RecentAttempts(r.Context(), limit)
	if err != nil {
		h.logger.Error("list attempts", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list attempts")
		return
	}
	if records == nil {
		records = []postgres.AttemptRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"attempts": records,
		"count":    len(records),
	})
}
