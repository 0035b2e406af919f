package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	s3blob "github.com/alanyoungcy/updownbot/internal/blob/s3"
	"github.com/alanyoungcy/updownbot/internal/domain"
)

// ReportStore reads archived window reports. *s3blob.Reader satisfies it.
type ReportStore interface {
	List(ctx context.Context, prefix string) ([]s3blob.ObjectInfo, error)
	Get(ctx context.Context, path string) (io.ReadCloser, error)
}

// ReportsHandler serves the archived settlement reports.
type ReportsHandler struct {
	store  ReportStore
	logger *slog.Logger
}

// NewReportsHandler creates a ReportsHandler backed by the given store.
func NewReportsHandler(store ReportStore, logger *slog.Logger) *ReportsHandler {
	return &ReportsHandler{store: store, logger: logger}
}

// ListReports responds with metadata for the archived reports.
// GET /api/reports?prefix=reports/windows/
func (h *ReportsHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	if prefix == "" {
		prefix = "reports/"
	}
	if !strings.HasPrefix(prefix, "reports/") {
		writeError(w, http.StatusBadRequest, "prefix must start with reports/")
		return
	}

	infos, err := h.store.List(r.Context(), prefix)
	if err != nil {
		h.logger.Error("list reports", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list reports")
		return
	}
	if infos == nil {
		infos = []s3blob.ObjectInfo{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"reports": infos,
		"count":   len(infos),
	})
}

// GetReport streams one archived report.
// GET /api/reports/{path...}
func (h *ReportsHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	path := "reports/" + r.PathValue("path")
	if strings.Contains(path, "..") {
		writeError(w, http.StatusBadRequest, "invalid report path")
		return
	}

	body, err := h.store.Get(r.Context(), path)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "report not found")
			return
		}
		h.logger.Error("get report",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to fetch report")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", contentTypeFor(path))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, body)
}

func contentTypeFor(path string) string {
	switch {
	case strings.HasSuffix(path, ".jsonl"):
		return "application/x-ndjson"
	case strings.HasSuffix(path, ".json"):
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
