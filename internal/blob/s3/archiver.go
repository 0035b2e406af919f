package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// ObjectPutter is the single upload operation the archiver needs; *Writer
// satisfies it.
type ObjectPutter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver writes per-window settlement reports to object storage. It
// buffers events as windows trade; when a window closes, everything that
// happened in it is serialized to JSONL and uploaded under
// reports/windows/<slug>.jsonl. Session summaries are written as single
// JSON documents under reports/sessions/.
//
// Buffered events are dropped after upload, so memory stays bounded by one
// window's activity.
type Archiver struct {
	writer ObjectPutter

	mu  sync.Mutex
	buf []domain.Event
}

// NewArchiver creates an Archiver uploading through the given writer.
func NewArchiver(writer ObjectPutter) *Archiver {
	return &Archiver{writer: writer}
}

// Publish buffers trading events and flushes a report when the window
// closes.
func (a *Archiver) Publish(ctx context.Context, ev domain.Event) error {
	switch ev.Type {
	case domain.EventOpportunityFound, domain.EventTradeExecuted, domain.EventTradeFailed, domain.EventMarketRollover:
		a.mu.Lock()
		a.buf = append(a.buf, ev)
		a.mu.Unlock()
		return nil

	case domain.EventWindowClosed:
		return a.flushWindow(ctx, ev)

	case domain.EventSessionSummary:
		return a.writeSummary(ctx, ev)

	default:
		return nil
	}
}

// flushWindow uploads the buffered events for the closing window, including
// the closing event itself, then clears the buffer.
func (a *Archiver) flushWindow(ctx context.Context, closing domain.Event) error {
	a.mu.Lock()
	events := append(a.buf, closing)
	a.buf = nil
	a.mu.Unlock()

	// Nothing beyond the close itself happened in this window.
	if len(events) == 1 {
		return nil
	}

	buf, err := marshalJSONL(events)
	if err != nil {
		return fmt.Errorf("s3blob: window report marshal %s: %w", closing.Slug, err)
	}

	path := fmt.Sprintf("reports/windows/%s.jsonl", closing.Slug)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return fmt.Errorf("s3blob: window report upload %s: %w", closing.Slug, err)
	}
	return nil
}

// writeSummary uploads a session summary as a standalone JSON document
// keyed by the session start time.
func (a *Archiver) writeSummary(ctx context.Context, ev domain.Event) error {
	sum, ok := ev.Payload.(domain.SessionSummary)
	if !ok {
		return fmt.Errorf("s3blob: unexpected payload %T for %s", ev.Payload, ev.Type)
	}

	data, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return fmt.Errorf("s3blob: session summary marshal: %w", err)
	}

	path := fmt.Sprintf("reports/sessions/%s.json", sum.StartedAt.UTC().Format("2006-01-02T15-04-05Z"))
	if err := a.writer.Put(ctx, path, bytes.NewReader(data), "application/json"); err != nil {
		return fmt.Errorf("s3blob: session summary upload: %w", err)
	}
	return nil
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
