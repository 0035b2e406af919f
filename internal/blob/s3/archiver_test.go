package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

type memPutter struct {
	objects map[string][]byte
	types   map[string]string
}

func newMemPutter() *memPutter {
	return &memPutter{
		objects: make(map[string][]byte),
		types:   make(map[string]string),
	}
}

func (m *memPutter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.objects[path] = buf
	m.types[path] = contentType
	return nil
}

func TestArchiverFlushesWindowReportOnClose(t *testing.T) {
	putter := newMemPutter()
	a := NewArchiver(putter)
	ctx := context.Background()

	slug := "btc-updown-15m-1725004800"
	opp := domain.Event{
		Type:      domain.EventOpportunityFound,
		Slug:      slug,
		Timestamp: time.Now(),
		Payload:   domain.Opportunity{MarketSlug: slug, TotalCost: 0.95},
	}
	executed := domain.Event{
		Type:      domain.EventTradeExecuted,
		Slug:      slug,
		Timestamp: time.Now(),
		Payload:   domain.ExecutionOutcome{Phase: domain.PhaseBothFilled},
	}
	closed := domain.Event{
		Type:      domain.EventWindowClosed,
		Slug:      slug,
		Timestamp: time.Now(),
	}

	require.NoError(t, a.Publish(ctx, opp))
	require.NoError(t, a.Publish(ctx, executed))
	assert.Empty(t, putter.objects, "nothing uploaded before the window closes")

	require.NoError(t, a.Publish(ctx, closed))

	path := "reports/windows/" + slug + ".jsonl"
	data, ok := putter.objects[path]
	require.True(t, ok, "window report uploaded")
	assert.Equal(t, "application/x-ndjson", putter.types[path])

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)

	var first domain.Event
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, domain.EventOpportunityFound, first.Type)

	var last domain.Event
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &last))
	assert.Equal(t, domain.EventWindowClosed, last.Type)
}

func TestArchiverSkipsEmptyWindows(t *testing.T) {
	putter := newMemPutter()
	a := NewArchiver(putter)

	closed := domain.Event{
		Type:      domain.EventWindowClosed,
		Slug:      "btc-updown-15m-1725004800",
		Timestamp: time.Now(),
	}
	require.NoError(t, a.Publish(context.Background(), closed))
	assert.Empty(t, putter.objects)
}

func TestArchiverWritesSessionSummary(t *testing.T) {
	putter := newMemPutter()
	a := NewArchiver(putter)

	started := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	ev := domain.Event{
		Type:      domain.EventSessionSummary,
		Timestamp: time.Now(),
		Payload: domain.SessionSummary{
			StartedAt:    started,
			Attempts:     3,
			Successes:    2,
			LockedProfit: 4.75,
		},
	}
	require.NoError(t, a.Publish(context.Background(), ev))

	path := "reports/sessions/2026-08-30T12-00-00Z.json"
	data, ok := putter.objects[path]
	require.True(t, ok, "session summary uploaded")
	assert.Equal(t, "application/json", putter.types[path])

	var sum domain.SessionSummary
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &sum))
	assert.Equal(t, 3, sum.Attempts)
	assert.Equal(t, 4.75, sum.LockedProfit)
}
