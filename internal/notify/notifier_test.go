package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

type recordingSender struct {
	name   string
	err    error
	titles []string
	bodies []string
}

func (r *recordingSender) Send(ctx context.Context, title, message string) error {
	if r.err != nil {
		return r.err
	}
	r.titles = append(r.titles, title)
	r.bodies = append(r.bodies, message)
	return nil
}

func (r *recordingSender) Name() string { return r.name }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyDispatchesToAllSenders(t *testing.T) {
	a := &recordingSender{name: "a"}
	b := &recordingSender{name: "b"}
	n := NewNotifier([]Sender{a, b}, nil, discard())

	err := n.Notify(context.Background(), domain.Event{
		Type: domain.EventTradeExecuted,
		Slug: "btc-updown-15m-1725004800",
		Payload: domain.ExecutionOutcome{
			Phase:        domain.PhaseBothFilled,
			Size:         50,
			LockedProfit: 2.50,
			UpLeg:        domain.LegResult{Price: 0.40},
			DownLeg:      domain.LegResult{Price: 0.55},
		},
	})

	require.NoError(t, err)
	require.Len(t, a.titles, 1)
	assert.Equal(t, "Trade executed", a.titles[0])
	assert.Contains(t, a.bodies[0], "$2.50")
	assert.Equal(t, a.titles, b.titles)
}

func TestNotifyFiltersEventTypes(t *testing.T) {
	s := &recordingSender{name: "a"}
	n := NewNotifier([]Sender{s}, []string{"trade_failed"}, discard())

	err := n.Notify(context.Background(), domain.Event{Type: domain.EventOpportunityFound})
	require.NoError(t, err)
	assert.Empty(t, s.titles)

	err = n.Notify(context.Background(), domain.Event{
		Type:    domain.EventTradeFailed,
		Payload: domain.ExecutionOutcome{Phase: domain.PhaseUnwinding, UnwindPlaced: true},
	})
	require.NoError(t, err)
	assert.Len(t, s.titles, 1)
}

func TestNotifyCollectsSenderFailures(t *testing.T) {
	bad := &recordingSender{name: "bad", err: errors.New("boom")}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discard())

	err := n.Notify(context.Background(), domain.Event{Type: domain.EventWindowClosed})

	// the failing sender does not block the good one
	assert.Error(t, err)
	assert.Len(t, good.titles, 1)
}
