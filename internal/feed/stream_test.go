package feed

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

func testStream(t *testing.T) *Stream {
	t.Helper()
	return NewStream("wss://example.invalid/ws/market", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testWindow() domain.MarketWindow {
	start := time.Unix(1725004800, 0)
	return domain.MarketWindow{
		Slug:        "btc-updown-15m-1725004800",
		UpAssetID:   "tok-up",
		DownAssetID: "tok-down",
		WindowStart: start,
		WindowEnd:   start.Add(domain.WindowDuration),
	}
}

func TestBindInstallsFreshReplicas(t *testing.T) {
	s := testStream(t)
	require.NoError(t, s.Bind(context.Background(), testWindow()))

	up := s.Book("tok-up")
	require.NotNil(t, up)
	assert.False(t, up.Synced())
	require.NotNil(t, s.Book("tok-down"))
	assert.Nil(t, s.Book("other"))
}

func TestBindDiscardsPreviousWindow(t *testing.T) {
	s := testStream(t)
	require.NoError(t, s.Bind(context.Background(), testWindow()))

	s.applySnapshot(domain.OrderbookSnapshot{
		AssetID: "tok-up",
		Asks:    []domain.PriceLevel{{Price: 0.45, Size: 10}},
	})
	require.True(t, s.Book("tok-up").Synced())

	next := testWindow()
	next.Slug = "btc-updown-15m-1725005700"
	next.UpAssetID = "tok-up-2"
	next.DownAssetID = "tok-down-2"
	require.NoError(t, s.Bind(context.Background(), next))

	// old assets are gone and late messages for them are ignored
	assert.Nil(t, s.Book("tok-up"))
	s.applyChange(domain.PriceChange{AssetID: "tok-up", Side: "SELL", Price: 0.45, Size: 5})
	assert.False(t, s.Book("tok-up-2").Synced())
}

func TestSnapshotAndDiffEmitEvents(t *testing.T) {
	s := testStream(t)
	require.NoError(t, s.Bind(context.Background(), testWindow()))

	s.applySnapshot(domain.OrderbookSnapshot{
		AssetID: "tok-up",
		Asks:    []domain.PriceLevel{{Price: 0.45, Size: 10}},
	})
	s.applyChange(domain.PriceChange{AssetID: "tok-up", Side: "SELL", Price: 0.45, Size: 0})

	ev := <-s.Events()
	assert.Equal(t, domain.BookEventSnapshot, ev.Kind)
	ev = <-s.Events()
	assert.Equal(t, domain.BookEventDiff, ev.Kind)

	assert.Zero(t, s.Book("tok-up").BestAsk())
}

func TestEmitNeverBlocksWhenFull(t *testing.T) {
	s := testStream(t)
	require.NoError(t, s.Bind(context.Background(), testWindow()))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 2000; i++ {
			s.emit(domain.BookEvent{AssetID: "tok-up", Kind: domain.BookEventDiff})
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("emit blocked with a full event channel")
	}
}
