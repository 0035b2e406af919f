package book

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

func TestSnapshotReplacesExistingLevels(t *testing.T) {
	s := NewState("tok-up")
	s.ApplySnapshot(
		[]domain.PriceLevel{{Price: 0.40, Size: 100}},
		[]domain.PriceLevel{{Price: 0.45, Size: 50}},
		time.Now(),
	)
	s.ApplySnapshot(
		[]domain.PriceLevel{{Price: 0.38, Size: 10}},
		[]domain.PriceLevel{{Price: 0.44, Size: 20}, {Price: 0.46, Size: 30}},
		time.Now(),
	)

	require.True(t, s.Synced())
	assert.Equal(t, 0.38, s.BestBid())
	assert.Equal(t, 0.44, s.BestAsk())
	assert.Len(t, s.Asks(), 2)
	assert.Len(t, s.Bids(), 1)
}

func TestSnapshotSkipsMalformedLevels(t *testing.T) {
	s := NewState("tok-up")
	s.ApplySnapshot(
		[]domain.PriceLevel{{Price: 0, Size: 100}, {Price: 0.40, Size: -5}, {Price: 0.41, Size: 7}},
		[]domain.PriceLevel{{Price: -1, Size: 3}, {Price: 0.50, Size: 0}},
		time.Now(),
	)

	assert.Equal(t, []domain.PriceLevel{{Price: 0.41, Size: 7}}, s.Bids())
	assert.Empty(t, s.Asks())
}

func TestChangeBeforeSnapshotIsDropped(t *testing.T) {
	s := NewState("tok-up")
	s.ApplyChange(domain.PriceChange{Side: "SELL", Price: 0.50, Size: 10})

	assert.False(t, s.Synced())
	assert.Empty(t, s.Asks())
}

func TestZeroSizeChangeRemovesLevel(t *testing.T) {
	s := NewState("tok-up")
	s.ApplySnapshot(nil, []domain.PriceLevel{{Price: 0.50, Size: 10}, {Price: 0.52, Size: 5}}, time.Now())

	s.ApplyChange(domain.PriceChange{Side: "SELL", Price: 0.50, Size: 0})
	assert.Equal(t, 0.52, s.BestAsk())

	s.ApplyChange(domain.PriceChange{Side: "SELL", Price: 0.52, Size: -1})
	assert.Equal(t, 0.0, s.BestAsk())
}

func TestChangeUpsertsLevel(t *testing.T) {
	s := NewState("tok-up")
	s.ApplySnapshot([]domain.PriceLevel{{Price: 0.40, Size: 10}}, nil, time.Now())

	s.ApplyChange(domain.PriceChange{Side: "BUY", Price: 0.40, Size: 25})
	s.ApplyChange(domain.PriceChange{Side: "BUY", Price: 0.42, Size: 8})

	assert.Equal(t, []domain.PriceLevel{{Price: 0.42, Size: 8}, {Price: 0.40, Size: 25}}, s.Bids())
}

func TestResetClearsAndUnsyncs(t *testing.T) {
	s := NewState("tok-up")
	s.ApplySnapshot([]domain.PriceLevel{{Price: 0.40, Size: 10}}, []domain.PriceLevel{{Price: 0.60, Size: 10}}, time.Now())

	s.Reset()

	assert.False(t, s.Synced())
	assert.Empty(t, s.Bids())
	assert.Empty(t, s.Asks())

	// diffs after reset must not resurrect levels
	s.ApplyChange(domain.PriceChange{Side: "SELL", Price: 0.60, Size: 10})
	assert.Empty(t, s.Asks())
}

func TestSnapshotCrossedDetection(t *testing.T) {
	s := NewState("tok-up")
	s.ApplySnapshot(
		[]domain.PriceLevel{{Price: 0.55, Size: 10}},
		[]domain.PriceLevel{{Price: 0.50, Size: 10}},
		time.Now(),
	)
	assert.True(t, s.Snapshot().Crossed())
}
