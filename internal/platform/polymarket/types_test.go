package polymarket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

func TestBookToDomainSnapshot(t *testing.T) {
	msg := &BookMessage{
		AssetID: "tok-up",
		Bids: []WSPriceLevel{
			{Price: "0.40", Size: "100"},
			{Price: "0.39", Size: "50"},
		},
		Asks: []WSPriceLevel{
			{Price: "0.45", Size: "30"},
			{Price: "0.47", Size: "10"},
		},
		Timestamp: "1725004800",
		Hash:      "abc",
	}

	snap := BookToDomainSnapshot(msg)

	assert.Equal(t, "tok-up", snap.AssetID)
	assert.Equal(t, 0.40, snap.BestBid)
	assert.Equal(t, 0.45, snap.BestAsk)
	assert.Equal(t, "abc", snap.Hash)
	assert.False(t, snap.Crossed())
	assert.Equal(t, time.Unix(1725004800, 0), snap.Timestamp)
}

func TestPriceChangesToDomainFlat(t *testing.T) {
	msg := &PriceChangeMessage{
		AssetID:   "tok-up",
		Side:      "SELL",
		Price:     "0.45",
		Size:      "0",
		Timestamp: "1725004800",
	}

	changes := PriceChangesToDomain(msg)

	require.Len(t, changes, 1)
	assert.Equal(t, "tok-up", changes[0].AssetID)
	assert.Equal(t, "SELL", changes[0].Side)
	assert.Zero(t, changes[0].Size)
}

func TestPriceChangesToDomainBatched(t *testing.T) {
	msg := &PriceChangeMessage{
		AssetID: "tok-up",
		Changes: []WSLevelChange{
			{Side: "BUY", Price: "0.40", Size: "10"},
			{Side: "SELL", Price: "0.45", Size: "5"},
		},
		Timestamp: "1725004800000",
	}

	changes := PriceChangesToDomain(msg)

	require.Len(t, changes, 2)
	assert.Equal(t, 0.40, changes[0].Price)
	assert.Equal(t, "SELL", changes[1].Side)
	assert.Equal(t, time.UnixMilli(1725004800000), changes[0].Timestamp)
}

func TestPriceChangesToDomainMultiAsset(t *testing.T) {
	msg := &PriceChangeMessage{
		PriceChgs: []AssetChangeSet{
			{AssetID: "tok-up", Changes: []WSLevelChange{{Side: "SELL", Price: "0.45", Size: "5"}}},
			{AssetID: "tok-down", Changes: []WSLevelChange{{Side: "BUY", Price: "0.50", Size: "8"}}},
		},
		Timestamp: "1725004800",
	}

	changes := PriceChangesToDomain(msg)

	require.Len(t, changes, 2)
	assert.Equal(t, "tok-up", changes[0].AssetID)
	assert.Equal(t, "tok-down", changes[1].AssetID)
}

func TestAPIOrderToDomainOrderState(t *testing.T) {
	o := &APIOrder{
		ID:           "ord-1",
		AssetID:      "tok-up",
		Side:         "BUY",
		Status:       "FILLED",
		Price:        "0.40",
		OriginalSize: "50",
		SizeMatched:  "50",
	}

	st := o.ToDomainOrderState()

	assert.Equal(t, domain.StatusFilled, st.Status)
	assert.True(t, st.Filled())
	assert.True(t, domain.IsTerminal(st.Status))
	assert.Equal(t, 50.0, st.SizeMatched)
}

func TestTerminalStatuses(t *testing.T) {
	for _, st := range []domain.OrderStatus{"filled", "canceled", "cancelled", "rejected", "expired"} {
		assert.True(t, domain.IsTerminal(st), string(st))
	}
	for _, st := range []domain.OrderStatus{"pending", "partially_filled", "live", "timeout"} {
		assert.False(t, domain.IsTerminal(st), string(st))
	}
}
