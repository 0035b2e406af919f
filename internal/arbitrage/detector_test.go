package arbitrage

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/updownbot/internal/book"
	"github.com/alanyoungcy/updownbot/internal/domain"
)

func newDetector(ceiling, size float64) *Detector {
	return NewDetector(
		Config{CostCeiling: ceiling, OrderSize: size},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

func bookWith(assetID string, bids, asks []domain.PriceLevel) *book.State {
	s := book.NewState(assetID)
	s.ApplySnapshot(bids, asks, time.Now())
	return s
}

func openWindow(now time.Time) domain.MarketWindow {
	return domain.MarketWindow{
		Slug:        "btc-updown-15m-1725004800",
		UpAssetID:   "tok-up",
		DownAssetID: "tok-down",
		WindowStart: now.Add(-time.Minute),
		WindowEnd:   now.Add(14 * time.Minute),
	}
}

func TestCheckFindsEntry(t *testing.T) {
	now := time.Now()
	d := newDetector(0.99, 50)
	up := bookWith("tok-up", nil, []domain.PriceLevel{{Price: 0.40, Size: 100}})
	down := bookWith("tok-down", nil, []domain.PriceLevel{{Price: 0.55, Size: 100}})

	opp := d.Check(up, down, openWindow(now), now)

	require.NotNil(t, opp)
	assert.InDelta(t, 0.95, opp.TotalCost, 1e-9)
	assert.InDelta(t, 0.05, opp.ProfitPerShare, 1e-9)
	assert.InDelta(t, 0.05/0.95*100, opp.ProfitPct, 1e-9)
	assert.InDelta(t, 47.5, opp.TotalInvestment, 1e-9)
	assert.InDelta(t, 50.0, opp.ExpectedPayout, 1e-9)
	assert.InDelta(t, 2.50, opp.ExpectedProfit, 1e-9)
	assert.Equal(t, 0.40, opp.UpPrice)
	assert.Equal(t, 0.55, opp.DownPrice)
	assert.Equal(t, 50.0, opp.Size)
}

func TestCheckIsIdempotent(t *testing.T) {
	now := time.Now()
	d := newDetector(0.99, 50)
	up := bookWith("tok-up", nil, []domain.PriceLevel{{Price: 0.40, Size: 100}})
	down := bookWith("tok-down", nil, []domain.PriceLevel{{Price: 0.55, Size: 100}})
	w := openWindow(now)

	first := d.Check(up, down, w, now)
	second := d.Check(up, down, w, now)

	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, *first, *second)
}

func TestCheckUsesWorstPriceNotBest(t *testing.T) {
	now := time.Now()
	d := newDetector(0.99, 50)
	// 30 shares at 0.40, the rest at 0.56: worst-price total crosses the
	// ceiling even though best prices look attractive.
	up := bookWith("tok-up", nil, []domain.PriceLevel{
		{Price: 0.40, Size: 30},
		{Price: 0.56, Size: 100},
	})
	down := bookWith("tok-down", nil, []domain.PriceLevel{{Price: 0.55, Size: 100}})

	assert.Nil(t, d.Check(up, down, openWindow(now), now))
}

func TestCheckAcceptsAtCeiling(t *testing.T) {
	now := time.Now()
	d := newDetector(0.99, 50)
	up := bookWith("tok-up", nil, []domain.PriceLevel{{Price: 0.44, Size: 100}})
	down := bookWith("tok-down", nil, []domain.PriceLevel{{Price: 0.55, Size: 100}})

	// 0.44 + 0.55 = 0.99 exactly; only a cost above the ceiling is rejected
	opp := d.Check(up, down, openWindow(now), now)
	require.NotNil(t, opp)
	assert.InDelta(t, 0.99, opp.TotalCost, 1e-9)
}

func TestCheckRejectsAboveCeiling(t *testing.T) {
	now := time.Now()
	d := newDetector(0.99, 50)
	up := bookWith("tok-up", nil, []domain.PriceLevel{{Price: 0.45, Size: 100}})
	down := bookWith("tok-down", nil, []domain.PriceLevel{{Price: 0.55, Size: 100}})

	assert.Nil(t, d.Check(up, down, openWindow(now), now))
}

func TestCheckInsufficientDepth(t *testing.T) {
	now := time.Now()
	d := newDetector(0.99, 50)
	up := bookWith("tok-up", nil, []domain.PriceLevel{{Price: 0.40, Size: 10}})
	down := bookWith("tok-down", nil, []domain.PriceLevel{{Price: 0.55, Size: 100}})

	assert.Nil(t, d.Check(up, down, openWindow(now), now))
}

func TestCheckCrossedBook(t *testing.T) {
	now := time.Now()
	d := newDetector(0.99, 50)
	up := bookWith("tok-up",
		[]domain.PriceLevel{{Price: 0.50, Size: 100}},
		[]domain.PriceLevel{{Price: 0.40, Size: 100}})
	down := bookWith("tok-down", nil, []domain.PriceLevel{{Price: 0.55, Size: 100}})

	assert.Nil(t, d.Check(up, down, openWindow(now), now))
}

func TestCheckUnsyncedBook(t *testing.T) {
	now := time.Now()
	d := newDetector(0.99, 50)
	up := book.NewState("tok-up")
	down := bookWith("tok-down", nil, []domain.PriceLevel{{Price: 0.55, Size: 100}})

	assert.Nil(t, d.Check(up, down, openWindow(now), now))
	assert.Nil(t, d.Check(nil, down, openWindow(now), now))
}

func TestCheckClosedWindow(t *testing.T) {
	now := time.Now()
	d := newDetector(0.99, 50)
	up := bookWith("tok-up", nil, []domain.PriceLevel{{Price: 0.40, Size: 100}})
	down := bookWith("tok-down", nil, []domain.PriceLevel{{Price: 0.55, Size: 100}})

	w := openWindow(now)
	// one second past settlement
	late := w.WindowEnd.Add(time.Second)
	assert.Nil(t, d.Check(up, down, w, late))
}

func TestCheckMinTimeLeft(t *testing.T) {
	now := time.Now()
	d := NewDetector(
		Config{CostCeiling: 0.99, OrderSize: 50, MinTimeLeft: time.Minute},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	up := bookWith("tok-up", nil, []domain.PriceLevel{{Price: 0.40, Size: 100}})
	down := bookWith("tok-down", nil, []domain.PriceLevel{{Price: 0.55, Size: 100}})

	w := openWindow(now)
	nearClose := w.WindowEnd.Add(-30 * time.Second)
	assert.Nil(t, d.Check(up, down, w, nearClose))
}
