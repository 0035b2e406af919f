// Package arbitrage detects two-leg entries on up/down binary pairs: when
// buying both tokens at their worst fill prices costs no more than the
// ceiling, the pair locks a riskless payout at settlement.
package arbitrage

import (
	"log/slog"
	"time"

	"github.com/alanyoungcy/updownbot/internal/book"
	"github.com/alanyoungcy/updownbot/internal/domain"
)

// Config holds the detection thresholds.
type Config struct {
	// CostCeiling is the maximum combined worst-price cost per share pair
	// for an entry, e.g. 0.99.
	CostCeiling float64

	// OrderSize is the target share count evaluated on both legs.
	OrderSize float64

	// MinTimeLeft skips detection when the window is closer than this to
	// settlement; fills this late risk settling before both legs rest.
	MinTimeLeft time.Duration
}

// Detector evaluates the current pair of books for an entry. Detection is
// pure with respect to the book contents: the same books yield the same
// result, and detection never mutates them.
type Detector struct {
	cfg    Config
	logger *slog.Logger
}

func NewDetector(cfg Config, logger *slog.Logger) *Detector {
	return &Detector{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "detector")),
	}
}

// Check evaluates both books against the window at `now`. It returns nil
// when no entry exists; the reason is logged at debug level only so the
// hot path stays quiet.
func (d *Detector) Check(up, down *book.State, w domain.MarketWindow, now time.Time) *domain.Opportunity {
	if w.Closed(now) {
		return nil
	}
	if d.cfg.MinTimeLeft > 0 && w.TimeRemaining(now) < d.cfg.MinTimeLeft {
		return nil
	}
	if up == nil || down == nil || !up.Synced() || !down.Synced() {
		return nil
	}

	// A crossed book means the replica is mid-update or the feed sent
	// garbage; never trade off it.
	if crossed(up) || crossed(down) {
		d.logger.Debug("crossed book, skipping", slog.String("slug", w.Slug))
		return nil
	}

	upFill := book.EstimateBuyFillFor(up, d.cfg.OrderSize)
	downFill := book.EstimateBuyFillFor(down, d.cfg.OrderSize)
	if !upFill.Sufficient || !downFill.Sufficient {
		return nil
	}

	totalCost := upFill.WorstPrice + downFill.WorstPrice
	if totalCost > d.cfg.CostCeiling {
		return nil
	}

	profitPerShare := domain.PairPayout - totalCost
	profitPct := 0.0
	if totalCost > 0 {
		profitPct = profitPerShare / totalCost * 100
	}
	investment := totalCost * d.cfg.OrderSize
	payout := domain.PairPayout * d.cfg.OrderSize
	opp := &domain.Opportunity{
		UpAssetID:       w.UpAssetID,
		DownAssetID:     w.DownAssetID,
		UpPrice:         upFill.WorstPrice,
		DownPrice:       downFill.WorstPrice,
		UpVWAP:          upFill.VWAP,
		DownVWAP:        downFill.VWAP,
		TotalCost:       totalCost,
		ProfitPerShare:  profitPerShare,
		ProfitPct:       profitPct,
		Size:            d.cfg.OrderSize,
		TotalInvestment: investment,
		ExpectedPayout:  payout,
		ExpectedProfit:  payout - investment,
		DetectedAt:      now,
		WindowEnd:       w.WindowEnd,
		MarketSlug:      w.Slug,
	}

	d.logger.Info("opportunity detected",
		slog.String("slug", w.Slug),
		slog.Float64("up_price", opp.UpPrice),
		slog.Float64("down_price", opp.DownPrice),
		slog.Float64("total_cost", opp.TotalCost),
		slog.Float64("expected_profit", opp.ExpectedProfit))
	return opp
}

func crossed(s *book.State) bool {
	bid, ask := s.BestBid(), s.BestAsk()
	return bid > 0 && ask > 0 && ask < bid
}
