package book

import "github.com/alanyoungcy/updownbot/internal/domain"

// fillEpsilon absorbs float accumulation error when deciding whether the
// walked depth covers the target size.
const fillEpsilon = 1e-9

// EstimateBuyFill walks the ask ladder from the best price and reports the
// cost of acquiring target shares. WorstPrice is the deepest level touched;
// orders are priced there rather than at the VWAP so a limit order can
// sweep every level the estimate consumed.
func EstimateBuyFill(asks []domain.PriceLevel, target float64) domain.FillEstimate {
	est := domain.FillEstimate{}
	if target <= 0 {
		return est
	}
	remaining := target
	for _, lv := range asks {
		if lv.Price <= 0 || lv.Size <= 0 {
			continue
		}
		if est.BestPrice == 0 {
			est.BestPrice = lv.Price
		}
		take := lv.Size
		if take > remaining {
			take = remaining
		}
		est.Filled += take
		est.Cost += take * lv.Price
		est.WorstPrice = lv.Price
		remaining -= take
		if remaining <= fillEpsilon {
			break
		}
	}
	if est.Filled > 0 {
		est.VWAP = est.Cost / est.Filled
	}
	est.Sufficient = est.Filled+fillEpsilon >= target
	return est
}

// EstimateBuyFillFor is EstimateBuyFill against a live replica.
func EstimateBuyFillFor(s *State, target float64) domain.FillEstimate {
	return EstimateBuyFill(s.Asks(), target)
}
