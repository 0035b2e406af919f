// Package executor turns a detected opportunity into a two-leg execution:
// submit both buys, await terminal states, and unwind the surviving leg if
// only one side fills.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// TradingClient is the venue surface the engine needs. Implemented by the
// CLOB REST client.
type TradingClient interface {
	GetBalance(ctx context.Context) (float64, error)
	PostOrder(ctx context.Context, req domain.OrderRequest) (domain.SubmitResult, error)
	PostOrders(ctx context.Context, reqs []domain.OrderRequest) ([]domain.SubmitResult, error)
	GetOrder(ctx context.Context, orderID string) (domain.OrderState, error)
	CancelOrders(ctx context.Context, orderIDs []string) error
	GetOrderBook(ctx context.Context, assetID string) (domain.OrderbookSnapshot, error)
}

// Config holds the execution parameters.
type Config struct {
	// Cooldown is the minimum gap between execution attempts. It is the
	// only serialization between detections: a second opportunity inside
	// the cooldown is simply not attempted.
	Cooldown time.Duration

	// MinNotional is the venue's minimum order value in USDC. Sizes are
	// bumped so both legs clear it.
	MinNotional float64

	// BalanceSafety multiplies the required spend when checking the
	// available balance, covering fees and price drift.
	BalanceSafety float64

	// PollInterval and PollTimeout bound the per-leg wait for a terminal
	// order state.
	PollInterval time.Duration
	PollTimeout  time.Duration

	// DryRun skips all venue calls and reports both legs as filled.
	DryRun bool
}

// Defaults fills zero-valued fields with production values.
func (c *Config) Defaults() {
	if c.Cooldown <= 0 {
		c.Cooldown = 3 * time.Second
	}
	if c.MinNotional <= 0 {
		c.MinNotional = 1.0
	}
	if c.BalanceSafety <= 0 {
		c.BalanceSafety = 1.2
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 250 * time.Millisecond
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = 3 * time.Second
	}
}

// Engine executes opportunities against the venue. Execute is safe to call
// from one goroutine; the cooldown gate rejects overlapping attempts.
type Engine struct {
	cfg    Config
	client TradingClient
	logger *slog.Logger

	mu          sync.Mutex
	lastAttempt time.Time

	now func() time.Time
}

func NewEngine(cfg Config, client TradingClient, logger *slog.Logger) *Engine {
	cfg.Defaults()
	return &Engine{
		cfg:    cfg,
		client: client,
		logger: logger.With(slog.String("component", "executor")),
		now:    time.Now,
	}
}

// Execute runs one two-leg attempt for opp. It returns ErrCooldown when
// called inside the cooldown window, ErrInsufficientBalance when the
// account cannot cover the spend, and ErrInvalidSignature when the venue
// rejects the order signature (fatal, the caller should stop trading).
// Every other failure mode is reported in the returned outcome.
func (e *Engine) Execute(ctx context.Context, opp domain.Opportunity) (domain.ExecutionOutcome, error) {
	started := e.now()
	outcome := domain.ExecutionOutcome{
		Phase:       domain.PhaseSubmitting,
		Opportunity: opp,
		StartedAt:   started,
	}

	e.mu.Lock()
	if !e.lastAttempt.IsZero() && started.Sub(e.lastAttempt) < e.cfg.Cooldown {
		e.mu.Unlock()
		return outcome, domain.ErrCooldown
	}
	e.lastAttempt = started
	e.mu.Unlock()

	size := e.sizeFor(opp)
	outcome.Size = size

	log := e.logger.With(
		slog.String("slug", opp.MarketSlug),
		slog.Float64("size", size),
		slog.Float64("total_cost", opp.TotalCost),
	)

	if e.cfg.DryRun {
		log.Info("dry run, simulating both fills")
		outcome.Phase = domain.PhaseBothFilled
		outcome.UpLeg = domain.LegResult{AssetID: opp.UpAssetID, Status: domain.StatusFilled, Price: opp.UpPrice, Size: size, Filled: true}
		outcome.DownLeg = domain.LegResult{AssetID: opp.DownAssetID, Status: domain.StatusFilled, Price: opp.DownPrice, Size: size, Filled: true}
		outcome.LockedProfit = (domain.PairPayout - opp.TotalCost) * size
		outcome.FinishedAt = e.now()
		return outcome, nil
	}

	required := size * opp.TotalCost
	balance, err := e.client.GetBalance(ctx)
	if err != nil {
		outcome.Phase = domain.PhaseFailed
		outcome.Err = err.Error()
		outcome.FinishedAt = e.now()
		return outcome, fmt.Errorf("executor: balance check: %w", err)
	}
	if required*e.cfg.BalanceSafety > balance {
		outcome.Phase = domain.PhaseFailed
		outcome.Err = fmt.Sprintf("need %.2f (with safety), have %.2f", required*e.cfg.BalanceSafety, balance)
		outcome.FinishedAt = e.now()
		return outcome, fmt.Errorf("executor: %w: need %.2f, have %.2f",
			domain.ErrInsufficientBalance, required*e.cfg.BalanceSafety, balance)
	}

	reqs := []domain.OrderRequest{
		{AssetID: opp.UpAssetID, Side: domain.SideBuy, Type: domain.OrderTypeGTC, Price: opp.UpPrice, Size: size},
		{AssetID: opp.DownAssetID, Side: domain.SideBuy, Type: domain.OrderTypeGTC, Price: opp.DownPrice, Size: size},
	}

	results, err := e.submit(ctx, reqs, log)
	if err != nil {
		outcome.Phase = domain.PhaseFailed
		outcome.Err = err.Error()
		outcome.FinishedAt = e.now()
		return outcome, err
	}

	outcome.Phase = domain.PhaseAwaitingFills
	legs := e.awaitLegs(ctx, reqs, results)
	outcome.UpLeg, outcome.DownLeg = legs[0], legs[1]

	switch {
	case legs[0].Filled && legs[1].Filled:
		outcome.Phase = domain.PhaseBothFilled
		outcome.LockedProfit = (domain.PairPayout - opp.TotalCost) * size
		log.Info("both legs filled",
			slog.Float64("locked_profit", outcome.LockedProfit))

	case legs[0].Filled != legs[1].Filled:
		outcome.Phase = domain.PhaseUnwinding
		filled, open := legs[0], legs[1]
		if legs[1].Filled {
			filled, open = legs[1], legs[0]
		}
		log.Warn("one leg filled, unwinding",
			slog.String("filled_asset", filled.AssetID),
			slog.String("open_status", string(open.Status)))
		e.unwind(ctx, filled, open, &outcome, log)

	default:
		outcome.Phase = domain.PhaseFailed
		outcome.Err = "no leg filled"
		e.cancelOpen(ctx, legs, log)
		log.Warn("no leg filled, attempt abandoned")
	}

	outcome.FinishedAt = e.now()
	return outcome, nil
}

// sizeFor bumps the opportunity size to clear the venue minimum notional on
// the cheaper leg. One whole extra share is enough because prices are < 1.
func (e *Engine) sizeFor(opp domain.Opportunity) float64 {
	size := opp.Size
	minPrice := math.Min(opp.UpPrice, opp.DownPrice)
	if minPrice > 0 {
		if minSize := math.Ceil(e.cfg.MinNotional / minPrice); minSize > size {
			size = minSize
		}
	}
	return size
}

// submit posts both legs as one batch, falling back to sequential posts
// when the batch endpoint fails. An invalid-signature rejection aborts
// immediately; it would recur on every retry.
func (e *Engine) submit(ctx context.Context, reqs []domain.OrderRequest, log *slog.Logger) ([]domain.SubmitResult, error) {
	results, err := e.client.PostOrders(ctx, reqs)
	if err == nil {
		return results, signatureRejection(results)
	}
	if errors.Is(err, domain.ErrInvalidSignature) {
		return nil, fmt.Errorf("executor: batch submit: %w", err)
	}
	log.Warn("batch submit failed, falling back to sequential",
		slog.String("error", err.Error()))

	results = make([]domain.SubmitResult, len(reqs))
	for i, req := range reqs {
		res, err := e.client.PostOrder(ctx, req)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidSignature) {
				return nil, fmt.Errorf("executor: sequential submit: %w", err)
			}
			res = domain.SubmitResult{ErrorMsg: err.Error()}
		}
		results[i] = res
	}
	return results, signatureRejection(results)
}

// signatureRejection surfaces a per-leg "invalid signature" buried in an
// otherwise successful submission response. The venue reports it on the
// individual result, not as a transport error.
func signatureRejection(results []domain.SubmitResult) error {
	for _, res := range results {
		if strings.Contains(strings.ToLower(res.ErrorMsg), "invalid signature") {
			return fmt.Errorf("executor: submit: %w", domain.ErrInvalidSignature)
		}
	}
	return nil
}

// awaitLegs polls both legs concurrently until each reaches a terminal
// state or the per-leg timeout elapses.
func (e *Engine) awaitLegs(ctx context.Context, reqs []domain.OrderRequest, results []domain.SubmitResult) [2]domain.LegResult {
	var legs [2]domain.LegResult
	g, gctx := errgroup.WithContext(ctx)

	for i := range legs {
		i := i
		legs[i] = domain.LegResult{
			AssetID: reqs[i].AssetID,
			OrderID: results[i].OrderID,
			Price:   reqs[i].Price,
			Size:    reqs[i].Size,
		}
		if !results[i].Success || results[i].OrderID == "" {
			legs[i].Status = domain.StatusRejected
			continue
		}
		g.Go(func() error {
			st := e.pollToTerminal(gctx, results[i].OrderID, reqs[i].Size)
			legs[i].Status = st.Status
			legs[i].Filled = st.FilledFor(reqs[i].Size)
			if st.SizeMatched > 0 {
				legs[i].Size = st.SizeMatched
			}
			return nil
		})
	}
	_ = g.Wait()
	return legs
}

// pollToTerminal polls one order until it is terminal, its matched size
// covers the requested size, or the timeout hits, in which case a synthetic
// timeout status is reported.
func (e *Engine) pollToTerminal(ctx context.Context, orderID string, requested float64) domain.OrderState {
	deadline := e.now().Add(e.cfg.PollTimeout)
	last := domain.OrderState{OrderID: orderID, Status: domain.StatusPending}

	for {
		st, err := e.client.GetOrder(ctx, orderID)
		if err == nil {
			last = st
			if domain.IsTerminal(st.Status) || st.FilledFor(requested) {
				return st
			}
		}

		if e.now().After(deadline) {
			last.Status = domain.StatusTimeout
			return last
		}
		select {
		case <-ctx.Done():
			last.Status = domain.StatusTimeout
			return last
		case <-time.After(e.cfg.PollInterval):
		}
	}
}

// unwind cancels the order that did not fill and sells the filled leg back:
// immediate-or-cancel at the best bid, with a resting GTC retry if the
// venue rejects the fast exit. When no bid exists the sell rests at the
// leg's own buy price.
func (e *Engine) unwind(ctx context.Context, filled, open domain.LegResult, outcome *domain.ExecutionOutcome, log *slog.Logger) {
	if open.OrderID != "" && !domain.IsTerminal(open.Status) {
		if err := e.client.CancelOrders(ctx, []string{open.OrderID}); err != nil {
			log.Warn("cancel of open leg failed", slog.String("error", err.Error()))
		}
	}

	sellPrice := filled.Price
	sellType := domain.OrderTypeGTC
	snap, err := e.client.GetOrderBook(ctx, filled.AssetID)
	if err != nil {
		log.Warn("unwind book fetch failed, resting at entry price",
			slog.String("error", err.Error()))
	} else if snap.BestBid > 0 {
		sellPrice = snap.BestBid
		sellType = domain.OrderTypeFAK
	} else {
		log.Warn("no bids for unwind, resting at entry price")
	}

	req := domain.OrderRequest{
		AssetID: filled.AssetID,
		Side:    domain.SideSell,
		Type:    sellType,
		Price:   sellPrice,
		Size:    filled.Size,
	}
	res, err := e.client.PostOrder(ctx, req)
	if err == nil && !res.Success && sellType == domain.OrderTypeFAK {
		// fast exit rejected; leave a resting order instead
		req.Type = domain.OrderTypeGTC
		res, err = e.client.PostOrder(ctx, req)
	}

	if err != nil {
		outcome.Err = "unwind sell failed: " + err.Error()
		log.Error("unwind sell failed", slog.String("error", err.Error()))
		return
	}
	if !res.Success {
		outcome.Err = "unwind sell rejected: " + res.ErrorMsg
		log.Error("unwind sell rejected", slog.String("error", res.ErrorMsg))
		return
	}

	outcome.UnwindPlaced = true
	st := e.pollToTerminal(ctx, res.OrderID, req.Size)
	outcome.UnwindFilled = st.FilledFor(req.Size)
	log.Info("unwind sell placed",
		slog.String("order_id", res.OrderID),
		slog.Float64("price", sellPrice),
		slog.Bool("filled", outcome.UnwindFilled))
}

// cancelOpen cancels every leg that still has a live order.
func (e *Engine) cancelOpen(ctx context.Context, legs [2]domain.LegResult, log *slog.Logger) {
	var ids []string
	for _, leg := range legs {
		if leg.OrderID != "" && !domain.IsTerminal(leg.Status) {
			ids = append(ids, leg.OrderID)
		}
	}
	if len(ids) == 0 {
		return
	}
	if err := e.client.CancelOrders(ctx, ids); err != nil {
		log.Warn("cancel of unfilled legs failed", slog.String("error", err.Error()))
	}
}
