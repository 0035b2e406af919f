package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// Journal persists execution outcomes and session summaries. It implements
// the session's event sink interface; events other than trade results and
// summaries pass through without a write.
type Journal struct {
	client *Client
}

// NewJournal creates a Journal backed by the given Client.
func NewJournal(c *Client) *Journal {
	return &Journal{client: c}
}

// Publish routes an event to the matching table.
func (j *Journal) Publish(ctx context.Context, ev domain.Event) error {
	switch ev.Type {
	case domain.EventTradeExecuted, domain.EventTradeFailed:
		out, ok := ev.Payload.(domain.ExecutionOutcome)
		if !ok {
			return fmt.Errorf("postgres: journal: unexpected payload %T for %s", ev.Payload, ev.Type)
		}
		return j.insertAttempt(ctx, out)
	case domain.EventSessionSummary:
		sum, ok := ev.Payload.(domain.SessionSummary)
		if !ok {
			return fmt.Errorf("postgres: journal: unexpected payload %T for %s", ev.Payload, ev.Type)
		}
		return j.insertSummary(ctx, sum)
	default:
		return nil
	}
}

func (j *Journal) insertAttempt(ctx context.Context, out domain.ExecutionOutcome) error {
	const query = `
		INSERT INTO trade_attempts (
			market_slug, window_end, phase,
			up_asset_id, down_asset_id,
			up_price, down_price, total_cost, profit_per_share, size,
			up_order_id, up_status, up_filled,
			down_order_id, down_status, down_filled,
			locked_profit, unwind_placed, unwind_filled,
			error, started_at, finished_at
		) VALUES (
			$1, $2, $3,
			$4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13,
			$14, $15, $16,
			$17, $18, $19,
			$20, $21, $22
		)`

	opp := out.Opportunity
	_, err := j.client.Pool().Exec(ctx, query,
		opp.MarketSlug, opp.WindowEnd, string(out.Phase),
		opp.UpAssetID, opp.DownAssetID,
		opp.UpPrice, opp.DownPrice, opp.TotalCost, opp.ProfitPerShare, out.Size,
		out.UpLeg.OrderID, string(out.UpLeg.Status), out.UpLeg.Filled,
		out.DownLeg.OrderID, string(out.DownLeg.Status), out.DownLeg.Filled,
		out.LockedProfit, out.UnwindPlaced, out.UnwindFilled,
		out.Err, out.StartedAt, out.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade attempt %s: %w", opp.MarketSlug, err)
	}
	return nil
}

func (j *Journal) insertSummary(ctx context.Context, sum domain.SessionSummary) error {
	const query = `
		INSERT INTO session_summaries (
			started_at, windows_traded, opportunities,
			attempts, successes, failures, unwinds,
			total_spent, total_locked_value, locked_profit
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := j.client.Pool().Exec(ctx, query,
		sum.StartedAt, sum.WindowsTraded, sum.Opportunities,
		sum.Attempts, sum.Successes, sum.Failures, sum.Unwinds,
		sum.TotalSpent, sum.TotalLockedValue, sum.LockedProfit,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert session summary: %w", err)
	}
	return nil
}

// AttemptRecord is one journaled execution attempt as read back for the
// dashboard.
type AttemptRecord struct {
	ID           int64     `json:"id"`
	MarketSlug   string    `json:"market_slug"`
	WindowEnd    time.Time `json:"window_end"`
	Phase        string    `json:"phase"`
	UpPrice      float64   `json:"up_price"`
	DownPrice    float64   `json:"down_price"`
	TotalCost    float64   `json:"total_cost"`
	Size         float64   `json:"size"`
	LockedProfit float64   `json:"locked_profit"`
	UnwindPlaced bool      `json:"unwind_placed"`
	UnwindFilled bool      `json:"unwind_filled"`
	Error        *string   `json:"error,omitempty"`
	FinishedAt   time.Time `json:"finished_at"`
}

// RecentAttempts returns the most recent execution attempts, newest first.
func (j *Journal) RecentAttempts(ctx context.Context, limit int) ([]AttemptRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	const query = `
		SELECT id, market_slug, window_end, phase,
			up_price, down_price, total_cost, size,
			locked_profit, unwind_placed, unwind_filled,
			error, finished_at
		FROM trade_attempts
		ORDER BY finished_at DESC
		LIMIT $1`

	rows, err := j.client.Pool().Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trade attempts: %w", err)
	}
	defer rows.Close()

	return scanAttemptRows(rows)
}

func scanAttemptRows(rows pgx.Rows) ([]AttemptRecord, error) {
	var records []AttemptRecord
	for rows.Next() {
		var r AttemptRecord
		if err := rows.Scan(
			&r.ID, &r.MarketSlug, &r.WindowEnd, &r.Phase,
			&r.UpPrice, &r.DownPrice, &r.TotalCost, &r.Size,
			&r.LockedProfit, &r.UnwindPlaced, &r.UnwindFilled,
			&r.Error, &r.FinishedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
