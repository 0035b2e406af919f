// Package notify delivers trading events to operator channels (Telegram,
// Discord). Events are formatted into short human-readable alerts and can
// be filtered by event type so operators receive only what they care about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier formats domain events and dispatches them to one or more
// Senders. It maintains a set of allowed event types; events outside the
// set are dropped. An empty set allows everything.
type Notifier struct {
	senders []Sender
	events  map[domain.EventType]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that delivers to the given senders. Only
// events whose type appears in the events slice are forwarded; an empty
// slice allows all types.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[domain.EventType]bool, len(events))
	for _, e := range events {
		allowed[domain.EventType(strings.TrimSpace(e))] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify formats ev and sends it to all senders, subject to the event
// filter. Sender failures never propagate to the trading path; they are
// logged and collected into the returned error.
func (n *Notifier) Notify(ctx context.Context, ev domain.Event) error {
	if len(n.events) > 0 && !n.events[ev.Type] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", string(ev.Type)),
		)
		return nil
	}

	title, message := formatEvent(ev)
	return n.dispatch(ctx, title, message)
}

// Publish satisfies the session's event sink interface.
func (n *Notifier) Publish(ctx context.Context, ev domain.Event) error {
	return n.Notify(ctx, ev)
}

// formatEvent renders an event into an alert title and body.
func formatEvent(ev domain.Event) (title, message string) {
	switch ev.Type {
	case domain.EventOpportunityFound:
		opp, ok := ev.Payload.(domain.Opportunity)
		if !ok {
			break
		}
		title = "Opportunity"
		message = fmt.Sprintf(
			"%s\nup %.3f + down %.3f = %.3f\nsize %.0f, expected profit $%.2f",
			ev.Slug, opp.UpPrice, opp.DownPrice, opp.TotalCost, opp.Size, opp.ExpectedProfit)

	case domain.EventTradeExecuted:
		out, ok := ev.Payload.(domain.ExecutionOutcome)
		if !ok {
			break
		}
		title = "Trade executed"
		message = fmt.Sprintf(
			"%s\nboth legs filled at %.3f + %.3f, size %.0f\nlocked profit $%.2f",
			ev.Slug, out.UpLeg.Price, out.DownLeg.Price, out.Size, out.LockedProfit)

	case domain.EventTradeFailed:
		out, ok := ev.Payload.(domain.ExecutionOutcome)
		if !ok {
			break
		}
		title = "Trade failed"
		detail := out.Err
		if detail == "" {
			detail = string(out.Phase)
		}
		message = fmt.Sprintf(
			"%s\nup: %s, down: %s\nunwind placed: %v, filled: %v\n%s",
			ev.Slug, out.UpLeg.Status, out.DownLeg.Status,
			out.UnwindPlaced, out.UnwindFilled, detail)

	case domain.EventMarketRollover:
		w, ok := ev.Payload.(domain.MarketWindow)
		if !ok {
			break
		}
		title = "New window"
		message = fmt.Sprintf("%s\nsettles %s", w.Slug, w.WindowEnd.UTC().Format("15:04:05"))

	case domain.EventSessionSummary:
		sum, ok := ev.Payload.(domain.SessionSummary)
		if !ok {
			break
		}
		title = "Session summary"
		message = fmt.Sprintf(
			"windows %d, opportunities %d\nattempts %d (ok %d, failed %d, unwinds %d)\nlocked profit $%.2f",
			sum.WindowsTraded, sum.Opportunities,
			sum.Attempts, sum.Successes, sum.Failures, sum.Unwinds,
			sum.LockedProfit)
	}

	if title == "" {
		title = string(ev.Type)
		message = ev.Slug
	}
	return title, message
}

// dispatch iterates over all senders and sends the notification. Errors
// from individual senders are collected; one failure does not prevent
// delivery to the remaining senders.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		} else {
			n.logger.DebugContext(ctx, "notification sent",
				slog.String("sender", s.Name()),
				slog.String("title", title),
			)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
