// Package notify fans alerts about detected opportunities out to chat
// channels (Telegram, Discord), filtered by event type.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/chainarb/internal/domain"
)

// Event types understood by the notifier.
const (
	EventOpportunityDetected = "opportunity_detected"
	EventError               = "error"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches notifications to every Sender whose event type is
// enabled. An empty event list enables everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier for the given senders and event filter.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether event passes the filter and at least one sender is
// configured.
func (n *Notifier) Enabled(event string) bool {
	if len(n.senders) == 0 {
		return false
	}
	return len(n.events) == 0 || n.events[event]
}

// Notify sends title and message to all senders if event is enabled.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Enabled(event) {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// NotifyOpportunity announces a detected opportunity.
func (n *Notifier) NotifyOpportunity(ctx context.Context, opp domain.Opportunity) error {
	return n.Notify(ctx, EventOpportunityDetected, "Arbitrage opportunity", FormatOpportunity(opp))
}

// FormatOpportunity renders an opportunity as a short plain-text message.
func FormatOpportunity(opp domain.Opportunity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Asset: %s\n", opp.AssetID)
	fmt.Fprintf(&b, "Buy on %s at %.6f\n", opp.BuyVenue, opp.BuyPrice)
	fmt.Fprintf(&b, "Sell on %s at %.6f\n", opp.SellVenue, opp.SellPrice)
	fmt.Fprintf(&b, "Spread: %.4f%%\n", opp.PriceDifference)
	fmt.Fprintf(&b, "Net profit: %.2f (cost %.2f)\n", opp.NetProfit, opp.ExecutionCost)
	fmt.Fprintf(&b, "Confidence: %.2f", opp.ConfidenceScore)
	return b.String()
}

// dispatch delivers to every sender. One failing sender does not stop the
// others; all failures are joined into the returned error.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("notify: %s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	return errors.Join(errs...)
}
