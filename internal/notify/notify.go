// Package notify delivers monitoring events to external channels.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"restock_bot/internal/model"
)

// EventType classifies a notification event.
type EventType string

// Event types emitted by the monitor.
const (
	EventRestockPurchased EventType = "restock_purchased"
	EventThresholdDenied  EventType = "threshold_denied"
)

// Event carries the details of one notification-worthy outcome.
// Violations are only set on threshold_denied events; Advisories may
// accompany either type.
type Event struct {
	Type       EventType
	WatchID    int64
	WatchName  string
	ItemName   string
	Price      int64
	GroupKey   string
	OrderRef   string
	Violations []model.ThresholdViolation
	Advisories []model.ThresholdViolation
	Timestamp  time.Time
}

// Notifier delivers events to one channel. A delivery failure is the
// channel's problem to report; it never affects watch state.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Fanout delivers each event to every registered notifier. Failures
// are logged and swallowed so one broken channel cannot block the rest
// or the calling pipeline.
type Fanout struct {
	notifiers []Notifier
	logger    *slog.Logger
}

// NewFanout creates a Fanout over the given notifiers.
func NewFanout(logger *slog.Logger, notifiers ...Notifier) *Fanout {
	return &Fanout{notifiers: notifiers, logger: logger}
}

// Notify delivers ev to all channels. It always returns nil.
func (f *Fanout) Notify(ctx context.Context, ev Event) error {
	for _, n := range f.notifiers {
		if err := n.Notify(ctx, ev); err != nil {
			f.logger.Error("notify", "type", string(ev.Type), "watch_id", ev.WatchID, "error", err)
		}
	}
	return nil
}

// LogNotifier writes events to the structured log. It is always wired
// so every outcome is visible even without Telegram configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the event.
func (l *LogNotifier) Notify(_ context.Context, ev Event) error {
	attrs := []any{
		"watch_id", ev.WatchID,
		"watch_name", ev.WatchName,
		"item", ev.ItemName,
		"price", ev.Price,
		"group", ev.GroupKey,
	}
	switch ev.Type {
	case EventRestockPurchased:
		attrs = append(attrs, "order_ref", ev.OrderRef)
		l.logger.Info("restock purchased", attrs...)
	case EventThresholdDenied:
		for _, v := range ev.Violations {
			attrs = append(attrs, string(v.Kind), fmt.Sprintf("%d>%d", v.ResultingValue, v.Limit))
		}
		l.logger.Warn("threshold denied", attrs...)
	default:
		l.logger.Info(string(ev.Type), attrs...)
	}
	return nil
}

// FormatEvent renders an event as a plain-text message for outbound
// channels.
func FormatEvent(ev Event) string {
	var b strings.Builder
	switch ev.Type {
	case EventRestockPurchased:
		fmt.Fprintf(&b, "Restocked and carted: %s\n", ev.ItemName)
	case EventThresholdDenied:
		fmt.Fprintf(&b, "Restock found but cart thresholds deny it: %s\n", ev.ItemName)
	default:
		fmt.Fprintf(&b, "[%s] %s\n", ev.Type, ev.ItemName)
	}

	fmt.Fprintf(&b, "Price: %d\n", ev.Price)
	fmt.Fprintf(&b, "Shop: %s\n", ev.GroupKey)
	if ev.OrderRef != "" {
		fmt.Fprintf(&b, "Order: %s\n", ev.OrderRef)
	}
	fmt.Fprintf(&b, "Watch: #%d %s", ev.WatchID, ev.WatchName)

	if len(ev.Violations) > 0 {
		b.WriteString("\n\nViolations:")
		for _, v := range ev.Violations {
			fmt.Fprintf(&b, "\n  %s: resulting %d over limit %d", v.Kind, v.ResultingValue, v.Limit)
		}
	}
	if len(ev.Advisories) > 0 {
		b.WriteString("\n\nNotes:")
		for _, v := range ev.Advisories {
			if v.Kind == model.ViolationBelowMin {
				fmt.Fprintf(&b, "\n  cart stays under group minimum %d (at %d)", v.Limit, v.ResultingValue)
				continue
			}
			fmt.Fprintf(&b, "\n  %s overridden: resulting %d over limit %d", v.Kind, v.ResultingValue, v.Limit)
		}
	}
	return b.String()
}
