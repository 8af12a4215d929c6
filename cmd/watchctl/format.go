package main

import (
	"fmt"
	"strings"

	"restock_bot/internal/model"
)

const displayTime = "2006-01-02 15:04 UTC"

// formatWatchLine renders one watch as a single list row.
func formatWatchLine(w model.Watch) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s [%s] %s %q ceiling %d every %dm",
		w.ID, w.Name, w.Status, w.Target.Kind, w.Target.Value,
		w.PriceCeiling, w.CheckIntervalMinutes)
	if w.LastKnownPrice > 0 {
		fmt.Fprintf(&b, " last seen %d", w.LastKnownPrice)
	}
	return b.String()
}

// formatWatch renders the full detail view of a watch.
func formatWatch(w model.Watch) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s [%s]\n", w.ID, w.Name, w.Status)
	fmt.Fprintf(&b, "Target: %s %q\n", w.Target.Kind, w.Target.Value)
	if len(w.Target.ExcludeTerms) > 0 {
		fmt.Fprintf(&b, "Exclude: %s\n", strings.Join(w.Target.ExcludeTerms, ", "))
	}
	fmt.Fprintf(&b, "Ceiling: %d\n", w.PriceCeiling)
	if w.LastKnownPrice > 0 {
		fmt.Fprintf(&b, "Last known price: %d\n", w.LastKnownPrice)
	}
	fmt.Fprintf(&b, "Interval: every %d min\n", w.CheckIntervalMinutes)
	if w.ExpiresAt != nil {
		fmt.Fprintf(&b, "Expires: %s\n", w.ExpiresAt.Format(displayTime))
	}
	if w.LastCheckedAt != nil {
		fmt.Fprintf(&b, "Last check: %s\n", w.LastCheckedAt.Format(displayTime))
	}
	if w.NextDueAt != nil {
		fmt.Fprintf(&b, "Next due: %s\n", w.NextDueAt.Format(displayTime))
	}
	fmt.Fprintf(&b, "Created: %s\n", w.CreatedAt.Format(displayTime))
	return b.String()
}

// formatPolicyLine renders one stored group policy.
func formatPolicyLine(p model.GroupPolicy) string {
	state := "enabled"
	if !p.Enabled {
		state = "disabled"
	}
	return fmt.Sprintf("%s: min %d, max %d, items %d [%s]",
		p.GroupKey, p.MinValue, p.MaxValue, p.MaxItems, state)
}

// formatPolicyDefaults renders the configured global defaults.
func formatPolicyDefaults(p model.GroupPolicy) string {
	state := "enabled"
	if !p.Enabled {
		state = "disabled"
	}
	return fmt.Sprintf("defaults: min %d, max %d, items %d [%s]",
		p.MinValue, p.MaxValue, p.MaxItems, state)
}

// formatLogEntry renders one purchase log row.
func formatLogEntry(e model.PurchaseLogEntry) string {
	return fmt.Sprintf("%s  watch #%d  %s  %d  %s  %s",
		e.CreatedAt.Format(displayTime), e.WatchID, e.ItemName, e.Price, e.GroupKey, e.OrderRef)
}
