// Package model defines the domain types used across the application.
package model

import (
	"strings"
	"time"
)

// TargetKind distinguishes the two ways a watch can address the marketplace.
type TargetKind string

// Supported target kinds.
const (
	TargetItem    TargetKind = "item"    // direct reference (canonical item code or URL)
	TargetKeyword TargetKind = "keyword" // free-text search term
)

// Target identifies what a watch monitors. Exactly one Value is
// authoritative for the watch; ExcludeTerms only applies to keyword targets.
type Target struct {
	Kind         TargetKind
	Value        string
	ExcludeTerms []string
}

// WatchStatus is the lifecycle state of a watch.
type WatchStatus string

// Watch lifecycle states. All states other than monitoring are terminal:
// a watch never leaves completed, expired, or disabled.
const (
	StatusMonitoring WatchStatus = "monitoring"
	StatusCompleted  WatchStatus = "completed"
	StatusExpired    WatchStatus = "expired"
	StatusDisabled   WatchStatus = "disabled"
)

// Terminal reports whether the status admits no further transitions.
func (s WatchStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusExpired || s == StatusDisabled
}

// Watch represents one monitored marketplace item or search term.
type Watch struct {
	ID                   int64
	Name                 string
	Target               Target
	LastKnownPrice       int64
	PriceCeiling         int64
	CheckIntervalMinutes int
	ExpiresAt            *time.Time
	Status               WatchStatus
	LastCheckedAt        *time.Time
	NextDueAt            *time.Time
	CreatedAt            time.Time
}

// Expired reports whether the watch's expiry instant has passed.
// Watches without an expiry never expire.
func (w *Watch) Expired(now time.Time) bool {
	return w.ExpiresAt != nil && !now.Before(*w.ExpiresAt)
}

// AvailabilityResult is the normalized outcome of one catalog probe.
// It lives for a single check cycle and is never persisted.
type AvailabilityResult struct {
	Found         bool
	Title         string
	Price         int64
	CanonicalRef  string
	GroupKey      string
	SourceSnippet string
}

// CartGroup is a snapshot of one shop's cart, mirrored from the external
// cart service. It is read immediately before each threshold evaluation
// and never trusted across ticks.
type CartGroup struct {
	GroupKey   string
	ItemCount  int
	TotalValue int64
}

// GroupPolicy is the threshold policy for one shop group. A zero MinValue
// disables the below-minimum advisory for the group.
type GroupPolicy struct {
	GroupKey  string
	MinValue  int64
	MaxValue  int64
	MaxItems  int
	Enabled   bool
	UpdatedAt time.Time
}

// ViolationKind classifies a threshold violation.
type ViolationKind string

// Violation kinds. Only above_max and too_many_items block an addition;
// below_min is advisory.
const (
	ViolationBelowMin     ViolationKind = "below_min"
	ViolationAboveMax     ViolationKind = "above_max"
	ViolationTooManyItems ViolationKind = "too_many_items"
)

// Blocking reports whether the kind denies an addition absent an override.
func (k ViolationKind) Blocking() bool {
	return k == ViolationAboveMax || k == ViolationTooManyItems
}

// ThresholdViolation describes one exceeded (or undershot) policy bound.
// For too_many_items the value fields carry item counts rather than
// currency units.
type ThresholdViolation struct {
	GroupKey       string
	Kind           ViolationKind
	CurrentValue   int64
	Delta          int64
	ResultingValue int64
	Limit          int64
}

// PurchaseLogEntry is the append-only audit record of a confirmed cart add.
type PurchaseLogEntry struct {
	ID        int64
	WatchID   int64
	ItemName  string
	Price     int64
	GroupKey  string
	OrderRef  string
	CreatedAt time.Time
}

// JoinTerms flattens exclusion terms for storage. Terms are
// whitespace-delimited, so individual terms must not contain spaces.
func JoinTerms(terms []string) string {
	return strings.Join(terms, " ")
}

// SplitTerms parses a stored exclusion term list.
func SplitTerms(s string) []string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil
	}
	return fields
}
