// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"time"

	"restock_bot/internal/model"
)

// Storage is the interface for all persistence operations.
//
// Watch mutations hold the single-writer invariant: only the monitor loop
// and the commit pipeline change monitoring watches, and no method moves a
// watch out of a terminal status.
type Storage interface {
	CreateWatch(ctx context.Context, w *model.Watch) error
	GetWatch(ctx context.Context, id int64) (*model.Watch, error)
	ListWatches(ctx context.Context) ([]model.Watch, error)
	// ListActiveWatches returns monitoring watches only; terminal watches
	// are excluded regardless of their timestamps.
	ListActiveWatches(ctx context.Context) ([]model.Watch, error)
	UpdateWatch(ctx context.Context, w *model.Watch) error
	// UpdateWatchCheck persists the check timestamps in one statement.
	UpdateWatchCheck(ctx context.Context, id int64, lastChecked, nextDue time.Time) error
	// ClearWatchCheck resets the check timestamps, making the watch
	// immediately due.
	ClearWatchCheck(ctx context.Context, id int64) error
	UpdateWatchPrice(ctx context.Context, id int64, price int64) error
	// UpdateWatchStatus transitions a monitoring watch to the given status.
	// It fails when the watch does not exist or is already terminal.
	UpdateWatchStatus(ctx context.Context, id int64, status model.WatchStatus) error
	// CompleteWatch transitions the watch to completed and appends the
	// purchase log entry in a single transaction.
	CompleteWatch(ctx context.Context, id int64, entry *model.PurchaseLogEntry) error

	ListPurchaseLog(ctx context.Context, limit int) ([]model.PurchaseLogEntry, error)

	// GetGroupPolicy returns the stored policy override for a group, or
	// (nil, nil) when the group has none.
	GetGroupPolicy(ctx context.Context, groupKey string) (*model.GroupPolicy, error)
	SetGroupPolicy(ctx context.Context, p *model.GroupPolicy) error
	ListGroupPolicies(ctx context.Context) ([]model.GroupPolicy, error)

	Close() error
}
