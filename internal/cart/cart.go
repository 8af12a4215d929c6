// Package cart talks to the external cart service and enforces
// per-group threshold policies on proposed additions.
package cart

import (
	"context"

	"restock_bot/internal/model"
)

// Reader reads the current state of a cart group from the external
// cart service.
type Reader interface {
	Snapshot(ctx context.Context, groupKey string) (model.CartGroup, error)
}

// AddRequest describes one item to add to a cart group. IdempotencyKey
// is stable per watch/item pair so a timed-out add retried on a later
// cycle does not double-charge.
type AddRequest struct {
	Ref            string
	GroupKey       string
	IdempotencyKey string
}

// Service is the full cart service surface: group reads plus additions.
type Service interface {
	Reader
	Add(ctx context.Context, req AddRequest) (orderRef string, err error)
}
