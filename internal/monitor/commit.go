package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"restock_bot/internal/cart"
	"restock_bot/internal/model"
	"restock_bot/internal/notify"
	"restock_bot/internal/storage"
)

// Outcome classifies the result of one commit attempt.
type Outcome string

// Commit outcomes. Only failed represents an actual error; the others
// are normal pipeline results.
const (
	OutcomePurchased Outcome = "purchased"
	OutcomePriceMiss Outcome = "price_miss"
	OutcomeDenied    Outcome = "denied"
	OutcomeFailed    Outcome = "failed"
)

// Result is the outcome of pushing one availability hit through the
// commit pipeline. Err is set only for OutcomeFailed.
type Result struct {
	Outcome    Outcome
	OrderRef   string
	Violations []model.ThresholdViolation
	Advisories []model.ThresholdViolation
	Err        error
}

// Committer turns an in-stock sighting into a completed purchase:
// price gate, threshold evaluation, cart add, watch transition,
// notification. Watch state only ever changes after the cart add is
// confirmed.
type Committer struct {
	store    storage.Storage
	ledger   *cart.Ledger
	carts    cart.Service
	notifier notify.Notifier
	logger   *slog.Logger
}

// NewCommitter creates a Committer.
func NewCommitter(store storage.Storage, ledger *cart.Ledger, carts cart.Service, notifier notify.Notifier, logger *slog.Logger) *Committer {
	return &Committer{
		store:    store,
		ledger:   ledger,
		carts:    carts,
		notifier: notifier,
		logger:   logger,
	}
}

var idempotencyNS = uuid.MustParse("8a9c34de-7f02-4f1b-b3c8-11d2a05e6f40")

// IdempotencyKey is stable for a watch/item pair, so an add that timed
// out after succeeding server-side is retried on a later cycle with the
// same key and cannot double-charge.
func IdempotencyKey(watchID int64, ref string) string {
	return uuid.NewSHA1(idempotencyNS, []byte(fmt.Sprintf("%d|%s", watchID, ref))).String()
}

// Commit runs the pipeline for one availability hit. override demotes
// blocking threshold violations and must only be set on an explicit
// caller request.
//
// On any failure after evaluation the watch stays monitoring and the
// same commit is retried on its next due cycle.
func (c *Committer) Commit(ctx context.Context, w *model.Watch, avail model.AvailabilityResult, override bool) Result {
	if !PriceOK(*w, avail.Price) {
		return Result{Outcome: OutcomePriceMiss}
	}

	decision, err := c.ledger.Evaluate(ctx, cart.Addition{
		GroupKey: avail.GroupKey,
		Value:    avail.Price,
		Items:    1,
	}, override)
	if err != nil {
		return Result{Outcome: OutcomeFailed, Err: fmt.Errorf("evaluate thresholds: %w", err)}
	}
	if !decision.Admitted {
		c.emit(ctx, notify.Event{
			Type:       notify.EventThresholdDenied,
			WatchID:    w.ID,
			WatchName:  w.Name,
			ItemName:   avail.Title,
			Price:      avail.Price,
			GroupKey:   avail.GroupKey,
			Violations: decision.Violations,
			Advisories: decision.Advisories,
			Timestamp:  time.Now().UTC(),
		})
		return Result{Outcome: OutcomeDenied, Violations: decision.Violations, Advisories: decision.Advisories}
	}

	orderRef, err := c.carts.Add(ctx, cart.AddRequest{
		Ref:            avail.CanonicalRef,
		GroupKey:       avail.GroupKey,
		IdempotencyKey: IdempotencyKey(w.ID, avail.CanonicalRef),
	})
	if err != nil {
		return Result{Outcome: OutcomeFailed, Err: fmt.Errorf("cart add: %w", err)}
	}

	entry := model.PurchaseLogEntry{
		WatchID:  w.ID,
		ItemName: avail.Title,
		Price:    avail.Price,
		GroupKey: avail.GroupKey,
		OrderRef: orderRef,
	}
	if err := c.store.CompleteWatch(ctx, w.ID, &entry); err != nil {
		// The add is confirmed but the transition failed. The watch
		// stays monitoring; the idempotency key makes the retry safe.
		return Result{Outcome: OutcomeFailed, Err: fmt.Errorf("complete watch: %w", err)}
	}
	w.Status = model.StatusCompleted

	c.emit(ctx, notify.Event{
		Type:       notify.EventRestockPurchased,
		WatchID:    w.ID,
		WatchName:  w.Name,
		ItemName:   avail.Title,
		Price:      avail.Price,
		GroupKey:   avail.GroupKey,
		OrderRef:   orderRef,
		Advisories: decision.Advisories,
		Timestamp:  time.Now().UTC(),
	})
	return Result{Outcome: OutcomePurchased, OrderRef: orderRef, Advisories: decision.Advisories}
}

// emit delivers a notification. Delivery failure never rolls back the
// commit; it is logged and forgotten.
func (c *Committer) emit(ctx context.Context, ev notify.Event) {
	if err := c.notifier.Notify(ctx, ev); err != nil {
		c.logger.Error("notify", "type", string(ev.Type), "watch_id", ev.WatchID, "error", err)
	}
}
