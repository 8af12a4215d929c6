package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"restock_bot/internal/cart"
	"restock_bot/internal/model"
	"restock_bot/internal/notify"
	"restock_bot/internal/storage"
)

// --- fakes ---

type fakeCart struct {
	mu        sync.Mutex
	groups    map[string]model.CartGroup
	snapErr   error
	addErr    error
	orderRef  string
	adds      []cart.AddRequest
	snapshots int
}

func (f *fakeCart) Snapshot(_ context.Context, groupKey string) (model.CartGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots++
	if f.snapErr != nil {
		return model.CartGroup{}, f.snapErr
	}
	g, ok := f.groups[groupKey]
	if !ok {
		return model.CartGroup{GroupKey: groupKey}, nil
	}
	return g, nil
}

func (f *fakeCart) Add(_ context.Context, req cart.AddRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return "", f.addErr
	}
	f.adds = append(f.adds, req)
	if f.orderRef != "" {
		return f.orderRef, nil
	}
	return "order-test", nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (r *recordingNotifier) Notify(_ context.Context, ev notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingNotifier) all() []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Event(nil), r.events...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *storage.SQLite {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var testPolicy = model.GroupPolicy{MaxValue: 50000, MaxItems: 20, Enabled: true}

func newTestCommitter(t *testing.T, store storage.Storage, carts *fakeCart, notifier notify.Notifier) *Committer {
	t.Helper()
	logger := discardLogger()
	ledger := cart.NewLedger(carts, store, testPolicy, logger)
	return NewCommitter(store, ledger, carts, notifier, logger)
}

func createWatch(t *testing.T, store storage.Storage, w model.Watch) model.Watch {
	t.Helper()
	if err := store.CreateWatch(context.Background(), &w); err != nil {
		t.Fatalf("create watch: %v", err)
	}
	return w
}

// --- tests ---

func TestCommitPurchased(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	carts := &fakeCart{orderRef: "order-4711"}
	notifier := &recordingNotifier{}
	c := newTestCommitter(t, store, carts, notifier)

	w := createWatch(t, store, model.Watch{
		Name:                 "Rare Figure",
		Target:               model.Target{Kind: model.TargetItem, Value: "itemCode=100003"},
		PriceCeiling:         2000,
		CheckIntervalMinutes: 30,
	})
	avail := model.AvailabilityResult{
		Found:        true,
		Title:        "Rare Figure Limited Edition",
		Price:        1500,
		CanonicalRef: "itemCode=100003",
		GroupKey:     "Shop Nakano",
	}

	res := c.Commit(ctx, &w, avail, false)
	if res.Outcome != OutcomePurchased {
		t.Fatalf("outcome = %s, want purchased (err: %v)", res.Outcome, res.Err)
	}
	if res.OrderRef != "order-4711" {
		t.Errorf("order ref = %s, want order-4711", res.OrderRef)
	}
	if w.Status != model.StatusCompleted {
		t.Errorf("in-memory status = %s, want completed", w.Status)
	}

	got, err := store.GetWatch(ctx, w.ID)
	if err != nil {
		t.Fatalf("get watch: %v", err)
	}
	if got.Status != model.StatusCompleted {
		t.Errorf("stored status = %s, want completed", got.Status)
	}

	entries, err := store.ListPurchaseLog(ctx, 0)
	if err != nil {
		t.Fatalf("list log: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	if entries[0].ItemName != avail.Title || entries[0].Price != 1500 || entries[0].OrderRef != "order-4711" {
		t.Errorf("log entry = %+v", entries[0])
	}

	wantAdd := cart.AddRequest{
		Ref:            "itemCode=100003",
		GroupKey:       "Shop Nakano",
		IdempotencyKey: IdempotencyKey(w.ID, "itemCode=100003"),
	}
	if len(carts.adds) != 1 {
		t.Fatalf("expected 1 cart add, got %d", len(carts.adds))
	}
	if diff := cmp.Diff(wantAdd, carts.adds[0]); diff != "" {
		t.Errorf("add request mismatch (-want +got):\n%s", diff)
	}

	events := notifier.all()
	if len(events) != 1 || events[0].Type != notify.EventRestockPurchased {
		t.Fatalf("expected one purchase event, got %v", events)
	}
	if events[0].OrderRef != "order-4711" || events[0].GroupKey != "Shop Nakano" {
		t.Errorf("event = %+v", events[0])
	}
}

func TestCommitPriceMiss(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	carts := &fakeCart{}
	notifier := &recordingNotifier{}
	c := newTestCommitter(t, store, carts, notifier)

	w := createWatch(t, store, model.Watch{
		Name:                 "W",
		Target:               model.Target{Kind: model.TargetKeyword, Value: "rare book"},
		PriceCeiling:         1500,
		CheckIntervalMinutes: 30,
	})
	avail := model.AvailabilityResult{Found: true, Title: "Rare Book", Price: 1600, CanonicalRef: "r", GroupKey: "shopA"}

	res := c.Commit(ctx, &w, avail, false)
	if res.Outcome != OutcomePriceMiss {
		t.Fatalf("outcome = %s, want price_miss", res.Outcome)
	}

	// Above the ceiling nothing downstream may run: no resync, no add,
	// no notification, watch untouched.
	if carts.snapshots != 0 || len(carts.adds) != 0 {
		t.Errorf("cart touched on price miss: snapshots=%d adds=%d", carts.snapshots, len(carts.adds))
	}
	if len(notifier.all()) != 0 {
		t.Error("notification emitted on price miss")
	}
	got, _ := store.GetWatch(ctx, w.ID)
	if got.Status != model.StatusMonitoring {
		t.Errorf("status = %s, want monitoring", got.Status)
	}
}

func TestCommitUnknownPriceMiss(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	carts := &fakeCart{}
	c := newTestCommitter(t, store, carts, &recordingNotifier{})

	w := createWatch(t, store, model.Watch{
		Name:                 "W",
		Target:               model.Target{Kind: model.TargetItem, Value: "itemCode=1"},
		PriceCeiling:         5000,
		CheckIntervalMinutes: 30,
	})
	avail := model.AvailabilityResult{Found: true, Title: "Listed without price", CanonicalRef: "itemCode=1", GroupKey: "shopA"}

	res := c.Commit(ctx, &w, avail, false)
	if res.Outcome != OutcomePriceMiss {
		t.Fatalf("outcome = %s, want price_miss for unverifiable price", res.Outcome)
	}
	if len(carts.adds) != 0 {
		t.Error("carted an item with no parsed price")
	}
}

func TestCommitDenied(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	carts := &fakeCart{groups: map[string]model.CartGroup{
		"shopA": {GroupKey: "shopA", ItemCount: 18, TotalValue: 45000},
	}}
	notifier := &recordingNotifier{}
	c := newTestCommitter(t, store, carts, notifier)

	w := createWatch(t, store, model.Watch{
		Name:                 "W",
		Target:               model.Target{Kind: model.TargetItem, Value: "itemCode=9"},
		PriceCeiling:         10000,
		CheckIntervalMinutes: 30,
	})
	avail := model.AvailabilityResult{Found: true, Title: "Big Item", Price: 8000, CanonicalRef: "itemCode=9", GroupKey: "shopA"}

	res := c.Commit(ctx, &w, avail, false)
	if res.Outcome != OutcomeDenied {
		t.Fatalf("outcome = %s, want denied", res.Outcome)
	}
	if len(res.Violations) != 1 || res.Violations[0].Kind != model.ViolationAboveMax {
		t.Fatalf("violations = %v, want one above_max", res.Violations)
	}
	if len(carts.adds) != 0 {
		t.Error("cart add attempted on denial")
	}
	got, _ := store.GetWatch(ctx, w.ID)
	if got.Status != model.StatusMonitoring {
		t.Errorf("status = %s, want monitoring", got.Status)
	}

	events := notifier.all()
	if len(events) != 1 || events[0].Type != notify.EventThresholdDenied {
		t.Fatalf("expected one denial event, got %v", events)
	}
	if len(events[0].Violations) != 1 {
		t.Errorf("denial event missing violations: %+v", events[0])
	}
}

func TestCommitCartFailureLeavesWatchUntouched(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	carts := &fakeCart{addErr: errors.New("cart service 502")}
	notifier := &recordingNotifier{}
	c := newTestCommitter(t, store, carts, notifier)

	w := createWatch(t, store, model.Watch{
		Name:                 "W",
		Target:               model.Target{Kind: model.TargetItem, Value: "itemCode=5"},
		PriceCeiling:         2000,
		CheckIntervalMinutes: 30,
	})
	avail := model.AvailabilityResult{Found: true, Title: "Item", Price: 1000, CanonicalRef: "itemCode=5", GroupKey: "shopA"}

	res := c.Commit(ctx, &w, avail, false)
	if res.Outcome != OutcomeFailed || res.Err == nil {
		t.Fatalf("outcome = %s err = %v, want failed with error", res.Outcome, res.Err)
	}

	got, _ := store.GetWatch(ctx, w.ID)
	if got.Status != model.StatusMonitoring {
		t.Errorf("status = %s, want monitoring after cart failure", got.Status)
	}
	entries, _ := store.ListPurchaseLog(ctx, 0)
	if len(entries) != 0 {
		t.Errorf("purchase log has %d entries after failed commit, want 0", len(entries))
	}
	if len(notifier.all()) != 0 {
		t.Error("notification emitted for failed commit")
	}
}

func TestCommitTransitionGuard(t *testing.T) {
	// The watch was disabled between listing and committing. The cart
	// add goes through, but the guarded transition refuses and no log
	// entry is written.
	ctx := context.Background()
	store := newTestStore(t)
	carts := &fakeCart{}
	notifier := &recordingNotifier{}
	c := newTestCommitter(t, store, carts, notifier)

	w := createWatch(t, store, model.Watch{
		Name:                 "W",
		Target:               model.Target{Kind: model.TargetItem, Value: "itemCode=5"},
		PriceCeiling:         2000,
		CheckIntervalMinutes: 30,
	})
	if err := store.UpdateWatchStatus(ctx, w.ID, model.StatusDisabled); err != nil {
		t.Fatalf("disable: %v", err)
	}

	avail := model.AvailabilityResult{Found: true, Title: "Item", Price: 1000, CanonicalRef: "itemCode=5", GroupKey: "shopA"}
	res := c.Commit(ctx, &w, avail, false)
	if res.Outcome != OutcomeFailed {
		t.Fatalf("outcome = %s, want failed", res.Outcome)
	}

	entries, _ := store.ListPurchaseLog(ctx, 0)
	if len(entries) != 0 {
		t.Errorf("purchase log has %d entries, want 0", len(entries))
	}
	if len(notifier.all()) != 0 {
		t.Error("purchase notification emitted without a completed transition")
	}
}

func TestCommitNotifyFailureDoesNotRollBack(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	carts := &fakeCart{}
	notifier := &recordingNotifier{err: errors.New("telegram down")}
	c := newTestCommitter(t, store, carts, notifier)

	w := createWatch(t, store, model.Watch{
		Name:                 "W",
		Target:               model.Target{Kind: model.TargetItem, Value: "itemCode=5"},
		PriceCeiling:         2000,
		CheckIntervalMinutes: 30,
	})
	avail := model.AvailabilityResult{Found: true, Title: "Item", Price: 1000, CanonicalRef: "itemCode=5", GroupKey: "shopA"}

	res := c.Commit(ctx, &w, avail, false)
	if res.Outcome != OutcomePurchased {
		t.Fatalf("outcome = %s, want purchased despite notify failure", res.Outcome)
	}
	got, _ := store.GetWatch(ctx, w.ID)
	if got.Status != model.StatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
}

func TestCommitOverride(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	carts := &fakeCart{groups: map[string]model.CartGroup{
		"shopA": {GroupKey: "shopA", ItemCount: 18, TotalValue: 45000},
	}}
	notifier := &recordingNotifier{}
	c := newTestCommitter(t, store, carts, notifier)

	w := createWatch(t, store, model.Watch{
		Name:                 "W",
		Target:               model.Target{Kind: model.TargetItem, Value: "itemCode=9"},
		PriceCeiling:         10000,
		CheckIntervalMinutes: 30,
	})
	avail := model.AvailabilityResult{Found: true, Title: "Big Item", Price: 8000, CanonicalRef: "itemCode=9", GroupKey: "shopA"}

	res := c.Commit(ctx, &w, avail, true)
	if res.Outcome != OutcomePurchased {
		t.Fatalf("outcome = %s, want purchased under override (err: %v)", res.Outcome, res.Err)
	}
	// The crossed limit rides along as an advisory for the audit trail.
	found := false
	for _, v := range res.Advisories {
		if v.Kind == model.ViolationAboveMax {
			found = true
		}
	}
	if !found {
		t.Errorf("advisories = %v, want above_max recorded", res.Advisories)
	}
	if len(carts.adds) != 1 {
		t.Fatalf("expected 1 cart add, got %d", len(carts.adds))
	}
}

func TestIdempotencyKeyStable(t *testing.T) {
	a := IdempotencyKey(12, "itemCode=100003")
	b := IdempotencyKey(12, "itemCode=100003")
	if a != b {
		t.Errorf("key not deterministic: %s vs %s", a, b)
	}
	if IdempotencyKey(13, "itemCode=100003") == a {
		t.Error("key does not vary with watch id")
	}
	if IdempotencyKey(12, "itemCode=100004") == a {
		t.Error("key does not vary with item ref")
	}
}
