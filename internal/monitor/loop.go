package monitor

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"restock_bot/internal/model"
	"restock_bot/internal/schedule"
	"restock_bot/internal/storage"
)

// Prober is the catalog surface the loop needs: one normalized probe
// per target. Not-found is a normal result, not an error.
type Prober interface {
	Probe(ctx context.Context, target model.Target) (model.AvailabilityResult, error)
}

// Loop wakes on a fixed tick, sweeps expired watches, and pushes every
// due watch through probe, gate, ledger, and commit. Failures are
// isolated per watch; one bad probe never aborts the tick.
type Loop struct {
	store     storage.Storage
	source    Prober
	selector  *schedule.Selector
	committer *Committer
	log       *slog.Logger
	tick      time.Duration
	parallel  int
	now       func() time.Time
}

// New creates a Loop with a one-minute tick and serialized probing.
func New(store storage.Storage, source Prober, selector *schedule.Selector, committer *Committer, log *slog.Logger) *Loop {
	return &Loop{
		store:     store,
		source:    source,
		selector:  selector,
		committer: committer,
		log:       log,
		tick:      1 * time.Minute,
		parallel:  1,
		now:       time.Now,
	}
}

// SetTickInterval overrides the default 1-minute tick.
func (l *Loop) SetTickInterval(d time.Duration) {
	l.tick = d
}

// SetMaxParallelProbes bounds how many watches are probed at once.
// Probing stays serialized per host regardless; this only lets watches
// against different hosts overlap.
func (l *Loop) SetMaxParallelProbes(n int) {
	if n > 0 {
		l.parallel = n
	}
}

// Run starts the loop, blocking until ctx is cancelled. The in-flight
// tick finishes its current watches before Run returns.
func (l *Loop) Run(ctx context.Context) {
	l.tickOnce(ctx)

	ticker := time.NewTicker(l.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tickOnce(ctx)
		}
	}
}

func (l *Loop) tickOnce(ctx context.Context) {
	now := l.now().UTC()

	watches, err := l.store.ListActiveWatches(ctx)
	if err != nil {
		l.log.Error("list active watches", "error", err)
		return
	}

	var due []model.Watch
	for _, w := range watches {
		if w.Expired(now) {
			if err := l.store.UpdateWatchStatus(ctx, w.ID, model.StatusExpired); err != nil {
				l.log.Error("expire watch", "watch_id", w.ID, "error", err)
				continue
			}
			l.log.Info("watch expired", "watch_id", w.ID, "name", w.Name)
			continue
		}
		if l.selector.IsDue(w, now) {
			due = append(due, w)
		}
	}
	if len(due) == 0 {
		return
	}
	l.log.Debug("tick", "due", len(due), "active", len(watches))

	var g errgroup.Group
	g.SetLimit(l.parallel)
	for _, w := range due {
		w := w
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			l.processWatch(ctx, w)
			return nil
		})
	}
	_ = g.Wait()
}

func (l *Loop) processWatch(ctx context.Context, w model.Watch) {
	checked := l.now().UTC()
	l.log.Debug("probe", "watch_id", w.ID, "name", w.Name, "target", w.Target.Value)

	avail, err := l.source.Probe(ctx, w.Target)
	if err != nil {
		if ctx.Err() != nil {
			// Shutting down; leave the watch due for the next run.
			return
		}
		// Transport and parse failures are soft: the watch stays
		// monitoring and the cycle still counts.
		l.log.Warn("probe failed", "watch_id", w.ID, "error", err)
		l.updateCheck(ctx, w, checked)
		return
	}
	if !avail.Found {
		l.updateCheck(ctx, w, checked)
		return
	}

	if avail.Price > 0 && avail.Price != w.LastKnownPrice {
		if err := l.store.UpdateWatchPrice(ctx, w.ID, avail.Price); err != nil {
			l.log.Error("update watch price", "watch_id", w.ID, "error", err)
		} else {
			w.LastKnownPrice = avail.Price
		}
	}

	res := l.committer.Commit(ctx, &w, avail, false)
	switch res.Outcome {
	case OutcomePurchased:
		l.log.Info("watch completed", "watch_id", w.ID, "name", w.Name, "order_ref", res.OrderRef)
	case OutcomePriceMiss:
		l.log.Info("price above ceiling", "watch_id", w.ID, "price", avail.Price, "ceiling", w.PriceCeiling)
	case OutcomeDenied:
		l.log.Warn("thresholds denied purchase", "watch_id", w.ID, "group", avail.GroupKey)
	case OutcomeFailed:
		l.log.Error("commit failed", "watch_id", w.ID, "error", res.Err)
	}

	l.updateCheck(ctx, w, checked)
}

func (l *Loop) updateCheck(ctx context.Context, w model.Watch, checked time.Time) {
	next := l.selector.NextDue(w, checked)
	if err := l.store.UpdateWatchCheck(ctx, w.ID, checked, next); err != nil {
		l.log.Error("update watch check", "watch_id", w.ID, "error", err)
	}
}
