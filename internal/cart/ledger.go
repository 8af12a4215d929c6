package cart

import (
	"context"
	"fmt"
	"log/slog"

	"restock_bot/internal/model"
)

// PolicySource returns stored per-group policy overrides. A nil policy
// with a nil error means the group has no override and the configured
// defaults apply.
type PolicySource interface {
	GetGroupPolicy(ctx context.Context, groupKey string) (*model.GroupPolicy, error)
}

// Addition is a proposed cart delta for one group.
type Addition struct {
	GroupKey string
	Value    int64
	Items    int
}

// Decision is the outcome of evaluating one addition. Snapshot holds
// the group totals the decision was made against, including deltas
// admitted earlier in the same batch.
type Decision struct {
	GroupKey   string
	Admitted   bool
	Override   bool
	Violations []model.ThresholdViolation
	Advisories []model.ThresholdViolation
	Snapshot   model.CartGroup
}

type groupState struct {
	snapshot model.CartGroup
	policy   model.GroupPolicy
}

// Ledger evaluates proposed cart additions against per-group threshold
// policies. Group totals are resynced from the cart service immediately
// before every evaluation and never cached across calls.
type Ledger struct {
	reader   Reader
	policies PolicySource
	defaults model.GroupPolicy
	logger   *slog.Logger
}

// NewLedger creates a Ledger. defaults applies to groups without a
// stored policy override.
func NewLedger(reader Reader, policies PolicySource, defaults model.GroupPolicy, logger *slog.Logger) *Ledger {
	return &Ledger{
		reader:   reader,
		policies: policies,
		defaults: defaults,
		logger:   logger,
	}
}

// Evaluate checks a single addition. The override flag demotes blocking
// violations to advisories and must only be set on an explicit caller
// request, never as a default.
func (l *Ledger) Evaluate(ctx context.Context, add Addition, override bool) (Decision, error) {
	decisions, err := l.EvaluateBatch(ctx, []Addition{add}, override)
	if err != nil {
		return Decision{}, err
	}
	return decisions[0], nil
}

// EvaluateBatch checks several additions at once and returns one
// decision per addition, index-aligned with the input. Every addition
// is evaluated even when earlier ones are denied. Additions to the same
// group accumulate: an admitted delta counts against the group's
// remaining budget for the rest of the batch.
//
// A resync or policy read failure aborts the whole batch with an error;
// the ledger never admits against totals it could not verify.
func (l *Ledger) EvaluateBatch(ctx context.Context, adds []Addition, override bool) ([]Decision, error) {
	states := make(map[string]*groupState, len(adds))
	for _, add := range adds {
		if _, ok := states[add.GroupKey]; ok {
			continue
		}
		snap, err := l.reader.Snapshot(ctx, add.GroupKey)
		if err != nil {
			return nil, fmt.Errorf("resync group %q: %w", add.GroupKey, err)
		}
		policy, err := l.policyFor(ctx, add.GroupKey)
		if err != nil {
			return nil, err
		}
		states[add.GroupKey] = &groupState{snapshot: snap, policy: policy}
	}

	decisions := make([]Decision, 0, len(adds))
	for _, add := range adds {
		st := states[add.GroupKey]
		d := l.decide(st, add, override)
		if d.Admitted {
			st.snapshot.TotalValue += add.Value
			st.snapshot.ItemCount += add.Items
		}
		decisions = append(decisions, d)
	}
	return decisions, nil
}

func (l *Ledger) policyFor(ctx context.Context, groupKey string) (model.GroupPolicy, error) {
	stored, err := l.policies.GetGroupPolicy(ctx, groupKey)
	if err != nil {
		return model.GroupPolicy{}, fmt.Errorf("load policy for group %q: %w", groupKey, err)
	}
	if stored != nil {
		return *stored, nil
	}
	p := l.defaults
	p.GroupKey = groupKey
	return p, nil
}

func (l *Ledger) decide(st *groupState, add Addition, override bool) Decision {
	d := Decision{GroupKey: add.GroupKey, Snapshot: st.snapshot, Admitted: true}
	policy := st.policy
	if !policy.Enabled {
		return d
	}

	resultingValue := st.snapshot.TotalValue + add.Value
	resultingCount := st.snapshot.ItemCount + add.Items

	var blocking []model.ThresholdViolation
	if resultingValue > policy.MaxValue {
		blocking = append(blocking, model.ThresholdViolation{
			GroupKey:       add.GroupKey,
			Kind:           model.ViolationAboveMax,
			CurrentValue:   st.snapshot.TotalValue,
			Delta:          add.Value,
			ResultingValue: resultingValue,
			Limit:          policy.MaxValue,
		})
	}
	if resultingCount > policy.MaxItems {
		blocking = append(blocking, model.ThresholdViolation{
			GroupKey:       add.GroupKey,
			Kind:           model.ViolationTooManyItems,
			CurrentValue:   int64(st.snapshot.ItemCount),
			Delta:          int64(add.Items),
			ResultingValue: int64(resultingCount),
			Limit:          int64(policy.MaxItems),
		})
	}
	// Under-minimum carts cost more per item but are never incorrect,
	// so below_min only ever advises.
	if resultingValue < policy.MinValue {
		d.Advisories = append(d.Advisories, model.ThresholdViolation{
			GroupKey:       add.GroupKey,
			Kind:           model.ViolationBelowMin,
			CurrentValue:   st.snapshot.TotalValue,
			Delta:          add.Value,
			ResultingValue: resultingValue,
			Limit:          policy.MinValue,
		})
	}

	if len(blocking) == 0 {
		return d
	}
	if override {
		d.Override = true
		d.Advisories = append(d.Advisories, blocking...)
		for _, v := range blocking {
			l.logger.Warn("threshold overridden",
				"group", v.GroupKey,
				"kind", string(v.Kind),
				"resulting", v.ResultingValue,
				"limit", v.Limit,
			)
		}
		return d
	}
	d.Admitted = false
	d.Violations = blocking
	return d
}
