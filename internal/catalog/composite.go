package catalog

import (
	"context"

	"restock_bot/internal/model"
)

// Composite routes item targets to one source and keyword targets to
// another, so direct page lookups and feed searches can use different
// adapters.
type Composite struct {
	item    Source
	keyword Source
}

// NewComposite creates a Composite. A nil keyword source routes keyword
// targets to the item source.
func NewComposite(item, keyword Source) *Composite {
	if keyword == nil {
		keyword = item
	}
	return &Composite{item: item, keyword: keyword}
}

func (c *Composite) pick(t model.Target) Source {
	if t.Kind == model.TargetKeyword {
		return c.keyword
	}
	return c.item
}

// Host returns the throttling key of the routed source.
func (c *Composite) Host(t model.Target) string {
	return c.pick(t).Host(t)
}

// Probe forwards to the routed source.
func (c *Composite) Probe(ctx context.Context, t model.Target) (model.AvailabilityResult, error) {
	return c.pick(t).Probe(ctx, t)
}
