package catalog

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"restock_bot/internal/model"
)

type staticSource struct {
	host   string
	result model.AvailabilityResult
}

func (s *staticSource) Host(model.Target) string { return s.host }

func (s *staticSource) Probe(context.Context, model.Target) (model.AvailabilityResult, error) {
	return s.result, nil
}

func TestCompositeRouting(t *testing.T) {
	item := &staticSource{host: "item-host", result: model.AvailabilityResult{Found: true, Title: "from item"}}
	keyword := &staticSource{host: "keyword-host", result: model.AvailabilityResult{Found: true, Title: "from keyword"}}
	src := NewComposite(item, keyword)

	got, err := src.Probe(context.Background(), model.Target{Kind: model.TargetItem, Value: "1"})
	if err != nil {
		t.Fatalf("item probe: %v", err)
	}
	if diff := cmp.Diff("from item", got.Title); diff != "" {
		t.Errorf("item routing mismatch (-want +got):\n%s", diff)
	}

	got, err = src.Probe(context.Background(), model.Target{Kind: model.TargetKeyword, Value: "x"})
	if err != nil {
		t.Fatalf("keyword probe: %v", err)
	}
	if diff := cmp.Diff("from keyword", got.Title); diff != "" {
		t.Errorf("keyword routing mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff("item-host", src.Host(model.Target{Kind: model.TargetItem})); diff != "" {
		t.Errorf("item host mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("keyword-host", src.Host(model.Target{Kind: model.TargetKeyword})); diff != "" {
		t.Errorf("keyword host mismatch (-want +got):\n%s", diff)
	}
}

func TestCompositeNilKeywordFallsBack(t *testing.T) {
	item := &staticSource{host: "item-host", result: model.AvailabilityResult{Found: true, Title: "from item"}}
	src := NewComposite(item, nil)

	got, err := src.Probe(context.Background(), model.Target{Kind: model.TargetKeyword, Value: "x"})
	if err != nil {
		t.Fatalf("keyword probe: %v", err)
	}
	if diff := cmp.Diff("from item", got.Title); diff != "" {
		t.Errorf("fallback routing mismatch (-want +got):\n%s", diff)
	}
}
