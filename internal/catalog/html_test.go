package catalog

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"restock_bot/internal/model"
)

const htmlBase = "https://shop.example.co.jp"

func TestHTMLProbeItem(t *testing.T) {
	inStock := loadFixture(t, "../../testdata/item_page.html")
	soldOut := loadFixture(t, "../../testdata/item_soldout.html")

	tests := []struct {
		name    string
		body    string
		target  model.Target
		want    model.AvailabilityResult
		wantURL string
	}{
		{
			name:   "in stock by item code",
			body:   inStock,
			target: model.Target{Kind: model.TargetItem, Value: "100003"},
			want: model.AvailabilityResult{
				Found:         true,
				Title:         "Rare Figure Limited Edition",
				Price:         1500,
				CanonicalRef:  "https://shop.example.co.jp/detail?itemCode=100003",
				GroupKey:      "Shop Nakano",
				SourceSnippet: "1,500円 (tax included) @ Shop Nakano",
			},
			wantURL: "https://shop.example.co.jp/detail?itemCode=100003",
		},
		{
			name:   "absolute url reference",
			body:   inStock,
			target: model.Target{Kind: model.TargetItem, Value: "https://shop.example.co.jp/detail?itemCode=100003"},
			want: model.AvailabilityResult{
				Found:         true,
				Title:         "Rare Figure Limited Edition",
				Price:         1500,
				CanonicalRef:  "https://shop.example.co.jp/detail?itemCode=100003",
				GroupKey:      "Shop Nakano",
				SourceSnippet: "1,500円 (tax included) @ Shop Nakano",
			},
			wantURL: "https://shop.example.co.jp/detail?itemCode=100003",
		},
		{
			name:   "sold out is a normal miss",
			body:   soldOut,
			target: model.Target{Kind: model.TargetItem, Value: "100001"},
			want:   model.AvailabilityResult{},
		},
		{
			name:   "listing gone is a normal miss",
			body:   "<html><body><p>no such item</p></body></html>",
			target: model.Target{Kind: model.TargetItem, Value: "999999"},
			want:   model.AvailabilityResult{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := &mockTransport{body: tt.body, statusCode: 200}
			src := NewHTML(transport, htmlBase, 5*time.Second)

			got, err := src.Probe(context.Background(), tt.target)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Probe mismatch (-want +got):\n%s", diff)
			}
			if tt.wantURL != "" {
				if diff := cmp.Diff(tt.wantURL, transport.lastURL); diff != "" {
					t.Errorf("request URL mismatch (-want +got):\n%s", diff)
				}
			}
		})
	}
}

func TestHTMLProbeSearch(t *testing.T) {
	page := loadFixture(t, "../../testdata/search_page.html")

	tests := []struct {
		name   string
		target model.Target
		want   model.AvailabilityResult
	}{
		{
			name:   "first in-stock entry wins",
			target: model.Target{Kind: model.TargetKeyword, Value: "rare figure"},
			want: model.AvailabilityResult{
				Found:         true,
				Title:         "Rare Figure Limited Box (damaged)",
				Price:         1200,
				CanonicalRef:  "https://shop.example.co.jp/detail?itemCode=200002",
				GroupKey:      "Shop Nakano",
				SourceSnippet: "1,200円 @ Shop Nakano",
			},
		},
		{
			name: "exclusions skip to next entry",
			target: model.Target{
				Kind:         model.TargetKeyword,
				Value:        "rare figure",
				ExcludeTerms: []string{"damaged"},
			},
			want: model.AvailabilityResult{
				Found:         true,
				Title:         "Rare Figure Limited Edition",
				Price:         1500,
				CanonicalRef:  "https://shop.example.co.jp/detail?itemCode=200003",
				GroupKey:      "Shop Nakano",
				SourceSnippet: "1,500円 @ Shop Nakano",
			},
		},
		{
			name:   "no eligible entries",
			target: model.Target{Kind: model.TargetKeyword, Value: "vintage camera"},
			want:   model.AvailabilityResult{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := &mockTransport{body: page, statusCode: 200}
			src := NewHTML(transport, htmlBase, 5*time.Second)

			got, err := src.Probe(context.Background(), tt.target)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Probe mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestHTMLProbeErrors(t *testing.T) {
	tests := []struct {
		name      string
		transport *mockTransport
	}{
		{name: "http error status", transport: &mockTransport{body: "gone", statusCode: 500}},
		{name: "network error", transport: &mockTransport{err: io.ErrUnexpectedEOF}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := NewHTML(tt.transport, htmlBase, 5*time.Second)
			target := model.Target{Kind: model.TargetItem, Value: "100003"}
			if _, err := src.Probe(context.Background(), target); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestHTMLHost(t *testing.T) {
	src := NewHTML(&mockTransport{}, htmlBase, time.Second)

	got := src.Host(model.Target{Kind: model.TargetKeyword, Value: "x"})
	if diff := cmp.Diff("shop.example.co.jp", got); diff != "" {
		t.Errorf("Host mismatch (-want +got):\n%s", diff)
	}

	got = src.Host(model.Target{Kind: model.TargetItem, Value: "https://other.example.com/detail?itemCode=1"})
	if diff := cmp.Diff("other.example.com", got); diff != "" {
		t.Errorf("Host for absolute ref mismatch (-want +got):\n%s", diff)
	}
}
