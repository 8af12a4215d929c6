package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"restock_bot/internal/model"
)

// HTML probes the marketplace's item and search pages directly.
//
// Direct references resolve to {base}/detail?itemCode={ref} unless the
// reference is already an absolute URL. Keyword targets resolve to
// {base}/search?keyword={term}; search results are expected newest-first.
// Item pages expose title, price, shop, and an optional sold-out marker
// under the .item-detail container; search entries expose the same fields
// under .result-list .entry.
type HTML struct {
	client  HTTPClient
	baseURL string
	timeout time.Duration
}

// NewHTML creates an HTML source rooted at the marketplace base URL.
func NewHTML(client HTTPClient, baseURL string, timeout time.Duration) *HTML {
	return &HTML{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
	}
}

// Host returns the host a probe for the target would hit.
func (h *HTML) Host(t model.Target) string {
	if t.Kind == model.TargetItem && strings.HasPrefix(t.Value, "http") {
		if u, err := url.Parse(t.Value); err == nil {
			return u.Host
		}
	}
	u, err := url.Parse(h.baseURL)
	if err != nil {
		return h.baseURL
	}
	return u.Host
}

// Probe looks up the target on the marketplace site.
func (h *HTML) Probe(ctx context.Context, t model.Target) (model.AvailabilityResult, error) {
	switch t.Kind {
	case model.TargetItem:
		return h.probeItem(ctx, t)
	case model.TargetKeyword:
		return h.probeSearch(ctx, t)
	default:
		return model.AvailabilityResult{}, fmt.Errorf("unknown target kind %q", t.Kind)
	}
}

func (h *HTML) probeItem(ctx context.Context, t model.Target) (model.AvailabilityResult, error) {
	pageURL := t.Value
	if !strings.HasPrefix(pageURL, "http") {
		pageURL = fmt.Sprintf("%s/detail?itemCode=%s", h.baseURL, url.QueryEscape(t.Value))
	}

	doc, err := h.fetch(ctx, pageURL)
	if err != nil {
		return model.AvailabilityResult{}, err
	}

	detail := doc.Find(".item-detail").First()
	if detail.Length() == 0 {
		// Listing removed or page shape changed: a normal not-found.
		return model.AvailabilityResult{}, nil
	}

	title := strings.TrimSpace(detail.Find(".title").First().Text())
	priceText := strings.TrimSpace(detail.Find(".price").First().Text())
	shop := strings.TrimSpace(detail.Find(".shop").First().Text())

	if detail.Find(".soldout").Length() > 0 || SoldOut(priceText) {
		return model.AvailabilityResult{}, nil
	}

	price := ParsePrice(priceText)
	if price == 0 {
		// A listing without a readable price cannot pass the price gate.
		return model.AvailabilityResult{}, nil
	}

	if shop == "" {
		shop = h.Host(t)
	}

	return model.AvailabilityResult{
		Found:         true,
		Title:         title,
		Price:         price,
		CanonicalRef:  pageURL,
		GroupKey:      shop,
		SourceSnippet: Snippet(priceText + " @ " + shop),
	}, nil
}

func (h *HTML) probeSearch(ctx context.Context, t model.Target) (model.AvailabilityResult, error) {
	searchURL := fmt.Sprintf("%s/search?keyword=%s", h.baseURL, url.QueryEscape(t.Value))

	doc, err := h.fetch(ctx, searchURL)
	if err != nil {
		return model.AvailabilityResult{}, err
	}

	base, err := url.Parse(searchURL)
	if err != nil {
		return model.AvailabilityResult{}, fmt.Errorf("parse search url: %w", err)
	}

	var result model.AvailabilityResult
	doc.Find(".result-list .entry").EachWithBreak(func(_ int, entry *goquery.Selection) bool {
		title := strings.TrimSpace(entry.Find(".title").First().Text())
		priceText := strings.TrimSpace(entry.Find(".price").First().Text())

		if entry.Find(".soldout").Length() > 0 || SoldOut(priceText) {
			return true
		}
		if !TitleMatches(title, t.Value) || Excluded(title, t.ExcludeTerms) {
			return true
		}
		price := ParsePrice(priceText)
		if price == 0 {
			return true
		}

		ref := ""
		if href, ok := entry.Find(".title a").First().Attr("href"); ok {
			if u, err := url.Parse(href); err == nil {
				ref = base.ResolveReference(u).String()
			}
		}
		shop := strings.TrimSpace(entry.Find(".shop").First().Text())
		if shop == "" {
			shop = h.Host(t)
		}

		result = model.AvailabilityResult{
			Found:         true,
			Title:         title,
			Price:         price,
			CanonicalRef:  ref,
			GroupKey:      shop,
			SourceSnippet: Snippet(priceText + " @ " + shop),
		}
		return false
	})

	return result, nil
}

func (h *HTML) fetch(ctx context.Context, pageURL string) (*goquery.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return doc, nil
}
