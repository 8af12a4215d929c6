package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"restock_bot/internal/model"
)

// RSS probes keyword targets through a marketplace search feed.
//
// The feed URL is a template whose single %s receives the URL-escaped
// keyword. Feed entries are expected newest-first; for each entry the
// listing title is the entry title, the canonical reference is the entry
// link, the price is parsed from the title or description, and the shop
// group is the first category when present. The first in-stock,
// non-excluded entry matching the keyword wins.
type RSS struct {
	client  HTTPClient
	feedURL string
	timeout time.Duration
}

// NewRSS creates an RSS source for the given search feed URL template.
func NewRSS(client HTTPClient, feedURL string, timeout time.Duration) *RSS {
	return &RSS{
		client:  client,
		feedURL: feedURL,
		timeout: timeout,
	}
}

// Host returns the feed's host.
func (r *RSS) Host(model.Target) string {
	u, err := url.Parse(strings.ReplaceAll(r.feedURL, "%s", ""))
	if err != nil {
		return r.feedURL
	}
	return u.Host
}

// Probe fetches the search feed for a keyword target and picks the first
// eligible entry.
func (r *RSS) Probe(ctx context.Context, t model.Target) (model.AvailabilityResult, error) {
	if t.Kind != model.TargetKeyword {
		return model.AvailabilityResult{}, fmt.Errorf("rss source supports keyword targets only, got %s", t.Kind)
	}

	feedURL := fmt.Sprintf(r.feedURL, url.QueryEscape(t.Value))
	feed, err := r.fetch(ctx, feedURL)
	if err != nil {
		return model.AvailabilityResult{}, err
	}

	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		if SoldOut(item.Title) || SoldOut(item.Description) {
			continue
		}
		if !TitleMatches(item.Title, t.Value) || Excluded(item.Title, t.ExcludeTerms) {
			continue
		}

		price := ParsePrice(item.Title)
		if price == 0 {
			price = ParsePrice(item.Description)
		}

		group := ""
		if len(item.Categories) > 0 {
			group = strings.TrimSpace(item.Categories[0])
		}
		if group == "" {
			group = r.Host(t)
		}

		return model.AvailabilityResult{
			Found:         true,
			Title:         strings.TrimSpace(item.Title),
			Price:         price,
			CanonicalRef:  item.Link,
			GroupKey:      group,
			SourceSnippet: Snippet(item.Description),
		}, nil
	}

	return model.AvailabilityResult{}, nil
}

func (r *RSS) fetch(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed, nil
}
