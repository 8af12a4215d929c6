package cart

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"restock_bot/internal/model"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client implements Service against the cart service's JSON API.
type Client struct {
	baseURL string
	client  HTTPClient
	timeout time.Duration
}

// NewClient creates a cart service client rooted at baseURL.
func NewClient(baseURL string, client HTTPClient, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		timeout: timeout,
	}
}

type groupPayload struct {
	GroupKey   string `json:"group_key"`
	ItemCount  int    `json:"item_count"`
	TotalValue int64  `json:"total_value"`
}

type addPayload struct {
	Ref            string `json:"ref"`
	IdempotencyKey string `json:"idempotency_key"`
}

type addResponse struct {
	OrderRef string `json:"order_ref"`
	Reason   string `json:"reason"`
}

// Snapshot reads the current totals for one cart group.
func (c *Client) Snapshot(ctx context.Context, groupKey string) (model.CartGroup, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.baseURL + "/cart/" + url.PathEscape(groupKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return model.CartGroup{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return model.CartGroup{}, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return model.CartGroup{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var p groupPayload
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1024*1024)).Decode(&p); err != nil {
		return model.CartGroup{}, fmt.Errorf("decode group: %w", err)
	}
	return model.CartGroup{
		GroupKey:   groupKey,
		ItemCount:  p.ItemCount,
		TotalValue: p.TotalValue,
	}, nil
}

// Add asks the cart service to add one item to a group's cart. On
// failure the service's reason string, when present, is carried in the
// returned error.
func (c *Client) Add(ctx context.Context, r AddRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(addPayload{Ref: r.Ref, IdempotencyKey: r.IdempotencyKey})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	u := c.baseURL + "/cart/" + url.PathEscape(r.GroupKey) + "/items"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http post: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var p addResponse
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 1024*1024)).Decode(&p)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		if decodeErr == nil && p.Reason != "" {
			return "", fmt.Errorf("cart add rejected: %s", p.Reason)
		}
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("decode response: %w", decodeErr)
	}
	if p.OrderRef == "" {
		return "", fmt.Errorf("cart add returned no order reference")
	}
	return p.OrderRef, nil
}

// Ensure the Service interface is satisfied.
var _ Service = (*Client)(nil)
