// Package catalog adapts external marketplace sources to normalized
// availability results.
//
// A Source answers one question: is the watched item available right now,
// and at what price, in which shop. "Not found" and "sold out" are normal
// Found=false results, never errors; errors are reserved for transport and
// parse failures, which callers treat as soft-fails.
package catalog

import (
	"context"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"restock_bot/internal/model"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Source probes the marketplace for a single watch target.
type Source interface {
	// Probe looks the target up and returns a normalized result.
	Probe(ctx context.Context, t model.Target) (model.AvailabilityResult, error)
	// Host returns the external host a probe for the target would hit,
	// used as the throttling key.
	Host(t model.Target) string
}

const userAgent = "RestockMonitor/1.0"

var priceRe = regexp.MustCompile(`([0-9][0-9,]*)\s*(?:円|yen|JPY)`)

// ParsePrice extracts an integer price in currency units from listing text
// such as "1,500円" or "Price: 1500 yen". It returns 0 when no price is
// present.
func ParsePrice(text string) int64 {
	m := priceRe.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	digits := strings.ReplaceAll(m[1], ",", "")
	v, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

var soldOutMarkers = []string{"sold out", "soldout", "売切", "売り切れ", "在庫なし"}

// SoldOut reports whether listing text carries an out-of-stock marker.
func SoldOut(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range soldOutMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Snippet truncates diagnostic text carried on availability results.
func Snippet(text string) string {
	text = strings.TrimSpace(text)
	if len(text) > 200 {
		return text[:200] + "..."
	}
	return text
}
