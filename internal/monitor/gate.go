// Package monitor drives the check cycle: due selection, catalog
// probing, price gating, threshold evaluation, and the commit pipeline.
package monitor

import "restock_bot/internal/model"

// PriceOK reports whether a sighted price clears the watch's ceiling.
// A price above the ceiling is a miss, not an error; the watch keeps
// monitoring. An unparsed price (zero) never clears the gate, since the
// pipeline must not cart an item whose cost it could not verify.
func PriceOK(w model.Watch, price int64) bool {
	return price > 0 && price <= w.PriceCeiling
}
