// Package catalog holds the static table of priced resource classes.
// It is loaded once at startup and immutable thereafter, so lookups
// need no locking.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"github.com/radiodial/paygate/types"
)

// Catalog maps resource keys to their pricing entries.
type Catalog struct {
	entries map[string]types.PricingEntry
}

// New builds a catalog from the given entries. Entries with a
// non-positive USD price or a token outside the accepted set are
// rejected: a priced resource must cost something payable, an unpriced
// one simply stays out of the catalog.
func New(entries []types.PricingEntry) (*Catalog, error) {
	m := make(map[string]types.PricingEntry, len(entries))
	for _, e := range entries {
		if e.ResourceKey == "" {
			return nil, fmt.Errorf("catalog entry with empty resource key")
		}
		if !e.USDPrice.IsPositive() {
			return nil, fmt.Errorf("catalog entry %q: usd price must be positive, got %s", e.ResourceKey, e.USDPrice)
		}
		if e.PreferredToken == "" {
			e.PreferredToken = types.TokenRadio
		} else if _, err := types.ParseToken(string(e.PreferredToken)); err != nil {
			return nil, fmt.Errorf("catalog entry %q: unsupported settlement token %q", e.ResourceKey, e.PreferredToken)
		}
		m[e.ResourceKey] = e
	}
	return &Catalog{entries: m}, nil
}

// LoadFile reads a JSON array of pricing entries from disk.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pricing catalog: %w", err)
	}
	var entries []types.PricingEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse pricing catalog: %w", err)
	}
	return New(entries)
}

// Default returns the built-in station pricing table.
func Default() *Catalog {
	c, _ := New([]types.PricingEntry{
		{ResourceKey: "station.listen", USDPrice: decimal.RequireFromString("0.001"), PreferredToken: types.TokenRadio},
		{ResourceKey: "station.create", USDPrice: decimal.RequireFromString("0.01"), PreferredToken: types.TokenRadio},
		{ResourceKey: "track.skip", USDPrice: decimal.RequireFromString("0.0005"), PreferredToken: types.TokenRadio},
		{ResourceKey: "chat.pin", USDPrice: decimal.RequireFromString("0.002"), PreferredToken: types.TokenUSDC},
	})
	return c
}

// Lookup returns the entry for a resource key. A false return means the
// resource is unpriced and the request passes through unguarded.
func (c *Catalog) Lookup(resourceKey string) (types.PricingEntry, bool) {
	e, ok := c.entries[resourceKey]
	return e, ok
}

// Keys returns the catalog's resource keys, for diagnostics.
func (c *Catalog) Keys() []string {
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return keys
}
