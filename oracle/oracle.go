// Package oracle caches the USD price of each accepted settlement
// token. Quotes refresh from an external source on a TTL and fall back
// to the last good value (or the baked-in defaults) when the source is
// unreachable, so callers always get a usable price and never an error.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/radiodial/paygate/logger"
	"github.com/radiodial/paygate/metrics"
	"github.com/radiodial/paygate/types"
)

const (
	// DefaultTTL is how long a fetched quote set stays fresh.
	DefaultTTL = 60 * time.Second

	// DefaultFetchTimeout bounds one outbound quote fetch.
	DefaultFetchTimeout = 5 * time.Second
)

// FallbackPrices seed the cache at construction. USD per base unit of
// each token, so they divide USD prices directly into unit counts.
var FallbackPrices = map[types.Token]decimal.Decimal{
	types.TokenRadio: decimal.RequireFromString("0.0000003"),
	types.TokenUSDC:  decimal.RequireFromString("0.000001"),
	types.TokenETH:   decimal.RequireFromString("0.000000000000003"),
}

// quoteResponse is the shape of the external quote source: a map of
// token symbol to {"usd": price}.
type quoteResponse map[string]struct {
	USD decimal.Decimal `json:"usd"`
}

// Cache is the process-wide price cache. Reads take a shared lock;
// a refresh replaces the whole quote set and its timestamp in one
// critical section, so no reader ever observes a half-updated set.
// Refreshes are single-flighted: concurrent callers racing past an
// expired TTL share one outbound fetch.
type Cache struct {
	quoteURL string
	ttl      time.Duration
	client   *http.Client
	now      func() time.Time
	log      logger.Logger
	rec      metrics.Recorder

	group singleflight.Group

	mu        sync.RWMutex
	prices    map[types.Token]decimal.Decimal
	fetchedAt time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock injects the time source, for deterministic TTL tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithHTTPClient overrides the fetch client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Cache) { c.client = hc }
}

// WithTTL overrides the quote freshness window.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithLogger injects the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Cache) { c.log = l }
}

// WithMetrics injects the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(c *Cache) { c.rec = r }
}

// New builds a Cache seeded with the fallback price table. quoteURL may
// be empty, in which case the cache serves fallbacks forever.
func New(quoteURL string, opts ...Option) *Cache {
	c := &Cache{
		quoteURL: quoteURL,
		ttl:      DefaultTTL,
		client:   &http.Client{Timeout: DefaultFetchTimeout},
		now:      time.Now,
		log:      logger.NoopLogger{},
		rec:      metrics.NewNoopRecorder(),
		prices:   make(map[types.Token]decimal.Decimal, len(FallbackPrices)),
	}
	for t, p := range FallbackPrices {
		c.prices[t] = p
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Prices returns the current USD price per base unit of every accepted
// token. It refreshes from the quote source when the TTL has lapsed and
// serves the cached set unchanged when the refresh fails. It never
// returns an error.
func (c *Cache) Prices(ctx context.Context) map[types.Token]decimal.Decimal {
	c.mu.RLock()
	fresh := c.now().Sub(c.fetchedAt) < c.ttl
	if fresh {
		defer c.mu.RUnlock()
		return copyPrices(c.prices)
	}
	c.mu.RUnlock()

	if c.quoteURL != "" {
		// Errors are already absorbed inside refresh; the shared call
		// just keeps concurrent expiries down to one outbound fetch.
		c.group.Do("refresh", func() (interface{}, error) {
			c.refresh(ctx)
			return nil, nil
		})
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyPrices(c.prices)
}

// Price returns the quote for one token, falling back to the baked-in
// default when the token has somehow never been seeded.
func (c *Cache) Price(ctx context.Context, token types.Token) decimal.Decimal {
	if p, ok := c.Prices(ctx)[token]; ok {
		return p
	}
	return FallbackPrices[token]
}

// FetchedAt reports when the cache last refreshed successfully. Zero
// until the first successful fetch.
func (c *Cache) FetchedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fetchedAt
}

// refresh performs one bounded fetch and atomically replaces the quote
// set on success. On any failure the cache is left untouched.
func (c *Cache) refresh(ctx context.Context) {
	start := c.now()
	fetched, err := c.fetch(ctx)
	c.rec.ObserveLatency("oracle_fetch", c.now().Sub(start), nil)
	if err != nil {
		c.rec.IncCounter("oracle_fetch_failed", nil)
		c.log.Warn("price fetch failed, serving cached quotes", map[string]any{
			"code":  types.ErrPriceFetchFailed,
			"error": err.Error(),
		})
		return
	}

	c.mu.Lock()
	for t, p := range fetched {
		c.prices[t] = p
	}
	c.fetchedAt = c.now()
	c.mu.Unlock()
}

func (c *Cache) fetch(ctx context.Context) (map[types.Token]decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.quoteURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build quote request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quote source unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quote source returned status %d", resp.StatusCode)
	}

	var body quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("malformed quote response: %w", err)
	}

	fetched := make(map[types.Token]decimal.Decimal, len(body))
	for symbol, entry := range body {
		token, err := types.ParseToken(symbol)
		if err != nil {
			continue // unknown symbols in the feed are ignored
		}
		if !entry.USD.IsPositive() {
			return nil, fmt.Errorf("quote source returned non-positive price %s for %s", entry.USD, token)
		}
		fetched[token] = entry.USD
	}
	if len(fetched) == 0 {
		return nil, fmt.Errorf("quote response contained no usable prices")
	}
	return fetched, nil
}

func copyPrices(src map[types.Token]decimal.Decimal) map[types.Token]decimal.Decimal {
	out := make(map[types.Token]decimal.Decimal, len(src))
	for t, p := range src {
		out[t] = p
	}
	return out
}
