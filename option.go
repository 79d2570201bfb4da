package paygate

import (
	"time"

	"github.com/radiodial/paygate/catalog"
	"github.com/radiodial/paygate/clients"
	"github.com/radiodial/paygate/logger"
	"github.com/radiodial/paygate/metrics"
	"github.com/radiodial/paygate/oracle"
)

type Option func(*Gateway)

func WithLogger(l logger.Logger) Option {
	return func(g *Gateway) { g.log = l }
}

func WithMetrics(r metrics.Recorder) Option {
	return func(g *Gateway) { g.rec = r }
}

// WithClock injects the time source used for challenge expiry and
// oracle TTL checks.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// WithRecorder sets the sink that receives payment records after
// successful verification.
func WithRecorder(r Recorder) Option {
	return func(g *Gateway) { g.recorder = r }
}

// WithBypass sets the predicate that lets requests skip the gate
// entirely.
func WithBypass(fn BypassFunc) Option {
	return func(g *Gateway) { g.bypass = fn }
}

// WithLedgerReader injects a ledger reader instead of dialing the
// configured RPC endpoint.
func WithLedgerReader(l clients.LedgerReader) Option {
	return func(g *Gateway) { g.ledger = l }
}

// WithCatalog injects a pricing catalog instead of loading one from
// configuration.
func WithCatalog(c *catalog.Catalog) Option {
	return func(g *Gateway) { g.catalog = c }
}

// WithOracle injects a price cache instead of constructing one.
func WithOracle(c *oracle.Cache) Option {
	return func(g *Gateway) { g.prices = c }
}
