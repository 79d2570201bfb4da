// Package paygate guards priced HTTP resources behind an HTTP 402
// challenge/response cycle: unpaid requests receive a payment
// challenge, retried requests carrying a settlement proof are verified
// against the ledger before the protected handler runs.
package paygate

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radiodial/paygate/catalog"
	"github.com/radiodial/paygate/challenge"
	"github.com/radiodial/paygate/clients"
	"github.com/radiodial/paygate/config"
	"github.com/radiodial/paygate/logger"
	"github.com/radiodial/paygate/metrics"
	"github.com/radiodial/paygate/oracle"
	"github.com/radiodial/paygate/split"
	"github.com/radiodial/paygate/types"
	"github.com/radiodial/paygate/verification"
)

// Route describes one priced request: which catalog entry prices it and
// who the proceeds go to. Produced per request by the host's resolver;
// the recipient and tier come from external lookups, never computed
// here.
type Route struct {
	ResourceKey string
	Recipient   string
	Tier        types.Tier
	Description string
}

// ResolveFunc maps a request onto a Route. Returning false marks the
// request unpriced: it passes through without any challenge.
type ResolveFunc func(*http.Request) (Route, bool)

// BypassFunc short-circuits the gate, e.g. when the caller already
// holds an active subscription. Evaluated by the host, not reimplemented
// here.
type BypassFunc func(*http.Request) bool

// Recorder receives payment records after successful verification. The
// gate decision never blocks on it.
type Recorder interface {
	RecordPayment(ctx context.Context, record types.PaymentRecord)
}

type noopRecorder struct{}

func (noopRecorder) RecordPayment(context.Context, types.PaymentRecord) {}

// Gateway is the orchestrator tying the catalog, oracle, challenge
// generator, and verifier together.
type Gateway struct {
	cfg      config.Config
	catalog  *catalog.Catalog
	prices   *oracle.Cache
	gen      *challenge.Generator
	verifier *verification.Service
	ledger   clients.LedgerReader

	log      logger.Logger
	rec      metrics.Recorder
	now      func() time.Time
	recorder Recorder
	bypass   BypassFunc
}

// New assembles a gateway from configuration. Unless a ledger reader is
// injected, it dials the configured RPC endpoint.
func New(cfg config.Config, opts ...Option) (*Gateway, error) {
	g := &Gateway{
		cfg:      cfg,
		log:      logger.NoopLogger{},
		rec:      metrics.NewNoopRecorder(),
		now:      time.Now,
		recorder: noopRecorder{},
	}
	for _, opt := range opts {
		opt(g)
	}

	if g.ledger == nil {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		var evmOpts []clients.EVMOption
		if cfg.StrictVerification {
			evmOpts = append(evmOpts, clients.WithTransferDecoding())
		}
		ledger, err := clients.NewEVMLedger(cfg.Network, cfg.LedgerRPCURL, evmOpts...)
		if err != nil {
			return nil, err
		}
		g.ledger = ledger
	}

	if g.catalog == nil {
		if cfg.CatalogPath != "" {
			c, err := catalog.LoadFile(cfg.CatalogPath)
			if err != nil {
				return nil, err
			}
			g.catalog = c
		} else {
			g.catalog = catalog.Default()
		}
	}

	if g.prices == nil {
		g.prices = oracle.New(cfg.QuoteURL,
			oracle.WithTTL(cfg.OracleTTL),
			oracle.WithClock(g.now),
			oracle.WithLogger(g.log),
			oracle.WithMetrics(g.rec),
		)
	}

	g.gen = challenge.NewGenerator(cfg.ChallengeTTL, g.now)

	verifyOpts := []verification.Option{
		verification.WithLogger(g.log),
		verification.WithMetrics(g.rec),
		verification.WithClock(g.now),
	}
	if cfg.StrictVerification {
		verifyOpts = append(verifyOpts, verification.WithStrictVerification())
	}
	if cfg.ReplayWindow > 0 {
		verifyOpts = append(verifyOpts, verification.WithReplayGuard(verification.NewReplayGuard(cfg.ReplayWindow)))
	}
	g.verifier = verification.NewService(g.ledger, verifyOpts...)

	return g, nil
}

// Challenge builds a payment challenge for a route, pricing it at the
// current quote. Exposed for non-HTTP hosts.
func (g *Gateway) Challenge(ctx context.Context, route Route, resourceID string) (*types.PaymentChallenge, error) {
	entry, ok := g.catalog.Lookup(route.ResourceKey)
	if !ok {
		return nil, fmt.Errorf("resource %q is not priced", route.ResourceKey)
	}
	return g.challengeFor(ctx, entry, route, resourceID)
}

func (g *Gateway) challengeFor(ctx context.Context, entry types.PricingEntry, route Route, resourceID string) (*types.PaymentChallenge, error) {
	quote := g.prices.Price(ctx, entry.PreferredToken)
	desc := route.Description
	if desc == "" {
		desc = fmt.Sprintf("Access to %s", entry.ResourceKey)
	}
	return g.gen.Create(entry.USDPrice, quote, entry.PreferredToken, route.Recipient, route.Tier, resourceID, desc)
}

// Verify checks a proof against expectations. Exposed for non-HTTP
// hosts; the middleware goes through the same path.
func (g *Gateway) Verify(ctx context.Context, pr *types.PaymentProof, expected types.Expected) *types.VerificationResult {
	return g.verifier.Verify(ctx, pr, expected)
}

// Split exposes the revenue split for a verified amount.
func (g *Gateway) Split(total uint64, tier types.Tier) types.RevenueSplit {
	return split.Calculate(total, tier)
}

// record hands the payment to the external sink without blocking the
// response path.
func (g *Gateway) record(rec types.PaymentRecord) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		g.recorder.RecordPayment(ctx, rec)
	}()
}

// Prices exposes the oracle cache, mainly for diagnostics endpoints.
func (g *Gateway) Prices(ctx context.Context) map[types.Token]decimal.Decimal {
	return g.prices.Prices(ctx)
}

// Close releases the ledger connection.
func (g *Gateway) Close() {
	if g.ledger != nil {
		g.ledger.Close()
	}
}
