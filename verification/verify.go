// Package verification checks payment proofs against the ledger. Each
// check is read-only and idempotent: re-verifying the same proof yields
// the same result for as long as the referenced transaction's ledger
// state is unchanged.
package verification

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/radiodial/paygate/clients"
	"github.com/radiodial/paygate/logger"
	"github.com/radiodial/paygate/metrics"
	"github.com/radiodial/paygate/types"
)

// Service verifies proofs for a single ledger.
type Service struct {
	ledger clients.LedgerReader
	log    logger.Logger
	rec    metrics.Recorder
	now    func() time.Time

	// strict, when set, decodes the actual transfer from the receipt
	// and compares it against expectations instead of trusting the
	// proof's self-reported amount and token.
	strict bool

	// replay, when non-nil, rejects a transaction hash that already
	// satisfied an earlier request.
	replay *ReplayGuard
}

// Option configures a Service.
type Option func(*Service)

// WithLogger injects the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithMetrics injects the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(s *Service) { s.rec = r }
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithStrictVerification makes the service compare the on-ledger
// transfer against expectations rather than trusting the proof's
// claimed fields. The default (off) reproduces the original gateway
// behavior, which accepts any successful transaction with the given
// hash and believes the caller's amount.
func WithStrictVerification() Option {
	return func(s *Service) { s.strict = true }
}

// WithReplayGuard rejects proofs whose transaction hash was already
// accepted within the guard's window.
func WithReplayGuard(g *ReplayGuard) Option {
	return func(s *Service) { s.replay = g }
}

// NewService builds a verifier over the given ledger reader.
func NewService(ledger clients.LedgerReader, opts ...Option) *Service {
	s := &Service{
		ledger: ledger,
		log:    logger.NoopLogger{},
		rec:    metrics.NewNoopRecorder(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Verify checks one proof against the expectations. It never returns a
// transport error to the caller: every failure mode is folded into an
// invalid VerificationResult with a code from the taxonomy.
func (s *Service) Verify(ctx context.Context, proof *types.PaymentProof, expected types.Expected) *types.VerificationResult {
	start := s.now()
	result := s.verify(ctx, proof, expected)
	s.rec.ObserveLatency("verify", s.now().Sub(start), nil)

	if result.Valid {
		s.rec.IncCounter("verify_accepted", nil)
	} else {
		s.rec.IncCounter("verify_rejected", map[string]string{"outcome": result.Code})
		s.log.Info("payment proof rejected", map[string]any{
			"txHash": proof.TxHash,
			"code":   result.Code,
			"reason": result.Reason,
		})
	}
	return result
}

func (s *Service) verify(ctx context.Context, proof *types.PaymentProof, expected types.Expected) *types.VerificationResult {
	fail := func(code, reason string) *types.VerificationResult {
		return &types.VerificationResult{
			Valid:  false,
			Code:   code,
			Reason: reason,
			TxHash: proof.TxHash,
		}
	}

	// Challenge binding, when the caller supplied an expiry.
	if expected.ExpiresAt > 0 && s.now().Unix() >= expected.ExpiresAt {
		return fail(types.ErrChallengeExpired, "the payment challenge for this request has expired")
	}

	if s.replay != nil && s.replay.Seen(proof.TxHash) {
		return fail(types.ErrProofReplayed, "transaction already used to satisfy a previous request")
	}

	status, err := s.ledger.TransactionStatus(ctx, proof.TxHash)
	if err != nil {
		// The ledger could not be consulted at all. Surfaced with its
		// own code so callers can retry rather than re-pay.
		s.log.Warn("ledger lookup failed", map[string]any{
			"txHash": proof.TxHash,
			"error":  err.Error(),
		})
		return fail(types.ErrLedgerUnavailable, "ledger lookup failed, retry later")
	}

	if !status.Found {
		return fail(types.ErrTxNotFound, fmt.Sprintf("transaction %s not found on ledger", proof.TxHash))
	}
	if !status.Succeeded {
		return fail(types.ErrTxFailed, fmt.Sprintf("transaction %s failed on ledger", proof.TxHash))
	}

	var paid *big.Int
	var payer string
	if s.strict {
		// On-ledger state is the only truth here; the proof's claimed
		// amount and token are not consulted.
		transfer := matchTransfer(status.Transfers, expected)
		if transfer == nil {
			return fail(types.ErrInsufficientAmount,
				fmt.Sprintf("no on-ledger transfer of at least %d %s to %s found in transaction",
					expected.Amount, expected.Token, expected.Recipient))
		}
		paid = transfer.Amount
		payer = transfer.From
	} else {
		// Amount before token: a proof short on both reports the
		// shortfall.
		claimed, ok := new(big.Int).SetString(proof.Amount, 10)
		if !ok || claimed.Sign() < 0 {
			return fail(types.ErrMalformedProof, fmt.Sprintf("proof amount %q is not a non-negative integer", proof.Amount))
		}
		if claimed.Cmp(new(big.Int).SetUint64(expected.Amount)) < 0 {
			return fail(types.ErrInsufficientAmount,
				fmt.Sprintf("paid %s, required %d", proof.Amount, expected.Amount))
		}
		if proof.Token != expected.Token {
			return fail(types.ErrWrongToken, fmt.Sprintf("payment in %s, expected %s", proof.Token, expected.Token))
		}
		paid = claimed
		payer = proof.Payer
	}

	if s.replay != nil && !s.replay.MarkIfNew(proof.TxHash) {
		return fail(types.ErrProofReplayed, "transaction already used to satisfy a previous request")
	}

	return &types.VerificationResult{
		Valid:     true,
		TxHash:    proof.TxHash,
		Payer:     payer,
		Amount:    paid.String(),
		Token:     expected.Token,
		Recipient: expected.Recipient,
	}
}

// matchTransfer looks for a decoded transfer that moved at least the
// expected amount in the expected token to the expected recipient.
func matchTransfer(transfers []clients.TokenTransfer, expected types.Expected) *clients.TokenTransfer {
	required := new(big.Int).SetUint64(expected.Amount)
	contract := strings.ToLower(expected.Token.ContractAddress())
	recipient := strings.ToLower(expected.Recipient)

	for i := range transfers {
		t := transfers[i]
		if !strings.EqualFold(t.Contract, contract) {
			continue
		}
		if recipient != "" && !strings.EqualFold(t.To, recipient) {
			continue
		}
		if t.Amount.Cmp(required) >= 0 {
			return &transfers[i]
		}
	}
	return nil
}
