package paygate

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/radiodial/paygate/proof"
	"github.com/radiodial/paygate/split"
	"github.com/radiodial/paygate/types"
)

// Response headers on a 402.
const (
	HeaderPaymentRequired = "X-Payment-Required"
	HeaderToken           = "X-Payment-Token"
	HeaderAmount          = "X-Payment-Amount"
	HeaderRecipient       = "X-Payment-Recipient"
	HeaderExpires         = "X-Payment-Expires"
	HeaderResource        = "X-Payment-Resource"
)

// RequirePayment wraps next with the payment gate. Per request:
//
//	unpriced or bypassed          -> passthrough
//	priced, no proof              -> 402 with a fresh challenge
//	priced, proof present         -> verify, then passthrough or 402
//	                                 carrying the verification error
//	priced, challenge unbuildable -> 402, never a free passthrough
//
// Verification always completes before next runs; there is no
// speculative forwarding. Split bookkeeping is a side effect handed to
// the recorder, never part of the gate decision.
func (g *Gateway) RequirePayment(resolve ResolveFunc, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route, priced := resolve(r)
		if !priced {
			next.ServeHTTP(w, r)
			return
		}
		if g.bypass != nil && g.bypass(r) {
			next.ServeHTTP(w, r)
			return
		}

		entry, ok := g.catalog.Lookup(route.ResourceKey)
		if !ok {
			// Not in the catalog means not priced. Forward untouched.
			next.ServeHTTP(w, r)
			return
		}

		resourceID := fmt.Sprintf("%s %s", r.Method, r.URL.Path)

		ch, err := g.challengeFor(r.Context(), entry, route, resourceID)
		if err != nil {
			// The resource is priced but no challenge could be built
			// from the current quote. Fail closed: serving it free
			// would waive the price.
			g.log.Error("failed to build challenge", map[string]any{
				"resource": resourceID,
				"error":    err.Error(),
			})
			g.writeUnpriceable(w, resourceID)
			return
		}

		pr, perr := proof.Extract(r.Header)
		if perr != nil {
			g.writePaymentRequired(w, ch, route, types.ErrMalformedProof, gatewayMessage(perr))
			return
		}
		if pr == nil {
			g.writePaymentRequired(w, ch, route, types.ErrNoProofOffered, "payment required to access this resource")
			return
		}

		result := g.verifier.Verify(r.Context(), pr, types.Expected{
			Amount:    ch.Amount,
			Token:     ch.Token,
			Recipient: ch.Recipient,
		})
		if !result.Valid {
			g.writePaymentRequired(w, ch, route, result.Code, result.Reason)
			return
		}

		g.record(types.PaymentRecord{
			ResourceID: resourceID,
			TxHash:     result.TxHash,
			Payer:      result.Payer,
			Recipient:  ch.Recipient,
			Token:      ch.Token,
			Amount:     ch.Amount,
			Tier:       route.Tier,
			Split:      split.Calculate(ch.Amount, route.Tier),
			VerifiedAt: g.now(),
		})

		g.log.Debug("payment verified, forwarding request", map[string]any{
			"resource": resourceID,
			"txHash":   result.TxHash,
		})
		next.ServeHTTP(w, r)
	})
}

// writePaymentRequired emits the structured 402 response. The payment
// details are always present so a rejected payer can settle correctly
// on retry; the error code tells them whether to pay, pay more, or pay
// in the right token.
func (g *Gateway) writePaymentRequired(w http.ResponseWriter, ch *types.PaymentChallenge, route Route, code, message string) {
	pct := split.Percentages(route.Tier)
	amount := strconv.FormatUint(ch.Amount, 10)
	g.rec.IncCounter("payment_required", map[string]string{"outcome": code})

	w.Header().Set(HeaderPaymentRequired, "true")
	w.Header().Set(HeaderToken, ch.Token.String())
	w.Header().Set(HeaderAmount, amount)
	w.Header().Set(HeaderRecipient, ch.Recipient)
	w.Header().Set(HeaderExpires, strconv.FormatInt(ch.ExpiresAt, 10))
	w.Header().Set(HeaderResource, ch.ResourceID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)

	body := types.PaymentRequiredBody{
		Error:   code,
		Message: message,
		Payment: types.PaymentDetails{
			Token:        ch.Token,
			TokenAddress: ch.Token.ContractAddress(),
			Amount:       amount,
			Recipient:    ch.Recipient,
			Treasury:     g.cfg.TreasuryAddress,
			Split:        pct,
			Description:  ch.Description,
			ExpiresAt:    ch.ExpiresAt,
			Network:      g.cfg.Network.String(),
			ChainID:      g.cfg.Network.ChainID(),
		},
		Instructions: []string{
			fmt.Sprintf("Send %s %s to %s on %s before %d.", amount, ch.Token, ch.Recipient, g.cfg.Network, ch.ExpiresAt),
			fmt.Sprintf("Retry the request with the transaction hash in the %s header.", proof.HeaderPayment),
			fmt.Sprintf("Optionally include %s, %s and %s headers when sending a bare hash.", proof.HeaderPayer, proof.HeaderAmount, proof.HeaderToken),
		},
	}

	if err := json.NewEncoder(w).Encode(body); err != nil {
		g.log.Error("failed to encode 402 body", map[string]any{"error": err.Error()})
	}
}

// writeUnpriceable emits a 402 without payment details, for the edge
// where a priced resource has no constructible challenge. The payer can
// retry once the quote recovers.
func (g *Gateway) writeUnpriceable(w http.ResponseWriter, resourceID string) {
	g.rec.IncCounter("payment_required", map[string]string{"outcome": types.ErrPriceFetchFailed})

	w.Header().Set(HeaderPaymentRequired, "true")
	w.Header().Set(HeaderResource, resourceID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)

	body := types.PaymentRequiredBody{
		Error:   types.ErrPriceFetchFailed,
		Message: "resource is priced but no payment challenge could be constructed, retry later",
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		g.log.Error("failed to encode 402 body", map[string]any{"error": err.Error()})
	}
}

func gatewayMessage(err error) string {
	if gerr, ok := err.(*types.GatewayError); ok {
		return gerr.Message
	}
	return err.Error()
}
