// Package proof parses inbound requests for evidence of a prior
// settlement. A proof arrives in the X-Payment header either as a JSON
// object or as a bare transaction hash with sibling headers filling in
// the claimed payer, amount, and token.
package proof

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/radiodial/paygate/types"
)

// Header names on the retried request.
const (
	HeaderPayment = "X-Payment"
	HeaderPayer   = "X-Payment-Payer"
	HeaderAmount  = "X-Payment-Amount"
	HeaderToken   = "X-Payment-Token"
)

// txHashPattern matches a 32-byte transaction hash: 0x followed by 64
// hex characters.
var txHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

var validate = validator.New()

// Extract pulls a payment proof out of the request headers.
//
// Returns (nil, nil) when no proof was offered at all; the orchestrator
// issues a fresh challenge. A present-but-unusable header returns a
// GatewayError with code MALFORMED_PROOF, which the orchestrator treats
// the same way but surfaces the specific code.
func Extract(h http.Header) (*types.PaymentProof, error) {
	raw := strings.TrimSpace(h.Get(HeaderPayment))
	if raw == "" {
		return nil, nil
	}

	if txHashPattern.MatchString(raw) {
		return fromBareHash(raw, h)
	}

	if strings.HasPrefix(raw, "{") {
		return fromJSON(raw)
	}

	return nil, &types.GatewayError{
		Code:    types.ErrMalformedProof,
		Message: "payment header is neither a JSON proof nor a transaction hash",
	}
}

// fromJSON parses the structured proof form.
func fromJSON(raw string) (*types.PaymentProof, error) {
	var p types.PaymentProof
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, &types.GatewayError{
			Code:    types.ErrMalformedProof,
			Message: fmt.Sprintf("failed to parse payment proof: %v", err),
		}
	}

	if p.Token != "" {
		token, err := types.ParseToken(string(p.Token))
		if err != nil {
			return nil, err
		}
		p.Token = token
	} else {
		p.Token = types.TokenRadio
	}

	if !txHashPattern.MatchString(p.TxHash) {
		return nil, &types.GatewayError{
			Code:    types.ErrMalformedProof,
			Message: fmt.Sprintf("proof txHash %q is not a transaction hash", p.TxHash),
		}
	}

	if err := validate.Struct(&p); err != nil {
		return nil, &types.GatewayError{
			Code:    types.ErrMalformedProof,
			Message: fmt.Sprintf("proof validation failed: %v", err),
		}
	}

	return &p, nil
}

// fromBareHash synthesizes a proof from a bare transaction hash and the
// sibling headers. Token defaults to RADIO, the gateway's primary
// settlement token, when unspecified.
func fromBareHash(hash string, h http.Header) (*types.PaymentProof, error) {
	token := types.TokenRadio
	if s := strings.TrimSpace(h.Get(HeaderToken)); s != "" {
		parsed, err := types.ParseToken(s)
		if err != nil {
			return nil, err
		}
		token = parsed
	}

	p := &types.PaymentProof{
		TxHash: hash,
		Payer:  strings.TrimSpace(h.Get(HeaderPayer)),
		Amount: strings.TrimSpace(h.Get(HeaderAmount)),
		Token:  token,
	}

	if err := validate.Struct(p); err != nil {
		return nil, &types.GatewayError{
			Code:    types.ErrMalformedProof,
			Message: fmt.Sprintf("proof validation failed: %v", err),
		}
	}

	return p, nil
}
