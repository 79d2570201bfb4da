// Package types defines the domain model shared by every paygate
// component: settlement tokens, price quotes, challenges, proofs,
// verification results, and the gateway error taxonomy.
package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PriceQuote is the last known USD price of one base unit of a token.
// Once seeded a quote is never discarded: a failed refresh leaves the
// previous (possibly stale) quote in effect.
type PriceQuote struct {
	Token     Token           `json:"token"`
	USDPrice  decimal.Decimal `json:"usdPrice"`
	FetchedAt time.Time       `json:"fetchedAt"`
}

// PricingEntry is an immutable catalog row: the USD price to access one
// unit of a resource class and the token it settles in.
type PricingEntry struct {
	ResourceKey    string          `json:"resourceKey"`
	USDPrice       decimal.Decimal `json:"usdPrice"`
	PreferredToken Token           `json:"preferredToken"`
}

// PaymentChallenge describes what must be paid, to whom, by when. It is
// built fresh for every unpaid request and never persisted.
type PaymentChallenge struct {
	ResourceID    string `json:"resourceId"`
	Token         Token  `json:"token"`
	Amount        uint64 `json:"amount"` // smallest token unit
	Recipient     string `json:"recipient"`
	RecipientTier Tier   `json:"recipientTier"`
	Description   string `json:"description"`
	ExpiresAt     int64  `json:"expiresAt"` // unix seconds
	Nonce         string `json:"nonce"`
}

// Expired reports whether the challenge is past its expiry at the given
// instant.
func (c *PaymentChallenge) Expired(now time.Time) bool {
	return now.Unix() >= c.ExpiresAt
}

// PaymentProof is caller-supplied evidence of a prior on-ledger
// settlement. The gateway only parses and verifies it, never mutates it.
type PaymentProof struct {
	TxHash    string `json:"txHash" validate:"required,len=66,startswith=0x"`
	Payer     string `json:"payer,omitempty"`
	Amount    string `json:"amount" validate:"required,number"`
	Token     Token  `json:"token" validate:"required"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// VerificationResult is the outcome of checking one proof against the
// ledger. It is a pure function of (proof, expectations, ledger state).
type VerificationResult struct {
	Valid     bool   `json:"valid"`
	Code      string `json:"code,omitempty"` // one of the Err* taxonomy when invalid
	Reason    string `json:"reason,omitempty"`
	TxHash    string `json:"txHash,omitempty"`
	Payer     string `json:"payer,omitempty"`
	Amount    string `json:"amount,omitempty"`
	Token     Token  `json:"token,omitempty"`
	Recipient string `json:"recipient,omitempty"`
}

// Expected captures what a proof must demonstrate to satisfy a request.
type Expected struct {
	Amount    uint64 `json:"amount"` // smallest token unit
	Token     Token  `json:"token"`
	Recipient string `json:"recipient"`

	// ExpiresAt, when non-zero, binds verification to a challenge
	// expiry: proofs arriving after it fail with ErrChallengeExpired.
	ExpiresAt int64 `json:"expiresAt,omitempty"`
}

// RevenueSplit divides a verified payment between the content
// originator (the DJ) and the platform treasury. The two amounts always
// sum to the input total.
type RevenueSplit struct {
	OriginatorAmount uint64 `json:"originatorAmount"`
	TreasuryAmount   uint64 `json:"treasuryAmount"`
}

// PaymentRecord is handed to the external sink after a successful
// verification. The gate decision never blocks on it.
type PaymentRecord struct {
	ResourceID string       `json:"resourceId"`
	TxHash     string       `json:"txHash"`
	Payer      string       `json:"payer"`
	Recipient  string       `json:"recipient"`
	Token      Token        `json:"token"`
	Amount     uint64       `json:"amount"`
	Tier       Tier         `json:"tier"`
	Split      RevenueSplit `json:"split"`
	VerifiedAt time.Time    `json:"verifiedAt"`
}

// PaymentRequiredBody is the structured 402 response body.
type PaymentRequiredBody struct {
	Error        string         `json:"error"`
	Message      string         `json:"message"`
	Payment      PaymentDetails `json:"payment"`
	Instructions []string       `json:"instructions"`
}

// PaymentDetails carries everything a client needs to construct the
// settling transaction.
type PaymentDetails struct {
	Token        Token            `json:"token"`
	TokenAddress string           `json:"tokenAddress,omitempty"`
	Amount       string           `json:"amount"` // string-encoded integer, smallest unit
	Recipient    string           `json:"recipient"`
	Treasury     string           `json:"treasury"`
	Split        SplitPercentages `json:"split"`
	Description  string           `json:"description"`
	ExpiresAt    int64            `json:"expiresAt"`
	Network      string           `json:"network"`
	ChainID      uint64           `json:"chainId"`
}

// SplitPercentages is the DJ/treasury split advertised to the payer.
type SplitPercentages struct {
	DJ       int `json:"dj"`
	Treasury int `json:"treasury"`
}

// GatewayError is the typed error carried across package boundaries.
type GatewayError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error taxonomy. All of these are expected, recoverable outcomes that
// surface to the caller as a 402 with a reason, never as a 5xx.
const (
	ErrPriceFetchFailed   = "PRICE_FETCH_FAILED"
	ErrNoProofOffered     = "NO_PROOF_OFFERED"
	ErrMalformedProof     = "MALFORMED_PROOF"
	ErrTxNotFound         = "TX_NOT_FOUND"
	ErrTxFailed           = "TX_FAILED"
	ErrInsufficientAmount = "INSUFFICIENT_AMOUNT"
	ErrWrongToken         = "WRONG_TOKEN"
	ErrChallengeExpired   = "CHALLENGE_EXPIRED"
	ErrProofReplayed      = "PROOF_REPLAYED"
	ErrLedgerUnavailable  = "LEDGER_UNAVAILABLE"
)
