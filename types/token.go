package types

import "fmt"

// Token represents an accepted settlement token. The set is closed:
// anything outside it must be rejected at parse time, never carried
// around as a bare string.
type Token string

const (
	// TokenRadio is the platform's native token and the default
	// settlement token for station resources.
	TokenRadio Token = "RADIO"

	TokenUSDC Token = "USDC"
	TokenETH  Token = "ETH"
)

// ParseToken maps a wire string onto the closed token set.
func ParseToken(s string) (Token, error) {
	switch Token(s) {
	case TokenRadio, TokenUSDC, TokenETH:
		return Token(s), nil
	default:
		return "", &GatewayError{
			Code:    ErrMalformedProof,
			Message: fmt.Sprintf("unknown settlement token: %q", s),
		}
	}
}

func (t Token) String() string {
	return string(t)
}

// ContractAddress returns the on-ledger contract for ERC-20 tokens,
// or the empty string for the native asset.
func (t Token) ContractAddress() string {
	switch t {
	case TokenRadio:
		return "0x52ad10a4b1c6c8aa0b4e90e9b04b1b8e9c1f3d2e"
	case TokenUSDC:
		return "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"
	default:
		return ""
	}
}

// Tier is the recipient's revenue-split class. Supplied by an external
// lookup; the gateway never infers it.
type Tier string

const (
	TierFree     Tier = "free"
	TierVerified Tier = "verified"
	TierPremium  Tier = "premium"
)

// ParseTier maps a string onto the closed tier set, defaulting unknown
// values to free rather than failing: tier only affects bookkeeping,
// never the gate decision.
func ParseTier(s string) Tier {
	switch Tier(s) {
	case TierVerified, TierPremium:
		return Tier(s)
	default:
		return TierFree
	}
}
