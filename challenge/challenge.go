// Package challenge builds payment challenges for unpaid requests: the
// USD price of a resource converted into the settlement token at the
// current quote, with an expiry and a single-use nonce.
package challenge

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/radiodial/paygate/types"
)

// DefaultTTL is how long a challenge stays payable.
const DefaultTTL = 300 * time.Second

// Generator creates challenges. The clock is injected so expiry is
// deterministic under test.
type Generator struct {
	ttl time.Duration
	now func() time.Time
}

// NewGenerator returns a Generator with the given TTL. A zero ttl means
// DefaultTTL; a nil clock means time.Now.
func NewGenerator(ttl time.Duration, now func() time.Time) *Generator {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Generator{ttl: ttl, now: now}
}

// TokenAmount converts a USD price into base units of the settlement
// token, rounding up so truncation can never under-charge. A resource
// priced above zero USD never resolves to a zero-token amount: the
// floor is one base unit.
func TokenAmount(usdPrice, tokenUSDPrice decimal.Decimal) (uint64, error) {
	if !usdPrice.IsPositive() {
		return 0, fmt.Errorf("usd price must be positive, got %s", usdPrice)
	}
	if !tokenUSDPrice.IsPositive() {
		return 0, fmt.Errorf("token usd price must be positive, got %s", tokenUSDPrice)
	}

	units := usdPrice.Div(tokenUSDPrice).Ceil()
	if units.LessThan(decimal.NewFromInt(1)) {
		return 1, nil
	}
	if !units.IsInteger() || units.GreaterThan(decimal.NewFromUint64(^uint64(0))) {
		return 0, fmt.Errorf("token amount %s does not fit an integer unit count", units)
	}
	return units.BigInt().Uint64(), nil
}

// Create builds a fresh challenge for one concrete request.
func (g *Generator) Create(
	usdPrice, tokenUSDPrice decimal.Decimal,
	token types.Token,
	recipient string,
	tier types.Tier,
	resourceID, description string,
) (*types.PaymentChallenge, error) {
	amount, err := TokenAmount(usdPrice, tokenUSDPrice)
	if err != nil {
		return nil, err
	}

	return &types.PaymentChallenge{
		ResourceID:    resourceID,
		Token:         token,
		Amount:        amount,
		Recipient:     recipient,
		RecipientTier: tier,
		Description:   description,
		ExpiresAt:     g.now().Add(g.ttl).Unix(),
		Nonce:         uuid.NewString(),
	}, nil
}
