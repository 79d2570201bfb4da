// Package split computes the DJ/treasury revenue split for verified
// payments. Pure arithmetic: no I/O, no randomness.
package split

import "github.com/radiodial/paygate/types"

// Originator percentages per tier. The treasury share is always the
// complement, taken as total minus the originator amount so integer
// remainders land in the treasury and nothing is lost.
var originatorPercent = map[types.Tier]uint64{
	types.TierFree:     60,
	types.TierVerified: 70,
	types.TierPremium:  80,
}

// Percentages returns the advertised originator/treasury percentages
// for a tier.
func Percentages(tier types.Tier) types.SplitPercentages {
	p := originatorPercent[normalize(tier)]
	return types.SplitPercentages{DJ: int(p), Treasury: int(100 - p)}
}

// Calculate splits total between originator and treasury. The
// originator amount is floored; the treasury absorbs the remainder, so
// OriginatorAmount + TreasuryAmount == total for every input.
func Calculate(total uint64, tier types.Tier) types.RevenueSplit {
	pct := originatorPercent[normalize(tier)]
	originator := total / 100 * pct
	// Recover the sub-100 remainder lost by dividing first. Dividing
	// first keeps total*pct from overflowing uint64 for large totals.
	originator += total % 100 * pct / 100
	return types.RevenueSplit{
		OriginatorAmount: originator,
		TreasuryAmount:   total - originator,
	}
}

func normalize(tier types.Tier) types.Tier {
	if _, ok := originatorPercent[tier]; !ok {
		return types.TierFree
	}
	return tier
}
