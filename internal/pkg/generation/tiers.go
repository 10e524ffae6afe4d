package generation

import (
	"errors"
	"strings"
)

// Service tiers and their credit costs.
const (
	TierStandard = "standard"
	TierPremium  = "premium"
)

var ErrUnknownTier = errors.New("unknown generation tier")

var tierCosts = map[string]int64{
	TierStandard: 1,
	TierPremium:  2,
}

// CostForTier returns the credit cost of one generation at the given tier.
func CostForTier(tier string) (int64, error) {
	cost, ok := tierCosts[strings.ToLower(strings.TrimSpace(tier))]
	if !ok {
		return 0, ErrUnknownTier
	}
	return cost, nil
}
