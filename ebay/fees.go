package ebay

import "strings"

// DefaultFeePercent is used for store tiers that are not in the table.
const DefaultFeePercent = 13.00

// tierFees maps store subscription tiers to their final value fee for most
// categories.
var tierFees = map[string]float64{
	"NO_STORE":   13.25,
	"STARTER":    13.25,
	"BASIC":      12.90,
	"FEATURED":   12.35,
	"ANCHOR":     11.50,
	"ENTERPRISE": 10.75,
}

// FeeForTier returns the fee percentage for a store tier such as "Basic" or
// "NO STORE". An empty tier means no store subscription.
func FeeForTier(tier string) float64 {
	key := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(tier), " ", "_"))
	if key == "" {
		key = "NO_STORE"
	}
	if fee, ok := tierFees[key]; ok {
		return fee
	}
	return DefaultFeePercent
}
