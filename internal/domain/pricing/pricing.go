// Package pricing computes the final unit price of a product from its base
// price, its standing discount and an optional campaign discount.
//
// Discounts are sequential: the campaign discount is taken off the price that
// remains after the standing discount. Every price in the system is derived
// through FinalPrice so quoted and charged amounts agree.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	// MaxPercent is the upper bound of any discount percent.
	MaxPercent = hundred
)

// FinalPrice returns base reduced by standing percent and then by extra
// percent, rounded half up to an integer currency unit.
//
// Percents must already be within [0, 100] and base must be non-negative;
// anything else is a programming error and panics. Use ClampPercent on
// untrusted input first.
func FinalPrice(base, standing, extra decimal.Decimal) int64 {
	if base.IsNegative() {
		panic(fmt.Sprintf("pricing: negative base price %s", base))
	}
	mustPercent("standing", standing)
	mustPercent("extra", extra)

	price := applyPercent(base, standing)
	price = applyPercent(price, extra)
	return price.Round(0).IntPart()
}

// applyPercent takes pct percent off price. A zero percent leaves the price
// untouched.
func applyPercent(price, pct decimal.Decimal) decimal.Decimal {
	if pct.IsZero() {
		return price
	}
	return price.Sub(price.Mul(pct).Div(hundred))
}

func mustPercent(name string, pct decimal.Decimal) {
	if pct.IsNegative() || pct.GreaterThan(hundred) {
		panic(fmt.Sprintf("pricing: %s percent %s out of range [0,100]", name, pct))
	}
}

// ClampPercent limits pct to [0, 100].
func ClampPercent(pct decimal.Decimal) decimal.Decimal {
	switch {
	case pct.IsNegative():
		return decimal.Zero
	case pct.GreaterThan(hundred):
		return hundred
	default:
		return pct
	}
}
