package amortization

import (
	"time"

	"github.com/shopspring/decimal"
)

const day = 24 * time.Hour

// Withholding tax tiers, keyed on how long the bond has existed at the
// moment of the call.
var (
	taxUnder180 = decimal.RequireFromString("0.225")
	taxTo360    = decimal.RequireFromString("0.20")
	taxTo720    = decimal.RequireFromString("0.175")
	taxOver720  = decimal.RequireFromString("0.15")
)

// WithholdingRate returns the tax rate applied to interest paid at now for a
// bond issued at issue. The first tier is exclusive of day 180; the later
// tiers include their upper bound.
func WithholdingRate(issue, now time.Time) decimal.Decimal {
	held := now.Sub(issue)
	switch {
	case held < 180*day:
		return taxUnder180
	case held <= 360*day:
		return taxTo360
	case held <= 720*day:
		return taxTo720
	default:
		return taxOver720
	}
}

// netOfTax removes the withholding share from gross.
func netOfTax(gross, rate decimal.Decimal) decimal.Decimal {
	return gross.Sub(gross.Mul(rate))
}
