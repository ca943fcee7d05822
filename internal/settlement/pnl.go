package settlement

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/mselser95/polymarket-whalesim/pkg/types"
)

var one = decimal.NewFromInt(1)

// ComputePnL returns the realized PnL of a fixed-stake position settled at resolvedPrice.
//
//	BUY:  shares = stake / p,     pnl = shares * q - stake
//	SELL: shares = stake / (1-p), pnl = shares * (1-q) - stake
//
// A BUY at p == 0 and a SELL at p == 1 have no defined share count and settle at zero, as does a
// non-finite resolvedPrice.
func ComputePnL(side types.Side, entryPrice, stake decimal.Decimal, resolvedPrice float64) decimal.Decimal {
	if math.IsNaN(resolvedPrice) || math.IsInf(resolvedPrice, 0) {
		return decimal.Zero
	}
	q := decimal.NewFromFloat(resolvedPrice)

	switch side {
	case types.SideBuy:
		if entryPrice.IsZero() {
			return decimal.Zero
		}
		shares := stake.Div(entryPrice)
		return shares.Mul(q).Sub(stake)

	case types.SideSell:
		denom := one.Sub(entryPrice)
		if denom.IsZero() {
			return decimal.Zero
		}
		shares := stake.Div(denom)
		return shares.Mul(one.Sub(q)).Sub(stake)

	default:
		return decimal.Zero
	}
}
