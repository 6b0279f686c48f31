// Package series computes the derived per-bar series (spec.md §4.9):
// asset flow, assets, cash flow, cash, value, asset return, total
// profit, market value, and gross exposure. All functions are pure,
// post-hoc reductions over one column's order records and close
// prices — they never touch the live simulation state.
package series

import (
	"math"

	"backtest-core/execution"
	"backtest-core/records"
)

// DirectionFilter narrows asset flow to long-only, short-only, or both
// sides of the book.
type DirectionFilter int

const (
	Both DirectionFilter = iota
	LongOnly
	ShortOnly
)

func sideSign(side execution.Side) float64 {
	if side == execution.Buy {
		return 1
	}
	return -1
}

func fillPasses(side execution.Side, filter DirectionFilter) bool {
	switch filter {
	case LongOnly:
		return side == execution.Buy
	case ShortOnly:
		return side == execution.Sell
	default:
		return true
	}
}

// AssetFlow returns, per bar, the signed transacted size for one column
// (positive for buys, negative for sells), filtered by direction.
func AssetFlow(fills []records.OrderRecord, bars int, filter DirectionFilter) []float64 {
	flow := make([]float64, bars)
	for _, f := range fills {
		if !fillPasses(f.Side, filter) {
			continue
		}
		flow[f.Idx] += f.Size * sideSign(f.Side)
	}
	return flow
}

// Assets returns the running sum of asset flow plus the initial
// position: assets[i] is the column's position held at the close of
// bar i.
func Assets(assetFlow []float64, initPosition float64) []float64 {
	assets := make([]float64, len(assetFlow))
	running := initPosition
	for i, f := range assetFlow {
		running += f
		assets[i] = running
	}
	return assets
}

// CashFlowNonFree returns, per bar, the non-free cash flow: proceeds (or
// outlay) from fills minus fees, independent of debt/lock-cash
// bookkeeping.
func CashFlowNonFree(fills []records.OrderRecord, bars int) []float64 {
	flow := make([]float64, bars)
	for _, f := range fills {
		flow[f.Idx] += -f.Size*f.Price*sideSign(f.Side) - f.Fees
	}
	return flow
}

// CashFlowFree returns, per bar, the free cash flow: the bar-over-bar
// delta of a column's free cash (cash net of the collateral debt/lock-
// cash locks, spec.md §3.3/§4.4). Unlike CashFlowNonFree, this can't be
// reconstructed from order records alone — whether a fill locked cash
// against short-sale debt isn't part of records.OrderRecord — so it's
// derived from a running free-cash balance captured live during the run
// (simulate.Runtime.FreeCashSeries via CaptureFreeCash).
func CashFlowFree(freeCash []float64, initCash float64) []float64 {
	flow := make([]float64, len(freeCash))
	prev := initCash
	for i, fc := range freeCash {
		flow[i] = fc - prev
		prev = fc
	}
	return flow
}

// Cash accumulates a cash-flow series into a running cash balance
// starting from initCash. Grouped callers should sum per-column flows
// bar-by-bar before calling this.
func Cash(cashFlow []float64, initCash float64) []float64 {
	cash := make([]float64, len(cashFlow))
	running := initCash
	for i, f := range cashFlow {
		running += f
		cash[i] = running
	}
	return cash
}

// AssetValue returns assets[i] * close[i] per bar.
func AssetValue(assets, closes []float64) []float64 {
	out := make([]float64, len(assets))
	for i := range assets {
		out[i] = assets[i] * closes[i]
	}
	return out
}

// Value returns cash[i] + asset_value[i] per bar.
func Value(cash, assetValue []float64) []float64 {
	out := make([]float64, len(cash))
	for i := range cash {
		out[i] = cash[i] + assetValue[i]
	}
	return out
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// AssetReturn computes the per-bar return attributable to the held
// asset, net of cash flow, handling the sign change that occurs when a
// position flips direction between bars: when the previous and current
// asset value disagree in sign, the comparison bases off their
// difference rather than the (now sign-flipped) previous value.
func AssetReturn(assetValue, cashFlow []float64) []float64 {
	out := make([]float64, len(assetValue))
	prevAV := 0.0
	for i, av := range assetValue {
		cf := cashFlow[i]
		if i == 0 {
			out[i] = 0
			prevAV = av
			continue
		}
		if sign(prevAV) != sign(av) && (prevAV != 0 || av != 0) {
			base := prevAV - av
			if base == 0 {
				out[i] = 0
			} else {
				out[i] = (av - prevAV - cf) / math.Abs(base)
			}
		} else {
			if prevAV == 0 {
				out[i] = 0
			} else {
				out[i] = (av + cf - prevAV) / math.Abs(prevAV)
			}
		}
		prevAV = av
	}
	return out
}

// TotalProfit walks fills incrementally (cheaper than materializing the
// full cash/value series) and returns cash_end + assets_end*close_last -
// init_cash.
func TotalProfit(fills []records.OrderRecord, initCash, initPosition, lastClose float64) float64 {
	cash := initCash
	position := initPosition
	for _, f := range fills {
		cash += -f.Size*f.Price*sideSign(f.Side) - f.Fees
		position += f.Size * sideSign(f.Side)
	}
	return cash + position*lastClose - initCash
}

// MarketValue returns the buy-and-hold reference series:
// init_value * close[i] / close[0].
func MarketValue(initValue float64, closes []float64) []float64 {
	out := make([]float64, len(closes))
	if len(closes) == 0 || closes[0] == 0 {
		return out
	}
	for i, c := range closes {
		out[i] = initValue * c / closes[0]
	}
	return out
}

// GrossExposure returns asset_value / (asset_value + cash) per bar,
// zero when the denominator is zero.
func GrossExposure(assetValue, cash []float64) []float64 {
	out := make([]float64, len(assetValue))
	for i := range assetValue {
		denom := assetValue[i] + cash[i]
		if denom == 0 {
			out[i] = 0
			continue
		}
		out[i] = assetValue[i] / denom
	}
	return out
}
