// Package stop implements the per-column stop-loss / trailing-stop /
// take-profit state machine (spec.md §4.4). It is grounded on the same
// shape as a position-keyed stop-loss tracker: registers hold the
// reference price and fraction for SL and TP, updated as positions
// open, grow, reverse, or close.
package stop

import (
	"math"

	"backtest-core/execution"
	"backtest-core/internal/simerrors"
)

// PositionDirection is the side of the open position the registers track.
type PositionDirection int

const (
	Long PositionDirection = iota
	Short
)

// EntryPriceMode selects the reference price used when (re)arming SL/TP.
type EntryPriceMode int

const (
	EntryValPrice EntryPriceMode = iota
	EntryPrice
	EntryFillPrice
	EntryClose
)

// ExitPriceMode selects the fill price used when a stop fires.
type ExitPriceMode int

const (
	ExitStopMarket ExitPriceMode = iota
	ExitStopLimit
	ExitClose
)

// UpdateMode controls how SL/TP fractions change when a position grows
// in the same direction.
type UpdateMode int

const (
	Keep UpdateMode = iota
	Override
	OverrideNaN
)

// ChangeKind classifies how a new order affects the tracked position,
// driving which stop-update policy branch applies.
type ChangeKind int

const (
	OpenedOrReversed ChangeKind = iota
	GrownSameDirection
	Closed
)

// Registers holds one column's stop state across bars.
type Registers struct {
	InitSLBar   int
	InitSLPrice float64
	SLBar       int
	SLPrice     float64 // current reference price (trails peak/trough)
	SLStop      float64 // fraction, NaN = disarmed
	SLTrail     bool
	InitTPBar   int
	InitTPPrice float64
	TPStop      float64 // fraction, NaN = disarmed
}

// NewRegisters returns disarmed registers.
func NewRegisters() Registers {
	return Registers{
		InitSLBar: -1, SLBar: -1, InitTPBar: -1,
		InitSLPrice: math.NaN(), SLPrice: math.NaN(), SLStop: math.NaN(),
		InitTPPrice: math.NaN(), TPStop: math.NaN(),
	}
}

// FillGaps applies spec.md's NaN fill-in rules: open defaults to close;
// low/high are derived from whichever of open/close is present when
// missing.
func FillGaps(area execution.PriceArea) execution.PriceArea {
	out := area
	if math.IsNaN(out.Open) {
		out.Open = out.Close
	}
	if math.IsNaN(out.Low) {
		out.Low = math.Min(out.Open, out.Close)
	}
	if math.IsNaN(out.High) {
		out.High = math.Max(out.Open, out.Close)
	}
	return out
}

// Hit reports whether a stop at reference price ref with fraction stop
// fires on bar i given OHLC, and at what price it fills. hitUp selects
// whether the trigger price is approached from below (price rising
// through it, as with a long take-profit or short stop-loss) or from
// above (price falling through it, as with a long stop-loss or short
// take-profit).
func Hit(ref, stopFrac float64, hitUp bool, area execution.PriceArea) (fired bool, triggerPrice, fillPrice float64) {
	if stopFrac < 0 || math.IsNaN(stopFrac) || math.IsNaN(ref) {
		return false, math.NaN(), math.NaN()
	}
	area = FillGaps(area)
	if hitUp {
		triggerPrice = ref * (1 + stopFrac)
		if area.Open >= triggerPrice {
			return true, triggerPrice, area.Open
		}
		if area.Low <= triggerPrice && triggerPrice <= area.High {
			return true, triggerPrice, triggerPrice
		}
		return false, triggerPrice, math.NaN()
	}
	triggerPrice = ref * (1 - stopFrac)
	if area.Open <= triggerPrice {
		return true, triggerPrice, area.Open
	}
	if area.Low <= triggerPrice && triggerPrice <= area.High {
		return true, triggerPrice, triggerPrice
	}
	return false, triggerPrice, math.NaN()
}

// CheckStopLoss reports whether the registered SL fires on bar i.
func (r *Registers) CheckStopLoss(dir PositionDirection, area execution.PriceArea) (fired bool, triggerPrice, fillPrice float64) {
	if math.IsNaN(r.SLStop) {
		return false, math.NaN(), math.NaN()
	}
	hitUp := dir == Short // short SL fires on price rising
	return Hit(r.SLPrice, r.SLStop, hitUp, area)
}

// CheckTakeProfit reports whether the registered TP fires on bar i. TP
// uses the opposite comparison direction from SL for the same position
// side.
func (r *Registers) CheckTakeProfit(dir PositionDirection, area execution.PriceArea) (fired bool, triggerPrice, fillPrice float64) {
	if math.IsNaN(r.TPStop) {
		return false, math.NaN(), math.NaN()
	}
	hitUp := dir == Long // long TP fires on price rising
	return Hit(r.InitTPPrice, r.TPStop, hitUp, area)
}

// UpdateTrailing advances the SL reference price toward the bar's
// favorable extreme, called after stop-hit checks for the same bar so
// a trailing stop cannot dodge its own trigger.
func (r *Registers) UpdateTrailing(dir PositionDirection, i int, area execution.PriceArea) {
	if !r.SLTrail || math.IsNaN(r.SLStop) {
		return
	}
	area = FillGaps(area)
	if dir == Long {
		if area.High > r.SLPrice {
			r.SLPrice = area.High
			r.SLBar = i
		}
	} else {
		if area.Low < r.SLPrice {
			r.SLPrice = area.Low
			r.SLBar = i
		}
	}
}

// ResolveEntryRef picks the reference price used to (re)arm SL/TP.
func ResolveEntryRef(mode EntryPriceMode, valPrice, orderPrice, fillPrice, close float64) float64 {
	switch mode {
	case EntryValPrice:
		return valPrice
	case EntryPrice:
		return orderPrice
	case EntryFillPrice:
		return fillPrice
	case EntryClose:
		return close
	default:
		return close
	}
}

// OnPositionChange applies the stop-update policy (spec.md §4.4) for a
// position-affecting fill on bar i.
func (r *Registers) OnPositionChange(kind ChangeKind, i int, entryRef, slStop, tpStop float64, trail bool, mode UpdateMode) {
	switch kind {
	case OpenedOrReversed:
		r.InitSLBar, r.InitSLPrice = i, entryRef
		r.SLBar, r.SLPrice = i, entryRef
		r.SLStop = slStop
		r.SLTrail = trail
		r.InitTPBar, r.InitTPPrice = i, entryRef
		r.TPStop = tpStop
	case GrownSameDirection:
		switch mode {
		case Keep:
			// registers unchanged
		case Override:
			if !math.IsNaN(slStop) {
				r.SLStop = slStop
			}
			if !math.IsNaN(tpStop) {
				r.TPStop = tpStop
			}
		case OverrideNaN:
			r.SLStop = slStop
			r.TPStop = tpStop
		}
	case Closed:
		*r = NewRegisters()
	}
}

// ExitFillPrice computes the fill price for a firing stop, given the
// side that closes the position (Sell closes a long, Buy closes a short).
func ExitFillPrice(mode ExitPriceMode, triggerPrice, close, slippage float64, closingSide execution.Side) float64 {
	adjust := func(p float64) float64 {
		if closingSide == execution.Sell {
			return p * (1 - slippage)
		}
		return p * (1 + slippage)
	}
	switch mode {
	case ExitStopMarket:
		return adjust(triggerPrice)
	case ExitStopLimit:
		return triggerPrice
	case ExitClose:
		return adjust(close)
	default:
		return adjust(triggerPrice)
	}
}

// ValidateStopFraction is a defensive check callers can use before
// constructing registers from user-supplied parameters.
func ValidateStopFraction(stop float64) error {
	if math.IsNaN(stop) {
		return nil
	}
	if stop < 0 {
		return simerrors.NewConfigError("stop fraction must be >= 0, got %v", stop)
	}
	return nil
}
