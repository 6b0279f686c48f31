package execution

import (
	"math"
	"math/rand"

	"backtest-core/internal/simerrors"
	"backtest-core/numeric"
)

// Execute computes the filled size, fill price, fees and post-trade
// state for one order against one bar's price area. It is pure given
// its inputs and the supplied RNG stream (used only for RejectProb):
// same state + order + area + rng sequence always yields the same
// result, which is what lets parallel group execution stay
// deterministic (spec.md §5).
func Execute(state State, order Order, area PriceArea, rng *rand.Rand) (State, Result, error) {
	if err := validateState(state); err != nil {
		return state, Result{}, err
	}
	if err := validateOrder(order); err != nil {
		return state, Result{}, err
	}
	if err := validatePriceArea(area); err != nil {
		return state, Result{}, err
	}
	if order.Direction == LongOnly && numeric.IsLess(state.Position, 0, numeric.DefaultRelTol, numeric.DefaultAbsTol) {
		return state, Result{}, simerrors.NewStateError("LongOnly direction with short position %v", state.Position)
	}
	if order.Direction == ShortOnly && state.Position > 0 && !numeric.IsCloseDefault(state.Position, 0) {
		return state, Result{}, simerrors.NewStateError("ShortOnly direction with long position %v", state.Position)
	}

	price, isClosingPrice, ignore := resolvePrice(order.Price, area)
	if ignore {
		return state, ignoredResult(PriceNaN), nil
	}

	size, percent, hasPercent, ignoreInfo, rejectInfo, err := normalizeSize(order, state)
	if err != nil {
		return state, Result{}, err
	}
	if ignoreInfo != InfoNone {
		return state, ignoredResult(ignoreInfo), nil
	}
	if rejectInfo != InfoNone {
		r, err := rejectedResult(order, rejectInfo)
		return state, r, err
	}
	if math.IsNaN(size) {
		return state, ignoredResult(SizeNaN), nil
	}

	var newState State
	var result Result
	switch {
	case size > 0:
		newState, result, err = executeBuy(state, order, size, percent, hasPercent, price, isClosingPrice, area)
	case size < 0:
		newState, result, err = executeSell(state, order, -size, percent, hasPercent, price, isClosingPrice, area)
	default:
		return state, ignoredResult(SizeZero), nil
	}
	if err != nil {
		return state, Result{}, err
	}
	if result.Status != Filled {
		if result.Status == Rejected && order.RaiseReject {
			return state, result, simerrors.NewRejectedOrderError(result.Info.String())
		}
		return state, result, nil
	}

	if order.RejectProb > 0 && rng != nil && rng.Float64() < order.RejectProb {
		rejected := Result{Size: math.NaN(), Price: result.Price, Side: result.Side, Status: Rejected, Info: RandomEvent}
		if order.RaiseReject {
			return state, rejected, simerrors.NewRejectedOrderError(rejected.Info.String())
		}
		return state, rejected, nil
	}

	return newState, result, nil
}

func ignoredResult(info StatusInfo) Result {
	return Result{Size: math.NaN(), Price: math.NaN(), Status: Ignored, Info: info}
}

func rejectedResult(order Order, info StatusInfo) (Result, error) {
	r := Result{Size: math.NaN(), Price: math.NaN(), Status: Rejected, Info: info}
	if order.RaiseReject {
		return r, simerrors.NewRejectedOrderError(info.String())
	}
	return r, nil
}

func validateState(s State) error {
	if math.IsNaN(s.Cash) || s.Cash < 0 {
		return simerrors.NewStateError("cash must be non-negative and not NaN, got %v", s.Cash)
	}
	if math.IsInf(s.Position, 0) || math.IsNaN(s.Position) {
		return simerrors.NewStateError("position must be finite, got %v", s.Position)
	}
	if math.IsNaN(s.Debt) || math.IsInf(s.Debt, 0) || s.Debt < 0 {
		return simerrors.NewStateError("debt must be finite and non-negative, got %v", s.Debt)
	}
	if math.IsNaN(s.FreeCash) {
		return simerrors.NewStateError("free_cash must not be NaN")
	}
	return nil
}

func validateOrder(o Order) error {
	if o.Fees < 0 || math.IsNaN(o.Fees) || math.IsInf(o.Fees, 0) {
		return simerrors.NewConfigError("fees must be finite and non-negative, got %v", o.Fees)
	}
	if o.FixedFees < 0 || math.IsNaN(o.FixedFees) || math.IsInf(o.FixedFees, 0) {
		return simerrors.NewConfigError("fixed_fees must be finite and non-negative, got %v", o.FixedFees)
	}
	if o.Slippage < 0 || math.IsNaN(o.Slippage) || math.IsInf(o.Slippage, 0) {
		return simerrors.NewConfigError("slippage must be finite and non-negative, got %v", o.Slippage)
	}
	if o.MinSize < 0 || math.IsNaN(o.MinSize) {
		return simerrors.NewConfigError("min_size must be non-negative, got %v", o.MinSize)
	}
	if math.IsNaN(o.MaxSize) || o.MaxSize <= 0 {
		return simerrors.NewConfigError("max_size must be positive and not NaN, got %v", o.MaxSize)
	}
	if !math.IsNaN(o.SizeGranularity) && (o.SizeGranularity <= 0 || math.IsInf(o.SizeGranularity, 0)) {
		return simerrors.NewConfigError("size_granularity must be NaN or finite positive, got %v", o.SizeGranularity)
	}
	if o.RejectProb < 0 || o.RejectProb > 1 || math.IsNaN(o.RejectProb) {
		return simerrors.NewConfigError("reject_prob must be in [0,1], got %v", o.RejectProb)
	}
	return nil
}

func validatePriceArea(a PriceArea) error {
	for _, v := range []float64{a.Open, a.High, a.Low, a.Close} {
		if math.IsNaN(v) {
			continue
		}
		if math.IsInf(v, 0) || v <= 0 {
			return simerrors.NewConfigError("price_area fields must be NaN or finite positive, got %v", v)
		}
	}
	return nil
}

// ResolveOrderPrice applies the +Inf=close / -Inf=open sentinels to an
// order's nominal price. Callers outside this package that need the
// order's requested reference price (e.g. a stop's StopEntryPrice=Price
// mode) rather than its post-fill price use this instead of reaching
// into Result.
func ResolveOrderPrice(price float64, area PriceArea) float64 {
	resolved, _, _ := resolvePrice(price, area)
	return resolved
}

// resolvePrice applies the +Inf=close / -Inf=open sentinels. ignore is
// true when the resolved price is NaN (Ignored/PriceNaN).
func resolvePrice(price float64, area PriceArea) (resolved float64, isClosingPrice bool, ignore bool) {
	switch {
	case math.IsInf(price, 1):
		return area.Close, true, math.IsNaN(area.Close)
	case math.IsInf(price, -1):
		return area.Open, false, math.IsNaN(area.Open)
	default:
		return price, false, math.IsNaN(price)
	}
}

// normalizeSize applies spec.md §4.3's size-type normalization pipeline
// in order. It returns either an Ignored/Rejected reason, or a resolved
// signed Amount size (positive=buy, negative=sell) plus an optional
// percent flag used later to scale the buy/sell cash or size limit.
func normalizeSize(order Order, state State) (size, percent float64, hasPercent bool, ignoreInfo, rejectInfo StatusInfo, err error) {
	size = order.Size
	sizeType := order.SizeType

	if order.Direction == ShortOnly {
		size = -size
	}

	if sizeType == TargetPercent {
		if math.IsNaN(state.Value) {
			return 0, 0, false, ValueNaN, InfoNone, nil
		}
		if state.Value <= 0 {
			return 0, 0, false, InfoNone, ValueZeroNeg, nil
		}
		size = size * state.Value
		sizeType = TargetValue
	}

	if sizeType == Value || sizeType == TargetValue {
		if math.IsNaN(state.ValPrice) {
			return 0, 0, false, ValPriceNaN, InfoNone, nil
		}
		size = size / state.ValPrice
		if sizeType == Value {
			sizeType = Amount
		} else {
			sizeType = TargetAmount
		}
	}

	if sizeType == TargetAmount {
		size = size - state.Position
		sizeType = Amount
	}

	if sizeType == Amount && math.IsInf(size, 0) && (order.Direction == ShortOnly || order.Direction == Both) {
		sign := 1.0
		if size < 0 {
			sign = -1.0
		}
		size = sign
		sizeType = Percent
	}

	if sizeType == Percent {
		percent = math.Abs(size)
		hasPercent = true
		if size < 0 {
			size = math.Inf(-1)
		} else {
			size = math.Inf(1)
		}
	}

	if math.IsNaN(size) {
		return 0, 0, false, SizeNaN, InfoNone, nil
	}
	return size, percent, hasPercent, InfoNone, InfoNone, nil
}

func avgShortEntryPrice(s State) float64 {
	if s.Position < 0 {
		return s.Debt / -s.Position
	}
	return 0
}

func clampToPriceArea(price float64, area PriceArea, isClosingPrice bool, side Side, mode PriceAreaVioMode) (float64, error) {
	if mode == VioIgnore {
		return price, nil
	}
	lo, hi := area.Low, area.High
	if math.IsNaN(lo) {
		lo = math.Inf(-1)
	}
	if math.IsNaN(hi) {
		hi = math.Inf(1)
	}
	if isClosingPrice && !math.IsNaN(area.Close) {
		if side == Buy {
			hi = math.Min(hi, area.Close)
		} else {
			lo = math.Max(lo, area.Close)
		}
	}
	violated := price < lo || price > hi
	if !violated {
		return price, nil
	}
	if mode == VioError {
		return price, simerrors.NewStateError("price %v violates price area [%v, %v]", price, lo, hi)
	}
	// VioCap
	if price < lo {
		return lo, nil
	}
	return hi, nil
}

func executeBuy(state State, order Order, size, percent float64, hasPercent bool, price float64, isClosingPrice bool, area PriceArea) (State, Result, error) {
	if order.Direction == ShortOnly {
		maxCover := math.Max(-state.Position, 0)
		size = math.Min(size, maxCover)
		if size <= 0 || numeric.IsCloseDefault(size, 0) {
			return state, ignoredResult(NoOpenPosition), nil
		}
	}

	adjPrice := price * (1 + order.Slippage)
	adjPrice, err := clampToPriceArea(adjPrice, area, isClosingPrice, Buy, order.PriceAreaVioMode)
	if err != nil {
		return state, Result{}, err
	}

	var limit float64
	if !order.LockCash {
		limit = state.Cash
	} else if state.Position >= 0 {
		limit = state.FreeCash
	} else {
		limit = state.FreeCash + 2*state.Debt
		if limit < 0 {
			limit = 0
		}
	}
	if hasPercent {
		limit = limit * percent
	}
	limit = math.Min(limit, state.Cash)
	if limit < 0 {
		limit = 0
	}
	if limit <= 0 || numeric.IsCloseDefault(limit, 0) {
		return state, ignoredResult(NoCashLong), nil
	}

	if size > order.MaxSize && !numeric.IsCloseDefault(size, order.MaxSize) {
		if !order.AllowPartial {
			r, err := rejectedResult(order, MaxSizeExceeded)
			return state, r, err
		}
		size = order.MaxSize
	}

	requiredCash := size*adjPrice*(1+order.Fees) + order.FixedFees
	partial := false
	if requiredCash > limit && !numeric.IsCloseDefault(requiredCash, limit) {
		if math.IsInf(requiredCash, 1) && math.IsInf(state.Cash, 1) {
			return state, Result{}, simerrors.NewInfeasibleOrderError("infinite long against infinite cash")
		}
		maxReqCash := (limit - order.FixedFees) / (1 + order.Fees)
		if maxReqCash <= 0 || numeric.IsCloseDefault(maxReqCash, 0) {
			r, err := rejectedResult(order, CantCoverFees)
			return state, r, err
		}
		size = maxReqCash / adjPrice
		partial = true
		requiredCash = size*adjPrice*(1+order.Fees) + order.FixedFees
	}

	if !math.IsNaN(order.SizeGranularity) {
		granSize := math.Floor(size/order.SizeGranularity) * order.SizeGranularity
		if !numeric.IsCloseDefault(granSize, size) {
			partial = true
		}
		size = granSize
		requiredCash = size*adjPrice*(1+order.Fees) + order.FixedFees
	}

	if size < order.MinSize && !numeric.IsCloseDefault(size, order.MinSize) {
		return state, ignoredResult(MinSizeNotReached), nil
	}
	if partial && !order.AllowPartial {
		return state, ignoredResult(PartialFill), nil
	}
	if size <= 0 || numeric.IsCloseDefault(size, 0) {
		return state, ignoredResult(SizeZero), nil
	}

	fees := size*adjPrice*order.Fees + order.FixedFees
	requiredCash = size*adjPrice + fees

	newCash := numeric.AddDefault(state.Cash, -requiredCash)
	newPosition := numeric.AddDefault(state.Position, size)

	newDebt := state.Debt
	if state.Position < 0 {
		coverSize := math.Min(size, -state.Position)
		newDebt = numeric.AddDefault(state.Debt, -coverSize*avgShortEntryPrice(state))
		if newDebt < 0 {
			newDebt = 0
		}
	}

	var newFreeCash float64
	if state.Position >= 0 {
		newFreeCash = newCash
	} else {
		newFreeCash = newCash - 2*newDebt
	}

	newState := State{Cash: newCash, Position: newPosition, Debt: newDebt, FreeCash: newFreeCash, ValPrice: state.ValPrice, Value: state.Value}
	result := Result{Size: size, Price: adjPrice, Fees: fees, Side: Buy, Status: Filled, Info: InfoNone}
	if partial {
		result.Info = PartialFill
	}
	return newState, result, nil
}

func executeSell(state State, order Order, size, percent float64, hasPercent bool, price float64, isClosingPrice bool, area PriceArea) (State, Result, error) {
	if order.Direction == LongOnly {
		maxSellable := math.Max(state.Position, 0)
		size = math.Min(size, maxSellable)
		if size <= 0 || numeric.IsCloseDefault(size, 0) {
			return state, ignoredResult(NoOpenPosition), nil
		}
	}

	adjPrice := price * (1 - order.Slippage)
	adjPrice, err := clampToPriceArea(adjPrice, area, isClosingPrice, Sell, order.PriceAreaVioMode)
	if err != nil {
		return state, Result{}, err
	}

	lockEffective := order.LockCash || (math.IsInf(order.Size, 0) && hasPercent)
	if lockEffective {
		longPortion := math.Max(state.Position, 0)
		maxShort := 0.0
		denom := adjPrice * (1 + order.Fees)
		if denom > 0 {
			maxShort = (state.FreeCash - order.FixedFees) / denom
			if maxShort < 0 {
				maxShort = 0
			}
		}
		maxSellable := longPortion + maxShort
		if hasPercent {
			maxSellable = maxSellable * percent
		}
		size = math.Min(size, maxSellable)
	}
	if size <= 0 || numeric.IsCloseDefault(size, 0) {
		return state, ignoredResult(NoCashShort), nil
	}

	if size > order.MaxSize && !numeric.IsCloseDefault(size, order.MaxSize) {
		if !order.AllowPartial {
			r, err := rejectedResult(order, MaxSizeExceeded)
			return state, r, err
		}
		size = order.MaxSize
	}

	partial := false
	fees := size*adjPrice*order.Fees + order.FixedFees
	netProceeds := size*adjPrice - fees
	if netProceeds < 0 && !numeric.IsCloseDefault(netProceeds, 0) {
		r, err := rejectedResult(order, CantCoverFees)
		return state, r, err
	}

	if !math.IsNaN(order.SizeGranularity) {
		granSize := math.Floor(size/order.SizeGranularity) * order.SizeGranularity
		if !numeric.IsCloseDefault(granSize, size) {
			partial = true
		}
		size = granSize
		fees = size*adjPrice*order.Fees + order.FixedFees
		netProceeds = size*adjPrice - fees
	}

	if size < order.MinSize && !numeric.IsCloseDefault(size, order.MinSize) {
		return state, ignoredResult(MinSizeNotReached), nil
	}
	if partial && !order.AllowPartial {
		return state, ignoredResult(PartialFill), nil
	}
	if size <= 0 || numeric.IsCloseDefault(size, 0) {
		return state, ignoredResult(SizeZero), nil
	}

	newCash := numeric.AddDefault(state.Cash, netProceeds)
	newPosition := numeric.AddDefault(state.Position, -size)

	longPortion := math.Max(state.Position, 0)
	soldFromLong := math.Min(size, longPortion)
	shortAdded := size - soldFromLong
	shortValue := shortAdded * adjPrice
	newDebt := numeric.AddDefault(state.Debt, shortValue)
	newFreeCash := state.FreeCash + netProceeds - 2*shortValue

	newState := State{Cash: newCash, Position: newPosition, Debt: newDebt, FreeCash: newFreeCash, ValPrice: state.ValPrice, Value: state.Value}
	result := Result{Size: size, Price: adjPrice, Fees: fees, Side: Sell, Status: Filled, Info: InfoNone}
	if partial {
		result.Info = PartialFill
	}
	return newState, result, nil
}
