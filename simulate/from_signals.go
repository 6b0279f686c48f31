package simulate

import (
	"math"
	"math/rand"

	"backtest-core/execution"
	"backtest-core/numeric"
	"backtest-core/signal"
	"backtest-core/stop"
)

// SignalSource reads the four direction-aware booleans for bar i, column col.
type SignalSource func(i, col int) signal.Signals

// SignalConfigSource reads the conflict/accumulation/opposite-entry
// configuration for bar i, column col (parameters may vary per bar).
type SignalConfigSource func(i, col int) signal.Config

// StopParams is one bar's stop configuration for a column.
type StopParams struct {
	SLStop         float64 // NaN = disarmed
	TPStop         float64
	Trail          bool
	EntryPriceMode stop.EntryPriceMode
	ExitPriceMode  stop.ExitPriceMode
	UpdateMode     stop.UpdateMode
	StopExitMode   signal.StopExitMode
	Priority       signal.SignalPriority
}

// StopParamsSource reads stop configuration for bar i, column col.
type StopParamsSource func(i, col int) StopParams

// FromSignalsInputs parameterizes the from-signals driver.
type FromSignalsInputs struct {
	Runtime       *Runtime
	CallSeq       [][]int
	AutoCallSeq   bool
	SegmentMask   [][]bool
	FfillValPrice bool
	Signals       SignalSource
	SignalConfig  SignalConfigSource
	StopParamsOf  StopParamsSource
	Prices        OHLCSource
	StopRegs      []stop.Registers // length cols, mutated in place
	Fees          float64
	FixedFees     float64
	Slippage      float64
	RNG           *rand.Rand
}

func positionSideOf(position float64) signal.PositionSide {
	if numeric.IsCloseDefault(position, 0) {
		return signal.Flat
	}
	if position > 0 {
		return signal.LongSide
	}
	return signal.ShortSide
}

// SimulateFromSignals runs the from-signals driver (spec.md §4.6): each
// bar, check the stop state machine, resolve user signals, and submit
// at most one order per column, with stop-vs-user priority resolved by
// SignalPriority.
func SimulateFromSignals(in FromSignalsInputs) error {
	rt := in.Runtime
	for i := 0; i < rt.Bars; i++ {
		for g := range rt.Groups {
			gr := &rt.Groups[g]
			active := in.SegmentMask == nil || in.SegmentMask[i][g]

			for j := 0; j < gr.Len; j++ {
				col := gr.Start + j
				cs := &gr.Columns[j]
				area := in.Prices(i, col)
				cs.ValPrice = RefreshValPrice(cs.ValPrice, area.Open, in.FfillValPrice)
			}
			rt.RecomputeGroupValue(g)
			for j := 0; j < gr.Len; j++ {
				cs := &gr.Columns[j]
				cs.Return = RecomputeReturn(valueOf(gr, j), cs.PrevCloseValue)
			}

			if !active {
				continue
			}

			orders := make([]execution.Order, gr.Len)
			haveOrder := make([]bool, gr.Len)

			for j := 0; j < gr.Len; j++ {
				col := gr.Start + j
				cs := &gr.Columns[j]
				area := in.Prices(i, col)
				pos := positionSideOf(cs.Position)
				sp := in.StopParamsOf(i, col)

				var stopIntent signal.Intent
				stopExitPrice := math.NaN()
				if pos != signal.Flat {
					regs := &in.StopRegs[col]
					slFired, slTrigger, _ := regs.CheckStopLoss(stopPosDir(pos), area)
					tpFired, tpTrigger, _ := regs.CheckTakeProfit(stopPosDir(pos), area)
					var fired bool
					var trigger float64
					if slFired {
						fired, trigger = true, slTrigger
					} else if tpFired {
						fired, trigger = true, tpTrigger
					}
					if fired {
						closingSide := execution.Sell
						if pos == signal.ShortSide {
							closingSide = execution.Buy
						}
						exitPrice := stop.ExitFillPrice(sp.ExitPriceMode, trigger, area.Close, in.Slippage, closingSide)
						stopSig, forceDisable := signal.SynthesizeStopSignals(pos, sp.StopExitMode)
						cfg := in.SignalConfig(i, col)
						var err error
						stopIntent, err = signal.Resolve(pos, stopSig, forceDisable, cfg)
						if err != nil {
							return err
						}
						if stopIntent.Active {
							stopExitPrice = exitPrice
						}
					}
					regs.UpdateTrailing(stopPosDir(pos), i, area)
				}

				userSig := in.Signals(i, col)
				cfg := in.SignalConfig(i, col)
				userIntent, err := signal.Resolve(pos, userSig, false, cfg)
				if err != nil {
					return err
				}

				var final signal.Intent
				var finalIsStop bool
				switch {
				case stopIntent.Active && userIntent.Active:
					if sp.Priority == signal.PriorityStop {
						final, finalIsStop = stopIntent, true
					} else {
						final = userIntent
					}
				case stopIntent.Active:
					final, finalIsStop = stopIntent, true
				case userIntent.Active:
					final = userIntent
				default:
					continue
				}

				order := execution.DefaultOrder()
				order.SizeType = final.SizeType
				order.Size = orderSizeFromIntent(final)
				order.Fees = in.Fees
				order.FixedFees = in.FixedFees
				order.Slippage = in.Slippage
				if finalIsStop && !math.IsNaN(stopExitPrice) {
					order.Price = stopExitPrice
				}
				orders[j] = order
				haveOrder[j] = true
			}

			if in.AutoCallSeq {
				approx := make([]float64, rt.Cols)
				for j := 0; j < gr.Len; j++ {
					if !haveOrder[j] {
						continue
					}
					col := gr.Start + j
					cs := &gr.Columns[j]
					o := orders[j]
					approx[col] = ApproxOrderValue(o.SizeType, o.Size, cs.Position, cs.ValPrice, effectiveCash(gr, j), effectiveFreeCash(gr, j), valueOf(gr, j), o.Direction)
				}
				AutoSortCallSeq(in.CallSeq[i], gr.Start, gr.Len, approx)
			}

			for j := 0; j < gr.Len; j++ {
				local := in.CallSeq[i][gr.Start+j]
				if !haveOrder[local] {
					continue
				}
				col := gr.Start + local
				area := in.Prices(i, col)
				preSide := positionSideOf(rt.Groups[g].Columns[local].Position)
				valPrice := rt.Groups[g].Columns[local].ValPrice
				orderPrice := execution.ResolveOrderPrice(orders[local].Price, area)
				result, err := executeAndRecord(rt, col, i, g, orders[local], area, in.RNG)
				if err != nil {
					return err
				}
				postSide := positionSideOf(rt.Groups[g].Columns[local].Position)
				updateStopRegisters(&in.StopRegs[col], i, preSide, postSide, area, in.StopParamsOf(i, col), valPrice, orderPrice, result.Price)
			}

			for j := 0; j < gr.Len; j++ {
				col := gr.Start + j
				cs := &gr.Columns[j]
				area := in.Prices(i, col)
				cs.ValPrice = area.Close
			}
			rt.RecomputeGroupValue(g)
			for j := 0; j < gr.Len; j++ {
				gr.Columns[j].PrevCloseValue = valueOf(gr, j)
			}
			rt.CaptureFreeCash(g, i)
		}
	}
	return nil
}

func stopPosDir(pos signal.PositionSide) stop.PositionDirection {
	if pos == signal.ShortSide {
		return stop.Short
	}
	return stop.Long
}

func orderSizeFromIntent(intent signal.Intent) float64 {
	switch intent.SizeType {
	case execution.TargetAmount, execution.TargetValue, execution.TargetPercent:
		return intent.Size
	default:
		if intent.Side == execution.Sell {
			return -intent.Size
		}
		return intent.Size
	}
}

// updateStopRegisters applies spec.md §4.4's stop-update policy after a
// fill changes a column's position. valPrice/orderPrice/fillPrice are the
// bar's pre-fill val_price, the order's sentinel-resolved nominal price,
// and the executor's actual fill price, respectively — the three
// non-Close StopEntryPrice references.
func updateStopRegisters(regs *stop.Registers, i int, preSide, postSide signal.PositionSide, area execution.PriceArea, sp StopParams, valPrice, orderPrice, fillPrice float64) {
	switch {
	case postSide == signal.Flat:
		if preSide != signal.Flat {
			regs.OnPositionChange(stop.Closed, i, 0, 0, 0, false, sp.UpdateMode)
		}
	case preSide != postSide:
		ref := stop.ResolveEntryRef(sp.EntryPriceMode, valPrice, orderPrice, fillPrice, area.Close)
		regs.OnPositionChange(stop.OpenedOrReversed, i, ref, sp.SLStop, sp.TPStop, sp.Trail, sp.UpdateMode)
	default:
		ref := stop.ResolveEntryRef(sp.EntryPriceMode, valPrice, orderPrice, fillPrice, area.Close)
		regs.OnPositionChange(stop.GrownSameDirection, i, ref, sp.SLStop, sp.TPStop, sp.Trail, sp.UpdateMode)
	}
}
