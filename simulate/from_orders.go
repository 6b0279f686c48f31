package simulate

import (
	"math/rand"

	"backtest-core/execution"
)

// OrderSource builds one order for bar i, column col. Returning
// active=false skips the column this bar.
type OrderSource func(i, col int) (order execution.Order, active bool)

// OHLCSource reads the OHLC price area for bar i, column col.
type OHLCSource func(i, col int) execution.PriceArea

// FromOrdersInputs parameterizes the from-orders driver.
type FromOrdersInputs struct {
	Runtime       *Runtime
	CallSeq       [][]int // bars x cols
	AutoCallSeq   bool
	SegmentMask   [][]bool // bars x groups
	FfillValPrice bool
	Orders        OrderSource
	Prices        OHLCSource
	RNG           *rand.Rand
}

// SimulateFromOrders runs the from-orders driver (spec.md §4.6): for
// each bar and each column in call-sequence order, build one order and
// execute it, column-major friendly and parallelisable across groups.
func SimulateFromOrders(in FromOrdersInputs) error {
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

			if in.AutoCallSeq {
				approx := make([]float64, rt.Cols)
				for j := 0; j < gr.Len; j++ {
					col := gr.Start + j
					cs := &gr.Columns[j]
					order, ok := in.Orders(i, col)
					if !ok {
						continue
					}
					approx[col] = ApproxOrderValue(order.SizeType, order.Size, cs.Position, cs.ValPrice, effectiveCash(gr, j), effectiveFreeCash(gr, j), valueOf(gr, j), order.Direction)
				}
				AutoSortCallSeq(in.CallSeq[i], gr.Start, gr.Len, approx)
			}

			for j := 0; j < gr.Len; j++ {
				local := in.CallSeq[i][gr.Start+j]
				col := gr.Start + local
				order, ok := in.Orders(i, col)
				if !ok {
					continue
				}
				area := in.Prices(i, col)
				if _, err := executeAndRecord(rt, col, i, g, order, area, in.RNG); err != nil {
					return err
				}
			}

			for j := 0; j < gr.Len; j++ {
				col := gr.Start + j
				cs := &gr.Columns[j]
				area := in.Prices(i, col)
				cs.ValPrice = area.Close
			}
			rt.RecomputeGroupValue(g)
			gr.PrevCloseValue = valueOfGroup(gr)
			for j := 0; j < gr.Len; j++ {
				gr.Columns[j].PrevCloseValue = valueOf(gr, j)
			}
			rt.CaptureFreeCash(g, i)
		}
	}
	return nil
}

func valueOf(gr *GroupRuntime, local int) float64 {
	if gr.CashSharing {
		return gr.Value
	}
	return gr.Columns[local].Value
}

func valueOfGroup(gr *GroupRuntime) float64 {
	return gr.Value
}

func effectiveCash(gr *GroupRuntime, local int) float64 {
	if gr.CashSharing {
		return gr.SharedCash
	}
	return gr.Columns[local].Cash
}

func effectiveFreeCash(gr *GroupRuntime, local int) float64 {
	if gr.CashSharing {
		return gr.SharedFreeCash
	}
	return gr.Columns[local].FreeCash
}

// executeAndRecord runs the executor for one column/bar, appends the
// order record on a fill, always appends a log record if order.Log is
// set, and updates the column's running state. It returns the executor
// result so callers (e.g. the stop state machine) can use the actual
// fill price as a (re)arm reference.
func executeAndRecord(rt *Runtime, col, i, group int, order execution.Order, area execution.PriceArea, rng *rand.Rand) (execution.Result, error) {
	preState := rt.ExecState(col)
	newState, result, err := execution.Execute(preState, order, area, rng)
	if err != nil {
		return result, err
	}

	orderID := -1
	if result.Status == execution.Filled {
		rt.ApplyExecState(col, newState)
		buf := rt.OrderBufs[col]
		id, err := buf.Append(i, result.Size, result.Price, result.Fees, result.Side)
		if err != nil {
			return result, err
		}
		orderID = id
		g := &rt.Groups[rt.ColToGroup[col]]
		local := rt.ColToLocal[col]
		g.Columns[local].LastOrderIdx = id
	}
	if order.Log {
		logBuf := rt.LogBufs[col]
		id, err := logBuf.Append(group, i, area, preState, order, rt.ExecState(col), result, orderID)
		if err != nil {
			return result, err
		}
		g := &rt.Groups[rt.ColToGroup[col]]
		local := rt.ColToLocal[col]
		g.Columns[local].LastLogIdx = id
	}
	return result, nil
}
