package simulate

import (
	"math/rand"

	"backtest-core/execution"
)

// Context is the opaque value threaded through the eight callback
// points of the generic driver (spec.md §4.6); drivers never interpret
// it, only pass it along.
type Context any

// OrderFunc builds the order for one column inside an active segment.
// Returning active=false means "submit nothing for this column".
type OrderFunc func(ctx Context, i, col int) (execution.Order, bool)

// Hooks are the eight user-supplied callback points of the generic
// driver. Any may be nil to skip that hook.
type Hooks struct {
	PreSim      func(ctx Context) Context
	PreGroup    func(ctx Context, g int) Context // fires once per row per group in row-major mode; g is the group index in both modes
	PreSegment  func(ctx Context, i, g int) Context
	Order       OrderFunc
	PostOrder   func(ctx Context, i, col int, result execution.Result)
	PostSegment func(ctx Context, i, g int)
	PostGroup   func(ctx Context, g int)
	PostSim     func(ctx Context)
}

// GenericInputs parameterizes the column-major generic driver.
type GenericInputs struct {
	Runtime         *Runtime
	CallSeq         [][]int
	AutoCallSeq     bool
	SegmentMask     [][]bool
	FfillValPrice   bool
	CallPreSegment  bool
	CallPostSegment bool
	Prices          OHLCSource
	Hooks           Hooks
	RNG             *rand.Rand
	InitContext     Context
}

// Simulate runs the column-major generic driver: groups may run
// independently (e.g. in separate goroutines by the caller), and each
// group walks its bars sequentially, invoking user hooks at the eight
// points spec.md §4.6 names.
func Simulate(in GenericInputs) error {
	rt := in.Runtime
	ctx := in.InitContext
	if in.Hooks.PreSim != nil {
		ctx = in.Hooks.PreSim(ctx)
	}
	for g := range rt.Groups {
		groupCtx := ctx
		if in.Hooks.PreGroup != nil {
			groupCtx = in.Hooks.PreGroup(groupCtx, g)
		}
		if err := simulateGroupBars(rt, in, g, groupCtx); err != nil {
			return err
		}
		if in.Hooks.PostGroup != nil {
			in.Hooks.PostGroup(groupCtx, g)
		}
	}
	if in.Hooks.PostSim != nil {
		in.Hooks.PostSim(ctx)
	}
	return nil
}

// SimulateRowWise runs the row-major variant: bars are the outer loop,
// groups the inner loop, so PreGroup fires once per row per group
// instead of once per group for the whole run.
func SimulateRowWise(in GenericInputs) error {
	rt := in.Runtime
	ctx := in.InitContext
	if in.Hooks.PreSim != nil {
		ctx = in.Hooks.PreSim(ctx)
	}
	for i := 0; i < rt.Bars; i++ {
		for g := range rt.Groups {
			rowCtx := ctx
			if in.Hooks.PreGroup != nil {
				rowCtx = in.Hooks.PreGroup(rowCtx, g)
			}
			if err := simulateOneBar(rt, in, g, i, rowCtx); err != nil {
				return err
			}
			if in.Hooks.PostGroup != nil {
				in.Hooks.PostGroup(rowCtx, g)
			}
		}
	}
	if in.Hooks.PostSim != nil {
		in.Hooks.PostSim(ctx)
	}
	return nil
}

func simulateGroupBars(rt *Runtime, in GenericInputs, g int, ctx Context) error {
	for i := 0; i < rt.Bars; i++ {
		if err := simulateOneBar(rt, in, g, i, ctx); err != nil {
			return err
		}
	}
	return nil
}

func simulateOneBar(rt *Runtime, in GenericInputs, g, i int, ctx Context) error {
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

	callPreSegment := active || in.CallPreSegment
	callPostSegment := active || in.CallPostSegment

	if callPreSegment && in.Hooks.PreSegment != nil {
		ctx = in.Hooks.PreSegment(ctx, i, g)
	}

	if active {
		if in.AutoCallSeq {
			approx := make([]float64, rt.Cols)
			for j := 0; j < gr.Len; j++ {
				col := gr.Start + j
				cs := &gr.Columns[j]
				order, ok := in.Hooks.Order(ctx, i, col)
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
			order, ok := in.Hooks.Order(ctx, i, col)
			if !ok {
				continue
			}
			area := in.Prices(i, col)
			result, err := executeAndRecord(rt, col, i, g, order, area, in.RNG)
			if err != nil {
				return err
			}
			if in.Hooks.PostOrder != nil {
				in.Hooks.PostOrder(ctx, i, col, result)
			}
		}
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

	if callPostSegment && in.Hooks.PostSegment != nil {
		in.Hooks.PostSegment(ctx, i, g)
	}
	return nil
}
