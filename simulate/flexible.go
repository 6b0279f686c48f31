package simulate

import (
	"math/rand"

	"backtest-core/execution"
)

// FlexOrderFunc is invoked repeatedly within an active segment; it
// returns the next column to trade (or -1 to stop submitting orders for
// this segment) and the order for that column, letting a single segment
// emit many orders in whatever sequence it chooses.
type FlexOrderFunc func(ctx Context, i, g int) (col int, order execution.Order)

// FlexHooks mirrors Hooks but with a flexible order function instead of
// one order per column per bar.
type FlexHooks struct {
	PreSim      func(ctx Context) Context
	PreGroup    func(ctx Context, g int) Context
	PreSegment  func(ctx Context, i, g int) Context
	Order       FlexOrderFunc
	PostOrder   func(ctx Context, i, col int, result execution.Result)
	PostSegment func(ctx Context, i, g int)
	PostGroup   func(ctx Context, g int)
	PostSim     func(ctx Context)
}

// FlexibleInputs parameterizes the flexible driver.
type FlexibleInputs struct {
	Runtime             *Runtime
	SegmentMask         [][]bool
	FfillValPrice       bool
	CallPreSegment      bool
	CallPostSegment     bool
	Prices              OHLCSource
	Hooks               FlexHooks
	RNG                 *rand.Rand
	InitContext         Context
	MaxOrdersPerSegment int // backstop against a runaway order function; 0 = bars*cols
}

// SimulateFlexible runs the flexible driver (spec.md §4.6): like the
// generic driver, but the order function is invoked repeatedly per
// segment until it signals col=-1, enabling many orders per cell and
// arbitrary intra-segment ordering.
func SimulateFlexible(in FlexibleInputs) error {
	rt := in.Runtime
	ctx := in.InitContext
	if in.Hooks.PreSim != nil {
		ctx = in.Hooks.PreSim(ctx)
	}
	maxPerSegment := in.MaxOrdersPerSegment
	if maxPerSegment <= 0 {
		maxPerSegment = rt.Bars * rt.Cols
	}

	for g := range rt.Groups {
		groupCtx := ctx
		if in.Hooks.PreGroup != nil {
			groupCtx = in.Hooks.PreGroup(groupCtx, g)
		}
		for i := 0; i < rt.Bars; i++ {
			if err := flexibleOneBar(rt, in, g, i, groupCtx, maxPerSegment); err != nil {
				return err
			}
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

func flexibleOneBar(rt *Runtime, in FlexibleInputs, g, i int, ctx Context, maxPerSegment int) error {
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
		for n := 0; n < maxPerSegment; n++ {
			col, order := in.Hooks.Order(ctx, i, g)
			if col == -1 {
				break
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
