// Package simulate implements the per-bar simulation spine shared by
// all four drivers (spec.md §4.6): from-orders, from-signals, the
// generic row/column-major callback driver, and the flexible driver.
// Groups are independent and may run in parallel; within a group bars
// are strictly sequential (row-major) or columns sequential within a
// bar (column-major).
package simulate

import (
	"math"

	"backtest-core/execution"
	"backtest-core/internal/simerrors"
	"backtest-core/numeric"
	"backtest-core/records"
)

// ColumnState is the per-column running state the driver owns for the
// duration of the run (spec.md §3.3). Cash/FreeCash are meaningful here
// only when the owning group does not share cash; otherwise the group's
// shared pool is authoritative and these fields are left at zero.
type ColumnState struct {
	Cash             float64
	Position         float64
	Debt             float64
	FreeCash         float64
	ValPrice         float64
	Value            float64
	Return           float64
	PrevCloseValue   float64
	LastPosRecordIdx int
	LastOrderIdx     int
	LastLogIdx       int
}

// GroupRuntime tracks one group's shared cash pool (if sharing) and
// aggregate value, plus the column states for its member columns.
type GroupRuntime struct {
	Start          int
	Len            int
	CashSharing    bool
	SharedCash     float64
	SharedFreeCash float64
	Value          float64
	PrevCloseValue float64
	Columns        []ColumnState // length Len, indexed by local column offset
}

// Runtime owns the full per-group/per-column state plus the
// pre-allocated order/log buffers for a run.
type Runtime struct {
	Bars       int
	Cols       int
	Groups     []GroupRuntime
	ColToGroup []int // column index -> group index
	ColToLocal []int // column index -> offset within its group
	OrderBufs  []*records.OrderBuffer
	LogBufs    []*records.LogBuffer

	// FreeCashSeries captures each column's bar-end free cash (col x
	// bar), recorded by CaptureFreeCash once per bar. Debt/lock-cash
	// bookkeeping isn't carried by records.OrderRecord, so the
	// free-cash-flow series (series.CashFlowFree) can't be reconstructed
	// post-hoc the way the non-free cash flow can — it has to be
	// captured live.
	FreeCashSeries [][]float64
}

// NewRuntime validates group_lens and allocates per-column/per-group
// state plus record buffers. maxOrders/maxLogs default to bars when 0.
func NewRuntime(bars int, groupLens []int, cashSharing bool, initCash, initPosition []float64, maxOrders, maxLogs int) (*Runtime, error) {
	cols := 0
	for _, l := range groupLens {
		if l <= 0 {
			return nil, simerrors.NewConfigError("group_lens entries must be positive, got %d", l)
		}
		cols += l
	}
	if len(initPosition) != cols {
		return nil, simerrors.NewConfigError("init_position length %d does not match column count %d", len(initPosition), cols)
	}
	if cashSharing && len(initCash) != len(groupLens) {
		return nil, simerrors.NewConfigError("init_cash length %d does not match group count %d under cash_sharing", len(initCash), len(groupLens))
	}
	if !cashSharing && len(initCash) != cols {
		return nil, simerrors.NewConfigError("init_cash length %d does not match column count %d", len(initCash), cols)
	}
	if maxOrders <= 0 {
		maxOrders = bars
	}
	if maxLogs <= 0 {
		maxLogs = bars
	}

	rt := &Runtime{
		Bars:           bars,
		Cols:           cols,
		ColToGroup:     make([]int, cols),
		ColToLocal:     make([]int, cols),
		OrderBufs:      make([]*records.OrderBuffer, cols),
		LogBufs:        make([]*records.LogBuffer, cols),
		FreeCashSeries: make([][]float64, cols),
	}

	col := 0
	for g, l := range groupLens {
		gr := GroupRuntime{Start: col, Len: l, CashSharing: cashSharing, Columns: make([]ColumnState, l)}
		if cashSharing {
			gr.SharedCash = initCash[g]
			gr.SharedFreeCash = initCash[g]
			gr.Value = initCash[g]
			gr.PrevCloseValue = initCash[g]
		}
		for j := 0; j < l; j++ {
			pos := initPosition[col]
			cs := ColumnState{Position: pos, LastPosRecordIdx: -1, LastOrderIdx: -1, LastLogIdx: -1}
			if !cashSharing {
				cs.Cash = initCash[col]
				cs.FreeCash = initCash[col]
				cs.Value = initCash[col]
				cs.PrevCloseValue = initCash[col]
			}
			gr.Columns[j] = cs
			rt.ColToGroup[col] = g
			rt.ColToLocal[col] = j
			rt.OrderBufs[col] = records.NewOrderBuffer(col, maxOrders)
			rt.LogBufs[col] = records.NewLogBuffer(col, maxLogs)
			rt.FreeCashSeries[col] = make([]float64, bars)
			col++
		}
		rt.Groups = append(rt.Groups, gr)
	}
	return rt, nil
}

// ExecState builds the execution.State for column col, reading from
// whichever pool (group-shared or per-column) owns cash.
func (rt *Runtime) ExecState(col int) execution.State {
	g := &rt.Groups[rt.ColToGroup[col]]
	local := rt.ColToLocal[col]
	cs := &g.Columns[local]
	if g.CashSharing {
		return execution.State{Cash: g.SharedCash, Position: cs.Position, Debt: cs.Debt, FreeCash: g.SharedFreeCash, ValPrice: cs.ValPrice, Value: g.Value}
	}
	return execution.State{Cash: cs.Cash, Position: cs.Position, Debt: cs.Debt, FreeCash: cs.FreeCash, ValPrice: cs.ValPrice, Value: cs.Value}
}

// ApplyExecState writes an executor result back into the owning pool.
func (rt *Runtime) ApplyExecState(col int, s execution.State) {
	g := &rt.Groups[rt.ColToGroup[col]]
	local := rt.ColToLocal[col]
	cs := &g.Columns[local]
	cs.Position = s.Position
	cs.Debt = s.Debt
	if g.CashSharing {
		g.SharedCash = s.Cash
		g.SharedFreeCash = s.FreeCash
	} else {
		cs.Cash = s.Cash
		cs.FreeCash = s.FreeCash
	}
}

// CaptureFreeCash records group g's current per-column free cash into
// FreeCashSeries for bar i. Drivers call this once per group per bar,
// at the same point they snapshot PrevCloseValue, so the resulting
// series lines up bar-for-bar with the rest of the per-bar state.
func (rt *Runtime) CaptureFreeCash(g, i int) {
	gr := &rt.Groups[g]
	for j := 0; j < gr.Len; j++ {
		col := gr.Start + j
		rt.FreeCashSeries[col][i] = effectiveFreeCash(gr, j)
	}
}

// RefreshValPrice implements the open-refresh + ffill rule from
// spec.md §4.6 step 1.
func RefreshValPrice(prev, open float64, ffill bool) float64 {
	if math.IsNaN(open) {
		if ffill {
			return prev
		}
		return math.NaN()
	}
	return open
}

// ResolveValPrice applies the +Inf="use refreshed value"/-Inf="use
// close" sentinel convention to a val_price parameter cell.
func ResolveValPrice(param, refreshed, close float64) float64 {
	if math.IsNaN(param) || math.IsInf(param, 1) {
		return refreshed
	}
	if math.IsInf(param, -1) {
		return close
	}
	return param
}

// RecomputeGroupValue sums cash + asset value across a group's columns.
func (rt *Runtime) RecomputeGroupValue(g int) {
	gr := &rt.Groups[g]
	assetValue := 0.0
	for j := range gr.Columns {
		cs := &gr.Columns[j]
		assetValue += cs.Position * cs.ValPrice
		if !gr.CashSharing {
			cs.Value = cs.Cash + cs.Position*cs.ValPrice
		}
	}
	if gr.CashSharing {
		gr.Value = gr.SharedCash + assetValue
	}
}

// RecomputeReturn sets return = value/prev_close_value - 1 per spec.md
// §4.6 step 2, treating a zero or NaN previous value as a zero return.
func RecomputeReturn(value, prevCloseValue float64) float64 {
	if prevCloseValue == 0 || math.IsNaN(prevCloseValue) {
		return 0
	}
	return value/prevCloseValue - 1
}

// ApproxOrderValue estimates an order's effect on column value without
// executing it, used to sort a group's call sequence (spec.md §4.7).
func ApproxOrderValue(sizeType execution.SizeType, size, position, valPrice, cash, freeCash, groupValue float64, direction execution.Direction) float64 {
	assetValue := position * valPrice
	switch sizeType {
	case execution.Amount:
		return size * valPrice
	case execution.Value:
		return size
	case execution.Percent:
		if size >= 0 {
			return size * cash
		}
		if direction == execution.LongOnly {
			return size * assetValue
		}
		return size * (2*math.Max(assetValue, 0) + math.Max(freeCash, 0))
	case execution.TargetAmount:
		return size*valPrice - assetValue
	case execution.TargetValue:
		return size - assetValue
	case execution.TargetPercent:
		return size*groupValue - assetValue
	default:
		return 0
	}
}

// AutoSortCallSeq sorts a group's call-sequence row ascending by
// approximate order value, so sells (negative value) execute before
// buys within a cash-shared group on the same bar.
func AutoSortCallSeq(callSeqRow []int, groupStart, groupLen int, approxValues []float64) {
	local := make([]int, groupLen)
	localValues := make([]float64, groupLen)
	for j := 0; j < groupLen; j++ {
		local[j] = j
		localValues[j] = approxValues[groupStart+j]
	}
	numeric.InsertArgsort(localValues, local)
	for j := 0; j < groupLen; j++ {
		callSeqRow[groupStart+j] = local[j]
	}
}
