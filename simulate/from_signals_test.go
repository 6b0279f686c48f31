package simulate

import (
	"math"
	"testing"

	"backtest-core/execution"
	"backtest-core/signal"
	"backtest-core/stop"
)

// TestSimulateFromSignalsStopLossFires mirrors spec.md §8 S2: go long 1
// unit at bar 0, sl_stop=0.1, no trailing. Bar 1 opens/closes at 9 with
// low=9/high=10 so the stop-loss (armed off the entry fill price of 10)
// triggers at 9 and closes the position with a Sell fill.
func TestSimulateFromSignalsStopLossFires(t *testing.T) {
	rt, err := NewRuntime(3, []int{1}, false, []float64{1000}, []float64{0}, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	area := []execution.PriceArea{
		{Open: 9, High: 10, Low: 9, Close: 10},
		{Open: 9, High: 10, Low: 9, Close: 9},
		{Open: 8, High: 8, Low: 8, Close: 8},
	}
	prices := func(i, col int) execution.PriceArea { return area[i] }

	sigs := []signal.Signals{
		{LongEntry: true},
		{},
		{},
	}
	signalSrc := func(i, col int) signal.Signals { return sigs[i] }

	cfg := signal.Config{EntrySize: 1, EntrySizeType: execution.Amount}
	cfgSrc := func(i, col int) signal.Config { return cfg }

	sp := StopParams{
		SLStop:         0.1,
		TPStop:         math.NaN(),
		EntryPriceMode: stop.EntryFillPrice,
	}
	stopParams := func(i, col int) StopParams { return sp }

	callSeq := [][]int{{0}, {0}, {0}}
	regs := []stop.Registers{stop.NewRegisters()}

	in := FromSignalsInputs{
		Runtime:       rt,
		CallSeq:       callSeq,
		FfillValPrice: true,
		Signals:       signalSrc,
		SignalConfig:  cfgSrc,
		StopParamsOf:  stopParams,
		Prices:        prices,
		StopRegs:      regs,
	}
	if err := SimulateFromSignals(in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fills := rt.OrderBufs[0].Records()
	if len(fills) != 2 {
		t.Fatalf("expected 2 fills (entry + stop exit), got %d: %+v", len(fills), fills)
	}

	entry := fills[0]
	if entry.Side != execution.Buy || !eqF(entry.Size, 1) || !eqF(entry.Price, 10) {
		t.Fatalf("expected entry Buy 1 @ 10, got %+v", entry)
	}

	exit := fills[1]
	if exit.Side != execution.Sell {
		t.Fatalf("expected stop-loss exit to be a Sell, got %+v", exit)
	}
	if !eqF(exit.Size, 1) {
		t.Fatalf("expected stop-loss exit size 1, got %v", exit.Size)
	}
	if !eqF(exit.Price, 9) {
		t.Fatalf("expected stop-loss fill at 9, got %v", exit.Price)
	}

	col0 := &rt.Groups[0].Columns[0]
	if !eqF(col0.Position, 0) {
		t.Fatalf("expected position flat after stop exit, got %v", col0.Position)
	}
}
