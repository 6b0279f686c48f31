package simulate

import (
	"math"
	"testing"

	"backtest-core/execution"
)

func simpleArea(close float64) execution.PriceArea {
	return execution.PriceArea{Open: close, High: close, Low: close, Close: close}
}

func TestSimulateFromOrdersBuyAndHold(t *testing.T) {
	rt, err := NewRuntime(3, []int{1}, false, []float64{10000}, []float64{0}, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	closes := []float64{100, 105, 110}
	callSeq := [][]int{{0}, {0}, {0}}

	orders := func(i, col int) (execution.Order, bool) {
		if i != 0 {
			return execution.Order{}, false
		}
		o := execution.DefaultOrder()
		o.Size = 10
		o.Price = 100
		return o, true
	}
	prices := func(i, col int) execution.PriceArea { return simpleArea(closes[i]) }

	in := FromOrdersInputs{
		Runtime:       rt,
		CallSeq:       callSeq,
		FfillValPrice: true,
		Orders:        orders,
		Prices:        prices,
	}
	if err := SimulateFromOrders(in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	col0 := &rt.Groups[0].Columns[0]
	if !eqF(col0.Position, 10) {
		t.Fatalf("expected position 10, got %v", col0.Position)
	}
	wantCash := 10000.0 - 10*100
	if !eqF(col0.Cash, wantCash) {
		t.Fatalf("expected cash %v, got %v", wantCash, col0.Cash)
	}
	wantValue := col0.Cash + 10*closes[2]
	if !eqF(col0.Value, wantValue) {
		t.Fatalf("expected final value %v, got %v", wantValue, col0.Value)
	}
	if rt.OrderBufs[0].Len() != 1 {
		t.Fatalf("expected exactly one order record, got %d", rt.OrderBufs[0].Len())
	}
}

func TestSimulateFromOrdersSegmentMaskSkipsInactiveBars(t *testing.T) {
	rt, _ := NewRuntime(2, []int{1}, false, []float64{10000}, []float64{0}, 0, 0)
	closes := []float64{100, 100}
	callSeq := [][]int{{0}, {0}}
	segmentMask := [][]bool{{false}, {true}}

	calls := 0
	orders := func(i, col int) (execution.Order, bool) {
		calls++
		o := execution.DefaultOrder()
		o.Size = 1
		o.Price = 100
		return o, true
	}
	prices := func(i, col int) execution.PriceArea { return simpleArea(closes[i]) }

	in := FromOrdersInputs{Runtime: rt, CallSeq: callSeq, SegmentMask: segmentMask, FfillValPrice: true, Orders: orders, Prices: prices}
	if err := SimulateFromOrders(in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rt.OrderBufs[0].Len() != 1 {
		t.Fatalf("expected one fill from the active bar only, got %d", rt.OrderBufs[0].Len())
	}
}

func TestSimulateFromOrdersAutoCallSeqSellsBeforeBuys(t *testing.T) {
	rt, err := NewRuntime(1, []int{2}, true, []float64{10000}, []float64{-5, 0}, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	callSeq := [][]int{{0, 1}}

	orders := func(i, col int) (execution.Order, bool) {
		o := execution.DefaultOrder()
		o.Price = 100
		if col == 0 {
			o.Size = 5 // buys to cover the short first if unsorted
		} else {
			o.Size = -5 // sell from column 1, which has no position: opens short, raising cash
		}
		return o, true
	}
	prices := func(i, col int) execution.PriceArea { return simpleArea(100) }

	in := FromOrdersInputs{Runtime: rt, CallSeq: callSeq, AutoCallSeq: true, FfillValPrice: true, Orders: orders, Prices: prices}
	if err := SimulateFromOrders(in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// After auto-sorting, the sell (negative approx value) should execute
	// at index 0 of the sorted call sequence.
	if callSeq[0][0] != 1 {
		t.Fatalf("expected column 1 (sell) sorted first, got %v", callSeq[0])
	}
}

func eqF(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}
