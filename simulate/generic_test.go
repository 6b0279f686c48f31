package simulate

import (
	"testing"

	"backtest-core/execution"
)

func TestSimulateGenericDriverInvokesHooksInOrder(t *testing.T) {
	rt, err := NewRuntime(2, []int{1}, false, []float64{1000}, []float64{0}, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var trace []string
	prices := func(i, col int) execution.PriceArea { return simpleArea(100) }

	hooks := Hooks{
		PreSim:   func(ctx Context) Context { trace = append(trace, "pre_sim"); return ctx },
		PreGroup: func(ctx Context, g int) Context { trace = append(trace, "pre_group"); return ctx },
		PreSegment: func(ctx Context, i, g int) Context {
			trace = append(trace, "pre_segment")
			return ctx
		},
		Order: func(ctx Context, i, col int) (execution.Order, bool) {
			if i != 0 {
				return execution.Order{}, false
			}
			o := execution.DefaultOrder()
			o.Size = 1
			o.Price = 100
			return o, true
		},
		PostOrder: func(ctx Context, i, col int, result execution.Result) {
			trace = append(trace, "post_order")
		},
		PostSegment: func(ctx Context, i, g int) { trace = append(trace, "post_segment") },
		PostGroup:   func(ctx Context, g int) { trace = append(trace, "post_group") },
		PostSim:     func(ctx Context) { trace = append(trace, "post_sim") },
	}

	in := GenericInputs{Runtime: rt, CallSeq: [][]int{{0}, {0}}, FfillValPrice: true, Prices: prices, Hooks: hooks}
	if err := Simulate(in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trace[0] != "pre_sim" || trace[1] != "pre_group" {
		t.Fatalf("expected pre_sim then pre_group first, got %v", trace)
	}
	if trace[len(trace)-1] != "post_sim" {
		t.Fatalf("expected post_sim last, got %v", trace)
	}
	foundPostOrder := false
	for _, ev := range trace {
		if ev == "post_order" {
			foundPostOrder = true
		}
	}
	if !foundPostOrder {
		t.Fatalf("expected post_order to fire on the filled bar, got %v", trace)
	}
}

func TestSimulateRowWiseVisitsGroupsWithinEachRow(t *testing.T) {
	rt, err := NewRuntime(2, []int{1, 1}, false, []float64{1000, 1000}, []float64{0, 0}, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var order []int
	prices := func(i, col int) execution.PriceArea { return simpleArea(100) }
	hooks := Hooks{
		PreGroup: func(ctx Context, g int) Context { order = append(order, g); return ctx },
		Order:    func(ctx Context, i, col int) (execution.Order, bool) { return execution.Order{}, false },
	}
	in := GenericInputs{Runtime: rt, CallSeq: [][]int{{0, 0}, {0, 0}}, FfillValPrice: true, Prices: prices, Hooks: hooks}
	if err := SimulateRowWise(in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []int{0, 1, 0, 1}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected row-major group visitation %v, got %v", want, order)
		}
	}
}
