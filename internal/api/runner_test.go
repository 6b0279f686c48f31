package api

import (
	"testing"

	"backtest-core/internal/strategies"
)

func TestRunSimulationFromOrdersBuyAndHold(t *testing.T) {
	req := RunRequest{
		Driver:   "from_orders",
		Open:     []float64{10, 10, 10},
		Close:    []float64{10, 10, 11},
		Sizes:    []float64{10, 0, 0},
		InitCash: 1000,
	}

	res, err := runSimulation(req, nil)
	if err != nil {
		t.Fatalf("run simulation: %v", err)
	}
	if len(res.Fills) != 1 {
		t.Fatalf("expected 1 fill, got %d", len(res.Fills))
	}
	// cash 900 + 10 units * close 11 = 1010
	if res.FinalValue != 1010 {
		t.Fatalf("expected final value 1010, got %v", res.FinalValue)
	}
}

func TestRunSimulationFromSignalsUsesStrategyPreset(t *testing.T) {
	presets := map[string]strategies.Preset{
		"fast": {
			ID:   "fast",
			Type: strategies.KindMACross,
			Parameters: map[string]float64{
				"fast_period": 2,
				"slow_period": 4,
			},
		},
	}
	req := RunRequest{
		Driver:     "from_signals",
		Open:       []float64{10, 10, 10, 10, 20, 20},
		Close:      []float64{10, 10, 10, 10, 20, 20},
		InitCash:   1000,
		StrategyID: "fast",
	}

	res, err := runSimulation(req, presets)
	if err != nil {
		t.Fatalf("run simulation: %v", err)
	}
	if len(res.Fills) == 0 {
		t.Fatalf("expected at least one fill from the golden-cross signal")
	}
}

func TestRunSimulationRejectsMismatchedLengths(t *testing.T) {
	req := RunRequest{
		Driver: "from_orders",
		Open:   []float64{10, 10},
		Close:  []float64{10, 10, 11},
		Sizes:  []float64{1, 0, 0},
	}
	if _, err := runSimulation(req, nil); err == nil {
		t.Fatalf("expected error for mismatched open/close lengths")
	}
}

func TestRunSimulationRejectsUnknownStrategy(t *testing.T) {
	req := RunRequest{
		Driver:     "from_signals",
		Open:       []float64{10, 10},
		Close:      []float64{10, 10},
		StrategyID: "does-not-exist",
	}
	if _, err := runSimulation(req, map[string]strategies.Preset{}); err == nil {
		t.Fatalf("expected error for unknown strategy preset")
	}
}
