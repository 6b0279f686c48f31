package stop

import (
	"math"
	"testing"

	"backtest-core/execution"
)

func TestHitLongStopLossFillsAtTriggerWhenInsideRange(t *testing.T) {
	area := execution.PriceArea{Open: 100, High: 101, Low: 94, Close: 99}
	fired, trigger, fill := Hit(100, 0.05, false, area) // long SL: trigger = ref*(1-0.05)=95
	if !fired {
		t.Fatalf("expected SL to fire")
	}
	if !eq(trigger, 95) {
		t.Fatalf("expected trigger 95, got %v", trigger)
	}
	if !eq(fill, 95) {
		t.Fatalf("expected fill at trigger 95, got %v", fill)
	}
}

func TestHitLongStopLossGapDownFillsAtOpen(t *testing.T) {
	area := execution.PriceArea{Open: 90, High: 92, Low: 88, Close: 91}
	fired, trigger, fill := Hit(100, 0.05, false, area) // trigger=95, open(90) <= 95 => gap
	if !fired {
		t.Fatalf("expected SL to fire on gap down")
	}
	if !eq(trigger, 95) {
		t.Fatalf("expected trigger 95, got %v", trigger)
	}
	if !eq(fill, 90) {
		t.Fatalf("expected gap fill at open 90, got %v", fill)
	}
}

func TestHitNoTriggerWhenRangeDoesNotReach(t *testing.T) {
	area := execution.PriceArea{Open: 100, High: 101, Low: 99, Close: 100}
	fired, _, _ := Hit(100, 0.05, false, area) // trigger=95, low=99 never reaches
	if fired {
		t.Fatalf("did not expect SL to fire")
	}
}

func TestTrailingUpdateAdvancesOnNewHigh(t *testing.T) {
	r := NewRegisters()
	r.OnPositionChange(OpenedOrReversed, 0, 100, 0.05, math.NaN(), true, Keep)
	if !eq(r.SLPrice, 100) {
		t.Fatalf("expected initial SL ref 100, got %v", r.SLPrice)
	}
	r.UpdateTrailing(Long, 1, execution.PriceArea{Open: 105, High: 110, Low: 104, Close: 108})
	if !eq(r.SLPrice, 110) {
		t.Fatalf("expected SL ref to trail up to high 110, got %v", r.SLPrice)
	}
	if r.SLBar != 1 {
		t.Fatalf("expected SLBar updated to 1, got %d", r.SLBar)
	}
}

func TestTrailingUpdateDoesNothingWhenDisabled(t *testing.T) {
	r := NewRegisters()
	r.OnPositionChange(OpenedOrReversed, 0, 100, 0.05, math.NaN(), false, Keep)
	r.UpdateTrailing(Long, 1, execution.PriceArea{Open: 105, High: 110, Low: 104, Close: 108})
	if !eq(r.SLPrice, 100) {
		t.Fatalf("expected SL ref unchanged without trailing, got %v", r.SLPrice)
	}
}

func TestOnPositionChangeClosedResetsRegisters(t *testing.T) {
	r := NewRegisters()
	r.OnPositionChange(OpenedOrReversed, 0, 100, 0.05, 0.10, true, Keep)
	r.OnPositionChange(Closed, 5, 0, 0, 0, false, Keep)
	if !math.IsNaN(r.SLStop) || !math.IsNaN(r.TPStop) {
		t.Fatalf("expected disarmed registers after close")
	}
}

func TestOnPositionChangeGrownSameDirectionKeepDoesNotOverride(t *testing.T) {
	r := NewRegisters()
	r.OnPositionChange(OpenedOrReversed, 0, 100, 0.05, 0.10, false, Keep)
	r.OnPositionChange(GrownSameDirection, 1, 100, 0.20, 0.30, false, Keep)
	if !eq(r.SLStop, 0.05) || !eq(r.TPStop, 0.10) {
		t.Fatalf("expected Keep to leave stops unchanged, got SL=%v TP=%v", r.SLStop, r.TPStop)
	}
}

func TestOnPositionChangeGrownSameDirectionOverrideIgnoresNaN(t *testing.T) {
	r := NewRegisters()
	r.OnPositionChange(OpenedOrReversed, 0, 100, 0.05, 0.10, false, Keep)
	r.OnPositionChange(GrownSameDirection, 1, 100, math.NaN(), 0.30, false, Override)
	if !eq(r.SLStop, 0.05) {
		t.Fatalf("expected Override to keep SL when new value is NaN, got %v", r.SLStop)
	}
	if !eq(r.TPStop, 0.30) {
		t.Fatalf("expected Override to replace TP, got %v", r.TPStop)
	}
}

func TestExitFillPriceStopLimitIgnoresSlippage(t *testing.T) {
	price := ExitFillPrice(ExitStopLimit, 95, 100, 0.01, execution.Sell)
	if !eq(price, 95) {
		t.Fatalf("expected StopLimit fill at exact trigger 95, got %v", price)
	}
}

func TestExitFillPriceStopMarketAppliesSlippage(t *testing.T) {
	price := ExitFillPrice(ExitStopMarket, 95, 100, 0.01, execution.Sell)
	if !eq(price, 95*0.99) {
		t.Fatalf("expected sell slippage applied, got %v", price)
	}
}

func eq(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
