package strategies

import (
	"backtest-core/internal/indicators"
	"backtest-core/signal"
)

// RSIGenerator fires a long entry while RSI is below the oversold
// threshold and a short entry while it is above the overbought
// threshold, mirroring the teacher's RSIStrategy thresholds.
type RSIGenerator struct {
	Period              int
	OversoldThreshold   float64
	OverboughtThreshold float64
}

func (g RSIGenerator) Generate(closes []float64) []signal.Signals {
	out := make([]signal.Signals, len(closes))
	if g.Period <= 0 {
		return out
	}

	for i := range closes {
		window := closes[:i+1]
		if len(window) < g.Period+1 {
			continue
		}

		rsi := indicators.RSI(window, g.Period)
		switch {
		case rsi < g.OversoldThreshold:
			out[i].LongEntry = true
			out[i].ShortExit = true
		case rsi > g.OverboughtThreshold:
			out[i].ShortEntry = true
			out[i].LongExit = true
		}
	}

	return out
}
