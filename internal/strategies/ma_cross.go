package strategies

import (
	"backtest-core/internal/indicators"
	"backtest-core/signal"
)

// MACrossGenerator fires a long entry on a golden cross (fast MA moves
// from at-or-below to above the slow MA) and a short entry on a death
// cross, mirroring the teacher's MACrossStrategy crossover detection.
type MACrossGenerator struct {
	FastPeriod int
	SlowPeriod int
}

func (g MACrossGenerator) Generate(closes []float64) []signal.Signals {
	out := make([]signal.Signals, len(closes))
	if g.SlowPeriod <= 0 || g.FastPeriod <= 0 {
		return out
	}

	var prevFast, prevSlow float64
	havePrev := false

	for i := range closes {
		window := closes[:i+1]
		if len(window) < g.SlowPeriod {
			continue
		}

		fast := indicators.SMA(window, g.FastPeriod)
		slow := indicators.SMA(window, g.SlowPeriod)

		if havePrev {
			if prevFast <= prevSlow && fast > slow {
				out[i].LongEntry = true
				out[i].ShortExit = true
			} else if prevFast >= prevSlow && fast < slow {
				out[i].ShortEntry = true
				out[i].LongExit = true
			}
		}

		prevFast, prevSlow = fast, slow
		havePrev = true
	}

	return out
}
