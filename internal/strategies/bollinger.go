package strategies

import (
	"math"

	"backtest-core/signal"
)

// BollingerGenerator fires a long entry when price touches or breaks
// the lower band and a short entry at the upper band, mirroring the
// teacher's BollingerStrategy breakout rule.
type BollingerGenerator struct {
	Period    int
	NumStdDev float64
}

func (g BollingerGenerator) Generate(closes []float64) []signal.Signals {
	out := make([]signal.Signals, len(closes))
	if g.Period <= 0 {
		return out
	}

	for i := range closes {
		start := i - g.Period + 1
		if start < 0 {
			continue
		}
		window := closes[start : i+1]

		sum := 0.0
		for _, p := range window {
			sum += p
		}
		mean := sum / float64(len(window))

		variance := 0.0
		for _, p := range window {
			d := p - mean
			variance += d * d
		}
		stdDev := math.Sqrt(variance / float64(len(window)))

		upper := mean + g.NumStdDev*stdDev
		lower := mean - g.NumStdDev*stdDev
		price := closes[i]

		switch {
		case price <= lower:
			out[i].LongEntry = true
			out[i].ShortExit = true
		case price >= upper:
			out[i].ShortEntry = true
			out[i].LongExit = true
		}
	}

	return out
}
