// Package strategies turns a named preset of indicator parameters into
// the per-bar entry/exit signal series the simulate package consumes,
// grounded on the teacher's internal/strategy package (MACrossStrategy,
// RSIStrategy, BollingerStrategy), rewritten to run over a closed array
// of historical closes instead of a live OnTick stream.
package strategies

import "backtest-core/signal"

// Kind identifies which indicator a preset configures.
type Kind string

const (
	KindMACross   Kind = "ma_cross"
	KindRSI       Kind = "rsi"
	KindBollinger Kind = "bollinger"
)

// Preset is one named, parameterized strategy bound to a symbol.
type Preset struct {
	ID         string
	Name       string
	Type       Kind
	Symbol     string
	Parameters map[string]float64
	IsActive   bool
}

// Generator produces one Signals value per bar from a column's closes.
type Generator interface {
	Generate(closes []float64) []signal.Signals
}
