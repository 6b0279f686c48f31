// Package signal resolves direction-aware entry/exit booleans plus any
// firing stop into a single order intent per bar (spec.md §4.5): entry
// vs exit conflicts, long-vs-short conflicts, opposite-entry handling,
// and accumulation-mode gating, in that order.
package signal

import (
	"backtest-core/execution"
	"backtest-core/internal/simerrors"
)

// PositionSide is the side of the currently open position, if any.
type PositionSide int

const (
	Flat PositionSide = iota
	LongSide
	ShortSide
)

// ConflictMode resolves an entry and an exit signal both firing for the
// same direction on the same bar.
type ConflictMode int

const (
	ConflictIgnore ConflictMode = iota
	ConflictEntry
	ConflictExit
	ConflictAdjacent
	ConflictOpposite
)

// DirectionConflictMode resolves a long-entry and a short-entry signal
// both firing on the same bar.
type DirectionConflictMode int

const (
	DirConflictIgnore DirectionConflictMode = iota
	DirConflictLong
	DirConflictShort
	DirConflictAdjacent
	DirConflictOpposite
)

// OppositeEntryMode governs what happens when an entry signal opposes
// the currently open position.
type OppositeEntryMode int

const (
	OppositeIgnore OppositeEntryMode = iota
	OppositeClose
	OppositeCloseReduce
	OppositeReverse
	OppositeReverseReduce
)

// AccumulationMode governs whether repeated same-direction entries, or
// opposite-direction reduces, are allowed while a position is open.
type AccumulationMode int

const (
	Disabled AccumulationMode = iota
	AddOnly
	RemoveOnly
	Both
)

// StopExitMode is how a firing stop is translated into entry/exit
// signals (spec.md §4.5 step 1).
type StopExitMode int

const (
	StopClose StopExitMode = iota
	StopCloseReduce
	StopReverse
	StopReverseReduce
)

// SignalPriority picks the winner when both a stop-synthesized order and
// a user-signal order are non-zero on the same bar.
type SignalPriority int

const (
	PriorityStop SignalPriority = iota
	PriorityUser
)

// Signals are the four raw direction-aware booleans for one bar/column.
type Signals struct {
	LongEntry  bool
	LongExit   bool
	ShortEntry bool
	ShortExit  bool
}

// Config parameterizes the resolver for one column.
type Config struct {
	LongConflictMode      ConflictMode
	ShortConflictMode     ConflictMode
	DirectionConflictMode DirectionConflictMode
	OppositeEntryMode     OppositeEntryMode
	AccumulationMode      AccumulationMode
	EntrySize             float64
	EntrySizeType         execution.SizeType
}

// Intent is the resolver's output: either no action, or a single order
// to submit to the executor.
type Intent struct {
	Active   bool
	Side     execution.Side
	Size     float64
	SizeType execution.SizeType
}

// SynthesizeStopSignals converts a firing stop for the current position
// into direction-aware signals, and reports whether accumulation must be
// forced to Disabled (a full Close/Reverse leaves nothing to accumulate
// onto; a *Reduce variant is partial and leaves accumulation as configured).
func SynthesizeStopSignals(pos PositionSide, mode StopExitMode) (Signals, bool) {
	switch pos {
	case LongSide:
		switch mode {
		case StopClose:
			return Signals{LongExit: true}, true
		case StopCloseReduce:
			return Signals{LongExit: true}, false
		case StopReverse:
			return Signals{LongExit: true, ShortEntry: true}, true
		case StopReverseReduce:
			return Signals{LongExit: true, ShortEntry: true}, false
		}
	case ShortSide:
		switch mode {
		case StopClose:
			return Signals{ShortExit: true}, true
		case StopCloseReduce:
			return Signals{ShortExit: true}, false
		case StopReverse:
			return Signals{ShortExit: true, LongEntry: true}, true
		case StopReverseReduce:
			return Signals{ShortExit: true, LongEntry: true}, false
		}
	}
	return Signals{}, false
}

// Resolve runs the full decision pipeline and returns the order intent
// for one bar/column, or a ConfigError if a forbidden reversal-with-
// Percent combination is requested.
func Resolve(pos PositionSide, sig Signals, forceDisableAccum bool, cfg Config) (Intent, error) {
	longEntry, longExit := resolveConflict(sig.LongEntry, sig.LongExit, cfg.LongConflictMode, pos == LongSide)
	shortEntry, shortExit := resolveConflict(sig.ShortEntry, sig.ShortExit, cfg.ShortConflictMode, pos == ShortSide)
	longEntry, shortEntry = resolveDirectionConflict(longEntry, shortEntry, cfg.DirectionConflictMode, pos)

	accum := cfg.AccumulationMode
	if forceDisableAccum {
		accum = Disabled
	}

	switch pos {
	case Flat:
		if longEntry {
			return Intent{Active: true, Side: execution.Buy, Size: cfg.EntrySize, SizeType: cfg.EntrySizeType}, nil
		}
		if shortEntry {
			return Intent{Active: true, Side: execution.Sell, Size: cfg.EntrySize, SizeType: cfg.EntrySizeType}, nil
		}
		return Intent{}, nil

	case LongSide:
		if longExit {
			return closeIntent(execution.Sell), nil
		}
		if longEntry {
			if accum == AddOnly || accum == Both {
				return Intent{Active: true, Side: execution.Buy, Size: cfg.EntrySize, SizeType: cfg.EntrySizeType}, nil
			}
			return Intent{}, nil
		}
		if shortEntry {
			return applyOpposite(execution.Sell, accum, cfg)
		}
		return Intent{}, nil

	case ShortSide:
		if shortExit {
			return closeIntent(execution.Buy), nil
		}
		if shortEntry {
			if accum == AddOnly || accum == Both {
				return Intent{Active: true, Side: execution.Sell, Size: cfg.EntrySize, SizeType: cfg.EntrySizeType}, nil
			}
			return Intent{}, nil
		}
		if longEntry {
			return applyOpposite(execution.Buy, accum, cfg)
		}
		return Intent{}, nil
	}
	return Intent{}, nil
}

// closeIntent targets a flat position regardless of current size.
func closeIntent(side execution.Side) Intent {
	return Intent{Active: true, Side: side, Size: 0, SizeType: execution.TargetAmount}
}

func applyOpposite(closingSide execution.Side, accum AccumulationMode, cfg Config) (Intent, error) {
	switch cfg.OppositeEntryMode {
	case OppositeIgnore:
		return Intent{}, nil
	case OppositeClose:
		return closeIntent(closingSide), nil
	case OppositeCloseReduce:
		if accum == RemoveOnly || accum == Both {
			return Intent{Active: true, Side: closingSide, Size: cfg.EntrySize, SizeType: cfg.EntrySizeType}, nil
		}
		return closeIntent(closingSide), nil
	case OppositeReverse:
		if isPercentType(cfg.EntrySizeType) {
			return Intent{}, simerrors.NewConfigError("position reversal forbidden with SizeType.Percent")
		}
		sign := 1.0
		if closingSide == execution.Sell {
			sign = -1
		}
		return Intent{Active: true, Side: closingSide, Size: sign * cfg.EntrySize, SizeType: execution.TargetAmount}, nil
	case OppositeReverseReduce:
		if isPercentType(cfg.EntrySizeType) {
			return Intent{}, simerrors.NewConfigError("position reversal forbidden with SizeType.Percent")
		}
		return Intent{Active: true, Side: closingSide, Size: cfg.EntrySize, SizeType: cfg.EntrySizeType}, nil
	}
	return Intent{}, nil
}

func isPercentType(t execution.SizeType) bool {
	return t == execution.Percent || t == execution.TargetPercent
}

// resolveConflict applies ConflictMode when both entry and exit fire for
// the same direction on the same bar.
func resolveConflict(entry, exit bool, mode ConflictMode, inPosition bool) (bool, bool) {
	if !(entry && exit) {
		return entry, exit
	}
	switch mode {
	case ConflictIgnore:
		return false, false
	case ConflictEntry:
		return true, false
	case ConflictExit:
		return false, true
	case ConflictAdjacent:
		return false, true
	case ConflictOpposite:
		if inPosition {
			return false, true
		}
		return true, false
	default:
		return entry, exit
	}
}

// resolveDirectionConflict applies DirectionConflictMode when both a
// long entry and a short entry fire on the same bar.
func resolveDirectionConflict(longEntry, shortEntry bool, mode DirectionConflictMode, pos PositionSide) (bool, bool) {
	if !(longEntry && shortEntry) {
		return longEntry, shortEntry
	}
	switch mode {
	case DirConflictIgnore:
		return false, false
	case DirConflictLong:
		return true, false
	case DirConflictShort:
		return false, true
	case DirConflictAdjacent:
		switch pos {
		case LongSide:
			return true, false
		case ShortSide:
			return false, true
		default:
			return false, false
		}
	case DirConflictOpposite:
		switch pos {
		case LongSide:
			return false, true
		case ShortSide:
			return true, false
		default:
			return false, false
		}
	default:
		return longEntry, shortEntry
	}
}

// PickByPriority resolves a collision where both a stop-synthesized
// intent and a user-signal intent are active on the same bar.
func PickByPriority(stopIntent, userIntent Intent, priority SignalPriority) Intent {
	if !stopIntent.Active {
		return userIntent
	}
	if !userIntent.Active {
		return stopIntent
	}
	if priority == PriorityStop {
		return stopIntent
	}
	return userIntent
}
