// Package aggregate reconstructs entry trades, exit trades, and
// positions from a column's flat, ordered stream of order records
// (spec.md §4.8). Aggregators consume records and produce new,
// compacted arrays; they never mutate the originals.
package aggregate

import (
	"math"

	"backtest-core/execution"
	"backtest-core/records"
)

// TradeDirection mirrors a position's long/short sign.
type TradeDirection int

const (
	Long TradeDirection = iota
	Short
)

// TradeStatus marks whether a trade row's position is still open.
type TradeStatus int

const (
	Open TradeStatus = iota
	Closed
)

// TradeRecord is the shared layout for entry trades, exit trades, and
// positions (spec.md §3.2): for a position row parent_id equals id.
type TradeRecord struct {
	ID         int
	Col        int
	Size       float64
	EntryIdx   int
	EntryPrice float64
	EntryFees  float64
	ExitIdx    int // -1 if still open
	ExitPrice  float64
	ExitFees   float64
	PnL        float64
	Return     float64
	Direction  TradeDirection
	Status     TradeStatus
	ParentID   int
}

func dirSign(d TradeDirection) float64 {
	if d == Long {
		return 1
	}
	return -1
}

func pnlReturn(entryPrice, exitPrice, size, entryFees, exitFees float64, dir TradeDirection) (pnl, ret float64) {
	pnl = (exitPrice-entryPrice)*size*dirSign(dir) - entryFees - exitFees
	denom := entryPrice * size
	if denom == 0 {
		return pnl, math.NaN()
	}
	return pnl, pnl / denom
}

func directionOf(side execution.Side) TradeDirection {
	if side == execution.Buy {
		return Long
	}
	return Short
}

// openLeg tracks one still-open entry-trade row while walking fills.
type openLeg struct {
	row       int // index into entries
	remaining float64
}

// EntryTrades walks one column's fills and builds entry-trade rows
// (spec.md §4.8): a new position starts at the first fill; same-direction
// fills open additional rows sharing parent_id; opposite-direction fills
// are applied against open legs size-weighted, prorating fees back across
// them; a flip finalizes the current position and starts a new one. An
// unfinished position at the end remains status=Open with exit_idx set to
// lastIdx and exit_price to lastClose.
func EntryTrades(fills []records.OrderRecord, col int, lastIdx int, lastClose float64) []TradeRecord {
	var entries []TradeRecord
	var legs []openLeg
	parentID := 0
	positionSize := 0.0 // signed: >0 long, <0 short
	nextID := 0

	// finalizeOpenLegs marks whatever legs remain to the given idx/price
	// and leaves them status=Open (used only for the still-open position
	// at the end of the fill stream; mid-stream closes are fully handled
	// by applyExit).
	finalizeOpenLegs := func(exitIdx int, exitPrice float64) {
		for _, lg := range legs {
			e := &entries[lg.row]
			e.ExitIdx = exitIdx
			e.ExitPrice = exitPrice
			pnl, ret := pnlReturn(e.EntryPrice, e.ExitPrice, e.Size, e.EntryFees, e.ExitFees, e.Direction)
			e.PnL, e.Return = pnl, ret
		}
		legs = nil
	}

	applyExit := func(fillIdx int, fillPrice, fillFees, fillSize float64) {
		entrySizeSum := 0.0
		for _, lg := range legs {
			entrySizeSum += lg.remaining
		}
		if entrySizeSum <= 0 {
			return
		}
		remainingToApply := fillSize
		for i := range legs {
			lg := &legs[i]
			if remainingToApply <= 0 {
				break
			}
			share := lg.remaining
			if share > remainingToApply {
				share = remainingToApply
			}
			e := &entries[lg.row]
			weight := share / entrySizeSum
			prorFees := fillFees * weight
			e.ExitIdx = fillIdx
			// size-weighted blend of exit price across partial applications
			priorAppliedSize := e.Size - lg.remaining
			newAppliedSize := priorAppliedSize + share
			if newAppliedSize > 0 {
				e.ExitPrice = (e.ExitPrice*priorAppliedSize + fillPrice*share) / newAppliedSize
			} else {
				e.ExitPrice = fillPrice
			}
			e.ExitFees += prorFees
			lg.remaining -= share
			remainingToApply -= share
		}
		// drop fully consumed legs
		kept := legs[:0]
		for _, lg := range legs {
			if lg.remaining > 1e-12 {
				kept = append(kept, lg)
			} else {
				e := &entries[lg.row]
				e.Status = Closed
				pnl, ret := pnlReturn(e.EntryPrice, e.ExitPrice, e.Size, e.EntryFees, e.ExitFees, e.Direction)
				e.PnL, e.Return = pnl, ret
			}
		}
		legs = kept
	}

	for _, f := range fills {
		fillDir := directionOf(f.Side)
		fillSigned := f.Size
		if fillDir == Short {
			fillSigned = -f.Size
		}

		switch {
		case positionSize == 0:
			// new position
			entries = append(entries, TradeRecord{
				ID: nextID, Col: col, Size: f.Size, EntryIdx: f.Idx, EntryPrice: f.Price,
				EntryFees: f.Fees, ExitIdx: -1, Direction: fillDir, Status: Open, ParentID: parentID,
			})
			legs = append(legs, openLeg{row: len(entries) - 1, remaining: f.Size})
			nextID++
			positionSize = fillSigned

		case sameSign(positionSize, fillSigned):
			// accumulation in the same direction: new entry-trade row
			entries = append(entries, TradeRecord{
				ID: nextID, Col: col, Size: f.Size, EntryIdx: f.Idx, EntryPrice: f.Price,
				EntryFees: f.Fees, ExitIdx: -1, Direction: fillDir, Status: Open, ParentID: parentID,
			})
			legs = append(legs, openLeg{row: len(entries) - 1, remaining: f.Size})
			nextID++
			positionSize += fillSigned

		default:
			// opposite direction: reduces, closes, or flips
			openAbs := math.Abs(positionSize)
			fillAbs := f.Size
			if fillAbs < openAbs-1e-12 {
				// partial exit
				applyExit(f.Idx, f.Price, f.Fees, fillAbs)
				positionSize += fillSigned
			} else if math.Abs(fillAbs-openAbs) <= 1e-12 {
				// exact close
				applyExit(f.Idx, f.Price, f.Fees, fillAbs)
				positionSize = 0
				parentID++
			} else {
				// flip: closes the old position, opens a new one with the remainder
				closingFees := f.Fees * (openAbs / fillAbs)
				applyExit(f.Idx, f.Price, closingFees, openAbs)
				parentID++
				remainder := fillAbs - openAbs
				remainderFees := f.Fees - closingFees
				newDir := directionOf(f.Side)
				entries = append(entries, TradeRecord{
					ID: nextID, Col: col, Size: remainder, EntryIdx: f.Idx, EntryPrice: f.Price,
					EntryFees: remainderFees, ExitIdx: -1, Direction: newDir, Status: Open, ParentID: parentID,
				})
				legs = append(legs, openLeg{row: len(entries) - 1, remaining: remainder})
				nextID++
				signedRemainder := remainder
				if newDir == Short {
					signedRemainder = -remainder
				}
				positionSize = signedRemainder
			}
		}
	}

	if len(legs) > 0 {
		finalizeOpenLegs(lastIdx, lastClose)
	}
	return entries
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

// ExitTrades builds one row per exit fill (spec.md §4.8): entry price is
// the size-weighted average of entries still open at the moment of the
// exit, and entry fees are prorated by exit_size/entry_size_sum.
func ExitTrades(fills []records.OrderRecord, col int, lastIdx int, lastClose float64) []TradeRecord {
	type entryLeg struct {
		price, fees, remaining float64
		entryIdx               int
	}
	var exits []TradeRecord
	var legs []entryLeg
	parentID := 0
	positionSize := 0.0
	nextID := 0

	for _, f := range fills {
		fillDir := directionOf(f.Side)
		fillSigned := f.Size
		if fillDir == Short {
			fillSigned = -f.Size
		}

		if positionSize == 0 || sameSign(positionSize, fillSigned) {
			legs = append(legs, entryLeg{price: f.Price, fees: f.Fees, remaining: f.Size, entryIdx: f.Idx})
			positionSize += fillSigned
			continue
		}

		// opposite-direction fill: consumes open legs, possibly flips
		openAbs := math.Abs(positionSize)
		fillAbs := f.Size
		exitSize := math.Min(fillAbs, openAbs)
		entrySizeSum := 0.0
		for _, lg := range legs {
			entrySizeSum += lg.remaining
		}
		weightedPrice, weightedFees := 0.0, 0.0
		remainingToConsume := exitSize
		for i := range legs {
			lg := &legs[i]
			if remainingToConsume <= 0 {
				break
			}
			share := lg.remaining
			if share > remainingToConsume {
				share = remainingToConsume
			}
			weight := share / exitSize
			weightedPrice += lg.price * weight
			if entrySizeSum > 0 {
				weightedFees += lg.fees * (share / entrySizeSum)
			}
			lg.remaining -= share
			remainingToConsume -= share
		}
		kept := legs[:0]
		for _, lg := range legs {
			if lg.remaining > 1e-12 {
				kept = append(kept, lg)
			}
		}
		legs = kept

		exitDir := Long
		if positionSize < 0 {
			exitDir = Short
		}
		pnl, ret := pnlReturn(weightedPrice, f.Price, exitSize, weightedFees, f.Fees*(exitSize/fillAbs), exitDir)
		exits = append(exits, TradeRecord{
			ID: nextID, Col: col, Size: exitSize, EntryIdx: f.Idx, EntryPrice: weightedPrice,
			EntryFees: weightedFees, ExitIdx: f.Idx, ExitPrice: f.Price, ExitFees: f.Fees * (exitSize / fillAbs),
			PnL: pnl, Return: ret, Direction: exitDir, Status: Closed, ParentID: parentID,
		})
		nextID++

		if fillAbs > openAbs+1e-12 {
			// flip: the remainder opens a new position
			remainder := fillAbs - openAbs
			parentID++
			legs = append(legs, entryLeg{price: f.Price, fees: f.Fees * (remainder / fillAbs), remaining: remainder, entryIdx: f.Idx})
			newDir := directionOf(f.Side)
			signedRemainder := remainder
			if newDir == Short {
				signedRemainder = -remainder
			}
			positionSize = signedRemainder
		} else {
			positionSize += fillSigned
			if math.Abs(positionSize) <= 1e-12 {
				positionSize = 0
				parentID++
			}
		}
	}

	if len(legs) > 0 && positionSize != 0 {
		entrySizeSum := 0.0
		for _, lg := range legs {
			entrySizeSum += lg.remaining
		}
		weightedPrice, weightedFees := 0.0, 0.0
		for _, lg := range legs {
			weight := lg.remaining / entrySizeSum
			weightedPrice += lg.price * weight
			weightedFees += lg.fees * weight
		}
		exitDir := Long
		if positionSize < 0 {
			exitDir = Short
		}
		pnl, ret := pnlReturn(weightedPrice, lastClose, entrySizeSum, weightedFees, 0, exitDir)
		exits = append(exits, TradeRecord{
			ID: nextID, Col: col, Size: entrySizeSum, EntryIdx: legs[0].entryIdx, EntryPrice: weightedPrice,
			EntryFees: weightedFees, ExitIdx: lastIdx, ExitPrice: lastClose, ExitFees: 0,
			PnL: pnl, Return: ret, Direction: exitDir, Status: Open, ParentID: parentID,
		})
	}
	return exits
}

// Positions aggregates either trade flavour by parent_id (spec.md §4.8):
// size, size-weighted entry/exit price, and summed fees, with pnl/return
// recomputed from the aggregated totals rather than summed across rows.
func Positions(trades []TradeRecord) []TradeRecord {
	if len(trades) == 0 {
		return nil
	}
	byParent := map[int][]TradeRecord{}
	var order []int
	for _, t := range trades {
		if _, ok := byParent[t.ParentID]; !ok {
			order = append(order, t.ParentID)
		}
		byParent[t.ParentID] = append(byParent[t.ParentID], t)
	}

	var out []TradeRecord
	for _, pid := range order {
		rows := byParent[pid]
		sizeSum, entryWeighted, exitWeighted, entryFeesSum, exitFeesSum := 0.0, 0.0, 0.0, 0.0, 0.0
		minEntryIdx, maxExitIdx := rows[0].EntryIdx, rows[0].ExitIdx
		status := Closed
		for _, r := range rows {
			sizeSum += r.Size
			entryWeighted += r.EntryPrice * r.Size
			exitWeighted += r.ExitPrice * r.Size
			entryFeesSum += r.EntryFees
			exitFeesSum += r.ExitFees
			if r.EntryIdx < minEntryIdx {
				minEntryIdx = r.EntryIdx
			}
			if r.ExitIdx > maxExitIdx {
				maxExitIdx = r.ExitIdx
			}
			if r.Status == Open {
				status = Open
			}
		}
		entryPrice, exitPrice := math.NaN(), math.NaN()
		if sizeSum > 0 {
			entryPrice = entryWeighted / sizeSum
			exitPrice = exitWeighted / sizeSum
		}
		pnl, ret := pnlReturn(entryPrice, exitPrice, sizeSum, entryFeesSum, exitFeesSum, rows[0].Direction)
		out = append(out, TradeRecord{
			ID: pid, Col: rows[0].Col, Size: sizeSum, EntryIdx: minEntryIdx, EntryPrice: entryPrice,
			EntryFees: entryFeesSum, ExitIdx: maxExitIdx, ExitPrice: exitPrice, ExitFees: exitFeesSum,
			PnL: pnl, Return: ret, Direction: rows[0].Direction, Status: status, ParentID: pid,
		})
	}
	return out
}
