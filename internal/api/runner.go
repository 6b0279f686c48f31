package api

import (
	"fmt"
	"math"
	"math/rand"

	"backtest-core/aggregate"
	"backtest-core/execution"
	"backtest-core/internal/strategies"
	"backtest-core/records"
	"backtest-core/series"
	"backtest-core/signal"
	"backtest-core/simulate"
	"backtest-core/stop"
)

// RunRequest is the single-column simulation request accepted over HTTP.
// Only one column/one group is exposed at this surface; the core itself
// supports arbitrary groups and cash sharing, but a JSON request body
// is a poor fit for describing a full column/group matrix.
type RunRequest struct {
	Driver    string    `json:"driver" binding:"required"` // "from_orders" or "from_signals"
	Symbol    string    `json:"symbol"`
	Open      []float64 `json:"open" binding:"required"`
	High      []float64 `json:"high"`
	Low       []float64 `json:"low"`
	Close     []float64 `json:"close" binding:"required"`
	InitCash  float64   `json:"init_cash"`
	Fees      float64   `json:"fees"`
	FixedFees float64   `json:"fixed_fees"`
	Slippage  float64   `json:"slippage"`

	// from_orders: one Amount-typed order size per bar; positive buys,
	// negative sells, zero/NaN skips the bar.
	Sizes []float64 `json:"sizes"`

	// from_signals: either a named strategy preset, or explicit
	// per-bar entry/exit booleans.
	StrategyID string           `json:"strategy_id"`
	Signals    []SignalsRequest `json:"signals"`
	SLStop     float64          `json:"sl_stop"`
	TPStop     float64          `json:"tp_stop"`
}

// SignalsRequest is the wire shape of one bar's direction-aware signals.
type SignalsRequest struct {
	LongEntry  bool `json:"long_entry"`
	LongExit   bool `json:"long_exit"`
	ShortEntry bool `json:"short_entry"`
	ShortExit  bool `json:"short_exit"`
}

// RunResult is what a completed run reports back to the caller.
type RunResult struct {
	Bars         int                     `json:"bars"`
	Fills        []records.OrderRecord   `json:"fills"`
	EntryTrades  []aggregate.TradeRecord `json:"entry_trades"`
	ExitTrades   []aggregate.TradeRecord `json:"exit_trades"`
	Positions    []aggregate.TradeRecord `json:"positions"`
	FinalValue   float64                 `json:"final_value"`
	TotalProfit  float64                 `json:"total_profit"`
	Value        []float64               `json:"value"`
	GrossExpo    []float64               `json:"gross_exposure"`
	CashFlowFree []float64               `json:"cash_flow_free"`
}

func (req *RunRequest) fillOHLC() {
	if len(req.High) == 0 {
		req.High = req.Close
	}
	if len(req.Low) == 0 {
		req.Low = req.Close
	}
}

func (req *RunRequest) area(i int) execution.PriceArea {
	return execution.PriceArea{Open: req.Open[i], High: req.High[i], Low: req.Low[i], Close: req.Close[i]}
}

// runSimulation executes one single-column request against the core
// packages and returns the aggregated/derived output.
func runSimulation(req RunRequest, presets map[string]strategies.Preset) (*RunResult, error) {
	bars := len(req.Close)
	if bars == 0 || len(req.Open) != bars {
		return nil, fmt.Errorf("open/close series must be equal length and non-empty")
	}
	req.fillOHLC()
	if req.InitCash <= 0 {
		req.InitCash = 10000
	}

	rt, err := simulate.NewRuntime(bars, []int{1}, false, []float64{req.InitCash}, []float64{0}, bars, bars)
	if err != nil {
		return nil, err
	}

	callSeq := make([][]int, bars)
	for i := range callSeq {
		callSeq[i] = []int{0}
	}
	rng := rand.New(rand.NewSource(1))
	prices := func(i, col int) execution.PriceArea { return req.area(i) }

	switch req.Driver {
	case "from_orders":
		if len(req.Sizes) != bars {
			return nil, fmt.Errorf("sizes must have the same length as close (%d)", bars)
		}
		orderSrc := func(i, col int) (execution.Order, bool) {
			size := req.Sizes[i]
			if size == 0 || math.IsNaN(size) {
				return execution.Order{}, false
			}
			o := execution.DefaultOrder()
			o.Size = size
			o.Fees = req.Fees
			o.FixedFees = req.FixedFees
			o.Slippage = req.Slippage
			return o, true
		}
		if err := simulate.SimulateFromOrders(simulate.FromOrdersInputs{
			Runtime: rt, CallSeq: callSeq, FfillValPrice: true,
			Orders: orderSrc, Prices: prices, RNG: rng,
		}); err != nil {
			return nil, err
		}

	case "from_signals":
		sigs, err := resolveSignals(req, presets, bars)
		if err != nil {
			return nil, err
		}
		regs := []stop.Registers{stop.NewRegisters()}
		signalSrc := func(i, col int) signal.Signals { return sigs[i] }
		cfgSrc := func(i, col int) signal.Config {
			return signal.Config{
				EntrySize: 1, EntrySizeType: execution.Amount,
				OppositeEntryMode: signal.OppositeReverse,
			}
		}
		stopParams := func(i, col int) simulate.StopParams {
			// EntryClose: arm SL/TP off the entry bar's close. The zero
			// value (EntryValPrice) would also resolve correctly now
			// that the reference is threaded through, but a fixed
			// close-based reference is the least surprising default
			// for a caller that never specifies val_price semantics.
			return simulate.StopParams{
				SLStop:         req.SLStop,
				TPStop:         req.TPStop,
				EntryPriceMode: stop.EntryClose,
			}
		}
		if err := simulate.SimulateFromSignals(simulate.FromSignalsInputs{
			Runtime: rt, CallSeq: callSeq, FfillValPrice: true,
			Signals: signalSrc, SignalConfig: cfgSrc, StopParamsOf: stopParams,
			Prices: prices, StopRegs: regs,
			Fees: req.Fees, FixedFees: req.FixedFees, Slippage: req.Slippage, RNG: rng,
		}); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unknown driver %q", req.Driver)
	}

	fills := rt.OrderBufs[0].Records()
	lastClose := req.Close[bars-1]

	entries := aggregate.EntryTrades(fills, 0, bars-1, lastClose)
	exits := aggregate.ExitTrades(fills, 0, bars-1, lastClose)
	positions := aggregate.Positions(entries)

	assetFlow := series.AssetFlow(fills, bars, series.Both)
	assets := series.Assets(assetFlow, 0)
	cashFlow := series.CashFlowNonFree(fills, bars)
	cash := series.Cash(cashFlow, req.InitCash)
	assetValue := series.AssetValue(assets, req.Close)
	value := series.Value(cash, assetValue)
	grossExpo := series.GrossExposure(assetValue, cash)
	totalProfit := series.TotalProfit(fills, req.InitCash, 0, lastClose)
	cashFlowFree := series.CashFlowFree(rt.FreeCashSeries[0], req.InitCash)

	return &RunResult{
		Bars:         bars,
		Fills:        fills,
		EntryTrades:  entries,
		ExitTrades:   exits,
		Positions:    positions,
		FinalValue:   value[bars-1],
		TotalProfit:  totalProfit,
		Value:        value,
		GrossExpo:    grossExpo,
		CashFlowFree: cashFlowFree,
	}, nil
}

func resolveSignals(req RunRequest, presets map[string]strategies.Preset, bars int) ([]signal.Signals, error) {
	if req.StrategyID != "" {
		preset, ok := presets[req.StrategyID]
		if !ok {
			return nil, fmt.Errorf("unknown strategy preset %q", req.StrategyID)
		}
		gen, err := strategies.Build(preset)
		if err != nil {
			return nil, err
		}
		return gen.Generate(req.Close), nil
	}

	if len(req.Signals) != bars {
		return nil, fmt.Errorf("signals must have the same length as close (%d), or set strategy_id", bars)
	}
	out := make([]signal.Signals, bars)
	for i, s := range req.Signals {
		out[i] = signal.Signals{
			LongEntry: s.LongEntry, LongExit: s.LongExit,
			ShortEntry: s.ShortEntry, ShortExit: s.ShortExit,
		}
	}
	return out, nil
}
