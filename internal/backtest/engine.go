// Package backtest replays aligned multi-symbol candle timelines
// through the shared paper-futures Simulator, walking each bar's
// intrabar path and allocating concurrent candidate signals with a
// "Shark-Tank" highest-confidence rule, per §4.12. Grounded on the
// lineage's internal/backtest/engine.go Run(candles) Result shape,
// re-targeted from its own standalone Portfolio/strategy.Scorer stack
// onto the C3-C6 signal/simulator components this engine shares with
// the realtime path.
package backtest

import (
	"fmt"
	"math"
	"time"

	"github.com/quantflow/futures-engine/internal/indicators"
	"github.com/quantflow/futures-engine/internal/signal"
	"github.com/quantflow/futures-engine/internal/simulator"
	"github.com/quantflow/futures-engine/internal/storage"
)

// Engine drives one deterministic backtest run.
type Engine struct {
	cfg Config
}

// NewEngine builds an Engine from cfg. A zero-value cfg is replaced
// with DefaultConfig.
func NewEngine(cfg Config) *Engine {
	if cfg.CandleCapacity == 0 {
		cfg = DefaultConfig()
	}
	return &Engine{cfg: cfg}
}

// symbolRun is one symbol's replay-local pipeline state: its candle
// ring, generator, confirmation gate, and session VWAP accumulator,
// mirroring realtime.SymbolContext's fields but driven by historical
// bars instead of live klines.
type symbolRun struct {
	queue *storage.CandleQueue
	gen   *signal.Generator
	gate  *signal.ConfirmationGate

	vwapCumVol     float64
	vwapCumPV      float64
	vwapSessionDay int
	vwapSeries     []float64
}

func newSymbolRun(cfg Config) *symbolRun {
	return &symbolRun{
		queue: storage.NewCandleQueue(cfg.CandleCapacity),
		gen:   signal.NewGenerator(cfg.Generator),
		gate:  signal.NewConfirmationGate(cfg.Confirmation),
	}
}

// push appends one closed bar and rolls the session VWAP forward,
// resetting at UTC midnight exactly as realtime.SymbolContext.updateVWAP
// does for the live path.
func (r *symbolRun) push(c Candle) {
	sc := storage.Candle{
		Symbol:    c.Symbol,
		OpenTime:  c.Time,
		CloseTime: c.Time,
		Open:      c.Open,
		High:      c.High,
		Low:       c.Low,
		Close:     c.Close,
		Volume:    c.Volume,
		IsClosed:  true,
	}
	r.queue.Push(sc)

	day := c.Time.UTC().YearDay()
	if day != r.vwapSessionDay {
		r.vwapSessionDay = day
		r.vwapCumVol = 0
		r.vwapCumPV = 0
	}
	typical := (c.High + c.Low + c.Close) / 3
	r.vwapCumPV += typical * c.Volume
	r.vwapCumVol += c.Volume

	vwap := c.Close
	if r.vwapCumVol > 0 {
		vwap = r.vwapCumPV / r.vwapCumVol
	}
	r.vwapSeries = append(r.vwapSeries, vwap)
	if len(r.vwapSeries) > 500 {
		r.vwapSeries = r.vwapSeries[len(r.vwapSeries)-500:]
	}
}

// replayOracle is a simulator.PriceOracle backed by the last bar close
// seen per symbol during replay, the backtest analogue of
// realtime.Oracle's live candle lookup.
type replayOracle struct {
	marks map[string]float64
}

func newReplayOracle() *replayOracle {
	return &replayOracle{marks: make(map[string]float64)}
}

func (o *replayOracle) set(symbol string, price float64) {
	o.marks[symbol] = price
}

func (o *replayOracle) LatestPrice(symbol string) (float64, bool) {
	p, ok := o.marks[symbol]
	return p, ok
}

type candidate struct {
	symbol string
	sig    *signal.TradingSignal
}

// Run replays data — one aligned, same-length, same-timestamped candle
// series per configured symbol — end to end and returns the recorded
// trades, equity curve, and summary metrics.
func (e *Engine) Run(data map[string][]Candle) (*Result, error) {
	if len(e.cfg.Symbols) == 0 {
		return nil, fmt.Errorf("backtest config has no symbols")
	}

	var barCount int
	for i, symbol := range e.cfg.Symbols {
		series, ok := data[symbol]
		if !ok || len(series) == 0 {
			return nil, fmt.Errorf("no candle data for symbol %s", symbol)
		}
		if i == 0 {
			barCount = len(series)
		} else if len(series) != barCount {
			return nil, fmt.Errorf("symbol %s has %d bars, expected %d (series must be aligned)", symbol, len(series), barCount)
		}
	}

	simCfg := e.cfg.Simulator
	simCfg.TrailPct = e.scaleTrailPct(data)

	oracle := newReplayOracle()
	sim := simulator.NewSimulator(simCfg, oracle)

	runs := make(map[string]*symbolRun, len(e.cfg.Symbols))
	for _, symbol := range e.cfg.Symbols {
		runs[symbol] = newSymbolRun(e.cfg)
	}

	result := &Result{Config: e.cfg, StartTime: time.Now()}
	peakEquity := simCfg.InitialBalance
	var lastBarTime time.Time

	for i := 0; i < barCount; i++ {
		barTime := data[e.cfg.Symbols[0]][i].Time
		lastBarTime = barTime

		var candidates []candidate
		for _, symbol := range e.cfg.Symbols {
			c := data[symbol][i]
			run := runs[symbol]
			run.push(c)
			oracle.set(symbol, c.Close)

			if i < e.cfg.WarmupBars {
				continue
			}

			opens, highs, lows, closes, volumes := run.queue.GetOHLCV()
			snap := signal.BuildSnapshot(symbol, opens, highs, lows, closes, volumes, run.vwapSeries)
			sig := run.gen.Generate(snap, sim.Balance())
			if sig.Direction == signal.DirectionNeutral {
				continue
			}

			run.gate.SetClock(func() time.Time { return barTime })
			if released, ok := run.gate.Process(sig); ok {
				candidates = append(candidates, candidate{symbol: symbol, sig: released})
			}
		}

		// Shark-Tank: among this bar's candidates across symbols, only
		// the single highest-confidence one is opened.
		if len(candidates) > 0 {
			best := candidates[0]
			for _, cand := range candidates[1:] {
				if cand.sig.Confidence > best.sig.Confidence {
					best = cand
				}
			}
			sim.OnNewSignal(best.sig, barTime)
		}

		for _, symbol := range e.cfg.Symbols {
			c := data[symbol][i]
			for _, leg := range intrabarLegs(c) {
				sim.Tick(symbol, leg)
			}
		}

		equity := sim.Balance()
		for _, symbol := range e.cfg.Symbols {
			if open, _ := sim.Position(symbol); open != nil {
				equity += open.UnrealizedPnL(data[symbol][i].Close)
			}
		}
		if equity > peakEquity {
			peakEquity = equity
		}
		drawdown := 0.0
		if peakEquity > 0 {
			drawdown = (peakEquity - equity) / peakEquity
		}
		result.EquityCurve = append(result.EquityCurve, EquityPoint{
			Timestamp: barTime,
			Equity:    equity,
			Cash:      sim.Balance(),
			Drawdown:  drawdown,
		})
	}

	for _, symbol := range e.cfg.Symbols {
		_ = sim.CloseOpen(symbol, simulator.ReasonManualClose, lastBarTime)
		_ = sim.CancelPending(symbol, simulator.ReasonManualClose, lastBarTime)
	}

	result.Trades = buildTrades(sim.History())
	result.Metrics = e.computeMetrics(sim, result)
	result.EndTime = time.Now()
	result.ExecutionTime = result.EndTime.Sub(result.StartTime)

	return result, nil
}

// intrabarLegs walks OPEN -> (LOW if bullish else HIGH) -> (HIGH if
// bullish else LOW) -> CLOSE per §4.6.3, returning three narrowing
// sub-candles so the shared Simulator's fill/exit checks run once per
// leg instead of once per bar.
func intrabarLegs(c Candle) [3]simulator.Candle {
	bullish := c.Close >= c.Open
	legA, legB := c.Low, c.High
	if !bullish {
		legA, legB = c.High, c.Low
	}
	return [3]simulator.Candle{
		{Open: c.Open, High: maxf(c.Open, legA), Low: minf(c.Open, legA), Close: legA, Time: c.Time},
		{Open: legA, High: maxf(legA, legB), Low: minf(legA, legB), Close: legB, Time: c.Time},
		{Open: legB, High: maxf(legB, c.Close), Low: minf(legB, c.Close), Close: c.Close, Time: c.Time},
	}
}

func buildTrades(history []*simulator.Position) []Trade {
	trades := make([]Trade, 0, len(history))
	for _, pos := range history {
		trades = append(trades, Trade{
			Symbol:      pos.Symbol,
			Side:        pos.Side,
			EntryPrice:  pos.EntryPrice,
			ExitPrice:   exitPrice(pos),
			Quantity:    pos.Quantity,
			EntryTime:   pos.OpenTime,
			ExitTime:    pos.CloseTime,
			RealizedPnL: pos.RealizedPnL,
			Reason:      pos.CloseReason,
		})
	}
	return trades
}

// exitPrice backs out the fill price from realized PnL since Position
// does not separately record it; cancelled orders (no fill) report 0.
func exitPrice(pos *simulator.Position) float64 {
	if pos.Status == simulator.StatusCancelled || pos.Quantity == 0 {
		return 0
	}
	if pos.Side == simulator.SideLong {
		return pos.EntryPrice + pos.RealizedPnL/pos.Quantity
	}
	return pos.EntryPrice - pos.RealizedPnL/pos.Quantity
}

// scaleTrailPct replaces the configured fixed TrailPct with one scaled
// by this run's measured average ATR%, the backtest's "ATR-distance
// trailing" addition from §4.6.4 applied to the shared Simulator's
// single-exit ROE ladder (see DESIGN.md for why partial-TP fraction
// splitting is not implemented on top of the live-shared Position model).
func (e *Engine) scaleTrailPct(data map[string][]Candle) float64 {
	if e.cfg.ATRTrailMult <= 0 {
		return e.cfg.Simulator.TrailPct
	}

	var sum float64
	var n int
	for _, symbol := range e.cfg.Symbols {
		series := data[symbol]
		highs := make([]float64, len(series))
		lows := make([]float64, len(series))
		closes := make([]float64, len(series))
		for i, c := range series {
			highs[i], lows[i], closes[i] = c.High, c.Low, c.Close
		}
		if pct := indicators.ATRPercentLast(highs, lows, closes, 14); pct > 0 {
			sum += pct
			n++
		}
	}
	if n == 0 {
		return e.cfg.Simulator.TrailPct
	}
	return (sum / float64(n)) * e.cfg.ATRTrailMult
}

func (e *Engine) computeMetrics(sim *simulator.Simulator, result *Result) Metrics {
	m := Metrics{
		StartingCapital: e.cfg.Simulator.InitialBalance,
		EndingCapital:   sim.Balance(),
	}
	m.NetProfit = m.EndingCapital - m.StartingCapital
	if m.StartingCapital > 0 {
		m.TotalReturn = m.NetProfit / m.StartingCapital
	}

	var totalWin, totalLoss, totalNotional float64
	for _, t := range result.Trades {
		if t.Reason == simulator.ReasonTTLExpired || t.Reason == simulator.ReasonNewSignalOverride {
			continue // cancelled, never filled — no PnL, no cost
		}
		m.TotalTrades++
		totalNotional += t.Quantity * t.EntryPrice
		if t.RealizedPnL >= 0 {
			m.WinningTrades++
			totalWin += t.RealizedPnL
			if t.RealizedPnL > m.LargestWin {
				m.LargestWin = t.RealizedPnL
			}
		} else {
			m.LosingTrades++
			totalLoss += math.Abs(t.RealizedPnL)
			if t.RealizedPnL < m.LargestLoss {
				m.LargestLoss = t.RealizedPnL
			}
		}
	}

	if m.TotalTrades > 0 {
		m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades)
	}
	if m.WinningTrades > 0 {
		m.AvgWin = totalWin / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AvgLoss = totalLoss / float64(m.LosingTrades)
	}
	if totalLoss > 0 {
		m.ProfitFactor = totalWin / totalLoss
	}
	m.Expectancy = m.WinRate*m.AvgWin - (1-m.WinRate)*m.AvgLoss

	m.TotalCommission = totalNotional * (e.cfg.CommissionBps / 10000) * 2
	m.TotalSlippage = totalNotional * (e.cfg.SlippageBps / 10000) * 2
	m.NetProfitAfterCosts = m.NetProfit - m.TotalCommission - m.TotalSlippage

	m.MaxDrawdown = maxDrawdown(result.EquityCurve)
	m.SharpeRatio = sharpeRatio(result.EquityCurve)

	return m
}

func maxDrawdown(curve []EquityPoint) float64 {
	max := 0.0
	for _, p := range curve {
		if p.Drawdown > max {
			max = p.Drawdown
		}
	}
	return max
}

func sharpeRatio(curve []EquityPoint) float64 {
	if len(curve) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev == 0 {
			continue
		}
		returns = append(returns, (curve[i].Equity-prev)/prev)
	}
	if len(returns) < 2 {
		return 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		diff := r - mean
		variance += diff * diff
	}
	variance /= float64(len(returns))
	stdDev := math.Sqrt(variance)
	if stdDev == 0 {
		return 0
	}
	return (mean / stdDev) * math.Sqrt(float64(len(returns)))
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
