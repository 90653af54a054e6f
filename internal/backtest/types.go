package backtest

import (
	"time"

	"github.com/quantflow/futures-engine/internal/signal"
	"github.com/quantflow/futures-engine/internal/simulator"
)

// Candle is one OHLCV bar of replay input for a single symbol.
type Candle struct {
	Symbol string
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Config configures one backtest run. Every symbol in Symbols must have
// an aligned (same length, same bar timestamps) series in the Run call's
// input map — see §4.12.
type Config struct {
	Symbols        []string
	CandleCapacity int // ring buffer depth per symbol, mirrors TradingConfig.Candle1mCapacity
	WarmupBars     int // bars to skip before the generator is given a chance to warm up
	Generator      signal.GeneratorConfig
	Confirmation   signal.ConfirmationConfig
	Simulator      simulator.Config
	CommissionBps  float64 // per side, e.g. 4 = 0.04%
	SlippageBps    float64 // per side, applied as a flat cost overlay alongside commission
	ATRTrailMult   float64 // ATR%-scaled trailing distance, replacing Simulator.Config.TrailPct for this run
}

// DefaultConfig returns backtest-only tunables per §4.6.4: 4bps
// commission per side, 2bps base slippage per side, and a 1.5x ATR
// trailing multiplier.
func DefaultConfig() Config {
	return Config{
		CandleCapacity: 500,
		WarmupBars:     50,
		Generator:      signal.DefaultGeneratorConfig(),
		Confirmation:   signal.DefaultConfirmationConfig(),
		Simulator:      simulator.DefaultConfig(),
		CommissionBps:  4,
		SlippageBps:    2,
		ATRTrailMult:   1.5,
	}
}

// Trade is a closed or cancelled position flattened for reporting,
// sourced from the shared Simulator's history rather than a parallel
// ledger.
type Trade struct {
	Symbol      string
	Side        simulator.Side
	EntryPrice  float64
	ExitPrice   float64
	Quantity    float64
	EntryTime   time.Time
	ExitTime    time.Time
	RealizedPnL float64
	Reason      simulator.CloseReason
}

// EquityPoint is one step of the recorded equity curve: wallet balance
// plus unrealized PnL across every symbol's open position, marked at
// that bar's close.
type EquityPoint struct {
	Timestamp time.Time
	Equity    float64
	Cash      float64
	Drawdown  float64
}

// Metrics summarizes a completed run. Commission/slippage are reported
// as a cost overlay on top of the Simulator's frictionless realized
// PnL rather than folded into position sizing — see DESIGN.md's
// resolution of this Open Question.
type Metrics struct {
	StartingCapital     float64
	EndingCapital       float64
	NetProfit           float64
	TotalReturn         float64
	MaxDrawdown         float64
	SharpeRatio         float64
	TotalTrades         int
	WinningTrades       int
	LosingTrades        int
	WinRate             float64
	ProfitFactor        float64
	AvgWin              float64
	AvgLoss             float64
	LargestWin          float64
	LargestLoss         float64
	Expectancy          float64
	TotalCommission     float64
	TotalSlippage       float64
	NetProfitAfterCosts float64
}

// Result is the complete output of one backtest run.
type Result struct {
	Config        Config
	Metrics       Metrics
	EquityCurve   []EquityPoint
	Trades        []Trade
	StartTime     time.Time
	EndTime       time.Time
	ExecutionTime time.Duration
}
