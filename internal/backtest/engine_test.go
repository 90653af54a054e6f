package backtest

import (
	"testing"
	"time"

	"github.com/quantflow/futures-engine/internal/simulator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flatSeries(symbol string, bars int, start time.Time) []Candle {
	series := make([]Candle, bars)
	price := 100.0
	for i := 0; i < bars; i++ {
		series[i] = Candle{
			Symbol: symbol,
			Time:   start.Add(time.Duration(i) * time.Minute),
			Open:   price,
			High:   price + 0.5,
			Low:    price - 0.5,
			Close:  price,
			Volume: 10,
		}
	}
	return series
}

func TestEngine_RunRejectsMisalignedSeries(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Symbols = []string{"BTCUSDT", "ETHUSDT"}
	e := NewEngine(cfg)

	start := time.Now()
	data := map[string][]Candle{
		"BTCUSDT": flatSeries("BTCUSDT", 100, start),
		"ETHUSDT": flatSeries("ETHUSDT", 50, start),
	}

	_, err := e.Run(data)
	assert.Error(t, err)
}

func TestEngine_RunFlatMarketProducesNoTrades(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Symbols = []string{"BTCUSDT"}
	cfg.WarmupBars = 30
	e := NewEngine(cfg)

	start := time.Now()
	data := map[string][]Candle{
		"BTCUSDT": flatSeries("BTCUSDT", 120, start),
	}

	result, err := e.Run(data)
	require.NoError(t, err)
	assert.Len(t, result.EquityCurve, 120)
	assert.Equal(t, cfg.Simulator.InitialBalance, result.Metrics.StartingCapital)
	// A perfectly flat tape never satisfies the generator's trend/trigger
	// conditions, so no position should ever open.
	assert.Empty(t, result.Trades)
	assert.Equal(t, result.Metrics.StartingCapital, result.Metrics.EndingCapital)
}

func TestIntrabarLegs_BullishBarWalksLowBeforeHigh(t *testing.T) {
	c := Candle{Open: 100, High: 110, Low: 95, Close: 105, Time: time.Now()}
	legs := intrabarLegs(c)

	assert.Equal(t, 95.0, legs[0].Close, "bullish bar should visit the low before the high")
	assert.Equal(t, 110.0, legs[1].Close)
	assert.Equal(t, 105.0, legs[2].Close)
}

func TestIntrabarLegs_BearishBarWalksHighBeforeLow(t *testing.T) {
	c := Candle{Open: 100, High: 110, Low: 95, Close: 98, Time: time.Now()}
	legs := intrabarLegs(c)

	assert.Equal(t, 110.0, legs[0].Close, "bearish bar should visit the high before the low")
	assert.Equal(t, 95.0, legs[1].Close)
	assert.Equal(t, 98.0, legs[2].Close)
}

func TestBuildTrades_ExitPriceDerivedFromRealizedPnL(t *testing.T) {
	history := []*simulator.Position{
		{
			Symbol:      "BTCUSDT",
			Side:        simulator.SideLong,
			Status:      simulator.StatusClosed,
			EntryPrice:  100,
			Quantity:    2,
			RealizedPnL: 20, // (exit-100)*2 = 20 -> exit 110
			CloseReason: simulator.ReasonTakeProfit,
		},
		{
			Symbol:      "ETHUSDT",
			Side:        simulator.SideShort,
			Status:      simulator.StatusClosed,
			EntryPrice:  50,
			Quantity:    4,
			RealizedPnL: -12, // (50-exit)*4 = -12 -> exit 53
			CloseReason: simulator.ReasonStopLoss,
		},
		{
			Symbol:      "SOLUSDT",
			Side:        simulator.SideLong,
			Status:      simulator.StatusCancelled,
			CloseReason: simulator.ReasonTTLExpired,
		},
	}

	trades := buildTrades(history)
	require.Len(t, trades, 3)
	assert.InDelta(t, 110, trades[0].ExitPrice, 1e-9)
	assert.InDelta(t, 53, trades[1].ExitPrice, 1e-9)
	assert.Equal(t, 0.0, trades[2].ExitPrice)
}

func TestComputeMetrics_CostOverlayReducesNetProfit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Symbols = []string{"BTCUSDT"}
	cfg.CommissionBps = 4
	cfg.SlippageBps = 2
	e := NewEngine(cfg)

	result := &Result{
		Trades: []Trade{
			{Symbol: "BTCUSDT", EntryPrice: 100, Quantity: 10, RealizedPnL: 50, Reason: simulator.ReasonTakeProfit},
			{Symbol: "BTCUSDT", EntryPrice: 100, Quantity: 10, RealizedPnL: -20, Reason: simulator.ReasonStopLoss},
		},
		EquityCurve: []EquityPoint{
			{Equity: cfg.Simulator.InitialBalance},
			{Equity: cfg.Simulator.InitialBalance + 30},
		},
	}

	sim := simulator.NewSimulator(cfg.Simulator, &fakeOracle{prices: map[string]float64{"BTCUSDT": 100}})
	m := e.computeMetrics(sim, result)

	assert.Equal(t, 2, m.TotalTrades)
	assert.Equal(t, 1, m.WinningTrades)
	assert.Equal(t, 1, m.LosingTrades)
	assert.Greater(t, m.TotalCommission, 0.0)
	assert.Greater(t, m.TotalSlippage, 0.0)
	assert.Less(t, m.NetProfitAfterCosts, m.NetProfit)
}

type fakeOracle struct {
	prices map[string]float64
}

func (f *fakeOracle) LatestPrice(symbol string) (float64, bool) {
	p, ok := f.prices[symbol]
	return p, ok
}
