package simulator

import (
	"testing"
	"time"

	"github.com/quantflow/futures-engine/internal/signal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOracle struct {
	prices map[string]float64
}

func (f *fakeOracle) LatestPrice(symbol string) (float64, bool) {
	p, ok := f.prices[symbol]
	return p, ok
}

func buySignalAt(symbol string, entry, sl, tp1 float64) *signal.TradingSignal {
	sig := signal.NewTradingSignal()
	sig.Symbol = symbol
	sig.Direction = signal.DirectionBuy
	sig.Price = entry
	sig.EntryPrice = entry
	sig.StopLoss = sl
	sig.TPLevels = signal.TPLevels{TP1: tp1, TP2: tp1 * 1.1, TP3: tp1 * 1.2}
	return sig
}

func newTestSimulator() *Simulator {
	oracle := &fakeOracle{prices: map[string]float64{"BTCUSDT": 100}}
	return NewSimulator(DefaultConfig(), oracle)
}

func TestSimulator_OpensPendingThenFills(t *testing.T) {
	sim := newTestSimulator()
	now := time.Now()

	sig := buySignalAt("BTCUSDT", 100, 95, 110)
	pos, reason := sim.OnNewSignal(sig, now)
	require.NotNil(t, pos)
	assert.Empty(t, reason)
	assert.Equal(t, StatusPending, pos.Status)

	sim.Tick("BTCUSDT", Candle{Open: 100, High: 101, Low: 99, Close: 100, Time: now.Add(time.Minute)})

	open, pending := sim.Position("BTCUSDT")
	assert.Nil(t, pending)
	require.NotNil(t, open)
	assert.Equal(t, StatusOpen, open.Status)
}

func TestSimulator_ZombieKillerCancelsPendingOnNewSignal(t *testing.T) {
	sim := newTestSimulator()
	now := time.Now()

	first, _ := sim.OnNewSignal(buySignalAt("BTCUSDT", 100, 95, 110), now)
	require.NotNil(t, first)

	second, reason := sim.OnNewSignal(buySignalAt("BTCUSDT", 99, 94, 109), now)
	require.NotNil(t, second)
	assert.Empty(t, reason)

	history := sim.History()
	require.Len(t, history, 1)
	assert.Equal(t, ReasonNewSignalOverride, history[0].CloseReason)
	assert.Equal(t, first.ID, history[0].ID)
}

func TestSimulator_CooldownRejectsSignalAfterClose(t *testing.T) {
	sim := newTestSimulator()
	now := time.Now()

	sim.OnNewSignal(buySignalAt("BTCUSDT", 100, 95, 110), now)
	sim.Tick("BTCUSDT", Candle{Open: 100, High: 101, Low: 99, Close: 100, Time: now})
	// Trigger a stop-loss exit to start the cooldown clock.
	sim.Tick("BTCUSDT", Candle{Open: 100, High: 100, Low: 93, Close: 94, Time: now.Add(time.Minute)})

	open, _ := sim.Position("BTCUSDT")
	assert.Nil(t, open)

	_, reason := sim.OnNewSignal(buySignalAt("BTCUSDT", 100, 95, 110), now.Add(2*time.Minute))
	assert.Equal(t, "cooldown_active", reason)
}

func TestSimulator_LiquidationTakesPriorityOverStopLoss(t *testing.T) {
	sim := newTestSimulator()
	now := time.Now()

	sig := buySignalAt("BTCUSDT", 100, 95, 110)
	sim.OnNewSignal(sig, now)
	sim.Tick("BTCUSDT", Candle{Open: 100, High: 101, Low: 99, Close: 100, Time: now})

	open, _ := sim.Position("BTCUSDT")
	require.NotNil(t, open)

	// Drive price below both the liquidation price and the stop loss
	// in the same candle; liquidation must win.
	crashLow := open.LiquidationPrice - 1
	sim.Tick("BTCUSDT", Candle{Open: 100, High: 100, Low: crashLow, Close: crashLow, Time: now.Add(time.Minute)})

	history := sim.History()
	require.NotEmpty(t, history)
	last := history[len(history)-1]
	assert.Equal(t, ReasonLiquidation, last.CloseReason)
}

func TestSimulator_TakeProfitExit(t *testing.T) {
	sim := newTestSimulator()
	now := time.Now()

	sim.OnNewSignal(buySignalAt("BTCUSDT", 100, 95, 110), now)
	sim.Tick("BTCUSDT", Candle{Open: 100, High: 101, Low: 99, Close: 100, Time: now})

	// Close back at entry keeps ROE below the breakeven/trailing
	// thresholds, so the stop stays at 95 and the bar exits at TP1.
	sim.Tick("BTCUSDT", Candle{Open: 100, High: 111, Low: 100, Close: 100, Time: now.Add(time.Minute)})

	open, _ := sim.Position("BTCUSDT")
	assert.Nil(t, open)

	history := sim.History()
	last := history[len(history)-1]
	assert.Equal(t, ReasonTakeProfit, last.CloseReason)
	assert.Greater(t, last.RealizedPnL, 0.0)
}

func TestSimulator_PendingTTLExpires(t *testing.T) {
	sim := newTestSimulator()
	now := time.Now()

	sim.OnNewSignal(buySignalAt("BTCUSDT", 50, 45, 60), now)

	sim.Tick("BTCUSDT", Candle{Open: 100, High: 101, Low: 99, Close: 100, Time: now.Add(46 * time.Minute)})

	_, pending := sim.Position("BTCUSDT")
	assert.Nil(t, pending)

	history := sim.History()
	require.Len(t, history, 1)
	assert.Equal(t, ReasonTTLExpired, history[0].CloseReason)
}

func TestSimulator_MaxPositionsCapBlocksNewSymbol(t *testing.T) {
	oracle := &fakeOracle{prices: map[string]float64{
		"AAAUSDT": 100, "BBBUSDT": 100, "CCCUSDT": 100, "DDDUSDT": 100,
	}}
	cfg := DefaultConfig()
	cfg.MaxPositions = 3
	sim := NewSimulator(cfg, oracle)
	now := time.Now()

	for _, symbol := range []string{"AAAUSDT", "BBBUSDT", "CCCUSDT"} {
		pos, reason := sim.OnNewSignal(buySignalAt(symbol, 100, 95, 110), now)
		require.NotNil(t, pos, symbol)
		assert.Empty(t, reason)
	}

	_, reason := sim.OnNewSignal(buySignalAt("DDDUSDT", 100, 95, 110), now)
	assert.Equal(t, "max_positions_reached", reason)
}

func TestSimulator_SameDirectionSignalHoldsRatherThanNewPosition(t *testing.T) {
	sim := newTestSimulator()
	now := time.Now()

	sim.OnNewSignal(buySignalAt("BTCUSDT", 100, 95, 110), now)
	sim.Tick("BTCUSDT", Candle{Open: 100, High: 101, Low: 99, Close: 100, Time: now})

	_, reason := sim.OnNewSignal(buySignalAt("BTCUSDT", 100, 95, 110), now.Add(time.Hour))
	assert.Equal(t, "same_direction_hold", reason)
}
