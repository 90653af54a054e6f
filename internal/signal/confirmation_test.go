package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buySignal(symbol string) *TradingSignal {
	sig := NewTradingSignal()
	sig.Symbol = symbol
	sig.Direction = DirectionBuy
	return sig
}

func sellSignal(symbol string) *TradingSignal {
	sig := NewTradingSignal()
	sig.Symbol = symbol
	sig.Direction = DirectionSell
	return sig
}

func TestConfirmationGate_ReleasesOnSecondSameDirection(t *testing.T) {
	gate := NewConfirmationGate(DefaultConfirmationConfig())

	released, ok := gate.Process(buySignal("BTCUSDT"))
	assert.False(t, ok)
	assert.Nil(t, released)

	second := buySignal("BTCUSDT")
	released, ok = gate.Process(second)
	require.True(t, ok)
	assert.Same(t, second, released)
}

func TestConfirmationGate_OppositeDirectionResets(t *testing.T) {
	gate := NewConfirmationGate(DefaultConfirmationConfig())

	gate.Process(buySignal("BTCUSDT"))
	_, ok := gate.Process(sellSignal("BTCUSDT"))
	assert.False(t, ok)

	direction, count, _, found := gate.Pending("BTCUSDT")
	require.True(t, found)
	assert.Equal(t, DirectionSell, direction)
	assert.Equal(t, 1, count)
}

func TestConfirmationGate_MaxWaitResetsAccumulation(t *testing.T) {
	gate := NewConfirmationGate(ConfirmationConfig{MinConfirmations: 2, MaxWait: 10 * time.Millisecond})

	start := time.Now()
	gate.now = func() time.Time { return start }
	gate.Process(buySignal("ETHUSDT"))

	gate.now = func() time.Time { return start.Add(1 * time.Hour) }
	_, ok := gate.Process(buySignal("ETHUSDT"))

	assert.False(t, ok)
	_, count, _, _ := gate.Pending("ETHUSDT")
	assert.Equal(t, 1, count)
}

func TestConfirmationGate_NeutralSignalsAreIgnored(t *testing.T) {
	gate := NewConfirmationGate(DefaultConfirmationConfig())
	sig := NewTradingSignal()
	sig.Direction = DirectionNeutral

	released, ok := gate.Process(sig)
	assert.False(t, ok)
	assert.Nil(t, released)
	_, _, _, found := gate.Pending(sig.Symbol)
	assert.False(t, found)
}

func TestConfirmationGate_Reset(t *testing.T) {
	gate := NewConfirmationGate(DefaultConfirmationConfig())
	gate.Process(buySignal("BTCUSDT"))
	gate.Reset("BTCUSDT")

	_, _, _, found := gate.Pending("BTCUSDT")
	assert.False(t, found)
}
