package signal

import (
	"testing"

	"github.com/quantflow/futures-engine/internal/indicators"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func warmedUpSnapshot() Snapshot {
	return Snapshot{
		Symbol: "BTCUSDT",
		Price:  100,
		Open:   99,
		Close:  100,
		VWAP:   valid(99.5),
		BBLower: valid(98),
		BBUpper: valid(103),
		ADX14:  valid(30),
		SMAVolume20: valid(10),
		Volume: 25,
		StochRSI: indicators.StochRSIResult{
			K: 25, PrevK: 15, D: 20, IsWarmedUp: true,
		},
	}
}

func TestGenerator_BuyFiresOnFourOfFive(t *testing.T) {
	snap := warmedUpSnapshot()
	snap.Volume = 15 // 1.5x the average: below the 2.0 spike threshold, so only four buy conditions fire
	gen := NewGenerator(DefaultGeneratorConfig())

	sig := gen.Generate(snap, 10000)

	require.NotNil(t, sig)
	assert.Equal(t, DirectionBuy, sig.Direction)
	assert.GreaterOrEqual(t, sig.Confidence, 0.6)
	assert.LessOrEqual(t, sig.Confidence, 1.0)
	assert.Less(t, sig.StopLoss, sig.EntryPrice)
	assert.Less(t, sig.EntryPrice, sig.TPLevels.TP1)
	assert.LessOrEqual(t, sig.TPLevels.TP1, sig.TPLevels.TP2)
	assert.LessOrEqual(t, sig.TPLevels.TP2, sig.TPLevels.TP3)
}

func TestGenerator_HardFilterVetoesWeakTrend(t *testing.T) {
	snap := warmedUpSnapshot()
	snap.ADX14 = valid(10) // below the 25 hard filter

	gen := NewGenerator(DefaultGeneratorConfig())
	sig := gen.Generate(snap, 10000)

	assert.Equal(t, DirectionNeutral, sig.Direction)
	assert.Contains(t, sig.Reasons, "hard_filter_adx_veto")
}

func TestGenerator_InsufficientHistoryIsNeutral(t *testing.T) {
	gen := NewGenerator(DefaultGeneratorConfig())
	sig := gen.Generate(Snapshot{Symbol: "ETHUSDT"}, 10000)

	assert.Equal(t, DirectionNeutral, sig.Direction)
	assert.Contains(t, sig.Reasons, "insufficient_history")
}

func TestGenerator_NoMajorityIsNeutral(t *testing.T) {
	snap := warmedUpSnapshot()
	// Flatten every condition: price sits on VWAP, no stoch cross, flat
	// candle, no volume spike. Neither direction reaches 4/5.
	snap.Price = 100
	snap.VWAP = valid(100)
	snap.Close = 100
	snap.Open = 100
	snap.Volume = 5
	snap.StochRSI = indicators.StochRSIResult{K: 50, PrevK: 50, D: 50, IsWarmedUp: true}

	gen := NewGenerator(DefaultGeneratorConfig())
	sig := gen.Generate(snap, 10000)

	assert.Equal(t, DirectionNeutral, sig.Direction)
	assert.Contains(t, sig.Reasons, "no_condition_majority")
}

func TestGenerator_ZeroBalanceSkipsSizing(t *testing.T) {
	snap := warmedUpSnapshot()
	gen := NewGenerator(DefaultGeneratorConfig())

	sig := gen.Generate(snap, 0)

	assert.Equal(t, 0.0, sig.PositionSize)
}
