package signal

import (
	"github.com/quantflow/futures-engine/internal/indicators"
)

// value is a NULL-capable indicator reading. The zero value is
// "not warmed up"; code must check Valid before trusting Float64, since
// a legitimate indicator output of 0 must not be confused with "not yet
// computed".
type value struct {
	Float64 float64
	Valid   bool
}

func valid(v float64) value { return value{Float64: v, Valid: true} }

// Snapshot is the aligned view of every indicator the generator needs
// at a single candle close, per §4.2/§3's IndicatorSnapshot entity.
type Snapshot struct {
	Symbol string

	Price float64
	Open  float64
	High  float64
	Low   float64
	Close float64
	Volume float64

	EMA7  value
	EMA25 value
	EMA99 value

	RSI6  value
	RSI14 value

	BBUpper  value
	BBMiddle value
	BBLower  value

	StochRSI indicators.StochRSIResult

	VWAP value

	ATR14 value

	ADX14   value
	PlusDI  value
	MinusDI value

	SMAVolume20 value
}

// minWarmup is the longest lookback among the calculators below (EMA99),
// below which the snapshot is considered entirely cold.
const minWarmup = 99

// BuildSnapshot computes every indicator in §4.2 over the supplied
// window, ordered oldest-first. candles shorter than a calculator's
// minimum length leave that calculator's value NULL (Valid=false).
func BuildSnapshot(symbol string, opens, highs, lows, closes, volumes []float64, vwapSeries []float64) Snapshot {
	n := len(closes)
	snap := Snapshot{Symbol: symbol}
	if n == 0 {
		return snap
	}

	snap.Open = opens[n-1]
	snap.High = highs[n-1]
	snap.Low = lows[n-1]
	snap.Close = closes[n-1]
	snap.Price = closes[n-1]
	snap.Volume = volumes[n-1]

	if ema := indicators.EMA(closes, 7); len(ema) > 0 {
		snap.EMA7 = valid(ema[len(ema)-1])
	}
	if ema := indicators.EMA(closes, 25); len(ema) > 0 {
		snap.EMA25 = valid(ema[len(ema)-1])
	}
	if ema := indicators.EMA(closes, 99); len(ema) > 0 {
		snap.EMA99 = valid(ema[len(ema)-1])
	}

	if n >= 7 {
		snap.RSI6 = valid(indicators.RSILast(closes, 6))
	}
	if n >= 15 {
		snap.RSI14 = valid(indicators.RSILast(closes, 14))
	}

	if n >= 20 {
		bb := indicators.NewBollingerBands(20, 2.0, 0.05)
		r := bb.Calculate(closes)
		snap.BBUpper = valid(r.Upper)
		snap.BBMiddle = valid(r.Middle)
		snap.BBLower = valid(r.Lower)
	}

	snap.StochRSI = indicators.StochRSIKD(closes, 14, 14, 3, 3)

	if len(vwapSeries) > 0 {
		snap.VWAP = valid(vwapSeries[len(vwapSeries)-1])
	}

	if n >= 15 {
		atr := indicators.NewATR(14, 1.5)
		r := atr.Calculate(highs, lows, closes)
		if r.ATR > 0 {
			snap.ATR14 = valid(r.ATR)
		}
	}

	if n >= 29 {
		adx := indicators.NewADX(14, 25)
		r := adx.Calculate(highs, lows, closes)
		snap.ADX14 = valid(r.ADX)
		snap.PlusDI = valid(r.PlusDI)
		snap.MinusDI = valid(r.MinusDI)
	}

	if n >= 20 {
		window := volumes[n-20:]
		snap.SMAVolume20 = valid(indicators.Mean(window))
	}

	return snap
}

// NearLowerBand reports price <= lower*(1+tol), tol defaulting to 0.015
// per §4.2.
func NearLowerBand(price float64, lower value, tol float64) bool {
	if !lower.Valid {
		return false
	}
	return price <= lower.Float64*(1+tol)
}

// NearUpperBand is the SELL-side mirror of NearLowerBand.
func NearUpperBand(price float64, upper value, tol float64) bool {
	if !upper.Valid {
		return false
	}
	return price >= upper.Float64*(1-tol)
}

// DistanceFromVWAPPct returns the absolute percentage distance of price
// from VWAP; returns a large sentinel when VWAP is not warmed up so
// "< 1.0" checks fail closed rather than panicking on NaN.
func DistanceFromVWAPPct(price float64, vwap value) float64 {
	if !vwap.Valid || vwap.Float64 == 0 {
		return 1e9
	}
	d := (price - vwap.Float64) / vwap.Float64 * 100
	if d < 0 {
		d = -d
	}
	return d
}

// VolumeSpike reports current >= threshold*average, with threshold
// defaulting to 2.0, and the spike intensity (current/average).
func VolumeSpike(current float64, average value, threshold float64) (spike bool, intensity float64) {
	if !average.Valid || average.Float64 <= 0 {
		return false, 0
	}
	intensity = current / average.Float64
	return intensity >= threshold, intensity
}
