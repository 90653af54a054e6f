package indicators

// ATR wraps a period and a high-volatility threshold for repeated
// Average True Range reads against a rolling OHLC window.
type ATR struct {
	period           int
	highVolThreshold float64
}

// NewATR creates an ATR reader, defaulting period to 14 and the
// high-volatility threshold to 1.5% when given a non-positive value.
func NewATR(period int, highVolThreshold float64) *ATR {
	if period <= 0 {
		period = 14
	}
	if highVolThreshold <= 0 {
		highVolThreshold = 1.5
	}
	return &ATR{period: period, highVolThreshold: highVolThreshold}
}

// Calculate computes ATR across the full OHLC series and returns the
// most recent reading, expressed both in price units and as a percent
// of the latest close.
func (a *ATR) Calculate(highs, lows, closes []float64) ATRResult {
	atr := ATRSeries(highs, lows, closes, a.period)
	if len(atr) == 0 {
		return ATRResult{}
	}

	value := atr[len(atr)-1]
	close := closes[len(closes)-1]

	var pct float64
	if close > 0 {
		pct = (value / close) * 100
	}

	return ATRResult{
		ATR:            value,
		ATRPercent:     pct,
		HighVolatility: pct > a.highVolThreshold,
	}
}

// ATRSeries computes Wilder's Average True Range across an OHLC
// series, seeded by the simple average of the first `period` true
// ranges and smoothed thereafter.
func ATRSeries(highs, lows, closes []float64, period int) []float64 {
	if len(highs) < period+1 || len(highs) != len(lows) || len(highs) != len(closes) {
		return nil
	}

	tr := TrueRanges(highs, lows, closes)
	if tr == nil {
		return nil
	}

	out := make([]float64, len(tr)-period+1)
	out[0] = Mean(tr[:period])

	for i := 1; i < len(out); i++ {
		out[i] = (out[i-1]*float64(period-1) + tr[period-1+i]) / float64(period)
	}
	return out
}

// ATRLast returns only the most recent ATR value.
func ATRLast(highs, lows, closes []float64, period int) float64 {
	atr := ATRSeries(highs, lows, closes, period)
	if len(atr) == 0 {
		return 0
	}
	return atr[len(atr)-1]
}

// ATRPercentLast returns the most recent ATR expressed as a percent of
// the latest close, the normalization the backtest engine uses to
// scale its trailing distance by ATR.
func ATRPercentLast(highs, lows, closes []float64, period int) float64 {
	atr := ATRLast(highs, lows, closes, period)
	if atr == 0 || len(closes) == 0 {
		return 0
	}
	close := closes[len(closes)-1]
	if close == 0 {
		return 0
	}
	return (atr / close) * 100
}
