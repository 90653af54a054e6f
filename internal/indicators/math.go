package indicators

import "math"

// Sum returns the sum of values.
func Sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}

// Mean returns the arithmetic mean, or 0 for an empty series.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return Sum(values) / float64(len(values))
}

// StdDev returns the population standard deviation.
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	var sumSquares float64
	for _, v := range values {
		d := v - mean
		sumSquares += d * d
	}
	return math.Sqrt(sumSquares / float64(len(values)))
}

// Max returns the largest value in the series.
func Max(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// Min returns the smallest value in the series.
func Min(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

// MaxF returns the greater of two floats.
func MaxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// Abs returns the absolute value of v.
func Abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// SMA computes the Simple Moving Average series for the given period.
// The result is len(values)-period+1 long, oldest-to-newest.
func SMA(values []float64, period int) []float64 {
	if len(values) < period || period <= 0 {
		return nil
	}

	out := make([]float64, len(values)-period+1)
	window := Sum(values[:period])
	out[0] = window / float64(period)

	for i := period; i < len(values); i++ {
		window += values[i] - values[i-period]
		out[i-period+1] = window / float64(period)
	}
	return out
}

// EMA computes the Exponential Moving Average series, seeded with the
// first `period` values' SMA per the conventional warm-up.
func EMA(values []float64, period int) []float64 {
	if len(values) < period || period <= 0 {
		return nil
	}

	out := make([]float64, len(values))
	k := 2.0 / float64(period+1)
	out[period-1] = Mean(values[:period])

	for i := period; i < len(values); i++ {
		out[i] = (values[i]-out[i-1])*k + out[i-1]
	}
	return out[period-1:]
}

// TrueRange returns the true range for one bar given its high, low, and
// the previous bar's close.
func TrueRange(high, low, prevClose float64) float64 {
	return MaxF(high-low, MaxF(Abs(high-prevClose), Abs(low-prevClose)))
}

// TrueRanges computes true range across a full OHLC series, one value
// shorter than the inputs since the first bar has no previous close.
func TrueRanges(highs, lows, closes []float64) []float64 {
	if len(highs) < 2 || len(highs) != len(lows) || len(highs) != len(closes) {
		return nil
	}
	out := make([]float64, len(highs)-1)
	for i := 1; i < len(highs); i++ {
		out[i-1] = TrueRange(highs[i], lows[i], closes[i-1])
	}
	return out
}

// RollingMax computes the rolling maximum over a sliding window.
func RollingMax(values []float64, period int) []float64 {
	if len(values) < period || period <= 0 {
		return nil
	}
	out := make([]float64, len(values)-period+1)
	for i := period - 1; i < len(values); i++ {
		out[i-period+1] = Max(values[i-period+1 : i+1])
	}
	return out
}

// RollingMin computes the rolling minimum over a sliding window.
func RollingMin(values []float64, period int) []float64 {
	if len(values) < period || period <= 0 {
		return nil
	}
	out := make([]float64, len(values)-period+1)
	for i := period - 1; i < len(values); i++ {
		out[i-period+1] = Min(values[i-period+1 : i+1])
	}
	return out
}

// Diff returns the first difference of the series.
func Diff(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	out := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		out[i-1] = values[i] - values[i-1]
	}
	return out
}

// GainsLosses splits a series of price changes into a non-negative
// gains series and a non-negative losses series (RSI's building block).
func GainsLosses(changes []float64) (gains, losses []float64) {
	gains = make([]float64, len(changes))
	losses = make([]float64, len(changes))
	for i, c := range changes {
		if c > 0 {
			gains[i] = c
		} else {
			losses[i] = -c
		}
	}
	return
}

// LinearRegression fits a least-squares line to an evenly-spaced
// series and returns its slope and intercept.
func LinearRegression(values []float64) (slope, intercept float64) {
	n := len(values)
	if n < 2 {
		return 0, 0
	}

	var sumX, sumY, sumXY, sumX2 float64
	for i, v := range values {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumX2 += x * x
	}

	nf := float64(n)
	denom := nf*sumX2 - sumX*sumX
	if denom == 0 {
		return 0, Mean(values)
	}

	slope = (nf*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / nf
	return
}
