package indicators

// BollingerBands wraps a period, standard-deviation multiplier, and
// squeeze threshold for repeated band reads against a rolling close
// series.
type BollingerBands struct {
	period           int
	stdDevMultiplier float64
	squeezeThreshold float64
}

// NewBollingerBands creates a band reader, defaulting period to 20,
// the multiplier to 2.0, and the squeeze threshold to 5% when given a
// non-positive value.
func NewBollingerBands(period int, stdDevMultiplier, squeezeThreshold float64) *BollingerBands {
	if period <= 0 {
		period = 20
	}
	if stdDevMultiplier <= 0 {
		stdDevMultiplier = 2.0
	}
	if squeezeThreshold <= 0 {
		squeezeThreshold = 0.05
	}
	return &BollingerBands{
		period:           period,
		stdDevMultiplier: stdDevMultiplier,
		squeezeThreshold: squeezeThreshold,
	}
}

// Calculate computes the bands across the full close series and
// returns the most recent reading.
func (bb *BollingerBands) Calculate(closes []float64) BollingerResult {
	if len(closes) < bb.period {
		return BollingerResult{}
	}

	data := CalculateBollingerBands(closes, bb.period, bb.stdDevMultiplier)
	if len(data.Upper) == 0 {
		return BollingerResult{}
	}

	idx := len(data.Upper) - 1
	close := closes[len(closes)-1]
	width := data.Width[idx]

	return BollingerResult{
		Upper:    data.Upper[idx],
		Middle:   data.Middle[idx],
		Lower:    data.Lower[idx],
		Width:    width,
		PercentB: data.PercentB[idx],
		Squeeze:  width < bb.squeezeThreshold,
		Breakout: bb.detectBreakout(close, data.Upper[idx], data.Lower[idx]),
	}
}

func (bb *BollingerBands) detectBreakout(close, upper, lower float64) BreakoutType {
	switch {
	case close > upper:
		return BreakoutUpper
	case close < lower:
		return BreakoutLower
	default:
		return BreakoutNone
	}
}

// BollingerData holds a full Bollinger Bands calculation across a
// series: upper/middle/lower bands, band width, and %B per point.
type BollingerData struct {
	Upper    []float64
	Middle   []float64
	Lower    []float64
	Width    []float64
	PercentB []float64
}

// CalculateBollingerBands computes Bollinger Bands across a close
// series using a trailing SMA/stddev window at each point.
func CalculateBollingerBands(closes []float64, period int, stdDevMultiplier float64) BollingerData {
	if len(closes) < period || period <= 0 {
		return BollingerData{}
	}

	length := len(closes) - period + 1
	out := BollingerData{
		Upper:    make([]float64, length),
		Middle:   make([]float64, length),
		Lower:    make([]float64, length),
		Width:    make([]float64, length),
		PercentB: make([]float64, length),
	}

	for i := 0; i < length; i++ {
		window := closes[i : i+period]
		middle := Mean(window)
		stdDev := StdDev(window)
		upper := middle + stdDevMultiplier*stdDev
		lower := middle - stdDevMultiplier*stdDev

		out.Upper[i] = upper
		out.Middle[i] = middle
		out.Lower[i] = lower

		if middle != 0 {
			out.Width[i] = (upper - lower) / middle
		}

		if upper != lower {
			out.PercentB[i] = (closes[i+period-1] - lower) / (upper - lower)
		} else {
			out.PercentB[i] = 0.5
		}
	}

	return out
}
