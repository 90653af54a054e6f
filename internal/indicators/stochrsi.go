package indicators

// StochRSIResult holds a smoothed Stochastic RSI reading.
type StochRSIResult struct {
	K            float64
	D            float64
	PrevK        float64
	IsWarmedUp   bool
}

// StochRSIKD computes Stochastic RSI with K/D smoothing, the 14/14/3/3
// parameterization used throughout the signal stack. It layers SMA
// smoothing over the raw StochRSI oscillator: %K is the SMA(kSmooth) of
// the raw stochastic-of-RSI values, %D is the SMA(dSmooth) of %K.
func StochRSIKD(closes []float64, rsiPeriod, stochPeriod, kSmooth, dSmooth int) StochRSIResult {
	raw := StochRSI(closes, rsiPeriod, stochPeriod)
	minLen := kSmooth + dSmooth
	if len(raw) < minLen {
		return StochRSIResult{}
	}

	kSeries := SMA(raw, kSmooth)
	if len(kSeries) < dSmooth+1 {
		return StochRSIResult{}
	}

	dSeries := SMA(kSeries, dSmooth)
	if len(dSeries) == 0 {
		return StochRSIResult{}
	}

	k := kSeries[len(kSeries)-1]
	d := dSeries[len(dSeries)-1]
	prevK := k
	if len(kSeries) >= 2 {
		prevK = kSeries[len(kSeries)-2]
	}

	return StochRSIResult{
		K:          k,
		D:          d,
		PrevK:      prevK,
		IsWarmedUp: true,
	}
}

// CrossUp reports whether %K just crossed above %D-equivalent threshold,
// i.e. the previous sample was below level and the current sample is at
// or above it.
func (s StochRSIResult) CrossUp(level float64) bool {
	return s.IsWarmedUp && s.PrevK < level && s.K >= level
}

// CrossDown reports whether %K just crossed below level.
func (s StochRSIResult) CrossDown(level float64) bool {
	return s.IsWarmedUp && s.PrevK > level && s.K <= level
}
