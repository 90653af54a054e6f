package indicators

// CalculateRSI computes Wilder's Relative Strength Index across a
// close-price series, seeded by the simple average of the first
// `period` gains/losses and smoothed thereafter.
func CalculateRSI(closes []float64, period int) []float64 {
	if len(closes) < period+1 || period <= 0 {
		return nil
	}

	gains, losses := GainsLosses(Diff(closes))

	avgGain := Mean(gains[:period])
	avgLoss := Mean(losses[:period])

	out := make([]float64, len(closes)-period)
	out[0] = rsiFromAverages(avgGain, avgLoss)

	for i := 1; i < len(out); i++ {
		idx := period + i - 1
		avgGain = (avgGain*float64(period-1) + gains[idx]) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + losses[idx]) / float64(period)
		out[i] = rsiFromAverages(avgGain, avgLoss)
	}

	return out
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// RSILast returns only the most recent RSI value, avoiding the
// allocation of the full series when callers need a single reading.
func RSILast(closes []float64, period int) float64 {
	rsi := CalculateRSI(closes, period)
	if len(rsi) == 0 {
		return 50
	}
	return rsi[len(rsi)-1]
}

// StochRSI computes the Stochastic-of-RSI oscillator: for each window
// of `stochPeriod` RSI readings, where the latest value sits between
// the window's low and high, scaled to 0-100.
func StochRSI(closes []float64, rsiPeriod, stochPeriod int) []float64 {
	rsi := CalculateRSI(closes, rsiPeriod)
	if len(rsi) < stochPeriod {
		return nil
	}

	out := make([]float64, len(rsi)-stochPeriod+1)
	for i := stochPeriod - 1; i < len(rsi); i++ {
		window := rsi[i-stochPeriod+1 : i+1]
		low := Min(window)
		high := Max(window)

		if high == low {
			out[i-stochPeriod+1] = 50
		} else {
			out[i-stochPeriod+1] = 100 * (rsi[i] - low) / (high - low)
		}
	}
	return out
}
