package strategy

import "riskbot/internal/exchange"

// EMA computes the exponential moving average of the closes over the
// given period. Returns 0 when there is not enough history.
func EMA(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period {
		return 0
	}
	k := 2.0 / float64(period+1)
	ema := closes[0]
	for _, c := range closes[1:] {
		ema = c*k + ema*(1-k)
	}
	return ema
}

// RSI computes the Wilder relative strength index over the given period.
// Returns 50 when there is not enough history.
func RSI(closes []float64, period int) float64 {
	if period <= 0 || len(closes) <= period {
		return 50
	}

	var gains, losses float64
	for i := 1; i <= period; i++ {
		diff := closes[i] - closes[i-1]
		if diff > 0 {
			gains += diff
		} else {
			losses -= diff
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	for i := period + 1; i < len(closes); i++ {
		diff := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if diff > 0 {
			gain = diff
		} else {
			loss = -diff
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// ATR computes the average true range over the given period. Returns 0
// when there is not enough history.
func ATR(klines []exchange.Kline, period int) float64 {
	if period <= 0 || len(klines) <= period {
		return 0
	}

	var sum float64
	start := len(klines) - period
	for i := start; i < len(klines); i++ {
		k := klines[i]
		tr := k.High - k.Low
		prevClose := klines[i-1].Close
		if hc := abs(k.High - prevClose); hc > tr {
			tr = hc
		}
		if lc := abs(k.Low - prevClose); lc > tr {
			tr = lc
		}
		sum += tr
	}
	return sum / float64(period)
}

// AvgVolume is the mean volume over the last n candles.
func AvgVolume(klines []exchange.Kline, n int) float64 {
	if n <= 0 || len(klines) == 0 {
		return 0
	}
	if n > len(klines) {
		n = len(klines)
	}
	var sum float64
	for _, k := range klines[len(klines)-n:] {
		sum += k.Volume
	}
	return sum / float64(n)
}

// Closes extracts the close series from candles.
func Closes(klines []exchange.Kline) []float64 {
	out := make([]float64, len(klines))
	for i, k := range klines {
		out[i] = k.Close
	}
	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
