package indicator

// RSI returns the Relative Strength Index using Wilder's smoothing.
//
// Average gain and loss are seeded with the simple mean of the first
// period price changes and then smoothed with WilderAvg. A window with
// no losses yields 100; one with no gains yields 0.
// len(out) == len(values)-period; out[j] belongs to values[period+j].
func RSI(values []float64, period int) ([]float64, error) {
	if err := checkPeriod("RSI", "period", period); err != nil {
		return nil, err
	}
	if err := checkLen("RSI", period+1, len(values)); err != nil {
		return nil, err
	}

	gains := NewWilderAvg(period)
	losses := NewWilderAvg(period)
	out := make([]float64, 0, len(values)-period)

	for t := 1; t < len(values); t++ {
		delta := values[t] - values[t-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		gains.Update(gain)
		losses.Update(loss)

		if gains.Ready() {
			out = append(out, rsiValue(gains.Value(), losses.Value()))
		}
	}
	return out, nil
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}
