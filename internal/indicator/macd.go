package indicator

import (
	"fmt"

	"chartengine/internal/model"
)

// MACDLine is one aligned MACD output point.
type MACDLine struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// MACD computes the moving average convergence/divergence.
//
// The MACD line is EMA(fast) - EMA(slow), aligned on the slow warm-up.
// The signal line is EMA(signal) of the MACD line and the histogram is
// their difference. Output is aligned on the deepest warm-up:
// len(out) == len(values)-slow-signal+2.
func MACD(values []float64, fast, slow, signal int) ([]MACDLine, error) {
	if err := checkPeriod("MACD", "fastPeriod", fast); err != nil {
		return nil, err
	}
	if err := checkPeriod("MACD", "slowPeriod", slow); err != nil {
		return nil, err
	}
	if err := checkPeriod("MACD", "signalPeriod", signal); err != nil {
		return nil, err
	}
	if fast >= slow {
		return nil, &model.ParameterError{Indicator: "MACD", Param: "fastPeriod",
			Reason: fmt.Sprintf("must be < slowPeriod (%d >= %d)", fast, slow)}
	}
	if err := checkLen("MACD", slow+signal-1, len(values)); err != nil {
		return nil, err
	}

	fastEMA, err := ema("MACD", values, fast)
	if err != nil {
		return nil, err
	}
	slowEMA, err := ema("MACD", values, slow)
	if err != nil {
		return nil, err
	}

	// fastEMA[j] belongs to bar fast-1+j, slowEMA[j] to bar slow-1+j.
	shift := slow - fast
	line := make([]float64, len(slowEMA))
	for j := range slowEMA {
		line[j] = fastEMA[j+shift] - slowEMA[j]
	}

	sig, err := ema("MACD", line, signal)
	if err != nil {
		return nil, err
	}

	out := make([]MACDLine, len(sig))
	for j, s := range sig {
		m := line[signal-1+j]
		out[j] = MACDLine{MACD: m, Signal: s, Histogram: m - s}
	}
	return out, nil
}
