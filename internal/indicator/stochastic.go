package indicator

import "fmt"

// StochLine is one Stochastic Oscillator output point.
type StochLine struct {
	K float64
	D float64
}

// Stochastic computes %K over a period-bar high/low window and %D as the
// SMA(signalPeriod) of %K. A window whose highest high equals its lowest
// low yields %K = 0. Output is aligned on the %D warm-up:
// len(out) == len(close)-period-signalPeriod+2.
func Stochastic(high, low, close []float64, period, signalPeriod int) ([]StochLine, error) {
	if err := checkPeriod("STOCH", "period", period); err != nil {
		return nil, err
	}
	if err := checkPeriod("STOCH", "signalPeriod", signalPeriod); err != nil {
		return nil, err
	}
	if len(high) != len(close) || len(low) != len(close) {
		return nil, fmt.Errorf("STOCH: mismatched input lengths high=%d low=%d close=%d", len(high), len(low), len(close))
	}
	if err := checkLen("STOCH", period+signalPeriod-1, len(close)); err != nil {
		return nil, err
	}

	maxHigh := newWindowExtreme(period, func(a, b float64) bool { return a >= b })
	minLow := newWindowExtreme(period, func(a, b float64) bool { return a <= b })
	d := NewSimpleAvg(signalPeriod)

	out := make([]StochLine, 0, len(close)-period-signalPeriod+2)

	for t := range close {
		maxHigh.push(t, high[t])
		minLow.push(t, low[t])
		if t < period-1 {
			continue
		}

		hh, ll := maxHigh.value(), minLow.value()
		k := 0.0
		if rng := hh - ll; rng != 0 {
			k = clamp(100*(close[t]-ll)/rng, 0, 100)
		}
		d.Update(k)
		if d.Ready() {
			out = append(out, StochLine{K: k, D: d.Value()})
		}
	}
	return out, nil
}

// clamp bounds %K when a bar's close lies outside its own high/low.
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// windowExtreme tracks the max (or min) of the last n pushed values with
// a monotonic deque, O(1) amortized per push.
type windowExtreme struct {
	n    int
	keep func(a, b float64) bool // true if a dominates b
	idx  []int
	vals []float64
}

func newWindowExtreme(n int, keep func(a, b float64) bool) *windowExtreme {
	return &windowExtreme{n: n, keep: keep}
}

func (w *windowExtreme) push(i int, v float64) {
	for len(w.vals) > 0 && w.keep(v, w.vals[len(w.vals)-1]) {
		w.vals = w.vals[:len(w.vals)-1]
		w.idx = w.idx[:len(w.idx)-1]
	}
	w.vals = append(w.vals, v)
	w.idx = append(w.idx, i)
	for w.idx[0] <= i-w.n {
		w.idx = w.idx[1:]
		w.vals = w.vals[1:]
	}
}

func (w *windowExtreme) value() float64 { return w.vals[0] }
