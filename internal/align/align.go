// Package align maps indicator outputs back onto the series timeline.
//
// It owns the warm-up offset of every indicator kind: the engine stamps
// FirstValidIndex from Offset, and Align checks results against it.
package align

import (
	"fmt"

	"chartengine/internal/model"
)

// Offset returns the number of leading bars an indicator cannot produce
// output for: period-1 for SMA/EMA/BB, period for RSI, slow+signal-2 for
// MACD and period+signal-2 for the Stochastic.
func Offset(p model.IndicatorParams) (int, error) {
	switch p.Kind {
	case model.KindSMA, model.KindEMA, model.KindBB:
		return p.Period - 1, nil
	case model.KindRSI:
		return p.Period, nil
	case model.KindMACD:
		return p.SlowPeriod + p.SignalPeriod - 2, nil
	case model.KindStoch:
		return p.Period + p.SignalPeriod - 2, nil
	}
	return 0, fmt.Errorf("align: unknown indicator kind %q", p.Kind)
}

// Required returns the minimum series length that yields at least one
// output point.
func Required(p model.IndicatorParams) (int, error) {
	off, err := Offset(p)
	if err != nil {
		return 0, err
	}
	return off + 1, nil
}

// OutputLen returns the number of points an indicator yields for a
// series of length n (0 when n is too short).
func OutputLen(p model.IndicatorParams, n int) int {
	off, err := Offset(p)
	if err != nil || n <= off {
		return 0
	}
	return n - off
}

// Align attaches series labels to each output point:
// Labels[i] = series[FirstValidIndex+i].Label.
func Align(series *model.PriceSeries, r model.IndicatorResult) (model.AlignedResult, error) {
	if series == nil {
		return model.AlignedResult{}, fmt.Errorf("align %s: nil series", r.Kind)
	}
	if r.FirstValidIndex < 0 {
		return model.AlignedResult{}, fmt.Errorf("align %s: negative first index %d", r.Kind, r.FirstValidIndex)
	}
	if end := r.FirstValidIndex + len(r.Values); end > series.Len() {
		return model.AlignedResult{}, fmt.Errorf("align %s: %d values from index %d overrun series of %d bars",
			r.Kind, len(r.Values), r.FirstValidIndex, series.Len())
	}

	labels := make([]string, len(r.Values))
	for i := range r.Values {
		labels[i] = series.Label(r.FirstValidIndex + i)
	}
	return model.AlignedResult{
		Kind:            r.Kind,
		Params:          r.Params,
		Labels:          labels,
		Values:          r.Values,
		FirstValidIndex: r.FirstValidIndex,
		SeriesLen:       series.Len(),
	}, nil
}

// AlignAll aligns a batch of results, keyed by kind. It stops at the
// first malformed result.
func AlignAll(series *model.PriceSeries, results []model.IndicatorResult) (map[model.Kind]model.AlignedResult, error) {
	out := make(map[model.Kind]model.AlignedResult, len(results))
	for _, r := range results {
		a, err := Align(series, r)
		if err != nil {
			return nil, err
		}
		out[r.Kind] = a
	}
	return out, nil
}
