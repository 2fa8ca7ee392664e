package indicator

import (
	"fmt"

	"chartengine/internal/align"
	"chartengine/internal/model"
)

// Compute runs the full catalogue (EMA, RSI, MACD, BB, STOCH) over the
// series. Parameters are validated before anything is computed, and the
// first indicator error aborts the batch: either every result is
// returned or none is.
func Compute(series *model.PriceSeries, ps model.ParamSet) ([]model.IndicatorResult, error) {
	if series.Len() == 0 {
		return nil, &model.ValidationError{Reason: "empty series", Err: model.ErrEmptyInput}
	}
	if err := ps.Validate(); err != nil {
		return nil, err
	}

	results := make([]model.IndicatorResult, 0, len(model.Catalogue))
	for _, k := range model.Catalogue {
		p, _ := ps.For(k)
		r, err := ComputeOne(series, p)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}

// ComputeOne dispatches on p.Kind.
func ComputeOne(series *model.PriceSeries, p model.IndicatorParams) (model.IndicatorResult, error) {
	if err := p.Validate(); err != nil {
		return model.IndicatorResult{}, err
	}
	switch p.Kind {
	case model.KindSMA:
		return ComputeSMA(series, p)
	case model.KindEMA:
		return ComputeEMA(series, p)
	case model.KindRSI:
		return ComputeRSI(series, p)
	case model.KindMACD:
		return ComputeMACD(series, p)
	case model.KindBB:
		return ComputeBB(series, p)
	case model.KindStoch:
		return ComputeStoch(series, p)
	}
	return model.IndicatorResult{}, fmt.Errorf("unsupported indicator %q", p.Kind)
}

func ComputeSMA(series *model.PriceSeries, p model.IndicatorParams) (model.IndicatorResult, error) {
	vals, err := SMA(series.Closes(), p.Period)
	if err != nil {
		return model.IndicatorResult{}, err
	}
	return result(series, p, scalars(vals))
}

func ComputeEMA(series *model.PriceSeries, p model.IndicatorParams) (model.IndicatorResult, error) {
	vals, err := EMA(series.Closes(), p.Period)
	if err != nil {
		return model.IndicatorResult{}, err
	}
	return result(series, p, scalars(vals))
}

func ComputeRSI(series *model.PriceSeries, p model.IndicatorParams) (model.IndicatorResult, error) {
	vals, err := RSI(series.Closes(), p.Period)
	if err != nil {
		return model.IndicatorResult{}, err
	}
	return result(series, p, scalars(vals))
}

func ComputeMACD(series *model.PriceSeries, p model.IndicatorParams) (model.IndicatorResult, error) {
	lines, err := MACD(series.Closes(), p.FastPeriod, p.SlowPeriod, p.SignalPeriod)
	if err != nil {
		return model.IndicatorResult{}, err
	}
	pts := make([]model.OutputPoint, len(lines))
	for i, l := range lines {
		pts[i] = model.MACDPoint{MACD: l.MACD, Signal: l.Signal, Histogram: l.Histogram}
	}
	return result(series, p, pts)
}

func ComputeBB(series *model.PriceSeries, p model.IndicatorParams) (model.IndicatorResult, error) {
	bands, err := BollingerBands(series.Closes(), p.Period, p.StdDevMultiplier)
	if err != nil {
		return model.IndicatorResult{}, err
	}
	pts := make([]model.OutputPoint, len(bands))
	for i, b := range bands {
		pts[i] = model.BandPoint{Upper: b.Upper, Middle: b.Middle, Lower: b.Lower}
	}
	return result(series, p, pts)
}

func ComputeStoch(series *model.PriceSeries, p model.IndicatorParams) (model.IndicatorResult, error) {
	lines, err := Stochastic(series.Highs(), series.Lows(), series.Closes(), p.Period, p.SignalPeriod)
	if err != nil {
		return model.IndicatorResult{}, err
	}
	pts := make([]model.OutputPoint, len(lines))
	for i, l := range lines {
		pts[i] = model.StochPoint{K: l.K, D: l.D}
	}
	return result(series, p, pts)
}

// result stamps the warm-up offset and checks the output length against it.
func result(series *model.PriceSeries, p model.IndicatorParams, pts []model.OutputPoint) (model.IndicatorResult, error) {
	off, err := align.Offset(p)
	if err != nil {
		return model.IndicatorResult{}, err
	}
	if want := series.Len() - off; len(pts) != want {
		return model.IndicatorResult{}, fmt.Errorf("%s: produced %d points, expected %d", p, len(pts), want)
	}
	return model.IndicatorResult{
		Kind:            p.Kind,
		Params:          p,
		Values:          pts,
		FirstValidIndex: off,
	}, nil
}

func scalars(vals []float64) []model.OutputPoint {
	pts := make([]model.OutputPoint, len(vals))
	for i, v := range vals {
		pts[i] = model.Scalar(v)
	}
	return pts
}
