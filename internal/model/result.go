package model

// OutputPoint is one computed indicator value. The concrete type depends
// on the indicator kind: Scalar for SMA/EMA/RSI, MACDPoint, BandPoint and
// StochPoint for the multi-line indicators.
type OutputPoint interface {
	outputPoint()
}

// Scalar is a single-line indicator value.
type Scalar float64

// MACDPoint holds the three MACD lines at one bar.
type MACDPoint struct {
	MACD      float64 `json:"MACD"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// BandPoint holds the Bollinger band values at one bar.
type BandPoint struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// StochPoint holds %K and %D at one bar.
type StochPoint struct {
	K float64 `json:"k"`
	D float64 `json:"d"`
}

func (Scalar) outputPoint()     {}
func (MACDPoint) outputPoint()  {}
func (BandPoint) outputPoint()  {}
func (StochPoint) outputPoint() {}

// IndicatorResult is the raw engine output for one indicator.
// Values[i] corresponds to bar FirstValidIndex+i of the source series.
// Results are replaced on recompute, never mutated.
type IndicatorResult struct {
	Kind            Kind            `json:"kind"`
	Params          IndicatorParams `json:"params"`
	Values          []OutputPoint   `json:"values"`
	FirstValidIndex int             `json:"firstValidIndex"`
}

// Len returns the number of output points.
func (r IndicatorResult) Len() int { return len(r.Values) }

// Scalars returns the values as float64s. ok is false if any point is
// not a Scalar.
func (r IndicatorResult) Scalars() (out []float64, ok bool) {
	out = make([]float64, len(r.Values))
	for i, v := range r.Values {
		s, isScalar := v.(Scalar)
		if !isScalar {
			return nil, false
		}
		out[i] = float64(s)
	}
	return out, true
}

// AlignedResult is an IndicatorResult mapped onto the series label axis.
// Labels[i] is the label of the bar Values[i] belongs to.
type AlignedResult struct {
	Kind            Kind            `json:"kind"`
	Params          IndicatorParams `json:"params"`
	Labels          []string        `json:"labels"`
	Values          []OutputPoint   `json:"values"`
	FirstValidIndex int             `json:"offset"`
	SeriesLen       int             `json:"seriesLen"`
}

// Padded projects the values onto the full timeline: warm-up slots are
// nil so the slice lines up index for index with the series labels.
func (a AlignedResult) Padded() []OutputPoint {
	out := make([]OutputPoint, a.SeriesLen)
	for i, v := range a.Values {
		j := a.FirstValidIndex + i
		if j >= 0 && j < len(out) {
			out[j] = v
		}
	}
	return out
}
