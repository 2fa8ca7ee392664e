package indicator

import (
	"fmt"
	"math"

	"chartengine/internal/model"
)

// Band is one Bollinger Bands output point.
type Band struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// BollingerBands computes SMA(period) with bands k population standard
// deviations above and below. len(out) == len(values)-period+1.
func BollingerBands(values []float64, period int, k float64) ([]Band, error) {
	if err := checkPeriod("BB", "period", period); err != nil {
		return nil, err
	}
	if math.IsNaN(k) || math.IsInf(k, 0) || k <= 0 {
		return nil, &model.ParameterError{Indicator: "BB", Param: "stdDevMultiplier",
			Reason: fmt.Sprintf("must be a positive number, got %v", k)}
	}
	if err := checkLen("BB", period, len(values)); err != nil {
		return nil, err
	}

	sma := NewSimpleAvg(period)
	out := make([]Band, 0, len(values)-period+1)
	for _, v := range values {
		sma.Update(v)
		if !sma.Ready() {
			continue
		}
		mid := sma.Value()
		dev := k * sma.StdDev()
		out = append(out, Band{Upper: mid + dev, Middle: mid, Lower: mid - dev})
	}
	return out, nil
}
