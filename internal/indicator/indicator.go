// Package indicator provides technical indicator calculations over price series.
//
// Each indicator is a pure function over float64 slices. The recurrences
// themselves live in small streaming accumulators (SimpleAvg, ExpAvg,
// WilderAvg) which the batch functions drive one value at a time, so
// every smoothing rule has exactly one implementation.
//
// Output slices are shorter than the input by the indicator's warm-up;
// see package align for the offsets.
package indicator

import (
	"fmt"

	"chartengine/internal/model"
)

// Accumulator is the interface for streaming smoothing state.
type Accumulator interface {
	// Update feeds the next value.
	Update(v float64)

	// Value returns the current smoothed value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool
}

func checkPeriod(name, field string, period int) error {
	if period < 1 {
		return &model.ParameterError{Indicator: name, Param: field, Reason: fmt.Sprintf("must be >= 1, got %d", period)}
	}
	return nil
}

func checkLen(name string, required, got int) error {
	if got < required {
		return &model.InsufficientDataError{Indicator: name, Required: required, Got: got}
	}
	return nil
}
