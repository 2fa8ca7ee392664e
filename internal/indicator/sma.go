package indicator

import "math"

// SimpleAvg calculates a Simple Moving Average over a rolling window.
// Uses a preallocated circular buffer so Update never allocates.
type SimpleAvg struct {
	period  int
	buf     []float64 // preallocated circular buffer
	idx     int       // current write position
	count   int       // total values received
	sum     float64
	current float64
}

// NewSimpleAvg creates a rolling SMA with the given period.
func NewSimpleAvg(period int) *SimpleAvg {
	return &SimpleAvg{
		period: period,
		buf:    make([]float64, period),
	}
}

func (s *SimpleAvg) Update(v float64) {
	if s.count >= s.period {
		// Subtract the oldest value being overwritten
		s.sum -= s.buf[s.idx]
	}

	s.buf[s.idx] = v
	s.sum += v
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count >= s.period {
		s.current = s.sum / float64(s.period)
	}
}

func (s *SimpleAvg) Value() float64 { return s.current }
func (s *SimpleAvg) Ready() bool    { return s.count >= s.period }

// StdDev returns the population standard deviation of the current window
// around its mean (divides by period, not period-1).
func (s *SimpleAvg) StdDev() float64 {
	if !s.Ready() {
		return 0
	}
	var sq float64
	for _, v := range s.buf {
		d := v - s.current
		sq += d * d
	}
	return math.Sqrt(sq / float64(s.period))
}

// Reset clears the state for reuse.
func (s *SimpleAvg) Reset() {
	s.idx = 0
	s.count = 0
	s.sum = 0
	s.current = 0
	for i := range s.buf {
		s.buf[i] = 0
	}
}

// SMA returns the simple moving average of values. out[j] is the mean of
// values[j..j+period-1]; len(out) == len(values)-period+1.
func SMA(values []float64, period int) ([]float64, error) {
	if err := checkPeriod("SMA", "period", period); err != nil {
		return nil, err
	}
	if err := checkLen("SMA", period, len(values)); err != nil {
		return nil, err
	}
	return drive(NewSimpleAvg(period), values), nil
}

// drive feeds values through acc and collects every ready value.
func drive(acc Accumulator, values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		acc.Update(v)
		if acc.Ready() {
			out = append(out, acc.Value())
		}
	}
	return out
}
