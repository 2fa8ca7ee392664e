package indicator

// ExpAvg calculates an Exponential Moving Average.
// O(1) per update, no window storage needed.
type ExpAvg struct {
	period     int
	multiplier float64
	current    float64
	count      int
	sum        float64
}

// NewExpAvg creates an EMA accumulator with multiplier 2/(period+1).
func NewExpAvg(period int) *ExpAvg {
	return &ExpAvg{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *ExpAvg) Update(v float64) {
	e.count++

	if e.count <= e.period {
		// Accumulate for initial SMA seed
		e.sum += v
		if e.count == e.period {
			e.current = e.sum / float64(e.period)
		}
		return
	}

	e.current = v*e.multiplier + e.current*(1-e.multiplier)
}

func (e *ExpAvg) Value() float64 { return e.current }
func (e *ExpAvg) Ready() bool    { return e.count >= e.period }

// Reset clears the state for reuse.
func (e *ExpAvg) Reset() {
	e.current = 0
	e.count = 0
	e.sum = 0
}

// EMA returns the exponential moving average of values, seeded with the
// SMA of the first period values. len(out) == len(values)-period+1 and
// out[0] is the seed.
func EMA(values []float64, period int) ([]float64, error) {
	return ema("EMA", values, period)
}

func ema(name string, values []float64, period int) ([]float64, error) {
	if err := checkPeriod(name, "period", period); err != nil {
		return nil, err
	}
	if err := checkLen(name, period, len(values)); err != nil {
		return nil, err
	}
	return drive(NewExpAvg(period), values), nil
}
