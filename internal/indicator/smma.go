package indicator

// WilderAvg calculates a Smoothed Moving Average (Wilder smoothing).
// First value is the SMA of the first period inputs, then
// smma = (prev*(period-1) + v) / period.
type WilderAvg struct {
	period  int
	count   int
	sum     float64
	current float64
}

// NewWilderAvg creates a Wilder smoother with the given period.
func NewWilderAvg(period int) *WilderAvg {
	return &WilderAvg{period: period}
}

func (s *WilderAvg) Update(v float64) {
	s.count++

	if s.count <= s.period {
		s.sum += v
		if s.count == s.period {
			s.current = s.sum / float64(s.period)
		}
		return
	}

	p := float64(s.period)
	s.current = (s.current*(p-1) + v) / p
}

func (s *WilderAvg) Value() float64 { return s.current }
func (s *WilderAvg) Ready() bool    { return s.count >= s.period }

// Reset clears the state for reuse.
func (s *WilderAvg) Reset() {
	s.count = 0
	s.sum = 0
	s.current = 0
}
