package model

import (
	"encoding/json"
	"fmt"
	"math"
)

// PriceBar is a single OHLC bar on the chart timeline.
// Prices are float64 as read from the uploaded sheet; Open is optional.
type PriceBar struct {
	Label string   `json:"label"`
	Open  *float64 `json:"open,omitempty"`
	High  float64  `json:"high"`
	Low   float64  `json:"low"`
	Close float64  `json:"close"`
}

// NewPriceBar builds a bar and checks its invariants: high, low and close
// must be finite and high >= low.
func NewPriceBar(label string, open *float64, high, low, close float64) (PriceBar, error) {
	for _, v := range [...]float64{high, low, close} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return PriceBar{}, fmt.Errorf("bar %q: non-finite price %v", label, v)
		}
	}
	if high < low {
		return PriceBar{}, fmt.Errorf("bar %q: high %v < low %v", label, high, low)
	}
	var o *float64
	if open != nil {
		v := *open
		o = &v
	}
	return PriceBar{Label: label, Open: o, High: high, Low: low, Close: close}, nil
}

// HasOpen reports whether the bar carries an open price.
func (b PriceBar) HasOpen() bool { return b.Open != nil }

// PriceSeries is an immutable, chronologically ordered run of bars.
// Build one with NewPriceSeries; accessors hand out copies so callers
// can never mutate a series that a snapshot still references.
type PriceSeries struct {
	bars []PriceBar
}

// NewPriceSeries copies bars into a new series. Bars must all share the
// same shape (either every bar has an open price or none has).
func NewPriceSeries(bars []PriceBar) (*PriceSeries, error) {
	if len(bars) == 0 {
		return nil, &ValidationError{Reason: "series has no bars", Err: ErrEmptyInput}
	}
	withOpen := bars[0].HasOpen()
	cp := make([]PriceBar, len(bars))
	for i, b := range bars {
		if b.HasOpen() != withOpen {
			return nil, &ValidationError{Reason: fmt.Sprintf("bar %d has inconsistent shape", i)}
		}
		cp[i] = b
		if b.Open != nil {
			v := *b.Open
			cp[i].Open = &v
		}
	}
	return &PriceSeries{bars: cp}, nil
}

// Len returns the number of bars.
func (s *PriceSeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.bars)
}

// Bar returns a copy of bar i.
func (s *PriceSeries) Bar(i int) PriceBar {
	b := s.bars[i]
	if b.Open != nil {
		v := *b.Open
		b.Open = &v
	}
	return b
}

// Label returns the label of bar i.
func (s *PriceSeries) Label(i int) string { return s.bars[i].Label }

// HasOpen reports whether the bars carry open prices.
func (s *PriceSeries) HasOpen() bool { return s.Len() > 0 && s.bars[0].HasOpen() }

func (s *PriceSeries) Labels() []string {
	out := make([]string, len(s.bars))
	for i, b := range s.bars {
		out[i] = b.Label
	}
	return out
}

func (s *PriceSeries) Closes() []float64 {
	out := make([]float64, len(s.bars))
	for i, b := range s.bars {
		out[i] = b.Close
	}
	return out
}

func (s *PriceSeries) Highs() []float64 {
	out := make([]float64, len(s.bars))
	for i, b := range s.bars {
		out[i] = b.High
	}
	return out
}

func (s *PriceSeries) Lows() []float64 {
	out := make([]float64, len(s.bars))
	for i, b := range s.bars {
		out[i] = b.Low
	}
	return out
}

// Bars returns a copy of all bars.
func (s *PriceSeries) Bars() []PriceBar {
	out := make([]PriceBar, len(s.bars))
	for i := range s.bars {
		out[i] = s.Bar(i)
	}
	return out
}

// MarshalJSON encodes the series as a plain bar array.
func (s *PriceSeries) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.bars)
}
