package model

import (
	"fmt"
	"math"
	"strings"
)

// Kind identifies an indicator in the catalogue.
type Kind string

const (
	KindSMA   Kind = "SMA"
	KindEMA   Kind = "EMA"
	KindRSI   Kind = "RSI"
	KindMACD  Kind = "MACD"
	KindBB    Kind = "BB"
	KindStoch Kind = "STOCH"
)

// Catalogue is the fixed set of indicators computed per recompute, in
// the order they are computed.
var Catalogue = []Kind{KindEMA, KindRSI, KindMACD, KindBB, KindStoch}

// ParseKind maps a case-insensitive name to a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToUpper(strings.TrimSpace(s))); k {
	case KindSMA, KindEMA, KindRSI, KindMACD, KindBB, KindStoch:
		return k, nil
	case "BOLLINGER":
		return KindBB, nil
	case "STOCHASTIC":
		return KindStoch, nil
	}
	return "", fmt.Errorf("unknown indicator kind %q", s)
}

// IndicatorParams carries the options for one indicator. Only the fields
// meaningful for Kind are read.
type IndicatorParams struct {
	Kind Kind `json:"kind" yaml:"kind"`

	// EMA, SMA, RSI, BB, STOCH
	Period int `json:"period,omitempty" yaml:"period,omitempty"`

	// MACD
	FastPeriod int `json:"fastPeriod,omitempty" yaml:"fastPeriod,omitempty"`
	SlowPeriod int `json:"slowPeriod,omitempty" yaml:"slowPeriod,omitempty"`

	// MACD, STOCH
	SignalPeriod int `json:"signalPeriod,omitempty" yaml:"signalPeriod,omitempty"`

	// BB
	StdDevMultiplier float64 `json:"stdDevMultiplier,omitempty" yaml:"stdDevMultiplier,omitempty"`
}

func EMAParams(period int) IndicatorParams { return IndicatorParams{Kind: KindEMA, Period: period} }
func SMAParams(period int) IndicatorParams { return IndicatorParams{Kind: KindSMA, Period: period} }
func RSIParams(period int) IndicatorParams { return IndicatorParams{Kind: KindRSI, Period: period} }

func MACDParams(fast, slow, signal int) IndicatorParams {
	return IndicatorParams{Kind: KindMACD, FastPeriod: fast, SlowPeriod: slow, SignalPeriod: signal}
}

func BBParams(period int, k float64) IndicatorParams {
	return IndicatorParams{Kind: KindBB, Period: period, StdDevMultiplier: k}
}

func StochParams(period, signal int) IndicatorParams {
	return IndicatorParams{Kind: KindStoch, Period: period, SignalPeriod: signal}
}

// Validate checks the parameters for their kind.
func (p IndicatorParams) Validate() error {
	name := string(p.Kind)
	positive := func(field string, v int) error {
		if v < 1 {
			return &ParameterError{Indicator: name, Param: field, Reason: fmt.Sprintf("must be >= 1, got %d", v)}
		}
		return nil
	}
	switch p.Kind {
	case KindSMA, KindEMA, KindRSI:
		return positive("period", p.Period)
	case KindMACD:
		if err := positive("fastPeriod", p.FastPeriod); err != nil {
			return err
		}
		if err := positive("slowPeriod", p.SlowPeriod); err != nil {
			return err
		}
		if err := positive("signalPeriod", p.SignalPeriod); err != nil {
			return err
		}
		if p.FastPeriod >= p.SlowPeriod {
			return &ParameterError{Indicator: name, Param: "fastPeriod",
				Reason: fmt.Sprintf("must be < slowPeriod (%d >= %d)", p.FastPeriod, p.SlowPeriod)}
		}
		return nil
	case KindBB:
		if err := positive("period", p.Period); err != nil {
			return err
		}
		k := p.StdDevMultiplier
		if math.IsNaN(k) || math.IsInf(k, 0) || k <= 0 {
			return &ParameterError{Indicator: name, Param: "stdDevMultiplier", Reason: fmt.Sprintf("must be a positive number, got %v", k)}
		}
		return nil
	case KindStoch:
		if err := positive("period", p.Period); err != nil {
			return err
		}
		return positive("signalPeriod", p.SignalPeriod)
	}
	return &ParameterError{Indicator: name, Param: "kind", Reason: "unknown indicator"}
}

// String returns a compact name such as "EMA_20" or "MACD_12_26_9".
func (p IndicatorParams) String() string {
	switch p.Kind {
	case KindMACD:
		return fmt.Sprintf("MACD_%d_%d_%d", p.FastPeriod, p.SlowPeriod, p.SignalPeriod)
	case KindBB:
		return fmt.Sprintf("BB_%d_%g", p.Period, p.StdDevMultiplier)
	case KindStoch:
		return fmt.Sprintf("STOCH_%d_%d", p.Period, p.SignalPeriod)
	}
	return fmt.Sprintf("%s_%d", p.Kind, p.Period)
}

// ParamSet holds one parameter record per catalogue indicator.
type ParamSet struct {
	EMA   IndicatorParams `json:"ema" yaml:"ema"`
	RSI   IndicatorParams `json:"rsi" yaml:"rsi"`
	MACD  IndicatorParams `json:"macd" yaml:"macd"`
	BB    IndicatorParams `json:"bb" yaml:"bb"`
	Stoch IndicatorParams `json:"stoch" yaml:"stoch"`
}

// DefaultParamSet returns EMA 20, RSI 14, MACD 12/26/9, BB 20/2 and
// Stochastic 14/3.
func DefaultParamSet() ParamSet {
	return ParamSet{
		EMA:   EMAParams(20),
		RSI:   RSIParams(14),
		MACD:  MACDParams(12, 26, 9),
		BB:    BBParams(20, 2),
		Stoch: StochParams(14, 3),
	}
}

// For returns the parameters for kind k.
func (ps ParamSet) For(k Kind) (IndicatorParams, bool) {
	switch k {
	case KindEMA:
		return ps.EMA, true
	case KindRSI:
		return ps.RSI, true
	case KindMACD:
		return ps.MACD, true
	case KindBB:
		return ps.BB, true
	case KindStoch:
		return ps.Stoch, true
	}
	return IndicatorParams{}, false
}

// Validate checks every member; the first failure is returned.
func (ps ParamSet) Validate() error {
	for _, k := range Catalogue {
		p, _ := ps.For(k)
		if p.Kind != k {
			return &ParameterError{Indicator: string(k), Param: "kind", Reason: fmt.Sprintf("slot holds %q", p.Kind)}
		}
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ParamUpdate is the edit emitted by the chart UI. Zero fields leave the
// current value untouched.
type ParamUpdate struct {
	EMAPeriod int `json:"emaPeriod"`
	RSIPeriod int `json:"rsiPeriod"`
}

// Apply returns a copy of ps with the update applied.
func (u ParamUpdate) Apply(ps ParamSet) ParamSet {
	if u.EMAPeriod != 0 {
		ps.EMA.Period = u.EMAPeriod
	}
	if u.RSIPeriod != 0 {
		ps.RSI.Period = u.RSIPeriod
	}
	return ps
}

// Bounds the chart UI enforces on its period inputs.
const (
	MinEMAPeriod = 1
	MaxEMAPeriod = 200
	MinRSIPeriod = 1
	MaxRSIPeriod = 50
)

// Clamp limits non-zero fields to the UI input ranges.
func (u ParamUpdate) Clamp() ParamUpdate {
	if u.EMAPeriod != 0 {
		u.EMAPeriod = clamp(u.EMAPeriod, MinEMAPeriod, MaxEMAPeriod)
	}
	if u.RSIPeriod != 0 {
		u.RSIPeriod = clamp(u.RSIPeriod, MinRSIPeriod, MaxRSIPeriod)
	}
	return u
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
