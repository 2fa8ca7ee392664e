package indicator

import (
	"errors"
	"math"
	"strings"
	"testing"

	"chartengine/internal/model"

	"github.com/markcheno/go-talib"
	"github.com/shopspring/decimal"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.10f, want %.10f (tol=%g, diff=%g)", label, got, want, tol, math.Abs(got-want))
	}
}

// ramp returns n values start, start+1, ...
func ramp(n int, start float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)
	}
	return out
}

// wave returns a deterministic, non-monotonic price path around 100.
func wave(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		x := float64(i)
		out[i] = 100 + 5*math.Sin(x/3) + 2*math.Cos(x/7) + 0.05*x
	}
	return out
}

func mean(vals []float64) float64 {
	var s float64
	for _, v := range vals {
		s += v
	}
	return s / float64(len(vals))
}

// ────────────────────────────────────────────────────────────
// SMA
// ────────────────────────────────────────────────────────────

func TestSMA_Correctness_Period3(t *testing.T) {
	// (100+102+104)/3 = 102, (102+104+103)/3 = 103, (104+103+105)/3 = 104
	got, err := SMA([]float64{100, 102, 104, 103, 105}, 3)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{102, 103, 104}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		assertClose(t, "SMA(3)", got[i], want[i], 1e-9)
	}
}

func TestSMA_MatchesTalib(t *testing.T) {
	values := wave(120)
	for _, p := range []int{1, 5, 20, 50} {
		got, err := SMA(values, p)
		if err != nil {
			t.Fatalf("SMA(%d): %v", p, err)
		}
		ref := talib.Sma(values, p)
		for j, v := range got {
			assertClose(t, "SMA vs talib", v, ref[p-1+j], 1e-9)
		}
	}
}

// ────────────────────────────────────────────────────────────
// EMA
// ────────────────────────────────────────────────────────────

func TestEMA_Correctness_Period3(t *testing.T) {
	// multiplier = 2/(3+1) = 0.5
	// seed = (100+102+104)/3 = 102
	// 103*0.5 + 102*0.5 = 102.5
	// 105*0.5 + 102.5*0.5 = 103.75
	got, err := EMA([]float64{100, 102, 104, 103, 105}, 3)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{102, 102.5, 103.75}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		assertClose(t, "EMA(3)", got[i], want[i], 1e-9)
	}
}

func TestEMA_LengthAndSeed(t *testing.T) {
	values := wave(40)
	for p := 1; p <= len(values); p++ {
		got, err := EMA(values, p)
		if err != nil {
			t.Fatalf("EMA(%d): %v", p, err)
		}
		if len(got) != len(values)-p+1 {
			t.Fatalf("EMA(%d): len = %d, want %d", p, len(got), len(values)-p+1)
		}
		if got[0] != mean(values[:p]) {
			t.Errorf("EMA(%d): seed = %v, want mean of first %d = %v", p, got[0], p, mean(values[:p]))
		}
	}
}

func TestEMA_LinearRamp_MatchesDecimalReference(t *testing.T) {
	// 30 closes 10..39, period 5. The seed (12) lags the price by exactly
	// (period-1)/2 = 2, and a ramp keeps that lag, so ema[j] = 12 + j.
	values := ramp(30, 10)
	got, err := EMA(values, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 26 {
		t.Fatalf("len = %d, want 26", len(got))
	}
	if got[0] != 12 {
		t.Errorf("first = %v, want 12", got[0])
	}

	k := decimal.NewFromInt(2).Div(decimal.NewFromInt(6))
	one := decimal.NewFromInt(1)
	ref := decimal.Zero
	for _, v := range values[:5] {
		ref = ref.Add(decimal.NewFromFloat(v))
	}
	ref = ref.Div(decimal.NewFromInt(5))

	for j, v := range got {
		if j > 0 {
			x := decimal.NewFromFloat(values[4+j])
			ref = x.Mul(k).Add(ref.Mul(one.Sub(k)))
		}
		want, _ := ref.Float64()
		assertClose(t, "EMA(5) vs decimal", v, want, 1e-9)
		assertClose(t, "EMA(5) ramp lag", v, 12+float64(j), 1e-9)
	}
	assertClose(t, "EMA(5) last", got[len(got)-1], 37, 1e-9)
}

func TestEMA_MatchesTalib(t *testing.T) {
	values := wave(200)
	for _, p := range []int{2, 9, 20, 50} {
		got, err := EMA(values, p)
		if err != nil {
			t.Fatalf("EMA(%d): %v", p, err)
		}
		ref := talib.Ema(values, p)
		compared := 0
		for j, v := range got {
			r := ref[p-1+j]
			if r == 0 {
				continue // talib leaves unfilled slots at zero
			}
			assertClose(t, "EMA vs talib", v, r, 1e-9)
			compared++
		}
		if compared < len(got)-1 {
			t.Errorf("EMA(%d): compared only %d of %d points", p, compared, len(got))
		}
	}
}

func TestEMA_InsufficientData(t *testing.T) {
	_, err := EMA(ramp(5, 100), 20)
	var ide *model.InsufficientDataError
	if !errors.As(err, &ide) {
		t.Fatalf("expected InsufficientDataError, got %v", err)
	}
	if ide.Indicator != "EMA" || ide.Required != 20 || ide.Got != 5 {
		t.Errorf("got %+v, want EMA required=20 got=5", ide)
	}
	if !errors.Is(err, model.ErrInsufficientData) {
		t.Error("errors.Is(err, ErrInsufficientData) = false")
	}
	msg := err.Error()
	for _, s := range []string{"EMA", "20", "5"} {
		if !strings.Contains(msg, s) {
			t.Errorf("message %q does not mention %q", msg, s)
		}
	}
}

// ────────────────────────────────────────────────────────────
// RSI
// ────────────────────────────────────────────────────────────

func TestRSI_Correctness_Period2(t *testing.T) {
	// diffs: +1, -1, +1
	// seed: avgGain = 0.5, avgLoss = 0.5 → RSI 50
	// next: avgGain = (0.5+1)/2 = 0.75, avgLoss = 0.25 → RS 3 → RSI 75
	got, err := RSI([]float64{1, 2, 1, 2}, 2)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{50, 75}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		assertClose(t, "RSI(2)", got[i], want[i], 1e-9)
	}
}

func TestRSI_ZeroLossIs100(t *testing.T) {
	got, err := RSI(ramp(30, 50), 14)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 16 {
		t.Fatalf("len = %d, want 16", len(got))
	}
	for i, v := range got {
		if v != 100 {
			t.Errorf("RSI[%d] = %v, want 100 on a rising series", i, v)
		}
	}
}

func TestRSI_ZeroGainIs0(t *testing.T) {
	values := make([]float64, 30)
	for i := range values {
		values[i] = 100 - float64(i)
	}
	got, err := RSI(values, 14)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range got {
		if v != 0 {
			t.Errorf("RSI[%d] = %v, want 0 on a falling series", i, v)
		}
	}
}

func TestRSI_ConstantPriceIs100(t *testing.T) {
	values := make([]float64, 20)
	for i := range values {
		values[i] = 42
	}
	got, err := RSI(values, 5)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range got {
		if v != 100 {
			t.Errorf("RSI[%d] = %v, want 100 when avgLoss is 0", i, v)
		}
	}
}

func TestRSI_MatchesTalib(t *testing.T) {
	values := wave(200)
	got, err := RSI(values, 14)
	if err != nil {
		t.Fatal(err)
	}
	ref := talib.Rsi(values, 14)
	compared := 0
	for j, v := range got {
		r := ref[14+j]
		if r == 0 {
			continue
		}
		assertClose(t, "RSI vs talib", v, r, 1e-9)
		compared++
	}
	if compared < len(got)-1 {
		t.Errorf("compared only %d of %d points", compared, len(got))
	}
}

func TestRSI_InsufficientData(t *testing.T) {
	_, err := RSI(ramp(14, 1), 14)
	var ide *model.InsufficientDataError
	if !errors.As(err, &ide) {
		t.Fatalf("expected InsufficientDataError, got %v", err)
	}
	if ide.Required != 15 || ide.Got != 14 {
		t.Errorf("got %+v, want required=15 got=14", ide)
	}
}

// ────────────────────────────────────────────────────────────
// MACD
// ────────────────────────────────────────────────────────────

func TestMACD_LengthAndHistogramIdentity(t *testing.T) {
	values := wave(100)
	got, err := MACD(values, 12, 26, 9)
	if err != nil {
		t.Fatal(err)
	}
	if want := len(values) - 26 - 9 + 2; len(got) != want {
		t.Fatalf("len = %d, want %d", len(got), want)
	}
	for _, p := range got {
		assertClose(t, "histogram identity", p.Histogram, p.MACD-p.Signal, 1e-9)
	}
}

func TestMACD_LineIsFastMinusSlow(t *testing.T) {
	values := wave(80)
	got, err := MACD(values, 5, 10, 4)
	if err != nil {
		t.Fatal(err)
	}
	fast, _ := EMA(values, 5)
	slow, _ := EMA(values, 10)
	// Output j belongs to bar 10+4-2+j.
	for j, p := range got {
		bar := 12 + j
		want := fast[bar-4] - slow[bar-9]
		assertClose(t, "MACD line", p.MACD, want, 1e-12)
	}

	line := make([]float64, len(slow))
	for j := range slow {
		line[j] = fast[j+5] - slow[j]
	}
	sig, _ := EMA(line, 4)
	for j, p := range got {
		assertClose(t, "MACD signal", p.Signal, sig[j], 1e-12)
	}
}

func TestMACD_ParameterErrors(t *testing.T) {
	values := wave(60)
	cases := []struct {
		name             string
		fast, slow, sign int
	}{
		{"fast equals slow", 12, 12, 9},
		{"fast above slow", 26, 12, 9},
		{"zero fast", 0, 26, 9},
		{"zero signal", 12, 26, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := MACD(values, tc.fast, tc.slow, tc.sign)
			var pe *model.ParameterError
			if !errors.As(err, &pe) {
				t.Fatalf("expected ParameterError, got %v", err)
			}
		})
	}
}

func TestMACD_InsufficientData(t *testing.T) {
	_, err := MACD(wave(33), 12, 26, 9)
	var ide *model.InsufficientDataError
	if !errors.As(err, &ide) {
		t.Fatalf("expected InsufficientDataError, got %v", err)
	}
	if ide.Indicator != "MACD" || ide.Required != 34 {
		t.Errorf("got %+v, want MACD required=34", ide)
	}
}

// ────────────────────────────────────────────────────────────
// Bollinger Bands
// ────────────────────────────────────────────────────────────

func TestBollinger_PopulationStdDev(t *testing.T) {
	// mean 2, population variance (1+0+1)/3 → sd sqrt(2/3)
	got, err := BollingerBands([]float64{1, 2, 3}, 3, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	sd := math.Sqrt(2.0 / 3.0)
	assertClose(t, "middle", got[0].Middle, 2, 1e-12)
	assertClose(t, "upper", got[0].Upper, 2+2*sd, 1e-12)
	assertClose(t, "lower", got[0].Lower, 2-2*sd, 1e-12)
}

func TestBollinger_ConstantSeriesCollapses(t *testing.T) {
	values := make([]float64, 25)
	for i := range values {
		values[i] = 7.5
	}
	got, err := BollingerBands(values, 20, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 6 {
		t.Fatalf("len = %d, want 6", len(got))
	}
	for _, b := range got {
		if b.Upper != 7.5 || b.Middle != 7.5 || b.Lower != 7.5 {
			t.Errorf("band = %+v, want all 7.5", b)
		}
	}
}

func TestBollinger_MatchesTalib(t *testing.T) {
	values := wave(150)
	got, err := BollingerBands(values, 20, 2)
	if err != nil {
		t.Fatal(err)
	}
	upper, middle, lower := talib.BBands(values, 20, 2, 2, talib.SMA)
	for j, b := range got {
		assertClose(t, "BB middle vs talib", b.Middle, middle[19+j], 1e-6)
		assertClose(t, "BB upper vs talib", b.Upper, upper[19+j], 1e-6)
		assertClose(t, "BB lower vs talib", b.Lower, lower[19+j], 1e-6)
	}
}

func TestBollinger_BadMultiplier(t *testing.T) {
	for _, k := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err := BollingerBands(wave(30), 20, k)
		if !errors.Is(err, model.ErrInvalidParam) {
			t.Errorf("k=%v: expected ErrInvalidParam, got %v", k, err)
		}
	}
}

// ────────────────────────────────────────────────────────────
// Stochastic
// ────────────────────────────────────────────────────────────

func TestStochastic_Correctness(t *testing.T) {
	high := []float64{10, 12, 11, 13}
	low := []float64{8, 9, 9, 10}
	closes := []float64{9, 11, 10, 12}
	// %K: t1 = 100*(11-8)/(12-8) = 75, t2 = 100*(10-9)/(12-9) = 33.33, t3 = 100*(12-9)/(13-9) = 75
	// %D(2): (75+33.33)/2, (33.33+75)/2
	got, err := Stochastic(high, low, closes, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	third := 100.0 / 3.0
	assertClose(t, "K[0]", got[0].K, third, 1e-9)
	assertClose(t, "D[0]", got[0].D, (75+third)/2, 1e-9)
	assertClose(t, "K[1]", got[1].K, 75, 1e-9)
	assertClose(t, "D[1]", got[1].D, (75+third)/2, 1e-9)
}

func TestStochastic_BoundsAndLength(t *testing.T) {
	closes := wave(120)
	high := make([]float64, len(closes))
	low := make([]float64, len(closes))
	for i, c := range closes {
		high[i] = c + 1 + math.Abs(math.Sin(float64(i)))
		low[i] = c - 1 - math.Abs(math.Cos(float64(i)))
	}
	got, err := Stochastic(high, low, closes, 14, 3)
	if err != nil {
		t.Fatal(err)
	}
	if want := len(closes) - 14 - 3 + 2; len(got) != want {
		t.Fatalf("len = %d, want %d", len(got), want)
	}
	for i, p := range got {
		if p.K < 0 || p.K > 100 || math.IsNaN(p.K) {
			t.Errorf("K[%d] = %v out of [0,100]", i, p.K)
		}
		if p.D < 0 || p.D > 100 || math.IsNaN(p.D) {
			t.Errorf("D[%d] = %v out of [0,100]", i, p.D)
		}
	}
}

func TestStochastic_ZeroRangeIsZero(t *testing.T) {
	flat := make([]float64, 20)
	for i := range flat {
		flat[i] = 50
	}
	got, err := Stochastic(flat, flat, flat, 14, 3)
	if err != nil {
		t.Fatal(err)
	}
	for i, p := range got {
		if p.K != 0 || p.D != 0 {
			t.Errorf("point %d = %+v, want K=0 D=0", i, p)
		}
	}
}

func TestStochastic_CloseOutsideBarIsClamped(t *testing.T) {
	high := []float64{10, 10, 10}
	low := []float64{9, 9, 9}
	closes := []float64{9.5, 9.5, 12}
	got, err := Stochastic(high, low, closes, 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got[len(got)-1].K != 100 {
		t.Errorf("K = %v, want clamped 100", got[len(got)-1].K)
	}
}

func TestStochastic_InsufficientData(t *testing.T) {
	v := wave(15)
	_, err := Stochastic(v, v, v, 14, 3)
	var ide *model.InsufficientDataError
	if !errors.As(err, &ide) {
		t.Fatalf("expected InsufficientDataError, got %v", err)
	}
	if ide.Indicator != "STOCH" || ide.Required != 16 || ide.Got != 15 {
		t.Errorf("got %+v, want STOCH required=16 got=15", ide)
	}
}

// ────────────────────────────────────────────────────────────
// Accumulators
// ────────────────────────────────────────────────────────────

func TestWilderAvg_SeedThenSmooth(t *testing.T) {
	w := NewWilderAvg(3)
	for _, v := range []float64{3, 6, 9} {
		w.Update(v)
	}
	if !w.Ready() {
		t.Fatal("expected ready after 3 values")
	}
	assertClose(t, "seed", w.Value(), 6, 1e-12)
	w.Update(12) // (6*2 + 12)/3 = 8
	assertClose(t, "smoothed", w.Value(), 8, 1e-12)

	w.Reset()
	if w.Ready() || w.Value() != 0 {
		t.Error("Reset did not clear state")
	}
}

func TestExpAvg_NotReadyBeforePeriod(t *testing.T) {
	e := NewExpAvg(4)
	for i, v := range []float64{1, 2, 3} {
		e.Update(v)
		if e.Ready() {
			t.Errorf("ready after %d values", i+1)
		}
	}
	e.Update(4)
	if !e.Ready() {
		t.Error("not ready after 4 values")
	}
}
