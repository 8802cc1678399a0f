package dsp

import (
	"math"
	"testing"
)

func TestBiquadSetParamsCachesCoefficients(t *testing.T) {
	b := NewBiquad(44100)
	b.SetParams(LowPass, 1000, 0.707)
	b.SetParams(LowPass, 1000, 0.707)
	if got := b.Recomputes(); got != 1 {
		t.Fatalf("identical params recomputed %d times, want 1", got)
	}
	b.SetParams(LowPass, 1200, 0.707)
	b.SetParams(HighPass, 1200, 0.707)
	b.SetParams(HighPass, 1200, 2)
	if got := b.Recomputes(); got != 4 {
		t.Fatalf("recomputes = %d, want 4", got)
	}
}

func TestBiquadModes(t *testing.T) {
	const rate = 44100.0
	tone := func(freq float64, mode FilterMode) float64 {
		b := NewBiquad(rate)
		b.SetParams(mode, 1000, 0.707)
		peak := 0.0
		for i := 0; i < 8000; i++ {
			y := b.Process(math.Sin(2 * math.Pi * freq * float64(i) / rate))
			if i > 4000 && math.Abs(y) > peak {
				peak = math.Abs(y)
			}
		}
		return peak
	}
	if lo, hi := tone(100, LowPass), tone(8000, LowPass); lo < 0.9 || hi > 0.1 {
		t.Errorf("lowpass: 100Hz=%f 8kHz=%f", lo, hi)
	}
	if lo, hi := tone(100, HighPass), tone(8000, HighPass); lo > 0.1 || hi < 0.9 {
		t.Errorf("highpass: 100Hz=%f 8kHz=%f", lo, hi)
	}
	if c, far := tone(1000, BandPass), tone(10000, BandPass); c < 0.9 || far > 0.2 {
		t.Errorf("bandpass: 1kHz=%f 10kHz=%f", c, far)
	}
	if c, far := tone(1000, Notch), tone(100, Notch); c > 0.1 || far < 0.9 {
		t.Errorf("notch: 1kHz=%f 100Hz=%f", c, far)
	}
	for _, f := range []float64{100, 1000, 8000} {
		if g := tone(f, AllPass); math.Abs(g-1) > 0.05 {
			t.Errorf("allpass gain at %f Hz = %f", f, g)
		}
	}
}

func TestBiquadOffPassesThrough(t *testing.T) {
	b := NewBiquad(44100)
	b.SetParams(FilterOff, 500, 1)
	for _, x := range []float64{0.3, -0.7, 1} {
		if y := b.Process(x); y != x {
			t.Fatalf("off filter changed %f to %f", x, y)
		}
	}
}

func TestEnvelopeSegmentsAreMonotonic(t *testing.T) {
	var e Envelope
	e.Set(0.01, 0.02, 0.5, 0.03, 1000) // 10, 20, 30 samples
	if v := e.ValueAt(0); v != 0 {
		t.Fatalf("value before trigger = %f, want 0", v)
	}
	e.Trigger(100, 1)
	prev := -1.0
	for now := int64(100); now < 110; now++ {
		v := e.ValueAt(now)
		if v < prev {
			t.Fatalf("attack decreased at %d: %f < %f", now, v, prev)
		}
		prev = v
	}
	prev = 2
	for now := int64(110); now < 130; now++ {
		v := e.ValueAt(now)
		if v > prev {
			t.Fatalf("decay increased at %d: %f > %f", now, v, prev)
		}
		prev = v
	}
	for now := int64(130); now < 500; now += 37 {
		if v := e.ValueAt(now); v != 0.5 {
			t.Fatalf("sustain at %d = %f, want 0.5", now, v)
		}
		if s := e.StageAt(now); s != Sustain {
			t.Fatalf("stage at %d = %v", now, s)
		}
	}
	e.Release(500)
	prev = 2
	for now := int64(500); now < 530; now++ {
		v := e.ValueAt(now)
		if v > prev {
			t.Fatalf("release increased at %d", now)
		}
		prev = v
	}
	for now := int64(530); now < 600; now++ {
		if v := e.ValueAt(now); v != 0 {
			t.Fatalf("value after release = %f at %d", v, now)
		}
	}
	if e.Active() {
		t.Fatalf("envelope should deactivate after release")
	}
}

func TestEnvelopeFlatHasNoRamp(t *testing.T) {
	var e Envelope
	e.Set(0, 0, 1, 0, 44100)
	e.Trigger(10, 0.8)
	if v := e.ValueAt(10); v != 1 {
		t.Fatalf("flat envelope at trigger = %f, want 1", v)
	}
	if e.Velocity() != 0.8 {
		t.Fatalf("velocity = %f", e.Velocity())
	}
	e.Release(20)
	if v := e.ValueAt(20); v != 0 {
		t.Fatalf("zero release should cut immediately, got %f", v)
	}
}

func TestEnvelopeReleaseWithoutTriggerIsNoop(t *testing.T) {
	var e Envelope
	e.Set(0.1, 0.1, 0.5, 0.1, 100)
	e.Release(5)
	if e.Active() || e.ValueAt(6) != 0 {
		t.Fatalf("release on idle envelope must not activate it")
	}
}

func TestDistortStaysInUnitRange(t *testing.T) {
	for mode := 0; mode < PDModes; mode++ {
		for _, d := range []float64{0, 0.25, 0.5, 0.9, MaxPDAmount} {
			for i := 0; i < 1000; i++ {
				p := float64(i) / 1000
				v := Distort(mode, p, d)
				if v < 0 || v > 1 || math.IsNaN(v) {
					t.Fatalf("mode %d d=%f p=%f -> %f", mode, d, p, v)
				}
			}
		}
	}
}

func TestDistortZeroAmountIsNearIdentity(t *testing.T) {
	for _, mode := range []int{PDPulse, PDSquare, PDFold, PDDouble, PDTriangle} {
		for i := 0; i < 100; i++ {
			p := float64(i) / 100
			if v := Distort(mode, p, 0); math.Abs(v-p) > 1e-9 {
				t.Fatalf("mode %d at p=%f gave %f", mode, p, v)
			}
		}
	}
}

func TestFastPowApproximatesPow(t *testing.T) {
	for _, y := range []float64{1, 2, 3.5, 5, 9} {
		for i := 1; i < 100; i++ {
			x := float64(i) / 100
			got, want := FastPow(x, y), math.Pow(x, y)
			if math.Abs(got-want) > 0.05 {
				t.Fatalf("FastPow(%f, %f) = %f, want %f", x, y, got, want)
			}
		}
	}
	if FastPow(0, 3) != 0 || FastPow(1, 7) != 1 {
		t.Fatalf("edge values wrong")
	}
}
