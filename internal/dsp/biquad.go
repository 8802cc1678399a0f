package dsp

import "math"

// FilterMode selects the biquad response.
type FilterMode int

const (
	FilterOff FilterMode = iota
	LowPass
	HighPass
	BandPass
	Notch
	AllPass
)

const (
	minCutoff = 10.0
	minQ      = 0.1
	maxQ      = 40.0
)

func (m FilterMode) String() string {
	switch m {
	case LowPass:
		return "lp"
	case HighPass:
		return "hp"
	case BandPass:
		return "bp"
	case Notch:
		return "notch"
	case AllPass:
		return "ap"
	default:
		return "off"
	}
}

// Biquad is a two-pole, two-zero filter with RBJ cookbook coefficients.
// Coefficients are cached against the last (mode, cutoff, q) triple and only
// recomputed by SetParams when one of them changes.
type Biquad struct {
	sampleRate float64

	mode   FilterMode
	cutoff float64
	q      float64
	cached bool

	b0, b1, b2 float64
	a1, a2     float64

	x1, x2 float64
	y1, y2 float64

	recomputes int
}

func NewBiquad(sampleRate float64) Biquad {
	return Biquad{sampleRate: sampleRate}
}

// SetParams updates the target response. It is a no-op unless the triple
// differs from the one the current coefficients were derived from.
func (b *Biquad) SetParams(mode FilterMode, cutoff, q float64) {
	if b.cached && mode == b.mode && cutoff == b.cutoff && q == b.q {
		return
	}
	b.mode, b.cutoff, b.q = mode, cutoff, q
	b.cached = true
	b.recompute()
}

func (b *Biquad) recompute() {
	b.recomputes++
	if b.mode == FilterOff || b.sampleRate <= 0 {
		b.b0, b.b1, b.b2, b.a1, b.a2 = 1, 0, 0, 0, 0
		return
	}
	fc := clampFloat(b.cutoff, minCutoff, 0.49*b.sampleRate)
	q := clampFloat(b.q, minQ, maxQ)
	w0 := 2 * math.Pi * fc / b.sampleRate
	cosw0 := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * q)

	var bb0, bb1, bb2 float64
	aa0 := 1 + alpha
	aa1 := -2 * cosw0
	aa2 := 1 - alpha
	switch b.mode {
	case LowPass:
		bb1 = 1 - cosw0
		bb0 = bb1 / 2
		bb2 = bb0
	case HighPass:
		bb1 = -(1 + cosw0)
		bb0 = (1 + cosw0) / 2
		bb2 = bb0
	case BandPass:
		// constant 0 dB peak gain
		bb0 = alpha
		bb1 = 0
		bb2 = -alpha
	case Notch:
		bb0 = 1
		bb1 = -2 * cosw0
		bb2 = 1
	case AllPass:
		bb0 = 1 - alpha
		bb1 = -2 * cosw0
		bb2 = 1 + alpha
	}
	b.b0 = bb0 / aa0
	b.b1 = bb1 / aa0
	b.b2 = bb2 / aa0
	b.a1 = aa1 / aa0
	b.a2 = aa2 / aa0
}

// Process filters one sample. History is updated on every call.
func (b *Biquad) Process(x float64) float64 {
	y := b.b0*x + b.b1*b.x1 + b.b2*b.x2 - b.a1*b.y1 - b.a2*b.y2
	if math.IsNaN(y) || math.IsInf(y, 0) {
		y = 0
		b.y1, b.y2 = 0, 0
	}
	b.x2, b.x1 = b.x1, x
	b.y2, b.y1 = b.y1, y
	return y
}

// Reset clears the sample history but keeps the cached coefficients.
func (b *Biquad) Reset() {
	b.x1, b.x2, b.y1, b.y2 = 0, 0, 0, 0
}

// Recomputes counts coefficient derivations since creation.
func (b *Biquad) Recomputes() int { return b.recomputes }

// Coefficients returns b0, b1, b2, a1, a2 (a0 normalized to 1).
func (b *Biquad) Coefficients() [5]float64 {
	return [5]float64{b.b0, b.b1, b.b2, b.a1, b.a2}
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
