// Package effects holds the master bus processing applied after the voice mix.
package effects

import (
	"math"
	"sync/atomic"
)

// Bands is the number of EQ bands.
const Bands = 5

// MaxGain bounds a band gain (linear, 1 = unity).
const MaxGain = 4.0

// EQ5Band is a 5-band equalizer split at 200Hz, 800Hz, 2.5kHz and 8kHz by
// cascaded one-pole crossovers. Gains are float64 bit patterns so SetGain can
// be called from any goroutine while the audio thread runs Process.
type EQ5Band struct {
	gains  [Bands]atomic.Uint64
	alphas [Bands - 1]float64
	lpL    [Bands - 1]float64
	lpR    [Bands - 1]float64
}

var crossovers = [Bands - 1]float64{200, 800, 2500, 8000}

func NewEQ5Band(sampleRate int) *EQ5Band {
	eq := &EQ5Band{}
	dt := 1.0 / float64(sampleRate)
	for i, freq := range crossovers {
		rc := 1.0 / (2.0 * math.Pi * freq)
		eq.alphas[i] = dt / (rc + dt)
	}
	eq.Flatten()
	return eq
}

// SetGain sets the linear gain of band, clamped to [0, MaxGain]. It reports
// false when band is out of range.
func (eq *EQ5Band) SetGain(band int, gain float64) bool {
	if band < 0 || band >= Bands || math.IsNaN(gain) {
		return false
	}
	gain = math.Max(0, math.Min(MaxGain, gain))
	eq.gains[band].Store(math.Float64bits(gain))
	return true
}

func (eq *EQ5Band) Gain(band int) float64 {
	if band < 0 || band >= Bands {
		return 1
	}
	return math.Float64frombits(eq.gains[band].Load())
}

// Flatten puts every band back to unity.
func (eq *EQ5Band) Flatten() {
	for i := range eq.gains {
		eq.gains[i].Store(math.Float64bits(1))
	}
}

// Flat reports whether all bands are at unity, in which case Process is a
// no-op apart from keeping the crossover state warm.
func (eq *EQ5Band) Flat() bool {
	for i := range eq.gains {
		if math.Float64frombits(eq.gains[i].Load()) != 1 {
			return false
		}
	}
	return true
}

func (eq *EQ5Band) Process(l, r float64) (float64, float64) {
	// band i < 4 is what crossover i lets through of the remainder;
	// band 4 is everything above the last crossover.
	var outL, outR float64
	remL, remR := l, r
	for i := range eq.alphas {
		eq.lpL[i] += eq.alphas[i] * (remL - eq.lpL[i])
		eq.lpR[i] += eq.alphas[i] * (remR - eq.lpR[i])
		g := math.Float64frombits(eq.gains[i].Load())
		outL += eq.lpL[i] * g
		outR += eq.lpR[i] * g
		remL -= eq.lpL[i]
		remR -= eq.lpR[i]
	}
	g := math.Float64frombits(eq.gains[Bands-1].Load())
	return outL + remL*g, outR + remR*g
}

func (eq *EQ5Band) Reset() {
	for i := range eq.lpL {
		eq.lpL[i] = 0
		eq.lpR[i] = 0
	}
}
