package engine

import (
	"math"

	"github.com/cbegin/opsynth-go/internal/dsp"
)

// oscillate advances the voice phase by inc and returns the table sample at
// the new position. amount is the effective phase distortion amount.
func (v *voice) oscillate(inc, amount float64) float64 {
	if v.table == nil || v.size == 0 {
		return 0
	}
	if v.reverse {
		inc = -inc
	}
	lo, hi := v.window()
	phase := v.phase + inc
	if math.IsNaN(phase) || math.IsInf(phase, 0) {
		v.phase = lo
		if !v.loop {
			v.finished = true
		}
		return 0
	}
	if v.loop && hi > lo {
		if phase < lo || phase >= hi {
			span := hi - lo
			phase = lo + math.Mod(phase-lo, span)
			if phase < lo {
				phase += span
			}
			if phase >= hi {
				phase = lo
			}
		}
	} else if phase < 0 || phase >= hi {
		v.phase = math.Max(0, math.Min(phase, hi))
		v.finished = true
		return 0
	}
	v.phase = phase

	if v.pdMode != dsp.PDOff && hi > lo {
		p := (phase - lo) / (hi - lo)
		phase = lo + dsp.Distort(v.pdMode, p, amount)*(hi-lo)
	}
	idx := int(phase)
	if idx < 0 {
		idx = 0
	} else if idx >= v.size {
		idx = v.size - 1
	}
	return v.table.Data[idx]
}
