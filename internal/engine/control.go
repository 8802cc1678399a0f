package engine

import (
	"errors"
	"fmt"
	"math"

	"github.com/cbegin/opsynth-go/internal/dsp"
)

var (
	ErrNoTable = errors.New("wavetable slot is empty")
	ErrWindow  = errors.New("loop window outside table")
)

// Valid reports whether v names a voice.
func Valid(v int) bool { return v >= 0 && v < VoiceMax }

// SelectWave binds voice v to wavetable slot. The voice keeps its frequency
// and the increment is recomputed for the new table. A voice whose one-shot
// has finished starts over at the new table's window; the envelope is left
// alone.
func (e *Engine) SelectWave(v, slot int) error {
	t := e.store.Get(slot)
	if t == nil || t.Len() == 0 {
		return fmt.Errorf("voice %d wave %d: %w", v, slot, ErrNoTable)
	}
	e.voices[v].bind(slot, t, e.rate)
	return nil
}

// AnchorFrequency is the pitch at which voice v's table plays at its native
// rate, or 0 without a table.
func (e *Engine) AnchorFrequency(v int) float64 {
	if t := e.voices[v].table; t != nil {
		return t.Freq
	}
	return 0
}

// SetFrequency sets the pitch of voice v, gliding when a glide time is set.
func (e *Engine) SetFrequency(v int, hz float64) {
	vc := &e.voices[v]
	if vc.glide > 0 && hz != vc.freq {
		vc.glideTarget = hz
		vc.glideLeft = vc.glide
		vc.glideStep = (hz - vc.freq) / float64(vc.glide)
		return
	}
	vc.glideLeft = 0
	vc.freq = hz
	vc.retune()
}

// SetGlide sets the glide time used by later SetFrequency calls.
func (e *Engine) SetGlide(v int, seconds float64) {
	e.voices[v].glide = int64(math.Max(0, seconds) * e.rate)
}

func (e *Engine) SetAmplitude(v int, amp float64) { e.voices[v].amp = amp }
func (e *Engine) SetPan(v int, pan float64)       { e.voices[v].setPan(pan) }
func (e *Engine) SetQuantize(v, bits int)         { e.voices[v].setBits(bits) }
func (e *Engine) SetLoop(v int, on bool)          { e.voices[v].loop = on }
func (e *Engine) SetReverse(v int, on bool)       { e.voices[v].reverse = on }
func (e *Engine) SetMute(v int, on bool)          { e.voices[v].muted = on }
func (e *Engine) SetSmoothing(v int, on bool)     { e.voices[v].smooth = on }

// SetHold holds every n-th oscillator sample for n frames. n <= 1 disables.
func (e *Engine) SetHold(v, n int) {
	vc := &e.voices[v]
	if n <= 1 {
		n = 0
	}
	vc.hold = n
	vc.holdCount = 0
}

// SetDistortion selects the phase distortion shaper and its amount.
func (e *Engine) SetDistortion(v, mode int, amount float64) {
	vc := &e.voices[v]
	vc.pdMode = mode
	vc.pdAmount = clamp(amount, 0, dsp.MaxPDAmount)
}

// SetRoute points target of voice v at src's previous sample. An out of
// range src clears the route.
func (e *Engine) SetRoute(v int, target Target, src int, depth float64) {
	if !Valid(src) {
		src = NoSource
	}
	e.voices[v].mods[target] = Route{Src: src, Depth: depth}
}

func (e *Engine) SetFilterMode(v int, mode dsp.FilterMode) { e.voices[v].filterMode = mode }
func (e *Engine) SetCutoff(v int, hz float64)              { e.voices[v].cutoff = hz }
func (e *Engine) SetResonance(v int, q float64)            { e.voices[v].resonance = q }

// SetEnvelope sets and enables the ADSR of voice v. Times are seconds.
func (e *Engine) SetEnvelope(v int, attack, decay, sustain, release float64) {
	vc := &e.voices[v]
	vc.env.Set(attack, decay, sustain, release, e.rate)
	vc.envOn = true
}

func (e *Engine) DisableEnvelope(v int) { e.voices[v].envOn = false }

// Trigger restarts voice v from the top of its window and fires its envelope.
// A negative velocity reuses the last one.
func (e *Engine) Trigger(v int, velocity float64) {
	vc := &e.voices[v]
	if velocity < 0 {
		velocity = vc.velocity
	}
	vc.trigger(e.now, velocity)
}

// Gate triggers voice v with velocity > 0 and releases it otherwise.
func (e *Engine) Gate(v int, velocity float64) {
	if velocity > 0 {
		e.Trigger(v, velocity)
		return
	}
	e.voices[v].env.Release(e.now)
}

// SetLoopWindow restricts looping to table samples [start, end).
func (e *Engine) SetLoopWindow(v, start, end int) error {
	vc := &e.voices[v]
	if start < 0 || end > vc.size || end <= start {
		return fmt.Errorf("voice %d loop %d..%d of %d: %w", v, start, end, vc.size, ErrWindow)
	}
	vc.loopLo, vc.loopHi = start, end
	return nil
}

// ResetLoopWindow restores the window the table was recorded with.
func (e *Engine) ResetLoopWindow(v int) {
	vc := &e.voices[v]
	if vc.table != nil {
		vc.bind(vc.wave, vc.table, e.rate)
	}
}

// Copy duplicates voice from into voice to, derived state included.
func (e *Engine) Copy(from, to int) {
	if from == to {
		return
	}
	e.voices[to] = e.voices[from]
}

// ResetVoice returns voice v to power-on defaults: sine table, 440Hz, silent.
func (e *Engine) ResetVoice(v int) {
	vc := &e.voices[v]
	vc.reset(e.rate)
	if t := e.store.Get(0); t != nil {
		vc.bind(0, t, e.rate)
	}
	e.last[0][v], e.last[1][v] = 0, 0
}

// ResetAll resets every voice, the master volume and the EQ.
func (e *Engine) ResetAll() {
	for i := range e.voices {
		e.ResetVoice(i)
	}
	e.volume, e.volTarget = 1, 1
	e.eq.Flatten()
	e.eq.Reset()
}

// SetVolume sets the master volume target; the bus glides toward it.
func (e *Engine) SetVolume(level float64) { e.volTarget = clamp(level, 0, MaxVolume) }

func (e *Engine) Volume() float64 { return e.volTarget }
