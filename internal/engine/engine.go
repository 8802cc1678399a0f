// Package engine renders the voice bank one output frame at a time.
package engine

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/cbegin/opsynth-go/internal/effects"
	"github.com/cbegin/opsynth-go/internal/sched"
	"github.com/cbegin/opsynth-go/internal/wavetable"
)

const (
	// VoiceMax is the number of voices.
	VoiceMax = 64
	// SideFrames is the length of each voice's side-channel ring, in frames.
	SideFrames = 4096
	// MaxVolume bounds the master volume.
	MaxVolume = 4.0

	volumeCoef = 0.001
	gainCoef   = 0.005
)

// ReplayFunc runs deferred text against a voice. It is called from inside
// Render, so it must not block.
type ReplayFunc func(voice int, text string)

// Stats is a snapshot of render instrumentation.
type Stats struct {
	Now         int64
	Callbacks   uint64
	Frames      uint64
	LastRender  time.Duration
	MaxRender   time.Duration
	Active      int
	Pending     int
	Dropped     uint64
	QueueFiring uint64
}

// Engine owns the voices, the scheduler queue and the master bus. Everything
// except Stats belongs to whichever goroutine calls Render; control code
// reaches it through that goroutine.
type Engine struct {
	rate   float64
	store  *wavetable.Store
	queue  *sched.Queue
	eq     *effects.EQ5Band
	voices [VoiceMax]voice

	// last samples of every voice; one half is read for modulation while
	// the other is written, swapped each frame
	last    [2][VoiceMax]float64
	lastIdx int

	now       int64
	volume    float64
	volTarget float64
	noise     uint32
	sweep     int64
	replay    ReplayFunc

	side    [VoiceMax][]float32
	sidePos int64

	nowPub    atomic.Int64
	callbacks atomic.Uint64
	frames    atomic.Uint64
	lastNanos atomic.Int64
	maxNanos  atomic.Int64
	active    atomic.Int32
	fired     atomic.Uint64
}

// New builds an engine over store. Voices start on the sine table, silent.
func New(store *wavetable.Store) *Engine {
	e := &Engine{
		rate:      float64(store.SampleRate()),
		store:     store,
		queue:     sched.New(),
		eq:        effects.NewEQ5Band(store.SampleRate()),
		volume:    1,
		volTarget: 1,
		noise:     0x9E3779B9,
		sweep:     1,
	}
	for i := range e.side {
		e.side[i] = make([]float32, 2*SideFrames)
	}
	for i := range e.voices {
		e.ResetVoice(i)
	}
	return e
}

func (e *Engine) SampleRate() float64     { return e.rate }
func (e *Engine) Store() *wavetable.Store { return e.store }
func (e *Engine) EQ() *effects.EQ5Band    { return e.eq }
func (e *Engine) SetReplay(fn ReplayFunc) { e.replay = fn }

// SetSweep sets how often, in frames, the scheduler is checked. 1 checks
// every sample; larger values fire deferred commands on the next multiple.
func (e *Engine) SetSweep(frames int) {
	if frames < 1 {
		frames = 1
	}
	e.sweep = int64(frames)
}

// Now returns the frame counter. Only the goroutine driving Render may call
// it; others read Stats().Now, which is published once per callback.
func (e *Engine) Now() int64 { return e.now }

// Schedule queues text to replay against voice at absolute frame when.
func (e *Engine) Schedule(when int64, voice int, text []byte) error {
	return e.queue.Enqueue(when, voice, text)
}

// ClearQueue drops every pending deferred command.
func (e *Engine) ClearQueue() { e.queue.Reset() }

func (e *Engine) Stats() Stats {
	return Stats{
		Now:         e.nowPub.Load(),
		Callbacks:   e.callbacks.Load(),
		Frames:      e.frames.Load(),
		LastRender:  time.Duration(e.lastNanos.Load()),
		MaxRender:   time.Duration(e.maxNanos.Load()),
		Active:      int(e.active.Load()),
		Pending:     e.queue.Pending(),
		Dropped:     e.queue.Dropped(),
		QueueFiring: e.fired.Load(),
	}
}

// Side copies the most recent dry stereo frames of voice v into dst
// (interleaved, oldest first) and returns the number of frames copied. The
// rings are written by Render without synchronization, so Side belongs to
// the same goroutine; other goroutines ask that goroutine for a copy.
func (e *Engine) Side(v int, dst []float32) int {
	if v < 0 || v >= VoiceMax {
		return 0
	}
	n := len(dst) / 2
	if n > SideFrames {
		n = SideFrames
	}
	pos := int(e.sidePos % SideFrames)
	ring := e.side[v]
	start := (pos - n + SideFrames) % SideFrames
	for i := 0; i < n; i++ {
		j := (start + i) % SideFrames
		dst[2*i] = ring[2*j]
		dst[2*i+1] = ring[2*j+1]
	}
	return n
}

// Render fills out with frames interleaved frames of channels channels.
// Mono gets the average of left and right; channels past the second are
// zeroed. in is accepted for callback symmetry and not read.
func (e *Engine) Render(out, in []float32, frames, channels int) {
	if channels <= 0 {
		return
	}
	start := time.Now()
	if frames*channels > len(out) {
		frames = len(out) / channels
	}
	for f := 0; f < frames; f++ {
		l, r := e.frame()
		o := out[f*channels : (f+1)*channels]
		switch channels {
		case 1:
			o[0] = (l + r) / 2
		default:
			o[0], o[1] = l, r
			for c := 2; c < channels; c++ {
				o[c] = 0
			}
		}
	}
	e.nowPub.Store(e.now)
	e.callbacks.Add(1)
	e.frames.Add(uint64(frames))
	d := time.Since(start).Nanoseconds()
	e.lastNanos.Store(d)
	if d > e.maxNanos.Load() {
		e.maxNanos.Store(d)
	}
}

// frame renders one stereo frame.
func (e *Engine) frame() (float32, float32) {
	e.now++
	if e.replay != nil && (e.sweep <= 1 || e.now%e.sweep == 0) && e.queue.Due(e.now) {
		e.fired.Add(uint64(e.queue.Drain(e.now, e.replay)))
	}

	noise := e.nextNoise()
	prev := &e.last[e.lastIdx]
	cur := &e.last[1-e.lastIdx]
	pos := int(e.sidePos % SideFrames)

	var mixL, mixR float64
	active := int32(0)
	for i := range e.voices {
		v := &e.voices[i]
		s, gl, gr := e.step(v, prev, noise)
		cur[i] = s
		if s != 0 {
			active++
		}
		var sl, sr float64
		if !v.muted {
			sl, sr = s*gl, s*gr
			mixL += sl
			mixR += sr
		}
		e.side[i][2*pos] = float32(sl)
		e.side[i][2*pos+1] = float32(sr)
	}
	e.lastIdx = 1 - e.lastIdx
	e.sidePos++
	e.active.Store(active)

	e.volume += volumeCoef * (e.volTarget - e.volume)
	mixL *= e.volume
	mixR *= e.volume
	if !e.eq.Flat() {
		mixL, mixR = e.eq.Process(mixL, mixR)
	}
	return float32(clamp(mixL, -1, 1)), float32(clamp(mixR, -1, 1))
}

// step renders voice v for the current frame and returns its post-gain
// sample and the left/right pan gains to apply to it.
func (e *Engine) step(v *voice, prev *[VoiceMax]float64, noise float64) (float64, float64, float64) {
	if v.finished || v.amp == 0 {
		v.gain = 0
		return 0, 0, 0
	}
	if v.glideLeft > 0 {
		v.glideLeft--
		v.freq += v.glideStep
		if v.glideLeft == 0 {
			v.freq = v.glideTarget
		}
		v.retune()
	}

	var s float64
	if v.noise {
		s = noise
	} else {
		inc := v.inc
		if m := v.mods[ModFreq]; m.active() {
			ratio := 1.0
			if src := &e.voices[m.Src]; src.size > 0 {
				ratio = float64(v.size) / float64(src.size)
			}
			inc += m.Depth * prev[m.Src] * ratio
		}
		amount := v.pdAmount
		if m := v.mods[ModPD]; m.active() {
			amount = clamp(amount+m.Depth*prev[m.Src], 0, 0.999)
		}
		s = v.oscillate(inc, amount)
	}

	if v.hold > 1 {
		if v.holdCount == 0 {
			v.held = s
		}
		v.holdCount = (v.holdCount + 1) % v.hold
		s = v.held
	}
	if v.quantum > 0 {
		s = math.Round(s*v.quantum) / v.quantum
	}
	if v.filterMode != 0 {
		v.filter.SetParams(v.filterMode, v.cutoff, v.resonance)
		s = v.filter.Process(s)
	}

	g := v.amp
	if v.envOn {
		g *= v.env.ValueAt(e.now) * v.env.Velocity()
	}
	if m := v.mods[ModAmp]; m.active() {
		g *= 1 + m.Depth*prev[m.Src]
	}
	if v.smooth {
		v.gain += gainCoef * (g - v.gain)
		g = v.gain
	} else {
		v.gain = g
	}
	s *= g

	gl, gr := v.panL, v.panR
	if m := v.mods[ModPan]; m.active() {
		q := clamp(v.pan+m.Depth*prev[m.Src], -1, 1)
		gl, gr = (1-q)/2, (1+q)/2
	}
	return s, gl, gr
}

// nextNoise draws the frame's shared white-noise value in [-1, 1).
func (e *Engine) nextNoise() float64 {
	x := e.noise
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	e.noise = x
	return float64(x)/(1<<31) - 1
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
