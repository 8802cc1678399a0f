package engine

import (
	"math"

	"github.com/cbegin/opsynth-go/internal/dsp"
	"github.com/cbegin/opsynth-go/internal/wavetable"
)

// Target names a modulated parameter.
type Target int

const (
	ModFreq Target = iota
	ModAmp
	ModPan
	ModPD
	modTargets
)

func (t Target) String() string {
	return [...]string{"freq", "amp", "pan", "pd"}[t]
}

// NoSource marks a modulation route as unused.
const NoSource = -1

// Route reads another voice's previous sample scaled by Depth.
type Route struct {
	Src   int
	Depth float64
}

func (r Route) active() bool { return r.Src != NoSource && r.Depth != 0 }

// voice holds both what the interpreter asked for (frequency, amplitude,
// routing...) and what the render loop derives from it every sample (phase,
// filter history, smoothed gain). Only the goroutine running the engine
// touches it.
type voice struct {
	wave     int
	table    *wavetable.Table
	incScale float64
	size     int
	noise    bool
	loopLo   int
	loopHi   int

	freq     float64
	amp      float64
	pan      float64
	panL     float64
	panR     float64
	loop     bool
	reverse  bool
	muted    bool
	smooth   bool
	pdMode   int
	pdAmount float64
	mods     [modTargets]Route

	filterMode dsp.FilterMode
	cutoff     float64
	resonance  float64
	filter     dsp.Biquad

	envOn    bool
	env      dsp.Envelope
	velocity float64

	hold      int
	holdCount int
	held      float64
	bits      int
	quantum   float64

	glide       int64
	glideLeft   int64
	glideStep   float64
	glideTarget float64

	phase    float64
	inc      float64
	finished bool
	gain     float64
}

func (v *voice) reset(rate float64) {
	*v = voice{
		wave:       -1,
		freq:       440,
		pan:        0,
		panL:       0.5,
		panR:       0.5,
		cutoff:     1000,
		resonance:  0.707,
		filter:     dsp.NewBiquad(rate),
		velocity:   1,
		loop:       true,
		pdMode:     dsp.PDOff,
		filterMode: dsp.FilterOff,
	}
	for i := range v.mods {
		v.mods[i] = Route{Src: NoSource}
	}
}

// bind caches the table's render parameters on the voice.
func (v *voice) bind(id int, t *wavetable.Table, rate float64) {
	v.wave = id
	v.table = t
	v.size = t.Len()
	v.incScale = t.IncrementScale(rate)
	v.noise = t.Noise
	v.loop = !t.OneShot
	v.loopLo, v.loopHi = t.LoopStart, t.LoopEnd
	if v.loopHi <= v.loopLo || v.loopHi > v.size {
		v.loopLo, v.loopHi = 0, v.size
	}
	if v.phase < 0 || v.phase >= float64(v.size) {
		v.phase = float64(v.loopLo)
	}
	if v.finished {
		// a spent one-shot plays the new table from its start
		lo, hi := v.window()
		v.phase = lo
		if v.reverse {
			v.phase = hi
		}
		v.finished = false
	}
	v.retune()
}

func (v *voice) retune() {
	v.inc = v.freq * v.incScale
}

func (v *voice) setPan(p float64) {
	v.pan = p
	v.panL = (1 - p) / 2
	v.panR = (1 + p) / 2
}

func (v *voice) setBits(bits int) {
	v.bits = bits
	v.quantum = 0
	if bits > 0 {
		v.quantum = math.Ldexp(1, bits-1)
	}
}

// window returns the phase range the oscillator plays through.
func (v *voice) window() (lo, hi float64) {
	if v.loop && v.loopHi > v.loopLo {
		return float64(v.loopLo), float64(v.loopHi)
	}
	return 0, float64(v.size)
}

func (v *voice) trigger(now int64, velocity float64) {
	lo, hi := v.window()
	v.phase = lo
	if v.reverse {
		v.phase = hi
	}
	v.finished = false
	v.holdCount = 0
	v.velocity = velocity
	v.env.Trigger(now, velocity)
}
