package wavetable

import "math"

const cycleLen = 1024

// Builtin slot numbers.
const (
	Sine = iota
	Square
	SawUp
	SawDown
	Triangle
	Noise
	NoiseAlt
	ROMTriangle
	ROMSaw
	ROMPulse12
	ROMPulse25
	ROMSquare
	ROMNoise
)

const (
	Kick = 16 + iota
	Snare
	Hat
	OpenHat
	Clap
	Tom
)

// LoadBuiltin fills the procedural, ROM and percussion banks.
func (s *Store) LoadBuiltin() {
	rate := float64(s.sampleRate)
	cycles := []struct {
		slot int
		name string
		fn   func(p float64) float64
	}{
		{Sine, "sine", func(p float64) float64 { return math.Sin(2 * math.Pi * p) }},
		{Square, "square", func(p float64) float64 {
			if p < 0.5 {
				return 1
			}
			return -1
		}},
		{SawUp, "saw-up", func(p float64) float64 { return 2*p - 1 }},
		{SawDown, "saw-down", func(p float64) float64 { return 1 - 2*p }},
		{Triangle, "triangle", func(p float64) float64 {
			switch {
			case p < 0.25:
				return 4 * p
			case p < 0.75:
				return 2 - 4*p
			default:
				return 4*p - 4
			}
		}},
	}
	for _, c := range cycles {
		data := make([]float64, cycleLen)
		for i := range data {
			data[i] = c.fn(float64(i) / cycleLen)
		}
		_ = s.Install(c.slot, NewCycle(c.name, data, rate))
	}

	noise := NewSample("noise", Normalize(whiteNoise(s.sampleRate, 0x2545F491)), rate)
	noise.OneShot = false
	_ = s.Install(Noise, noise)
	// The alt table is only a marker; the engine draws one value per frame.
	alt := NewCycle("noise-alt", []float64{0}, rate)
	alt.Noise = true
	_ = s.Install(NoiseAlt, alt)

	for _, w := range romWaves() {
		_ = s.Install(w.slot, NewCycle(w.name, fromInt8(w.data), rate))
	}
	for _, d := range drumKit(s.sampleRate) {
		_ = s.Install(d.slot, NewSample(d.name, Normalize(d.data), rate))
	}
}

// xorshift32 generator; deterministic so renders are reproducible.
type xorshift uint32

func (x *xorshift) next() float64 {
	v := uint32(*x)
	v ^= v << 13
	v ^= v >> 17
	v ^= v << 5
	*x = xorshift(v)
	return float64(int32(v)) / (1 << 31)
}

func whiteNoise(n int, seed uint32) []float64 {
	g := xorshift(seed)
	out := make([]float64, n)
	for i := range out {
		out[i] = g.next()
	}
	return out
}

func fromInt8(src []int8) []float64 {
	out := make([]float64, len(src))
	for i, b := range src {
		out[i] = float64(b) / 128
	}
	return out
}

type romWave struct {
	slot int
	name string
	data []int8
}

// romWaves builds the 8-bit waveforms the way tracker replay ROMs laid them
// out: 128-byte cycles with integer step sizes, plus a rotating LFSR noise.
func romWaves() []romWave {
	const n = 0x80
	tri := make([]int8, n)
	quarter := n >> 2
	step := 128 / quarter
	v := 0
	pos := 0
	for i := 0; i < quarter; i++ {
		tri[pos] = int8(v)
		pos++
		v += step
	}
	tri[pos] = 0x7f
	pos++
	v = 128
	for i := 0; i < quarter-1; i++ {
		v -= step
		tri[pos] = int8(v)
		pos++
	}
	for i := 0; pos < n; i++ {
		if tri[i] == 0x7f {
			tri[pos] = -128
		} else {
			tri[pos] = -tri[i]
		}
		pos++
	}

	saw := make([]int8, n)
	sstep := 256 / (n - 1)
	v = -128
	for i := range saw {
		saw[i] = int8(v)
		v += sstep
	}

	pulse := func(width int) []int8 {
		out := make([]int8, n)
		for i := range out {
			if i < n-width {
				out[i] = -128
			} else {
				out[i] = 127
			}
		}
		return out
	}

	noise := make([]int8, 0x280*3)
	r := uint32(0x41595321)
	for i := range noise {
		if r&0x100 != 0 {
			if int16(r&0xFFFF) < 0 {
				noise[i] = -128
			} else {
				noise[i] = 127
			}
		} else {
			noise[i] = int8(r & 0xFF)
		}
		r = r>>5 | r<<27
		r ^= 0x9A
		bx := uint16(r & 0xFFFF)
		r = r<<2 | r>>30
		bx += uint16(r & 0xFFFF)
		r = r&0xFFFF0000 | uint32(uint16(r)^bx)
		r = r>>3 | r<<29
	}

	return []romWave{
		{ROMTriangle, "rom-tri", tri},
		{ROMSaw, "rom-saw", saw},
		{ROMPulse12, "rom-pulse12", pulse(n / 8)},
		{ROMPulse25, "rom-pulse25", pulse(n / 4)},
		{ROMSquare, "rom-square", pulse(n / 2)},
		{ROMNoise, "rom-noise", noise},
	}
}

type drum struct {
	slot int
	name string
	data []float64
}

func drumKit(sampleRate int) []drum {
	rate := float64(sampleRate)
	g := xorshift(0x9E3779B9)
	render := func(sec float64, fn func(t float64) float64) []float64 {
		out := make([]float64, int(sec*rate))
		for i := range out {
			out[i] = fn(float64(i) / rate)
		}
		return out
	}
	sweep := func(from, to, fall, decay float64) func(t float64) float64 {
		phase := 0.0
		return func(t float64) float64 {
			f := to + (from-to)*math.Exp(-t*fall)
			phase += f / rate
			return math.Sin(2*math.Pi*phase) * math.Exp(-t*decay)
		}
	}
	hiss := func(decay float64) func(t float64) float64 {
		prev := 0.0
		return func(t float64) float64 {
			n := g.next()
			hp := n - prev
			prev = n
			return hp * math.Exp(-t*decay)
		}
	}
	snareTone := sweep(200, 180, 40, 30)
	return []drum{
		{Kick, "kick", render(0.5, sweep(150, 45, 25, 7))},
		{Snare, "snare", render(0.3, func(t float64) float64 {
			return 0.7*g.next()*math.Exp(-t*20) + 0.5*snareTone(t)
		})},
		{Hat, "hat", render(0.08, hiss(60))},
		{OpenHat, "open-hat", render(0.4, hiss(8))},
		{Clap, "clap", render(0.3, func(t float64) float64 {
			env := math.Exp(-t * 25)
			for _, at := range []float64{0, 0.01, 0.02} {
				if t >= at && t < at+0.008 {
					env = 1
				}
			}
			return g.next() * env
		})},
		{Tom, "tom", render(0.4, sweep(220, 110, 12, 9))},
	}
}
