package protocol

import (
	"errors"
	"math"

	"github.com/cbegin/opsynth-go/internal/dsp"
	"github.com/cbegin/opsynth-go/internal/engine"
	"github.com/cbegin/opsynth-go/internal/wavetable"
)

type opcode struct {
	min, max int
	run      func(in *Interp, s *Session, t *Token) Code
	def      func(in *Interp, s *Session) Code
}

// opcodes is indexed by the opcode byte; entries without run are unknown.
// Each entry has an arity range, the handler and the '/' default variant.
var opcodes [128]opcode

func lookup(c byte) *opcode {
	if c >= 128 || opcodes[c].run == nil {
		return nil
	}
	return &opcodes[c]
}

func init() {
	opcodes['v'] = opcode{1, 1, opVoice, func(in *Interp, s *Session) Code {
		s.voice = 0
		return ErrNone
	}}
	opcodes['f'] = opcode{1, 1, opFreq, defAnchor}
	opcodes['n'] = opcode{1, 1, opNote, defAnchor}
	opcodes['a'] = opcode{1, 1, opAmp, func(in *Interp, s *Session) Code {
		in.eng.SetAmplitude(s.voice, 1)
		return ErrNone
	}}
	opcodes['p'] = opcode{1, 1, opPan, func(in *Interp, s *Session) Code {
		in.eng.SetPan(s.voice, 0)
		return ErrNone
	}}
	opcodes['w'] = opcode{1, 1, opWave, defAnchor}
	opcodes['T'] = opcode{0, 1, opTrigger, nil}
	opcodes['l'] = opcode{1, 1, opGate, func(in *Interp, s *Session) Code {
		in.eng.Gate(s.voice, 0)
		return ErrNone
	}}
	opcodes['E'] = opcode{4, 4, opEnvelope, func(in *Interp, s *Session) Code {
		in.eng.DisableEnvelope(s.voice)
		return ErrNone
	}}
	opcodes['F'] = routeOp(engine.ModFreq)
	opcodes['A'] = routeOp(engine.ModAmp)
	opcodes['P'] = routeOp(engine.ModPan)
	opcodes['C'] = routeOp(engine.ModPD)
	opcodes['c'] = opcode{1, 2, opDistort, func(in *Interp, s *Session) Code {
		in.eng.SetDistortion(s.voice, dsp.PDOff, 0)
		return ErrNone
	}}
	opcodes['J'] = opcode{1, 1, opFilterMode, func(in *Interp, s *Session) Code {
		in.eng.SetFilterMode(s.voice, dsp.FilterOff)
		return ErrNone
	}}
	opcodes['K'] = opcode{1, 1, opCutoff, func(in *Interp, s *Session) Code {
		in.eng.SetCutoff(s.voice, 1000)
		return ErrNone
	}}
	opcodes['Q'] = opcode{1, 1, opResonance, func(in *Interp, s *Session) Code {
		in.eng.SetResonance(s.voice, 0.707)
		return ErrNone
	}}
	opcodes['q'] = opcode{1, 1, opQuantize, func(in *Interp, s *Session) Code {
		in.eng.SetQuantize(s.voice, 0)
		return ErrNone
	}}
	opcodes['h'] = opcode{1, 1, opHold, func(in *Interp, s *Session) Code {
		in.eng.SetHold(s.voice, 0)
		return ErrNone
	}}
	opcodes['B'] = toggleOp(func(st engine.State) bool { return st.Loop }, (*engine.Engine).SetLoop,
		func(in *Interp, s *Session) Code {
			in.eng.ResetLoopWindow(s.voice)
			return ErrNone
		})
	opcodes['b'] = toggleOp(func(st engine.State) bool { return st.Reverse }, (*engine.Engine).SetReverse, nil)
	opcodes['m'] = toggleOp(func(st engine.State) bool { return st.Muted }, (*engine.Engine).SetMute, nil)
	opcodes['s'] = toggleOp(func(st engine.State) bool { return st.Smooth }, (*engine.Engine).SetSmoothing, nil)
	opcodes['L'] = opcode{2, 2, opLoopWindow, func(in *Interp, s *Session) Code {
		in.eng.ResetLoopWindow(s.voice)
		return ErrNone
	}}
	opcodes['g'] = opcode{1, 1, opGlide, func(in *Interp, s *Session) Code {
		in.eng.SetGlide(s.voice, 0)
		return ErrNone
	}}
	opcodes['>'] = opcode{1, 1, opCopy, nil}
	opcodes['S'] = opcode{0, 1, opReset, nil}
	opcodes['V'] = opcode{1, 1, opVolume, func(in *Interp, s *Session) Code {
		in.eng.SetVolume(1)
		return ErrNone
	}}
	opcodes['t'] = opcode{1, 1, opTempo, func(in *Interp, s *Session) Code {
		in.bpm = DefaultBPM
		return ErrNone
	}}
}

// intArg converts an argument that must be a whole number.
func intArg(x float64) (int, bool) {
	if x != math.Trunc(x) || math.Abs(x) > 1<<30 {
		return 0, false
	}
	return int(x), true
}

func finite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }

func opVoice(in *Interp, s *Session, t *Token) Code {
	v, ok := intArg(t.Args[0])
	if !ok || !engine.Valid(v) {
		return ErrVoice
	}
	s.voice = v
	return ErrNone
}

func (in *Interp) setFreq(s *Session, hz float64) Code {
	if !finite(hz) || hz < 0 || hz > in.eng.SampleRate()/2 {
		return ErrFrequency
	}
	in.eng.SetFrequency(s.voice, hz)
	return ErrNone
}

func opFreq(in *Interp, s *Session, t *Token) Code { return in.setFreq(s, t.Args[0]) }

func opNote(in *Interp, s *Session, t *Token) Code {
	return in.setFreq(s, 440*math.Pow(2, (t.Args[0]-69)/12))
}

// defAnchor retunes the voice to the pitch its table was recorded at.
func defAnchor(in *Interp, s *Session) Code {
	hz := in.eng.AnchorFrequency(s.voice)
	if hz <= 0 {
		return ErrWave
	}
	return in.setFreq(s, hz)
}

func opAmp(in *Interp, s *Session, t *Token) Code {
	a := t.Args[0]
	if !(a >= 0 && a <= 1) {
		return ErrAmplitude
	}
	in.eng.SetAmplitude(s.voice, a)
	return ErrNone
}

func opPan(in *Interp, s *Session, t *Token) Code {
	p := t.Args[0]
	if !(p >= -1 && p <= 1) {
		return ErrPan
	}
	in.eng.SetPan(s.voice, p)
	return ErrNone
}

func opWave(in *Interp, s *Session, t *Token) Code {
	slot, ok := intArg(t.Args[0])
	if !ok || slot < 0 || slot >= wavetable.Slots {
		return ErrWave
	}
	if err := in.eng.SelectWave(s.voice, slot); err != nil {
		return s.fail(err, ErrWave)
	}
	return ErrNone
}

func velocityArg(t *Token, fallback float64) (float64, Code) {
	if t.N == 0 {
		return fallback, ErrNone
	}
	v := t.Args[0]
	if !(v >= 0 && v <= 1) {
		return 0, ErrRange
	}
	return v, ErrNone
}

func opTrigger(in *Interp, s *Session, t *Token) Code {
	vel, code := velocityArg(t, -1)
	if code != ErrNone {
		return code
	}
	in.eng.Trigger(s.voice, vel)
	return ErrNone
}

func opGate(in *Interp, s *Session, t *Token) Code {
	vel, code := velocityArg(t, 0)
	if code != ErrNone {
		return code
	}
	in.eng.Gate(s.voice, vel)
	return ErrNone
}

func opEnvelope(in *Interp, s *Session, t *Token) Code {
	a, d, sus, r := t.Args[0], t.Args[1], t.Args[2], t.Args[3]
	if !(a >= 0 && d >= 0 && r >= 0 && sus >= 0 && sus <= 1) || !finite(a+d+r) {
		return ErrRange
	}
	in.eng.SetEnvelope(s.voice, a, d, sus, r)
	return ErrNone
}

func routeOp(target engine.Target) opcode {
	return opcode{2, 2,
		func(in *Interp, s *Session, t *Token) Code {
			src, ok := intArg(t.Args[0])
			if !ok {
				src = engine.NoSource
			}
			if !finite(t.Args[1]) {
				return ErrRange
			}
			in.eng.SetRoute(s.voice, target, src, t.Args[1])
			return ErrNone
		},
		func(in *Interp, s *Session) Code {
			in.eng.SetRoute(s.voice, target, engine.NoSource, 0)
			return ErrNone
		},
	}
}

func opDistort(in *Interp, s *Session, t *Token) Code {
	mode, ok := intArg(t.Args[0])
	if !ok || mode < 0 || mode >= dsp.PDModes {
		return ErrRange
	}
	amount := in.eng.State(s.voice).PDAmount
	if t.N == 2 {
		amount = t.Args[1]
		if !(amount >= 0 && amount <= 1) {
			return ErrRange
		}
	}
	in.eng.SetDistortion(s.voice, mode, amount)
	return ErrNone
}

func opFilterMode(in *Interp, s *Session, t *Token) Code {
	mode, ok := intArg(t.Args[0])
	if !ok || mode < int(dsp.FilterOff) || mode > int(dsp.AllPass) {
		return ErrRange
	}
	in.eng.SetFilterMode(s.voice, dsp.FilterMode(mode))
	return ErrNone
}

func opCutoff(in *Interp, s *Session, t *Token) Code {
	hz := t.Args[0]
	if !finite(hz) || hz <= 0 {
		return ErrFrequency
	}
	in.eng.SetCutoff(s.voice, hz)
	return ErrNone
}

func opResonance(in *Interp, s *Session, t *Token) Code {
	q := t.Args[0]
	if !finite(q) || q <= 0 {
		return ErrRange
	}
	in.eng.SetResonance(s.voice, q)
	return ErrNone
}

func opQuantize(in *Interp, s *Session, t *Token) Code {
	bits, ok := intArg(t.Args[0])
	if !ok || bits < 0 || bits > 24 {
		return ErrRange
	}
	in.eng.SetQuantize(s.voice, bits)
	return ErrNone
}

func opHold(in *Interp, s *Session, t *Token) Code {
	n, ok := intArg(t.Args[0])
	if !ok || n < 0 {
		return ErrRange
	}
	in.eng.SetHold(s.voice, n)
	return ErrNone
}

// toggleOp builds a flag opcode: bare flips it, 0 or 1 sets it.
func toggleOp(get func(engine.State) bool, set func(*engine.Engine, int, bool), def func(*Interp, *Session) Code) opcode {
	if def == nil {
		def = func(in *Interp, s *Session) Code {
			set(in.eng, s.voice, false)
			return ErrNone
		}
	}
	return opcode{0, 1,
		func(in *Interp, s *Session, t *Token) Code {
			on := !get(in.eng.State(s.voice))
			if t.N == 1 {
				switch t.Args[0] {
				case 0:
					on = false
				case 1:
					on = true
				default:
					return ErrRange
				}
			}
			set(in.eng, s.voice, on)
			return ErrNone
		},
		def,
	}
}

func opLoopWindow(in *Interp, s *Session, t *Token) Code {
	lo, ok1 := intArg(t.Args[0])
	hi, ok2 := intArg(t.Args[1])
	if !ok1 || !ok2 {
		return ErrRange
	}
	if err := in.eng.SetLoopWindow(s.voice, lo, hi); err != nil {
		return s.fail(err, ErrRange)
	}
	return ErrNone
}

func opGlide(in *Interp, s *Session, t *Token) Code {
	sec := t.Args[0]
	if !finite(sec) || sec < 0 {
		return ErrRange
	}
	in.eng.SetGlide(s.voice, sec)
	return ErrNone
}

func opCopy(in *Interp, s *Session, t *Token) Code {
	to, ok := intArg(t.Args[0])
	if !ok || !engine.Valid(to) {
		return ErrVoice
	}
	in.eng.Copy(s.voice, to)
	return ErrNone
}

func opReset(in *Interp, s *Session, t *Token) Code {
	if t.N == 0 {
		in.eng.ResetAll()
		return ErrNone
	}
	v, ok := intArg(t.Args[0])
	if !ok || !engine.Valid(v) {
		return ErrVoice
	}
	in.eng.ResetVoice(v)
	return ErrNone
}

func opVolume(in *Interp, s *Session, t *Token) Code {
	level := t.Args[0]
	if !(level >= 0 && level <= engine.MaxVolume) {
		return ErrRange
	}
	in.eng.SetVolume(level)
	return ErrNone
}

func opTempo(in *Interp, s *Session, t *Token) Code {
	bpm := t.Args[0]
	if !(bpm > 0 && bpm <= 1000) {
		return ErrRange
	}
	in.bpm = bpm
	return ErrNone
}

var errNoEnv = errors.New("no file environment")
