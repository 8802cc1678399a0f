package protocol

import (
	"fmt"

	"github.com/cbegin/opsynth-go/internal/effects"
	"github.com/cbegin/opsynth-go/internal/wavetable"
)

// system dispatches ':' opcodes.
func (in *Interp) system(s *Session, t *Token) Code {
	switch t.Op {
	case 't', 'd':
		cur := in.trace
		if t.Op == 'd' {
			cur = in.debug
		}
		on := !cur
		if t.N > 1 {
			return ErrArgs
		}
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
		if t.Op == 't' {
			in.trace = on
		} else {
			in.debug = on
		}
	case 's':
		if t.N != 0 {
			return ErrArgs
		}
		in.stats(s)
	case 'l':
		if t.N != 1 {
			return ErrArgs
		}
		n, ok := intArg(t.Args[0])
		if !ok || n < 0 {
			return ErrRange
		}
		if in.env == nil {
			return s.fail(errNoEnv, ErrResource)
		}
		if s.depth+1 > MaxDepth {
			return ErrDepth
		}
		if err := in.env.LoadPatch(s, n, s.depth+1); err != nil {
			return s.fail(err, ErrResource)
		}
	case 'w':
		if t.N != 2 {
			return ErrArgs
		}
		which, ok1 := intArg(t.Args[0])
		slot, ok2 := intArg(t.Args[1])
		if !ok1 || which < 0 {
			return ErrRange
		}
		if !ok2 || slot < 0 || slot >= wavetable.Slots {
			return ErrWave
		}
		if in.env == nil {
			return s.fail(errNoEnv, ErrResource)
		}
		if err := in.env.LoadWave(s, which, slot); err != nil {
			return s.fail(err, ErrResource)
		}
	case 'W':
		if t.N != 1 {
			return ErrArgs
		}
		slot, ok := intArg(t.Args[0])
		if !ok || slot < 0 || slot >= wavetable.Slots {
			return ErrWave
		}
		if len(s.data) == 0 {
			return ErrCapture
		}
		data := wavetable.Normalize(append([]float64(nil), s.data...))
		table := wavetable.NewCycle(fmt.Sprintf("data-%d", slot), data, in.eng.SampleRate())
		if err := in.eng.Store().Install(slot, table); err != nil {
			return s.fail(err, ErrResource)
		}
	case 'x':
		if t.N != 0 {
			return ErrArgs
		}
		if len(s.scratch) == 0 {
			return ErrCapture
		}
		if err := in.ExecAt(s, string(s.scratch), s.depth+1); err != nil {
			return s.fail(err, ErrResource)
		}
	case 'e':
		if t.N != 2 {
			return ErrArgs
		}
		band, ok := intArg(t.Args[0])
		if !ok || band < 0 || band >= effects.Bands {
			return ErrRange
		}
		if g := t.Args[1]; !(g >= 0 && g <= effects.MaxGain) {
			return ErrRange
		}
		in.eng.EQ().SetGain(band, t.Args[1])
	default:
		return ErrUnknown
	}
	return ErrNone
}
