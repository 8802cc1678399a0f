package protocol

import (
	"fmt"

	"github.com/cbegin/opsynth-go/internal/engine"
)

func flag(b bool) int {
	if b {
		return 1
	}
	return 0
}

// show prints one voice, on one line or in full.
func (in *Interp) show(s *Session, v int, verbose bool) {
	w := in.writer(s)
	st := in.eng.State(v)
	fmt.Fprintf(w, "v%d w%d %s f%.3f a%.3f p%.2f B%d b%d m%d s%d c%d,%.3f J%d E%d\n",
		st.Voice, st.Wave, st.WaveName, st.Freq, st.Amp, st.Pan,
		flag(st.Loop), flag(st.Reverse), flag(st.Muted), flag(st.Smooth),
		st.PDMode, st.PDAmount, int(st.Filter), flag(st.Envelope))
	if !verbose {
		return
	}
	fmt.Fprintf(w, "  table %d samples, loop %d..%d, phase %.3f, increment %.6f, finished %v\n",
		st.TableSize, st.LoopStart, st.LoopEnd, st.Phase, st.Increment, st.Finished)
	fmt.Fprintf(w, "  pan gains L%.3f R%.3f, gain %.4f, glide %d samples\n", st.PanLeft, st.PanRight, st.Gain, st.Glide)
	fmt.Fprintf(w, "  filter %s cutoff %.1f q %.3f\n", st.Filter, st.Cutoff, st.Resonance)
	fmt.Fprintf(w, "  envelope %s a%d d%d s%.3f r%d samples, velocity %.3f\n",
		st.Stage, st.Attack, st.Decay, st.Sustain, st.Release, st.Velocity)
	fmt.Fprintf(w, "  quantize %d bits, hold %d\n", st.Bits, st.Hold)
	for target, r := range st.Mods {
		if r.Src == engine.NoSource {
			continue
		}
		fmt.Fprintf(w, "  mod %s from v%d depth %.4f\n", engine.Target(target), r.Src, r.Depth)
	}
}

// showAll prints every sounding voice.
func (in *Interp) showAll(s *Session) {
	n := 0
	for v := 0; v < engine.VoiceMax; v++ {
		if in.eng.State(v).Sounding() {
			in.show(s, v, false)
			n++
		}
	}
	if n == 0 {
		fmt.Fprintln(in.writer(s), "no voices sounding")
	}
}

func (in *Interp) stats(s *Session) {
	st := in.eng.Stats()
	fmt.Fprintf(in.writer(s), "now %d frames %d callbacks %d last %s max %s active %d pending %d dropped %d fired %d bpm %.1f\n",
		in.eng.Now(), st.Frames, st.Callbacks, st.LastRender, st.MaxRender, st.Active, st.Pending, st.Dropped, st.QueueFiring, in.bpm)
}
