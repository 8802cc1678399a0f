package engine

import "github.com/cbegin/opsynth-go/internal/dsp"

// State is a copy of one voice's parameters for queries and tests.
type State struct {
	Voice     int
	Wave      int
	WaveName  string
	TableSize int
	Freq      float64
	Amp       float64
	Pan       float64
	PanLeft   float64
	PanRight  float64
	Phase     float64
	Increment float64
	Gain      float64

	Loop      bool
	LoopStart int
	LoopEnd   int
	Reverse   bool
	Muted     bool
	Smooth    bool
	Finished  bool

	PDMode   int
	PDAmount float64
	Mods     [modTargets]Route

	Filter    dsp.FilterMode
	Cutoff    float64
	Resonance float64

	Envelope bool
	Stage    dsp.Stage
	Velocity float64
	Attack   int64
	Decay    int64
	Sustain  float64
	Release  int64

	Bits  int
	Hold  int
	Glide int64
}

// Sounding reports whether the voice would contribute to the next frame.
func (s State) Sounding() bool {
	return !s.Finished && s.Amp != 0 && (!s.Envelope || s.Stage != dsp.Idle)
}

func (e *Engine) State(v int) State {
	vc := &e.voices[v]
	s := State{
		Voice:     v,
		Wave:      vc.wave,
		TableSize: vc.size,
		Freq:      vc.freq,
		Amp:       vc.amp,
		Pan:       vc.pan,
		PanLeft:   vc.panL,
		PanRight:  vc.panR,
		Phase:     vc.phase,
		Increment: vc.inc,
		Gain:      vc.gain,
		Loop:      vc.loop,
		LoopStart: vc.loopLo,
		LoopEnd:   vc.loopHi,
		Reverse:   vc.reverse,
		Muted:     vc.muted,
		Smooth:    vc.smooth,
		Finished:  vc.finished,
		PDMode:    vc.pdMode,
		PDAmount:  vc.pdAmount,
		Mods:      vc.mods,
		Filter:    vc.filterMode,
		Cutoff:    vc.cutoff,
		Resonance: vc.resonance,
		Envelope:  vc.envOn,
		Stage:     vc.env.StageAt(e.now),
		Velocity:  vc.velocity,
		Bits:      vc.bits,
		Hold:      vc.hold,
		Glide:     vc.glide,
	}
	if vc.table != nil {
		s.WaveName = vc.table.Name
	}
	s.Attack, s.Decay, s.Release, s.Sustain = vc.env.Params()
	return s
}
