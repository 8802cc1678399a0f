package dsp

// Stage is the envelope segment at a point in time.
type Stage int

const (
	Idle Stage = iota
	Attack
	Decay
	Sustain
	Release
)

func (s Stage) String() string {
	return [...]string{"idle", "attack", "decay", "sustain", "release"}[s]
}

// Envelope is a linear ADSR evaluated against the global sample clock.
// Durations are stored in samples; the sustain level is in [0, 1].
type Envelope struct {
	attack   int64
	decay    int64
	release  int64
	sustain  float64
	start    int64
	released int64
	active   bool
	velocity float64
}

// Set converts second durations into sample counts at sampleRate.
func (e *Envelope) Set(attack, decay, sustain, release, sampleRate float64) {
	e.attack = secondsToSamples(attack, sampleRate)
	e.decay = secondsToSamples(decay, sampleRate)
	e.release = secondsToSamples(release, sampleRate)
	e.sustain = clampFloat(sustain, 0, 1)
}

// Params returns attack, decay, release in samples and the sustain level.
func (e *Envelope) Params() (attack, decay, release int64, sustain float64) {
	return e.attack, e.decay, e.release, e.sustain
}

func (e *Envelope) Trigger(now int64, velocity float64) {
	e.start = now
	e.released = -1
	e.active = true
	e.velocity = velocity
}

// Release records the release point. It does nothing on an idle envelope.
func (e *Envelope) Release(now int64) {
	if !e.active || e.released >= 0 {
		return
	}
	e.released = now
}

func (e *Envelope) Active() bool      { return e.active }
func (e *Envelope) Velocity() float64 { return e.velocity }

// ValueAt returns the envelope level at sample now and deactivates the
// envelope once the release segment has run out.
func (e *Envelope) ValueAt(now int64) float64 {
	if !e.active {
		return 0
	}
	if e.released < 0 {
		return e.held(now)
	}
	rel := now - e.released
	if rel >= e.release {
		e.active = false
		return 0
	}
	if rel < 0 {
		rel = 0
	}
	from := e.held(e.released)
	return from * (1 - float64(rel)/float64(e.release))
}

// StageAt reports the segment ValueAt would evaluate, without side effects.
func (e *Envelope) StageAt(now int64) Stage {
	switch {
	case !e.active:
		return Idle
	case e.released >= 0:
		if now-e.released >= e.release {
			return Idle
		}
		return Release
	case now-e.start < e.attack:
		return Attack
	case now-e.start < e.attack+e.decay:
		return Decay
	default:
		return Sustain
	}
}

func (e *Envelope) held(now int64) float64 {
	el := now - e.start
	if el < 0 {
		return 0
	}
	if el < e.attack {
		return float64(el) / float64(e.attack)
	}
	el -= e.attack
	if el < e.decay {
		return 1 + (e.sustain-1)*float64(el)/float64(e.decay)
	}
	return e.sustain
}

func secondsToSamples(sec, sampleRate float64) int64 {
	if sec <= 0 || sampleRate <= 0 {
		return 0
	}
	return int64(sec*sampleRate + 0.5)
}
