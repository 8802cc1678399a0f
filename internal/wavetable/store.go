package wavetable

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
)

// Slots is the number of numbered wavetable slots.
const Slots = 64

// retireDepth is how many replaced tables are kept alive after an Install.
const retireDepth = 4

// AnchorNote is the MIDI note sampled tables are assumed to be recorded at.
const AnchorNote = 60

var (
	ErrSlot  = errors.New("wavetable slot out of range")
	ErrEmpty = errors.New("wavetable has no samples")
)

// Table is an immutable sample buffer. Nothing mutates a Table once it has
// been installed in a Store.
type Table struct {
	Name      string
	Data      []float64
	Rate      float64 // native sample rate
	LoopStart int
	LoopEnd   int
	OneShot   bool
	Note      float64 // anchor MIDI note
	Freq      float64 // anchor frequency: plays at native rate
	Noise     bool    // voices take the shared per-frame noise value instead
}

func (t *Table) Len() int { return len(t.Data) }

// IncrementScale returns the phase increment per Hz at the given engine rate.
func (t *Table) IncrementScale(engineRate float64) float64 {
	if t.Freq <= 0 || engineRate <= 0 {
		return 0
	}
	return t.Rate / (t.Freq * engineRate)
}

// NewCycle wraps one waveform cycle recorded at rate. The anchor frequency is
// the pitch heard when the cycle is played at its native rate.
func NewCycle(name string, data []float64, rate float64) *Table {
	n := len(data)
	t := &Table{
		Name:    name,
		Data:    data,
		Rate:    rate,
		LoopEnd: n,
	}
	if n > 0 {
		t.Freq = rate / float64(n)
		t.Note = 69 + 12*math.Log2(t.Freq/440)
	}
	return t
}

// NewSample wraps a one-shot recording anchored at middle C.
func NewSample(name string, data []float64, rate float64) *Table {
	return &Table{
		Name:    name,
		Data:    data,
		Rate:    rate,
		LoopEnd: len(data),
		OneShot: true,
		Note:    AnchorNote,
		Freq:    noteToFreq(AnchorNote),
	}
}

// Store owns the numbered table slots. Get and Names may be called from any
// goroutine. Install and Retired belong to the goroutine that renders, the
// same one that runs protocol lines, so the retire ring needs no lock.
type Store struct {
	sampleRate int
	slots      [Slots]atomic.Pointer[Table]

	retired    [retireDepth]*Table
	retiredPos int
}

func NewStore(sampleRate int) *Store {
	return &Store{sampleRate: sampleRate}
}

func (s *Store) SampleRate() int { return s.sampleRate }

// Get returns the table in slot id, or nil when the slot is empty or invalid.
func (s *Store) Get(id int) *Table {
	if id < 0 || id >= Slots {
		return nil
	}
	return s.slots[id].Load()
}

// Install replaces the table in slot id. The previous occupant is parked in
// the retire ring so a render already holding it keeps a valid buffer; it is
// only dropped after retireDepth further replacements.
func (s *Store) Install(id int, t *Table) error {
	if id < 0 || id >= Slots {
		return fmt.Errorf("install slot %d: %w", id, ErrSlot)
	}
	if t == nil || len(t.Data) == 0 {
		return fmt.Errorf("install slot %d: %w", id, ErrEmpty)
	}
	prev := s.slots[id].Swap(t)
	if prev != nil {
		s.retired[s.retiredPos] = prev
		s.retiredPos = (s.retiredPos + 1) % retireDepth
	}
	return nil
}

// Retired reports how many replaced tables are currently held back.
func (s *Store) Retired() int {
	n := 0
	for _, t := range s.retired {
		if t != nil {
			n++
		}
	}
	return n
}

// Names lists the occupied slots.
func (s *Store) Names() map[int]string {
	out := make(map[int]string)
	for i := range s.slots {
		if t := s.slots[i].Load(); t != nil {
			out[i] = t.Name
		}
	}
	return out
}

// Normalize scales data in place so the peak magnitude is 1. Only a gain is
// applied so zero crossings stay where they were.
func Normalize(data []float64) []float64 {
	peak := 0.0
	for _, v := range data {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	if peak == 0 || peak == 1 {
		return data
	}
	for i := range data {
		data[i] /= peak
	}
	return data
}

func noteToFreq(note float64) float64 {
	return 440 * math.Pow(2, (note-69)/12)
}
