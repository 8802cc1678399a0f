package protocol

import (
	"io"

	"github.com/cbegin/opsynth-go/internal/sched"
)

const (
	// StackDepth is the size of the voice index stack.
	StackDepth = 8
	// MaxDepth bounds nested execution through patches and :x.
	MaxDepth = 8

	scratchCap = 256
	dataCap    = 1024
)

// Session is the interpreter state of one control stream: a REPL, a
// network peer, a MIDI port or the scheduler's replay path.
type Session struct {
	out   io.Writer
	voice int
	stack [StackDepth]int
	sp    int
	last  byte
	depth int
	at    Token

	scratch []byte
	data    []float64

	offset     float64
	batching   bool
	batchWhen  int64
	batchVoice int
	batch      []byte

	cause error
}

// NewSession returns a session writing query and trace output to out, which
// may be nil.
func NewSession(out io.Writer) *Session {
	return &Session{
		out:     out,
		scratch: make([]byte, 0, scratchCap),
		data:    make([]float64, 0, dataCap),
		batch:   make([]byte, 0, sched.TextMax+1),
	}
}

func (s *Session) SetOutput(w io.Writer) { s.out = w }
func (s *Session) Output() io.Writer     { return s.out }

// At reports the 1-based column and text of the opcode being applied.
func (s *Session) At() (col int, op string) { return s.at.Start + 1, s.at.Name() }

// Voice is the currently selected voice.
func (s *Session) Voice() int { return s.voice }

// Scratch is the text last captured between braces.
func (s *Session) Scratch() string { return string(s.scratch) }

// Data is the number list last captured between parentheses.
func (s *Session) Data() []float64 { return s.data }

// appendBatch adds raw token text to the open batch. Text past TextMax is cut
// one byte over the limit so the scheduler rejects the whole batch.
func (s *Session) appendBatch(raw string) {
	room := cap(s.batch) - len(s.batch)
	if len(s.batch) > 0 && room > 0 {
		s.batch = append(s.batch, ' ')
		room--
	}
	if len(raw) > room {
		raw = raw[:room]
	}
	s.batch = append(s.batch, raw...)
}
