// Package protocol interprets the single character opcode control language.
package protocol

import (
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/cbegin/opsynth-go/internal/engine"
)

// DefaultBPM makes one '+' step last a second.
const DefaultBPM = 60.0

// Env runs the opcodes that touch files. LoadPatch executes patch n at the
// given nesting depth on s; LoadWave installs wave file which into slot.
type Env interface {
	LoadPatch(s *Session, n, depth int) error
	LoadWave(s *Session, which, slot int) error
}

// Interp applies protocol lines to an engine. It must run on the goroutine
// that owns the engine.
type Interp struct {
	eng    *engine.Engine
	env    Env
	log    *slog.Logger
	bpm    float64
	trace  bool
	debug  bool
	replay *Session
}

// New binds an interpreter to eng and registers it as the engine's replay
// target for deferred commands. env may be nil, in which case file opcodes
// fail with ErrResource.
func New(eng *engine.Engine, env Env, logger *slog.Logger) *Interp {
	if logger == nil {
		logger = slog.Default()
	}
	in := &Interp{
		eng:    eng,
		env:    env,
		log:    logger,
		bpm:    DefaultBPM,
		replay: NewSession(nil),
	}
	eng.SetReplay(in.Replay)
	return in
}

func (in *Interp) Engine() *engine.Engine { return in.eng }
func (in *Interp) SetEnv(env Env)         { in.env = env }
func (in *Interp) BPM() float64           { return in.bpm }
func (in *Interp) Trace() bool            { return in.trace }
func (in *Interp) Debug() bool            { return in.debug }
func (in *Interp) SetTrace(on bool)       { in.trace = on }
func (in *Interp) SetDebug(on bool)       { in.debug = on }

// Exec runs one line. The first failing opcode stops the line; everything
// before it stays applied, and any open deferred batch is still scheduled.
func (in *Interp) Exec(s *Session, line string) error {
	return in.ExecAt(s, line, 0)
}

// ExecAt runs line at a nesting depth, as patches and :x do.
func (in *Interp) ExecAt(s *Session, line string, depth int) error {
	if depth > MaxDepth {
		return &Error{Code: ErrDepth, Col: 1}
	}
	saved := s.depth
	s.depth = depth
	code, tok := in.run(s, line)
	s.depth = saved
	if code == ErrNone {
		return nil
	}
	err := &Error{Code: code, Col: tok.Start + 1, Op: tok.Name(), Err: s.cause}
	s.cause = nil
	return err
}

// Replay runs deferred text for voice. The engine calls it from inside
// Render when an item falls due.
func (in *Interp) Replay(voice int, text string) {
	s := in.replay
	s.voice = voice
	s.sp = 0
	code, tok := in.run(s, text)
	if code != ErrNone {
		in.log.Warn("deferred command failed", "voice", voice, "col", tok.Start+1, "op", tok.Name(), "err", code)
		s.cause = nil
	}
}

func (in *Interp) run(s *Session, line string) (Code, Token) {
	s.offset = 0
	s.batching = false
	lx := NewLexer(line)
	for {
		t, code := lx.Next()
		if code == ErrNone && t.Kind == KindEnd {
			break
		}
		if code == ErrNone {
			switch {
			case t.Kind == KindOp && (t.Op == '+' || t.Op == '~'):
				code = in.delay(s, &t)
			case s.batching:
				s.appendBatch(line[t.Start:t.End])
			default:
				s.at = t
				code = in.apply(s, &t, line)
			}
		}
		if code != ErrNone {
			in.flush(s)
			return code, t
		}
	}
	in.flush(s)
	return ErrNone, Token{}
}

func (in *Interp) apply(s *Session, t *Token, line string) Code {
	if in.trace {
		in.traceToken(s, line[t.Start:t.End])
	}
	switch t.Kind {
	case KindOp:
		op := lookup(t.Op)
		if op == nil {
			return ErrUnknown
		}
		if t.N < op.min || t.N > op.max {
			return ErrArgs
		}
		s.last = t.Op
		return op.run(in, s, t)
	case KindSys:
		return in.system(s, t)
	case KindPush:
		if s.sp == StackDepth {
			return ErrStack
		}
		s.stack[s.sp] = s.voice
		s.sp++
	case KindPop:
		if s.sp == 0 {
			return ErrStack
		}
		s.sp--
		s.voice = s.stack[s.sp]
	case KindScratch:
		s.scratch = append(s.scratch[:0], t.Body...)
	case KindData:
		return in.captureData(s, t.Body)
	case KindDefault:
		op := lookup(s.last)
		if op == nil || op.def == nil {
			return ErrArgs
		}
		return op.def(in, s)
	case KindQuery:
		in.show(s, s.voice, false)
	case KindVerbose:
		in.show(s, s.voice, true)
	case KindQueryAll:
		in.showAll(s)
	}
	return ErrNone
}

// delay handles '+' (tempo steps) and '~' (seconds). Zero closes the open
// batch and returns to immediate mode; a positive value pushes the running
// offset further out and opens a new batch when the target sample moves.
func (in *Interp) delay(s *Session, t *Token) Code {
	if t.N != 1 {
		return ErrArgs
	}
	d := t.Args[0]
	if d < 0 || math.IsNaN(d) || math.IsInf(d, 0) {
		return ErrRange
	}
	if d == 0 {
		in.flush(s)
		s.offset = 0
		return ErrNone
	}
	if t.Op == '+' {
		d *= 60 / in.bpm
	}
	s.offset += d
	when := in.eng.Now() + max(1, int64(math.Round(s.offset*in.eng.SampleRate())))
	if s.batching && when == s.batchWhen {
		return ErrNone
	}
	in.flush(s)
	s.batching = true
	s.batchWhen = when
	s.batchVoice = s.voice
	s.batch = s.batch[:0]
	return ErrNone
}

func (in *Interp) flush(s *Session) {
	if !s.batching {
		return
	}
	s.batching = false
	if len(s.batch) == 0 {
		return
	}
	if err := in.eng.Schedule(s.batchWhen, s.batchVoice, s.batch); err != nil {
		in.log.Warn("deferred command dropped", "when", s.batchWhen, "voice", s.batchVoice, "err", err)
		return
	}
	if in.debug {
		in.log.Debug("scheduled", "when", s.batchWhen, "voice", s.batchVoice, "text", string(s.batch))
	}
}

func (in *Interp) captureData(s *Session, body string) Code {
	s.data = s.data[:0]
	i := 0
	for i < len(body) {
		c := body[i]
		if c == ',' || isSeparator(c) {
			i++
			continue
		}
		v, next, ok := scanNumber(body, i)
		if !ok {
			return ErrSyntax
		}
		s.data = append(s.data, v)
		i = next
	}
	return ErrNone
}

func (in *Interp) traceToken(s *Session, raw string) {
	if s.out != nil {
		fmt.Fprintf(s.out, "trace v%d %s\n", s.voice, raw)
		return
	}
	in.log.Info("trace", "voice", s.voice, "op", raw)
}

// fail records the underlying error of a failing opcode for the *Error
// returned by Exec, and picks its code: protocol errors keep their own.
func (s *Session) fail(err error, fallback Code) Code {
	s.cause = err
	return codeOf(err, fallback)
}

func (in *Interp) writer(s *Session) io.Writer {
	if s.out == nil {
		return io.Discard
	}
	return s.out
}
