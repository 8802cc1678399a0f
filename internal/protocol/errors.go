package protocol

import (
	"errors"
	"fmt"
)

// Code classifies a line error.
type Code int

const (
	ErrNone Code = iota
	ErrSyntax
	ErrArgs
	ErrVoice
	ErrFrequency
	ErrAmplitude
	ErrPan
	ErrWave
	ErrRange
	ErrUnknown
	ErrStack
	ErrResource
	ErrCapture
	ErrDepth
)

var codeText = [...]string{
	ErrNone:      "ok",
	ErrSyntax:    "malformed number",
	ErrArgs:      "wrong number of arguments",
	ErrVoice:     "voice out of range",
	ErrFrequency: "frequency out of range",
	ErrAmplitude: "amplitude out of range",
	ErrPan:       "pan out of range",
	ErrWave:      "bad wavetable slot",
	ErrRange:     "argument out of range",
	ErrUnknown:   "unknown opcode",
	ErrStack:     "voice stack overflow or underflow",
	ErrResource:  "resource unavailable",
	ErrCapture:   "capture buffer empty",
	ErrDepth:     "nesting too deep",
}

func (c Code) String() string {
	if c < 0 || int(c) >= len(codeText) {
		return fmt.Sprintf("error %d", int(c))
	}
	return codeText[c]
}

func (c Code) Error() string { return c.String() }

// Error locates a Code in the line that produced it. Col is 1-based.
type Error struct {
	Code Code
	Col  int
	Op   string
	Err  error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("col %d", e.Col)
	if e.Op != "" {
		msg += fmt.Sprintf(" %q", e.Op)
	}
	msg += ": " + e.Code.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Code, e.Err}
	}
	return []error{e.Code}
}

// Locate wraps err as the failure of op at col. A nested *Error keeps its
// code; anything else gets fallback.
func Locate(err error, fallback Code, col int, op string) *Error {
	return &Error{Code: codeOf(err, fallback), Col: col, Op: op, Err: err}
}

func codeOf(err error, fallback Code) Code {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return fallback
}
