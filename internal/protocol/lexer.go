package protocol

import "strconv"

// MaxArgs is the most numeric arguments a single opcode accepts.
const MaxArgs = 4

// Kind tags a token. KindOp is a letter or symbol opcode with its
// arguments, KindSys a ':' prefixed one. Scratch and data captures carry
// their contents in Body.
type Kind uint8

const (
	KindEnd Kind = iota
	KindOp
	KindSys
	KindPush
	KindPop
	KindScratch
	KindData
	KindDefault
	KindQuery
	KindVerbose
	KindQueryAll
)

// Token is one lexed element of a line. Start and End delimit its raw text,
// which is what gets copied into a deferred batch.
type Token struct {
	Kind  Kind
	Op    byte
	Args  [MaxArgs]float64
	N     int
	Start int
	End   int
	Body  string // capture contents for KindScratch and KindData
	Open  bool   // capture ran into the end of the line
}

// Name is the opcode as written, for error messages.
func (t *Token) Name() string {
	switch t.Kind {
	case KindOp:
		return string(t.Op)
	case KindSys:
		return ":" + string(t.Op)
	case KindEnd:
		return ""
	}
	return [...]string{KindPush: "[", KindPop: "]", KindScratch: "{", KindData: "(",
		KindDefault: "/", KindQuery: "?", KindVerbose: "\\", KindQueryAll: "??"}[t.Kind]
}

// Lexer splits a line into tokens on demand, so everything before a
// malformed token has already been executed when the error surfaces.
type Lexer struct {
	line string
	pos  int
}

func NewLexer(line string) Lexer { return Lexer{line: line} }

// Next returns the next token. On error the token's Start locates it.
func (lx *Lexer) Next() (Token, Code) {
	s := lx.line
	for lx.pos < len(s) && isSeparator(s[lx.pos]) {
		lx.pos++
	}
	t := Token{Start: lx.pos, End: lx.pos}
	if lx.pos >= len(s) {
		return t, ErrNone
	}
	ch := s[lx.pos]
	lx.pos++
	switch {
	case ch == '#':
		lx.pos = len(s)
		return t, ErrNone
	case ch == '[':
		t.Kind = KindPush
	case ch == ']':
		t.Kind = KindPop
	case ch == '{':
		t.Kind = KindScratch
		lx.capture(&t, '}')
	case ch == '(':
		t.Kind = KindData
		lx.capture(&t, ')')
	case ch == '/':
		t.Kind = KindDefault
		if lx.pos < len(s) && startsNumber(s[lx.pos]) {
			t.End = lx.pos
			return t, ErrArgs
		}
	case ch == '\\':
		t.Kind = KindVerbose
	case ch == '?':
		t.Kind = KindQuery
		if lx.pos < len(s) && s[lx.pos] == '?' {
			t.Kind = KindQueryAll
			lx.pos++
		}
	case ch == ':':
		if lx.pos >= len(s) || !isLetter(s[lx.pos]) {
			t.End = lx.pos
			return t, ErrSyntax
		}
		t.Kind = KindSys
		t.Op = s[lx.pos]
		lx.pos++
		if code := lx.args(&t); code != ErrNone {
			return t, code
		}
	case isLetter(ch) || ch == '>' || ch == '+' || ch == '~':
		t.Kind = KindOp
		t.Op = ch
		if code := lx.args(&t); code != ErrNone {
			return t, code
		}
	case ch == ',' || startsNumber(ch):
		t.End = lx.pos
		return t, ErrSyntax
	default:
		t.End = lx.pos
		return t, ErrUnknown
	}
	t.End = lx.pos
	return t, ErrNone
}

func (lx *Lexer) capture(t *Token, closer byte) {
	s := lx.line
	start := lx.pos
	for lx.pos < len(s) && s[lx.pos] != closer {
		lx.pos++
	}
	t.Body = s[start:lx.pos]
	if lx.pos < len(s) {
		lx.pos++
	} else {
		t.Open = true
	}
}

// args reads up to MaxArgs comma separated numbers directly after an opcode.
func (lx *Lexer) args(t *Token) Code {
	s := lx.line
	if lx.pos >= len(s) || !startsNumber(s[lx.pos]) {
		return ErrNone
	}
	for {
		v, next, ok := scanNumber(s, lx.pos)
		lx.pos = next
		if !ok {
			return ErrSyntax
		}
		if t.N == MaxArgs {
			return ErrArgs
		}
		t.Args[t.N] = v
		t.N++
		if lx.pos >= len(s) || s[lx.pos] != ',' {
			return ErrNone
		}
		lx.pos++
	}
}

// scanNumber parses a decimal at s[i:]: optional '-', digits with an
// optional fraction and an optional lowercase exponent. It reports false
// when no number is there or the text after it cannot end a number.
func scanNumber(s string, i int) (float64, int, bool) {
	j := i
	if j < len(s) && s[j] == '-' {
		j++
	}
	digits := 0
	for j < len(s) && isDigit(s[j]) {
		j++
		digits++
	}
	if j < len(s) && s[j] == '.' {
		j++
		for j < len(s) && isDigit(s[j]) {
			j++
			digits++
		}
	}
	if digits == 0 {
		return 0, j, false
	}
	if j < len(s) && s[j] == 'e' {
		k := j + 1
		if k < len(s) && s[k] == '-' {
			k++
		}
		if k < len(s) && isDigit(s[k]) {
			for k < len(s) && isDigit(s[k]) {
				k++
			}
			j = k
		}
	}
	if j < len(s) && (s[j] == '.' || s[j] == '-') {
		return 0, j, false
	}
	v, err := strconv.ParseFloat(s[i:j], 64)
	if err != nil {
		return 0, j, false
	}
	return v, j, true
}

func isSeparator(c byte) bool {
	return c == ' ' || c == '\t' || c == ';' || c == '\r' || c == '\n'
}

func isDigit(c byte) bool  { return c >= '0' && c <= '9' }
func isLetter(c byte) bool { return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' }

func startsNumber(c byte) bool { return isDigit(c) || c == '-' || c == '.' }
