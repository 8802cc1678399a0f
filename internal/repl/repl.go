// Package repl reads protocol lines interactively. On a terminal it uses
// x/term for line editing and history; otherwise it reads plain lines.
package repl

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompt is shown before each line on a terminal.
const Prompt = "> "

// LineReader yields one line per call and io.EOF at the end.
type LineReader interface {
	ReadLine() (string, error)
}

// ExecFunc runs a line and returns what it printed.
type ExecFunc func(line string) (string, error)

// Loop feeds lines from r to exec until EOF or a quit command.
func Loop(r LineReader, w io.Writer, exec ExecFunc) error {
	for {
		line, err := r.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		switch strings.TrimSpace(line) {
		case "":
			continue
		case "quit", "exit":
			return nil
		}
		out, err := exec(line)
		io.WriteString(w, out)
		if err != nil {
			fmt.Fprintf(w, "error: %v\n", err)
		}
	}
}

// Run drives Loop from in and out. A terminal is switched to raw mode for
// the duration and restored on return.
func Run(in *os.File, out io.Writer, exec ExecFunc) error {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return Loop(NewScanner(in), out, exec)
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("raw mode: %w", err)
	}
	defer term.Restore(fd, state)
	t := term.NewTerminal(struct {
		io.Reader
		io.Writer
	}{in, out}, Prompt)
	return Loop(t, t, exec)
}

type scanner struct{ sc *bufio.Scanner }

// NewScanner reads newline terminated lines without echo or editing.
func NewScanner(r io.Reader) LineReader {
	return scanner{bufio.NewScanner(r)}
}

func (s scanner) ReadLine() (string, error) {
	if s.sc.Scan() {
		return s.sc.Text(), nil
	}
	if err := s.sc.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
