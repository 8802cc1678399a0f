package midiin

import (
	"testing"

	"gitlab.com/gomidi/midi/v2"
)

func TestTranslatorLines(t *testing.T) {
	tests := []struct {
		name string
		msg  midi.Message
		want string
	}{
		{"note on", midi.NoteOn(2, 60, 127), "v2 n60 l1.000"},
		{"note off", midi.NoteOff(2, 60), "v2 l0"},
		{"zero velocity note on", midi.NoteOn(3, 64, 0), "v3 l0"},
		{"volume", midi.ControlChange(0, CCVolume, 0), "v0 a0.000"},
		{"pan left", midi.ControlChange(1, CCPan, 0), "v1 p-1.000"},
		{"pan center", midi.ControlChange(1, CCPan, 64), "v1 p0.000"},
		{"pan right", midi.ControlChange(1, CCPan, 127), "v1 p1.000"},
		{"mod wheel", midi.ControlChange(5, CCModWheel, 127), "v5 c1,0.999"},
	}
	tr := NewTranslator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tr.Line(tt.msg)
			if !ok {
				t.Fatalf("no line for %v", tt.msg)
			}
			if got != tt.want {
				t.Fatalf("line = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTranslatorIgnoresUnmapped(t *testing.T) {
	tr := NewTranslator()
	for _, msg := range []midi.Message{
		midi.ControlChange(0, 74, 10),
		midi.ProgramChange(0, 3),
		midi.Pitchbend(0, 100),
	} {
		if line, ok := tr.Line(msg); ok {
			t.Fatalf("%v translated to %q", msg, line)
		}
	}
}

func TestTranslatorLinesDoNotAlias(t *testing.T) {
	tr := NewTranslator()
	first, _ := tr.Line(midi.NoteOn(0, 60, 127))
	tr.Line(midi.NoteOff(9, 61))
	if first != "v0 n60 l1.000" {
		t.Fatalf("earlier line changed to %q", first)
	}
}
