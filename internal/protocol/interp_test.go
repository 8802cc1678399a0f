package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cbegin/opsynth-go/internal/dsp"
	"github.com/cbegin/opsynth-go/internal/engine"
	"github.com/cbegin/opsynth-go/internal/wavetable"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const rate = 44100

type rig struct {
	eng  *engine.Engine
	in   *Interp
	sess *Session
	out  *bytes.Buffer
}

func newRig(t *testing.T) *rig {
	t.Helper()
	store := wavetable.NewStore(rate)
	store.LoadBuiltin()
	eng := engine.New(store)
	in := New(eng, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	out := &bytes.Buffer{}
	return &rig{eng: eng, in: in, sess: NewSession(out), out: out}
}

func (r *rig) exec(t *testing.T, line string) {
	t.Helper()
	if err := r.in.Exec(r.sess, line); err != nil {
		t.Fatalf("%q: %v", line, err)
	}
}

func (r *rig) render(frames int) {
	buf := make([]float32, 2*frames)
	r.eng.Render(buf, nil, frames, 2)
}

func TestSetFrequencyAndAmplitude(t *testing.T) {
	r := newRig(t)
	r.exec(t, "v0 f440 a0.5")
	st := r.eng.State(0)
	if st.Freq != 440 || st.Amp != 0.5 || st.Wave != wavetable.Sine {
		t.Fatalf("state %+v", st)
	}
	if want := 440.0 / rate * float64(st.TableSize); math.Abs(st.Increment-want) > 1e-9 {
		t.Fatalf("increment %f, want %f", st.Increment, want)
	}
}

func TestWaveAndHardLeftPan(t *testing.T) {
	r := newRig(t)
	r.exec(t, "v1 w2 p-1")
	st := r.eng.State(1)
	if st.Wave != 2 || st.PanLeft != 1 || st.PanRight != 0 {
		t.Fatalf("state %+v", st)
	}
	if r.sess.Voice() != 1 {
		t.Fatalf("session voice %d", r.sess.Voice())
	}
}

func TestFlatEnvelopeTriggerHasNoRamp(t *testing.T) {
	r := newRig(t)
	r.exec(t, "v0 a1 E0,0,1,0")
	r.exec(t, "l1")
	r.exec(t, "v0T")
	r.render(1)
	if g := r.eng.State(0).Gain; g != 1 {
		t.Fatalf("gain after first frame = %f, want 1", g)
	}
	r.render(500)
	if g := r.eng.State(0).Gain; g != 1 {
		t.Fatalf("sustained gain = %f", g)
	}
}

func TestDeferredBatchLandsOnItsSample(t *testing.T) {
	r := newRig(t)
	start := r.eng.Now()
	var gotText string
	var gotAt int64
	r.eng.SetReplay(func(v int, text string) {
		gotText = strings.Clone(text)
		gotAt = r.eng.Now()
		r.in.Replay(v, text)
	})
	r.exec(t, "+0.5 v0 f220 +0 f330")
	if st := r.eng.State(0); st.Freq != 330 {
		t.Fatalf("command after +0 should apply now, freq %f", st.Freq)
	}
	if s := r.eng.Stats(); s.Pending != 1 {
		t.Fatalf("pending = %d, want 1", s.Pending)
	}
	r.render(22049)
	if f := r.eng.State(0).Freq; f != 330 {
		t.Fatalf("deferred command fired early, freq %f", f)
	}
	r.render(1)
	if gotText != "v0 f220" || gotAt != start+22050 {
		t.Fatalf("replayed %q at %d, want %q at %d", gotText, gotAt, "v0 f220", start+22050)
	}
	if f := r.eng.State(0).Freq; f != 220 {
		t.Fatalf("freq after replay %f", f)
	}
}

func TestDelayOffsetsAccumulate(t *testing.T) {
	r := newRig(t)
	var at []int64
	r.eng.SetReplay(func(int, string) { at = append(at, r.eng.Now()) })
	r.exec(t, "+1 a0.1 +1 a0.2 ~0.25 a0.3")
	r.exec(t, "t120 +1 a0.4")
	r.render(3 * rate)
	want := []int64{rate / 2, rate, 2 * rate, 2*rate + rate/4}
	if len(at) != len(want) {
		t.Fatalf("fired at %v, want %v", at, want)
	}
	for i := range want {
		if at[i] != want[i] {
			t.Fatalf("fired at %v, want %v", at, want)
		}
	}
}

func TestReplayRunsOnRecordedVoice(t *testing.T) {
	r := newRig(t)
	r.exec(t, "v5 +0.1 f100 a0.5")
	r.exec(t, "v6 f200")
	r.render(rate / 5)
	if st := r.eng.State(5); st.Freq != 100 || st.Amp != 0.5 {
		t.Fatalf("voice 5 = %+v", st)
	}
	if st := r.eng.State(6); st.Freq != 200 {
		t.Fatalf("voice 6 freq %f", st.Freq)
	}
	if r.sess.Voice() != 6 {
		t.Fatalf("replay changed the control session voice to %d", r.sess.Voice())
	}
}

func TestDeferredPatternReschedulesItself(t *testing.T) {
	r := newRig(t)
	r.exec(t, "v2 a0.5 {T +0.25 :x}")
	r.exec(t, "+0.25 {T +0.25 :x} :x")
	r.render(rate + 10)
	if s := r.eng.Stats(); s.QueueFiring != 4 || s.Pending != 1 {
		t.Fatalf("stats %+v, want 4 fired and 1 pending", s)
	}
}

func TestErrorAbortsRestOfLine(t *testing.T) {
	r := newRig(t)
	err := r.in.Exec(r.sess, "v0 a0.3 p2 a0.9")
	if !errors.Is(err, ErrPan) {
		t.Fatalf("err = %v, want ErrPan", err)
	}
	var pe *Error
	if !errors.As(err, &pe) || pe.Col != 9 || pe.Op != "p" {
		t.Fatalf("error location %+v", pe)
	}
	if a := r.eng.State(0).Amp; a != 0.3 {
		t.Fatalf("amp = %f: earlier opcodes must stay applied and later ones skipped", a)
	}
}

func TestErrorCodes(t *testing.T) {
	tests := []struct {
		line string
		want Code
	}{
		{"v64", ErrVoice},
		{"v-1", ErrVoice},
		{"v1.5", ErrVoice},
		{"f30000", ErrFrequency},
		{"n200", ErrFrequency},
		{"a1.5", ErrAmplitude},
		{"p-1.01", ErrPan},
		{"w40", ErrWave},
		{"w64", ErrWave},
		{"E1,1,2,1", ErrRange},
		{"E1,1", ErrArgs},
		{"c8", ErrRange},
		{"J6", ErrRange},
		{"q25", ErrRange},
		{"B2", ErrRange},
		{"L10,5", ErrRange},
		{"V5", ErrRange},
		{"t0", ErrRange},
		{">64", ErrVoice},
		{"x", ErrUnknown},
		{":z", ErrUnknown},
		{"+", ErrArgs},
		{"+-1", ErrRange},
		{"]", ErrStack},
		{"/", ErrArgs},
		{"T /", ErrArgs},
		{":x", ErrCapture},
		{":W30", ErrCapture},
		{":l1", ErrResource},
		{"f4.4.4", ErrSyntax},
		{"(1 x)", ErrSyntax},
		{":e5,1", ErrRange},
	}
	for _, tc := range tests {
		t.Run(tc.line, func(t *testing.T) {
			r := newRig(t)
			err := r.in.Exec(r.sess, tc.line)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestVoiceStack(t *testing.T) {
	r := newRig(t)
	r.exec(t, "v1 [ v2 [ v3 a0.5 ] a0.25 ]")
	if r.sess.Voice() != 1 {
		t.Fatalf("voice after pops = %d", r.sess.Voice())
	}
	if r.eng.State(3).Amp != 0.5 || r.eng.State(2).Amp != 0.25 {
		t.Fatalf("amps %f %f", r.eng.State(3).Amp, r.eng.State(2).Amp)
	}
	err := r.in.Exec(r.sess, strings.Repeat("[", StackDepth+1))
	if !errors.Is(err, ErrStack) {
		t.Fatalf("overflow err = %v", err)
	}
}

func TestScratchCaptureAndExecute(t *testing.T) {
	r := newRig(t)
	r.exec(t, "{v3 a0.25}")
	if r.sess.Scratch() != "v3 a0.25" || r.eng.State(3).Amp != 0 {
		t.Fatalf("capture should store text without running it")
	}
	r.exec(t, ":x")
	if r.eng.State(3).Amp != 0.25 || r.sess.Voice() != 3 {
		t.Fatalf(":x did not run the scratch text")
	}
	r.exec(t, "{v4 a0.5")
	if r.sess.Scratch() != "v4 a0.5" {
		t.Fatalf("unterminated capture = %q", r.sess.Scratch())
	}
}

func TestDataCaptureInstallsWave(t *testing.T) {
	r := newRig(t)
	r.exec(t, "(0 0.5, 0 -0.5) :W30 v7 w30")
	st := r.eng.State(7)
	if st.Wave != 30 || st.TableSize != 4 {
		t.Fatalf("state %+v", st)
	}
	if tab := r.eng.Store().Get(30); tab.Data[1] != 1 || tab.Data[3] != -1 {
		t.Fatalf("captured wave not normalised: %v", tab.Data)
	}
	r.exec(t, "(1,2")
	if d := r.sess.Data(); len(d) != 2 || d[1] != 2 {
		t.Fatalf("unterminated data = %v", d)
	}
}

func TestDefaultVariants(t *testing.T) {
	r := newRig(t)
	r.exec(t, "v0 f220 /")
	if f, want := r.eng.State(0).Freq, r.eng.AnchorFrequency(0); f != want {
		t.Fatalf("f/ = %f, want anchor %f", f, want)
	}
	r.exec(t, "a0.2 /")
	if a := r.eng.State(0).Amp; a != 1 {
		t.Fatalf("a/ = %f", a)
	}
	r.exec(t, "J2 / K300 / Q3 /")
	if st := r.eng.State(0); st.Filter != dsp.FilterOff || st.Cutoff != 1000 || st.Resonance != 0.707 {
		t.Fatalf("filter defaults %+v", st)
	}
	r.exec(t, "F1,5 /")
	if src := r.eng.State(0).Mods[engine.ModFreq].Src; src != engine.NoSource {
		t.Fatalf("F/ left route from %d", src)
	}
	r.exec(t, "v3 /")
	if r.sess.Voice() != 0 {
		t.Fatalf("v/ = %d", r.sess.Voice())
	}
}

func TestToggles(t *testing.T) {
	r := newRig(t)
	r.exec(t, "v0 B")
	if r.eng.State(0).Loop {
		t.Fatalf("bare B should toggle loop off")
	}
	r.exec(t, "B1 b m s")
	st := r.eng.State(0)
	if !st.Loop || !st.Reverse || !st.Muted || !st.Smooth {
		t.Fatalf("toggles %+v", st)
	}
	r.exec(t, "b0 m0")
	if st := r.eng.State(0); st.Reverse || st.Muted {
		t.Fatalf("explicit 0 did not clear")
	}
}

func TestCommentAndSeparators(t *testing.T) {
	r := newRig(t)
	r.exec(t, "v0;a0.1\tp0.5 # a0.9 p-1")
	if st := r.eng.State(0); st.Amp != 0.1 || st.Pan != 0.5 {
		t.Fatalf("state %+v", st)
	}
}

func TestErrorStillSchedulesOpenBatch(t *testing.T) {
	r := newRig(t)
	err := r.in.Exec(r.sess, "+1 a0.5 f4.4.4")
	if !errors.Is(err, ErrSyntax) {
		t.Fatalf("err = %v", err)
	}
	if s := r.eng.Stats(); s.Pending != 1 {
		t.Fatalf("pending = %d, want the batch before the error", s.Pending)
	}
}

func TestOversizedBatchIsDropped(t *testing.T) {
	r := newRig(t)
	r.exec(t, "+1 "+strings.Repeat("a0.5 ", 60))
	if s := r.eng.Stats(); s.Pending != 0 || s.Dropped != 1 {
		t.Fatalf("stats %+v", s)
	}
}

func TestQueries(t *testing.T) {
	r := newRig(t)
	r.exec(t, "v2 f440 a0.5 ?")
	if got := r.out.String(); !strings.HasPrefix(got, "v2 w0 sine f440.000 a0.500") {
		t.Fatalf("? printed %q", got)
	}
	r.out.Reset()
	r.exec(t, "A1,0.5 \\")
	if got := r.out.String(); !strings.Contains(got, "mod amp from v1") || !strings.Contains(got, "filter off") {
		t.Fatalf("verbose output %q", got)
	}
	r.out.Reset()
	r.exec(t, "v9 a1 ??")
	if got := r.out.String(); strings.Count(got, "\n") != 2 || !strings.Contains(got, "v9 ") {
		t.Fatalf("?? printed %q", got)
	}
	r.out.Reset()
	r.exec(t, ":s")
	if !strings.HasPrefix(r.out.String(), "now 0 ") {
		t.Fatalf(":s printed %q", r.out.String())
	}
}

func TestTraceAndDebugToggles(t *testing.T) {
	r := newRig(t)
	r.exec(t, ":t a0.5")
	if !r.in.Trace() || !strings.Contains(r.out.String(), "trace v0 a0.5") {
		t.Fatalf("trace output %q", r.out.String())
	}
	r.exec(t, ":t0 :d1")
	if r.in.Trace() || !r.in.Debug() {
		t.Fatalf("flags trace=%v debug=%v", r.in.Trace(), r.in.Debug())
	}
}

func TestResetAndCopy(t *testing.T) {
	r := newRig(t)
	r.exec(t, "v1 f300 a0.4 c3,0.5 >4")
	if st := r.eng.State(4); st.Freq != 300 || st.PDMode != 3 || st.PDAmount != 0.5 {
		t.Fatalf("copy %+v", st)
	}
	r.exec(t, "S4")
	if st := r.eng.State(4); st.Amp != 0 || st.Freq != 440 {
		t.Fatalf("reset voice %+v", st)
	}
	r.exec(t, "V2 :e1,0 S")
	if r.eng.State(1).Amp != 0 || r.eng.Volume() != 1 || !r.eng.EQ().Flat() {
		t.Fatalf("bare S did not reset everything")
	}
}

func TestNoteAndGlide(t *testing.T) {
	r := newRig(t)
	r.exec(t, "v0 n69")
	if f := r.eng.State(0).Freq; math.Abs(f-440) > 1e-9 {
		t.Fatalf("n69 = %f", f)
	}
	r.exec(t, "a1 g0.01 n81")
	r.render(rate / 50)
	if f := r.eng.State(0).Freq; math.Abs(f-880) > 1e-9 {
		t.Fatalf("glide ended at %f", f)
	}
}

func writeWAV(t *testing.T, path string, data []int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	buf := &audio.IntBuffer{Format: &audio.Format{NumChannels: 1, SampleRate: rate}, Data: data, SourceBitDepth: 16}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()
}

func TestFileEnv(t *testing.T) {
	r := newRig(t)
	dir := t.TempDir()
	env := &FileEnv{Interp: r.in, Store: r.eng.Store(), PatchDir: dir, WaveDir: dir}
	r.in.SetEnv(env)

	os.WriteFile(PatchPath(dir, 3), []byte("v8 f123\n# comment\na0.7\n"), 0o644)
	r.exec(t, ":l3")
	if st := r.eng.State(8); st.Freq != 123 || st.Amp != 0.7 {
		t.Fatalf("patch not applied: %+v", st)
	}

	os.WriteFile(PatchPath(dir, 4), []byte("a0.1\np5\n"), 0o644)
	err := r.in.Exec(r.sess, ":l4")
	if !errors.Is(err, ErrPan) {
		t.Fatalf("patch line error = %v, want ErrPan", err)
	}

	os.WriteFile(PatchPath(dir, 5), []byte(":l5\n"), 0o644)
	if err := r.in.Exec(r.sess, ":l5"); !errors.Is(err, ErrDepth) {
		t.Fatalf("recursive patch err = %v, want ErrDepth", err)
	}

	writeWAV(t, WavePath(dir, 1), []int{0, 8000, 16000, -16000})
	r.exec(t, ":w1,40 w40")
	if st := r.eng.State(8); st.Wave != 40 || st.TableSize != 4 || st.Loop {
		t.Fatalf("loaded wave %+v", st)
	}
	before := r.eng.Store().Get(40)
	if err := r.in.Exec(r.sess, ":w2,40"); !errors.Is(err, ErrResource) {
		t.Fatalf("missing wave err = %v", err)
	}
	if r.eng.Store().Get(40) != before {
		t.Fatalf("failed load replaced the slot")
	}
	if _, err := os.Stat(filepath.Join(dir, "3.txt")); err != nil {
		t.Fatalf("patch path layout: %v", err)
	}
}

type recordEnv struct {
	col  int
	op   string
	fail error
}

func (e *recordEnv) LoadPatch(s *Session, n, depth int) error {
	e.col, e.op = s.At()
	return e.fail
}

func (e *recordEnv) LoadWave(s *Session, which, slot int) error {
	e.col, e.op = s.At()
	return e.fail
}

func TestSessionLocatesFileOpcodes(t *testing.T) {
	r := newRig(t)
	env := &recordEnv{}
	r.in.SetEnv(env)

	r.exec(t, "v1 f200 :l7")
	if env.col != 9 || env.op != ":l" {
		t.Fatalf(":l at col %d op %q", env.col, env.op)
	}
	r.exec(t, ":w2,40")
	if env.col != 1 || env.op != ":w" {
		t.Fatalf(":w at col %d op %q", env.col, env.op)
	}

	nested := &Error{Code: ErrPan, Col: 3, Op: "p"}
	tests := []struct {
		err  error
		want Code
	}{
		{errors.New("no such file"), ErrResource},
		{fmt.Errorf("patch 7 line 2: %w", nested), ErrPan},
	}
	for _, tt := range tests {
		got := Locate(tt.err, ErrResource, 9, ":l")
		if got.Code != tt.want || got.Col != 9 || got.Op != ":l" || !errors.Is(got, tt.err) {
			t.Fatalf("Locate(%v) = %+v", tt.err, got)
		}
	}
}
