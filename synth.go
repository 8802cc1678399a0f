// Package opsynth is a live-coded wavetable synthesizer. Text lines of
// single character opcodes shape 64 voices; deferred lines replay at an
// exact sample on the audio thread.
package opsynth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/cbegin/opsynth-go/internal/audio"
	"github.com/cbegin/opsynth-go/internal/engine"
	"github.com/cbegin/opsynth-go/internal/protocol"
	"github.com/cbegin/opsynth-go/internal/wavetable"
)

const (
	mailboxSize = 64
	loadQueue   = 16
	lineLoads   = 8
	replySize   = 512
)

var errLoaderBusy = errors.New("loader queue full")

type Option func(*config)

type config struct {
	logger       *slog.Logger
	backend      string
	bufferFrames int
	sweep        int
	volume       float64
	patchDir     string
	waveDir      string
	trace        bool
	debug        bool
	sampleTap    func([]float32)
}

func defaultConfig() config {
	return config{
		backend:      "ebiten",
		bufferFrames: audio.DefaultBufferFrames,
		sweep:        1,
		volume:       1,
		patchDir:     ".",
		waveDir:      ".",
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		cfg.logger = logger
	}
}

// WithBackend picks the realtime output: "ebiten" or "oto".
func WithBackend(name string) Option {
	return func(cfg *config) {
		cfg.backend = name
	}
}

// WithBufferFrames sets the render callback size in frames.
func WithBufferFrames(frames int) Option {
	return func(cfg *config) {
		cfg.bufferFrames = frames
	}
}

// WithSweep checks the deferred queue every frames samples instead of every
// sample.
func WithSweep(frames int) Option {
	return func(cfg *config) {
		cfg.sweep = frames
	}
}

func WithVolume(level float64) Option {
	return func(cfg *config) {
		cfg.volume = level
	}
}

// WithPatchDir sets where ":l n" finds n.txt.
func WithPatchDir(dir string) Option {
	return func(cfg *config) {
		cfg.patchDir = dir
	}
}

// WithWaveDir sets where ":w n slot" finds n.wav.
func WithWaveDir(dir string) Option {
	return func(cfg *config) {
		cfg.waveDir = dir
	}
}

func WithTrace(on bool) Option {
	return func(cfg *config) {
		cfg.trace = on
	}
}

func WithDebug(on bool) Option {
	return func(cfg *config) {
		cfg.debug = on
	}
}

// WithSampleTap installs a callback invoked with each generated stereo buffer.
// The callback runs on the audio thread; keep work brief and non-blocking.
func WithSampleTap(tap func([]float32)) Option {
	return func(cfg *config) {
		cfg.sampleTap = tap
	}
}

// request is one unit of work for the goroutine that owns the engine:
// a line to execute, a decoded table to install or a side buffer to copy.
type request struct {
	sess  *protocol.Session
	line  string
	depth int
	out   *bytes.Buffer
	reply chan result

	slot  int
	table *wavetable.Table

	side *sideCopy
}

// result answers a request. loads are the file opcodes the line reached,
// in order, still to be read by whoever waits on the line.
type result struct {
	err   error
	loads []load
}

type sideCopy struct {
	voice int
	dst   []float32
	n     int
}

type load struct {
	sess  *protocol.Session
	wave  bool
	n     int
	slot  int
	depth int
	col   int
	op    string
}

// Synth owns the engine, its interpreter and the output device. While
// started, every line runs on the audio thread: Exec posts to a mailbox
// that the render callback drains before each block. When stopped, lines
// run directly on the caller.
type Synth struct {
	cfg     config
	log     *slog.Logger
	store   *wavetable.Store
	eng     *engine.Engine
	interp  *protocol.Interp
	files   *protocol.FileEnv
	console *Conn
	mailbox chan request
	pending []load
	open    func(name string, rate int, src audio.Source, frames int) (audio.Backend, error)

	mu         sync.Mutex
	running    bool
	backend    audio.Backend
	loads      chan load
	loaderDone chan struct{}
}

func NewSynth(sampleRate int, opts ...Option) (*Synth, error) {
	if sampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	store := wavetable.NewStore(sampleRate)
	store.LoadBuiltin()
	eng := engine.New(store)
	eng.SetSweep(cfg.sweep)
	eng.SetVolume(cfg.volume)
	in := protocol.New(eng, nil, logger)
	in.SetTrace(cfg.trace)
	in.SetDebug(cfg.debug)
	files := &protocol.FileEnv{Interp: in, Store: store, PatchDir: cfg.patchDir, WaveDir: cfg.waveDir}
	in.SetEnv(files)
	s := &Synth{
		cfg:     cfg,
		log:     logger,
		store:   store,
		eng:     eng,
		interp:  in,
		files:   files,
		mailbox: make(chan request, mailboxSize),
		pending: make([]load, 0, lineLoads),
		open:    audio.New,
	}
	s.console = s.Open()
	return s, nil
}

func (s *Synth) SampleRate() int { return s.store.SampleRate() }

// Stats may be read from any goroutine.
func (s *Synth) Stats() engine.Stats { return s.eng.Stats() }

// Side copies the latest dry output of voice v into dst; see engine.Side.
// While started the copy is made by the audio thread between blocks.
func (s *Synth) Side(v int, dst []float32) int {
	req := request{side: &sideCopy{voice: v, dst: dst}}
	if res := s.submit(context.Background(), req); res.err != nil {
		return 0
	}
	return req.side.n
}

// Exec runs line on the console session and returns what it printed.
func (s *Synth) Exec(ctx context.Context, line string) (string, error) {
	return s.console.Exec(ctx, line)
}

// Conn is an independent control stream: it has its own current voice,
// voice stack and captures.
type Conn struct {
	s    *Synth
	sess *protocol.Session
}

func (s *Synth) Open() *Conn {
	return &Conn{s: s, sess: protocol.NewSession(nil)}
}

// Exec runs one line and waits for the patches and waves it loads, so the
// next line sees them. If ctx ends first, work already queued may still run
// later and its output is lost.
func (c *Conn) Exec(ctx context.Context, line string) (string, error) {
	out := bytes.NewBuffer(make([]byte, 0, replySize))
	err := c.s.exec(ctx, request{sess: c.sess, line: line, out: out})
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return "", err
	}
	return out.String(), err
}

// Start opens the output device and moves execution to the audio thread.
func (s *Synth) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	b, err := s.open(s.cfg.backend, s.SampleRate(), renderer{s}, s.cfg.bufferFrames)
	if err != nil {
		return err
	}
	s.loads = make(chan load, loadQueue)
	s.loaderDone = make(chan struct{})
	go s.runLoader(s.loads, s.loaderDone)
	s.interp.SetEnv(loaderEnv{s})
	s.backend = b
	s.running = true
	if err := b.Start(); err != nil {
		s.running = false
		s.backend = nil
		s.interp.SetEnv(s.files)
		close(s.loads)
		<-s.loaderDone
		return fmt.Errorf("start %s backend: %w", s.cfg.backend, err)
	}
	s.log.Info("audio started", "backend", s.cfg.backend, "rate", s.SampleRate(), "buffer", s.cfg.bufferFrames)
	return nil
}

// Stop closes the device. Lines still in the mailbox run on the caller
// before Stop returns.
func (s *Synth) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	err := s.backend.Stop()
	s.running = false
	s.backend = nil
	s.interp.SetEnv(s.files)
	s.drain()
	loads, done := s.loads, s.loaderDone
	s.loads = nil
	s.mu.Unlock()

	close(loads)
	<-done
	s.log.Info("audio stopped", "frames", s.eng.Stats().Frames)
	return err
}

func (s *Synth) Close() error { return s.Stop() }

// RenderFrames renders frames of interleaved stereo on the caller. It
// returns nil while the device is running.
func (s *Synth) RenderFrames(frames int) []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running || frames <= 0 {
		return nil
	}
	out := make([]float32, 2*frames)
	s.process(out)
	return out
}

// exec runs a line through the engine owner, then reads the files its
// ':l' and ':w' opcodes named on the caller, in order. Opcodes after a load
// on the same line have already run by then.
func (s *Synth) exec(ctx context.Context, req request) error {
	res := s.submit(ctx, req)
	for _, l := range res.loads {
		if err := s.load(ctx, l, req.out); err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return err
			}
			return protocol.Locate(err, protocol.ErrResource, l.col, l.op)
		}
	}
	return res.err
}

// load reads a patch or wave file and applies it through the engine owner.
// Patch lines run one at a time, each waiting for the loads it starts.
func (s *Synth) load(ctx context.Context, l load, out *bytes.Buffer) error {
	if l.wave {
		t, err := wavetable.ReadWAV(protocol.WavePath(s.cfg.waveDir, l.n))
		if err != nil {
			return err
		}
		return s.submit(ctx, request{slot: l.slot, table: t}).err
	}
	lines, err := protocol.ReadPatch(s.cfg.patchDir, l.n)
	if err != nil {
		return err
	}
	for i, line := range lines {
		if err := s.exec(ctx, request{sess: l.sess, line: line, depth: l.depth, out: out}); err != nil {
			return fmt.Errorf("patch %d line %d: %w", l.n, i+1, err)
		}
	}
	return nil
}

func (s *Synth) submit(ctx context.Context, req request) result {
	s.mu.Lock()
	if !s.running {
		defer s.mu.Unlock()
		return s.handle(req)
	}
	req.reply = make(chan result, 1)
	select {
	case s.mailbox <- req:
		s.mu.Unlock()
	case <-ctx.Done():
		s.mu.Unlock()
		return result{err: ctx.Err()}
	}
	select {
	case res := <-req.reply:
		return res
	case <-ctx.Done():
		return result{err: ctx.Err()}
	}
}

// drain runs everything queued in the mailbox. Only the engine owner calls
// it.
func (s *Synth) drain() {
	for {
		select {
		case req := <-s.mailbox:
			req.reply <- s.handle(req)
		default:
			return
		}
	}
}

func (s *Synth) handle(req request) result {
	switch {
	case req.table != nil:
		if err := s.store.Install(req.slot, req.table); err != nil {
			s.log.Warn("install wavetable failed", "slot", req.slot, "err", err)
			return result{err: err}
		}
		s.log.Debug("wavetable installed", "slot", req.slot, "name", req.table.Name)
		return result{}
	case req.side != nil:
		req.side.n = s.eng.Side(req.side.voice, req.side.dst)
		return result{}
	}
	if req.out != nil {
		req.sess.SetOutput(req.out)
	} else {
		req.sess.SetOutput(nil)
	}
	s.pending = s.pending[:0]
	res := result{err: s.interp.ExecAt(req.sess, req.line, req.depth)}
	if len(s.pending) > 0 {
		res.loads = slices.Clone(s.pending)
		s.pending = s.pending[:0]
	}
	return res
}

func (s *Synth) process(dst []float32) {
	s.drain()
	s.eng.Render(dst, nil, len(dst)/2, 2)
	// loads reached by deferred lines have nobody waiting on them
	for _, l := range s.pending {
		select {
		case s.loads <- l:
		default:
			s.log.Warn("deferred load dropped", "op", l.op, "n", l.n, "err", errLoaderBusy)
		}
	}
	s.pending = s.pending[:0]
	if s.cfg.sampleTap != nil {
		s.cfg.sampleTap(dst)
	}
}

type renderer struct{ s *Synth }

func (r renderer) Process(dst []float32) { r.s.process(dst) }

// loaderEnv keeps the audio thread off the filesystem: file opcodes are
// only recorded, and read later by the goroutine waiting on the line, or by
// the loader goroutine when a deferred line reached them.
type loaderEnv struct{ s *Synth }

func (e loaderEnv) LoadPatch(sess *protocol.Session, n, depth int) error {
	col, op := sess.At()
	return e.s.queueLoad(load{sess: sess, n: n, depth: depth, col: col, op: op})
}

func (e loaderEnv) LoadWave(sess *protocol.Session, which, slot int) error {
	col, op := sess.At()
	return e.s.queueLoad(load{wave: true, n: which, slot: slot, col: col, op: op})
}

func (s *Synth) queueLoad(l load) error {
	if len(s.pending) == cap(s.pending) {
		return errLoaderBusy
	}
	s.pending = append(s.pending, l)
	return nil
}

func (s *Synth) runLoader(loads <-chan load, done chan<- struct{}) {
	defer close(done)
	ctx := context.Background()
	for l := range loads {
		if err := s.load(ctx, l, nil); err != nil {
			s.log.Error("deferred load failed", "op", l.op, "n", l.n, "slot", l.slot, "err", err)
		}
	}
}
