package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mitchellh/go-homedir"
	"gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/cbegin/opsynth-go"
	"github.com/cbegin/opsynth-go/internal/midiin"
	"github.com/cbegin/opsynth-go/internal/netctl"
	"github.com/cbegin/opsynth-go/internal/repl"
	"github.com/cbegin/opsynth-go/internal/rtprio"
)

func main() {
	var (
		sampleRate = flag.Int("rate", 44100, "output sample rate")
		backend    = flag.String("backend", "ebiten", "audio backend: ebiten|oto")
		buffer     = flag.Int("buffer", 512, "render callback size in frames")
		sweep      = flag.Int("sweep", 1, "check deferred commands every N frames")
		realtime   = flag.Bool("realtime", false, "raise process priority and lock memory")
		debug      = flag.Bool("debug", false, "debug logging and protocol debug output")
		trace      = flag.Bool("trace", false, "echo each executed token")
		port       = flag.Int("port", 0, "UDP control port (0 = off)")
		patch      = flag.Int("patch", -1, "patch number to load at startup (-1 = none)")
		command    = flag.String("c", "", "commands to run at startup; newlines separate lines")
		patchDir   = flag.String("patches", "~/.opsynth/patches", "patch directory")
		waveDir    = flag.String("waves", "~/.opsynth/waves", "wave file directory")
		midiPort   = flag.String("midi", "", "MIDI input port name (empty = off)")
		logLevel   = flag.String("log-level", "info", "debug|info|warn|error")
		volume     = flag.Float64("volume", 1.0, "master volume scalar")
		outPath    = flag.String("o", "", "render offline to this WAV file instead of playing")
		seconds    = flag.Float64("seconds", 4, "length of an offline render")
	)
	flag.Parse()

	logger, err := newLogger(*logLevel, *debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)
	fatal := func(err error) {
		logger.Error("fatal", "err", err)
		os.Exit(1)
	}

	patches, err := homedir.Expand(*patchDir)
	if err != nil {
		fatal(err)
	}
	waves, err := homedir.Expand(*waveDir)
	if err != nil {
		fatal(err)
	}
	opts := []opsynth.Option{
		opsynth.WithLogger(logger),
		opsynth.WithBackend(*backend),
		opsynth.WithBufferFrames(*buffer),
		opsynth.WithSweep(*sweep),
		opsynth.WithVolume(*volume),
		opsynth.WithPatchDir(patches),
		opsynth.WithWaveDir(waves),
		opsynth.WithTrace(*trace),
		opsynth.WithDebug(*debug),
	}
	startup := startupLines(*patch, *command)

	if *outPath != "" {
		samples, err := opsynth.Render(startup, *sampleRate, *seconds, opts...)
		if err != nil {
			fatal(err)
		}
		if err := os.WriteFile(*outPath, opsynth.EncodeWAVFloat32LE(samples, *sampleRate, 2), 0o644); err != nil {
			fatal(err)
		}
		logger.Info("rendered", "file", *outPath, "seconds", *seconds)
		return
	}

	if *realtime {
		if err := rtprio.Raise(0); err != nil {
			logger.Warn("priority raise failed", "err", err)
		}
		if err := rtprio.LockMemory(); err != nil {
			logger.Warn("memory lock failed", "err", err)
		}
	}

	s, err := opsynth.NewSynth(*sampleRate, opts...)
	if err != nil {
		fatal(err)
	}
	if err := s.Start(); err != nil {
		fatal(err)
	}
	defer s.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, line := range startup {
		out, err := s.Exec(ctx, line)
		fmt.Print(out)
		if err != nil {
			logger.Warn("startup command failed", "line", line, "err", err)
		}
	}

	if *port > 0 {
		srv, err := netctl.Listen(fmt.Sprintf(":%d", *port), func() netctl.Executor { return s.Open() }, logger)
		if err != nil {
			fatal(err)
		}
		logger.Info("udp control listening", "addr", srv.Addr().String())
		go func() {
			if err := srv.Serve(ctx); err != nil {
				logger.Error("udp control stopped", "err", err)
			}
		}()
	}

	if *midiPort != "" {
		defer midi.CloseDriver()
		conn := s.Open()
		stopMIDI, err := midiin.Listen(*midiPort, logger, func(line string) {
			if _, err := conn.Exec(ctx, line); err != nil {
				logger.Debug("midi line failed", "line", line, "err", err)
			}
		})
		if err != nil {
			logger.Warn("midi input unavailable", "err", err)
		} else {
			defer stopMIDI()
		}
	}

	done := make(chan error, 1)
	go func() {
		done <- repl.Run(os.Stdin, os.Stdout, func(line string) (string, error) {
			return s.Exec(ctx, line)
		})
	}()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("console", "err", err)
		}
		if *port > 0 || *midiPort != "" {
			// stdin closed; keep serving the other control inputs
			<-ctx.Done()
		}
	case <-ctx.Done():
	}
}

func startupLines(patch int, command string) []string {
	var lines []string
	if patch >= 0 {
		lines = append(lines, fmt.Sprintf(":l%d", patch))
	}
	for line := range strings.SplitSeq(command, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func newLogger(level string, debug bool) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid -log-level %q (expected debug|info|warn|error)", level)
	}
	if debug {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl, AddSource: debug})), nil
}
