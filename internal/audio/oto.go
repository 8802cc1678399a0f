package audio

import (
	"fmt"
	"sync"

	"github.com/ebitengine/oto/v3"
)

var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoRate int
	otoErr  error
)

func sharedOtoContext(sampleRate, frames int) (*oto.Context, error) {
	otoOnce.Do(func() {
		otoRate = sampleRate
		opts := &oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: 2,
			Format:       oto.FormatFloat32LE,
		}
		if frames > 0 {
			opts.BufferSize = framesToDuration(frames, sampleRate)
		}
		var ready chan struct{}
		otoCtx, ready, otoErr = oto.NewContext(opts)
		if otoErr == nil {
			<-ready
		}
	})
	if otoErr != nil {
		return nil, otoErr
	}
	if otoRate != sampleRate {
		return nil, fmt.Errorf("oto context already initialized at %d Hz (requested %d Hz)", otoRate, sampleRate)
	}
	return otoCtx, nil
}

// OtoBackend plays a Source straight through an oto context, without the
// ebiten mixer in between.
type OtoBackend struct {
	player *oto.Player
	reader *StreamReader
}

func NewOtoBackend(sampleRate int, source Source, frames int) (*OtoBackend, error) {
	ctx, err := sharedOtoContext(sampleRate, frames)
	if err != nil {
		return nil, err
	}
	reader := NewStreamReader(source, frames)
	return &OtoBackend{player: ctx.NewPlayer(reader), reader: reader}, nil
}

func (b *OtoBackend) Start() error {
	b.player.Play()
	return nil
}

func (b *OtoBackend) Stop() error {
	b.player.Pause()
	if err := b.player.Close(); err != nil {
		return err
	}
	return b.reader.Close()
}

// New opens the named backend: "ebiten" (default) or "oto".
func New(name string, sampleRate int, source Source, frames int) (Backend, error) {
	switch name {
	case "", "ebiten":
		return NewEbitenBackend(sampleRate, source, frames)
	case "oto":
		return NewOtoBackend(sampleRate, source, frames)
	}
	return nil, fmt.Errorf("unknown audio backend %q", name)
}
