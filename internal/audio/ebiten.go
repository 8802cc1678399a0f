package audio

import (
	"fmt"
	"sync"
	"time"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
)

var (
	ebitenOnce sync.Once
	ebitenCtx  *ebitaudio.Context
	ebitenRate int
)

// ebiten allows a single audio context per process.
func sharedEbitenContext(sampleRate int) (*ebitaudio.Context, error) {
	ebitenOnce.Do(func() {
		ebitenRate = sampleRate
		ebitenCtx = ebitaudio.NewContext(sampleRate)
	})
	if ebitenRate != sampleRate {
		return nil, fmt.Errorf("audio context already initialized at %d Hz (requested %d Hz)", ebitenRate, sampleRate)
	}
	return ebitenCtx, nil
}

// EbitenBackend plays a Source through ebiten's audio player.
type EbitenBackend struct {
	player *ebitaudio.Player
	reader *StreamReader
}

func NewEbitenBackend(sampleRate int, source Source, frames int) (*EbitenBackend, error) {
	ctx, err := sharedEbitenContext(sampleRate)
	if err != nil {
		return nil, err
	}
	reader := NewStreamReader(source, frames)
	pl, err := ctx.NewPlayerF32(reader)
	if err != nil {
		return nil, err
	}
	if frames > 0 {
		pl.SetBufferSize(framesToDuration(frames, sampleRate))
	}
	return &EbitenBackend{player: pl, reader: reader}, nil
}

func (b *EbitenBackend) Start() error {
	b.player.Play()
	return nil
}

func (b *EbitenBackend) Stop() error {
	b.player.Pause()
	if err := b.player.Close(); err != nil {
		return err
	}
	return b.reader.Close()
}

func framesToDuration(frames, sampleRate int) time.Duration {
	return time.Duration(frames) * time.Second / time.Duration(sampleRate)
}
