package wavetable

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-audio/wav"
)

var ErrFormat = errors.New("not a readable PCM wave file")

// DecodeWAV reads a RIFF/WAVE stream into a one-shot table. Channels are
// averaged to mono and integer PCM is scaled into [-1, 1].
func DecodeWAV(name string, r io.ReadSeeker) (*Table, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, ErrFormat
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels <= 0 || buf.Format.SampleRate <= 0 {
		return nil, ErrFormat
	}
	channels := buf.Format.NumChannels
	frames := len(buf.Data) / channels
	if frames == 0 {
		return nil, fmt.Errorf("decode %s: %w", name, ErrEmpty)
	}
	bits := buf.SourceBitDepth
	if bits <= 0 {
		bits = int(d.BitDepth)
	}
	if bits <= 0 || bits > 32 {
		return nil, ErrFormat
	}
	scale := 1.0 / float64(int64(1)<<(bits-1))
	if bits == 8 {
		// 8-bit WAV is unsigned around 128.
		scale = 1.0 / 128
	}
	data := make([]float64, frames)
	for f := 0; f < frames; f++ {
		sum := 0.0
		for c := 0; c < channels; c++ {
			v := buf.Data[f*channels+c]
			if bits == 8 {
				v -= 128
			}
			sum += float64(v)
		}
		data[f] = sum * scale / float64(channels)
	}
	return NewSample(name, Normalize(data), float64(buf.Format.SampleRate)), nil
}

// LoadFile decodes path and installs it into slot. On any failure the slot
// keeps its previous contents.
func (s *Store) LoadFile(slot int, path string) error {
	if slot < 0 || slot >= Slots {
		return fmt.Errorf("load %s: %w", path, ErrSlot)
	}
	t, err := ReadWAV(path)
	if err != nil {
		return err
	}
	return s.Install(slot, t)
}

// ReadWAV opens and decodes a wave file without touching any store.
func ReadWAV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeWAV(filepath.Base(path), f)
}
