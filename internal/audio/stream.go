// Package audio drives realtime output devices from a pull source.
package audio

import (
	"encoding/binary"
	"math"
)

// Source fills dst with interleaved stereo float32 frames. It is called on
// the device goroutine and must not block.
type Source interface {
	Process(dst []float32)
}

// Backend is a running output device.
type Backend interface {
	Start() error
	Stop() error
}

// DefaultBufferFrames is the render block size when none is given.
const DefaultBufferFrames = 512

// StreamReader adapts a Source to the io.Reader the device players pull
// float32 little-endian stereo bytes from. Requests larger than the
// preallocated block are rendered in several passes.
type StreamReader struct {
	source Source
	buf    []float32
}

func NewStreamReader(source Source, frames int) *StreamReader {
	if frames <= 0 {
		frames = DefaultBufferFrames
	}
	return &StreamReader{source: source, buf: make([]float32, 2*frames)}
}

func (r *StreamReader) Read(p []byte) (int, error) {
	frames := len(p) / 8
	n := 0
	for frames > 0 {
		chunk := min(frames, len(r.buf)/2)
		samples := r.buf[:2*chunk]
		r.source.Process(samples)
		for _, s := range samples {
			binary.LittleEndian.PutUint32(p[n:], math.Float32bits(s))
			n += 4
		}
		frames -= chunk
	}
	return n, nil
}

func (r *StreamReader) Close() error { return nil }
