package opsynth

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
)

// Render runs lines on a fresh synth and returns seconds of interleaved
// stereo. Deferred commands fire as they would in realtime.
func Render(lines []string, sampleRate int, seconds float64, opts ...Option) ([]float32, error) {
	s, err := NewSynth(sampleRate, opts...)
	if err != nil {
		return nil, err
	}
	ctx := context.Background()
	for i, line := range lines {
		if _, err := s.Exec(ctx, line); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
	}
	frames := int(float64(sampleRate) * seconds)
	if frames <= 0 {
		return []float32{}, nil
	}
	return s.RenderFrames(frames), nil
}

func EncodeWAVFloat32LE(samples []float32, sampleRate int, channels int) []byte {
	dataSize := len(samples) * 4
	byteRate := sampleRate * channels * 4
	blockAlign := channels * 4
	out := make([]byte, 44+dataSize)
	copy(out[0:], "RIFF")
	binary.LittleEndian.PutUint32(out[4:], uint32(36+dataSize))
	copy(out[8:], "WAVE")
	copy(out[12:], "fmt ")
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 3) // IEEE float
	binary.LittleEndian.PutUint16(out[22:], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:], 32)
	copy(out[36:], "data")
	binary.LittleEndian.PutUint32(out[40:], uint32(dataSize))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[44+i*4:], math.Float32bits(s))
	}
	return out
}
