package protocol

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cbegin/opsynth-go/internal/wavetable"
)

// PatchPath is where patch n lives under dir.
func PatchPath(dir string, n int) string {
	return filepath.Join(dir, strconv.Itoa(n)+".txt")
}

// WavePath is where wave file which lives under dir.
func WavePath(dir string, which int) string {
	return filepath.Join(dir, strconv.Itoa(which)+".wav")
}

// ReadPatch returns the lines of patch n.
func ReadPatch(dir string, n int) ([]string, error) {
	f, err := os.Open(PatchPath(dir, n))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read patch %d: %w", n, err)
	}
	return lines, nil
}

// FileEnv runs file opcodes synchronously on the calling goroutine. It suits
// offline rendering and tests; a realtime host hands the reads to a loader.
type FileEnv struct {
	Interp   *Interp
	Store    *wavetable.Store
	PatchDir string
	WaveDir  string
}

// LoadPatch executes each line of the patch, stopping at the first error.
func (e *FileEnv) LoadPatch(s *Session, n, depth int) error {
	lines, err := ReadPatch(e.PatchDir, n)
	if err != nil {
		return err
	}
	for i, line := range lines {
		if err := e.Interp.ExecAt(s, line, depth); err != nil {
			return fmt.Errorf("patch %d line %d: %w", n, i+1, err)
		}
	}
	return nil
}

func (e *FileEnv) LoadWave(s *Session, which, slot int) error {
	return e.Store.LoadFile(slot, WavePath(e.WaveDir, which))
}
