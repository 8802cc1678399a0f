//go:build linux

package rtprio

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Raise sets the process niceness, DefaultNice when nice is 0. Negative
// values need CAP_SYS_NICE or a matching RLIMIT_NICE.
func Raise(nice int) error {
	if nice == 0 {
		nice = DefaultNice
	}
	if err := unix.Setpriority(unix.PRIO_PROCESS, 0, nice); err != nil {
		return fmt.Errorf("setpriority %d: %w", nice, err)
	}
	return nil
}

// LockMemory pins current and future pages so the render loop never
// faults on a page that was swapped out.
func LockMemory() error {
	if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
		return fmt.Errorf("mlockall: %w", err)
	}
	return nil
}
