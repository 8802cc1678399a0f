//go:build !linux

package rtprio

import "errors"

func Raise(nice int) error { return errors.ErrUnsupported }
func LockMemory() error    { return errors.ErrUnsupported }
