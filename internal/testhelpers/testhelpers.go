// Package testhelpers provides helpers for testing.
package testhelpers

import (
	"errors"
	"time"
)

// Timeout is how long the helpers wait on a channel.
const Timeout = 5 * time.Second

// ErrTimeout is returned when nothing arrived within Timeout.
var ErrTimeout = errors.New("timed out waiting for result")

// WithinTimeout reads an error from ch, or returns ErrTimeout.
func WithinTimeout(ch <-chan error) error {
	select {
	case err := <-ch:
		return err
	case <-time.After(Timeout):
		return ErrTimeout
	}
}

// NoErrorWithinTimeoutN reads one error from each channel in turn and
// returns the first non-nil one.
func NoErrorWithinTimeoutN(errChs ...<-chan error) error {
	for _, ch := range errChs {
		if err := WithinTimeout(ch); err != nil {
			return err
		}
	}
	return nil
}
