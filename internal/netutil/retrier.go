// Package netutil holds networking helpers.
package netutil

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/skycoin/skycoin/src/util/logging"
)

var log = logging.MustGetLogger("netutil")

// ErrThresholdReached is returned when retries stop before f succeeded.
var ErrThresholdReached = errors.New("threshold timeout has been reached")

// RetryFunc is a function attempted by a Retrier.
type RetryFunc func() error

// Retrier retries a function with exponential backoff until it succeeds,
// returns a whitelisted error, or the threshold passes.
type Retrier struct {
	exponentialBackoff time.Duration
	exponentialFactor  uint32
	threshold          time.Duration
	errWhitelist       map[error]struct{}
}

// NewRetrier returns a Retrier that first waits for backoff and multiplies
// the wait by factor after every failed attempt.
func NewRetrier(exponentialBackoff, threshold time.Duration, factor uint32) *Retrier {
	return &Retrier{
		exponentialBackoff: exponentialBackoff,
		threshold:          threshold,
		exponentialFactor:  factor,
		errWhitelist:       make(map[error]struct{}),
	}
}

// WithErrWhitelist sets errors that are returned immediately instead of retried.
func (r *Retrier) WithErrWhitelist(errs ...error) *Retrier {
	m := make(map[error]struct{})
	for _, err := range errs {
		m[err] = struct{}{}
	}
	r.errWhitelist = m
	return r
}

// Do calls f until it succeeds. It gives up once ctx is done or the
// threshold elapsed since the first failure.
func (r Retrier) Do(ctx context.Context, f RetryFunc) error {
	var backoff <-chan time.Time
	var doneCh <-chan time.Time

	currentBackoff := r.exponentialBackoff

	errCh := make(chan error, 1)
	go func() { errCh <- f() }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-doneCh:
			return ErrThresholdReached
		case <-backoff:
			go func() { errCh <- f() }()
		case err := <-errCh:
			if err == nil {
				return nil
			}
			if r.isWhitelisted(err) {
				return err
			}
			log.WithError(err).Warnf("retrying in %s", currentBackoff)

			backoff = time.After(currentBackoff)
			currentBackoff *= time.Duration(r.exponentialFactor)
			if doneCh == nil {
				doneCh = time.After(r.threshold)
			}
		}
	}
}

func (r Retrier) isWhitelisted(err error) bool {
	for wl := range r.errWhitelist {
		if errors.Is(err, wl) {
			return true
		}
	}
	return false
}
