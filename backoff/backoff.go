// Package backoff provides the wait policies used by the polling engine and
// the retrying call layer. Strategies satisfy the cenkalti/backoff BackOff
// contract so they can be handed to any consumer of that interface.
//
// Strategies are stateful and not safe for concurrent use. Owners that share
// one across goroutines must serialize NextBackOff and Reset.
package backoff

import (
	"time"

	cbackoff "github.com/cenkalti/backoff/v5"
)

// BackOff is the NextBackOff/Reset contract shared with cenkalti/backoff.
type BackOff = cbackoff.BackOff

// Stop is returned by NextBackOff once a strategy gives up. It is never a
// valid wait duration.
const Stop = cbackoff.Stop

const (
	DefaultFixedInterval       = 100 * time.Millisecond
	DefaultInitialInterval     = 100 * time.Millisecond
	DefaultMultiplier          = 1.5
	DefaultRandomizationFactor = 0.2
	DefaultMaxInterval         = 60 * time.Second
)

// Exhausted reports whether a wait returned by NextBackOff means give up.
func Exhausted(wait time.Duration) bool {
	return wait == Stop
}

type elapsedClock struct {
	now       func() time.Time
	startedAt time.Time
}

func (c *elapsedClock) reset() {
	c.startedAt = c.current()
}

func (c *elapsedClock) elapsed() time.Duration {
	if c.startedAt.IsZero() {
		c.reset()
	}
	return c.current().Sub(c.startedAt)
}

func (c *elapsedClock) current() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}

func exceeded(clock *elapsedClock, maxElapsed time.Duration) bool {
	if maxElapsed <= 0 {
		return false
	}
	return clock.elapsed() > maxElapsed
}
