package backoff

import "time"

// FixedBackOff waits the same Interval on every call until MaxElapsedTime
// (zero means unbounded) has passed since the last Reset.
type FixedBackOff struct {
	Interval       time.Duration
	MaxElapsedTime time.Duration
	Now            func() time.Time

	clock elapsedClock
}

func NewFixedBackOff(interval time.Duration) *FixedBackOff {
	if interval <= 0 {
		interval = DefaultFixedInterval
	}
	b := &FixedBackOff{Interval: interval}
	b.Reset()
	return b
}

func (b *FixedBackOff) NextBackOff() time.Duration {
	b.clock.now = b.Now
	if exceeded(&b.clock, b.MaxElapsedTime) {
		return Stop
	}
	if b.Interval <= 0 {
		return DefaultFixedInterval
	}
	return b.Interval
}

// Reset clears the elapsed budget. The interval never changes.
func (b *FixedBackOff) Reset() {
	b.clock.now = b.Now
	b.clock.reset()
}

var _ BackOff = (*FixedBackOff)(nil)
