package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// ExponentialBackOff grows its current interval by Multiplier on every call,
// capped at MaxInterval, and returns a jittered value around the interval in
// effect before the growth. The first wait after a Reset is therefore close to
// InitialInterval.
type ExponentialBackOff struct {
	InitialInterval     time.Duration
	Multiplier          float64
	RandomizationFactor float64
	MaxInterval         time.Duration
	MaxElapsedTime      time.Duration
	Now                 func() time.Time
	Random              func() float64

	current time.Duration
	clock   elapsedClock
}

func NewExponentialBackOff() *ExponentialBackOff {
	b := &ExponentialBackOff{
		InitialInterval:     DefaultInitialInterval,
		Multiplier:          DefaultMultiplier,
		RandomizationFactor: DefaultRandomizationFactor,
		MaxInterval:         DefaultMaxInterval,
	}
	b.Reset()
	return b
}

func (b *ExponentialBackOff) NextBackOff() time.Duration {
	b.clock.now = b.Now
	if exceeded(&b.clock, b.MaxElapsedTime) {
		return Stop
	}
	if b.current <= 0 {
		b.current = b.initialInterval()
	}
	wait := randomizedInterval(b.randomizationFactor(), b.random(), b.current)
	b.incrementCurrent()
	return wait
}

// Reset restores the current interval to InitialInterval and clears the
// elapsed budget.
func (b *ExponentialBackOff) Reset() {
	b.current = b.initialInterval()
	b.clock.now = b.Now
	b.clock.reset()
}

// CurrentInterval is the un-jittered interval the next call draws around.
func (b *ExponentialBackOff) CurrentInterval() time.Duration {
	if b.current <= 0 {
		return b.initialInterval()
	}
	return b.current
}

func (b *ExponentialBackOff) incrementCurrent() {
	maxInterval := b.maxInterval()
	multiplier := b.multiplier()
	if float64(b.current) >= float64(maxInterval)/multiplier {
		b.current = maxInterval
		return
	}
	b.current = time.Duration(float64(b.current) * multiplier)
	if b.current > maxInterval {
		b.current = maxInterval
	}
}

// randomizedInterval draws uniformly from [current*(1-factor), current*(1+factor)]
// in whole milliseconds. The +1 keeps the result strictly positive.
func randomizedInterval(factor float64, random float64, current time.Duration) time.Duration {
	currentMillis := float64(current.Milliseconds())
	delta := factor * currentMillis
	minMillis := math.Max(currentMillis-delta, 0)
	maxMillis := currentMillis + delta
	value := math.Floor(minMillis+random*(maxMillis-minMillis+1)) + 1
	return time.Duration(value) * time.Millisecond
}

func (b *ExponentialBackOff) initialInterval() time.Duration {
	if b.InitialInterval <= 0 {
		return DefaultInitialInterval
	}
	return b.InitialInterval
}

func (b *ExponentialBackOff) maxInterval() time.Duration {
	if b.MaxInterval <= 0 {
		return DefaultMaxInterval
	}
	if initial := b.initialInterval(); b.MaxInterval < initial {
		return initial
	}
	return b.MaxInterval
}

func (b *ExponentialBackOff) multiplier() float64 {
	if b.Multiplier < 1 {
		return DefaultMultiplier
	}
	return b.Multiplier
}

func (b *ExponentialBackOff) randomizationFactor() float64 {
	switch {
	case b.RandomizationFactor < 0:
		return 0
	case b.RandomizationFactor > 1:
		return 1
	default:
		return b.RandomizationFactor
	}
}

func (b *ExponentialBackOff) random() float64 {
	if b.Random != nil {
		return b.Random()
	}
	return rand.Float64()
}

var _ BackOff = (*ExponentialBackOff)(nil)
