package call

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-botpoll/backoff"
	"github.com/goliatone/go-botpoll/core"
	glog "github.com/goliatone/go-logger/glog"
)

// Policy selects how the strict flag applies to server and transport
// failures.
type Policy int

const (
	// PolicyAsymmetric: strict makes server failures terminal but transport
	// failures retryable; non-strict does the opposite.
	PolicyAsymmetric Policy = iota
	// PolicySymmetric: strict never reissues; non-strict reissues server and
	// non-timeout transport failures alike.
	PolicySymmetric
)

func (p Policy) String() string {
	switch p {
	case PolicySymmetric:
		return "symmetric"
	default:
		return "asymmetric"
	}
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// ThrottleObserver is told about server-advised waits and recoveries.
type ThrottleObserver interface {
	Throttled(ctx context.Context, method string, retryAfter time.Duration) error
	Recovered(ctx context.Context, method string) error
}

type config struct {
	strict     bool
	policy     Policy
	method     string
	logger     core.Logger
	metrics    core.MetricsRecorder
	sleep      Sleeper
	now        func() time.Time
	newReissue func() backoff.BackOff
	observer   ThrottleObserver
}

type Option func(*config)

func WithStrict(strict bool) Option {
	return func(c *config) {
		c.strict = strict
	}
}

func WithPolicy(policy Policy) Option {
	return func(c *config) {
		c.policy = policy
	}
}

// WithMethod names the invocation in logs when responses do not.
func WithMethod(method string) Option {
	return func(c *config) {
		c.method = strings.TrimSpace(method)
	}
}

func WithLogger(logger core.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(c *config) {
		if recorder != nil {
			c.metrics = recorder
		}
	}
}

func WithSleeper(sleep Sleeper) Option {
	return func(c *config) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}

// WithReissueBackOff paces reissues of server and transport failures. The
// factory is called once per invocation. Without it reissues are immediate.
// A Stop from the strategy makes the last failure terminal.
func WithReissueBackOff(newBackOff func() backoff.BackOff) Option {
	return func(c *config) {
		c.newReissue = newBackOff
	}
}

func WithThrottleObserver(observer ThrottleObserver) Option {
	return func(c *config) {
		c.observer = observer
	}
}

func defaultConfig() config {
	return config{
		policy:  PolicyAsymmetric,
		logger:  glog.Nop(),
		metrics: core.NopMetricsRecorder{},
		sleep:   core.Wait,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

