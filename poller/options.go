package poller

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-botpoll/backoff"
	"github.com/goliatone/go-botpoll/core"
	glog "github.com/goliatone/go-logger/glog"
)

// Sleeper blocks for d or until ctx is done. Back-off waits run under a
// context that Stop cancels.
type Sleeper func(ctx context.Context, d time.Duration) error

type engineBuilder struct {
	name            string
	limit           int
	timeoutSeconds  int
	allowedUpdates  []core.UpdateType
	errorBackOff    backoff.BackOff
	emptyBackOff    backoff.BackOff
	consumer        core.Consumer
	initialOffset   *int64
	sink            core.CursorSink
	redeliverFailed bool
	metrics         core.MetricsRecorder
	logger          core.Logger
	loggerProvider  core.LoggerProvider
	sleep           Sleeper
}

type Option func(*engineBuilder)

// WithName labels logs and metrics, typically with the bot id.
func WithName(name string) Option {
	return func(b *engineBuilder) {
		b.name = strings.TrimSpace(name)
	}
}

// WithLimit caps the batch size; 0 leaves it to the server.
func WithLimit(limit int) Option {
	return func(b *engineBuilder) {
		b.limit = limit
	}
}

func WithTimeoutSeconds(seconds int) Option {
	return func(b *engineBuilder) {
		b.timeoutSeconds = seconds
	}
}

// WithAllowedUpdates restricts delivered variants. No arguments means all.
func WithAllowedUpdates(kinds ...core.UpdateType) Option {
	return func(b *engineBuilder) {
		if len(kinds) == 0 {
			b.allowedUpdates = nil
			return
		}
		b.allowedUpdates = append([]core.UpdateType(nil), kinds...)
	}
}

func WithErrorBackOff(strategy backoff.BackOff) Option {
	return func(b *engineBuilder) {
		if strategy != nil {
			b.errorBackOff = strategy
		}
	}
}

func WithEmptyBackOff(strategy backoff.BackOff) Option {
	return func(b *engineBuilder) {
		if strategy != nil {
			b.emptyBackOff = strategy
		}
	}
}

func WithConsumer(consumer core.Consumer) Option {
	return func(b *engineBuilder) {
		if consumer != nil {
			b.consumer = consumer
		}
	}
}

// WithInitialOffset seeds the cursor, usually from a persisted value.
func WithInitialOffset(offset int64) Option {
	return func(b *engineBuilder) {
		b.initialOffset = &offset
	}
}

// WithCursorSink is notified after every cursor advance. Sink errors are
// logged and do not stop the engine.
func WithCursorSink(sink core.CursorSink) Option {
	return func(b *engineBuilder) {
		b.sink = sink
	}
}

// WithRedeliverFailed leaves the cursor at the update a consumer rejected, so
// the next run sees it again.
func WithRedeliverFailed(redeliver bool) Option {
	return func(b *engineBuilder) {
		b.redeliverFailed = redeliver
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(b *engineBuilder) {
		if recorder != nil {
			b.metrics = recorder
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(b *engineBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(b *engineBuilder) {
		b.loggerProvider = provider
	}
}

func WithSleeper(sleep Sleeper) Option {
	return func(b *engineBuilder) {
		if sleep != nil {
			b.sleep = sleep
		}
	}
}

func defaultEngineBuilder() engineBuilder {
	return engineBuilder{
		timeoutSeconds: core.DefaultPollTimeout,
		errorBackOff:   backoff.NewExponentialBackOff(),
		emptyBackOff:   backoff.NewFixedBackOff(backoff.DefaultFixedInterval),
		consumer:       core.NopConsumer{},
		metrics:        core.NopMetricsRecorder{},
		sleep:          core.Wait,
	}
}

func (b engineBuilder) resolveLogger() core.Logger {
	name := "botpoll.poller"
	if b.name != "" {
		name += "." + b.name
	}
	_, logger := glog.Resolve(name, b.loggerProvider, b.logger)
	return logger
}

