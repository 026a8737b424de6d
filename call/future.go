package call

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/goliatone/go-botpoll/backoff"
	"github.com/goliatone/go-botpoll/core"
	"github.com/goliatone/go-botpoll/ratelimit"
	"github.com/goliatone/go-botpoll/transport"
)

// Response is the outcome of one attempt that reached the remote side.
type Response struct {
	Method      string
	StatusCode  int
	Description string
	Body        []byte
	Headers     map[string]string
}

// Attempt performs one invocation. A non-nil error means no response was
// obtained.
type Attempt func(ctx context.Context) (Response, error)

// Decoder turns a successful response body into the caller's value.
type Decoder[T any] func(body []byte) (T, error)

// Future is the pending result of Invoke.
type Future[T any] struct {
	done   chan struct{}
	once   sync.Once
	cancel context.CancelFunc
	value  T
	err    error
}

// Done is closed once the future resolves.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the future resolves or ctx is done. Abandoning the wait
// does not cancel the invocation; use Cancel for that.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Cancel resolves the future with context.Canceled, unless it already
// resolved, and cancels the in-flight attempt and any pending wait.
func (f *Future[T]) Cancel() {
	var zero T
	f.resolve(zero, context.Canceled)
	if f.cancel != nil {
		f.cancel()
	}
}

func (f *Future[T]) resolve(value T, err error) {
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
	})
}

// Invoke runs attempt until it reaches a terminal outcome and returns a
// Future for that outcome. Each invocation owns its own state.
func Invoke[T any](ctx context.Context, attempt Attempt, decode Decoder[T], opts ...Option) *Future[T] {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	future := &Future[T]{done: make(chan struct{}), cancel: cancel}

	if attempt == nil || decode == nil {
		cancel()
		var zero T
		future.resolve(zero, fmt.Errorf("call: attempt and decoder are required"))
		return future
	}

	r := &runner[T]{cfg: cfg, attempt: attempt, decode: decode}
	if cfg.newReissue != nil {
		r.reissue = cfg.newReissue()
	}
	go func() {
		defer cancel()
		value, err := r.run(runCtx)
		future.resolve(value, err)
	}()
	return future
}

// Do invokes and awaits in one step.
func Do[T any](ctx context.Context, attempt Attempt, decode Decoder[T], opts ...Option) (T, error) {
	future := Invoke(ctx, attempt, decode, opts...)
	value, err := future.Await(ctx)
	if err != nil && ctx != nil && ctx.Err() != nil {
		future.Cancel()
	}
	return value, err
}

type runner[T any] struct {
	cfg     config
	attempt Attempt
	decode  Decoder[T]
	reissue backoff.BackOff
}

func (r *runner[T]) run(ctx context.Context) (T, error) {
	var zero T
	for attempts := 1; ; attempts++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		res, err := r.attempt(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return zero, ctxErr
			}
			failure := &TransportError{
				Method:  r.cfg.method,
				Timeout: transport.IsTimeout(err),
				Cause:   err,
			}
			if !r.retryTransport(failure) {
				r.logFailure(ctx, core.LevelError, "call: terminal transport failure", failure.Method, 0, failure.Error(), attempts)
				return zero, failure
			}
			r.logFailure(ctx, core.LevelWarn, "call: reissuing after transport failure", failure.Method, 0, failure.Error(), attempts)
			if err := r.pace(ctx, failure); err != nil {
				return zero, err
			}
			continue
		}

		method := strings.TrimSpace(res.Method)
		if method == "" {
			method = r.cfg.method
		}
		status := res.StatusCode
		switch {
		case status >= 200 && status < 300:
			if len(res.Body) == 0 {
				r.logFailure(ctx, core.LevelError, "call: terminal empty response", method, status, res.Description, attempts)
				return zero, fmt.Errorf("%w: %s", ErrMissingBody, methodOrNA(method))
			}
			value, err := r.decode(res.Body)
			if err != nil {
				r.logFailure(ctx, core.LevelError, "call: terminal decode failure", method, status, err.Error(), attempts)
				return zero, &DecodeError{Method: method, Cause: err}
			}
			if r.cfg.observer != nil {
				_ = r.cfg.observer.Recovered(ctx, method)
			}
			return value, nil

		case status == http.StatusConflict:
			r.logFailure(ctx, core.LevelError, "call: terminal conflict", method, status, res.Description, attempts)
			return zero, &APIError{Method: method, StatusCode: status, Description: res.Description}

		case status == http.StatusTooManyRequests:
			delay := ratelimit.ParseRetryAfter(res.Description, res.Headers, r.cfg.now())
			r.logFailure(ctx, core.LevelWarn, "call: rate limited, waiting retry-after", method, status, res.Description, attempts,
				"retry_after_ms", delay.Milliseconds())
			core.RecordCounter(ctx, r.cfg.metrics, core.MetricCallRetries, 1, map[string]string{"method": method, "reason": "rate_limited"})
			if r.cfg.observer != nil {
				_ = r.cfg.observer.Throttled(ctx, method, delay)
			}
			if err := r.cfg.sleep(ctx, delay); err != nil {
				return zero, err
			}
			continue

		case status >= 400 && status < 500:
			r.logFailure(ctx, core.LevelError, "call: terminal client error", method, status, res.Description, attempts)
			return zero, &APIError{Method: method, StatusCode: status, Description: res.Description}

		default:
			failure := &APIError{Method: method, StatusCode: status, Description: res.Description}
			if !r.retryServer() {
				r.logFailure(ctx, core.LevelError, "call: terminal server error", method, status, res.Description, attempts)
				return zero, failure
			}
			r.logFailure(ctx, core.LevelWarn, "call: reissuing after server error", method, status, res.Description, attempts)
			if err := r.pace(ctx, failure); err != nil {
				return zero, err
			}
		}
	}
}

func (r *runner[T]) retryServer() bool {
	return !r.cfg.strict
}

func (r *runner[T]) retryTransport(failure *TransportError) bool {
	if failure.Timeout {
		return false
	}
	if r.cfg.policy == PolicySymmetric {
		return !r.cfg.strict
	}
	return r.cfg.strict
}

// pace waits before a reissue. It returns last when the reissue strategy
// gives up and the context error when the wait is interrupted.
func (r *runner[T]) pace(ctx context.Context, last error) error {
	core.RecordCounter(ctx, r.cfg.metrics, core.MetricCallRetries, 1, map[string]string{"method": methodOrNA(r.cfg.method), "reason": "reissue"})
	if r.reissue == nil {
		return ctx.Err()
	}
	delay := r.reissue.NextBackOff()
	if backoff.Exhausted(delay) {
		return last
	}
	return r.cfg.sleep(ctx, delay)
}

func (r *runner[T]) logFailure(
	ctx context.Context,
	level core.LogLevel,
	message string,
	method string,
	statusCode int,
	description string,
	attempt int,
	extra ...any,
) {
	fields := map[string]any{
		"method":      methodOrNA(method),
		"status_code": "NA",
		"description": descriptionOrNA(description),
		"attempt":     attempt,
		"strict":      r.cfg.strict,
		"policy":      r.cfg.policy.String(),
	}
	if statusCode > 0 {
		fields["status_code"] = statusCode
	}
	for index := 0; index+1 < len(extra); index += 2 {
		if key, ok := extra[index].(string); ok {
			fields[key] = extra[index+1]
		}
	}
	core.LogEvent(ctx, r.cfg.logger, level, message, fields)
}

// IsTerminalConflict reports whether err is a 409 rejection.
func IsTerminalConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Conflict()
}

var _ Sleeper = core.Wait
