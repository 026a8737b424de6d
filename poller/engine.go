// Package poller drives long-polling delivery: it owns the update cursor,
// fetches batches from a core.Source, hands updates to a single consumer in
// order, and waits on back-off strategies between unproductive polls.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-botpoll/backoff"
	"github.com/goliatone/go-botpoll/core"
	"github.com/google/uuid"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	default:
		return "stopped"
	}
}

var (
	ErrAlreadyRunning   = core.ErrAlreadyRunning
	ErrStatusProbe      = core.ErrStatusProbe
	ErrWebhookActive    = core.ErrWebhookActive
	ErrBackOffExhausted = core.ErrBackOffExhausted
	ErrConsumerFailed   = core.ErrConsumerFailed
)

// ConsumerError ends a run whose consumer rejected an update.
type ConsumerError struct {
	UpdateID int64
}

func (e *ConsumerError) Error() string {
	return fmt.Sprintf("poller: consumer failed on update %d", e.UpdateID)
}

func (e *ConsumerError) Unwrap() error {
	return ErrConsumerFailed
}

// BackOffError ends a run whose back-off strategy gave up.
type BackOffError struct {
	Reason string
	Last   error
}

func (e *BackOffError) Error() string {
	if e.Last != nil {
		return fmt.Sprintf("poller: %s back-off exhausted: %v", e.Reason, e.Last)
	}
	return fmt.Sprintf("poller: %s back-off exhausted", e.Reason)
}

func (e *BackOffError) Unwrap() []error {
	if e.Last != nil {
		return []error{ErrBackOffExhausted, e.Last}
	}
	return []error{ErrBackOffExhausted}
}

// run is the state of one Start..stop cycle.
type run struct {
	id         string
	done       chan struct{}
	cancelWait context.CancelFunc
	stopped    bool
}

type Engine struct {
	source          core.Source
	consumer        core.Consumer
	name            string
	limit           int
	timeoutSeconds  int
	allowedUpdates  []core.UpdateType
	sink            core.CursorSink
	redeliverFailed bool
	metrics         core.MetricsRecorder
	logger          core.Logger
	sleep           Sleeper

	backOffMu    sync.Mutex
	errorBackOff backoff.BackOff
	emptyBackOff backoff.BackOff

	mu        sync.Mutex
	state     State
	offset    int64
	hasOffset bool
	current   *run
	lastErr   error
}

func New(source core.Source, opts ...Option) (*Engine, error) {
	if source == nil {
		return nil, fmt.Errorf("poller: source is required")
	}
	builder := defaultEngineBuilder()
	for _, opt := range opts {
		if opt != nil {
			opt(&builder)
		}
	}
	if err := core.ValidatePollLimit(builder.limit); err != nil {
		return nil, err
	}
	if builder.timeoutSeconds <= 0 {
		return nil, fmt.Errorf("poller: timeout seconds must be positive")
	}
	for _, kind := range builder.allowedUpdates {
		if !kind.Valid() {
			return nil, fmt.Errorf("poller: allowed update type %q is invalid", kind)
		}
	}
	if builder.initialOffset != nil && *builder.initialOffset < 0 {
		return nil, fmt.Errorf("poller: initial offset must not be negative")
	}

	engine := &Engine{
		source:          source,
		consumer:        builder.consumer,
		name:            builder.name,
		limit:           builder.limit,
		timeoutSeconds:  builder.timeoutSeconds,
		allowedUpdates:  builder.allowedUpdates,
		sink:            builder.sink,
		redeliverFailed: builder.redeliverFailed,
		metrics:         builder.metrics,
		logger:          builder.resolveLogger(),
		sleep:           builder.sleep,
		errorBackOff:    builder.errorBackOff,
		emptyBackOff:    builder.emptyBackOff,
	}
	if builder.initialOffset != nil {
		engine.offset = *builder.initialOffset
		engine.hasOffset = true
	}
	engine.resetBackOffs()
	return engine, nil
}

// Start probes the source and, when long polling is available, runs the
// delivery loop on its own goroutine. Cancelling ctx stops the loop at its
// next checkpoint.
func (e *Engine) Start(ctx context.Context) error {
	if e == nil {
		return fmt.Errorf("poller: engine is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	waitCtx, cancelWait := context.WithCancel(ctx)
	current := &run{
		id:         uuid.NewString(),
		done:       make(chan struct{}),
		cancelWait: cancelWait,
	}

	e.mu.Lock()
	if e.state != StateStopped {
		e.mu.Unlock()
		cancelWait()
		return ErrAlreadyRunning
	}
	previous := e.current
	e.state = StateStarting
	e.current = current
	e.lastErr = nil
	e.mu.Unlock()

	if previous != nil {
		<-previous.done
	}

	status, err := e.source.GetStatus(ctx)
	if err != nil {
		probeErr := fmt.Errorf("%w: %w", ErrStatusProbe, err)
		e.log(ctx, current, core.LevelError, "poller: status probe failed", map[string]any{"error": err.Error()})
		e.finish(current, probeErr)
		return probeErr
	}
	if status.WebhookActive() {
		e.log(ctx, current, core.LevelError, "poller: webhook is set, refusing to long poll", map[string]any{
			"webhook_url":          status.WebhookURL,
			"pending_update_count": status.PendingUpdateCount,
		})
		e.finish(current, ErrWebhookActive)
		return ErrWebhookActive
	}

	e.mu.Lock()
	if current.stopped {
		e.mu.Unlock()
		e.finish(current, nil)
		return nil
	}
	e.state = StateRunning
	e.mu.Unlock()

	e.log(ctx, current, core.LevelInfo, "poller: started", map[string]any{
		"pending_update_count": status.PendingUpdateCount,
	})
	go e.loop(ctx, waitCtx, current)
	return nil
}

// Stop requests the loop to end. A pending back-off wait is woken; an
// in-flight fetch is allowed to complete and its batch is discarded. Safe in
// any state.
func (e *Engine) Stop() {
	if e == nil {
		return
	}
	e.mu.Lock()
	current := e.current
	if current != nil && !current.stopped {
		current.stopped = true
		current.cancelWait()
	}
	e.state = StateStopped
	e.mu.Unlock()
	e.resetBackOffs()
}

func (e *Engine) State() State {
	if e == nil {
		return StateStopped
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Offset returns the cursor and whether it has been set.
func (e *Engine) Offset() (int64, bool) {
	if e == nil {
		return 0, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.offset, e.hasOffset
}

// Done is closed when the current (or last) run ends. Before the first Start
// it returns a closed channel.
func (e *Engine) Done() <-chan struct{} {
	if e != nil {
		e.mu.Lock()
		current := e.current
		e.mu.Unlock()
		if current != nil {
			return current.done
		}
	}
	closed := make(chan struct{})
	close(closed)
	return closed
}

// Err reports why the last run ended; nil after Stop or context cancellation.
func (e *Engine) Err() error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// RunID identifies the current or last run in logs.
func (e *Engine) RunID() string {
	if e == nil {
		return ""
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return ""
	}
	return e.current.id
}

func (e *Engine) loop(ctx context.Context, waitCtx context.Context, current *run) {
	err := e.deliver(ctx, waitCtx, current)
	if err != nil {
		e.log(ctx, current, core.LevelError, "poller: stopped on error", map[string]any{"error": err.Error()})
	} else {
		e.log(ctx, current, core.LevelInfo, "poller: stopped", nil)
	}
	e.finish(current, err)
}

func (e *Engine) deliver(ctx context.Context, waitCtx context.Context, current *run) error {
	for {
		if e.shouldStop(ctx, current) {
			return nil
		}
		req := e.request()
		updates, err := e.source.GetUpdates(ctx, req)
		if e.shouldStop(ctx, current) {
			return nil
		}
		if err != nil {
			core.RecordCounter(ctx, e.metrics, core.MetricFetchErrors, 1, e.tags())
			wait := e.nextBackOff(e.errorBackOff)
			e.log(ctx, current, core.LevelWarn, "poller: fetch failed", map[string]any{
				"error":   err.Error(),
				"offset":  req.Offset,
				"wait_ms": wait.Milliseconds(),
			})
			if backoff.Exhausted(wait) {
				return &BackOffError{Reason: "error", Last: err}
			}
			if !e.wait(waitCtx, wait) {
				return nil
			}
			continue
		}

		if len(updates) == 0 {
			core.RecordCounter(ctx, e.metrics, core.MetricEmptyPolls, 1, e.tags())
			wait := e.nextBackOff(e.emptyBackOff)
			if backoff.Exhausted(wait) {
				return &BackOffError{Reason: "empty batch"}
			}
			e.log(ctx, current, core.LevelDebug, "poller: empty batch", map[string]any{"wait_ms": wait.Milliseconds()})
			if !e.wait(waitCtx, wait) {
				return nil
			}
			continue
		}

		e.resetBackOffs()
		core.RecordCounter(ctx, e.metrics, core.MetricUpdatesFetched, int64(len(updates)), e.tags())
		for _, update := range updates {
			if update == nil {
				continue
			}
			if e.shouldStop(ctx, current) {
				return nil
			}
			if !e.consumer.Handle(ctx, update) {
				return e.consumerFailed(ctx, current, update)
			}
			core.RecordCounter(ctx, e.metrics, core.MetricUpdatesProcessed, 1, e.kindTags(update))
			e.advance(ctx, current, update.UpdateID+1)
		}
	}
}

func (e *Engine) consumerFailed(ctx context.Context, current *run, update *core.Update) error {
	core.RecordCounter(ctx, e.metrics, core.MetricUpdatesFailed, 1, e.kindTags(update))
	next := update.UpdateID + 1
	if e.redeliverFailed {
		next = update.UpdateID
	}
	e.advance(ctx, current, next)
	failure := &ConsumerError{UpdateID: update.UpdateID}
	e.log(ctx, current, core.LevelError, "poller: consumer rejected update, stopping", map[string]any{
		"update_id":   update.UpdateID,
		"update_kind": string(update.Kind()),
		"redeliver":   e.redeliverFailed,
	})
	return failure
}

// advance moves the cursor forward; it never moves it back.
func (e *Engine) advance(ctx context.Context, current *run, next int64) {
	e.mu.Lock()
	if e.hasOffset && next <= e.offset {
		e.mu.Unlock()
		return
	}
	e.offset = next
	e.hasOffset = true
	e.mu.Unlock()

	if e.sink == nil {
		return
	}
	if err := e.sink.SaveCursor(ctx, next); err != nil {
		e.log(ctx, current, core.LevelWarn, "poller: cursor sink failed", map[string]any{
			"offset": next,
			"error":  err.Error(),
		})
	}
}

func (e *Engine) request() core.UpdatesRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return core.UpdatesRequest{
		Offset:         e.offset,
		HasOffset:      e.hasOffset,
		Limit:          e.limit,
		TimeoutSeconds: e.timeoutSeconds,
		AllowedUpdates: e.allowedUpdates,
	}
}

func (e *Engine) shouldStop(ctx context.Context, current *run) bool {
	if ctx.Err() != nil {
		return true
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return current.stopped
}

// wait sleeps for delay and reports whether the loop should continue.
func (e *Engine) wait(waitCtx context.Context, delay time.Duration) bool {
	core.RecordHistogram(waitCtx, e.metrics, core.MetricBackOffWait, float64(delay.Milliseconds()), e.tags())
	if err := e.sleep(waitCtx, delay); err != nil {
		return false
	}
	return waitCtx.Err() == nil
}

func (e *Engine) nextBackOff(strategy backoff.BackOff) time.Duration {
	e.backOffMu.Lock()
	defer e.backOffMu.Unlock()
	return strategy.NextBackOff()
}

func (e *Engine) resetBackOffs() {
	e.backOffMu.Lock()
	defer e.backOffMu.Unlock()
	e.errorBackOff.Reset()
	e.emptyBackOff.Reset()
}

func (e *Engine) finish(current *run, err error) {
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	e.mu.Lock()
	if e.current == current {
		e.state = StateStopped
		e.lastErr = err
	}
	current.stopped = true
	e.mu.Unlock()
	current.cancelWait()
	e.resetBackOffs()
	close(current.done)
}

func (e *Engine) tags() map[string]string {
	tags := map[string]string{}
	if e.name != "" {
		tags["bot_id"] = e.name
	}
	return tags
}

func (e *Engine) kindTags(update *core.Update) map[string]string {
	tags := e.tags()
	tags["update_kind"] = string(update.Kind())
	return tags
}

func (e *Engine) log(ctx context.Context, current *run, level core.LogLevel, message string, fields map[string]any) {
	fields = core.CloneFields(fields)
	if current != nil {
		fields["run_id"] = current.id
	}
	if e.name != "" {
		fields["bot_id"] = e.name
	}
	if _, ok := fields["offset"]; !ok {
		if offset, set := e.Offset(); set {
			fields["offset"] = offset
		}
	}
	core.LogEvent(ctx, e.logger, level, message, fields)
}
