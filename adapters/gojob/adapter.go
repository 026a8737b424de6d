package gojob

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-botpoll/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	JobIDHandleUpdate = "botpoll.update.handle"

	ParamBotID      = "bot_id"
	ParamUpdateID   = "update_id"
	ParamUpdateKind = "update_kind"
	ParamPayload    = "payload"

	DedupPolicyDrop = "drop"
)

// RetryPolicy bounds redelivery of updates the worker-side consumer rejects.
type RetryPolicy struct {
	MaxAttempts     int
	Delay           time.Duration
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NackOptions returns the nack for the given 1-based attempt.
func (p RetryPolicy) NackOptions(reason string, attempt int) queue.NackOptions {
	out := queue.NackOptions{
		Delay:   p.Delay,
		Requeue: true,
		Reason:  strings.TrimSpace(reason),
	}
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		out.DeadLetter = p.DeadLetterOnMax
		if !out.DeadLetter {
			out.Requeue = true
		}
	}
	return out
}

// IdempotencyKey is update:<update_id>.
func IdempotencyKey(update *core.Update) string {
	if update == nil {
		return ""
	}
	return "update:" + strconv.FormatInt(update.UpdateID, 10)
}

// ToExecutionMessage encodes update as a go-job message.
func ToExecutionMessage(botID string, update *core.Update) (*job.ExecutionMessage, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(update)
	if err != nil {
		return nil, fmt.Errorf("gojob: encode update %d: %w", update.UpdateID, err)
	}
	return &job.ExecutionMessage{
		JobID:      JobIDHandleUpdate,
		ScriptPath: JobIDHandleUpdate,
		Parameters: map[string]any{
			ParamBotID:      strings.TrimSpace(botID),
			ParamUpdateID:   update.UpdateID,
			ParamUpdateKind: string(update.Kind()),
			ParamPayload:    string(payload),
		},
		IdempotencyKey: IdempotencyKey(update),
		DedupPolicy:    job.DeduplicationPolicy(DedupPolicyDrop),
	}, nil
}

// FromExecutionMessage decodes the update carried by msg.
func FromExecutionMessage(msg *job.ExecutionMessage) (string, *core.Update, error) {
	if msg == nil {
		return "", nil, fmt.Errorf("gojob: execution message is required")
	}
	if strings.TrimSpace(msg.JobID) != JobIDHandleUpdate {
		return "", nil, fmt.Errorf("gojob: unexpected job id %q", msg.JobID)
	}
	raw, ok := msg.Parameters[ParamPayload].(string)
	if !ok || strings.TrimSpace(raw) == "" {
		return "", nil, fmt.Errorf("gojob: message has no update payload")
	}
	update := &core.Update{}
	if err := json.Unmarshal([]byte(raw), update); err != nil {
		return "", nil, fmt.Errorf("gojob: decode update payload: %w", err)
	}
	if err := update.Validate(); err != nil {
		return "", nil, err
	}
	botID, _ := msg.Parameters[ParamBotID].(string)
	return strings.TrimSpace(botID), update, nil
}

// JobConsumer hands every update to a go-job queue. An enqueue failure
// rejects the update, which stops the polling engine.
type JobConsumer struct {
	enqueuer queue.Enqueuer
	botID    string
	logger   glog.Logger
}

type ConsumerOption func(*JobConsumer)

func WithBotID(botID string) ConsumerOption {
	return func(c *JobConsumer) {
		c.botID = strings.TrimSpace(botID)
	}
}

func WithLogger(logger glog.Logger) ConsumerOption {
	return func(c *JobConsumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewJobConsumer(enqueuer queue.Enqueuer, opts ...ConsumerOption) *JobConsumer {
	consumer := &JobConsumer{enqueuer: enqueuer, logger: glog.Nop()}
	for _, opt := range opts {
		if opt != nil {
			opt(consumer)
		}
	}
	return consumer
}

func (c *JobConsumer) Handle(ctx context.Context, update *core.Update) bool {
	if c == nil || c.enqueuer == nil {
		return false
	}
	msg, err := ToExecutionMessage(c.botID, update)
	if err != nil {
		c.logger.Error("gojob: rejecting update", "error", err)
		return false
	}
	if err := c.enqueuer.Enqueue(ctx, msg); err != nil {
		c.logger.Error("gojob: enqueue failed",
			"update_id", update.UpdateID,
			"idempotency_key", msg.IdempotencyKey,
			"error", err,
		)
		return false
	}
	return true
}

// Worker drains queued updates into a downstream consumer, acking accepted
// updates and nacking rejected ones under a RetryPolicy.
type Worker struct {
	dequeuer queue.Dequeuer
	consumer core.Consumer
	policy   RetryPolicy
	logger   glog.Logger

	mu       sync.Mutex
	attempts map[string]int
}

func NewWorker(dequeuer queue.Dequeuer, consumer core.Consumer, policy RetryPolicy, logger glog.Logger) *Worker {
	if logger == nil {
		logger = glog.Nop()
	}
	return &Worker{
		dequeuer: dequeuer,
		consumer: consumer,
		policy:   policy,
		logger:   logger,
		attempts: map[string]int{},
	}
}

// ProcessNext handles one delivery.
func (w *Worker) ProcessNext(ctx context.Context) error {
	if w == nil || w.dequeuer == nil || w.consumer == nil {
		return fmt.Errorf("gojob: worker is not configured")
	}
	delivery, err := w.dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	if delivery == nil {
		return nil
	}
	msg := delivery.Message()
	_, update, err := FromExecutionMessage(msg)
	if err != nil {
		w.logger.Warn("gojob: dead-lettering undecodable message", "error", err)
		return delivery.Nack(ctx, queue.NackOptions{DeadLetter: true, Reason: err.Error()})
	}

	key := msg.IdempotencyKey
	if w.consumer.Handle(ctx, update) {
		w.forget(key)
		return delivery.Ack(ctx)
	}
	attempt := w.recordAttempt(key)
	opts := w.policy.NackOptions("consumer rejected update", attempt)
	if !opts.Requeue {
		w.forget(key)
	}
	w.logger.Warn("gojob: consumer rejected update",
		"update_id", update.UpdateID,
		"attempt", attempt,
		"requeue", opts.Requeue,
		"dead_letter", opts.DeadLetter,
	)
	return delivery.Nack(ctx, opts)
}

func (w *Worker) recordAttempt(key string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attempts[key]++
	return w.attempts[key]
}

func (w *Worker) forget(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.attempts, key)
}

var _ core.Consumer = (*JobConsumer)(nil)
