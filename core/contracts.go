package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Status is the remote delivery configuration reported by the status probe.
type Status struct {
	WebhookURL         string `json:"url"`
	HasCustomCert      bool   `json:"has_custom_certificate"`
	PendingUpdateCount int    `json:"pending_update_count"`
	LastErrorDate      int64  `json:"last_error_date,omitempty"`
	LastErrorMessage   string `json:"last_error_message,omitempty"`
	MaxConnections     int    `json:"max_connections,omitempty"`
}

// WebhookActive reports whether push delivery is configured, which makes
// long polling unavailable.
func (s Status) WebhookActive() bool {
	return s.WebhookURL != ""
}

// UpdatesRequest carries the parameters of one fetch. A zero Offset with
// HasOffset false means the cursor is unset.
type UpdatesRequest struct {
	Offset         int64
	HasOffset      bool
	Limit          int
	TimeoutSeconds int
	AllowedUpdates []UpdateType
}

// Source is the remote side of long polling.
type Source interface {
	GetStatus(ctx context.Context) (Status, error)
	GetUpdates(ctx context.Context, req UpdatesRequest) ([]*Update, error)
}

// Consumer processes one update. Returning false stops the engine.
type Consumer interface {
	Handle(ctx context.Context, update *Update) bool
}

type ConsumerFunc func(ctx context.Context, update *Update) bool

func (fn ConsumerFunc) Handle(ctx context.Context, update *Update) bool {
	if fn == nil {
		return true
	}
	return fn(ctx, update)
}

// NopConsumer accepts every update.
type NopConsumer struct{}

func (NopConsumer) Handle(context.Context, *Update) bool { return true }

// CursorSink is notified after the engine advances its cursor.
type CursorSink interface {
	SaveCursor(ctx context.Context, offset int64) error
}

type CursorSinkFunc func(ctx context.Context, offset int64) error

func (fn CursorSinkFunc) SaveCursor(ctx context.Context, offset int64) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, offset)
}

// CursorStore persists cursors per bot.
type CursorStore interface {
	LoadCursor(ctx context.Context, botID string) (int64, bool, error)
	SaveCursor(ctx context.Context, botID string, offset int64) error
}

// BoundCursorSink adapts a CursorStore to the sink of a single bot.
type BoundCursorSink struct {
	Store CursorStore
	BotID string
}

func (s BoundCursorSink) SaveCursor(ctx context.Context, offset int64) error {
	if s.Store == nil {
		return nil
	}
	return s.Store.SaveCursor(ctx, s.BotID, offset)
}

// EngineStatus is a point-in-time view of one bot's polling engine.
type EngineStatus struct {
	BotID     string           `json:"bot_id"`
	State     string           `json:"state"`
	RunID     string           `json:"run_id,omitempty"`
	Offset    int64            `json:"offset"`
	HasOffset bool             `json:"has_offset"`
	LastError string           `json:"last_error,omitempty"`
	Throttles []ThrottleStatus `json:"throttles,omitempty"`
}

// ThrottleStatus reports the advised wait last recorded for a method.
type ThrottleStatus struct {
	Method         string        `json:"method"`
	RetryAfter     time.Duration `json:"retry_after"`
	ThrottledUntil *time.Time    `json:"throttled_until,omitempty"`
	Throttles      int           `json:"throttles"`
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

var (
	_ Consumer   = NopConsumer{}
	_ Consumer   = ConsumerFunc(nil)
	_ CursorSink = CursorSinkFunc(nil)
	_ CursorSink = BoundCursorSink{}
)
