package gocommand

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-botpoll/command"
	"github.com/goliatone/go-botpoll/core"
	"github.com/goliatone/go-botpoll/query"

	gocmd "github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

// ValidateMessageContract requires a non-empty Type() and runs Validate()
// when the message has one.
func ValidateMessageContract(msg any) error {
	if err := gocmd.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(gocmd.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

type RegistryAdapter struct {
	registry *gocmd.Registry
}

func NewRegistryAdapter(registry *gocmd.Registry) *RegistryAdapter {
	if registry == nil {
		registry = gocmd.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *gocmd.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) configured() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return nil
}

// Register adds a commander or querier to the registry.
func (a *RegistryAdapter) Register(handler any) error {
	if err := a.configured(); err != nil {
		return err
	}
	return a.registry.RegisterCommand(handler)
}

func (a *RegistryAdapter) AddResolver(key string, resolver gocmd.Resolver) error {
	if err := a.configured(); err != nil {
		return err
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

// AddQueueResolver mirrors registered commands into a go-job queue registry
// so they can also run from a queue worker.
func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	if a == nil || a.registry == nil {
		return false
	}
	return a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if err := a.configured(); err != nil {
		return err
	}
	return a.registry.Initialize()
}

// Subscriptions is the set of dispatcher subscriptions created by
// RegisterBotHandlers.
type Subscriptions []commanddispatcher.Subscription

func (s Subscriptions) Unsubscribe() {
	for _, sub := range s {
		if sub != nil {
			sub.Unsubscribe()
		}
	}
}

// BotHandlers are the runtime collaborators behind the botpoll commands and
// queries. Nil members skip the handlers that need them.
type BotHandlers struct {
	Controller command.PollingController
	Cursors    command.CursorWriter
	Status     query.EngineStatusReader
	Reader     query.CursorReader
}

// RegisterBotHandlers registers and subscribes every botpoll command and
// query the given handlers can serve. On error nothing stays subscribed.
func RegisterBotHandlers(adapter *RegistryAdapter, handlers BotHandlers, runnerOpts ...runner.Option) (Subscriptions, error) {
	if err := adapter.configured(); err != nil {
		return nil, err
	}
	var subs Subscriptions
	fail := func(err error) (Subscriptions, error) {
		subs.Unsubscribe()
		return nil, err
	}
	if handlers.Controller != nil {
		sub, err := registerCommand[command.StartPollingMessage](adapter, command.NewStartPollingCommand(handlers.Controller), runnerOpts...)
		if err != nil {
			return fail(err)
		}
		subs = append(subs, sub)
		sub, err = registerCommand[command.StopPollingMessage](adapter, command.NewStopPollingCommand(handlers.Controller), runnerOpts...)
		if err != nil {
			return fail(err)
		}
		subs = append(subs, sub)
	}
	if handlers.Cursors != nil {
		sub, err := registerCommand[command.SaveCursorMessage](adapter, command.NewSaveCursorCommand(handlers.Cursors), runnerOpts...)
		if err != nil {
			return fail(err)
		}
		subs = append(subs, sub)
	}
	if handlers.Status != nil {
		sub, err := registerQuery[query.EngineStatusMessage, core.EngineStatus](adapter, query.NewEngineStatusQuery(handlers.Status), runnerOpts...)
		if err != nil {
			return fail(err)
		}
		subs = append(subs, sub)
	}
	if handlers.Reader != nil {
		sub, err := registerQuery[query.LoadCursorMessage, query.CursorResult](adapter, query.NewLoadCursorQuery(handlers.Reader), runnerOpts...)
		if err != nil {
			return fail(err)
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func registerCommand[T any](adapter *RegistryAdapter, cmd gocmd.Commander[T], runnerOpts ...runner.Option) (commanddispatcher.Subscription, error) {
	sub := commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.Register(cmd); err != nil {
		if sub != nil {
			sub.Unsubscribe()
		}
		return nil, err
	}
	return sub, nil
}

func registerQuery[T any, R any](adapter *RegistryAdapter, qry gocmd.Querier[T, R], runnerOpts ...runner.Option) (commanddispatcher.Subscription, error) {
	sub := commanddispatcher.SubscribeQuery(qry, runnerOpts...)
	if err := adapter.Register(qry); err != nil {
		if sub != nil {
			sub.Unsubscribe()
		}
		return nil, err
	}
	return sub, nil
}

func StartPolling(ctx context.Context, botID string) error {
	return commanddispatcher.Dispatch(ctx, command.StartPollingMessage{BotID: botID})
}

func StopPolling(ctx context.Context, botID string, reason string) error {
	return commanddispatcher.Dispatch(ctx, command.StopPollingMessage{BotID: botID, Reason: reason})
}

func SaveCursor(ctx context.Context, botID string, offset int64, force bool) error {
	return commanddispatcher.Dispatch(ctx, command.SaveCursorMessage{BotID: botID, Offset: offset, Force: force})
}

func EngineStatus(ctx context.Context, botID string) (core.EngineStatus, error) {
	return commanddispatcher.Query[query.EngineStatusMessage, core.EngineStatus](ctx, query.EngineStatusMessage{BotID: botID})
}

func LoadCursor(ctx context.Context, botID string) (query.CursorResult, error) {
	return commanddispatcher.Query[query.LoadCursorMessage, query.CursorResult](ctx, query.LoadCursorMessage{BotID: botID})
}
