package botpoll

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-botpoll/backoff"
	"github.com/goliatone/go-botpoll/call"
	"github.com/goliatone/go-botpoll/core"
	"github.com/goliatone/go-botpoll/poller"
	"github.com/goliatone/go-botpoll/ratelimit"
	sqlstore "github.com/goliatone/go-botpoll/store/sql"
	"github.com/goliatone/go-botpoll/telegram"
	"github.com/goliatone/go-botpoll/transport"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

type Config = core.Config

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// CursorResetter moves a stored cursor without the monotonic guard.
type CursorResetter interface {
	ResetCursor(ctx context.Context, botID string, offset int64) error
}

// Bot is the runtime for one bot: an update source, a polling engine built
// per run, and the stores that survive between runs.
type Bot struct {
	config          Config
	logger          core.Logger
	loggerProvider  core.LoggerProvider
	metricsRecorder core.MetricsRecorder
	errorMapper     core.ErrorMapper
	source          core.Source
	client          *telegram.Client
	consumer        core.Consumer
	cursorStore     core.CursorStore
	tracker         *ratelimit.Tracker
	engineOptions   []poller.Option

	startMu sync.Mutex
	mu      sync.Mutex
	engine  *poller.Engine
}

func New(cfg Config, opts ...Option) (*Bot, error) {
	builder := defaultBotBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("botpoll", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)

	if builder.errorMapper == nil {
		builder.errorMapper = core.MapError
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = core.NopMetricsRecorder{}
	}
	if builder.consumer == nil {
		builder.consumer = core.NopConsumer{}
	}

	finalConfig, err := core.ResolveConfig(context.Background(), builder.runtimeConfig, builder.configProvider, builder.optionsResolver)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if err := resolveStores(&builder); err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	tracker := ratelimit.NewTracker(finalConfig.BotID, builder.rateLimitStore)

	bot := &Bot{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorMapper:     builder.errorMapper,
		source:          builder.source,
		consumer:        builder.consumer,
		cursorStore:     builder.cursorStore,
		tracker:         tracker,
		engineOptions:   append([]poller.Option(nil), builder.engineOptions...),
	}
	if bot.source == nil {
		client, err := bot.newTelegramClient(builder)
		if err != nil {
			return nil, mapBuildError(builder.errorMapper, err)
		}
		bot.client = client
		bot.source = client
	}
	return bot, nil
}

func Setup(cfg Config, opts ...Option) (*Bot, error) {
	return New(cfg, opts...)
}

func mapBuildError(mapper core.ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func resolveStores(builder *botBuilder) error {
	if builder.repositoryFactory != nil && (builder.cursorStore == nil || builder.rateLimitStore == nil) {
		if storeFactory, ok := builder.repositoryFactory.(interface{ BuildStores(any) error }); ok {
			if err := storeFactory.BuildStores(builder.persistenceClient); err != nil {
				return err
			}
		}
		if builder.cursorStore == nil {
			if provider, ok := builder.repositoryFactory.(interface{ CursorStore() *sqlstore.CursorStore }); ok {
				if store := provider.CursorStore(); store != nil {
					builder.cursorStore = store
				}
			}
		}
		if builder.rateLimitStore == nil {
			if provider, ok := builder.repositoryFactory.(interface {
				RateLimitStateStore() *sqlstore.RateLimitStateStore
			}); ok {
				if store := provider.RateLimitStateStore(); store != nil {
					builder.rateLimitStore = store
				}
			}
		}
	}
	if builder.cacheService == nil {
		return nil
	}
	if builder.cursorStore != nil {
		cached, err := sqlstore.NewCachedCursorStore(builder.cursorStore, builder.cacheService)
		if err != nil {
			return err
		}
		builder.cursorStore = cached
	}
	if builder.rateLimitStore != nil {
		cached, err := sqlstore.NewCachedRateLimitStateStore(builder.rateLimitStore, builder.cacheService)
		if err != nil {
			return err
		}
		builder.rateLimitStore = cached
	}
	return nil
}

func (b *Bot) newTelegramClient(builder botBuilder) (*telegram.Client, error) {
	policy := call.PolicyAsymmetric
	if b.config.API.SymmetricRetry {
		policy = call.PolicySymmetric
	}
	opts := []telegram.Option{
		telegram.WithRequestTimeout(b.config.API.RequestTimeout),
		telegram.WithStrict(b.config.API.Strict),
		telegram.WithPolicy(policy),
		telegram.WithLogger(b.namedLogger("botpoll.telegram")),
		telegram.WithMetricsRecorder(b.metricsRecorder),
		telegram.WithTracker(b.tracker),
		telegram.WithFailFastThrottled(b.config.API.FailFastThrottled),
	}
	if builder.httpClient != nil {
		opts = append(opts, telegram.WithAdapter(transport.NewRESTAdapter(builder.httpClient)))
	}
	return telegram.NewClient(b.config.API.BaseURL, b.config.API.Token, opts...)
}

func (b *Bot) namedLogger(name string) core.Logger {
	if b.loggerProvider != nil {
		if named := b.loggerProvider.GetLogger(name); named != nil {
			return named
		}
	}
	return b.logger
}

func (b *Bot) Config() Config {
	if b == nil {
		return Config{}
	}
	return b.config
}

func (b *Bot) BotID() string {
	if b == nil {
		return ""
	}
	return b.config.BotID
}

// Client is the telegram client, nil when a custom source was supplied.
func (b *Bot) Client() *telegram.Client {
	if b == nil {
		return nil
	}
	return b.client
}

func (b *Bot) Tracker() *ratelimit.Tracker {
	if b == nil {
		return nil
	}
	return b.tracker
}

func (b *Bot) CursorStore() core.CursorStore {
	if b == nil {
		return nil
	}
	return b.cursorStore
}

// Engine is the engine of the current or last run, nil before the first
// start.
func (b *Bot) Engine() *poller.Engine {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.engine
}

// Done is closed when the current run ends.
func (b *Bot) Done() <-chan struct{} {
	return b.Engine().Done()
}

// Err reports why the last run ended.
func (b *Bot) Err() error {
	return b.Engine().Err()
}

// StartPolling builds a fresh engine seeded with the stored cursor and starts
// it. The run stops when ctx is cancelled or StopPolling is called.
func (b *Bot) StartPolling(ctx context.Context, botID string) error {
	if err := b.checkBotID(botID); err != nil {
		return err
	}
	b.startMu.Lock()
	defer b.startMu.Unlock()

	previous := b.Engine()
	if previous != nil {
		if previous.State() != poller.StateStopped {
			return core.ErrAlreadyRunning
		}
		select {
		case <-previous.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	engine, err := b.newEngine(ctx)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.engine = engine
	b.mu.Unlock()

	if err := engine.Start(ctx); err != nil {
		return err
	}
	b.logger.Info("botpoll: polling started", "bot_id", b.config.BotID, "run_id", engine.RunID())
	return nil
}

// StopPolling asks the current run to end. It does not wait; use Done.
func (b *Bot) StopPolling(_ context.Context, botID string, reason string) error {
	if err := b.checkBotID(botID); err != nil {
		return err
	}
	engine := b.Engine()
	if engine == nil {
		return nil
	}
	engine.Stop()
	b.logger.Info("botpoll: polling stop requested",
		"bot_id", b.config.BotID,
		"run_id", engine.RunID(),
		"reason", strings.TrimSpace(reason),
	)
	return nil
}

func (b *Bot) newEngine(ctx context.Context) (*poller.Engine, error) {
	cfg := b.config
	allowed, err := core.ParseUpdateTypes(cfg.Polling.AllowedUpdates)
	if err != nil {
		return nil, err
	}

	errorBackOff := backoff.NewExponentialBackOff()
	errorBackOff.InitialInterval = cfg.BackOff.Error.InitialInterval
	errorBackOff.Multiplier = cfg.BackOff.Error.Multiplier
	errorBackOff.RandomizationFactor = cfg.BackOff.Error.RandomizationFactor
	errorBackOff.MaxInterval = cfg.BackOff.Error.MaxInterval
	errorBackOff.MaxElapsedTime = cfg.BackOff.Error.MaxElapsedTime
	errorBackOff.Reset()

	emptyBackOff := backoff.NewFixedBackOff(cfg.BackOff.Empty.Interval)
	emptyBackOff.MaxElapsedTime = cfg.BackOff.Empty.MaxElapsedTime

	opts := []poller.Option{
		poller.WithName(cfg.BotID),
		poller.WithLimit(cfg.Polling.Limit),
		poller.WithTimeoutSeconds(cfg.Polling.TimeoutSeconds),
		poller.WithAllowedUpdates(allowed...),
		poller.WithErrorBackOff(errorBackOff),
		poller.WithEmptyBackOff(emptyBackOff),
		poller.WithConsumer(b.consumer),
		poller.WithMetricsRecorder(b.metricsRecorder),
		poller.WithLogger(b.logger),
	}
	if b.loggerProvider != nil {
		opts = append(opts, poller.WithLoggerProvider(b.loggerProvider))
	}
	if b.cursorStore != nil {
		offset, found, err := b.cursorStore.LoadCursor(ctx, cfg.BotID)
		if err != nil {
			return nil, fmt.Errorf("botpoll: load cursor: %w", err)
		}
		if found {
			opts = append(opts, poller.WithInitialOffset(offset))
		}
		opts = append(opts, poller.WithCursorSink(core.BoundCursorSink{Store: b.cursorStore, BotID: cfg.BotID}))
	}
	opts = append(opts, b.engineOptions...)
	return poller.New(b.source, opts...)
}

// SaveCursor stores offset if it moves the cursor forward.
func (b *Bot) SaveCursor(ctx context.Context, botID string, offset int64) error {
	if err := b.checkBotID(botID); err != nil {
		return err
	}
	store, err := b.requireCursorStore()
	if err != nil {
		return err
	}
	return store.SaveCursor(ctx, b.config.BotID, offset)
}

// ResetCursor overwrites the stored cursor, including moving it backwards.
// It is refused while polling since the engine would overwrite it.
func (b *Bot) ResetCursor(ctx context.Context, botID string, offset int64) error {
	if err := b.checkBotID(botID); err != nil {
		return err
	}
	store, err := b.requireCursorStore()
	if err != nil {
		return err
	}
	if engine := b.Engine(); engine != nil && engine.State() != poller.StateStopped {
		return fmt.Errorf("botpoll: cannot reset cursor while polling: %w", core.ErrAlreadyRunning)
	}
	resetter, ok := store.(CursorResetter)
	if !ok {
		return fmt.Errorf("botpoll: cursor store does not support resets")
	}
	return resetter.ResetCursor(ctx, b.config.BotID, offset)
}

// LoadCursor prefers the stored cursor and falls back to the engine's.
func (b *Bot) LoadCursor(ctx context.Context, botID string) (int64, bool, error) {
	if err := b.checkBotID(botID); err != nil {
		return 0, false, err
	}
	if b.cursorStore != nil {
		return b.cursorStore.LoadCursor(ctx, b.config.BotID)
	}
	offset, ok := b.Engine().Offset()
	return offset, ok, nil
}

func (b *Bot) EngineStatus(ctx context.Context, botID string) (core.EngineStatus, error) {
	if err := b.checkBotID(botID); err != nil {
		return core.EngineStatus{}, err
	}
	status := core.EngineStatus{BotID: b.config.BotID, State: poller.StateStopped.String()}
	if engine := b.Engine(); engine != nil {
		status.State = engine.State().String()
		status.RunID = engine.RunID()
		status.Offset, status.HasOffset = engine.Offset()
		if err := engine.Err(); err != nil {
			status.LastError = err.Error()
		}
	}
	if !status.HasOffset && b.cursorStore != nil {
		offset, found, err := b.cursorStore.LoadCursor(ctx, b.config.BotID)
		if err != nil {
			return core.EngineStatus{}, err
		}
		status.Offset, status.HasOffset = offset, found
	}
	states, err := b.tracker.Snapshot(ctx)
	if err != nil {
		return core.EngineStatus{}, err
	}
	for _, state := range states {
		status.Throttles = append(status.Throttles, core.ThrottleStatus{
			Method:         state.Key.Method,
			RetryAfter:     state.RetryAfter,
			ThrottledUntil: state.ThrottledUntil,
			Throttles:      state.Throttles,
		})
	}
	return status, nil
}

func (b *Bot) requireCursorStore() (core.CursorStore, error) {
	if b.cursorStore == nil {
		return nil, goerrors.New("botpoll: cursor store is not configured", goerrors.CategoryInternal).
			WithTextCode(core.ErrorInternal)
	}
	return b.cursorStore, nil
}

func (b *Bot) checkBotID(botID string) error {
	if b == nil {
		return errors.New("botpoll: bot is nil")
	}
	if strings.TrimSpace(botID) != b.config.BotID {
		return goerrors.New("botpoll: unknown bot", goerrors.CategoryNotFound).
			WithTextCode(core.ErrorBotNotFound).
			WithMetadata(map[string]any{"bot_id": strings.TrimSpace(botID)})
	}
	return nil
}
