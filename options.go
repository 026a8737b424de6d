package botpoll

import (
	"github.com/goliatone/go-botpoll/core"
	"github.com/goliatone/go-botpoll/poller"
	"github.com/goliatone/go-botpoll/ratelimit"
	"github.com/goliatone/go-botpoll/transport"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

type Option func(*botBuilder)

type botBuilder struct {
	runtimeConfig     Config
	logger            core.Logger
	loggerProvider    core.LoggerProvider
	metricsRecorder   core.MetricsRecorder
	errorMapper       core.ErrorMapper
	configProvider    core.ConfigProvider
	optionsResolver   core.OptionsResolver
	persistenceClient any
	repositoryFactory any
	cacheService      repositorycache.CacheService
	cursorStore       core.CursorStore
	rateLimitStore    ratelimit.StateStore
	httpClient        transport.HTTPDoer
	source            core.Source
	consumer          core.Consumer
	engineOptions     []poller.Option
}

func defaultBotBuilder(cfg Config) botBuilder {
	return botBuilder{runtimeConfig: cfg}
}

func WithLogger(logger core.Logger) Option {
	return func(b *botBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(b *botBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(b *botBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper core.ErrorMapper) Option {
	return func(b *botBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider core.ConfigProvider) Option {
	return func(b *botBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver core.OptionsResolver) Option {
	return func(b *botBuilder) {
		b.optionsResolver = resolver
	}
}

// WithPersistenceClient passes the client handed to the repository factory's
// BuildStores, typically a go-persistence-bun client or a *bun.DB.
func WithPersistenceClient(client any) Option {
	return func(b *botBuilder) {
		b.persistenceClient = client
	}
}

// WithRepositoryFactory supplies the cursor and throttle stores, for example a
// *sqlstore.RepositoryFactory.
func WithRepositoryFactory(factory any) Option {
	return func(b *botBuilder) {
		b.repositoryFactory = factory
	}
}

// WithCacheService fronts the factory-built stores with read caches.
func WithCacheService(cache repositorycache.CacheService) Option {
	return func(b *botBuilder) {
		b.cacheService = cache
	}
}

func WithCursorStore(store core.CursorStore) Option {
	return func(b *botBuilder) {
		b.cursorStore = store
	}
}

func WithRateLimitStateStore(store ratelimit.StateStore) Option {
	return func(b *botBuilder) {
		b.rateLimitStore = store
	}
}

// WithHTTPClient replaces the HTTP client of the default telegram source.
func WithHTTPClient(client transport.HTTPDoer) Option {
	return func(b *botBuilder) {
		b.httpClient = client
	}
}

// WithSource replaces the telegram client as the update source.
func WithSource(source core.Source) Option {
	return func(b *botBuilder) {
		b.source = source
	}
}

func WithConsumer(consumer core.Consumer) Option {
	return func(b *botBuilder) {
		b.consumer = consumer
	}
}

// WithEngineOptions appends poller options applied after the ones derived
// from config.
func WithEngineOptions(opts ...poller.Option) Option {
	return func(b *botBuilder) {
		b.engineOptions = append(b.engineOptions, opts...)
	}
}
