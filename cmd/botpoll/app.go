package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	botpoll "github.com/goliatone/go-botpoll"
	"github.com/goliatone/go-botpoll/adapters/gocommand"
	"github.com/goliatone/go-botpoll/adapters/gologger"
	"github.com/goliatone/go-botpoll/core"
)

// app is one bot runtime plus its store and command wiring for a single CLI
// invocation.
type app struct {
	bot    *botpoll.Bot
	store  *storeHandle
	logger *gologger.ZapLogger
	subs   gocommand.Subscriptions
}

func newApp(ctx context.Context, opts *rootOptions, consumer core.Consumer) (*app, error) {
	logger, err := gologger.NewZapLogger(opts.logLevel, opts.devLog)
	if err != nil {
		return nil, err
	}
	provider := gologger.NewZapProvider(logger)

	configProvider := newKoanfConfigProvider(opts.configPath)
	cfg, err := configProvider.Load(ctx, core.DefaultConfig())
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg.Store, opts.logLevel == "debug")
	if err != nil {
		return nil, err
	}

	botOpts := []botpoll.Option{
		botpoll.WithConfigProvider(configProvider),
		botpoll.WithLoggerProvider(provider),
		botpoll.WithPersistenceClient(store.client),
		botpoll.WithRepositoryFactory(store.factory),
	}
	if store.cache != nil {
		botOpts = append(botOpts, botpoll.WithCacheService(store.cache))
	}
	if consumer != nil {
		botOpts = append(botOpts, botpoll.WithConsumer(consumer))
	}
	runtime := core.Config{BotID: opts.botID}
	bot, err := botpoll.New(runtime, botOpts...)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	subs, err := gocommand.RegisterBotHandlers(gocommand.NewRegistryAdapter(nil), gocommand.BotHandlers{
		Controller: bot,
		Cursors:    bot,
		Status:     bot,
		Reader:     bot,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return &app{bot: bot, store: store, logger: logger, subs: subs}, nil
}

func (a *app) Close() error {
	if a == nil {
		return nil
	}
	a.subs.Unsubscribe()
	// Sync fails on non-file outputs such as terminals.
	_ = a.logger.Sync()
	return a.store.Close()
}

func writeJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func joinClose(err error, closer interface{ Close() error }) error {
	return errors.Join(err, closer.Close())
}
