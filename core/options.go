package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	opts "github.com/goliatone/go-options"
)

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type RawConfigLoaderFunc func(ctx context.Context) (map[string]any, error)

func (fn RawConfigLoaderFunc) LoadRaw(ctx context.Context) (map[string]any, error) {
	if fn == nil {
		return map[string]any{}, nil
	}
	return fn(ctx)
}

type StaticRawConfigLoader struct {
	Values map[string]any
}

func (l StaticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = StaticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// ResolveConfig layers defaults, the provider's loaded config, and runtime
// overrides. Nil provider or resolver fall back to the cfgx and go-options
// implementations.
func ResolveConfig(ctx context.Context, runtime Config, provider ConfigProvider, resolver OptionsResolver) (Config, error) {
	defaults := DefaultConfig()
	if provider == nil {
		provider = NewCfgxConfigProvider(nil)
	}
	if resolver == nil {
		resolver = GoOptionsResolver{}
	}
	loaded, err := provider.Load(ctx, defaults)
	if err != nil {
		return Config{}, fmt.Errorf("core: load config: %w", err)
	}
	return resolver.Resolve(defaults, loaded, runtime)
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	putString(layer, "service_name", cfg.ServiceName, includeZero)
	putString(layer, "bot_id", cfg.BotID, includeZero)

	api := map[string]any{}
	putString(api, "base_url", cfg.API.BaseURL, includeZero)
	putString(api, "token", cfg.API.Token, includeZero)
	putDuration(api, "request_timeout", cfg.API.RequestTimeout, includeZero)
	putBool(api, "strict", cfg.API.Strict, includeZero)
	putBool(api, "symmetric_retry", cfg.API.SymmetricRetry, includeZero)
	putBool(api, "fail_fast_throttled", cfg.API.FailFastThrottled, includeZero)
	putSection(layer, "api", api)

	polling := map[string]any{}
	putInt(polling, "limit", cfg.Polling.Limit, includeZero)
	putInt(polling, "timeout_seconds", cfg.Polling.TimeoutSeconds, includeZero)
	if includeZero || len(cfg.Polling.AllowedUpdates) > 0 {
		polling["allowed_updates"] = append([]string(nil), cfg.Polling.AllowedUpdates...)
	}
	putSection(layer, "polling", polling)

	errorBackOff := map[string]any{}
	putDuration(errorBackOff, "initial_interval", cfg.BackOff.Error.InitialInterval, includeZero)
	putFloat(errorBackOff, "multiplier", cfg.BackOff.Error.Multiplier, includeZero)
	putFloat(errorBackOff, "randomization_factor", cfg.BackOff.Error.RandomizationFactor, includeZero)
	putDuration(errorBackOff, "max_interval", cfg.BackOff.Error.MaxInterval, includeZero)
	putDuration(errorBackOff, "max_elapsed_time", cfg.BackOff.Error.MaxElapsedTime, includeZero)
	emptyBackOff := map[string]any{}
	putDuration(emptyBackOff, "interval", cfg.BackOff.Empty.Interval, includeZero)
	putDuration(emptyBackOff, "max_elapsed_time", cfg.BackOff.Empty.MaxElapsedTime, includeZero)
	backOff := map[string]any{}
	putSection(backOff, "error", errorBackOff)
	putSection(backOff, "empty", emptyBackOff)
	putSection(layer, "backoff", backOff)

	store := map[string]any{}
	putString(store, "driver", cfg.Store.Driver, includeZero)
	putString(store, "dsn", cfg.Store.DSN, includeZero)
	putDuration(store, "cache_ttl", cfg.Store.CacheTTL, includeZero)
	putSection(layer, "store", store)
	return layer
}

func putSection(layer map[string]any, key string, section map[string]any) {
	if len(section) > 0 {
		layer[key] = section
	}
}

func putString(layer map[string]any, key, value string, includeZero bool) {
	if includeZero || strings.TrimSpace(value) != "" {
		layer[key] = value
	}
}

func putInt(layer map[string]any, key string, value int, includeZero bool) {
	if includeZero || value != 0 {
		layer[key] = value
	}
}

func putFloat(layer map[string]any, key string, value float64, includeZero bool) {
	if includeZero || value != 0 {
		layer[key] = value
	}
}

func putBool(layer map[string]any, key string, value bool, includeZero bool) {
	if includeZero || value {
		layer[key] = value
	}
}

func putDuration(layer map[string]any, key string, value time.Duration, includeZero bool) {
	if includeZero || value != 0 {
		layer[key] = value
	}
}
