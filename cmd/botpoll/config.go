package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-botpoll/core"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "BOTPOLL_"

// koanfConfigProvider reads an optional YAML file and BOTPOLL_ environment
// variables on top of the defaults.
type koanfConfigProvider struct {
	path string
}

func newKoanfConfigProvider(path string) *koanfConfigProvider {
	return &koanfConfigProvider{path: strings.TrimSpace(path)}
}

func (p *koanfConfigProvider) Load(_ context.Context, defaults core.Config) (core.Config, error) {
	k := koanf.New(".")
	if p.path != "" {
		if err := k.Load(file.Provider(p.path), yaml.Parser()); err != nil {
			return core.Config{}, fmt.Errorf("botpoll: load config file %s: %w", p.path, err)
		}
	}
	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return core.Config{}, fmt.Errorf("botpoll: load environment: %w", err)
	}

	cfg := defaults
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			TagName:          "koanf",
			WeaklyTypedInput: true,
			Result:           &cfg,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		},
	}); err != nil {
		return core.Config{}, fmt.Errorf("botpoll: decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return core.Config{}, err
	}
	return cfg, nil
}

// envKey maps BOTPOLL_API_BASE__URL to api.base_url: a single underscore
// separates sections, a double underscore is a literal underscore.
func envKey(name string) string {
	key := strings.ToLower(strings.TrimPrefix(name, envPrefix))
	key = strings.ReplaceAll(key, "__", "\x00")
	key = strings.ReplaceAll(key, "_", ".")
	return strings.ReplaceAll(key, "\x00", "_")
}
