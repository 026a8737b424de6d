package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultServiceName    = "botpoll"
	DefaultBotID          = "default"
	DefaultAPIBaseURL     = "https://api.telegram.org"
	DefaultRequestTimeout = 90 * time.Second
	DefaultPollTimeout    = 60
	MaxPollLimit          = 100
	DefaultStoreDriver    = "sqlite"
	DefaultCursorCacheTTL = 30 * time.Second
)

type APIConfig struct {
	BaseURL        string        `koanf:"base_url" mapstructure:"base_url"`
	Token          string        `koanf:"token" mapstructure:"token"`
	RequestTimeout time.Duration `koanf:"request_timeout" mapstructure:"request_timeout"`
	Strict         bool          `koanf:"strict" mapstructure:"strict"`
	SymmetricRetry bool          `koanf:"symmetric_retry" mapstructure:"symmetric_retry"`

	// FailFastThrottled rejects outbound sends while their method is inside
	// a recorded retry-after window instead of queueing behind it.
	FailFastThrottled bool `koanf:"fail_fast_throttled" mapstructure:"fail_fast_throttled"`
}

type PollingConfig struct {
	Limit          int      `koanf:"limit" mapstructure:"limit"`
	TimeoutSeconds int      `koanf:"timeout_seconds" mapstructure:"timeout_seconds"`
	AllowedUpdates []string `koanf:"allowed_updates" mapstructure:"allowed_updates"`
}

type ErrorBackOffConfig struct {
	InitialInterval     time.Duration `koanf:"initial_interval" mapstructure:"initial_interval"`
	Multiplier          float64       `koanf:"multiplier" mapstructure:"multiplier"`
	RandomizationFactor float64       `koanf:"randomization_factor" mapstructure:"randomization_factor"`
	MaxInterval         time.Duration `koanf:"max_interval" mapstructure:"max_interval"`
	MaxElapsedTime      time.Duration `koanf:"max_elapsed_time" mapstructure:"max_elapsed_time"`
}

type EmptyBackOffConfig struct {
	Interval       time.Duration `koanf:"interval" mapstructure:"interval"`
	MaxElapsedTime time.Duration `koanf:"max_elapsed_time" mapstructure:"max_elapsed_time"`
}

type BackOffConfig struct {
	Error ErrorBackOffConfig `koanf:"error" mapstructure:"error"`
	Empty EmptyBackOffConfig `koanf:"empty" mapstructure:"empty"`
}

type StoreConfig struct {
	Driver   string        `koanf:"driver" mapstructure:"driver"`
	DSN      string        `koanf:"dsn" mapstructure:"dsn"`
	CacheTTL time.Duration `koanf:"cache_ttl" mapstructure:"cache_ttl"`
}

type Config struct {
	ServiceName string        `koanf:"service_name" mapstructure:"service_name"`
	BotID       string        `koanf:"bot_id" mapstructure:"bot_id"`
	API         APIConfig     `koanf:"api" mapstructure:"api"`
	Polling     PollingConfig `koanf:"polling" mapstructure:"polling"`
	BackOff     BackOffConfig `koanf:"backoff" mapstructure:"backoff"`
	Store       StoreConfig   `koanf:"store" mapstructure:"store"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: DefaultServiceName,
		BotID:       DefaultBotID,
		API: APIConfig{
			BaseURL:        DefaultAPIBaseURL,
			RequestTimeout: DefaultRequestTimeout,
		},
		Polling: PollingConfig{
			TimeoutSeconds: DefaultPollTimeout,
		},
		BackOff: BackOffConfig{
			Error: ErrorBackOffConfig{
				InitialInterval:     100 * time.Millisecond,
				Multiplier:          1.5,
				RandomizationFactor: 0.2,
				MaxInterval:         60 * time.Second,
			},
			Empty: EmptyBackOffConfig{
				Interval: 100 * time.Millisecond,
			},
		},
		Store: StoreConfig{
			Driver:   DefaultStoreDriver,
			DSN:      "file:botpoll.db?cache=shared",
			CacheTTL: DefaultCursorCacheTTL,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.BotID) == "" {
		return fmt.Errorf("core: bot_id is required")
	}
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return fmt.Errorf("core: api.base_url is required")
	}
	if c.API.RequestTimeout < 0 {
		return fmt.Errorf("core: api.request_timeout must not be negative")
	}
	if err := ValidatePollLimit(c.Polling.Limit); err != nil {
		return err
	}
	if c.Polling.TimeoutSeconds <= 0 {
		return fmt.Errorf("core: polling.timeout_seconds must be positive")
	}
	if _, err := ParseUpdateTypes(c.Polling.AllowedUpdates); err != nil {
		return err
	}
	errCfg := c.BackOff.Error
	if errCfg.InitialInterval <= 0 || errCfg.MaxInterval <= 0 {
		return fmt.Errorf("core: backoff.error intervals must be positive")
	}
	if errCfg.Multiplier < 1 {
		return fmt.Errorf("core: backoff.error.multiplier must be at least 1")
	}
	if errCfg.RandomizationFactor < 0 || errCfg.RandomizationFactor > 1 {
		return fmt.Errorf("core: backoff.error.randomization_factor must be within [0,1]")
	}
	if c.BackOff.Empty.Interval <= 0 {
		return fmt.Errorf("core: backoff.empty.interval must be positive")
	}
	if errCfg.MaxElapsedTime < 0 || c.BackOff.Empty.MaxElapsedTime < 0 {
		return fmt.Errorf("core: backoff max_elapsed_time must not be negative")
	}
	switch NormalizeDriver(c.Store.Driver) {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("core: store.driver %q is invalid", c.Store.Driver)
	}
	if c.Store.CacheTTL < 0 {
		return fmt.Errorf("core: store.cache_ttl must not be negative")
	}
	return nil
}

// ValidatePollLimit accepts 0 (server default) or 1..MaxPollLimit.
func ValidatePollLimit(limit int) error {
	if limit < 0 || limit > MaxPollLimit {
		return fmt.Errorf("core: polling limit %d is invalid: must be 0 or within 1..%d", limit, MaxPollLimit)
	}
	return nil
}

// ParseUpdateTypes converts configured names into update types. A nil or empty
// input yields nil, meaning every type.
func ParseUpdateTypes(values []string) ([]UpdateType, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make([]UpdateType, 0, len(values))
	seen := map[UpdateType]struct{}{}
	for _, value := range values {
		kind := UpdateType(strings.ToLower(strings.TrimSpace(value)))
		if !kind.Valid() {
			return nil, fmt.Errorf("core: allowed update type %q is invalid", value)
		}
		if _, ok := seen[kind]; ok {
			continue
		}
		seen[kind] = struct{}{}
		out = append(out, kind)
	}
	return out, nil
}

func NormalizeDriver(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite", "sqlite3":
		return "sqlite"
	case "postgres", "postgresql", "pg":
		return "postgres"
	default:
		return strings.ToLower(strings.TrimSpace(driver))
	}
}
