package oneflowauth

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config defines the tunables of a session [Store].
//
// Config instances are intended to be configured during initialization and
// then treated as immutable.
type Config struct {
	API     APIConfig
	Storage StorageConfig
	Events  EventsConfig
	Metrics MetricsConfig
}

/*
====================================
API CONFIG
====================================
*/

// APIConfig describes the remote OneFlow REST API the store's mutating
// operations call. The contract itself is fixed and external; only the
// base URL and the request timeout are configurable.
type APIConfig struct {
	BaseURL string
	Timeout time.Duration
}

/*
====================================
STORAGE CONFIG
====================================
*/

// StorageConfig controls the durable mirror. SessionTTL is the storage-side
// lifetime of both mirror entries; the application never inspects token age
// itself.
type StorageConfig struct {
	// RedisPrefix namespaces the mirror keys so multiple deployments can
	// share one Redis instance. Empty by default: the persisted-state
	// contract names the entries oneflow.token and oneflow.user exactly.
	RedisPrefix string
	SessionTTL  time.Duration
}

/*
====================================
EVENTS CONFIG
====================================
*/

// EventsConfig controls the async session-event dispatcher.
type EventsConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull makes Publish non-blocking: events beyond the buffer are
	// counted and dropped instead of backpressuring the mutating caller.
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig toggles the atomic counter set.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the production defaults: 30-day mirror TTL, 10s API
// timeout, non-blocking event dispatch.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Timeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			SessionTTL: 30 * 24 * time.Hour,
		},
		Events: EventsConfig{
			Enabled:    true,
			BufferSize: 64,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate reports the first configuration problem found.
func (c Config) Validate() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return errors.New("API BaseURL required")
	}
	if c.API.Timeout <= 0 {
		return errors.New("API Timeout must be positive")
	}
	if c.Storage.SessionTTL <= 0 {
		return errors.New("Storage SessionTTL must be positive")
	}
	if c.Events.Enabled && c.Events.BufferSize <= 0 {
		return errors.New("Events BufferSize must be positive when events are enabled")
	}
	return nil
}

func cloneConfig(c Config) Config {
	// All fields are value types today; the clone exists so Build can keep
	// mutating callers from reaching the engine's copy.
	return c
}

// envConfig is the flat environment shape ConfigFromEnv reads through viper.
type envConfig struct {
	APIBaseURL  string `mapstructure:"ONEFLOW_API_BASE_URL"`
	APITimeout  string `mapstructure:"ONEFLOW_API_TIMEOUT"`
	RedisPrefix string `mapstructure:"ONEFLOW_REDIS_PREFIX"`
	SessionTTL  string `mapstructure:"ONEFLOW_SESSION_TTL"`
}

// ConfigFromEnv builds a Config from the environment, with an optional .env
// file in the working directory. Environment variables override .env; a
// missing .env is ignored. Unset values fall back to DefaultConfig.
func ConfigFromEnv() (Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // .env is optional

	v.AutomaticEnv()

	v.SetDefault("ONEFLOW_API_BASE_URL", "")
	v.SetDefault("ONEFLOW_API_TIMEOUT", "")
	v.SetDefault("ONEFLOW_REDIS_PREFIX", "")
	v.SetDefault("ONEFLOW_SESSION_TTL", "")

	var env envConfig
	if err := v.Unmarshal(&env); err != nil {
		return Config{}, err
	}

	cfg := DefaultConfig()
	if env.APIBaseURL != "" {
		cfg.API.BaseURL = env.APIBaseURL
	}
	if env.APITimeout != "" {
		d, err := time.ParseDuration(env.APITimeout)
		if err != nil {
			return Config{}, errors.New("ONEFLOW_API_TIMEOUT must be a duration like 10s")
		}
		cfg.API.Timeout = d
	}
	if env.RedisPrefix != "" {
		cfg.Storage.RedisPrefix = env.RedisPrefix
	}
	if env.SessionTTL != "" {
		d, err := time.ParseDuration(env.SessionTTL)
		if err != nil {
			return Config{}, errors.New("ONEFLOW_SESSION_TTL must be a duration like 720h")
		}
		cfg.Storage.SessionTTL = d
	}

	return cfg, cfg.Validate()
}
