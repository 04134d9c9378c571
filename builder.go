package oneflowauth

import (
	"errors"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/oneflow-app/oneflowauth/apiclient"
	"github.com/oneflow-app/oneflowauth/storage"
)

// Builder wires a session [Store]. Construction is allocation-only; no I/O
// happens until the store's methods run.
//
// Builder instances are intended to be configured during initialization and
// then treated as immutable.
type Builder struct {
	config    Config
	redis     redis.UniversalClient
	transport http.RoundTripper
	sink      EventSink

	built bool
}

// New returns a Builder preloaded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the builder's config.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing the durable mirror. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithHTTPTransport sets the base round-tripper for remote API calls. Tests
// inject fakes here; production leaves it nil for http.DefaultTransport.
func (b *Builder) WithHTTPTransport(rt http.RoundTripper) *Builder {
	b.transport = rt
	return b
}

// WithEventSink sets the sink receiving session transition events.
func (b *Builder) WithEventSink(sink EventSink) *Builder {
	b.sink = sink
	return b
}

// WithMetricsEnabled toggles the counter set.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and assembles the Store. A Builder may
// be used once.
func (b *Builder) Build() (*Store, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store := &Store{
		config: cfg,
		mirror: storage.NewStore(b.redis, cfg.Storage.RedisPrefix, cfg.Storage.SessionTTL),
		api: apiclient.New(apiclient.Config{
			BaseURL: cfg.API.BaseURL,
			Timeout: cfg.API.Timeout,
		}, b.transport),
		events:  newEventDispatcher(cfg.Events, b.sink),
		metrics: NewMetrics(cfg.Metrics),
	}

	b.built = true

	return store, nil
}
