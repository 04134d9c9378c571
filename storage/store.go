package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrStorageUnavailable wraps transport-level Redis failures. Callers treat
// it as a degraded mirror, never as a session-state verdict.
var ErrStorageUnavailable = errors.New("session storage unavailable")

// The two mirror keys are deliberately unexported: no component outside this
// package may address them, so "only the session store writes these keys"
// holds by construction rather than by convention.
const (
	tokenKey    = "oneflow.token"
	identityKey = "oneflow.user"
)

// Record is the persisted session pair as read back from the mirror.
//
// Found is true only when both halves are present. Partial marks the
// self-heal case: exactly one half survived, and the caller must clear both.
type Record struct {
	Token        string
	IdentityJSON []byte
	Found        bool
	Partial      bool
}

// Store is the Redis-backed mirror. TTL applies to both entries on every
// save; expiry is enforced entirely by Redis, the application never inspects
// token age.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewStore creates a mirror [Store] on the given Redis client. prefix
// namespaces the two keys so deployments can share an instance; ttl is the
// storage-side session lifetime (30 days in production).
func NewStore(client redis.UniversalClient, prefix string, ttl time.Duration) *Store {
	return &Store{
		redis:  client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *Store) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + ":" + name
}

// Save writes both halves of the session in one transaction with the
// configured TTL. A session is never persisted half-written.
func (s *Store) Save(ctx context.Context, token string, identityJSON []byte) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(tokenKey), token, s.ttl)
		pipe.Set(ctx, s.key(identityKey), identityJSON, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// Load reads both halves. Missing keys are a normal steady state (anonymous
// visitor or expired session), reported through Found/Partial rather than an
// error; only transport failures return ErrStorageUnavailable.
func (s *Store) Load(ctx context.Context) (Record, error) {
	pipe := s.redis.Pipeline()
	tokenCmd := pipe.Get(ctx, s.key(tokenKey))
	identityCmd := pipe.Get(ctx, s.key(identityKey))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Record{}, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	token, tokenErr := tokenCmd.Result()
	identity, identityErr := identityCmd.Bytes()

	tokenMissing := errors.Is(tokenErr, redis.Nil)
	identityMissing := errors.Is(identityErr, redis.Nil)

	switch {
	case tokenErr == nil && identityErr == nil:
		return Record{Token: token, IdentityJSON: identity, Found: true}, nil
	case tokenMissing && identityMissing:
		return Record{}, nil
	case tokenMissing != identityMissing:
		return Record{Partial: true}, nil
	}

	if tokenErr != nil && !tokenMissing {
		return Record{}, fmt.Errorf("%w: %v", ErrStorageUnavailable, tokenErr)
	}
	return Record{}, fmt.Errorf("%w: %v", ErrStorageUnavailable, identityErr)
}

// Clear deletes both halves. Idempotent: clearing an absent session is a
// success.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.redis.Del(ctx, s.key(tokenKey), s.key(identityKey)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// TTL reports the configured storage-side session lifetime.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return time.Since(start), nil
}
