package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Provider is the shared key/value store behind alert cooldowns, feed responses,
// mined patterns, the training lock and the published model artifact.
type Provider interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
	// DelIfValue removes key only while it still holds value and reports whether it did.
	DelIfValue(ctx context.Context, key string, value []byte) (bool, error)
	Close() error
}

// ErrCacheMiss is returned by Get for absent or expired keys.
var ErrCacheMiss = errors.New("cache miss")

// NoopProvider stores nothing. Every lookup misses and every lock is granted.
type NoopProvider struct{}

func (NoopProvider) Get(context.Context, string) ([]byte, error) {
	return nil, ErrCacheMiss
}

func (NoopProvider) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}

func (NoopProvider) SetNX(context.Context, string, []byte, time.Duration) (bool, error) {
	return true, nil
}

func (NoopProvider) Del(context.Context, string) error { return nil }

func (NoopProvider) DelIfValue(context.Context, string, []byte) (bool, error) { return true, nil }

func (NoopProvider) Close() error { return nil }

// Config selects and tunes a Provider.
type Config struct {
	Backend string
	Redis   RedisConfig
}

// Backend names accepted by New.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// New builds the configured provider. An empty backend selects the in-process cache.
func New(cfg Config) (Provider, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemoryProvider(time.Minute), nil
	case BackendRedis:
		return NewRedisProvider(cfg.Redis)
	case BackendNone:
		return NoopProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
