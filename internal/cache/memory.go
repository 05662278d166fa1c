package cache

import (
	"bytes"
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryProvider is an in-process Provider for single-replica deployments and tests.
type MemoryProvider struct {
	// mu serialises writers so DelIfValue can compare and delete atomically.
	mu    sync.Mutex
	store *gocache.Cache
}

// NewMemoryProvider creates a provider; cleanup controls how often expired keys are purged.
func NewMemoryProvider(cleanup time.Duration) *MemoryProvider {
	if cleanup <= 0 {
		cleanup = time.Minute
	}
	return &MemoryProvider{store: gocache.New(gocache.NoExpiration, cleanup)}
}

// Get returns a copy of the stored bytes or ErrCacheMiss.
func (p *MemoryProvider) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := p.store.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), v.([]byte)...), nil
}

// Set stores a copy of value. A non-positive ttl never expires.
func (p *MemoryProvider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.store.Set(key, append([]byte(nil), value...), expiration(ttl))
	return nil
}

// SetNX stores value only when key is absent or expired.
func (p *MemoryProvider) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.store.Add(key, append([]byte(nil), value...), expiration(ttl)); err != nil {
		return false, nil
	}
	return true, nil
}

// Del removes key.
func (p *MemoryProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.store.Delete(key)
	return nil
}

// DelIfValue removes key only while it holds value.
func (p *MemoryProvider) DelIfValue(_ context.Context, key string, value []byte) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.store.Get(key)
	if !ok || !bytes.Equal(v.([]byte), value) {
		return false, nil
	}
	p.store.Delete(key)
	return true, nil
}

// Close drops all entries.
func (p *MemoryProvider) Close() error {
	p.store.Flush()
	return nil
}

func expiration(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return gocache.NoExpiration
	}
	return ttl
}
