package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryProviderRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider(time.Minute)
	defer p.Close()

	if _, err := p.Get(ctx, "missing"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected cache miss, got %v", err)
	}

	value := []byte("payload")
	if err := p.Set(ctx, "k", value, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	value[0] = 'X'
	got, err := p.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "payload" {
		t.Fatalf("expected stored copy, got %q", got)
	}

	if err := p.Del(ctx, "k"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if _, err := p.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after delete, got %v", err)
	}
}

func TestMemoryProviderSetNX(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider(time.Minute)

	ok, err := p.SetNX(ctx, "lock", []byte("1"), time.Hour)
	if err != nil || !ok {
		t.Fatalf("expected first SetNX to succeed, got %v %v", ok, err)
	}
	ok, err = p.SetNX(ctx, "lock", []byte("2"), time.Hour)
	if err != nil || ok {
		t.Fatalf("expected second SetNX to be rejected, got %v %v", ok, err)
	}

	ok, _ = p.SetNX(ctx, "short", []byte("1"), 10*time.Millisecond)
	if !ok {
		t.Fatalf("expected SetNX on fresh key")
	}
	time.Sleep(30 * time.Millisecond)
	ok, _ = p.SetNX(ctx, "short", []byte("2"), time.Hour)
	if !ok {
		t.Fatalf("expected SetNX after expiry to succeed")
	}
}

func TestNewSelectsBackend(t *testing.T) {
	p, err := New(Config{Backend: BackendNone})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, ok := p.(NoopProvider); !ok {
		t.Fatalf("expected noop provider, got %T", p)
	}
	if p, _ := New(Config{}); p == nil {
		t.Fatalf("expected default memory provider")
	}
	if _, err := New(Config{Backend: "etcd"}); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
	if _, err := New(Config{Backend: BackendRedis}); err == nil {
		t.Fatalf("expected error for redis without addr")
	}
}

func TestMemoryProviderDelIfValue(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider(time.Minute)
	defer p.Close()

	if ok, _ := p.SetNX(ctx, "lock", []byte("owner-a"), time.Minute); !ok {
		t.Fatalf("expected lock acquired")
	}
	if ok, err := p.DelIfValue(ctx, "lock", []byte("owner-b")); err != nil || ok {
		t.Fatalf("expected foreign token to be refused, got %v %v", ok, err)
	}
	if got, err := p.Get(ctx, "lock"); err != nil || string(got) != "owner-a" {
		t.Fatalf("expected lock kept, got %q %v", got, err)
	}
	if ok, err := p.DelIfValue(ctx, "lock", []byte("owner-a")); err != nil || !ok {
		t.Fatalf("expected owner release, got %v %v", ok, err)
	}
	if ok, _ := p.DelIfValue(ctx, "lock", []byte("owner-a")); ok {
		t.Fatalf("expected nothing to release twice")
	}
	if ok, _ := (NoopProvider{}).DelIfValue(ctx, "lock", nil); !ok {
		t.Fatalf("noop provider grants every release")
	}
}
