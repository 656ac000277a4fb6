package usage

import (
	"context"
	"testing"
	"time"
)

func TestTTLCacheGetMissThenSet(t *testing.T) {
	c := NewTTLCache[int](nil)
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected miss on empty cache")
	}
	c.Set("k", 42, time.Minute)
	v, ok := c.Get("k")
	if !ok || v != 42 {
		t.Fatalf("got (%v, %v), want (42, true)", v, ok)
	}
}

func TestTTLCacheExpires(t *testing.T) {
	c := NewTTLCache[int](nil)
	c.Set("k", 1, -time.Second) // already expired
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected expired entry to miss")
	}
}

func TestTTLCacheLoadOrComputeCachesResult(t *testing.T) {
	c := NewTTLCache[int](nil)
	calls := 0
	compute := func(ctx context.Context) (int, error) {
		calls++
		return 7, nil
	}

	v1, err := c.LoadOrCompute(context.Background(), "k", time.Minute, compute)
	if err != nil || v1 != 7 {
		t.Fatalf("unexpected result: %v %v", v1, err)
	}
	v2, err := c.LoadOrCompute(context.Background(), "k", time.Minute, compute)
	if err != nil || v2 != 7 {
		t.Fatalf("unexpected result: %v %v", v2, err)
	}
	if calls != 1 {
		t.Fatalf("compute called %d times, want 1 (second call should hit cache)", calls)
	}
}

func TestTTLCacheLoadOrComputePropagatesError(t *testing.T) {
	c := NewTTLCache[int](nil)
	wantErr := context.Canceled
	_, err := c.LoadOrCompute(context.Background(), "k", time.Minute, func(ctx context.Context) (int, error) {
		return 0, wantErr
	})
	if err != wantErr {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
	// A failed compute must not poison the cache.
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected no cached value after a failed compute")
	}
}
