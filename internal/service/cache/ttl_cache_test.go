package cache

import (
	"context"
	"testing"
	"time"
)

func TestTTLCacheExpires(t *testing.T) {
	now := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	c := NewTTLCache()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	if err := c.SetBytes(ctx, "k", []byte{1, 2}, time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, ok, err := c.GetBytes(ctx, "k")
	if err != nil || !ok || len(b) != 2 {
		t.Fatalf("expected a hit, got %v %v %v", b, ok, err)
	}

	now = now.Add(2 * time.Minute)
	if _, ok, _ := c.GetBytes(ctx, "k"); ok {
		t.Fatalf("expected the entry to expire")
	}
}

func TestTTLCacheZeroTTLKeeps(t *testing.T) {
	c := NewTTLCache()
	ctx := context.Background()
	_ = c.SetBytes(ctx, "k", []byte{9}, 0)
	if _, ok, _ := c.GetBytes(ctx, "k"); !ok {
		t.Fatalf("expected an entry without ttl to stay")
	}
	if _, ok, _ := c.GetBytes(ctx, "missing"); ok {
		t.Fatalf("expected a miss")
	}
}
