//go:build integration
// +build integration

package valkey_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/samirrijal/fieldpins/internal/adapters/valkey"
)

func testCache(t *testing.T) *valkey.Cache {
	t.Helper()
	addr := os.Getenv("FIELDPINS_CACHE_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	c, err := valkey.New(addr)
	if err != nil {
		t.Skipf("valkey unavailable: %v", err)
	}
	t.Cleanup(c.Close)
	if err := c.Ping(context.Background()); err != nil {
		t.Skipf("valkey unavailable: %v", err)
	}
	return c
}

func TestCache_GetSet(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()
	key := "geocode:test:" + uuid.NewString()

	if _, err := c.Get(ctx, key); !errors.Is(err, valkey.ErrMiss) {
		t.Fatalf("expected ErrMiss, got %v", err)
	}
	if err := c.Set(ctx, key, []byte(`{"street":"Main"}`), 60); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := c.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != `{"street":"Main"}` {
		t.Errorf("unexpected value %q", got)
	}
}

func TestCache_SetWithoutTTL(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()
	key := "geocode:test:" + uuid.NewString()

	if err := c.Set(ctx, key, []byte("x"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := c.Get(ctx, key); err != nil {
		t.Errorf("expected stored value, got %v", err)
	}
}
