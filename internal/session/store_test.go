package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStoreWithClient(client, ttl), mr
}

func TestRedisSessionMissingKeyIsEmpty(t *testing.T) {
	store, _ := newTestRedisStore(t, time.Hour)

	v, err := store.For("abc").Get(context.Background(), "lead_id")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != "" {
		t.Fatalf("expected empty value, got %q", v)
	}
}

func TestRedisSessionRoundTripIsScopedPerSession(t *testing.T) {
	store, _ := newTestRedisStore(t, time.Hour)
	ctx := context.Background()

	if err := store.For("abc").Set(ctx, "lead_id", "lead-1"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if v, _ := store.For("abc").Get(ctx, "lead_id"); v != "lead-1" {
		t.Fatalf("expected lead-1, got %q", v)
	}
	if v, _ := store.For("other").Get(ctx, "lead_id"); v != "" {
		t.Fatalf("sessions must not share values, got %q", v)
	}
}

func TestRedisSessionExpires(t *testing.T) {
	store, mr := newTestRedisStore(t, time.Minute)
	ctx := context.Background()

	if err := store.For("abc").Set(ctx, "lead_id", "lead-1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if ttl := mr.TTL(keyPrefix + "abc"); ttl != time.Minute {
		t.Fatalf("expected ttl of one minute, got %v", ttl)
	}

	mr.FastForward(2 * time.Minute)
	if v, _ := store.For("abc").Get(ctx, "lead_id"); v != "" {
		t.Fatalf("expected expired session, got %q", v)
	}
}

func TestRedisSessionReportsConnectionErrors(t *testing.T) {
	store, mr := newTestRedisStore(t, time.Hour)
	mr.Close()

	if _, err := store.For("abc").Get(context.Background(), "lead_id"); err == nil {
		t.Fatalf("expected error when redis is down")
	}
}

func TestMemorySession(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.For("a").Set(ctx, "qualification_completed", "lead-9"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, _ := store.For("a").Get(ctx, "qualification_completed"); v != "lead-9" {
		t.Fatalf("expected stored value, got %q", v)
	}
	if v, _ := store.For("b").Get(ctx, "qualification_completed"); v != "" {
		t.Fatalf("expected isolation between sessions, got %q", v)
	}
}
