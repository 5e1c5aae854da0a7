// Package session provides the per-visitor key/value store the qualification
// flow uses to remember a created lead across page loads.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"windowleads_backend/internal/qualification/ports"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "funnel:session:"

// Store hands out session-scoped views.
type Store interface {
	For(sessionID string) ports.SessionStore
}

// RedisStore keeps each session as a Redis hash that expires ttl after its
// last write.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a RedisStore from a redis:// or rediss:// URL.
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisStoreWithClient(redis.NewClient(opt), ttl), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) For(sessionID string) ports.SessionStore {
	return &redisSession{store: s, key: keyPrefix + sessionID}
}

type redisSession struct {
	store *RedisStore
	key   string
}

func (r *redisSession) Get(ctx context.Context, field string) (string, error) {
	v, err := r.store.client.HGet(ctx, r.key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("session get %s: %w", field, err)
	}
	return v, nil
}

func (r *redisSession) Set(ctx context.Context, field, value string) error {
	_, err := r.store.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.key, field, value)
		if r.store.ttl > 0 {
			pipe.Expire(ctx, r.key, r.store.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("session set %s: %w", field, err)
	}
	return nil
}

// MemoryStore is an in-process Store for local development without Redis.
// Entries never expire.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string]string)}
}

func (s *MemoryStore) For(sessionID string) ports.SessionStore {
	return &memorySession{store: s, id: sessionID}
}

type memorySession struct {
	store *MemoryStore
	id    string
}

func (m *memorySession) Get(_ context.Context, key string) (string, error) {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	return m.store.data[m.id][key], nil
}

func (m *memorySession) Set(_ context.Context, key, value string) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	values, ok := m.store.data[m.id]
	if !ok {
		values = make(map[string]string)
		m.store.data[m.id] = values
	}
	values[key] = value
	return nil
}

var (
	_ Store = (*RedisStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
