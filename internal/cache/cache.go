package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Keys of the cached admin aggregates. Every mutation that changes counts or
// review state drops all of them.
const (
	KeyAnalytics = "admin-analytics"
	KeyDashboard = "admin-dashboard"
)

var aggregateKeys = []string{KeyAnalytics, KeyDashboard}

// Store is a byte-oriented TTL store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Invalidator drops cached aggregates after a write.
type Invalidator interface {
	InvalidateAggregates(ctx context.Context)
}

// Cache stores JSON-encoded aggregates with a fixed TTL.
type Cache struct {
	store  Store
	ttl    time.Duration
	logger *zap.Logger
}

// New builds a cache over store.
func New(store Store, ttl time.Duration, logger *zap.Logger) *Cache {
	return &Cache{store: store, ttl: ttl, logger: logger}
}

// GetOrLoad returns the cached value for key or computes, stores and returns it.
// Store failures degrade to computing the value.
func GetOrLoad[T any](ctx context.Context, c *Cache, key string, load func(context.Context) (T, error)) (T, error) {
	var value T
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}
	if ok {
		if err := json.Unmarshal(raw, &value); err == nil {
			return value, nil
		}
		c.logger.Warn("cache entry undecodable", zap.String("key", key))
	}

	value, err = load(ctx)
	if err != nil {
		return value, err
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return value, fmt.Errorf("encode cache entry: %w", err)
	}
	if err := c.store.Set(ctx, key, encoded, c.ttl); err != nil {
		c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
	return value, nil
}

// InvalidateAggregates drops every admin aggregate. Failures are logged only.
func (c *Cache) InvalidateAggregates(ctx context.Context) {
	if err := c.store.Delete(ctx, aggregateKeys...); err != nil {
		c.logger.Warn("cache invalidation failed", zap.Error(err))
	}
}

// RedisStore keeps entries in Redis under a key prefix.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore builds the store.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, s.prefix+key, value, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.prefix + k
	}
	return s.client.Del(ctx, full...).Err()
}

// LocalStore is an in-process expirable LRU used when Redis is absent.
type LocalStore struct {
	lru *expirable.LRU[string, []byte]
}

// NewLocalStore builds an LRU holding up to size entries for ttl each.
func NewLocalStore(size int, ttl time.Duration) *LocalStore {
	if size <= 0 {
		size = 64
	}
	return &LocalStore{lru: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

func (s *LocalStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.lru.Get(key)
	return v, ok, nil
}

// Set ignores ttl; the LRU applies the lifetime it was built with.
func (s *LocalStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.lru.Add(key, value)
	return nil
}

func (s *LocalStore) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		s.lru.Remove(k)
	}
	return nil
}
