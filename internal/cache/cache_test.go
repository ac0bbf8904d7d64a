package cache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/enrollment-portal/internal/cache"
)

type snapshot struct {
	Users int `json:"users"`
}

func newRedisCache(t *testing.T, ttl time.Duration) (*cache.Cache, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.New(cache.NewRedisStore(client, "test:"), ttl, zap.NewNop()), srv
}

func TestGetOrLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("Should serve the cached value until invalidated", func(t *testing.T) {
		c, _ := newRedisCache(t, time.Minute)
		calls := 0
		load := func(context.Context) (snapshot, error) {
			calls++
			return snapshot{Users: calls}, nil
		}

		first, err := cache.GetOrLoad(ctx, c, cache.KeyAnalytics, load)
		require.NoError(t, err)
		second, err := cache.GetOrLoad(ctx, c, cache.KeyAnalytics, load)
		require.NoError(t, err)
		assert.Equal(t, 1, first.Users)
		assert.Equal(t, 1, second.Users)

		c.InvalidateAggregates(ctx)
		third, err := cache.GetOrLoad(ctx, c, cache.KeyAnalytics, load)
		require.NoError(t, err)
		assert.Equal(t, 2, third.Users)
	})

	t.Run("Should reload after the TTL expires", func(t *testing.T) {
		c, srv := newRedisCache(t, time.Minute)
		calls := 0
		load := func(context.Context) (snapshot, error) {
			calls++
			return snapshot{Users: calls}, nil
		}

		_, err := cache.GetOrLoad(ctx, c, cache.KeyDashboard, load)
		require.NoError(t, err)
		srv.FastForward(2 * time.Minute)
		got, err := cache.GetOrLoad(ctx, c, cache.KeyDashboard, load)
		require.NoError(t, err)
		assert.Equal(t, 2, got.Users)
	})

	t.Run("Should compute the value when Redis is down", func(t *testing.T) {
		c, srv := newRedisCache(t, time.Minute)
		srv.Close()
		got, err := cache.GetOrLoad(ctx, c, cache.KeyAnalytics, func(context.Context) (snapshot, error) {
			return snapshot{Users: 7}, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 7, got.Users)
		c.InvalidateAggregates(ctx)
	})

	t.Run("Should not cache load errors", func(t *testing.T) {
		c := cache.New(cache.NewLocalStore(8, time.Minute), time.Minute, zap.NewNop())
		boom := errors.New("db down")
		_, err := cache.GetOrLoad(ctx, c, cache.KeyAnalytics, func(context.Context) (snapshot, error) {
			return snapshot{}, boom
		})
		assert.ErrorIs(t, err, boom)

		got, err := cache.GetOrLoad(ctx, c, cache.KeyAnalytics, func(context.Context) (snapshot, error) {
			return snapshot{Users: 3}, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, got.Users)
	})
}

func TestLocalStore(t *testing.T) {
	t.Run("Should drop entries on invalidation", func(t *testing.T) {
		ctx := context.Background()
		c := cache.New(cache.NewLocalStore(8, time.Minute), time.Minute, zap.NewNop())
		calls := 0
		load := func(context.Context) (snapshot, error) {
			calls++
			return snapshot{Users: calls}, nil
		}
		_, _ = cache.GetOrLoad(ctx, c, cache.KeyAnalytics, load)
		_, _ = cache.GetOrLoad(ctx, c, cache.KeyAnalytics, load)
		assert.Equal(t, 1, calls)

		c.InvalidateAggregates(ctx)
		_, _ = cache.GetOrLoad(ctx, c, cache.KeyAnalytics, load)
		assert.Equal(t, 2, calls)
	})
}
