package redis_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/prep-api/internal/platform/redis"
	"github.com/phrazzld/prep-api/internal/ratelimit"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Store) {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := redis.NewClient(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return mr, redis.NewStore(client)
}

var start = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func bucket(key string) ratelimit.Bucket {
	return ratelimit.Bucket{Key: key, Start: start, Window: time.Hour}
}

func TestStoreIncrementIfBelow(t *testing.T) {
	t.Parallel()

	mr, store := setupRedis(t)
	ctx := context.Background()
	b := bucket("question-set:user-1")

	for want := 1; want <= 3; want++ {
		count, allowed, err := store.IncrementIfBelow(ctx, b, 3)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Equal(t, want, count)
	}

	count, allowed, err := store.IncrementIfBelow(ctx, b, 3)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 3, count, "a rejected call consumes nothing")

	key := redis.DefaultKeyPrefix + "question-set:user-1:" + "1740823200"
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Hour, mr.TTL(key))
}

func TestStoreKeysAreIndependent(t *testing.T) {
	t.Parallel()

	_, store := setupRedis(t)
	ctx := context.Background()

	_, allowed, err := store.IncrementIfBelow(ctx, bucket("a"), 1)
	require.NoError(t, err)
	assert.True(t, allowed)

	_, allowed, err = store.IncrementIfBelow(ctx, bucket("b"), 1)
	require.NoError(t, err)
	assert.True(t, allowed)

	next := bucket("a")
	next.Start = start.Add(time.Hour)
	_, allowed, err = store.IncrementIfBelow(ctx, next, 1)
	require.NoError(t, err)
	assert.True(t, allowed, "a new window starts a new counter")
}

func TestStoreCountersExpire(t *testing.T) {
	t.Parallel()

	mr, store := setupRedis(t)
	ctx := context.Background()
	b := bucket("k")

	_, _, err := store.IncrementIfBelow(ctx, b, 1)
	require.NoError(t, err)
	_, allowed, err := store.IncrementIfBelow(ctx, b, 1)
	require.NoError(t, err)
	require.False(t, allowed)

	mr.FastForward(time.Hour)

	count, allowed, err := store.IncrementIfBelow(ctx, b, 1)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 1, count)

	removed, err := store.DeleteExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestStoreConcurrentIncrements(t *testing.T) {
	t.Parallel()

	_, store := setupRedis(t)
	b := bucket("burst")

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := store.IncrementIfBelow(context.Background(), b, 10)
			if assert.NoError(t, err) && ok {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), allowed.Load())
}

func TestStoreWithLimiter(t *testing.T) {
	t.Parallel()

	_, store := setupRedis(t)
	now := start.Add(15 * time.Minute)
	limiter := ratelimit.NewLimiter(store, nil, ratelimit.WithClock(func() time.Time { return now }))

	for i := 0; i < 5; i++ {
		d, err := limiter.CheckAndConsume(context.Background(), "question-set:user-1", 5, time.Hour)
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}

	d, err := limiter.CheckAndConsume(context.Background(), "question-set:user-1", 5, time.Hour)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 45*time.Minute, d.RetryAfter(now))
}

func TestStoreUnavailable(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	store := redis.NewStore(client)
	mr.Close()

	_, _, err := store.IncrementIfBelow(context.Background(), bucket("k"), 1)
	assert.Error(t, err)
}

func TestNewClient(t *testing.T) {
	t.Parallel()

	_, err := redis.NewClient(context.Background(), "")
	assert.Error(t, err)

	_, err = redis.NewClient(context.Background(), "not a url")
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err = redis.NewClient(context.Background(), "redis://"+addr)
	assert.Error(t, err)
}
