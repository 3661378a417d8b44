package confirm

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCache(client, "crm"), mr
}

// cacheFactories runs the same contract against both implementations.
func cacheFactories(t *testing.T) map[string]func() (Cache, func(time.Duration)) {
	return map[string]func() (Cache, func(time.Duration)){
		"redis": func() (Cache, func(time.Duration)) {
			c, mr := newRedisCache(t)
			return c, mr.FastForward
		},
		"memory": func() (Cache, func(time.Duration)) {
			c := NewMemoryCache("crm")
			now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
			var mu sync.Mutex
			c.now = func() time.Time {
				mu.Lock()
				defer mu.Unlock()
				return now
			}
			return c, func(d time.Duration) {
				mu.Lock()
				now = now.Add(d)
				mu.Unlock()
			}
		},
	}
}

func TestCacheRetrieveIsOneShot(t *testing.T) {
	for name, mk := range cacheFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c, _ := mk()
			require.NoError(t, c.Store(ctx, "abc", []byte(`{"x":1}`), time.Minute))

			exists, err := c.Exists(ctx, "abc")
			require.NoError(t, err)
			assert.True(t, exists)

			got, ok, err := c.Retrieve(ctx, "abc")
			require.NoError(t, err)
			require.True(t, ok)
			assert.JSONEq(t, `{"x":1}`, string(got))

			_, ok, err = c.Retrieve(ctx, "abc")
			require.NoError(t, err)
			assert.False(t, ok, "second retrieval must miss")

			exists, err = c.Exists(ctx, "abc")
			require.NoError(t, err)
			assert.False(t, exists)
		})
	}
}

func TestCacheEntryExpires(t *testing.T) {
	for name, mk := range cacheFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c, advance := mk()
			require.NoError(t, c.Store(ctx, "abc", []byte("payload"), time.Second))
			advance(2 * time.Second)

			got, ok, err := c.Retrieve(ctx, "abc")
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Nil(t, got)
		})
	}
}

func TestCacheStoreOverwrites(t *testing.T) {
	for name, mk := range cacheFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c, _ := mk()
			require.NoError(t, c.Store(ctx, "abc", []byte("one"), time.Minute))
			require.NoError(t, c.Store(ctx, "abc", []byte("two"), time.Minute))
			got, ok, err := c.Retrieve(ctx, "abc")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "two", string(got))
		})
	}
}

func TestCacheConcurrentRetrieveHasOneWinner(t *testing.T) {
	for name, mk := range cacheFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c, _ := mk()
			require.NoError(t, c.Store(ctx, "abc", []byte("payload"), time.Minute))

			var wins atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, ok, err := c.Retrieve(ctx, "abc")
					if err == nil && ok {
						wins.Add(1)
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, int32(1), wins.Load())
		})
	}
}

func TestRedisCacheKeysAreNamespaced(t *testing.T) {
	c, mr := newRedisCache(t)
	require.NoError(t, c.Store(context.Background(), "abc", []byte("p"), time.Minute))
	assert.True(t, mr.Exists("salesdesk:crm:abc"))
	assert.Equal(t, time.Minute, mr.TTL("salesdesk:crm:abc"))

	other := NewRedisCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "tax")
	_, ok, err := other.Retrieve(context.Background(), "abc")
	require.NoError(t, err)
	assert.False(t, ok, "namespaces must not collide")
}

func TestRedisCacheReportsServerFailure(t *testing.T) {
	c, mr := newRedisCache(t)
	mr.SetError("ERR backend unavailable")
	_, ok, err := c.Retrieve(context.Background(), "abc")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestRedisCacheFallsBackWithoutGetDel(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCache(t)
	calls := 0
	c.getDel = func(ctx context.Context, key string) *redis.StringCmd {
		calls++
		return redis.NewStringResult("", errors.New("ERR unknown command 'getdel', with args beginning with: "))
	}
	require.NoError(t, c.Store(ctx, "abc", []byte(`{"x":1}`), time.Minute))

	got, ok, err := c.Retrieve(ctx, "abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"x":1}`, string(got))
	assert.False(t, mr.Exists("salesdesk:crm:abc"), "the fallback removes the key")

	_, ok, err = c.Retrieve(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = c.Retrieve(ctx, "never-stored")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 3, calls)
}

func TestRedisCacheOtherGetDelErrorsSurface(t *testing.T) {
	c, _ := newRedisCache(t)
	boom := errors.New("READONLY You can't write against a read only replica")
	c.getDel = func(ctx context.Context, key string) *redis.StringCmd {
		return redis.NewStringResult("", boom)
	}
	_, ok, err := c.Retrieve(context.Background(), "abc")
	assert.ErrorIs(t, err, boom)
	assert.False(t, ok)
}

func TestMemoryCachePurge(t *testing.T) {
	c := NewMemoryCache("crm")
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()
	require.NoError(t, c.Store(ctx, "short", []byte("a"), time.Second))
	require.NoError(t, c.Store(ctx, "long", []byte("b"), time.Hour))

	now = now.Add(time.Minute)
	assert.Equal(t, 1, c.Purge())
	assert.Equal(t, 1, c.Len())
}

func TestMemoryCacheRunStopsOnCancel(t *testing.T) {
	c := NewMemoryCache("crm")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("janitor did not stop")
	}
}
