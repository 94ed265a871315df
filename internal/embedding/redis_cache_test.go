package embedding

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) *goredis.Client {
	t.Helper()
	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379", DB: 15})
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skip("redis not available on localhost:6379")
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisCacheKeyIsStable(t *testing.T) {
	c := NewRedisCache(nil, RedisCacheConfig{})
	k1 := c.key("m", "text")
	assert.Equal(t, k1, c.key("m", "text"))
	assert.NotEqual(t, k1, c.key("other", "text"))
	assert.Contains(t, k1, "studyrag:emb:")
	assert.Len(t, k1, len("studyrag:emb:")+32)
}

func TestRedisCacheRoundTrip(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	cache := NewRedisCache(client, RedisCacheConfig{TTL: time.Minute, KeyPrefix: "studyrag:test:" + t.Name() + ":"})
	t.Cleanup(func() { _, _ = cache.Clear(context.Background()) })

	got := cache.Lookup(ctx, "m", []string{"a", "b"})
	assert.Equal(t, [][]float32{nil, nil}, got)

	cache.Store(ctx, "m", []string{"a"}, [][]float32{{0.5, -1}})
	got = cache.Lookup(ctx, "m", []string{"a", "b"})
	assert.Equal(t, []float32{0.5, -1}, got[0])
	assert.Nil(t, got[1])

	require.NoError(t, client.Set(ctx, cache.key("m", "b"), "not json", time.Minute).Err())
	got = cache.Lookup(ctx, "m", []string{"b"})
	assert.Nil(t, got[0])
	exists, err := client.Exists(ctx, cache.key("m", "b")).Result()
	require.NoError(t, err)
	assert.Zero(t, exists, "corrupt entry removed")

	n, err := cache.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
