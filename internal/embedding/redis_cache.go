package embedding

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/kart-io/logger"
	"github.com/minio/highwayhash"
	goredis "github.com/redis/go-redis/v9"
)

// RedisCacheConfig configures RedisCache.
type RedisCacheConfig struct {
	TTL       time.Duration
	KeyPrefix string
}

// DefaultRedisCacheConfig keeps vectors for a day.
func DefaultRedisCacheConfig() RedisCacheConfig {
	return RedisCacheConfig{TTL: 24 * time.Hour, KeyPrefix: "studyrag:emb:"}
}

// RedisCache stores vectors as JSON under a HighwayHash of model and text.
// Redis failures are logged and treated as misses.
type RedisCache struct {
	client *goredis.Client
	cfg    RedisCacheConfig
}

var cacheKeySeed = []byte("studyrag/embedding/cache/key/v1.")

// NewRedisCache wraps an existing client.
func NewRedisCache(client *goredis.Client, cfg RedisCacheConfig) *RedisCache {
	def := DefaultRedisCacheConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = def.KeyPrefix
	}
	return &RedisCache{client: client, cfg: cfg}
}

func (c *RedisCache) key(model, text string) string {
	sum := highwayhash.Sum128([]byte(model+"\x00"+text), cacheKeySeed)
	return c.cfg.KeyPrefix + hex.EncodeToString(sum[:])
}

// Lookup fetches all texts with one MGET.
func (c *RedisCache) Lookup(ctx context.Context, model string, texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = c.key(model, t)
	}
	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		logger.Warnw("embedding cache lookup failed", "error", err.Error())
		return out
	}
	hits := 0
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var vec []float32
		if err := json.Unmarshal([]byte(s), &vec); err != nil || len(vec) == 0 {
			logger.Warnw("dropping corrupt cached embedding", "key", keys[i])
			_ = c.client.Del(ctx, keys[i]).Err()
			continue
		}
		out[i] = vec
		hits++
	}
	logger.Debugw("embedding cache lookup", "model", model, "total", len(texts), "hits", hits)
	return out
}

// Store writes vectors in one pipeline.
func (c *RedisCache) Store(ctx context.Context, model string, texts []string, vecs [][]float32) {
	pipe := c.client.Pipeline()
	for i, t := range texts {
		data, err := json.Marshal(vecs[i])
		if err != nil {
			continue
		}
		pipe.Set(ctx, c.key(model, t), data, c.cfg.TTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Warnw("embedding cache store failed", "error", err.Error(), "count", len(texts))
	}
}

// Clear removes every key under the configured prefix.
func (c *RedisCache) Clear(ctx context.Context) (int, error) {
	iter := c.client.Scan(ctx, 0, c.cfg.KeyPrefix+"*", 100).Iterator()
	deleted := 0
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, iter.Err()
}
