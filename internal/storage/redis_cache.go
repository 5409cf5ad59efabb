/**
 * Redis Result Cache
 *
 * Stores finished extractions keyed by content digest and engine so a
 * re-uploaded document skips rasterization and OCR.
 */

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const resultKeyPrefix = "ocr:result:"

// CachedResult is the cached part of an extraction
type CachedResult struct {
	Text       string   `json:"text"`
	Pages      []string `json:"pages"`
	PageCount  int      `json:"page_count"`
	WordCount  int      `json:"word_count"`
	Confidence float64  `json:"confidence"`
	Engine     string   `json:"engine"`
}

// RedisCache handles cached extraction results
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects to Redis at redisURL (redis://host:port/db)
func NewRedisCache(redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{client: client, ttl: ttl}, nil
}

// ResultKey builds the cache key for a content digest, engine and decode
// mode. The same bytes decode differently as a PDF and as an image.
func ResultKey(digest, engine, mode string) string {
	return resultKeyPrefix + engine + ":" + mode + ":" + digest
}

// Get returns the cached result, or nil without error on a miss
func (c *RedisCache) Get(ctx context.Context, key string) (*CachedResult, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache key %s: %w", key, err)
	}

	var result CachedResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode cached result: %w", err)
	}
	return &result, nil
}

// Set stores a result with the configured TTL
func (c *RedisCache) Set(ctx context.Context, key string, result *CachedResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cache key %s: %w", key, err)
	}
	return nil
}

// Ping checks Redis connectivity
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}
