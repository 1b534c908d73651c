package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/wes-market/internal/domain"
)

type RedisRatingCache struct {
	client redis.Cmdable
	prefix string
}

func NewRedisRatingCache(client redis.Cmdable, prefix string) *RedisRatingCache {
	return &RedisRatingCache{
		client: client,
		prefix: prefix,
	}
}

func (c *RedisRatingCache) key(userID string) string {
	return fmt.Sprintf("%s:rating:%s", c.prefix, userID)
}

func (c *RedisRatingCache) Get(ctx context.Context, userID string) (*domain.RatingSummary, error) {
	data, err := c.client.Get(ctx, c.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var summary domain.RatingSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache data: %w", err)
	}

	return &summary, nil
}

func (c *RedisRatingCache) versionKey(userID string) string {
	return fmt.Sprintf("%s:rating:%s:version", c.prefix, userID)
}

// versionTTL bounds how long an untouched version counter lives. A reader
// whose counter expired sees a mismatch and skips its write.
const versionTTL = 24 * time.Hour

// Version returns the invalidation count of userID, zero if never
// invalidated.
func (c *RedisRatingCache) Version(ctx context.Context, userID string) (int64, error) {
	v, err := c.client.Get(ctx, c.versionKey(userID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get cache version: %w", err)
	}
	return v, nil
}

// setIfVersionScript writes the summary only while the version counter
// still holds the reader's value. Returns 1 if written.
var setIfVersionScript = redis.NewScript(`
local current = redis.call("GET", KEYS[2]) or "0"
if current ~= ARGV[1] then
  return 0
end
local ttl = tonumber(ARGV[3])
if ttl > 0 then
  redis.call("SET", KEYS[1], ARGV[2], "PX", ttl)
else
  redis.call("SET", KEYS[1], ARGV[2])
end
return 1
`)

func (c *RedisRatingCache) Set(ctx context.Context, userID string, version int64, summary domain.RatingSummary, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(summary)
	if err != nil {
		return false, fmt.Errorf("failed to marshal cache data: %w", err)
	}

	keys := []string{c.key(userID), c.versionKey(userID)}
	stored, err := setIfVersionScript.Run(ctx, c.client, keys, version, data, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to set in redis: %w", err)
	}
	return stored == 1, nil
}

// Delete drops the cached summaries and bumps their versions in one
// MULTI so in-flight readers cannot store what they loaded before.
func (c *RedisRatingCache) Delete(ctx context.Context, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}

	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range userIDs {
			pipe.Del(ctx, c.key(id))
			pipe.Incr(ctx, c.versionKey(id))
			pipe.Expire(ctx, c.versionKey(id), versionTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}
	return nil
}

var _ RatingCache = (*RedisRatingCache)(nil)
