// internal/storage/cache.go
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"ihydro/internal/models"
)

const LatestKey = "ihydro:sensors:latest"

// setLatest replaces the cached reading only when the new reading is at or
// after the cached one. KEYS[1] is a hash of {ts, reading}; ts is unix millis.
var setLatest = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'ts')
if cur and tonumber(cur) > tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'ts', ARGV[1], 'reading', ARGV[2])
if tonumber(ARGV[3]) > 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[3])
end
return 1
`)

// LatestCache holds the newest reading, by timestamp, in Redis.
type LatestCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLatestCache(client *redis.Client, ttl time.Duration) *LatestCache {
	return &LatestCache{client: client, ttl: ttl}
}

// Set caches r unless a newer reading is already cached. It reports whether r
// replaced the entry.
func (c *LatestCache) Set(ctx context.Context, r models.Reading) (bool, error) {
	ts, err := r.Time()
	if err != nil {
		return false, err
	}
	data, err := json.Marshal(r)
	if err != nil {
		return false, fmt.Errorf("encode reading: %w", err)
	}
	stored, err := setLatest.Run(ctx, c.client, []string{LatestKey}, ts.UnixMilli(), data, c.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return stored == 1, nil
}

// Get returns the cached reading. A missing or unreadable entry reports
// false so callers fall back to the database.
func (c *LatestCache) Get(ctx context.Context) (models.Reading, bool, error) {
	data, err := c.client.HGet(ctx, LatestKey, "reading").Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Reading{}, false, nil
	}
	if err != nil {
		return models.Reading{}, false, err
	}
	r, err := models.ParseReading(data)
	if err != nil {
		return models.Reading{}, false, nil
	}
	return r, true, nil
}
