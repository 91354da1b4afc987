package guard

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// cacheBackend is the shape ProviderGuard needs from a response cache;
// both the in-memory Cache and RedisCache satisfy it so a provider can be
// configured to share cached responses across process instances without
// changing Execute's call sites.
type cacheBackend interface {
	Get(key string) (CacheEntry, bool)
	Set(key string, entry CacheEntry)
}

// RedisCache is a redis-backed response cache for providers that need
// their cached responses shared across multiple running instances of
// this service (e.g. several backfill workers hitting the same venue).
// Falls back to "not found" on any transport error rather than failing
// the guarded call — a cold or unreachable cache degrades to direct
// fetches, it never blocks them.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisCache(addr string, config ProviderConfig) *RedisCache {
	ttl := time.Duration(config.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 300 * time.Second
	}
	return &RedisCache{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
		prefix: "cryptorun:guard:" + config.Name + ":",
	}
}

func (c *RedisCache) Get(key string) (CacheEntry, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		return CacheEntry{}, false
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return CacheEntry{}, false
	}
	return entry, true
}

func (c *RedisCache) Set(key string, entry CacheEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = c.client.Set(ctx, c.prefix+key, data, c.ttl).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
