package collector

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	Logger "github.com/Luismorlan/community/utils/log"
	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

// Cache stores fetched pages. Get reports a miss with ok == false.
type Cache interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type RedisCache struct {
	inner *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{inner: client}
}

// GetRedisCache connects to the redis instance configured by env.
func GetRedisCache(ctx context.Context) (*RedisCache, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT")),
		Password: os.Getenv("REDIS_PASSWD"),
		DB:       0, // use default DB
	})
	if _, err := redisClient.Ping(ctx).Result(); err != nil {
		return nil, errors.Wrap(err, "fail to ping redis")
	}
	return NewRedisCache(redisClient), nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	res, err := c.inner.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return res, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.inner.Set(ctx, key, value, ttl).Err()
}

// CachedFetcher serves pages from Cache before asking Inner. Cache failures
// are logged and fall through to Inner.
type CachedFetcher struct {
	Inner  Fetcher
	Cache  Cache
	TTL    time.Duration
	Prefix string
}

func NewCachedFetcher(inner Fetcher, cache Cache, ttl time.Duration, prefix string) *CachedFetcher {
	return &CachedFetcher{Inner: inner, Cache: cache, TTL: ttl, Prefix: prefix}
}

func (f *CachedFetcher) Fetch(ctx context.Context, q Query, cursor string) (Page, error) {
	key, err := f.key(q, cursor)
	if err != nil {
		return Page{}, err
	}
	if cached, ok, err := f.Cache.Get(ctx, key); err != nil {
		Logger.Log.Warnf("fail to read fetch cache %s: %v", key, err)
	} else if ok {
		var page Page
		if err := json.Unmarshal(cached, &page); err == nil {
			return page, nil
		}
	}

	page, err := f.Inner.Fetch(ctx, q, cursor)
	if err != nil {
		return page, err
	}
	if bytes, err := json.Marshal(page); err == nil {
		if err := f.Cache.Set(ctx, key, bytes, f.TTL); err != nil {
			Logger.Log.Warnf("fail to write fetch cache %s: %v", key, err)
		}
	}
	return page, nil
}

func (f *CachedFetcher) key(q Query, cursor string) (string, error) {
	bytes, err := json.Marshal(struct {
		Query  Query  `json:"query"`
		Cursor string `json:"cursor"`
	}{q, cursor})
	if err != nil {
		return "", errors.Wrap(err, "fail to build cache key")
	}
	sum := sha1.Sum(bytes)
	return f.Prefix + hex.EncodeToString(sum[:]), nil
}

// Wrap applies the standard retry and, when cache is not nil, caching layers
// to a platform client.
func Wrap(inner Fetcher, cache Cache, ttl time.Duration, prefix string, maxRetries uint64, initialInterval time.Duration) Fetcher {
	var f Fetcher = NewRetryFetcher(inner, maxRetries, initialInterval)
	if cache != nil && ttl > 0 {
		f = NewCachedFetcher(f, cache, ttl, prefix)
	}
	return f
}
