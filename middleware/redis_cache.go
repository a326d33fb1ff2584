package middleware

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shrek82/jmap/core"
)

// RedisCacheMiddleware caches query results in Redis.
// To use it, set a TTL on the context with WithCacheTTL. Values are
// msgpack-encoded and keyed by CacheKey; calls that are not Cacheable pass
// straight through.
type RedisCacheMiddleware struct {
	Client     redis.UniversalClient
	DefaultTTL time.Duration
	owned      bool
}

func NewRedisCache(opt *redis.Options) *RedisCacheMiddleware {
	return &RedisCacheMiddleware{
		Client:     redis.NewClient(opt),
		DefaultTTL: 5 * time.Minute,
		owned:      true,
	}
}

// NewRedisCacheWithClient uses an existing client, which Shutdown leaves open.
func NewRedisCacheWithClient(client redis.UniversalClient) *RedisCacheMiddleware {
	return &RedisCacheMiddleware{Client: client, DefaultTTL: 5 * time.Minute}
}

func (m *RedisCacheMiddleware) Name() string {
	return "RedisCache"
}

func (m *RedisCacheMiddleware) Init(db *core.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.Client.Ping(ctx).Err()
}

func (m *RedisCacheMiddleware) Shutdown() error {
	if !m.owned {
		return nil
	}
	return m.Client.Close()
}

func (m *RedisCacheMiddleware) Process(ctx context.Context, call *core.Call, next core.CallFunc) (*core.Result, error) {
	t, ok := cacheTTL(ctx)
	if !ok || !call.Cacheable() {
		return next(ctx, call)
	}

	var ttl time.Duration
	switch t {
	case CacheForever:
		// Redis uses 0 for no expiration
		ttl = 0
	case CacheDefault:
		ttl = m.DefaultTTL
	default:
		ttl = t
	}

	key := call.CacheKey()

	val, err := m.Client.Get(ctx, key).Bytes()
	if err == nil && decodeInto(val, call.Dest) {
		call.Logger.Debug("cache hit: %s", call.SQL)
		return &core.Result{Data: call.Dest, Cached: true}, nil
	}

	// Cache miss or failure
	res, err := next(ctx, call)
	if err != nil {
		return res, err
	}

	if data, ok := encode(res.Data); ok {
		if err := m.Client.Set(ctx, key, data, ttl).Err(); err != nil {
			call.Logger.Warn("redis cache set failed: %v", err)
		}
	}

	return res, nil
}
