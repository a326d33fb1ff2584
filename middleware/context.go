package middleware

import (
	"context"
	"time"
)

type ctxKey int

const (
	ctxKeyCacheTTL ctxKey = iota
	ctxKeyRequestID
	ctxKeyUserIP
	ctxKeyTraceID
)

const (
	// CacheForever caches a result without expiry.
	CacheForever time.Duration = -1
	// CacheDefault caches a result for the middleware's default TTL.
	CacheDefault time.Duration = -2
)

// WithCacheTTL enables result caching for calls made with the returned
// context. A ttl of 0 disables caching; CacheForever and CacheDefault are
// also accepted.
func WithCacheTTL(ctx context.Context, ttl time.Duration) context.Context {
	return context.WithValue(ctx, ctxKeyCacheTTL, ttl)
}

func cacheTTL(ctx context.Context) (time.Duration, bool) {
	ttl, ok := ctx.Value(ctxKeyCacheTTL).(time.Duration)
	if !ok || ttl == 0 {
		return 0, false
	}
	return ttl, true
}

// WithRequestID attaches a request id logged with every call.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}

// WithUserIP attaches a client address logged with every call.
func WithUserIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxKeyUserIP, ip)
}

// WithTraceID attaches a trace id logged with every call.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyTraceID, id)
}
