package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/shrek82/jmap/core"
)

// MemoryCacheMiddleware caches query results in memory.
// To use it, set a TTL on the context with WithCacheTTL. Only calls that
// report Cacheable are stored, keyed by CacheKey.
type MemoryCacheMiddleware struct {
	items      map[string]memoryCacheEntry
	mu         sync.RWMutex
	stopClean  chan struct{}
	stopOnce   sync.Once
	DefaultTTL time.Duration
}

type memoryCacheEntry struct {
	Data      []byte
	ExpiresAt time.Time
}

func NewMemoryCache(defaultTTL ...time.Duration) *MemoryCacheMiddleware {
	ttl := 5 * time.Minute
	if len(defaultTTL) > 0 {
		ttl = defaultTTL[0]
	}
	return &MemoryCacheMiddleware{
		items:      make(map[string]memoryCacheEntry),
		stopClean:  make(chan struct{}),
		DefaultTTL: ttl,
	}
}

func (m *MemoryCacheMiddleware) Name() string {
	return "MemoryCache"
}

func (m *MemoryCacheMiddleware) Init(db *core.DB) error {
	// Start cleanup goroutine
	go m.cleanupLoop()
	return nil
}

func (m *MemoryCacheMiddleware) cleanupLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopClean:
			return
		case <-ticker.C:
			m.cleanup()
		}
	}
}

func (m *MemoryCacheMiddleware) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for k, v := range m.items {
		if !v.ExpiresAt.IsZero() && now.After(v.ExpiresAt) {
			delete(m.items, k)
		}
	}
}

func (m *MemoryCacheMiddleware) Shutdown() error {
	m.stopOnce.Do(func() { close(m.stopClean) })
	return nil
}

// Len returns the number of cached entries, expired ones included.
func (m *MemoryCacheMiddleware) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

func (m *MemoryCacheMiddleware) ttl(t time.Duration) time.Duration {
	switch t {
	case CacheForever:
		return 0
	case CacheDefault:
		if m.DefaultTTL > 0 {
			return m.DefaultTTL
		}
		return 24 * time.Hour
	default:
		return t
	}
}

func (m *MemoryCacheMiddleware) Process(ctx context.Context, call *core.Call, next core.CallFunc) (*core.Result, error) {
	t, ok := cacheTTL(ctx)
	if !ok || !call.Cacheable() {
		return next(ctx, call)
	}
	ttl := m.ttl(t)
	key := call.CacheKey()

	m.mu.RLock()
	entry, found := m.items[key]
	m.mu.RUnlock()

	if found {
		if entry.ExpiresAt.IsZero() || time.Now().Before(entry.ExpiresAt) {
			if decodeInto(entry.Data, call.Dest) {
				call.Logger.Debug("cache hit: %s", call.SQL)
				return &core.Result{Data: call.Dest, Cached: true}, nil
			}
		} else {
			// Expired, delete (lazy delete)
			m.mu.Lock()
			delete(m.items, key)
			m.mu.Unlock()
		}
	}

	// Cache miss or failure
	res, err := next(ctx, call)
	if err != nil {
		return res, err
	}

	if data, ok := encode(res.Data); ok {
		var expires time.Time
		if ttl > 0 {
			expires = time.Now().Add(ttl)
		}
		m.mu.Lock()
		m.items[key] = memoryCacheEntry{Data: data, ExpiresAt: expires}
		m.mu.Unlock()
	}

	return res, nil
}
