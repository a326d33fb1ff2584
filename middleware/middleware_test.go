package middleware_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"github.com/shrek82/jmap/core"
	"github.com/shrek82/jmap/logger"
	"github.com/shrek82/jmap/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type user struct {
	ID   int64  `jmap:"column:id"`
	Name string `jmap:"column:name"`
}

func openDB(t *testing.T, l logger.Logger) *core.DB {
	t.Helper()
	if l == nil {
		l = logger.Discard()
	}
	db, err := core.Open("sqlite3", filepath.Join(t.TempDir(), "mw.db"), &core.Options{
		ShapeCache: core.NewShapeCache(),
		Logger:     l,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	_, err = core.Exec(ctx, db, "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL)", nil)
	require.NoError(t, err)
	_, err = core.Exec(ctx, db, "INSERT INTO users (name) VALUES (:name)", map[string]any{"name": "Alice"})
	require.NoError(t, err)
	return db
}

func decodeLines(t *testing.T, data []byte) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(data), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal(line, &entry), string(line))
		entries = append(entries, entry)
	}
	return entries
}

func TestSlowLog(t *testing.T) {
	t.Parallel()

	db := openDB(t, nil)
	buf := new(bytes.Buffer)
	slowLog := middleware.NewSlowLog(0, "")
	slowLog.SetOutput(buf)
	require.NoError(t, db.Use(slowLog))
	ctx := context.Background()

	_, err := core.QueryList[user](ctx, db, "SELECT id, name FROM users WHERE name = :name", map[string]any{"name": "Alice"})
	require.NoError(t, err)
	_, err = core.Exec(ctx, db, "DELETE FROM nowhere", nil)
	require.Error(t, err)

	entries := decodeLines(t, buf.Bytes())
	require.Len(t, entries, 2)

	q := entries[0]
	assert.Equal(t, "WARN", q["level"])
	assert.Equal(t, "query", q["op"])
	assert.Equal(t, "SELECT id, name FROM users WHERE name = ?", q["sql"])
	assert.Equal(t, []any{"Alice"}, q["args"])
	assert.Equal(t, false, q["cached"])
	assert.NotContains(t, q, "error")
	assert.NotContains(t, q, "procedure")
	assert.Contains(t, q["msg"], "slow query call took")

	e := entries[1]
	assert.Equal(t, "exec", e["op"])
	assert.Contains(t, e["error"], "nowhere")

	t.Run("threshold", func(t *testing.T) {
		t.Parallel()

		db := openDB(t, nil)
		buf := new(bytes.Buffer)
		slowLog := middleware.NewSlowLog(time.Hour, "")
		slowLog.SetOutput(buf)
		require.NoError(t, db.Use(slowLog))
		_, err := core.QueryList[user](context.Background(), db, "SELECT id, name FROM users", nil)
		require.NoError(t, err)
		assert.Zero(t, buf.Len())
	})

	t.Run("file", func(t *testing.T) {
		t.Parallel()

		db := openDB(t, nil)
		path := filepath.Join(t.TempDir(), "slow.log")
		slowLog := middleware.NewSlowLog(0, path)
		require.NoError(t, db.Use(slowLog))
		_, err := core.Exec(context.Background(), db, "DELETE FROM users", nil)
		require.NoError(t, err)
		require.NoError(t, db.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		entries := decodeLines(t, data)
		require.Len(t, entries, 1)
		assert.Equal(t, "exec", entries[0]["op"])
		assert.Equal(t, float64(1), entries[0]["rows"])
	})

	t.Run("call logger", func(t *testing.T) {
		t.Parallel()

		buf := new(bytes.Buffer)
		l := logger.NewStdLogger()
		l.SetOutput(buf)
		l.SetFormat(logger.LogFormatJSON)
		l.SetLevel(logger.LogLevelWarn)
		db := openDB(t, l)
		require.NoError(t, db.Use(middleware.NewTracing()))
		require.NoError(t, db.Use(middleware.NewSlowLog(0, "")))
		_, err := core.QueryList[user](context.Background(), db, "SELECT id, name FROM users", nil)
		require.NoError(t, err)

		entries := decodeLines(t, buf.Bytes())
		require.Len(t, entries, 1)
		assert.Equal(t, "query", entries[0]["op"])
		assert.NotEmpty(t, entries[0]["call_id"])
	})
}

func TestTracing(t *testing.T) {
	t.Parallel()

	buf := new(bytes.Buffer)
	l := logger.NewStdLogger()
	l.SetOutput(buf)
	l.SetFormat(logger.LogFormatJSON)
	l.SetLevel(logger.LogLevelInfo)
	db := openDB(t, l)
	require.NoError(t, db.Use(middleware.NewTracing()))
	buf.Reset()

	ctx := middleware.WithRequestID(context.Background(), "req-1")
	ctx = middleware.WithTraceID(ctx, "trace-9")
	_, err := core.QueryList[user](ctx, db, "SELECT id, name FROM users", nil)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "SQL", entry["level"])
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "trace-9", entry["trace_id"])
	assert.Equal(t, "query", entry["op"])
	assert.NotEmpty(t, entry["call_id"])
	assert.NotContains(t, entry, "user_ip")
}

func TestMemoryCache(t *testing.T) {
	t.Parallel()

	db := openDB(t, nil)
	cache := middleware.NewMemoryCache(time.Minute)
	require.NoError(t, db.Use(cache))

	ctx := context.Background()
	cached := middleware.WithCacheTTL(ctx, middleware.CacheDefault)
	const list = "SELECT id, name FROM users ORDER BY id"

	users, err := core.QueryList[user](cached, db, list, nil)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, 1, cache.Len())

	_, err = core.Exec(cached, db, "INSERT INTO users (name) VALUES ('Bob')", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Len(), "exec must not be cached")

	users, err = core.QueryList[user](cached, db, list, nil)
	require.NoError(t, err)
	assert.Equal(t, []user{{ID: 1, Name: "Alice"}}, users)

	users, err = core.QueryList[user](ctx, db, list, nil)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	t.Run("target type is part of the key", func(t *testing.T) {
		type label struct {
			Label string `jmap:"column:name"`
		}
		labels, err := core.QueryList[label](cached, db, list, nil)
		require.NoError(t, err)
		assert.Equal(t, []label{{Label: "Alice"}, {Label: "Bob"}}, labels)

		users, err := core.QueryList[user](cached, db, list, nil)
		require.NoError(t, err)
		assert.Equal(t, []user{{ID: 1, Name: "Alice"}}, users)
	})

	t.Run("merges into caller objects bypass the cache", func(t *testing.T) {
		const byID = "SELECT id, name FROM users WHERE id = 1"
		before := cache.Len()
		for range 2 {
			u := &user{}
			n, err := core.Query(cached, db, byID, nil, core.MergeInto(u))
			require.NoError(t, err)
			assert.Equal(t, 1, n)
			assert.Equal(t, "Alice", u.Name)

			v := &user{}
			got, err := core.Query(cached, db, byID, nil, core.Multi2(core.MergeInto(v), core.Skip()))
			require.NoError(t, err)
			assert.Equal(t, 1, got.Set1)
			assert.Equal(t, "Alice", v.Name)
		}
		assert.Equal(t, before, cache.Len())
	})

	t.Run("arguments are part of the key", func(t *testing.T) {
		one, err := core.QuerySingle[user](cached, db, "SELECT id, name FROM users WHERE id = :id", map[string]any{"id": 2})
		require.NoError(t, err)
		require.NotNil(t, one)
		assert.Equal(t, "Bob", one.Name)
	})

	t.Run("records", func(t *testing.T) {
		recs, err := core.QueryList[*core.Record](cached, db, "SELECT name FROM users ORDER BY id", nil)
		require.NoError(t, err)
		again, err := core.QueryList[*core.Record](cached, db, "SELECT name FROM users ORDER BY id", nil)
		require.NoError(t, err)
		assert.Equal(t, recs, again)
	})

	t.Run("expiry", func(t *testing.T) {
		short := middleware.WithCacheTTL(ctx, time.Millisecond)
		const count = "SELECT COUNT(*) FROM users"
		n, err := core.Query(short, db, count, nil, core.One[int64]())
		require.NoError(t, err)
		_, err = core.Exec(ctx, db, "INSERT INTO users (name) VALUES ('Carol')", nil)
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
		m, err := core.Query(short, db, count, nil, core.One[int64]())
		require.NoError(t, err)
		assert.Equal(t, n+1, m)
	})
}

func TestCircuitBreaker(t *testing.T) {
	t.Parallel()

	db := openDB(t, nil)
	cb := middleware.NewCircuitBreaker(2, 50*time.Millisecond)
	require.NoError(t, db.Use(cb))
	ctx := context.Background()

	for range 2 {
		_, err := core.Exec(ctx, db, "SELECT FROM nowhere", nil)
		require.Error(t, err)
	}
	assert.Equal(t, middleware.StateOpen, cb.State())

	_, err := core.QueryList[user](ctx, db, "SELECT id, name FROM users", nil)
	require.ErrorIs(t, err, middleware.ErrCircuitOpen)

	time.Sleep(60 * time.Millisecond)
	users, err := core.QueryList[user](ctx, db, "SELECT id, name FROM users", nil)
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, middleware.StateClosed, cb.State())
	assert.Equal(t, "closed", cb.State().String())

	t.Run("materialization errors are not failures", func(t *testing.T) {
		for range 3 {
			_, err := core.Query(ctx, db, "SELECT id FROM users UNION ALL SELECT id FROM users", nil, core.One[int64]())
			require.ErrorIs(t, err, core.ErrMaterialize)
		}
		assert.Equal(t, middleware.StateClosed, cb.State())
	})

	t.Run("cancellation is not a failure", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		for range 3 {
			_, err := core.Exec(cctx, db, "DELETE FROM users", nil)
			require.ErrorIs(t, err, context.Canceled)
		}
		assert.Equal(t, middleware.StateClosed, cb.State())
	})
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("JMAP_REDIS_ADDR")
	if addr == "" {
		t.Skip("JMAP_REDIS_ADDR not set")
	}

	db := openDB(t, nil)
	cache := middleware.NewRedisCache(&redis.Options{Addr: addr})
	require.NoError(t, db.Use(cache))

	ctx := middleware.WithCacheTTL(context.Background(), 10*time.Second)
	query := "SELECT id, name FROM users WHERE name <> '" + strings.Repeat("x", 8) + time.Now().Format(time.RFC3339Nano) + "'"

	first, err := core.QueryList[user](ctx, db, query, nil)
	require.NoError(t, err)
	_, err = core.Exec(context.Background(), db, "INSERT INTO users (name) VALUES ('Bob')", nil)
	require.NoError(t, err)

	second, err := core.QueryList[user](ctx, db, query, nil)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
