package core

import (
	"database/sql"
	"testing"

	"github.com/lib/pq"
	"github.com/shrek82/jmap/dialect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bindFilter struct {
	Status string
	IDs    []int64 `jmap:"column:ids"`
	Note   string  `jmap:"readonly"`
}

type bindProc struct {
	CustomerID  int64  `jmap:"column:customer_id"`
	Total       int64  `jmap:"out"`
	Balance     int64  `jmap:"inout"`
	ReturnValue int    `jmap:"return"`
	Label       string `jmap:"-"`
}

func mustDialect(t *testing.T, name string) dialect.Dialect {
	t.Helper()
	d, ok := dialect.Get(name)
	require.True(t, ok, "dialect %s registered", name)
	return d
}

func TestCompilePositional(t *testing.T) {
	t.Parallel()

	shapes := NewShapeCache()

	t.Run("struct markers", func(t *testing.T) {
		t.Parallel()

		st, err := compile(mustDialect(t, "sqlite3"), shapes, &Call{
			Command: "SELECT * FROM orders WHERE status = :status AND id IN (:ids) AND note = ':status'",
			Params:  bindFilter{Status: "open", IDs: []int64{4, 5}, Note: "x"},
		})
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM orders WHERE status = ? AND id IN (?, ?) AND note = ':status'", st.sql)
		assert.Equal(t, []any{"open", int64(4), int64(5)}, st.args)
	})

	t.Run("empty list", func(t *testing.T) {
		t.Parallel()

		st, err := compile(mustDialect(t, "sqlite3"), shapes, &Call{
			Command: "SELECT * FROM orders WHERE id IN (:ids)",
			Params:  map[string]any{"ids": []int64{}},
		})
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM orders WHERE id IN (NULL)", st.sql)
		assert.Empty(t, st.args)
	})

	t.Run("postgres numbers placeholders and binds arrays", func(t *testing.T) {
		t.Parallel()

		st, err := compile(mustDialect(t, "postgres"), shapes, &Call{
			Command: "SELECT * FROM orders WHERE status = :status AND id = ANY(:ids) AND total::int > 0",
			Params:  bindFilter{Status: "open", IDs: []int64{1, 2}},
		})
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM orders WHERE status = $1 AND id = ANY($2) AND total::int > 0", st.sql)
		require.Len(t, st.args, 2)
		assert.Equal(t, "open", st.args[0])
		assert.Equal(t, pq.Array([]int64{1, 2}), st.args[1])
	})

	t.Run("unknown markers are left alone", func(t *testing.T) {
		t.Parallel()

		st, err := compile(mustDialect(t, "mysql"), shapes, &Call{
			Command: "SET @rank = :status",
			Params:  map[string]any{"status": "open"},
		})
		require.NoError(t, err)
		assert.Equal(t, "SET @rank = ?", st.sql)
	})

	t.Run("args pass through", func(t *testing.T) {
		t.Parallel()

		st, err := compile(mustDialect(t, "sqlite3"), shapes, &Call{
			Command: "SELECT ? + ?",
			Params:  Args{1, 2},
		})
		require.NoError(t, err)
		assert.Equal(t, "SELECT ? + ?", st.sql)
		assert.Equal(t, []any{1, 2}, st.args)
	})

	t.Run("output markers need named binding", func(t *testing.T) {
		t.Parallel()

		for _, marker := range []string{":Total", ":Balance", ":ReturnValue"} {
			_, err := compile(mustDialect(t, "sqlite3"), shapes, &Call{
				Command: "SELECT " + marker,
				Params:  &bindProc{Balance: 10},
			})
			require.ErrorIs(t, err, ErrBinding, marker)
		}

		_, err := compile(mustDialect(t, "mysql"), shapes, &Call{
			Command: "adjust_balance",
			Kind:    CommandProcedure,
			Params:  &bindProc{CustomerID: 1, Balance: 10},
		})
		require.ErrorIs(t, err, ErrBinding)

		st, err := compile(mustDialect(t, "sqlite3"), shapes, &Call{
			Command: "SELECT :customer_id",
			Params:  &bindProc{CustomerID: 3, Balance: 10},
		})
		require.NoError(t, err)
		assert.Equal(t, []any{int64(3)}, st.args)
	})

	t.Run("unsupported parameter objects", func(t *testing.T) {
		t.Parallel()

		_, err := compile(mustDialect(t, "sqlite3"), shapes, &Call{Command: "SELECT 1", Params: 42})
		require.ErrorIs(t, err, ErrBinding)

		_, err = compile(mustDialect(t, "sqlite3"), shapes, &Call{
			Command: "SELECT :ch",
			Params:  map[string]any{"ch": make(chan int)},
		})
		require.ErrorIs(t, err, ErrBinding)
	})

	t.Run("nil pointer binds nothing", func(t *testing.T) {
		t.Parallel()

		st, err := compile(mustDialect(t, "sqlite3"), shapes, &Call{Command: "SELECT 1", Params: (*bindFilter)(nil)})
		require.NoError(t, err)
		assert.Empty(t, st.args)
	})
}

func TestCompileNamed(t *testing.T) {
	t.Parallel()

	shapes := NewShapeCache()
	d := mustDialect(t, "sqlserver")

	t.Run("procedure with outputs", func(t *testing.T) {
		t.Parallel()

		st, err := compile(d, shapes, &Call{
			Kind:    CommandProcedure,
			Command: "dbo.PlaceOrder",
			Params:  &bindProc{CustomerID: 7, Balance: 100},
		})
		require.NoError(t, err)
		assert.Equal(t, "EXEC dbo.PlaceOrder @customer_id = @customer_id, @Total = @Total OUTPUT, @Balance = @Balance OUTPUT", st.sql)
		require.Len(t, st.args, 4)

		assert.Equal(t, sql.Named("customer_id", int64(7)), st.args[0])
		balance := st.args[2].(sql.NamedArg)
		out := balance.Value.(sql.Out)
		assert.True(t, out.In)
		assert.Equal(t, int64(100), *(out.Dest.(*int64)))

		require.Len(t, st.outs, 3)
		assert.Equal(t, "ReturnValue", st.outs[2].name)
		assert.True(t, st.outs[2].isRet)
	})

	t.Run("lists expand into numbered names", func(t *testing.T) {
		t.Parallel()

		st, err := compile(d, shapes, &Call{
			Command: "SELECT * FROM orders WHERE id IN (@ids) AND status = @status",
			Params:  map[string]any{"ids": []int{3, 4}, "status": "open"},
		})
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM orders WHERE id IN (@ids_1, @ids_2) AND status = @status", st.sql)
		assert.Equal(t, []any{sql.Named("ids_1", 3), sql.Named("ids_2", 4), sql.Named("status", "open")}, st.args)
	})

	t.Run("procedures need dialect support", func(t *testing.T) {
		t.Parallel()

		_, err := compile(mustDialect(t, "sqlite3"), shapes, &Call{Kind: CommandProcedure, Command: "p"})
		require.ErrorIs(t, err, ErrUnsupported)
	})
}
