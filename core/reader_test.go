package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID   int64  `jmap:"column:id"`
	Name string `jmap:"column:name"`
}

var itemCols = []string{"id", "name"}

func TestSingle(t *testing.T) {
	t.Parallel()

	t.Run("first row only", func(t *testing.T) {
		t.Parallel()

		db, _ := newFakeDB(t, "sqlite3", fixed(set(itemCols, row(int64(1), "a"), row(nil, "broken"))))
		got, err := QuerySingle[item](context.Background(), db, "SELECT id, name FROM items", nil)
		require.NoError(t, err)
		assert.Equal(t, &item{ID: 1, Name: "a"}, got)
	})

	t.Run("empty set is nil", func(t *testing.T) {
		t.Parallel()

		db, _ := newFakeDB(t, "sqlite3", fixed(set(itemCols)))
		got, err := QuerySingle[item](context.Background(), db, "SELECT id, name FROM items", nil)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestOne(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name string
		set  fakeSet
		err  error
	}{
		{name: "exactly one", set: set(itemCols, row(int64(1), "a"))},
		{name: "none", set: set(itemCols), err: ErrNoRows},
		{name: "many", set: set(itemCols, row(int64(1), "a"), row(int64(2), "b")), err: ErrNotSingular},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			db, _ := newFakeDB(t, "sqlite3", fixed(tc.set))
			got, err := Query(context.Background(), db, "SELECT id, name FROM items", nil, One[item]())
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				require.ErrorIs(t, err, ErrMaterialize)
				assert.Zero(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, item{ID: 1, Name: "a"}, got)
		})
	}
}

func TestMultipleResultSets(t *testing.T) {
	t.Parallel()

	db, fc := newFakeDB(t, "sqlite3", fixed(
		set([]string{"total"}, row(int64(3))),
		set(itemCols, row(int64(1), "a"), row(int64(2), "b")),
		set([]string{"skipped"}, row("x")),
		set(itemCols, row(int64(9), "z")),
	))

	got, err := Query(context.Background(), db, "EXEC report", nil, Multi4(
		One[int64](),
		List[item](),
		Skip(),
		Single[item](),
	))
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Set1)
	assert.Equal(t, []item{{1, "a"}, {2, "b"}}, got.Set2)
	assert.Equal(t, &item{9, "z"}, got.Set4)
	assert.Equal(t, fc.rowsOpened.Load(), fc.rowsClosed.Load())
}

func TestMissingResultSetsReadAsEmpty(t *testing.T) {
	t.Parallel()

	db, _ := newFakeDB(t, "sqlite3", fixed(set(itemCols, row(int64(1), "a"))))
	got, err := Query(context.Background(), db, "SELECT id, name FROM items", nil, Multi3(
		List[item](),
		List[item](),
		Single[item](),
	))
	require.NoError(t, err)
	assert.Len(t, got.Set1, 1)
	assert.NotNil(t, got.Set2)
	assert.Empty(t, got.Set2)
	assert.Nil(t, got.Set3)
}

func TestPartiallyReadSetIsAdvanced(t *testing.T) {
	t.Parallel()

	db, _ := newFakeDB(t, "sqlite3", fixed(
		set(itemCols, row(int64(1), "a"), row(int64(2), "b"), row(int64(3), "c")),
		set([]string{"n"}, row(int64(42))),
	))
	got, err := Query(context.Background(), db, "q", nil, Multi2(Single[item](), One[int64]()))
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Set1.ID)
	assert.Equal(t, int64(42), got.Set2)
}

func TestAllReadsEverySet(t *testing.T) {
	t.Parallel()

	db, _ := newFakeDB(t, "sqlite3", fixed(
		set([]string{"a"}, row(int64(1))),
		set([]string{"b"}, row(int64(2)), row(int64(3))),
	))
	sets, err := Query(context.Background(), db, "q", nil, All[*Record]())
	require.NoError(t, err)
	require.Len(t, sets, 2)
	assert.Len(t, sets[0], 1)
	assert.Len(t, sets[1], 2)
}

func TestRowErrorSurfaces(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection reset")
	s := set(itemCols, row(int64(1), "a"))
	s.err = boom
	db, fc := newFakeDB(t, "sqlite3", fixed(s))

	got, err := QueryList[item](context.Background(), db, "SELECT id, name FROM items", nil)
	require.ErrorIs(t, err, boom)
	assert.Nil(t, got)
	assert.Equal(t, int64(0), db.Stats().OpenConns())
	assert.Equal(t, fc.opens.Load(), fc.closes.Load())
}

func TestReadersWritingTargetsAreNotCacheable(t *testing.T) {
	t.Parallel()

	a := &item{}
	for _, tc := range []struct {
		name   string
		reader any
		writes bool
	}{
		{"list", List[item](), false},
		{"merge", MergeInto(a), true},
		{"multi with merge", Multi2(One[int64](), MergeInto(a)), true},
		{"multi without merge", Multi3(List[item](), Single[item](), Skip()), false},
		{"first of graph", First(Children(List[item](), List[item](), func(i item) int64 { return i.ID }, func(i item) int64 { return i.ID }, func(*item, []item) {})), false},
	} {
		assert.Equal(t, tc.writes, writesTargets(tc.reader), tc.name)
	}

	var n int
	call := &Call{Op: OpQuery, Dest: &n}
	assert.True(t, call.Cacheable())
	call.writes = true
	assert.False(t, call.Cacheable())

	var names []string
	other := &Call{Op: OpQuery, SQL: call.SQL, Dest: &names}
	assert.NotEqual(t, call.CacheKey(), other.CacheKey())
}
