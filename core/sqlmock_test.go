package core

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shrek82/jmap/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T, dialectName string) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	db, err := OpenDB(dialectName, sqlDB, &Options{
		ShapeCache: NewShapeCache(),
		Logger:     logger.Discard(),
	})
	require.NoError(t, err)
	return db, mock
}

func TestMockPostgresBinding(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t, "postgres")
	mock.ExpectQuery(`SELECT id, name FROM items WHERE id = ANY($1) AND name <> $2 AND note = ':kept'`).
		WithArgs(sqlmock.AnyArg(), "x").
		WillReturnRows(sqlmock.NewRows(itemCols).AddRow(int64(1), "a").AddRow(int64(2), "b")).
		RowsWillBeClosed()

	got, err := QueryList[item](context.Background(), db,
		`SELECT id, name FROM items WHERE id = ANY(:ids) AND name <> :name AND note = ':kept'`,
		map[string]any{"ids": []int64{1, 2}, "name": "x"})
	require.NoError(t, err)
	assert.Equal(t, []item{{1, "a"}, {2, "b"}}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMockTransaction(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t, "postgres")
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE items SET name = $1 WHERE id = $2`).
		WithArgs("b", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := db.Begin(ctx, nil)
	require.NoError(t, err)
	n, err := Exec(ctx, tx, `UPDATE items SET name = :name WHERE id = :id`, item{ID: 1, Name: "b"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMockProcedure(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t, "mysql")
	mock.ExpectQuery(`CALL get_item(?)`).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows(itemCols).AddRow(int64(3), "c"))

	got, err := Query(context.Background(), db, "get_item", map[string]any{"id": 3}, One[item](), AsProcedure())
	require.NoError(t, err)
	assert.Equal(t, item{3, "c"}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMockRowErrorClosesRows(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t, "sqlite3")
	boom := errors.New("connection reset")
	mock.ExpectQuery(`SELECT id, name FROM items`).
		WillReturnRows(sqlmock.NewRows(itemCols).
			AddRow(int64(1), "a").
			AddRow(int64(2), "b").
			RowError(1, boom)).
		RowsWillBeClosed()

	got, err := QueryList[item](context.Background(), db, `SELECT id, name FROM items`, nil)
	require.ErrorIs(t, err, boom)
	assert.Nil(t, got)
	assert.Equal(t, int64(0), db.Stats().OpenConns())
	require.NoError(t, mock.ExpectationsWereMet())
}
