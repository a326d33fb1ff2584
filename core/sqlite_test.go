package core

import (
	"context"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shrek82/jmap/logger"
	"github.com/stretchr/testify/require"
)

// openSQLite opens a file backed database so every pooled connection sees
// the same tables.
func openSQLite(t *testing.T, schema ...string) *DB {
	t.Helper()
	db, err := Open("sqlite3", filepath.Join(t.TempDir(), "jmap.db"), &Options{
		MaxOpenConns: 4,
		ShapeCache:   NewShapeCache(),
		Logger:       logger.Discard(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	for _, stmt := range schema {
		_, err := Exec(context.Background(), db, stmt, nil)
		require.NoError(t, err)
	}
	return db
}
