package main

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/shrek82/jmap/core"
	"github.com/shrek82/jmap/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldName(t *testing.T) {
	for in, want := range map[string]string{
		"id":         "ID",
		"user_id":    "UserID",
		"created_at": "CreatedAt",
		"UserName":   "UserName",
		"2fa":        "X2fa",
	} {
		assert.Equal(t, want, fieldName(in), in)
	}
}

func TestGoType(t *testing.T) {
	for _, tc := range []struct {
		col  core.ColumnInfo
		want string
	}{
		{core.ColumnInfo{DatabaseType: "VARCHAR(20)"}, "string"},
		{core.ColumnInfo{DatabaseType: "tinyint(1)"}, "int8"},
		{core.ColumnInfo{DatabaseType: "BIGINT", Nullable: true, NullableKnown: true}, "*int64"},
		{core.ColumnInfo{DatabaseType: "BYTEA", Nullable: true, NullableKnown: true}, "[]byte"},
		{core.ColumnInfo{DatabaseType: "TIMESTAMPTZ"}, "time.Time"},
		{core.ColumnInfo{DatabaseType: "GEOMETRY", ScanType: reflect.TypeOf(time.Time{})}, "time.Time"},
		{core.ColumnInfo{DatabaseType: "", ScanType: reflect.TypeOf(float32(0))}, "float32"},
		{core.ColumnInfo{DatabaseType: "", ScanType: reflect.TypeOf(struct{}{})}, "any"},
	} {
		assert.Equal(t, tc.want, goType(tc.col), tc.col.DatabaseType)
	}
}

func TestGenerateModel(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	db, err := core.Open("sqlite3", filepath.Join(dir, "gen.db"), &core.Options{Logger: logger.Discard()})
	require.NoError(t, err)
	defer db.Close()

	_, err = core.Exec(ctx, db, `CREATE TABLE users (
		id INTEGER PRIMARY KEY,
		user_name TEXT NOT NULL,
		created_at DATETIME,
		avatar BLOB
	)`, nil)
	require.NoError(t, err)

	c := &Cmd{genFlags: genFlags{pkgName: "models", outDir: dir}}
	require.NoError(t, c.generateModel(ctx, db, "users"))

	src, err := os.ReadFile(filepath.Join(dir, "user.go"))
	require.NoError(t, err)
	out := string(src)
	assert.Contains(t, out, "package models")
	assert.Contains(t, out, `"time"`)
	assert.Contains(t, out, "type User struct")
	for _, want := range []string{
		`jmap:"column:id;pk"`,
		`jmap:"column:user_name"`,
		`jmap:"column:created_at"`,
		`jmap:"column:avatar"`,
	} {
		assert.Contains(t, out, want)
	}

	// Existing files are kept unless overwrite is set.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "user.go"), []byte("keep"), 0644))
	require.NoError(t, c.generateModel(ctx, db, "users"))
	kept, _ := os.ReadFile(filepath.Join(dir, "user.go"))
	assert.Equal(t, "keep", string(kept))

	c.genFlags.overwrite = true
	require.NoError(t, c.generateModel(ctx, db, "users"))
	regenerated, _ := os.ReadFile(filepath.Join(dir, "user.go"))
	assert.True(t, strings.HasPrefix(string(regenerated), "// Code generated by jmap gen"))
}

func TestJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"id\":1,\"name\":\"a\"}\n\n{\"id\":2}\nnot json\n{\"id\":3}\n"), 0644))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var failure error
	var ids []any
	for rec := range jsonLines(f, func(err error) { failure = err }) {
		id, _ := rec.Get("id")
		ids = append(ids, id)
	}
	assert.Equal(t, []any{int64(1), int64(2)}, ids)
	require.Error(t, failure)
	assert.Contains(t, failure.Error(), "line 4")
}
