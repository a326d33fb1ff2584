package core

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shrek82/jmap/logger"
)

// fakeSet is one result set a fake command produces.
type fakeSet struct {
	cols  []string
	types []string
	rows  [][]driver.Value
	err   error // returned once the rows are exhausted
}

// fakeResult is what the fake driver answers to one command.
type fakeResult struct {
	sets     []fakeSet
	affected int64
	outs     map[string]any
}

type fakeHandler func(query string, args []driver.NamedValue) (*fakeResult, error)

// fakeConnector counts the connections and cursors it hands out.
type fakeConnector struct {
	handler fakeHandler

	opens      atomic.Int64
	closes     atomic.Int64
	rowsOpened atomic.Int64
	rowsClosed atomic.Int64

	mu      sync.Mutex
	queries []string
}

func (c *fakeConnector) Connect(context.Context) (driver.Conn, error) {
	c.opens.Add(1)
	return &fakeConn{c: c}, nil
}

func (c *fakeConnector) Driver() driver.Driver { return fakeDriver{} }

func (c *fakeConnector) Queries() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.queries...)
}

func (c *fakeConnector) run(query string, args []driver.NamedValue) (*fakeResult, error) {
	c.mu.Lock()
	c.queries = append(c.queries, query)
	c.mu.Unlock()
	res, err := c.handler(query, args)
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = &fakeResult{}
	}
	for _, a := range args {
		out, ok := a.Value.(sql.Out)
		if !ok {
			continue
		}
		v, ok := res.outs[a.Name]
		if !ok {
			continue
		}
		dst := reflect.ValueOf(out.Dest).Elem()
		if v == nil {
			dst.Set(reflect.Zero(dst.Type()))
			continue
		}
		dst.Set(reflect.ValueOf(v).Convert(dst.Type()))
	}
	return res, nil
}

type fakeDriver struct{}

func (fakeDriver) Open(string) (driver.Conn, error) {
	return nil, errors.New("fake driver opens through its connector")
}

type fakeConn struct {
	c      *fakeConnector
	closed bool
}

func (c *fakeConn) Prepare(query string) (driver.Stmt, error) {
	return &fakeStmt{conn: c, query: query}, nil
}

func (c *fakeConn) Close() error {
	if !c.closed {
		c.closed = true
		c.c.closes.Add(1)
	}
	return nil
}

func (c *fakeConn) Begin() (driver.Tx, error) { return fakeTx{}, nil }

func (c *fakeConn) CheckNamedValue(nv *driver.NamedValue) error {
	if _, ok := nv.Value.(sql.Out); ok {
		return nil
	}
	return driver.ErrSkip
}

func (c *fakeConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	res, err := c.c.run(query, args)
	if err != nil {
		return nil, err
	}
	if len(res.sets) == 0 {
		res.sets = []fakeSet{{}}
	}
	c.c.rowsOpened.Add(1)
	return &fakeRows{c: c.c, sets: res.sets}, nil
}

func (c *fakeConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	res, err := c.c.run(query, args)
	if err != nil {
		return nil, err
	}
	return driver.RowsAffected(res.affected), nil
}

type fakeTx struct{}

func (fakeTx) Commit() error   { return nil }
func (fakeTx) Rollback() error { return nil }

type fakeStmt struct {
	conn  *fakeConn
	query string
}

func (s *fakeStmt) Close() error  { return nil }
func (s *fakeStmt) NumInput() int { return -1 }

func (s *fakeStmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.conn.ExecContext(context.Background(), s.query, named(args))
}

func (s *fakeStmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.conn.QueryContext(context.Background(), s.query, named(args))
}

func named(args []driver.Value) []driver.NamedValue {
	nv := make([]driver.NamedValue, len(args))
	for i, a := range args {
		nv[i] = driver.NamedValue{Ordinal: i + 1, Value: a}
	}
	return nv
}

type fakeRows struct {
	c      *fakeConnector
	sets   []fakeSet
	set    int
	row    int
	closed bool
}

func (r *fakeRows) Columns() []string { return r.sets[r.set].cols }

func (r *fakeRows) ColumnTypeDatabaseTypeName(i int) string {
	if t := r.sets[r.set].types; i < len(t) {
		return t[i]
	}
	return ""
}

func (r *fakeRows) Close() error {
	if !r.closed {
		r.closed = true
		r.c.rowsClosed.Add(1)
	}
	return nil
}

func (r *fakeRows) Next(dest []driver.Value) error {
	s := r.sets[r.set]
	if r.row >= len(s.rows) {
		if s.err != nil {
			return s.err
		}
		return io.EOF
	}
	copy(dest, s.rows[r.row])
	r.row++
	return nil
}

func (r *fakeRows) HasNextResultSet() bool { return r.set+1 < len(r.sets) }

func (r *fakeRows) NextResultSet() error {
	if !r.HasNextResultSet() {
		return io.EOF
	}
	r.set++
	r.row = 0
	return nil
}

// set builds a result set from column names and rows.
func set(cols []string, rows ...[]driver.Value) fakeSet {
	return fakeSet{cols: cols, rows: rows}
}

func row(values ...driver.Value) []driver.Value { return values }

// newFakeDB opens a DB of the named dialect on a fake driver. Idle
// connections are not kept, so every released connection is closed.
func newFakeDB(t *testing.T, dialectName string, handler fakeHandler) (*DB, *fakeConnector) {
	t.Helper()
	fc := &fakeConnector{handler: handler}
	sqlDB := sql.OpenDB(fc)
	sqlDB.SetMaxIdleConns(0)
	db, err := OpenDB(dialectName, sqlDB, &Options{
		ShapeCache: NewShapeCache(),
		Logger:     logger.Discard(),
	})
	if err != nil {
		t.Fatalf("failed to open fake db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, fc
}

// fixed answers every command with the same sets.
func fixed(sets ...fakeSet) fakeHandler {
	return func(string, []driver.NamedValue) (*fakeResult, error) {
		return &fakeResult{sets: sets}, nil
	}
}

func argValues(args []driver.NamedValue) []any {
	out := make([]any, len(args))
	for i, a := range args {
		if a.Name != "" {
			out[i] = fmt.Sprintf("%s=%v", a.Name, a.Value)
			continue
		}
		out[i] = a.Value
	}
	return out
}
