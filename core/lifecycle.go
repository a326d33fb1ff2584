package core

import (
	"context"
	"database/sql"
	"errors"
	"sync"
)

// Executor is the part of a connection a call runs against.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// Source is where a call gets its connection: a *DB, which lends one for the
// duration of the call, or a *Conn or *Tx the caller owns.
type Source interface {
	db() *DB
	acquire(ctx context.Context) (*lease, error)
}

// lease is the connection of one call. Whether it is closed on release is
// decided when it is acquired.
type lease struct {
	ex    Executor
	conn  *sql.Conn
	owned bool
	stats *Stats
	once  sync.Once
}

// release closes an owned connection. It is safe to call more than once.
func (l *lease) release() error {
	var err error
	l.once.Do(func() {
		if !l.owned || l.conn == nil {
			return
		}
		err = l.conn.Close()
		l.stats.ConnsReleased.Add(1)
	})
	return err
}

func (db *DB) db() *DB { return db }

func (db *DB) acquire(ctx context.Context) (*lease, error) {
	conn, err := db.pool.Conn(ctx)
	if err != nil {
		return nil, err
	}
	db.stats.ConnsAcquired.Add(1)
	return &lease{ex: conn, conn: conn, owned: true, stats: &db.stats}, nil
}

// Conn runs calls on a connection the caller owns. The engine never closes it.
type Conn struct {
	parent *DB
	conn   *sql.Conn
}

// WithConn returns a Source running calls on conn.
func (db *DB) WithConn(conn *sql.Conn) *Conn {
	return &Conn{parent: db, conn: conn}
}

func (c *Conn) db() *DB { return c.parent }

func (c *Conn) acquire(ctx context.Context) (*lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &lease{ex: c.conn, conn: c.conn, stats: &c.parent.stats}, nil
}

// withLease runs fn on a lease of src and releases it. A release error is
// joined to the error fn returned.
func withLease(ctx context.Context, src Source, fn func(l *lease) error) (err error) {
	l, err := src.acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if relErr := l.release(); relErr != nil {
			err = errors.Join(err, relErr)
		}
	}()
	return fn(l)
}
