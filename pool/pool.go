package pool

import (
	"context"
	"database/sql"
	"time"
)

// Pool defines the interface for a connection source. Connections handed out
// by Conn belong to the caller until closed.
type Pool interface {
	Close() error
	SetMaxOpenConns(n int)
	SetMaxIdleConns(n int)
	SetConnMaxLifetime(d time.Duration)
	PingContext(ctx context.Context) error
	Conn(ctx context.Context) (*sql.Conn, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	Stats() sql.DBStats
}

// StdPool is an implementation of Pool using the standard library's *sql.DB.
type StdPool struct {
	*sql.DB
}

// NewStdPool creates a new StdPool wrapping the given *sql.DB.
func NewStdPool(db *sql.DB) *StdPool {
	return &StdPool{db}
}

// Configure applies the non-zero limits to p.
func Configure(p Pool, maxOpen, maxIdle int, maxLifetime time.Duration) {
	if maxOpen > 0 {
		p.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		p.SetMaxIdleConns(maxIdle)
	}
	if maxLifetime > 0 {
		p.SetConnMaxLifetime(maxLifetime)
	}
}
