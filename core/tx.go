package core

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Tx runs calls inside a transaction the caller began. The engine neither
// commits nor rolls it back.
type Tx struct {
	parent *DB
	sqlTx  *sql.Tx
}

// WithTx returns a Source running calls on tx.
func (db *DB) WithTx(tx *sql.Tx) *Tx {
	return &Tx{parent: db, sqlTx: tx}
}

// Begin starts a transaction on the DB's pool.
func (db *DB) Begin(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	start := time.Now()
	sqlTx, err := db.pool.BeginTx(ctx, opts)
	db.logger.SQL("BEGIN", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("transaction begin failed: %w", err)
	}
	return db.WithTx(sqlTx), nil
}

// Commit commits the transaction.
func (tx *Tx) Commit() error {
	start := time.Now()
	err := tx.sqlTx.Commit()
	tx.parent.logger.SQL("COMMIT", time.Since(start))
	if err != nil {
		return fmt.Errorf("transaction commit failed: %w", err)
	}
	return nil
}

// Rollback rolls back the transaction.
func (tx *Tx) Rollback() error {
	start := time.Now()
	err := tx.sqlTx.Rollback()
	tx.parent.logger.SQL("ROLLBACK", time.Since(start))
	if err != nil {
		return fmt.Errorf("transaction rollback failed: %w", err)
	}
	return nil
}

func (tx *Tx) db() *DB { return tx.parent }

func (tx *Tx) acquire(ctx context.Context) (*lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &lease{ex: tx.sqlTx, stats: &tx.parent.stats}, nil
}
