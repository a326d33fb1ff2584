package dialect

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// RowSource is a pull-based stream of rows. Values is valid until the next
// call to Next.
type RowSource interface {
	Next() bool
	Values() []any
	Err() error
}

// Execer is the part of *sql.Conn and *sql.Tx used by bulk loads.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

type txBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// inTx runs fn inside a transaction begun on ex. When ex already is a
// transaction it is used as is and left for its owner to finish.
func inTx(ctx context.Context, ex Execer, fn func(Execer) error) (err error) {
	b, ok := ex.(txBeginner)
	if !ok {
		return fn(ex)
	}
	tx, err := b.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	return fn(tx)
}

// insertRows loads rows with one prepared INSERT per row.
func insertRows(ctx context.Context, d Dialect, ex Execer, table string, columns []string, rows RowSource) (int64, error) {
	quoted := make([]string, len(columns))
	marks := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = d.Quote(c)
		marks[i] = d.Placeholder(i + 1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.Quote(table),
		strings.Join(quoted, ", "),
		strings.Join(marks, ", "),
	)

	var count int64
	err := inTx(ctx, ex, func(ex Execer) error {
		stmt, err := ex.PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for rows.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, rows.Values()...); err != nil {
				return err
			}
			count++
		}
		return rows.Err()
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}
