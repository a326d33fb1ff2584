package dialect

import (
	"context"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// PostgreSQL dialect implementation
type postgres struct{}

func init() {
	Register("postgres", &postgres{})
}

func (d *postgres) Name() string {
	return "postgres"
}

func (d *postgres) Quote(name string) string {
	// PostgreSQL uses double quotes for identifiers
	return quoteParts(name, `"`, `"`)
}

func (d *postgres) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

func (d *postgres) BindStyle() BindStyle {
	return BindPositional
}

// Standard conforming strings: backslashes escape only inside E'' strings.
func (d *postgres) Quoting() Quoting {
	return Quoting{DollarQuotes: true}
}

// ListValue binds slices as a single array parameter, used as "= ANY(:ids)".
func (d *postgres) ListValue(list any) (any, bool) {
	return pq.Array(list), true
}

func (d *postgres) ProcedureSQL(name string, params []ProcParam) (string, bool) {
	return fmt.Sprintf("SELECT * FROM %s(%s)", name, strings.Join(procedureArgs(params), ", ")), true
}

func (d *postgres) ProbeSQL(table string) string {
	return probeSQL(d, table)
}

// BulkLoad uses COPY FROM STDIN. The statement buffers each Exec and the final
// argument-less Exec flushes the copy.
func (d *postgres) BulkLoad(ctx context.Context, ex Execer, table string, columns []string, rows RowSource) (int64, error) {
	copySQL := pq.CopyIn(table, columns...)
	if schema, name, ok := strings.Cut(table, "."); ok {
		copySQL = pq.CopyInSchema(schema, name, columns...)
	}

	var count int64
	err := inTx(ctx, ex, func(ex Execer) error {
		stmt, err := ex.PrepareContext(ctx, copySQL)
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
		if err := rows.Err(); err != nil {
			return err
		}
		_, err = stmt.ExecContext(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}
