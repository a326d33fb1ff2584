package dialect

import (
	"context"
)

// sqlite covers both mattn/go-sqlite3 ("sqlite3") and modernc.org/sqlite ("sqlite").
type sqlite struct {
	name string
}

func init() {
	Register("sqlite3", &sqlite{name: "sqlite3"})
	Register("sqlite", &sqlite{name: "sqlite"})
}

func (d *sqlite) Name() string {
	return d.name
}

func (d *sqlite) Quote(name string) string {
	return quoteParts(name, "`", "`")
}

func (d *sqlite) Placeholder(int) string {
	return "?"
}

func (d *sqlite) BindStyle() BindStyle {
	return BindPositional
}

func (d *sqlite) Quoting() Quoting {
	return Quoting{Backticks: true, Brackets: true}
}

func (d *sqlite) ListValue(any) (any, bool) {
	return nil, false
}

func (d *sqlite) ProcedureSQL(string, []ProcParam) (string, bool) {
	return "", false
}

func (d *sqlite) ProbeSQL(table string) string {
	return probeSQL(d, table)
}

func (d *sqlite) BulkLoad(ctx context.Context, ex Execer, table string, columns []string, rows RowSource) (int64, error) {
	return insertRows(ctx, d, ex, table, columns, rows)
}
