package dialect

import (
	"context"
	"fmt"
	"strings"
)

type sqlserver struct{}

func init() {
	Register("sqlserver", &sqlserver{})
	Register("mssql", &sqlserver{})
}

func (d *sqlserver) Name() string {
	return "sqlserver"
}

func (d *sqlserver) Quote(name string) string {
	return quoteParts(name, "[", "]")
}

func (d *sqlserver) Placeholder(index int) string {
	return fmt.Sprintf("@p%d", index)
}

func (d *sqlserver) BindStyle() BindStyle {
	return BindNamed
}

func (d *sqlserver) Quoting() Quoting {
	return Quoting{Brackets: true}
}

func (d *sqlserver) ListValue(any) (any, bool) {
	return nil, false
}

func (d *sqlserver) ProcedureSQL(name string, params []ProcParam) (string, bool) {
	args := make([]string, len(params))
	for i, p := range params {
		args[i] = fmt.Sprintf("@%s = @%s", p.Name, p.Name)
		if p.Output {
			args[i] += " OUTPUT"
		}
	}
	if len(args) == 0 {
		return "EXEC " + name, true
	}
	return "EXEC " + name + " " + strings.Join(args, ", "), true
}

func (d *sqlserver) ProbeSQL(table string) string {
	return "SELECT TOP 0 * FROM " + d.Quote(table)
}

func (d *sqlserver) BulkLoad(ctx context.Context, ex Execer, table string, columns []string, rows RowSource) (int64, error) {
	return insertRows(ctx, d, ex, table, columns, rows)
}
