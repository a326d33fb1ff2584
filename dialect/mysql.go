package dialect

import (
	"bufio"
	"context"
	"database/sql/driver"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
)

type mysqlDialect struct{}

func init() {
	Register("mysql", &mysqlDialect{})
}

func (d *mysqlDialect) Name() string {
	return "mysql"
}

func (d *mysqlDialect) Quote(name string) string {
	return quoteParts(name, "`", "`")
}

func (d *mysqlDialect) Placeholder(int) string {
	return "?"
}

func (d *mysqlDialect) BindStyle() BindStyle {
	return BindPositional
}

func (d *mysqlDialect) Quoting() Quoting {
	return Quoting{Backslash: true, Backticks: true}
}

func (d *mysqlDialect) ListValue(any) (any, bool) {
	return nil, false
}

func (d *mysqlDialect) ProcedureSQL(name string, params []ProcParam) (string, bool) {
	return fmt.Sprintf("CALL %s(%s)", name, strings.Join(procedureArgs(params), ", ")), true
}

func (d *mysqlDialect) ProbeSQL(table string) string {
	return probeSQL(d, table)
}

// BulkLoad streams rows as tab separated text through LOAD DATA LOCAL INFILE.
// The rows are pulled by a writer goroutine only as fast as the driver reads
// the pipe. The server must allow local_infile.
func (d *mysqlDialect) BulkLoad(ctx context.Context, ex Execer, table string, columns []string, rows RowSource) (int64, error) {
	pr, pw := io.Pipe()
	name := uuid.NewString()
	mysql.RegisterReaderHandler(name, func() io.Reader { return pr })
	defer mysql.DeregisterReaderHandler(name)

	type result struct {
		count int64
		err   error
	}
	done := make(chan result, 1)
	go func() {
		count, err := writeTSV(ctx, pw, rows)
		pw.CloseWithError(err)
		done <- result{count, err}
	}()

	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = d.Quote(c)
	}
	query := fmt.Sprintf("LOAD DATA LOCAL INFILE 'Reader::%s' INTO TABLE %s "+
		"FIELDS TERMINATED BY '\\t' ESCAPED BY '\\\\' LINES TERMINATED BY '\\n' (%s)",
		name, d.Quote(table), strings.Join(quoted, ", "))

	_, execErr := ex.ExecContext(ctx, query)
	// Unblocks the writer if the driver stopped reading early.
	pr.CloseWithError(io.ErrClosedPipe)
	res := <-done

	if execErr != nil {
		return 0, execErr
	}
	if res.err != nil {
		return 0, res.err
	}
	return res.count, nil
}

func writeTSV(ctx context.Context, w io.Writer, rows RowSource) (int64, error) {
	bw := bufio.NewWriter(w)
	var count int64
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		for i, v := range rows.Values() {
			if i > 0 {
				bw.WriteByte('\t')
			}
			if err := writeTSVValue(bw, v); err != nil {
				return count, err
			}
		}
		bw.WriteByte('\n')
		count++
	}
	if err := rows.Err(); err != nil {
		return count, err
	}
	return count, bw.Flush()
}

func writeTSVValue(w *bufio.Writer, v any) error {
	if valuer, ok := v.(driver.Valuer); ok {
		var err error
		if v, err = valuer.Value(); err != nil {
			return err
		}
	}
	switch x := v.(type) {
	case nil:
		_, err := w.WriteString(`\N`)
		return err
	case []byte:
		return escapeTSV(w, string(x))
	case string:
		return escapeTSV(w, x)
	case bool:
		if x {
			return w.WriteByte('1')
		}
		return w.WriteByte('0')
	case time.Time:
		_, err := w.WriteString(x.Format("2006-01-02 15:04:05.999999"))
		return err
	case int64:
		_, err := w.WriteString(strconv.FormatInt(x, 10))
		return err
	case float64:
		_, err := w.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
		return err
	default:
		return escapeTSV(w, fmt.Sprint(x))
	}
}

func escapeTSV(w *bufio.Writer, s string) error {
	for i := 0; i < len(s); i++ {
		var err error
		switch c := s[i]; c {
		case '\\':
			_, err = w.WriteString(`\\`)
		case '\t':
			_, err = w.WriteString(`\t`)
		case '\n':
			_, err = w.WriteString(`\n`)
		case '\r':
			_, err = w.WriteString(`\r`)
		case 0:
			_, err = w.WriteString(`\0`)
		default:
			err = w.WriteByte(c)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
