package dialect

import (
	"context"
	"strings"
	"sync"
)

// BindStyle tells the engine how parameters reach the driver.
type BindStyle int

const (
	// BindPositional drivers take ordered arguments; named markers in the
	// command text are rewritten to placeholders.
	BindPositional BindStyle = iota
	// BindNamed drivers take sql.NamedArg values and resolve @name markers
	// themselves. Output parameters require this style.
	BindNamed
)

// ProcParam is one parameter of a stored procedure call.
type ProcParam struct {
	Name   string
	Output bool
}

// Dialect represents the driver-specific details the mapping engine needs.
// Each database (MySQL, SQLite, etc.) must implement this interface to be supported.
type Dialect interface {
	// Name returns the registered driver name
	Name() string
	// Quote wraps a possibly schema-qualified name in database-specific quotes
	Quote(name string) string
	// Placeholder returns the positional placeholder for the 1-based argument index
	Placeholder(index int) string
	// BindStyle reports whether arguments are positional or named
	BindStyle() BindStyle
	// Quoting reports which quoting rules apply when scanning command text
	Quoting() Quoting
	// ListValue converts a slice into a single driver value when the database
	// has native array parameters. ok is false when the list must be expanded
	// into one placeholder per element.
	ListValue(list any) (value any, ok bool)
	// ProcedureSQL renders the call text for a stored procedure using :name
	// markers. ok is false when the database has no stored procedures.
	ProcedureSQL(name string, params []ProcParam) (string, bool)
	// ProbeSQL returns a query that yields the table's columns and no rows
	ProbeSQL(table string) string
	// BulkLoad streams rows into table using the fastest primitive the driver offers
	BulkLoad(ctx context.Context, ex Execer, table string, columns []string, rows RowSource) (int64, error)
}

var (
	mu       sync.RWMutex
	dialects = make(map[string]Dialect)
)

// Register registers a new dialect for a given driver name
func Register(name string, d Dialect) {
	mu.Lock()
	defer mu.Unlock()
	dialects[name] = d
}

// Get retrieves a registered dialect by driver name
func Get(name string) (Dialect, bool) {
	mu.RLock()
	defer mu.RUnlock()
	d, ok := dialects[name]
	return d, ok
}

// Names lists the registered driver names.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(dialects))
	for name := range dialects {
		names = append(names, name)
	}
	return names
}

func quoteParts(name string, open, close string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		p = strings.ReplaceAll(p, close, close+close)
		parts[i] = open + p + close
	}
	return strings.Join(parts, ".")
}

func probeSQL(d Dialect, table string) string {
	return "SELECT * FROM " + d.Quote(table) + " WHERE 1=0"
}

func procedureArgs(params []ProcParam) []string {
	args := make([]string, len(params))
	for i, p := range params {
		args[i] = ":" + p.Name
	}
	return args
}
