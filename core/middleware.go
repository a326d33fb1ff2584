package core

import (
	"context"
	"fmt"

	"github.com/shrek82/jmap/logger"
)

// Component is the base interface for all jmap components/middleware.
type Component interface {
	Name() string
	Init(db *DB) error
	Shutdown() error
}

// Operation names the kind of call a middleware sees.
type Operation string

const (
	OpQuery  Operation = "query"
	OpExec   Operation = "exec"
	OpInsert Operation = "insert"
	OpBulk   Operation = "bulk"
)

// CommandKind says how the command text is interpreted.
type CommandKind int

const (
	// CommandText is literal SQL with optional :name or @name markers.
	CommandText CommandKind = iota
	// CommandProcedure is a stored procedure name; the dialect renders the call.
	CommandProcedure
)

// Call is one command on its way to the database. Binding has happened
// before middleware runs, so SQL and Args hold what the driver receives.
type Call struct {
	Op      Operation
	Kind    CommandKind
	Command string // text or procedure name as given by the caller
	SQL     string
	Params  any
	Args    []any
	// Dest points at the value the call produces. A middleware answering
	// without calling next must fill it.
	Dest    any
	Outputs []any
	Logger  logger.Logger

	hasOutParams bool
	writes       bool
}

// WithFields attaches fields to every log line of this call.
func (c *Call) WithFields(fields map[string]any) {
	c.Logger = c.Logger.WithFields(fields)
}

// Cacheable reports whether the call's result can be replayed from a cache:
// a query with no output parameters whose reader only builds new values.
func (c *Call) Cacheable() bool {
	return c.Op == OpQuery && !c.hasOutParams && !c.writes && c.Dest != nil
}

// CacheKey identifies the command, its arguments and the type it reads into.
func (c *Call) CacheKey() string {
	return fmt.Sprintf("jmap:cache:%T:%s:%v", c.Dest, c.SQL, c.Args)
}

// Result represents the result of a call.
type Result struct {
	RowsAffected int64
	Data         any // the call's Dest
	Cached       bool
}

// CallFunc is the function type for the next step in the middleware chain.
type CallFunc func(ctx context.Context, call *Call) (*Result, error)

// Middleware is the interface for call interceptors.
type Middleware interface {
	Component
	Process(ctx context.Context, call *Call, next CallFunc) (*Result, error)
}

func chain(mws []Middleware, final CallFunc) CallFunc {
	next := final
	for i := len(mws) - 1; i >= 0; i-- {
		mw, inner := mws[i], next
		next = func(ctx context.Context, call *Call) (*Result, error) {
			return mw.Process(ctx, call, inner)
		}
	}
	return next
}
