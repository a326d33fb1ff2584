package core

import (
	"context"
	"fmt"
	"time"

	"xorkevin.dev/kerrors"
)

// CallOption configures one call.
type CallOption func(*Call)

// WithOutputs names additional objects receiving output parameter values.
// Insert always writes them into the inserted object too.
func WithOutputs(targets ...any) CallOption {
	return func(c *Call) {
		c.Outputs = append(c.Outputs, targets...)
	}
}

// AsProcedure treats the command text as a stored procedure name.
func AsProcedure() CallOption {
	return func(c *Call) {
		c.Kind = CommandProcedure
	}
}

func newCall(op Operation, command string, params any, opts []CallOption) *Call {
	c := &Call{Op: op, Kind: CommandText, Command: command, Params: params}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// runFunc executes a compiled call on a leased connection.
type runFunc func(ctx context.Context, l *lease, st *statement) (int64, error)

// invoke binds the call and dispatches it. Nothing is acquired when binding
// fails.
func invoke(ctx context.Context, src Source, call *Call, run runFunc) (*Result, error) {
	db := src.db()
	st, err := compile(db.dialect, db.shapes, call)
	if err != nil {
		db.stats.record(call.Op, 0, err)
		return nil, err
	}
	call.SQL, call.Args = st.sql, st.args
	call.hasOutParams = len(st.outs) > 0
	return dispatch(ctx, src, call, func(ctx context.Context, l *lease) (int64, error) {
		return run(ctx, l, st)
	})
}

// dispatch sends the call through the middleware chain and runs it on a
// connection from src. The connection is released before dispatch returns.
func dispatch(ctx context.Context, src Source, call *Call, run func(ctx context.Context, l *lease) (int64, error)) (*Result, error) {
	db := src.db()
	call.Logger = db.logger

	final := func(ctx context.Context, call *Call) (*Result, error) {
		res := &Result{Data: call.Dest}
		err := withLease(ctx, src, func(l *lease) error {
			n, err := run(ctx, l)
			res.RowsAffected = n
			return err
		})
		if err != nil {
			return nil, err
		}
		return res, nil
	}

	start := time.Now()
	res, err := chain(db.chain(), final)(ctx, call)
	db.stats.record(call.Op, time.Since(start), err)
	if err != nil {
		call.Logger.Debug("%s failed: %v", call.Op, err)
		return nil, err
	}
	return res, nil
}

// queryRows executes the call and hands its cursor to read. Result sets left
// unread are drained and the rows closed before output parameters are
// extracted.
func queryRows(ctx context.Context, l *lease, shapes *ShapeCache, call *Call, st *statement, read func(ctx context.Context, cur *Cursor) error) error {
	start := time.Now()
	rows, err := l.ex.QueryContext(ctx, call.SQL, call.Args...)
	call.Logger.SQL(call.SQL, time.Since(start), call.Args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	cur := newCursor(rows, shapes)
	if err := read(ctx, cur); err != nil {
		return err
	}
	if err := cur.drain(ctx); err != nil {
		return err
	}
	if err := rows.Close(); err != nil {
		return err
	}
	return st.extract(call.Outputs)
}

// Query executes a command and reads its result sets with reader. On error
// the zero value is returned and nothing read so far is kept.
func Query[T any](ctx context.Context, src Source, text string, params any, reader Reader[T], opts ...CallOption) (T, error) {
	var out T
	if reader == nil {
		return out, kerrors.WithKind(ErrNilTarget, ErrMaterialize, "Reader is nil")
	}
	call := newCall(OpQuery, text, params, opts)
	call.Dest = &out
	call.writes = writesTargets(reader)
	shapes := src.db().shapes
	_, err := invoke(ctx, src, call, func(ctx context.Context, l *lease, st *statement) (int64, error) {
		return 0, queryRows(ctx, l, shapes, call, st, func(ctx context.Context, cur *Cursor) error {
			v, err := reader.Read(ctx, cur)
			if err != nil {
				return err
			}
			out = v
			return nil
		})
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// QueryList reads the first result set into a slice.
func QueryList[T any](ctx context.Context, src Source, text string, params any, opts ...CallOption) ([]T, error) {
	return Query(ctx, src, text, params, List[T](), opts...)
}

// QuerySingle reads the first row of the first result set, or nil.
func QuerySingle[T any](ctx context.Context, src Source, text string, params any, opts ...CallOption) (*T, error) {
	return Query(ctx, src, text, params, Single[T](), opts...)
}

// Exec executes a command and returns the number of affected rows.
func Exec(ctx context.Context, src Source, text string, params any, opts ...CallOption) (int64, error) {
	call := newCall(OpExec, text, params, opts)
	res, err := invoke(ctx, src, call, func(ctx context.Context, l *lease, st *statement) (int64, error) {
		start := time.Now()
		r, err := l.ex.ExecContext(ctx, call.SQL, call.Args...)
		call.Logger.SQL(call.SQL, time.Since(start), call.Args...)
		if err != nil {
			return 0, err
		}
		if err := st.extract(call.Outputs); err != nil {
			return 0, err
		}
		return r.RowsAffected()
	})
	if err != nil {
		return 0, err
	}
	return res.RowsAffected, nil
}

// Insert executes a command bound from obj. Rows the command returns are
// merged into obj by position and output parameters are written into obj and
// any WithOutputs targets.
func Insert[T any](ctx context.Context, src Source, text string, obj *T, opts ...CallOption) (*T, error) {
	if obj == nil {
		return nil, kerrors.WithKind(ErrNilTarget, ErrBinding, "Insert object is nil")
	}
	if _, err := InsertList(ctx, src, text, []*T{obj}, obj, opts...); err != nil {
		return nil, err
	}
	return obj, nil
}

// InsertList executes a command bound from params and merges the rows it
// returns into objs by position. Objects past the last row are left
// unchanged. Output parameters are written into every object.
func InsertList[T any](ctx context.Context, src Source, text string, objs []*T, params any, opts ...CallOption) ([]*T, error) {
	for i, obj := range objs {
		if obj == nil {
			continue
		}
		if h, ok := any(obj).(BeforeInserter); ok {
			if err := h.BeforeInsert(); err != nil {
				return nil, kerrors.WithMsg(err, fmt.Sprintf("BeforeInsert failed for object %d", i))
			}
		}
	}

	call := newCall(OpInsert, text, params, opts)
	targets := make([]any, 0, len(objs)+len(call.Outputs))
	for _, obj := range objs {
		if obj != nil {
			targets = append(targets, obj)
		}
	}
	call.Outputs = append(targets, call.Outputs...)
	call.Dest = &objs

	shapes := src.db().shapes
	merge := MergeInto(objs...)
	_, err := invoke(ctx, src, call, func(ctx context.Context, l *lease, st *statement) (int64, error) {
		var n int
		err := queryRows(ctx, l, shapes, call, st, func(ctx context.Context, cur *Cursor) error {
			var err error
			n, err = merge.Read(ctx, cur)
			return err
		})
		return int64(n), err
	})
	if err != nil {
		return nil, err
	}

	for i, obj := range objs {
		if obj == nil {
			continue
		}
		if h, ok := any(obj).(AfterInserter); ok {
			if err := h.AfterInsert(); err != nil {
				return nil, kerrors.WithMsg(err, fmt.Sprintf("AfterInsert failed for object %d", i))
			}
		}
	}
	return objs, nil
}
