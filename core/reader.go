package core

import (
	"context"
	"reflect"

	"xorkevin.dev/kerrors"
)

// Reader consumes one or more result sets of a cursor into a value of type T.
type Reader[T any] interface {
	Read(ctx context.Context, cur *Cursor) (T, error)
}

// ReaderFunc adapts a function to Reader.
type ReaderFunc[T any] func(ctx context.Context, cur *Cursor) (T, error)

func (f ReaderFunc[T]) Read(ctx context.Context, cur *Cursor) (T, error) {
	return f(ctx, cur)
}

// targetWriter is implemented by readers that write into values the caller
// already holds. Their result alone does not reproduce the read.
type targetWriter interface {
	writesTargets() bool
}

func writesTargets(r any) bool {
	w, ok := r.(targetWriter)
	return ok && w.writesTargets()
}

func anyWritesTargets(rs ...any) bool {
	for _, r := range rs {
		if writesTargets(r) {
			return true
		}
	}
	return false
}

// composedReader carries targetWriter through combinators.
type composedReader[T any] struct {
	ReaderFunc[T]
	writes bool
}

func (r composedReader[T]) writesTargets() bool { return r.writes }

func compose[T any](fn func(context.Context, *Cursor) (T, error), inner ...any) Reader[T] {
	if !anyWritesTargets(inner...) {
		return ReaderFunc[T](fn)
	}
	return composedReader[T]{ReaderFunc: fn, writes: true}
}

// List reads every row of the next result set. An empty or missing set
// yields an empty, non-nil slice.
func List[T any]() Reader[[]T] {
	return ReaderFunc[[]T](func(ctx context.Context, cur *Cursor) ([]T, error) {
		out := []T{}
		ok, err := cur.Begin(ctx)
		if err != nil || !ok {
			return out, err
		}
		for {
			more, err := cur.Next(ctx)
			if err != nil {
				return nil, err
			}
			if !more {
				return out, nil
			}
			var v T
			if err := cur.scanValue(reflect.ValueOf(&v).Elem()); err != nil {
				return nil, err
			}
			out = append(out, v)
		}
	})
}

// Single reads the first row of the next result set, or nil when the set is
// empty. Further rows are not materialized.
func Single[T any]() Reader[*T] {
	return ReaderFunc[*T](func(ctx context.Context, cur *Cursor) (*T, error) {
		ok, err := cur.Begin(ctx)
		if err != nil || !ok {
			return nil, err
		}
		more, err := cur.Next(ctx)
		if err != nil || !more {
			return nil, err
		}
		v := new(T)
		if err := cur.scanValue(reflect.ValueOf(v).Elem()); err != nil {
			return nil, err
		}
		return v, nil
	})
}

// One reads a result set holding exactly one row.
func One[T any]() Reader[T] {
	return ReaderFunc[T](func(ctx context.Context, cur *Cursor) (T, error) {
		var v T
		ok, err := cur.Begin(ctx)
		if err != nil {
			return v, err
		}
		more := false
		if ok {
			if more, err = cur.Next(ctx); err != nil {
				return v, err
			}
		}
		if !more {
			return v, kerrors.WithKind(ErrNoRows, ErrMaterialize, "Expected exactly one row")
		}
		if err := cur.scanValue(reflect.ValueOf(&v).Elem()); err != nil {
			return v, err
		}
		more, err = cur.Next(ctx)
		if err != nil {
			return v, err
		}
		if more {
			return v, kerrors.WithKind(ErrNotSingular, ErrMaterialize, "Expected exactly one row")
		}
		return v, nil
	})
}

// Skip abandons the next result set.
func Skip() Reader[struct{}] {
	return ReaderFunc[struct{}](func(ctx context.Context, cur *Cursor) (struct{}, error) {
		_, err := cur.Begin(ctx)
		return struct{}{}, err
	})
}

// First narrows a list reader to its first element, typically the single
// root of a graph. It yields nil when the list is empty.
func First[T any](r Reader[[]T]) Reader[*T] {
	return compose(func(ctx context.Context, cur *Cursor) (*T, error) {
		list, err := r.Read(ctx, cur)
		if err != nil || len(list) == 0 {
			return nil, err
		}
		return &list[0], nil
	}, r)
}

// All reads every remaining result set, one slice per set.
func All[T any]() Reader[[][]T] {
	return ReaderFunc[[][]T](func(ctx context.Context, cur *Cursor) ([][]T, error) {
		var sets [][]T
		list := List[T]()
		for !cur.done {
			before := cur.set
			rows, err := list.Read(ctx, cur)
			if err != nil {
				return nil, err
			}
			if cur.set == before {
				break
			}
			sets = append(sets, rows)
		}
		return sets, nil
	})
}
