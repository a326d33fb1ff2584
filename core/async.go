package core

import (
	"context"
	"fmt"
	"iter"

	"golang.org/x/sync/errgroup"
)

// Task is a call running in its own goroutine. The call owns its connection
// exactly as a blocking call does and releases it before the task completes.
type Task[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Go runs fn in a new goroutine. A panic in fn completes the task with an
// error.
func Go[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) *Task[T] {
	t := &Task[T]{done: make(chan struct{})}
	go func() {
		defer close(t.done)
		defer func() {
			if p := recover(); p != nil {
				var zero T
				t.val, t.err = zero, fmt.Errorf("jmap: task panicked: %v", p)
			}
		}()
		t.val, t.err = fn(ctx)
	}()
	return t
}

// Done is closed when the task completes.
func (t *Task[T]) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task completes or ctx is done. Giving up on a task
// does not cancel it; cancel the context the task was started with.
func (t *Task[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		return t.val, t.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result returns the outcome of a completed task. It blocks until then.
func (t *Task[T]) Result() (T, error) {
	<-t.done
	return t.val, t.err
}

// QueryAsync is Query in its own goroutine.
func QueryAsync[T any](ctx context.Context, src Source, text string, params any, reader Reader[T], opts ...CallOption) *Task[T] {
	return Go(ctx, func(ctx context.Context) (T, error) {
		return Query(ctx, src, text, params, reader, opts...)
	})
}

// ExecAsync is Exec in its own goroutine.
func ExecAsync(ctx context.Context, src Source, text string, params any, opts ...CallOption) *Task[int64] {
	return Go(ctx, func(ctx context.Context) (int64, error) {
		return Exec(ctx, src, text, params, opts...)
	})
}

// InsertAsync is Insert in its own goroutine. obj must not be touched until
// the task completes.
func InsertAsync[T any](ctx context.Context, src Source, text string, obj *T, opts ...CallOption) *Task[*T] {
	return Go(ctx, func(ctx context.Context) (*T, error) {
		return Insert(ctx, src, text, obj, opts...)
	})
}

// InsertListAsync is InsertList in its own goroutine.
func InsertListAsync[T any](ctx context.Context, src Source, text string, objs []*T, params any, opts ...CallOption) *Task[[]*T] {
	return Go(ctx, func(ctx context.Context) ([]*T, error) {
		return InsertList(ctx, src, text, objs, params, opts...)
	})
}

// BulkLoadAsync is BulkLoad in its own goroutine.
func BulkLoadAsync[T any](ctx context.Context, src Source, table string, items iter.Seq[T]) *Task[int64] {
	return Go(ctx, func(ctx context.Context) (int64, error) {
		return BulkLoad(ctx, src, table, items)
	})
}

// Gather runs fns concurrently, at most limit at a time when limit is
// positive. The first error cancels the context passed to the others and is
// returned once all have finished.
func Gather(ctx context.Context, limit int, fns ...func(ctx context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, fn := range fns {
		g.Go(func() error {
			return fn(gctx)
		})
	}
	return g.Wait()
}
