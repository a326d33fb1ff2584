package core

import "context"

// Results2 holds the values of two readers applied in order.
type Results2[A, B any] struct {
	Set1 A
	Set2 B
}

// Results3 holds the values of three readers applied in order.
type Results3[A, B, C any] struct {
	Set1 A
	Set2 B
	Set3 C
}

// Results4 holds the values of four readers applied in order.
type Results4[A, B, C, D any] struct {
	Set1 A
	Set2 B
	Set3 C
	Set4 D
}

// Results5 holds the values of five readers applied in order.
type Results5[A, B, C, D, E any] struct {
	Set1 A
	Set2 B
	Set3 C
	Set4 D
	Set5 E
}

func readInto[T any](ctx context.Context, cur *Cursor, r Reader[T], dst *T) error {
	v, err := r.Read(ctx, cur)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

// Multi2 applies two readers to consecutive result sets.
func Multi2[A, B any](ra Reader[A], rb Reader[B]) Reader[Results2[A, B]] {
	return compose(func(ctx context.Context, cur *Cursor) (Results2[A, B], error) {
		var out Results2[A, B]
		if err := readInto(ctx, cur, ra, &out.Set1); err != nil {
			return Results2[A, B]{}, err
		}
		if err := readInto(ctx, cur, rb, &out.Set2); err != nil {
			return Results2[A, B]{}, err
		}
		return out, nil
	}, ra, rb)
}

// Multi3 applies three readers to consecutive result sets.
func Multi3[A, B, C any](ra Reader[A], rb Reader[B], rc Reader[C]) Reader[Results3[A, B, C]] {
	return compose(func(ctx context.Context, cur *Cursor) (Results3[A, B, C], error) {
		var out Results3[A, B, C]
		if err := readInto(ctx, cur, ra, &out.Set1); err != nil {
			return Results3[A, B, C]{}, err
		}
		if err := readInto(ctx, cur, rb, &out.Set2); err != nil {
			return Results3[A, B, C]{}, err
		}
		if err := readInto(ctx, cur, rc, &out.Set3); err != nil {
			return Results3[A, B, C]{}, err
		}
		return out, nil
	}, ra, rb, rc)
}

// Multi4 applies four readers to consecutive result sets.
func Multi4[A, B, C, D any](ra Reader[A], rb Reader[B], rc Reader[C], rd Reader[D]) Reader[Results4[A, B, C, D]] {
	return compose(func(ctx context.Context, cur *Cursor) (Results4[A, B, C, D], error) {
		var out Results4[A, B, C, D]
		if err := readInto(ctx, cur, ra, &out.Set1); err != nil {
			return Results4[A, B, C, D]{}, err
		}
		if err := readInto(ctx, cur, rb, &out.Set2); err != nil {
			return Results4[A, B, C, D]{}, err
		}
		if err := readInto(ctx, cur, rc, &out.Set3); err != nil {
			return Results4[A, B, C, D]{}, err
		}
		if err := readInto(ctx, cur, rd, &out.Set4); err != nil {
			return Results4[A, B, C, D]{}, err
		}
		return out, nil
	}, ra, rb, rc, rd)
}

// Multi5 applies five readers to consecutive result sets.
func Multi5[A, B, C, D, E any](ra Reader[A], rb Reader[B], rc Reader[C], rd Reader[D], re Reader[E]) Reader[Results5[A, B, C, D, E]] {
	return compose(func(ctx context.Context, cur *Cursor) (Results5[A, B, C, D, E], error) {
		var out Results5[A, B, C, D, E]
		if err := readInto(ctx, cur, ra, &out.Set1); err != nil {
			return Results5[A, B, C, D, E]{}, err
		}
		if err := readInto(ctx, cur, rb, &out.Set2); err != nil {
			return Results5[A, B, C, D, E]{}, err
		}
		if err := readInto(ctx, cur, rc, &out.Set3); err != nil {
			return Results5[A, B, C, D, E]{}, err
		}
		if err := readInto(ctx, cur, rd, &out.Set4); err != nil {
			return Results5[A, B, C, D, E]{}, err
		}
		if err := readInto(ctx, cur, re, &out.Set5); err != nil {
			return Results5[A, B, C, D, E]{}, err
		}
		return out, nil
	}, ra, rb, rc, rd, re)
}
