package core

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"

	"xorkevin.dev/kerrors"
)

// Cursor walks the result sets of one executed command in driver order.
// Readers call Begin to claim the next set, then Next and Scan over its rows.
// A set claimed by a reader is advanced past when the next set is claimed, so
// rows a reader leaves unread are discarded. Only Begin and Next observe
// context cancellation.
type Cursor struct {
	rows   *sql.Rows
	shapes *ShapeCache
	set    int  // index of the claimed set, -1 before the first Begin
	done   bool // the command has no further sets
	cols   []*sql.ColumnType
	plans  map[reflect.Type]*rowPlan
}

func newCursor(rows *sql.Rows, shapes *ShapeCache) *Cursor {
	return &Cursor{rows: rows, shapes: shapes, set: -1}
}

// Set returns the index of the current result set.
func (c *Cursor) Set() int {
	return c.set
}

// Begin claims the next result set. It returns false, with no error, when the
// command produced no further set; readers treat that as an empty set.
func (c *Cursor) Begin(ctx context.Context) (bool, error) {
	if c.done {
		return false, nil
	}
	if c.set >= 0 {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if !c.rows.NextResultSet() {
			c.done = true
			return false, c.rows.Err()
		}
	}
	c.set++
	c.cols = nil
	clear(c.plans)
	return true, nil
}

// Next advances to the next row of the claimed set.
func (c *Cursor) Next(ctx context.Context) (bool, error) {
	if c.done || c.set < 0 {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !c.rows.Next() {
		return false, c.rows.Err()
	}
	return true, nil
}

// Columns returns the column schema of the claimed set.
func (c *Cursor) Columns() ([]*sql.ColumnType, error) {
	if c.cols == nil {
		cols, err := c.rows.ColumnTypes()
		if err != nil {
			return nil, err
		}
		c.cols = cols
	}
	return c.cols, nil
}

// Scan materializes the current row into dst, which must be a non-nil
// pointer. The routine for the (type, column schema) pair comes from the
// shape cache and is generated on first use.
func (c *Cursor) Scan(dst any) error {
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return kerrors.WithKind(nil, ErrMaterialize, fmt.Sprintf("Scan destination must be a non-nil pointer, got %T", dst))
	}
	return c.scanValue(v.Elem())
}

func (c *Cursor) scanValue(dst reflect.Value) error {
	p, err := c.plan(dst.Type())
	if err != nil {
		return err
	}
	return p.scan(c.rows, dst)
}

func (c *Cursor) plan(target reflect.Type) (*rowPlan, error) {
	if p, ok := c.plans[target]; ok {
		return p, nil
	}
	cols, err := c.Columns()
	if err != nil {
		return nil, err
	}
	key := ShapeKey{Purpose: PurposeRow, Target: target, Source: columnSignature(cols)}
	p, err := cached(c.shapes, key, func() (*rowPlan, error) {
		return buildRowPlan(target, cols)
	})
	if err != nil {
		return nil, kerrors.WithKind(err, ErrCachePopulate, fmt.Sprintf("Failed to build row routine for %s", target))
	}
	if c.plans == nil {
		c.plans = make(map[reflect.Type]*rowPlan, 1)
	}
	c.plans[target] = p
	return p, nil
}

// drain advances past every set no reader claimed. Output parameters of some
// drivers are only written once this has happened.
func (c *Cursor) drain(ctx context.Context) error {
	for !c.done {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !c.rows.NextResultSet() {
			c.done = true
			return c.rows.Err()
		}
		c.set++
	}
	return nil
}
