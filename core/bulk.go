package core

import (
	"context"
	"fmt"
	"iter"
	"reflect"
	"strings"
	"time"

	"github.com/shrek82/jmap/model"
	"xorkevin.dev/kerrors"
)

// ColumnInfo describes one column of a probed table.
type ColumnInfo struct {
	Name         string
	DatabaseType string
	Nullable     bool
	// NullableKnown is false when the driver does not report nullability.
	NullableKnown bool
	ScanType      reflect.Type
}

// DiscoverSchema reads the columns of table, in table order, with a query
// returning no rows.
func DiscoverSchema(ctx context.Context, src Source, table string) ([]ColumnInfo, error) {
	var cols []ColumnInfo
	err := withLease(ctx, src, func(l *lease) error {
		var err error
		cols, err = probe(ctx, l, src.db(), table)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cols, nil
}

func probe(ctx context.Context, l *lease, db *DB, table string) ([]ColumnInfo, error) {
	query := db.dialect.ProbeSQL(table)
	start := time.Now()
	rows, err := l.ex.QueryContext(ctx, query)
	db.logger.SQL(query, time.Since(start))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cts, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	cols := make([]ColumnInfo, len(cts))
	for i, ct := range cts {
		nullable, known := ct.Nullable()
		cols[i] = ColumnInfo{
			Name:          ct.Name(),
			DatabaseType:  ct.DatabaseTypeName(),
			Nullable:      nullable,
			NullableKnown: known,
			ScanType:      ct.ScanType(),
		}
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	return cols, nil
}

// bulkPlan maps items of one type onto the loaded columns of one table.
type bulkPlan struct {
	columns []string
	kind    routineKind
	ptr     bool
	indexes [][]int // struct field per column
}

func buildBulkPlan(target reflect.Type, cols []ColumnInfo) (*bulkPlan, error) {
	p := &bulkPlan{}
	base := target
	if target.Kind() == reflect.Pointer && (target.Elem() == recordType || model.IsStructType(target.Elem())) {
		base, p.ptr = target.Elem(), true
	}

	switch {
	case base == recordType || base == anyMapType:
		p.kind = routineRecord
		if base == anyMapType {
			p.kind = routineMap
		}
		for _, c := range cols {
			p.columns = append(p.columns, c.Name)
		}
	case model.IsStructType(base):
		p.kind = routineStruct
		m, err := model.GetModelOf(base)
		if err != nil {
			return nil, kerrors.WithKind(err, ErrBinding, "Invalid item type")
		}
		used := make(map[*model.Field]bool, len(m.Fields))
		for _, c := range cols {
			f, ok := m.Lookup(c.Name)
			if !ok || used[f] || f.NoBind {
				continue
			}
			used[f] = true
			p.columns = append(p.columns, c.Name)
			p.indexes = append(p.indexes, f.Index)
		}
	default:
		return nil, kerrors.WithKind(nil, ErrBinding, fmt.Sprintf("Bulk items must be structs, records or maps, got %s", target))
	}
	if len(p.columns) == 0 {
		return nil, kerrors.WithKind(nil, ErrBinding, fmt.Sprintf("No column of the table matches %s", target))
	}
	return p, nil
}

func (p *bulkPlan) values(v reflect.Value, dst []any) ([]any, error) {
	if p.ptr {
		if v.IsNil() {
			return nil, kerrors.WithKind(ErrNilTarget, ErrBinding, "Bulk item is nil")
		}
		v = v.Elem()
	}
	dst = dst[:0]
	switch p.kind {
	case routineStruct:
		for _, idx := range p.indexes {
			dst = append(dst, v.FieldByIndex(idx).Interface())
		}
	case routineRecord:
		rec := v.Addr().Interface().(*Record)
		for _, c := range p.columns {
			val, _ := rec.Get(c)
			dst = append(dst, val)
		}
	case routineMap:
		m := v.Interface().(map[string]any)
		for _, c := range p.columns {
			val, ok := m[c]
			if !ok {
				val = lookupNormalized(m, c)
			}
			dst = append(dst, val)
		}
	}
	return dst, nil
}

func lookupNormalized(m map[string]any, column string) any {
	want := model.Normalize(column)
	for k, v := range m {
		if model.Normalize(k) == want {
			return v
		}
	}
	return nil
}

// rowSource pulls one item at a time from an iterator.
type rowSource[T any] struct {
	ctx  context.Context
	next func() (T, bool)
	plan *bulkPlan
	vals []any
	n    int64
	err  error
}

func (s *rowSource[T]) Next() bool {
	if s.err != nil {
		return false
	}
	if err := s.ctx.Err(); err != nil {
		s.err = err
		return false
	}
	item, ok := s.next()
	if !ok {
		// The sequence may have ended because ctx was cancelled.
		s.err = s.ctx.Err()
		return false
	}
	vals, err := s.plan.values(reflect.ValueOf(&item).Elem(), s.vals)
	if err != nil {
		s.err = err
		return false
	}
	s.vals = vals
	s.n++
	return true
}

func (s *rowSource[T]) Values() []any { return s.vals }
func (s *rowSource[T]) Err() error    { return s.err }

// BulkLoad streams items into table with the dialect's bulk primitive. Only
// columns with a matching field are loaded, in table order; records and
// maps load every column. Items are pulled one at a time. The column mapping
// is probed once per table and item type.
func BulkLoad[T any](ctx context.Context, src Source, table string, items iter.Seq[T]) (int64, error) {
	db := src.db()
	target := reflect.TypeFor[T]()
	call := newCall(OpBulk, table, nil, nil)
	call.SQL = table

	res, err := dispatch(ctx, src, call, func(ctx context.Context, l *lease) (int64, error) {
		key := ShapeKey{Purpose: PurposeBulk, Target: target, Source: db.dialect.Name() + "|" + table}
		plan, err := cached(db.shapes, key, func() (*bulkPlan, error) {
			cols, err := probe(ctx, l, db, table)
			if err != nil {
				return nil, err
			}
			return buildBulkPlan(target, cols)
		})
		if err != nil {
			return 0, kerrors.WithKind(err, ErrCachePopulate, fmt.Sprintf("Failed to map %s onto %s", target, table))
		}

		next, stop := iter.Pull(items)
		defer stop()
		rs := &rowSource[T]{ctx: ctx, next: next, plan: plan}

		start := time.Now()
		n, err := db.dialect.BulkLoad(ctx, l.ex, table, plan.columns, rs)
		call.Logger.SQL(fmt.Sprintf("BULK LOAD %s (%s)", table, strings.Join(plan.columns, ", ")), time.Since(start), rs.n)
		db.stats.BulkRows.Add(rs.n)
		if err == nil {
			err = rs.Err()
		}
		return n, err
	})
	if err != nil {
		return 0, err
	}
	return res.RowsAffected, nil
}

