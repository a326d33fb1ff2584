package core

import (
	"context"
	"database/sql/driver"
	"fmt"
	"reflect"

	"github.com/shrek82/jmap/model"
	"xorkevin.dev/kerrors"
)

// MergeInto reads the next result set into existing objects by position: row
// i overwrites the matching fields of targets[i]. Targets past the last row
// are left unchanged and rows past the last target are discarded. nil
// targets are skipped. It yields the number of rows merged.
func MergeInto[T any](targets ...*T) Reader[int] {
	return composedReader[int]{writes: true, ReaderFunc: func(ctx context.Context, cur *Cursor) (int, error) {
		ok, err := cur.Begin(ctx)
		if err != nil || !ok {
			return 0, err
		}
		merged := 0
		for i := 0; ; i++ {
			more, err := cur.Next(ctx)
			if err != nil {
				return merged, err
			}
			if !more {
				return merged, nil
			}
			if i >= len(targets) || targets[i] == nil {
				continue
			}
			if err := cur.scanValue(reflect.ValueOf(targets[i]).Elem()); err != nil {
				return merged, err
			}
			merged++
		}
	}}
}

// mergeGraph attaches children to parents by key. Children keep their set
// order. A key shared by several parents goes to the first of them; every
// other parent gets an empty, non-nil slice. Children whose key matches no
// parent are dropped.
func mergeGraph[P, C any, K comparable](parents []P, children []C, parentKey func(P) K, childKey func(C) K, attach func(*P, []C)) {
	groups := make(map[K][]C, len(parents))
	for _, c := range children {
		k := childKey(c)
		groups[k] = append(groups[k], c)
	}
	claimed := make(map[K]bool, len(parents))
	for i := range parents {
		k := parentKey(parents[i])
		kids := groups[k]
		if claimed[k] || kids == nil {
			kids = []C{}
		}
		claimed[k] = true
		attach(&parents[i], kids)
	}
}

// Children reads parents with one reader and children with the next, then
// attaches each parent's children. The result is itself a parent list, so
// graphs nest by passing a Children reader as the children of another.
func Children[P, C any, K comparable](parents Reader[[]P], children Reader[[]C], parentKey func(P) K, childKey func(C) K, attach func(*P, []C)) Reader[[]P] {
	return compose(func(ctx context.Context, cur *Cursor) ([]P, error) {
		ps, err := parents.Read(ctx, cur)
		if err != nil {
			return nil, err
		}
		cs, err := children.Read(ctx, cur)
		if err != nil {
			return nil, err
		}
		mergeGraph(ps, cs, parentKey, childKey, attach)
		return ps, nil
	}, parents, children)
}

// graphPlan is the cached accessor set for one parent collection field.
type graphPlan struct {
	rel       *model.Relation
	parentPtr bool
	childPtr  bool
}

func structOf(t reflect.Type) (reflect.Type, bool) {
	if t.Kind() == reflect.Pointer {
		return t.Elem(), true
	}
	return t, false
}

func buildGraphPlan(parent, child reflect.Type, field string) (*graphPlan, error) {
	pBase, pPtr := structOf(parent)
	cBase, cPtr := structOf(child)
	m, err := model.GetModelOf(pBase)
	if err != nil {
		return nil, kerrors.WithKind(err, ErrMaterialize, "Invalid parent type")
	}
	rel, err := model.GetRelation(m, field)
	if err != nil {
		return nil, kerrors.WithKind(err, ErrMaterialize, "Invalid relation")
	}
	if rel.Child.Type != cBase || rel.ElemPtr != cPtr {
		return nil, kerrors.WithKind(nil, ErrMaterialize, fmt.Sprintf("Field %s of %s holds %s, not %s", field, pBase, rel.Field.Type.Elem(), child))
	}
	return &graphPlan{rel: rel, parentPtr: pPtr, childPtr: cPtr}, nil
}

type (
	nilParentKey struct{}
	nilChildKey  struct{}
)

// graphKey normalizes a key value so equal numbers of different widths
// correlate. NULL keys never match.
func graphKey(v reflect.Value, nilKey any) any {
	if !v.IsValid() {
		return nilKey
	}
	if v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nilKey
		}
		if _, ok := v.Interface().(driver.Valuer); !ok {
			return graphKey(v.Elem(), nilKey)
		}
	}
	if vr, ok := v.Interface().(driver.Valuer); ok {
		dv, err := vr.Value()
		if err != nil || dv == nil {
			return nilKey
		}
		return graphKey(reflect.ValueOf(dv), nilKey)
	}
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := v.Uint()
		if u <= 1<<63-1 {
			return int64(u)
		}
		return u
	case reflect.Float32, reflect.Float64:
		return v.Float()
	case reflect.Slice:
		if b, ok := v.Interface().([]byte); ok {
			return string(b)
		}
	}
	if !v.Type().Comparable() {
		return nilKey
	}
	return v.Interface()
}

// AutoChildren is Children with the correlation taken from the parent's
// collection field: its jmap tag names the foreign key on the child and
// optionally the referenced parent field. The declaration is cached.
func AutoChildren[P, C any](parents Reader[[]P], children Reader[[]C], field string) Reader[[]P] {
	return compose(func(ctx context.Context, cur *Cursor) ([]P, error) {
		pt, ct := reflect.TypeFor[P](), reflect.TypeFor[C]()
		key := ShapeKey{Purpose: PurposeGraph, Target: pt, Source: fmt.Sprintf("%s|%p", field, ct)}
		plan, err := cached(cur.shapes, key, func() (*graphPlan, error) {
			return buildGraphPlan(pt, ct, field)
		})
		if err != nil {
			return nil, kerrors.WithKind(err, ErrCachePopulate, fmt.Sprintf("Failed to build graph for %s.%s", pt, field))
		}

		ps, err := parents.Read(ctx, cur)
		if err != nil {
			return nil, err
		}
		cs, err := children.Read(ctx, cur)
		if err != nil {
			return nil, err
		}

		rel := plan.rel
		elem := func(v reflect.Value, ptr bool) reflect.Value {
			if ptr {
				if v.IsNil() {
					return reflect.Value{}
				}
				return v.Elem()
			}
			return v
		}
		mergeGraph(ps, cs,
			func(p P) any {
				s := elem(reflect.ValueOf(&p).Elem(), plan.parentPtr)
				if !s.IsValid() {
					return nilParentKey{}
				}
				return graphKey(s.FieldByIndex(rel.ParentKey.Index), nilParentKey{})
			},
			func(c C) any {
				s := elem(reflect.ValueOf(&c).Elem(), plan.childPtr)
				if !s.IsValid() {
					return nilChildKey{}
				}
				return graphKey(s.FieldByIndex(rel.ForeignKey.Index), nilChildKey{})
			},
			func(p *P, kids []C) {
				s := elem(reflect.ValueOf(p).Elem(), plan.parentPtr)
				if !s.IsValid() {
					return
				}
				f := s.FieldByIndex(rel.Field.Index)
				f.Set(reflect.ValueOf(kids).Convert(f.Type()))
			},
		)
		return ps, nil
	}, parents, children)
}
