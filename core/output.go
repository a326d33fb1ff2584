package core

import (
	"fmt"
	"reflect"

	"github.com/shrek82/jmap/model"
	"xorkevin.dev/kerrors"
)

// returnValueField is the field receiving a return parameter that matches no
// field by name.
const returnValueField = "ReturnValue"

type targetID struct {
	typ reflect.Type
	ptr uintptr
}

// extract copies the driver-written output parameters onto each target. nil
// targets are skipped and a target passed twice is written once.
func (st *statement) extract(targets []any) error {
	if len(st.outs) == 0 {
		return nil
	}
	seen := make(map[targetID]bool, len(targets))
	for _, t := range targets {
		if t == nil {
			continue
		}
		rv := reflect.ValueOf(t)
		switch rv.Kind() {
		case reflect.Pointer, reflect.Map:
			if rv.IsNil() {
				continue
			}
			id := targetID{rv.Type(), rv.Pointer()}
			if seen[id] {
				continue
			}
			seen[id] = true
		default:
			return kerrors.WithKind(nil, ErrMaterialize, fmt.Sprintf("Output target must be a pointer or map, got %T", t))
		}
		if err := st.extractInto(rv); err != nil {
			return err
		}
	}
	return nil
}

func (st *statement) extractInto(rv reflect.Value) error {
	switch t := rv.Interface().(type) {
	case *Record:
		for _, o := range st.outs {
			t.Set(o.name, o.dest.Elem().Interface())
		}
		return nil
	case map[string]any:
		for _, o := range st.outs {
			t[o.name] = o.dest.Elem().Interface()
		}
		return nil
	}

	if rv.Kind() != reflect.Pointer || !model.IsStructType(rv.Elem().Type()) {
		return kerrors.WithKind(nil, ErrMaterialize, fmt.Sprintf("Output target must point to a struct, got %s", rv.Type()))
	}
	m, err := model.GetModelOf(rv.Elem().Type())
	if err != nil {
		return kerrors.WithKind(err, ErrMaterialize, "Invalid output target")
	}
	obj := rv.Elem()
	for _, o := range st.outs {
		f, ok := m.Lookup(o.name)
		if !ok && o.isRet {
			f, ok = m.Lookup(returnValueField)
		}
		if !ok {
			continue
		}
		if err := assignOutput(obj.FieldByIndex(f.Index), o.dest.Elem(), o.name); err != nil {
			return err
		}
	}
	return nil
}

func assignOutput(dst, src reflect.Value, name string) error {
	switch {
	case src.Type().AssignableTo(dst.Type()):
		dst.Set(src)
	case src.Type().ConvertibleTo(dst.Type()) && (dst.Kind() != reflect.String || src.Kind() == reflect.String):
		dst.Set(src.Convert(dst.Type()))
	case src.Kind() == reflect.Pointer && src.Type().Elem().AssignableTo(dst.Type()):
		if src.IsNil() {
			dst.SetZero()
		} else {
			dst.Set(src.Elem())
		}
	default:
		return kerrors.WithKind(nil, ErrMaterialize, fmt.Sprintf("Output parameter %s of type %s cannot be assigned to %s", name, src.Type(), dst.Type()))
	}
	return nil
}
