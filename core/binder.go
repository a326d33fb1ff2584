package core

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/shrek82/jmap/dialect"
	"github.com/shrek82/jmap/model"
	"xorkevin.dev/kerrors"
)

// Args is a positional parameter list handed to the driver as is. Command
// text must then use the driver's own placeholders.
type Args []any

// Param is one bound command parameter.
type Param struct {
	Name      string
	Direction model.Direction
	Value     any
	Type      reflect.Type
	List      bool
}

// binder is the cached routine producing the parameters of one struct type.
type binder func(v reflect.Value) []Param

func buildBinder(t reflect.Type) (binder, error) {
	m, err := model.GetModelOf(t)
	if err != nil {
		return nil, kerrors.WithKind(err, ErrBinding, "Invalid parameter type")
	}
	fields := make([]*model.Field, 0, len(m.Fields))
	for _, f := range m.Fields {
		if !f.NoBind {
			fields = append(fields, f)
		}
	}
	return func(v reflect.Value) []Param {
		params := make([]Param, len(fields))
		for i, f := range fields {
			params[i] = Param{
				Name:      f.Column,
				Direction: f.Direction,
				Value:     v.FieldByIndex(f.Index).Interface(),
				Type:      f.Type,
				List:      f.IsList(),
			}
		}
		return params
	}, nil
}

// collectParams turns a parameter object into parameters. positional is
// non-nil only for Args.
func collectParams(shapes *ShapeCache, params any) (named []Param, positional []any, err error) {
	switch p := params.(type) {
	case nil:
		return nil, nil, nil
	case Args:
		if p == nil {
			p = Args{}
		}
		return nil, p, nil
	case []any:
		if p == nil {
			p = []any{}
		}
		return nil, p, nil
	case map[string]any:
		names := make([]string, 0, len(p))
		for name := range p {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			v := p[name]
			var t reflect.Type
			if v != nil {
				t = reflect.TypeOf(v)
			}
			named = append(named, Param{Name: name, Value: v, Type: t, List: t != nil && model.IsListType(t)})
		}
		return named, nil, nil
	}

	v := reflect.ValueOf(params)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, nil, nil
		}
		v = v.Elem()
	}
	if !model.IsStructType(v.Type()) {
		return nil, nil, kerrors.WithKind(nil, ErrBinding, fmt.Sprintf("Parameters must be a struct, map[string]any or Args, got %T", params))
	}

	key := ShapeKey{Purpose: PurposeBind, Target: v.Type()}
	b, err := cached(shapes, key, func() (binder, error) {
		return buildBinder(v.Type())
	})
	if err != nil {
		return nil, nil, kerrors.WithKind(err, ErrCachePopulate, fmt.Sprintf("Failed to build binder for %s", v.Type()))
	}
	return b(v), nil, nil
}

// statement is a command ready for the driver.
type statement struct {
	sql  string
	args []any
	outs []outParam
}

type outParam struct {
	name  string
	dest  reflect.Value // pointer the driver writes through
	isRet bool
}

func checkValue(name string, v any) error {
	if v == nil {
		return nil
	}
	if _, ok := v.(driver.Valuer); ok {
		return nil
	}
	if _, err := driver.DefaultParameterConverter.ConvertValue(v); err != nil {
		return kerrors.WithKind(err, ErrBinding, fmt.Sprintf("Parameter %s has unsupported type %T", name, v))
	}
	return nil
}

// compile binds the call's parameters into command text and driver arguments.
func compile(d dialect.Dialect, shapes *ShapeCache, call *Call) (*statement, error) {
	params, positional, err := collectParams(shapes, call.Params)
	if err != nil {
		return nil, err
	}

	text := call.Command
	if call.Kind == CommandProcedure {
		procParams := make([]dialect.ProcParam, 0, len(params))
		for _, p := range params {
			if p.Direction == model.DirectionReturn {
				continue
			}
			if p.Direction.IsOutput() && d.BindStyle() != dialect.BindNamed && p.Direction != model.DirectionInOut {
				continue
			}
			procParams = append(procParams, dialect.ProcParam{Name: p.Name, Output: p.Direction.IsOutput()})
		}
		var ok bool
		text, ok = d.ProcedureSQL(call.Command, procParams)
		if !ok {
			return nil, kerrors.WithKind(nil, ErrUnsupported, fmt.Sprintf("Dialect %s has no stored procedures", d.Name()))
		}
	}

	st := &statement{sql: text}
	if positional != nil {
		for i, v := range positional {
			if err := checkValue(fmt.Sprintf("#%d", i+1), v); err != nil {
				return nil, err
			}
		}
		st.args = positional
		return st, nil
	}

	byName := make(map[string]*Param, len(params))
	for i := range params {
		p := &params[i]
		if p.Direction != model.DirectionOut && p.Direction != model.DirectionReturn {
			if p.List {
				if err := checkList(p); err != nil {
					return nil, err
				}
			} else if err := checkValue(p.Name, p.Value); err != nil {
				return nil, err
			}
		}
		key := model.Normalize(p.Name)
		if _, dup := byName[key]; !dup {
			byName[key] = p
		}
	}

	if d.BindStyle() == dialect.BindNamed {
		return compileNamed(d, st, params, byName)
	}
	return compilePositional(d, st, byName)
}

func checkList(p *Param) error {
	rv := reflect.ValueOf(p.Value)
	if !rv.IsValid() {
		return nil
	}
	for i := 0; i < rv.Len(); i++ {
		if err := checkValue(fmt.Sprintf("%s[%d]", p.Name, i), rv.Index(i).Interface()); err != nil {
			return err
		}
	}
	return nil
}

func listElems(v any) []any {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() == reflect.Slice && rv.IsNil()) {
		return nil
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

func compilePositional(d dialect.Dialect, st *statement, byName map[string]*Param) (*statement, error) {
	text, err := dialect.Rewrite(st.sql, d.Quoting(), func(name string) (string, bool, error) {
		p, ok := byName[model.Normalize(name)]
		if !ok {
			return "", false, nil
		}
		switch p.Direction {
		case model.DirectionOut, model.DirectionInOut, model.DirectionReturn:
			return "", false, kerrors.WithKind(nil, ErrBinding, fmt.Sprintf("Output parameter %s needs a dialect with named parameters, %s binds positionally", p.Name, d.Name()))
		}
		if !p.List {
			st.args = append(st.args, p.Value)
			return d.Placeholder(len(st.args)), true, nil
		}
		if v, ok := d.ListValue(p.Value); ok {
			st.args = append(st.args, v)
			return d.Placeholder(len(st.args)), true, nil
		}
		elems := listElems(p.Value)
		if len(elems) == 0 {
			return "NULL", true, nil
		}
		marks := make([]string, len(elems))
		for i, e := range elems {
			st.args = append(st.args, e)
			marks[i] = d.Placeholder(len(st.args))
		}
		return strings.Join(marks, ", "), true, nil
	})
	if err != nil {
		return nil, err
	}
	st.sql = text
	return st, nil
}

func compileNamed(d dialect.Dialect, st *statement, params []Param, byName map[string]*Param) (*statement, error) {
	expanded := make(map[*Param]bool)
	text, err := dialect.Rewrite(st.sql, d.Quoting(), func(name string) (string, bool, error) {
		p, ok := byName[model.Normalize(name)]
		if !ok || !p.List || p.Direction != model.DirectionIn {
			return "", false, nil
		}
		elems := listElems(p.Value)
		if len(elems) == 0 {
			expanded[p] = true
			return "NULL", true, nil
		}
		marks := make([]string, len(elems))
		for i, e := range elems {
			n := fmt.Sprintf("%s_%d", p.Name, i+1)
			st.args = append(st.args, sql.Named(n, e))
			marks[i] = "@" + n
		}
		expanded[p] = true
		return strings.Join(marks, ", "), true, nil
	})
	if err != nil {
		return nil, err
	}
	st.sql = text

	for i := range params {
		p := &params[i]
		if expanded[p] || p.List {
			continue
		}
		if !p.Direction.IsOutput() {
			st.args = append(st.args, sql.Named(p.Name, p.Value))
			continue
		}
		dest := reflect.New(p.Type)
		if p.Direction == model.DirectionInOut && p.Value != nil {
			dest.Elem().Set(reflect.ValueOf(p.Value))
		}
		st.args = append(st.args, sql.Named(p.Name, sql.Out{
			Dest: dest.Interface(),
			In:   p.Direction == model.DirectionInOut,
		}))
		st.outs = append(st.outs, outParam{
			name:  p.Name,
			dest:  dest,
			isRet: p.Direction == model.DirectionReturn,
		})
	}
	return st, nil
}
