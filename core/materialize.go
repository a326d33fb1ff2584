package core

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"

	"github.com/shrek82/jmap/model"
	"xorkevin.dev/kerrors"
)

// routineKind tags the generated row routine.
type routineKind uint8

const (
	routineStruct routineKind = iota // columns into struct fields
	routineScalar                    // first column into the target itself
	routineRecord                    // every column into a *Record
	routineMap                       // every column into a map[string]any
)

// scanMode decides the holder a column is scanned into and how NULL is treated.
type scanMode uint8

const (
	modeDiscard scanMode = iota
	modeValue            // nullable-capable type, scanned as is
	modeStrict           // value type, scanned through a pointer so NULL is visible
	modeTime             // time.Time through TimeScanner, NULL rejected
	modeTimePtr          // *time.Time through TimeScanner, NULL is nil
	modeDynamic          // untyped, text normalised to string
)

var (
	recordType    = reflect.TypeOf(Record{})
	anyMapType    = reflect.TypeOf(map[string]any(nil))
	afterFindType = reflect.TypeOf((*AfterFinder)(nil)).Elem()
)

type columnStep struct {
	column string
	field  string
	index  []int // nil addresses the target itself
	typ    reflect.Type
	mode   scanMode
	text   bool
}

// rowPlan is the cached routine materializing one row shape into one target type.
type rowPlan struct {
	kind   routineKind
	target reflect.Type
	base   reflect.Type
	ptr    bool // target is a pointer to base, allocated when nil
	steps  []columnStep
	hook   bool
}

func buildRowPlan(target reflect.Type, cols []*sql.ColumnType) (*rowPlan, error) {
	p := &rowPlan{target: target, base: target}
	if target.Kind() == reflect.Pointer {
		elem := target.Elem()
		if elem == recordType || model.IsStructType(elem) {
			p.base, p.ptr = elem, true
		}
	}

	switch {
	case p.base == recordType:
		p.kind = routineRecord
		p.steps = dynamicSteps(cols)
	case p.base == anyMapType:
		p.kind = routineMap
		p.steps = dynamicSteps(cols)
	case model.IsStructType(p.base):
		p.kind = routineStruct
		m, err := model.GetModelOf(p.base)
		if err != nil {
			return nil, kerrors.WithKind(err, ErrMaterialize, "Invalid target type")
		}
		used := make(map[*model.Field]bool, len(m.Fields))
		p.steps = make([]columnStep, len(cols))
		for i, ct := range cols {
			p.steps[i] = columnStep{column: ct.Name(), mode: modeDiscard}
			f, ok := m.Lookup(ct.Name())
			if !ok || used[f] {
				continue
			}
			used[f] = true
			p.steps[i] = columnStep{
				column: ct.Name(),
				field:  f.Name,
				index:  f.Index,
				typ:    f.Type,
				mode:   modeFor(f.Type),
			}
		}
		p.hook = reflect.PointerTo(p.base).Implements(afterFindType)
	default:
		switch target.Kind() {
		case reflect.Func, reflect.Chan, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
			return nil, kerrors.WithKind(nil, ErrMaterialize, fmt.Sprintf("Cannot materialize into %s", target))
		}
		if len(cols) == 0 {
			return nil, kerrors.WithKind(nil, ErrMaterialize, fmt.Sprintf("Result set has no columns for %s", target))
		}
		p.kind = routineScalar
		p.steps = make([]columnStep, len(cols))
		p.steps[0] = columnStep{column: cols[0].Name(), typ: target, mode: modeFor(target)}
		for i := 1; i < len(cols); i++ {
			p.steps[i] = columnStep{column: cols[i].Name(), mode: modeDiscard}
		}
	}
	return p, nil
}

func modeFor(t reflect.Type) scanMode {
	switch {
	case model.IsTime(t):
		return modeTime
	case t.Kind() == reflect.Pointer && model.IsTime(t.Elem()):
		return modeTimePtr
	case model.IsNullable(t):
		return modeValue
	default:
		return modeStrict
	}
}

func dynamicSteps(cols []*sql.ColumnType) []columnStep {
	steps := make([]columnStep, len(cols))
	for i, ct := range cols {
		steps[i] = columnStep{column: ct.Name(), mode: modeDynamic, text: isTextColumn(ct)}
	}
	return steps
}

func isTextColumn(ct *sql.ColumnType) bool {
	name := strings.ToUpper(ct.DatabaseTypeName())
	for _, bin := range []string{"BLOB", "BINARY", "BYTEA", "IMAGE", "BIT"} {
		if strings.Contains(name, bin) {
			return false
		}
	}
	return true
}

func (s *columnStep) holder() any {
	switch s.mode {
	case modeValue:
		return reflect.New(s.typ).Interface()
	case modeStrict:
		return reflect.New(reflect.PointerTo(s.typ)).Interface()
	default:
		return new(any)
	}
}

func (s *columnStep) resolve(h any, target reflect.Type) (reflect.Value, error) {
	switch s.mode {
	case modeValue:
		return reflect.ValueOf(h).Elem(), nil
	case modeStrict:
		pv := reflect.ValueOf(h).Elem()
		if pv.IsNil() {
			return reflect.Value{}, s.nullError(target)
		}
		return pv.Elem(), nil
	case modeTime, modeTimePtr:
		raw := *(h.(*any))
		if raw == nil {
			if s.mode == modeTime {
				return reflect.Value{}, s.nullError(target)
			}
			return reflect.Zero(s.typ), nil
		}
		var ts TimeScanner
		if err := ts.Scan(raw); err != nil {
			return reflect.Value{}, kerrors.WithKind(err, ErrMaterialize, fmt.Sprintf("Column %s cannot be read as time", s.column))
		}
		if s.mode == modeTime {
			return reflect.ValueOf(ts.Value), nil
		}
		if !ts.Valid {
			return reflect.Zero(s.typ), nil
		}
		v := ts.Value
		return reflect.ValueOf(&v), nil
	}
	return reflect.Value{}, nil
}

func (s *columnStep) nullError(target reflect.Type) error {
	where := target.String()
	if s.field != "" {
		where = "field " + s.field + " of " + where
	}
	return kerrors.WithKind(nil, ErrMaterialize, fmt.Sprintf("Column %s is NULL but %s is not nullable", s.column, where))
}

func dynamicValue(v any, text bool) any {
	if b, ok := v.([]byte); ok && text {
		return string(b)
	}
	return v
}

// scan materializes the current row into dst, an addressable value of the
// plan's target type. All columns are scanned and checked before any field
// of dst is written, so a failing row leaves dst untouched.
func (p *rowPlan) scan(rows *sql.Rows, dst reflect.Value) error {
	holders := make([]any, len(p.steps))
	for i := range p.steps {
		holders[i] = p.steps[i].holder()
	}
	if err := rows.Scan(holders...); err != nil {
		return kerrors.WithKind(err, ErrMaterialize, fmt.Sprintf("Failed to scan row into %s", p.target))
	}

	switch p.kind {
	case routineRecord:
		rec := NewRecord(len(p.steps))
		for i, s := range p.steps {
			rec.columns = append(rec.columns, s.column)
			rec.values = append(rec.values, dynamicValue(*(holders[i].(*any)), s.text))
		}
		if p.ptr {
			dst.Set(reflect.ValueOf(rec))
		} else {
			dst.Set(reflect.ValueOf(*rec))
		}
		return nil
	case routineMap:
		m := make(map[string]any, len(p.steps))
		for i, s := range p.steps {
			m[s.column] = dynamicValue(*(holders[i].(*any)), s.text)
		}
		dst.Set(reflect.ValueOf(m))
		return nil
	}

	values := make([]reflect.Value, len(p.steps))
	for i := range p.steps {
		if p.steps[i].mode == modeDiscard {
			continue
		}
		v, err := p.steps[i].resolve(holders[i], p.base)
		if err != nil {
			return err
		}
		values[i] = v
	}

	if p.kind == routineScalar {
		dst.Set(values[0])
		return nil
	}

	target := dst
	if p.ptr {
		if target.IsNil() {
			target.Set(reflect.New(p.base))
		}
		target = target.Elem()
	}
	for i, s := range p.steps {
		if s.mode == modeDiscard {
			continue
		}
		target.FieldByIndex(s.index).Set(values[i])
	}

	if p.hook {
		if err := target.Addr().Interface().(AfterFinder).AfterFind(); err != nil {
			return kerrors.WithMsg(err, fmt.Sprintf("AfterFind failed for %s", p.base))
		}
	}
	return nil
}
