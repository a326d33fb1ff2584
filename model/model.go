package model

import (
	"fmt"
	"reflect"
	"sync"
)

// Model represents the mapping metadata of a struct type
type Model struct {
	Type        reflect.Type
	Name        string
	Fields      []*Field
	FieldMap    map[string]*Field // keyed by Normalize(Column)
	PKField     *Field
	Collections []*Field // child collection fields, never mapped to columns
}

var modelCache sync.Map

// GetModel returns the model metadata for a given value
func GetModel(value any) (*Model, error) {
	if value == nil {
		return nil, fmt.Errorf("value is nil")
	}
	return GetModelOf(reflect.TypeOf(value))
}

// GetModelOf returns the model metadata for a struct type or pointer to struct type.
func GetModelOf(typ reflect.Type) (*Model, error) {
	for typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if !IsStructType(typ) {
		return nil, fmt.Errorf("value must be a struct or pointer to struct, got %s", typ)
	}

	if cached, ok := modelCache.Load(typ); ok {
		return cached.(*Model), nil
	}

	m := parseModel(typ)
	actual, _ := modelCache.LoadOrStore(typ, m)
	return actual.(*Model), nil
}

// IsStructType reports whether t is a struct that maps column by column, as
// opposed to a struct-shaped scalar such as time.Time or sql.NullString.
func IsStructType(t reflect.Type) bool {
	return t.Kind() == reflect.Struct && !IsTime(t) && !IsScanner(t) && !IsValuer(t)
}

// Lookup finds the field for a column or parameter name, ignoring case and
// underscores.
func (m *Model) Lookup(name string) (*Field, bool) {
	f, ok := m.FieldMap[Normalize(name)]
	return f, ok
}

// FieldByName returns the field with the given Go name.
func (m *Model) FieldByName(name string) (*Field, bool) {
	for _, f := range m.Fields {
		if f.Name == name {
			return f, true
		}
	}
	for _, f := range m.Collections {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

func parseModel(typ reflect.Type) *Model {
	m := &Model{
		Type:     typ,
		Name:     typ.Name(),
		FieldMap: make(map[string]*Field),
	}

	var walk func(t reflect.Type, base []int)
	walk = func(t reflect.Type, base []int) {
		for i := 0; i < t.NumField(); i++ {
			sf := t.Field(i)
			if !sf.IsExported() && !sf.Anonymous {
				continue
			}

			tagStr := sf.Tag.Get("jmap")
			tag := ParseTag(tagStr)
			if tag.Omit {
				continue
			}

			path := append(append([]int(nil), base...), i)
			if (sf.Anonymous && tagStr == "") || tag.Inline {
				if IsStructType(sf.Type) {
					walk(sf.Type, path)
					continue
				}
			}
			if !sf.IsExported() {
				continue
			}

			column := tag.Column
			if column == "" {
				column = sf.Name
			}

			field := &Field{
				Name:      sf.Name,
				Column:    column,
				Type:      sf.Type,
				Index:     path,
				IsPK:      tag.PrimaryKey,
				Direction: tag.Direction,
				NoBind:    tag.NoBind,
				Tag:       tagStr,
			}

			if tag.Children || IsCollectionType(sf.Type) {
				m.Collections = append(m.Collections, field)
				continue
			}

			m.Fields = append(m.Fields, field)
			key := Normalize(column)
			if _, dup := m.FieldMap[key]; !dup {
				m.FieldMap[key] = field
			}
			if field.IsPK && m.PKField == nil {
				m.PKField = field
			}
		}
	}
	walk(typ, nil)

	if m.PKField == nil {
		if f, ok := m.FieldMap["id"]; ok {
			m.PKField = f
		}
	}
	return m
}

// Normalize folds a column, parameter or field name for matching: identifier
// quotes are removed, ASCII letters lowered and underscores dropped, so
// "parent_id", "ParentID" and `"PARENT_ID"` all compare equal.
func Normalize(s string) string {
	if l := len(s); l >= 2 {
		switch {
		case s[0] == '"' && s[l-1] == '"',
			s[0] == '`' && s[l-1] == '`',
			s[0] == '[' && s[l-1] == ']':
			s = s[1 : l-1]
		}
	}
	need := false
	for i := 0; i < len(s); i++ {
		if c := s[i]; c == '_' || ('A' <= c && c <= 'Z') {
			need = true
			break
		}
	}
	if !need {
		return s
	}
	b := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_':
			continue
		case 'A' <= c && c <= 'Z':
			c += 'a' - 'A'
		}
		b = append(b, c)
	}
	return string(b)
}
