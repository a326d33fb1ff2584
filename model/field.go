package model

import (
	"database/sql"
	"database/sql/driver"
	"reflect"
	"time"
)

// Field represents a struct field that can receive a column or supply a parameter
type Field struct {
	Name      string       // Struct field name
	Column    string       // Column or parameter name
	Type      reflect.Type // Field type
	Index     []int        // Index path, embedded structs flattened
	IsPK      bool         // Is primary key
	Direction Direction    // Parameter direction
	NoBind    bool         // Materialized but never bound as a parameter
	Tag       string       // Raw tag string
}

// IsList reports whether the field holds a sequence that binds as a list parameter.
func (f *Field) IsList() bool {
	return IsListType(f.Type)
}

// Nullable reports whether the field can hold a database NULL as its absent value.
func (f *Field) Nullable() bool {
	return IsNullable(f.Type)
}

var (
	scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
	valuerType  = reflect.TypeOf((*driver.Valuer)(nil)).Elem()
	timeType    = reflect.TypeOf(time.Time{})
	bytesType   = reflect.TypeOf([]byte(nil))
)

// IsScanner reports whether a pointer to t implements sql.Scanner.
func IsScanner(t reflect.Type) bool {
	return reflect.PointerTo(t).Implements(scannerType)
}

// IsValuer reports whether t or a pointer to t implements driver.Valuer.
func IsValuer(t reflect.Type) bool {
	return t.Implements(valuerType) || reflect.PointerTo(t).Implements(valuerType)
}

// IsTime reports whether t is time.Time.
func IsTime(t reflect.Type) bool {
	return t == timeType
}

// IsNullable reports whether NULL has a natural absent value in t.
func IsNullable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map:
		return true
	}
	return IsScanner(t)
}

// IsListType reports whether values of t bind as a list parameter.
func IsListType(t reflect.Type) bool {
	if t == bytesType || IsValuer(t) {
		return false
	}
	if t.Kind() != reflect.Slice && t.Kind() != reflect.Array {
		return false
	}
	return !IsCollectionType(t)
}

// IsCollectionType reports whether t is a slice of structs (or struct pointers)
// that is treated as a child collection rather than a column or parameter.
func IsCollectionType(t reflect.Type) bool {
	if t.Kind() != reflect.Slice {
		return false
	}
	elem := t.Elem()
	if elem.Kind() == reflect.Pointer {
		elem = elem.Elem()
	}
	return elem.Kind() == reflect.Struct && !IsTime(elem) && !IsScanner(elem) && !IsValuer(elem)
}
