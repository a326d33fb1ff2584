package model

import (
	"fmt"
	"reflect"
	"sync"
)

// Relation describes a parent struct field that receives correlated child rows.
type Relation struct {
	Name       string // Collection field name on the parent
	Field      *Field // Collection field
	Child      *Model // Child element metadata
	ElemPtr    bool   // Elements are pointers to the child struct
	ParentKey  *Field // Parent field holding the correlation key
	ForeignKey *Field // Child field holding the parent's key
}

type relationKey struct {
	typ  reflect.Type
	name string
}

var relationCache sync.Map

// GetRelation returns the relation metadata for the named collection field.
//
// The parent key defaults to the primary key (or a field named ID). The child
// foreign key defaults to a field named after the parent type plus "ID", e.g.
// ParentID for a Parent, unless the field is tagged with fk.
func GetRelation(m *Model, name string) (*Relation, error) {
	key := relationKey{m.Type, name}
	if cached, ok := relationCache.Load(key); ok {
		return cached.(*Relation), nil
	}

	rel, err := parseRelation(m, name)
	if err != nil {
		return nil, err
	}
	actual, _ := relationCache.LoadOrStore(key, rel)
	return actual.(*Relation), nil
}

func parseRelation(m *Model, name string) (*Relation, error) {
	var field *Field
	for _, f := range m.Collections {
		if f.Name == name {
			field = f
			break
		}
	}
	if field == nil {
		return nil, fmt.Errorf("relation '%s' not found on %s", name, m.Name)
	}
	if field.Type.Kind() != reflect.Slice {
		return nil, fmt.Errorf("relation '%s' on %s must be a slice, got %s", name, m.Name, field.Type)
	}

	elem := field.Type.Elem()
	elemPtr := elem.Kind() == reflect.Pointer
	if elemPtr {
		elem = elem.Elem()
	}
	child, err := GetModelOf(elem)
	if err != nil {
		return nil, fmt.Errorf("relation '%s' on %s: %w", name, m.Name, err)
	}

	tag := ParseTag(field.Tag)

	parentKey := m.PKField
	if tag.References != "" {
		f, ok := m.FieldByName(tag.References)
		if !ok {
			f, ok = m.Lookup(tag.References)
		}
		if !ok {
			return nil, fmt.Errorf("relation '%s' on %s: references field %s not found", name, m.Name, tag.References)
		}
		parentKey = f
	}
	if parentKey == nil {
		return nil, fmt.Errorf("relation '%s' on %s: parent has no primary key", name, m.Name)
	}

	fkName := tag.ForeignKey
	if fkName == "" {
		fkName = m.Name + parentKey.Name
	}
	fk, ok := child.FieldByName(fkName)
	if !ok {
		fk, ok = child.Lookup(fkName)
	}
	if !ok {
		return nil, fmt.Errorf("relation '%s' on %s: foreign key %s not found on %s", name, m.Name, fkName, child.Name)
	}

	return &Relation{
		Name:       name,
		Field:      field,
		Child:      child,
		ElemPtr:    elemPtr,
		ParentKey:  parentKey,
		ForeignKey: fk,
	}, nil
}
