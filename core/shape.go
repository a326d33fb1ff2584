package core

import (
	"database/sql"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Purpose separates the routines cached for the same target type.
type Purpose uint8

const (
	PurposeBind Purpose = iota + 1
	PurposeRow
	PurposeBulk
	PurposeGraph
)

func (p Purpose) String() string {
	switch p {
	case PurposeBind:
		return "bind"
	case PurposeRow:
		return "row"
	case PurposeBulk:
		return "bulk"
	case PurposeGraph:
		return "graph"
	default:
		return "purpose(" + strconv.Itoa(int(p)) + ")"
	}
}

// ShapeKey identifies one cached routine: the target type plus a canonical
// description of the source it was generated for.
type ShapeKey struct {
	Purpose Purpose
	Target  reflect.Type
	Source  string
}

func (k ShapeKey) String() string {
	if k.Target == nil {
		return fmt.Sprintf("%s|nil|%s", k.Purpose, k.Source)
	}
	return fmt.Sprintf("%s|%p|%s|%s", k.Purpose, k.Target, k.Target, k.Source)
}

// ShapeCache maps shape keys to generated routines. Entries are added once
// and live for the lifetime of the cache; growth follows the number of
// distinct shapes, not the number of calls.
type ShapeCache struct {
	entries sync.Map // ShapeKey -> any
	group   singleflight.Group
	builds  atomic.Int64
	size    atomic.Int64
}

// NewShapeCache returns an empty cache.
func NewShapeCache() *ShapeCache {
	return &ShapeCache{}
}

var (
	defaultShapes     *ShapeCache
	defaultShapesOnce sync.Once
)

// DefaultShapeCache returns the process-wide cache used by every DB that does
// not set Options.ShapeCache.
func DefaultShapeCache() *ShapeCache {
	defaultShapesOnce.Do(func() {
		defaultShapes = NewShapeCache()
	})
	return defaultShapes
}

// GetOrCreate returns the routine for key, running factory if the key is not
// cached. Concurrent callers for the same key share one factory run. A
// factory error is returned and nothing is stored, so a later call retries.
func (c *ShapeCache) GetOrCreate(key ShapeKey, factory func() (any, error)) (any, error) {
	if v, ok := c.entries.Load(key); ok {
		return v, nil
	}

	v, err, shared := c.group.Do(key.String(), func() (any, error) {
		return c.create(key, factory)
	})
	if err != nil && shared {
		// The flight we joined failed; make one attempt of our own.
		return c.create(key, factory)
	}
	return v, err
}

func (c *ShapeCache) create(key ShapeKey, factory func() (any, error)) (any, error) {
	if v, ok := c.entries.Load(key); ok {
		return v, nil
	}
	c.builds.Add(1)
	v, err := factory()
	if err != nil {
		return nil, err
	}
	actual, loaded := c.entries.LoadOrStore(key, v)
	if !loaded {
		c.size.Add(1)
	}
	return actual, nil
}

// Builds reports how many times a factory ran.
func (c *ShapeCache) Builds() int64 {
	return c.builds.Load()
}

// Len reports the number of cached routines.
func (c *ShapeCache) Len() int {
	return int(c.size.Load())
}

// cached is the typed form of GetOrCreate.
func cached[V any](c *ShapeCache, key ShapeKey, factory func() (V, error)) (V, error) {
	v, err := c.GetOrCreate(key, func() (any, error) {
		return factory()
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

// columnSignature renders the ordered column names and declared types as a
// length-prefixed string. Equal column lists give equal strings and
// different lists cannot collide.
func columnSignature(cols []*sql.ColumnType) string {
	var sb strings.Builder
	for _, ct := range cols {
		writeField(&sb, ct.Name())
		writeField(&sb, ct.DatabaseTypeName())
	}
	return sb.String()
}

func writeField(sb *strings.Builder, s string) {
	sb.WriteString(strconv.Itoa(len(s)))
	sb.WriteByte(':')
	sb.WriteString(s)
}
