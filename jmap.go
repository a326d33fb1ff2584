// Package jmap maps command parameters and result rows to Go values.
//
// The core package holds the engine; this package re-exports its entry
// points. Generic calls such as core.Query and core.List are used from
// core directly.
package jmap

import (
	"github.com/shrek82/jmap/core"
)

// Re-export core types and functions
type (
	DB            = core.DB
	Conn          = core.Conn
	Tx            = core.Tx
	Source        = core.Source
	Options       = core.Options
	Call          = core.Call
	CallOption    = core.CallOption
	Middleware    = core.Middleware
	Record        = core.Record
	Args          = core.Args
	ColumnInfo    = core.ColumnInfo
	StatsSnapshot = core.StatsSnapshot
	ShapeCache    = core.ShapeCache
)

var (
	Open   = core.Open
	OpenDB = core.OpenDB

	WithOutputs = core.WithOutputs
	AsProcedure = core.AsProcedure

	Exec           = core.Exec
	ExecAsync      = core.ExecAsync
	DiscoverSchema = core.DiscoverSchema
	Gather         = core.Gather
	Skip           = core.Skip

	NewShapeCache     = core.NewShapeCache
	DefaultShapeCache = core.DefaultShapeCache

	ErrBinding        = core.ErrBinding
	ErrMaterialize    = core.ErrMaterialize
	ErrCachePopulate  = core.ErrCachePopulate
	ErrUnsupported    = core.ErrUnsupported
	ErrNoRows         = core.ErrNoRows
	ErrNotSingular    = core.ErrNotSingular
	ErrNilTarget      = core.ErrNilTarget
	ErrUnknownDialect = core.ErrUnknownDialect
)
