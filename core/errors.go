package core

import (
	"errors"
)

// Error kinds. Test with errors.Is; they are attached with kerrors.WithKind
// and survive further wrapping. Errors from the driver and database/sql are
// returned unwrapped.
var (
	// ErrBinding is returned when a parameter object cannot be bound. The command is never sent.
	ErrBinding errBinding
	// ErrMaterialize is returned when a row cannot populate its target
	ErrMaterialize errMaterialize
	// ErrCachePopulate is returned when a cached routine cannot be generated. Nothing is cached.
	ErrCachePopulate errCachePopulate
	// ErrUnsupported is returned when the dialect lacks a feature a call needs
	ErrUnsupported errUnsupported
)

type (
	errBinding       struct{}
	errMaterialize   struct{}
	errCachePopulate struct{}
	errUnsupported   struct{}
)

func (e errBinding) Error() string {
	return "Binding error"
}

func (e errMaterialize) Error() string {
	return "Materialization error"
}

func (e errCachePopulate) Error() string {
	return "Cache population error"
}

func (e errUnsupported) Error() string {
	return "Unsupported by dialect"
}

var (
	// ErrNoRows is returned by exactly-one readers when the result set is empty.
	ErrNoRows = errors.New("no rows in result set")
	// ErrNotSingular is returned by exactly-one readers when the result set has more than one row.
	ErrNotSingular = errors.New("more than one row in result set")
	// ErrNilTarget is returned when a call needs a non-nil object and got nil.
	ErrNilTarget = errors.New("nil target")
	// ErrUnknownDialect is returned by Open for a driver without a registered dialect.
	ErrUnknownDialect = errors.New("unknown dialect")
)
