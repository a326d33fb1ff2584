package core

// Hooks run on the object an Insert binds and merges into, and on every
// struct row a reader materializes.
type BeforeInserter interface{ BeforeInsert() error }
type AfterInserter interface{ AfterInsert() error }
type AfterFinder interface{ AfterFind() error }
