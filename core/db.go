package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shrek82/jmap/dialect"
	"github.com/shrek82/jmap/logger"
	"github.com/shrek82/jmap/pool"
	"xorkevin.dev/kerrors"
)

// Options defines the configuration for the DB connection pool.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// Logger replaces the default stdout logger.
	Logger logger.Logger
	// LogLevel is applied to the logger when non-zero.
	LogLevel logger.LogLevel
	// ShapeCache defaults to DefaultShapeCache.
	ShapeCache *ShapeCache
}

// DB is the main entry point for the mapper.
// It owns the connection pool and lends a connection to each call.
type DB struct {
	pool    pool.Pool
	dialect dialect.Dialect
	logger  logger.Logger
	shapes  *ShapeCache
	stats   Stats

	mu          sync.RWMutex
	middlewares []Middleware
}

// Open initializes a new DB instance with the given driver and DSN.
func Open(driver, dsn string, opts *Options) (*DB, error) {
	d, ok := dialect.Get(driver)
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrUnknownDialect, driver)
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	db := newDB(d, pool.NewStdPool(sqlDB), opts)
	if err := db.pool.PingContext(context.Background()); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// OpenDB wraps an existing *sql.DB. dialectName selects the dialect.
func OpenDB(dialectName string, sqlDB *sql.DB, opts *Options) (*DB, error) {
	d, ok := dialect.Get(dialectName)
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrUnknownDialect, dialectName)
	}
	return newDB(d, pool.NewStdPool(sqlDB), opts), nil
}

func newDB(d dialect.Dialect, p pool.Pool, opts *Options) *DB {
	db := &DB{
		pool:    p,
		dialect: d,
		logger:  logger.NewStdLogger(),
		shapes:  DefaultShapeCache(),
	}
	if opts != nil {
		pool.Configure(p, opts.MaxOpenConns, opts.MaxIdleConns, opts.ConnMaxLifetime)
		if opts.Logger != nil {
			db.logger = opts.Logger
		}
		if opts.LogLevel != logger.LogLevelSilent {
			db.logger.SetLevel(opts.LogLevel)
		}
		if opts.ShapeCache != nil {
			db.shapes = opts.ShapeCache
		}
	}
	return db
}

// Close shuts down the middleware and closes the pool.
func (db *DB) Close() error {
	db.mu.Lock()
	mws := db.middlewares
	db.middlewares = nil
	db.mu.Unlock()

	var errs []error
	for _, mw := range mws {
		if err := mw.Shutdown(); err != nil {
			errs = append(errs, kerrors.WithMsg(err, fmt.Sprintf("Failed to shut down %s", mw.Name())))
		}
	}
	if err := db.pool.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SetLogger sets a custom logger for the DB.
func (db *DB) SetLogger(l logger.Logger) {
	db.logger = l
}

// Logger returns the DB's logger.
func (db *DB) Logger() logger.Logger {
	return db.logger
}

// Use adds middleware. The first one added is the outermost.
func (db *DB) Use(mws ...Middleware) error {
	for _, mw := range mws {
		if err := mw.Init(db); err != nil {
			return kerrors.WithMsg(err, fmt.Sprintf("Failed to init %s", mw.Name()))
		}
	}
	db.mu.Lock()
	db.middlewares = append(db.middlewares, mws...)
	db.mu.Unlock()
	return nil
}

func (db *DB) chain() []Middleware {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.middlewares
}

// Stats returns a snapshot of the call statistics.
func (db *DB) Stats() StatsSnapshot {
	return db.stats.Snapshot()
}

// PoolStats returns the statistics of the underlying pool.
func (db *DB) PoolStats() sql.DBStats {
	return db.pool.Stats()
}

// Dialect returns the DB's dialect.
func (db *DB) Dialect() dialect.Dialect {
	return db.dialect
}

// ShapeCache returns the cache holding the DB's generated routines.
func (db *DB) ShapeCache() *ShapeCache {
	return db.shapes
}
