package core

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Stats holds call statistics for one DB.
type Stats struct {
	// TotalQueries is the number of query calls, inserts included.
	TotalQueries atomic.Int64
	// TotalExecs is the number of exec calls.
	TotalExecs atomic.Int64
	// BulkLoads is the number of bulk load calls.
	BulkLoads atomic.Int64
	// BulkRows is the number of rows handed to bulk loads.
	BulkRows atomic.Int64
	// TotalDuration is the time spent in calls.
	TotalDuration atomic.Int64 // nanoseconds
	// Errors is the number of failed calls.
	Errors atomic.Int64
	// ConnsAcquired counts connections the engine opened for a call.
	ConnsAcquired atomic.Int64
	// ConnsReleased counts connections the engine closed after a call.
	ConnsReleased atomic.Int64
}

// Snapshot returns a copy of the current statistics.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		TotalQueries:  s.TotalQueries.Load(),
		TotalExecs:    s.TotalExecs.Load(),
		BulkLoads:     s.BulkLoads.Load(),
		BulkRows:      s.BulkRows.Load(),
		TotalDuration: time.Duration(s.TotalDuration.Load()),
		Errors:        s.Errors.Load(),
		ConnsAcquired: s.ConnsAcquired.Load(),
		ConnsReleased: s.ConnsReleased.Load(),
	}
}

func (s *Stats) record(op Operation, d time.Duration, err error) {
	switch op {
	case OpExec:
		s.TotalExecs.Add(1)
	case OpBulk:
		s.BulkLoads.Add(1)
	default:
		s.TotalQueries.Add(1)
	}
	s.TotalDuration.Add(int64(d))
	if err != nil {
		s.Errors.Add(1)
	}
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	TotalQueries  int64
	TotalExecs    int64
	BulkLoads     int64
	BulkRows      int64
	TotalDuration time.Duration
	Errors        int64
	ConnsAcquired int64
	ConnsReleased int64
}

// OpenConns returns the number of engine-opened connections not yet released.
func (s StatsSnapshot) OpenConns() int64 {
	return s.ConnsAcquired - s.ConnsReleased
}

func (s StatsSnapshot) String() string {
	return fmt.Sprintf(
		"queries=%d execs=%d bulk=%d/%d rows duration=%s errors=%d conns=%d/%d",
		s.TotalQueries, s.TotalExecs, s.BulkLoads, s.BulkRows, s.TotalDuration,
		s.Errors, s.ConnsAcquired, s.ConnsReleased,
	)
}
