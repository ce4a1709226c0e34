// Package stats tracks bulk insert progress for the seed command.
package stats

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// InsertStats counts the outcome of concurrent inserts.
// Safe for concurrent use.
type InsertStats struct {
	inserted atomic.Int64
	failed   atomic.Int64
	started  time.Time
}

// NewInsertStats creates an InsertStats whose elapsed time starts now.
func NewInsertStats() *InsertStats {
	return &InsertStats{started: time.Now()}
}

// RecordInsert increments the inserted counter.
func (s *InsertStats) RecordInsert() {
	s.inserted.Add(1)
}

// RecordFailure increments the failed counter.
func (s *InsertStats) RecordFailure() {
	s.failed.Add(1)
}

// Inserted returns the number of successful inserts.
func (s *InsertStats) Inserted() int64 {
	return s.inserted.Load()
}

// Failed returns the number of failed inserts.
func (s *InsertStats) Failed() int64 {
	return s.failed.Load()
}

// Total returns the number of attempted inserts.
func (s *InsertStats) Total() int64 {
	return s.Inserted() + s.Failed()
}

func (s *InsertStats) String() string {
	return fmt.Sprintf("inserted=%d failed=%d total=%d", s.Inserted(), s.Failed(), s.Total())
}

// LogSummary logs the counters and the elapsed time at INFO level.
func (s *InsertStats) LogSummary(logger *slog.Logger, entity string) {
	logger.Info("insert statistics",
		"entity", entity,
		"inserted", s.Inserted(),
		"failed", s.Failed(),
		"total", s.Total(),
		"elapsed_ms", time.Since(s.started).Milliseconds(),
	)
}
