package jobs

import (
	"context"
	"log/slog"
	"time"
)

// Func is one execution of a job. It returns how many items it handled.
type Func func(ctx context.Context) (int64, error)

// RunPeriodic runs fn every interval until ctx is cancelled, recording each
// run in metrics (which may be nil). Errors are logged and do not stop the
// loop. It blocks; run it in a goroutine.
func RunPeriodic(ctx context.Context, jobType string, interval time.Duration, fn Func, metrics *Metrics, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			RunOnce(ctx, jobType, fn, metrics, logger)
		case <-ctx.Done():
			logger.Debug("stopping background job", "job_type", jobType)
			return
		}
	}
}

// RunOnce executes fn a single time and records the result.
func RunOnce(ctx context.Context, jobType string, fn Func, metrics *Metrics, logger *slog.Logger) {
	start := time.Now()
	items, err := fn(ctx)
	metrics.ObserveRun(jobType, time.Since(start).Seconds(), items, err)

	if err != nil {
		logger.Error("background job failed", "job_type", jobType, "error", err)
		return
	}
	if items > 0 {
		logger.Info("background job completed", "job_type", jobType, "items", items)
	}
}
