package jobs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunOnce(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	m := NewMetrics()

	RunOnce(context.Background(), JobTypeRateLimitCleanup, func(context.Context) (int64, error) {
		return 2, nil
	}, m, logger)
	RunOnce(context.Background(), JobTypeRateLimitCleanup, func(context.Context) (int64, error) {
		return 0, errors.New("store closed")
	}, m, logger)

	if got := counterValue(t, m.jobItems, JobTypeRateLimitCleanup); got != 2 {
		t.Errorf("items = %v, want 2", got)
	}
	if got := counterValue(t, m.jobsTotal, JobTypeRateLimitCleanup, StatusFailure); got != 1 {
		t.Errorf("failures = %v, want 1", got)
	}
	if !strings.Contains(logs.String(), "store closed") {
		t.Errorf("expected failure to be logged, got %q", logs.String())
	}
}

func TestRunPeriodic_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var runs atomic.Int32

	done := make(chan struct{})
	go func() {
		RunPeriodic(ctx, JobTypeIdempotencyCleanup, 10*time.Millisecond, func(context.Context) (int64, error) {
			runs.Add(1)
			return 0, nil
		}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
		close(done)
	}()

	deadline := time.After(time.Second)
	for runs.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 2 runs, got %d", runs.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunPeriodic() did not stop after cancel")
	}
}
