package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Error types reported by ErrorType.
const (
	ErrorTypeTimeout  = "timeout"
	ErrorTypeCanceled = "canceled"
	ErrorTypeOther    = "error"
)

// ErrorType classifies err for the error_type label.
func ErrorType(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeTimeout
	case errors.Is(err, context.Canceled):
		return ErrorTypeCanceled
	default:
		return ErrorTypeOther
	}
}

// Func is one run of a periodic job.
type Func func(ctx context.Context) error

// RunEvery runs fn every interval until ctx is done, recording each run
// under jobType. Each run gets its own context bounded by timeout; a
// non-positive timeout leaves runs bounded only by ctx. Failures are logged
// and do not stop the loop.
func RunEvery(ctx context.Context, interval, timeout time.Duration, jobType string, m *Metrics, fn Func) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			RunOnce(ctx, timeout, jobType, m, fn)
		}
	}
}

// RunOnce runs fn once and records it under jobType.
func RunOnce(ctx context.Context, timeout time.Duration, jobType string, m *Metrics, fn Func) error {
	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	start := time.Now()
	err := fn(runCtx)
	m.Record(jobType, time.Since(start).Seconds(), err)
	if err != nil {
		slog.WarnContext(ctx, "background job failed", "job_type", jobType, "error", err)
	}
	return err
}
