package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/feedrank/internal/jobs"
)

// Job type labels reported by the warmer.
const (
	JobTypeSnapshotWarm  = jobs.JobTypeSnapshotWarm
	JobTypeSnapshotEvict = jobs.JobTypeSnapshotEvict
)

// errorTypeUpstream labels warm failures caused by the signal store.
const errorTypeUpstream = "upstream_unavailable"

// JobMetrics provides centralized background job metrics tracking.
// jobs.Metrics implements it.
type JobMetrics interface {
	IncJobsTotal(jobType, status string)
	ObserveJobDuration(jobType string, seconds float64)
	IncJobErrors(jobType, errorType string)
}

// WarmerConfig configures the snapshot warmer.
type WarmerConfig struct {
	// Interval is the duration between warm cycles.
	Interval time.Duration
	// Timeout for each warm cycle.
	Timeout time.Duration
	// Logger for job activity.
	Logger *slog.Logger
	// JobMetrics for centralized background job tracking.
	JobMetrics JobMetrics
}

// Default warmer timings.
const (
	DefaultWarmInterval = 30 * time.Second
	DefaultWarmTimeout  = 10 * time.Second
)

// Warmer periodically builds the snapshot for the current time bucket so
// page requests rarely pay for a build, and evicts snapshots past retention.
type Warmer struct {
	config WarmerConfig
	cache  *RankCache

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWarmer creates a new snapshot warmer.
func NewWarmer(config WarmerConfig, cache *RankCache) *Warmer {
	if config.Interval <= 0 {
		config.Interval = DefaultWarmInterval
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultWarmTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Warmer{config: config, cache: cache}
}

// Start begins the periodic warm job.
// Returns immediately; the job runs in a background goroutine.
func (w *Warmer) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	go w.run(ctx, stopCh, doneCh)
	return nil
}

// Stop signals the warm job to stop and waits for it to finish.
func (w *Warmer) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	stopCh := w.stopCh
	doneCh := w.doneCh
	w.mu.Unlock()

	close(stopCh)
	<-doneCh
}

// IsRunning returns whether the job is currently running.
func (w *Warmer) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// run owns stopCh and doneCh for one Start. When it exits on its own, after
// ctx is canceled, it clears running so the warmer can be started again.
func (w *Warmer) run(ctx context.Context, stopCh <-chan struct{}, doneCh chan struct{}) {
	defer func() {
		w.mu.Lock()
		if w.doneCh == doneCh {
			w.running = false
		}
		w.mu.Unlock()
		close(doneCh)
	}()

	// Warm once up front so the first requests after startup hit the cache.
	w.WarmNow(ctx)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.config.Logger.Info("snapshot warmer stopping due to context cancellation")
			return
		case <-stopCh:
			w.config.Logger.Info("snapshot warmer stopping due to stop signal")
			return
		case <-ticker.C:
			w.WarmNow(ctx)
		}
	}
}

// WarmNow runs one warm cycle immediately. It returns the error of the
// snapshot build, if any.
func (w *Warmer) WarmNow(parentCtx context.Context) error {
	ctx, cancel := context.WithTimeout(parentCtx, w.config.Timeout)
	defer cancel()

	start := time.Now()
	snap, err := w.cache.Current(ctx)
	duration := time.Since(start).Seconds()

	if err != nil {
		w.config.Logger.Error("snapshot warm failed", "error", err)
		w.reportJob(JobTypeSnapshotWarm, jobs.StatusFailure, duration)
		if w.config.JobMetrics != nil {
			w.config.JobMetrics.IncJobErrors(JobTypeSnapshotWarm, warmErrorType(err))
		}
	} else {
		w.config.Logger.Debug("snapshot warm completed",
			"snapshot_id", snap.ID,
			"candidates", len(snap.Items),
			"duration_seconds", duration)
		w.reportJob(JobTypeSnapshotWarm, jobs.StatusSuccess, duration)
	}

	evictStart := time.Now()
	if removed := w.cache.Evict(); removed > 0 {
		w.config.Logger.Debug("evicted expired snapshots", "count", removed)
	}
	w.reportJob(JobTypeSnapshotEvict, jobs.StatusSuccess, time.Since(evictStart).Seconds())

	return err
}

func warmErrorType(err error) string {
	if errors.Is(err, ErrUpstreamUnavailable) {
		return errorTypeUpstream
	}
	return jobs.ErrorType(err)
}

func (w *Warmer) reportJob(jobType, status string, seconds float64) {
	if w.config.JobMetrics == nil {
		return
	}
	w.config.JobMetrics.IncJobsTotal(jobType, status)
	w.config.JobMetrics.ObserveJobDuration(jobType, seconds)
}
