package idempotency

import (
	"context"
	"log/slog"
	"time"

	"github.com/anphiad-sys/QuickServeLegal/internal/jobs"
)

// DefaultExpiry is the default retention for idempotency keys. A replay
// arriving more than a day after the original request is treated as a new
// request, matching payment-industry retry conventions.
const DefaultExpiry = 24 * time.Hour

// CleanupJobConfig configures the periodic idempotency key sweep.
type CleanupJobConfig struct {
	Store    Store
	Logger   *slog.Logger
	Interval time.Duration // Sweep interval; defaults to one hour
	Expiry   time.Duration // Key retention; defaults to DefaultExpiry
	Metrics  *jobs.Metrics // Optional background-job metrics
}

// CleanupJob periodically deletes expired idempotency keys so the backing
// store cannot grow without bound.
type CleanupJob struct {
	config CleanupJobConfig
}

// NewCleanupJob creates a new idempotency cleanup job.
func NewCleanupJob(config CleanupJobConfig) *CleanupJob {
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	if config.Expiry <= 0 {
		config.Expiry = DefaultExpiry
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &CleanupJob{config: config}
}

// Run executes one cleanup sweep, returning the number of keys deleted.
func (j *CleanupJob) Run(ctx context.Context) (int64, error) {
	start := time.Now()
	deleted, err := j.config.Store.DeleteOlderThan(ctx, j.config.Expiry)

	if m := j.config.Metrics; m != nil {
		m.ObserveJobDuration(jobs.JobTypeIdempotencyCleanup, time.Since(start).Seconds())
		if err != nil {
			m.IncJobsTotal(jobs.JobTypeIdempotencyCleanup, jobs.StatusFailure)
			m.IncJobErrors(jobs.JobTypeIdempotencyCleanup, "storage_error")
		} else {
			m.IncJobsTotal(jobs.JobTypeIdempotencyCleanup, jobs.StatusSuccess)
		}
	}

	if err != nil {
		j.config.Logger.ErrorContext(ctx, "idempotency cleanup failed", "error", err)
		return 0, err
	}
	if deleted > 0 {
		j.config.Logger.InfoContext(ctx, "cleaned up expired idempotency keys",
			"deleted", deleted,
			"older_than", j.config.Expiry,
		)
	}
	return deleted, nil
}

// Start runs cleanup sweeps on a ticker until the context is cancelled.
// It blocks and should typically be run in a goroutine.
func (j *CleanupJob) Start(ctx context.Context) {
	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	if _, err := j.Run(ctx); err != nil {
		j.config.Logger.ErrorContext(ctx, "initial idempotency cleanup failed", "error", err)
	}

	for {
		select {
		case <-ticker.C:
			if _, err := j.Run(ctx); err != nil {
				j.config.Logger.ErrorContext(ctx, "periodic idempotency cleanup failed", "error", err)
			}
		case <-ctx.Done():
			j.config.Logger.Info("stopping idempotency cleanup job")
			return
		}
	}
}
