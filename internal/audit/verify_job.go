package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/anphiad-sys/QuickServeLegal/internal/jobs"
)

// DefaultVerifyInterval is how often the background sweep re-verifies the
// chain when no interval is configured.
const DefaultVerifyInterval = time.Hour

// VerificationJobConfig configures the periodic chain-integrity sweep.
type VerificationJobConfig struct {
	Ledger   Ledger
	Logger   *slog.Logger
	Interval time.Duration // Sweep interval; defaults to DefaultVerifyInterval
	Metrics  *jobs.Metrics // Optional background-job metrics
}

// VerificationJob periodically replays the full hash chain and reports the
// outcome through logs and metrics. Detection is the job's whole purpose: an
// invalid chain is loudly logged and counted, never acted on automatically,
// since structural tampering requires manual forensic review.
type VerificationJob struct {
	config VerificationJobConfig
}

// NewVerificationJob creates a new chain verification job.
func NewVerificationJob(config VerificationJobConfig) *VerificationJob {
	if config.Interval <= 0 {
		config.Interval = DefaultVerifyInterval
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &VerificationJob{config: config}
}

// Run executes one full-ledger verification sweep and returns its result.
func (j *VerificationJob) Run(ctx context.Context) (*VerifyResult, error) {
	start := time.Now()
	result, err := VerifyChain(ctx, j.config.Ledger, nil, nil)
	elapsed := time.Since(start)

	if m := j.config.Metrics; m != nil {
		m.ObserveJobDuration(jobs.JobTypeChainVerification, elapsed.Seconds())
		switch {
		case err != nil:
			m.IncJobsTotal(jobs.JobTypeChainVerification, jobs.StatusFailure)
			m.IncJobErrors(jobs.JobTypeChainVerification, "storage_error")
		case !result.Valid:
			m.IncJobsTotal(jobs.JobTypeChainVerification, jobs.StatusFailure)
			m.IncJobErrors(jobs.JobTypeChainVerification, "chain_invalid")
		default:
			m.IncJobsTotal(jobs.JobTypeChainVerification, jobs.StatusSuccess)
		}
	}

	if err != nil {
		j.config.Logger.ErrorContext(ctx, "chain verification sweep failed", "error", err)
		return nil, err
	}

	if !result.Valid {
		j.config.Logger.ErrorContext(ctx, "audit chain integrity violation detected",
			"entries_checked", result.EntriesChecked,
			"first_invalid_id", *result.FirstInvalidID,
			"detail", result.Error,
		)
	} else {
		j.config.Logger.InfoContext(ctx, "chain verification sweep completed",
			"entries_checked", result.EntriesChecked,
			"duration", elapsed,
		)
	}

	return result, nil
}

// Start runs verification sweeps on a ticker until the context is cancelled.
// It blocks and should typically be run in a goroutine. The first sweep runs
// immediately on start.
func (j *VerificationJob) Start(ctx context.Context) {
	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	if _, err := j.Run(ctx); err != nil {
		j.config.Logger.ErrorContext(ctx, "initial verification sweep failed", "error", err)
	}

	for {
		select {
		case <-ticker.C:
			if _, err := j.Run(ctx); err != nil {
				j.config.Logger.ErrorContext(ctx, "periodic verification sweep failed", "error", err)
			}
		case <-ctx.Done():
			j.config.Logger.Info("stopping chain verification job")
			return
		}
	}
}
