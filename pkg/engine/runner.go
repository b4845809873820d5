package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vitalsync/agent/pkg/bootstrap"
	"github.com/vitalsync/agent/pkg/infrastructure/sentry"
	"github.com/vitalsync/agent/pkg/types"
)

// Runner wraps job invocations with run-record logging, a per-run logger
// and Sentry capture for permanent failures. The scheduler only ever sees
// ShouldRetry; everything else resolves as success here.
type Runner struct {
	Service  *bootstrap.Service
	Notifier *Notifier
	Logger   *slog.Logger
}

func NewRunner(svc *bootstrap.Service, notifier *Notifier, logger *slog.Logger) *Runner {
	return &Runner{Service: svc, Notifier: notifier, Logger: logger}
}

// Execute runs one job invocation end to end.
func (r *Runner) Execute(ctx context.Context, job *Job) Outcome {
	runID := uuid.NewString()
	logger := r.Logger.With("job", job.Name, "user_id", job.UserID, "run_id", runID)

	started := job.now()
	record := &types.SyncRunRecord{
		RunID:     runID,
		JobName:   job.Name,
		Metric:    string(job.Metric),
		Source:    job.Provider.Source(),
		Status:    "started",
		StartedAt: started,
	}
	if err := r.Service.DB.SetSyncRun(ctx, job.UserID, record); err != nil {
		// Don't fail the run just because run logging failed.
		logger.Warn("Failed to record run start", "error", err)
	}

	logger.Info("Job started")
	if job.Logger == nil {
		job.Logger = logger
	}
	outcome := job.Run(ctx)

	update := map[string]interface{}{
		"status":       outcome.Class.String(),
		"days_written": outcome.DaysWritten,
		"finished_at":  job.now(),
	}
	if outcome.Err != nil {
		update["error"] = outcome.Err.Error()
	}
	if outcome.Reason != "" {
		update["reason"] = outcome.Reason
	}
	if err := r.Service.DB.UpdateSyncRun(ctx, job.UserID, runID, update); err != nil {
		logger.Warn("Failed to record run result", "error", err)
	}

	switch outcome.Class {
	case ClassNoOp:
		logger.Info("Job skipped", "reason", outcome.Reason)
	case ClassRetryable:
		logger.Error("Job failed, will retry", "error", outcome.Err, "days_written", outcome.DaysWritten)
	case ClassPermanent:
		// Logged and captured, but the schedule must not wedge on it.
		logger.Error("Job hit permanent failure", "error", outcome.Err)
		sentry.CaptureException(outcome.Err, map[string]interface{}{
			"job":     job.Name,
			"user_id": job.UserID,
			"run_id":  runID,
		}, logger)
		if r.Notifier != nil {
			go r.Notifier.SyncFailed(context.WithoutCancel(ctx), job.UserID, string(job.Metric), job.Provider.Source(), outcome.Err.Error())
		}
	default:
		logger.Info("Job completed", "days_written", outcome.DaysWritten)
	}

	if r.Notifier != nil && outcome.DaysWritten > 0 {
		// Fire-and-forget with its own retry budget; never couples to the
		// job outcome.
		go r.Notifier.DaySynced(context.WithoutCancel(ctx), job.UserID, string(job.Metric), job.Provider.Source(), outcome.DaysWritten)
	}

	return outcome
}

// RunTimeout bounds one job invocation; a stuck pass must fail into
// Retryable instead of hanging the scheduling chain.
const RunTimeout = 10 * time.Minute
