package schedule

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"docflow/internal/delay"
	"docflow/internal/models"
	"docflow/internal/notify"
	"docflow/internal/trigger"
)

// Bounded retry for the external call, on top of the trigger client's own
// two-endpoint fallback. Configuration errors are never retried.
const (
	triggerAttempts = 3
	triggerBackoff  = 2 * time.Second
)

// TriggerClient fires the external generation side effect.
type TriggerClient interface {
	Trigger(ctx context.Context, req trigger.Request) error
}

// ExecutionHandler runs when an armed trigger fires. It is the single
// mutator of job status after creation: every fire re-validates persisted
// state, so a stale timer for a cancelled or already-fired row is a no-op.
type ExecutionHandler struct {
	jobs     JobStore
	subjects SubjectStore
	orch     *Orchestrator
	trigger  TriggerClient
	notifier notify.Notifier
	logger   *zap.Logger

	attempts int
	backoff  time.Duration
}

func NewExecutionHandler(
	jobs JobStore,
	subjects SubjectStore,
	orch *Orchestrator,
	triggerClient TriggerClient,
	notifier notify.Notifier,
	logger *zap.Logger,
) *ExecutionHandler {
	return &ExecutionHandler{
		jobs:     jobs,
		subjects: subjects,
		orch:     orch,
		trigger:  triggerClient,
		notifier: notifier,
		logger:   logger,
		attempts: triggerAttempts,
		backoff:  triggerBackoff,
	}
}

// HandleFire is the delay.Handler bound to the executor.
func (h *ExecutionHandler) HandleFire(ctx context.Context, p delay.FirePayload) {
	switch p.Kind {
	case delay.KindJobFire:
		h.fireJob(ctx, p.JobID)
	case delay.KindArmNext:
		// The eager backstop: create and arm the successor record. The
		// recurrence key no-ops this when the reactive path already did it.
		if _, err := h.orch.ArmNextOccurrence(ctx, p.SubjectID, time.UnixMilli(p.AfterMillis).UTC(), p.DayOfMonth); err != nil {
			h.logger.Error("Backstop failed to arm next occurrence",
				zap.Uint("subject_id", p.SubjectID),
				zap.Error(err))
		}
	default:
		h.logger.Warn("Ignoring fire payload of unknown kind", zap.String("kind", p.Kind))
	}
}

func (h *ExecutionHandler) fireJob(ctx context.Context, jobID uint) {
	job, err := h.jobs.FindByID(jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			h.logger.Warn("Fired job no longer exists", zap.Uint("job_id", jobID))
			return
		}
		h.logger.Error("Failed to load fired job", zap.Uint("job_id", jobID), zap.Error(err))
		return
	}

	if job.Status != models.JobStatusScheduled {
		h.logger.Debug("Ignoring fire for non-scheduled job",
			zap.Uint("job_id", jobID),
			zap.String("status", job.Status))
		return
	}

	claimed, err := h.jobs.MarkExecuting(jobID)
	if err != nil {
		h.logger.Error("Failed to claim fired job", zap.Uint("job_id", jobID), zap.Error(err))
		return
	}
	if !claimed {
		// Lost the race to a concurrent fire or a cancellation.
		return
	}

	client, err := h.subjects.FindByID(job.SubjectID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			h.terminate(job, models.JobStatusFailed, ErrSubjectNotFound.Error())
			return
		}
		h.terminate(job, models.JobStatusFailed, "load client: "+err.Error())
		return
	}

	if !client.SchedulingEnabled {
		h.logger.Info("Scheduling disabled since arming, cancelling job",
			zap.Uint("job_id", jobID),
			zap.Uint("subject_id", job.SubjectID))
		h.terminate(job, models.JobStatusCancelled, "")
		return
	}

	if client.Email == "" || client.SourceResponseID == "" {
		h.terminate(job, models.JobStatusFailed, ErrMissingInputs.Error())
		return
	}

	err = h.triggerWithRetry(ctx, trigger.Request{
		CorrelationID: client.SourceResponseID,
		Email:         client.Email,
		SubjectID:     client.ID,
		PrimaryURL:    client.DocEndpoint,
		FallbackURL:   client.DocFallbackURL,
	})
	if err != nil {
		// A failed execution never re-arms a successor; only the eager
		// backstop armed at schedule time can keep the chain alive.
		h.terminate(job, models.JobStatusFailed, err.Error())
		return
	}

	h.terminate(job, models.JobStatusCompleted, "")

	if job.IsRepeating {
		// Reactive re-arm. Failure here is logged but never flips this
		// job's completed status.
		after := job.ScheduledAt(time.UTC).Add(time.Millisecond)
		if _, err := h.orch.ArmNextOccurrence(ctx, job.SubjectID, after, job.DayOfMonth); err != nil {
			h.logger.Error("Completed job failed to re-arm next occurrence",
				zap.Uint("job_id", jobID),
				zap.Uint("subject_id", job.SubjectID),
				zap.Error(err))
		}
	}
}

func (h *ExecutionHandler) triggerWithRetry(ctx context.Context, req trigger.Request) error {
	var lastErr error
	for attempt := 1; attempt <= h.attempts; attempt++ {
		lastErr = h.trigger.Trigger(ctx, req)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, trigger.ErrConfiguration) {
			return lastErr
		}
		if attempt < h.attempts {
			backoff := time.Duration(attempt) * h.backoff
			h.logger.Warn("Trigger attempt failed, backing off",
				zap.Uint("subject_id", req.SubjectID),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return lastErr
}

func (h *ExecutionHandler) terminate(job *models.CronJob, status, reason string) {
	if err := h.jobs.PatchStatus(job.ID, status, reason); err != nil {
		h.logger.Error("Failed to persist job status",
			zap.Uint("job_id", job.ID),
			zap.String("status", status),
			zap.Error(err))
		return
	}
	if status == models.JobStatusFailed {
		h.logger.Error("Job execution failed",
			zap.Uint("job_id", job.ID),
			zap.Uint("subject_id", job.SubjectID),
			zap.String("reason", reason))
		h.notifier.JobFailed(job.SubjectID, job.ID, reason)
	}
}
