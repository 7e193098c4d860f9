package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"docflow/internal/delay"
	"docflow/internal/models"
)

// Anchor offsets for a fresh schedule: the first one-time job fires 25 days
// after the base time, the second 30 days after the first. The second
// anchor's calendar day becomes the client's permanent recurring day.
const (
	firstAnchorOffset  = 25 * 24 * time.Hour
	secondAnchorOffset = 30 * 24 * time.Hour
)

// Orchestrator establishes and re-establishes a client's generation
// schedule: two one-time anchors followed by an indefinite monthly
// recurrence.
type Orchestrator struct {
	jobs     JobStore
	subjects SubjectStore
	exec     delay.Executor
	logger   *zap.Logger
	now      func() time.Time
}

func NewOrchestrator(jobs JobStore, subjects SubjectStore, exec delay.Executor, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		jobs:     jobs,
		subjects: subjects,
		exec:     exec,
		logger:   logger,
		now:      time.Now,
	}
}

// EstablishSchedule cancels any scheduled jobs for the client and creates
// the fixed two-anchor chain from baseTime (zero means now). Cancellation is
// soft: timers already armed for the old rows fire anyway and no-op once
// they observe the cancelled status. Returns the number of jobs armed.
func (o *Orchestrator) EstablishSchedule(ctx context.Context, subjectID uint, baseTime time.Time) (int, error) {
	client, err := o.subjects.FindByID(subjectID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrSubjectNotFound
		}
		return 0, fmt.Errorf("load client %d: %w", subjectID, err)
	}
	if !client.SchedulingEnabled {
		return 0, ErrSchedulingDisabled
	}

	cancelled, err := o.jobs.CancelScheduledForSubject(subjectID)
	if err != nil {
		return 0, fmt.Errorf("cancel scheduled jobs for client %d: %w", subjectID, err)
	}
	if cancelled > 0 {
		o.logger.Info("Cancelled previously scheduled jobs",
			zap.Uint("subject_id", subjectID),
			zap.Int64("count", cancelled))
	}

	if baseTime.IsZero() {
		baseTime = o.now()
	}
	// All day-of-month arithmetic happens in UTC: persisted times are epoch
	// millis, which carry no zone, and fire-time reconstruction uses UTC.
	baseTime = baseTime.UTC()

	// Anchor A: one-time, 25 days out.
	anchorA := baseTime.Add(firstAnchorOffset)
	jobA := &models.CronJob{
		SubjectID:     subjectID,
		ScheduledTime: anchorA.UnixMilli(),
		DayOfMonth:    anchorA.Day(),
		IsRepeating:   false,
		Status:        models.JobStatusScheduled,
	}
	if err := o.jobs.Insert(jobA); err != nil {
		return 0, fmt.Errorf("insert first anchor for client %d: %w", subjectID, err)
	}
	if err := o.armJob(ctx, jobA); err != nil {
		return 0, err
	}

	// Anchor B: repeating, 30 days after A. Its calendar day is the
	// client's recurring day from here on.
	anchorB := anchorA.Add(secondAnchorOffset)
	jobB := &models.CronJob{
		SubjectID:     subjectID,
		ScheduledTime: anchorB.UnixMilli(),
		DayOfMonth:    anchorB.Day(),
		IsRepeating:   true,
		Status:        models.JobStatusScheduled,
	}
	if err := o.jobs.Insert(jobB); err != nil {
		return 1, fmt.Errorf("insert second anchor for client %d: %w", subjectID, err)
	}
	if err := o.armJob(ctx, jobB); err != nil {
		return 1, err
	}

	// Eager backstop: arm an independent trigger at the first monthly
	// occurrence after anchor B. If B's reactive re-arm never happens (B
	// failed, or the process died mid-handler), this trigger still creates
	// the successor. The recurrence key makes the two paths idempotent.
	next := NextOccurrence(anchorB.Add(time.Millisecond), jobB.DayOfMonth)
	_, err = o.exec.ArmAfter(ctx, next.Sub(o.now()), delay.FirePayload{
		Kind:        delay.KindArmNext,
		SubjectID:   subjectID,
		DayOfMonth:  jobB.DayOfMonth,
		AfterMillis: anchorB.Add(time.Millisecond).UnixMilli(),
	})
	if err != nil {
		// The reactive path still re-arms on success; keep the schedule.
		o.logger.Error("Failed to arm recurrence backstop",
			zap.Uint("subject_id", subjectID),
			zap.Error(err))
	}

	o.logger.Info("Established schedule",
		zap.Uint("subject_id", subjectID),
		zap.Time("first_anchor", anchorA),
		zap.Time("second_anchor", anchorB),
		zap.Int("recurring_day", jobB.DayOfMonth))

	return 2, nil
}

// ArmNextOccurrence creates and arms the next monthly job for a client,
// guarded by a recurrence key so the reactive re-arm and the eager backstop
// cannot create duplicate successors for the same month. Returns true when
// this call created the successor.
func (o *Orchestrator) ArmNextOccurrence(ctx context.Context, subjectID uint, after time.Time, dayOfMonth int) (bool, error) {
	next := NextOccurrence(after.UTC(), dayOfMonth)
	key := recurrenceKey(subjectID, dayOfMonth, next)

	job := &models.CronJob{
		SubjectID:     subjectID,
		ScheduledTime: next.UnixMilli(),
		DayOfMonth:    dayOfMonth,
		IsRepeating:   true,
		Status:        models.JobStatusScheduled,
		RecurrenceKey: &key,
	}

	created, err := o.jobs.InsertIfAbsent(job)
	if err != nil {
		return false, fmt.Errorf("insert next occurrence for client %d: %w", subjectID, err)
	}
	if !created {
		o.logger.Debug("Next occurrence already armed",
			zap.Uint("subject_id", subjectID),
			zap.String("recurrence_key", key))
		return false, nil
	}

	if err := o.armJob(ctx, job); err != nil {
		return true, err
	}

	o.logger.Info("Armed next monthly occurrence",
		zap.Uint("subject_id", subjectID),
		zap.Uint("job_id", job.ID),
		zap.Time("scheduled", next))
	return true, nil
}

func (o *Orchestrator) armJob(ctx context.Context, job *models.CronJob) error {
	_, err := o.exec.ArmAfter(ctx, time.UnixMilli(job.ScheduledTime).Sub(o.now()), delay.FirePayload{
		Kind:  delay.KindJobFire,
		JobID: job.ID,
	})
	if err != nil {
		return fmt.Errorf("arm job %d: %w", job.ID, err)
	}
	return nil
}

func recurrenceKey(subjectID uint, dayOfMonth int, occurrence time.Time) string {
	return fmt.Sprintf("%d:%d:%s", subjectID, dayOfMonth, occurrence.Format("2006-01"))
}
