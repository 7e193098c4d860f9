// Package workflow records step-by-step progress of generation attempts.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"docflow/internal/models"
	"docflow/internal/notify"
	"docflow/internal/pkg/lease"
)

// correlationLeaseTTL bounds the exclusivity window for a correlation id.
// Long enough to cover a full generation attempt; a stuck run releases its
// correlation after this.
const correlationLeaseTTL = 30 * time.Minute

// RunStore is the persistence contract the tracker needs.
type RunStore interface {
	Create(run *models.WorkflowRun) error
	FindByID(id uint) (*models.WorkflowRun, error)
	FindByCorrelation(subjectID uint, correlationID string) (*models.WorkflowRun, error)
	AppendStep(runID uint, step models.WorkflowStep, advanceTo string) error
	SetTerminal(runID uint, status, errMsg string) error
}

// Tracker creates runs and appends to their step logs. Step logs only ever
// grow; a step is never mutated after being appended.
type Tracker struct {
	runs     RunStore
	leases   lease.Leaser
	notifier notify.Notifier
	logger   *zap.Logger
	now      func() time.Time
}

func NewTracker(runs RunStore, leases lease.Leaser, notifier notify.Notifier, logger *zap.Logger) *Tracker {
	return &Tracker{
		runs:     runs,
		leases:   leases,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Start creates a run in started status with an initial success step. When a
// correlation id is given, a lease plus the unique (subject, correlation)
// index keep concurrent starts from producing two runs: the loser gets the
// winner's run back with created=false.
func (t *Tracker) Start(ctx context.Context, subjectID uint, correlationID string) (*models.WorkflowRun, bool, error) {
	var corr *string
	if correlationID != "" {
		ok, err := t.leases.Acquire(ctx, correlationKey(subjectID, correlationID), correlationLeaseTTL)
		if err != nil {
			// Lease backend down: fall through to the unique index.
			t.logger.Warn("Correlation lease unavailable, relying on unique index", zap.Error(err))
		} else if !ok {
			existing, err := t.runs.FindByCorrelation(subjectID, correlationID)
			if err == nil {
				return existing, false, nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, false, err
			}
			// Lease held but no row yet: the winner has not committed.
			return nil, false, fmt.Errorf("run for correlation %q is being created", correlationID)
		}
		corr = &correlationID
	}

	steps, _ := json.Marshal([]models.WorkflowStep{{
		Name:      "start",
		Status:    models.StepStatusSuccess,
		Timestamp: t.now().UnixMilli(),
	}})

	run := &models.WorkflowRun{
		SubjectID:     subjectID,
		CorrelationID: corr,
		Status:        models.RunStatusStarted,
		Steps:         string(steps),
	}
	if err := t.runs.Create(run); err != nil {
		if correlationID != "" {
			// Unique index may have rejected a duplicate correlation.
			if existing, lookupErr := t.runs.FindByCorrelation(subjectID, correlationID); lookupErr == nil {
				return existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("create run: %w", err)
	}

	t.logger.Info("Started workflow run",
		zap.Uint("run_id", run.ID),
		zap.Uint("subject_id", subjectID),
		zap.String("correlation_id", correlationID))
	return run, true, nil
}

// AppendStep appends one step to the run's log and optionally advances the
// run status (forward-only; backward or terminal-escaping advances are
// ignored at the store).
func (t *Tracker) AppendStep(ctx context.Context, runID uint, step models.WorkflowStep, advanceTo string) error {
	if step.Timestamp == 0 {
		step.Timestamp = t.now().UnixMilli()
	}
	if step.Status == "" {
		step.Status = models.StepStatusRunning
	}
	return t.runs.AppendStep(runID, step, advanceTo)
}

// Complete moves the run to completed without touching the step log.
func (t *Tracker) Complete(ctx context.Context, runID uint) error {
	return t.runs.SetTerminal(runID, models.RunStatusCompleted, "")
}

// Fail appends an error step, moves the run to failed with the reason and
// raises an operator alert.
func (t *Tracker) Fail(ctx context.Context, runID uint, reason string) error {
	step := models.WorkflowStep{
		Name:      "error",
		Status:    models.StepStatusError,
		Timestamp: t.now().UnixMilli(),
		Detail:    reason,
	}
	if err := t.runs.AppendStep(runID, step, ""); err != nil {
		return err
	}
	if err := t.runs.SetTerminal(runID, models.RunStatusFailed, reason); err != nil {
		return err
	}
	if run, err := t.runs.FindByID(runID); err == nil {
		t.notifier.RunFailed(run.SubjectID, runID, reason)
	}
	return nil
}

// Get returns a run for polling observers.
func (t *Tracker) Get(ctx context.Context, runID uint) (*models.WorkflowRun, error) {
	return t.runs.FindByID(runID)
}

func correlationKey(subjectID uint, correlationID string) string {
	return fmt.Sprintf("wfrun:%d:%s", subjectID, correlationID)
}
