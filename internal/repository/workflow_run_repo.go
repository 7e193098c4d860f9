package repository

import (
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"docflow/internal/models"
)

// WorkflowRunRepository persists generation runs and their append-only step logs.
type WorkflowRunRepository struct {
	db *gorm.DB
}

func NewWorkflowRunRepository(db *gorm.DB) *WorkflowRunRepository {
	return &WorkflowRunRepository{db: db}
}

func (r *WorkflowRunRepository) Create(run *models.WorkflowRun) error {
	return r.db.Create(run).Error
}

func (r *WorkflowRunRepository) FindByID(id uint) (*models.WorkflowRun, error) {
	var run models.WorkflowRun
	if err := r.db.First(&run, id).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *WorkflowRunRepository) ListBySubject(subjectID uint) ([]models.WorkflowRun, error) {
	var runs []models.WorkflowRun
	err := r.db.Where("subject_id = ?", subjectID).
		Order("id DESC").
		Find(&runs).Error
	return runs, err
}

// FindByCorrelation returns the most recent run for a subject/correlation pair.
func (r *WorkflowRunRepository) FindByCorrelation(subjectID uint, correlationID string) (*models.WorkflowRun, error) {
	var run models.WorkflowRun
	err := r.db.Where("subject_id = ? AND correlation_id = ?", subjectID, correlationID).
		Order("id DESC").
		First(&run).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// AppendStep appends one entry to the run's step log inside a row-locked
// transaction. Prior entries are never rewritten. When advanceTo is non-empty
// the run status is updated only if it moves forward in the lattice; a
// terminal run accepts no further status change.
func (r *WorkflowRunRepository) AppendStep(runID uint, step models.WorkflowStep, advanceTo string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var run models.WorkflowRun
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&run, runID).Error; err != nil {
			return err
		}

		steps, err := run.StepList()
		if err != nil {
			return fmt.Errorf("corrupt step log for run %d: %w", runID, err)
		}
		steps = append(steps, step)
		raw, err := json.Marshal(steps)
		if err != nil {
			return err
		}

		updates := map[string]interface{}{
			"steps": string(raw),
		}
		if advanceTo != "" &&
			!models.RunStatusTerminal(run.Status) &&
			models.RunStatusRank(advanceTo) > models.RunStatusRank(run.Status) {
			updates["status"] = advanceTo
		}

		return tx.Model(&models.WorkflowRun{}).Where("id = ?", runID).Updates(updates).Error
	})
}

// SetTerminal moves a run to completed or failed. Completed is refused once
// the run is already terminal; failed wins from any non-terminal status.
func (r *WorkflowRunRepository) SetTerminal(runID uint, status, errMsg string) error {
	if !models.RunStatusTerminal(status) {
		return errors.New("SetTerminal requires a terminal status")
	}
	updates := map[string]interface{}{
		"status": status,
	}
	if errMsg != "" {
		updates["error"] = errMsg
	}
	return r.db.Model(&models.WorkflowRun{}).
		Where("id = ? AND status NOT IN ?", runID, []string{models.RunStatusCompleted, models.RunStatusFailed}).
		Updates(updates).Error
}
