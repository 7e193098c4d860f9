package repository

import (
	"errors"

	"gorm.io/gorm"

	"docflow/internal/models"
)

// CronJobRepository persists scheduled generation triggers.
type CronJobRepository struct {
	db *gorm.DB
}

func NewCronJobRepository(db *gorm.DB) *CronJobRepository {
	return &CronJobRepository{db: db}
}

func (r *CronJobRepository) Insert(job *models.CronJob) error {
	return r.db.Create(job).Error
}

// InsertIfAbsent creates a recurrence-keyed job unless one already exists for
// the same key. It returns false when a row for the key was already present,
// which makes the dual arming paths (reactive re-arm and eager backstop)
// idempotent with respect to each other. The unique index on recurrence_key
// backs the lookup against racing inserters.
func (r *CronJobRepository) InsertIfAbsent(job *models.CronJob) (bool, error) {
	if job.RecurrenceKey == nil || *job.RecurrenceKey == "" {
		return false, errors.New("recurrence key is required")
	}

	var existing models.CronJob
	err := r.db.Where("recurrence_key = ?", *job.RecurrenceKey).First(&existing).Error
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	if err := r.db.Create(job).Error; err != nil {
		// A concurrent inserter may have won the unique index; treat the
		// key being present as the not-created case.
		var check models.CronJob
		if lookupErr := r.db.Where("recurrence_key = ?", *job.RecurrenceKey).First(&check).Error; lookupErr == nil {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *CronJobRepository) FindByID(id uint) (*models.CronJob, error) {
	var job models.CronJob
	if err := r.db.First(&job, id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *CronJobRepository) ListBySubject(subjectID uint) ([]models.CronJob, error) {
	var jobs []models.CronJob
	err := r.db.Where("subject_id = ?", subjectID).
		Order("scheduled_time ASC").
		Find(&jobs).Error
	return jobs, err
}

// ListScheduledBefore returns scheduled rows whose fire time has elapsed.
// Used by the reconciliation pass to recover timers lost across restarts.
func (r *CronJobRepository) ListScheduledBefore(beforeMillis int64) ([]models.CronJob, error) {
	var jobs []models.CronJob
	err := r.db.Where("status = ? AND scheduled_time <= ?", models.JobStatusScheduled, beforeMillis).
		Order("scheduled_time ASC").
		Find(&jobs).Error
	return jobs, err
}

// MarkExecuting claims a firing with a guarded scheduled->executing update.
// It returns false when the row was no longer scheduled, which is how a
// duplicate or post-cancellation fire becomes a no-op.
func (r *CronJobRepository) MarkExecuting(id uint) (bool, error) {
	res := r.db.Model(&models.CronJob{}).
		Where("id = ? AND status = ?", id, models.JobStatusScheduled).
		Update("status", models.JobStatusExecuting)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// PatchStatus sets a terminal status on a single row.
func (r *CronJobRepository) PatchStatus(id uint, status, lastError string) error {
	updates := map[string]interface{}{
		"status": status,
	}
	if lastError != "" {
		updates["last_error"] = lastError
	}
	return r.db.Model(&models.CronJob{}).Where("id = ?", id).Updates(updates).Error
}

// CancelScheduledForSubject soft-cancels every scheduled row for a subject.
// Timers already armed for these rows still fire; they observe the cancelled
// status at fire time and no-op.
func (r *CronJobRepository) CancelScheduledForSubject(subjectID uint) (int64, error) {
	res := r.db.Model(&models.CronJob{}).
		Where("subject_id = ? AND status = ?", subjectID, models.JobStatusScheduled).
		Update("status", models.JobStatusCancelled)
	return res.RowsAffected, res.Error
}
