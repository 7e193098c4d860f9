package schedule

import "docflow/internal/models"

// JobStore is the persistence contract the orchestrator and execution
// handler need from the cron job repository.
type JobStore interface {
	Insert(job *models.CronJob) error
	InsertIfAbsent(job *models.CronJob) (bool, error)
	FindByID(id uint) (*models.CronJob, error)
	ListScheduledBefore(beforeMillis int64) ([]models.CronJob, error)
	MarkExecuting(id uint) (bool, error)
	PatchStatus(id uint, status, lastError string) error
	CancelScheduledForSubject(subjectID uint) (int64, error)
}

// SubjectStore looks up the clients jobs belong to.
type SubjectStore interface {
	FindByID(id uint) (*models.Client, error)
}
