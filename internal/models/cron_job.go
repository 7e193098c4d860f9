package models

import "time"

// CronJob statuses. A row moves scheduled -> executing -> completed/failed,
// or scheduled -> cancelled. Executing is transient: the guarded update that
// claims a firing, so a duplicate fire observes a non-scheduled row and no-ops.
const (
	JobStatusScheduled = "scheduled"
	JobStatusExecuting = "executing"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusCancelled = "cancelled"
)

// CronJob stores one scheduled or historical generation trigger for a client.
// Rows are never deleted; cancelled and terminal rows stay as history.
type CronJob struct {
	ID            uint    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	SubjectID     uint    `gorm:"column:subject_id;index:idx_cron_jobs_subject_status,priority:1" json:"subject_id"`
	ScheduledTime int64   `gorm:"column:scheduled_time;index:idx_cron_jobs_scheduled_time" json:"scheduled_time"` // epoch millis
	DayOfMonth    int     `gorm:"column:day_of_month" json:"day_of_month"`
	IsRepeating   bool    `gorm:"column:is_repeating" json:"is_repeating"`
	Status        string  `gorm:"column:status;size:30;index:idx_cron_jobs_subject_status,priority:2" json:"status"`
	RecurrenceKey *string `gorm:"column:recurrence_key;size:64;uniqueIndex:idx_cron_jobs_recurrence_key" json:"recurrence_key,omitempty"`
	LastError     string  `gorm:"column:last_error;type:text" json:"last_error"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (CronJob) TableName() string {
	return "cron_jobs"
}

// ScheduledAt returns the scheduled time as time.Time in the given location.
func (j *CronJob) ScheduledAt(loc *time.Location) time.Time {
	return time.UnixMilli(j.ScheduledTime).In(loc)
}
