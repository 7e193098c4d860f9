package models

import (
	"encoding/json"
	"time"
)

// WorkflowRun statuses form a forward-only lattice:
// queued -> started -> generating -> storing -> completed, with failed
// reachable from any non-terminal status.
const (
	RunStatusQueued     = "queued"
	RunStatusStarted    = "started"
	RunStatusGenerating = "generating"
	RunStatusStoring    = "storing"
	RunStatusCompleted  = "completed"
	RunStatusFailed     = "failed"
)

// WorkflowStep is one entry in a run's append-only step log.
type WorkflowStep struct {
	Name      string `json:"name"`
	Status    string `json:"status"` // pending | running | success | error
	Timestamp int64  `json:"timestamp"`
	Detail    string `json:"detail,omitempty"`
}

// Step statuses.
const (
	StepStatusPending = "pending"
	StepStatusRunning = "running"
	StepStatusSuccess = "success"
	StepStatusError   = "error"
)

// WorkflowRun records one attempt to produce a generated document for a
// client. Steps are an append-only JSON log; entries are never mutated or
// removed after being appended. Runs are never deleted.
type WorkflowRun struct {
	ID            uint    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	SubjectID     uint    `gorm:"column:subject_id;index:idx_workflow_runs_subject;uniqueIndex:idx_workflow_runs_correlation,priority:1" json:"subject_id"`
	CorrelationID *string `gorm:"column:correlation_id;size:255;uniqueIndex:idx_workflow_runs_correlation,priority:2" json:"correlation_id,omitempty"`
	Status        string  `gorm:"column:status;size:30;index:idx_workflow_runs_status" json:"status"`
	Steps         string  `gorm:"column:steps;type:longtext" json:"-"`
	Error         string  `gorm:"column:error;type:text" json:"error,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (WorkflowRun) TableName() string {
	return "workflow_runs"
}

// StepList decodes the step log. An empty column decodes to no steps.
func (r *WorkflowRun) StepList() ([]WorkflowStep, error) {
	if r.Steps == "" {
		return nil, nil
	}
	var steps []WorkflowStep
	if err := json.Unmarshal([]byte(r.Steps), &steps); err != nil {
		return nil, err
	}
	return steps, nil
}

// RunStatusRank orders run statuses for forward-only transitions. Terminal
// statuses rank highest so no update can move past them.
func RunStatusRank(status string) int {
	switch status {
	case RunStatusQueued:
		return 0
	case RunStatusStarted:
		return 1
	case RunStatusGenerating:
		return 2
	case RunStatusStoring:
		return 3
	case RunStatusCompleted, RunStatusFailed:
		return 4
	default:
		return -1
	}
}

// RunStatusTerminal reports whether a run status admits no further transition.
func RunStatusTerminal(status string) bool {
	return status == RunStatusCompleted || status == RunStatusFailed
}
