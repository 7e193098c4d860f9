package api

import (
	"errors"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"docflow/internal/repository"
	"docflow/internal/schedule"
)

// ScheduleHandler exposes schedule establishment and job inspection.
type ScheduleHandler struct {
	orch   *schedule.Orchestrator
	jobs   *repository.CronJobRepository
	logger *zap.Logger
}

func NewScheduleHandler(orch *schedule.Orchestrator, jobs *repository.CronJobRepository, logger *zap.Logger) *ScheduleHandler {
	return &ScheduleHandler{orch: orch, jobs: jobs, logger: logger}
}

type establishRequest struct {
	BaseTime int64 `json:"base_time"` // epoch millis; zero means now
}

// EstablishSchedule handles POST /api/clients/:id/schedule.
func (h *ScheduleHandler) EstablishSchedule(c echo.Context) error {
	subjectID, err := pathID(c, "id")
	if err != nil {
		return errorResponse(c, "Invalid client id")
	}

	var req establishRequest
	// Body is optional.
	_ = c.Bind(&req)

	var baseTime time.Time
	if req.BaseTime > 0 {
		baseTime = time.UnixMilli(req.BaseTime)
	}

	count, err := h.orch.EstablishSchedule(c.Request().Context(), subjectID, baseTime)
	if err != nil {
		switch {
		case errors.Is(err, schedule.ErrSubjectNotFound):
			return errorResponse(c, "Client not found")
		case errors.Is(err, schedule.ErrSchedulingDisabled):
			return errorResponse(c, "Scheduling is disabled for this client")
		default:
			h.logger.Error("Failed to establish schedule", zap.Uint("subject_id", subjectID), zap.Error(err))
			return errorResponse(c, "Failed to establish schedule")
		}
	}

	return successResponse(c, "Schedule established", map[string]interface{}{
		"scheduled_count": count,
	})
}

// ListJobs handles GET /api/clients/:id/jobs.
func (h *ScheduleHandler) ListJobs(c echo.Context) error {
	subjectID, err := pathID(c, "id")
	if err != nil {
		return errorResponse(c, "Invalid client id")
	}

	jobs, err := h.jobs.ListBySubject(subjectID)
	if err != nil {
		h.logger.Error("Failed to list jobs", zap.Uint("subject_id", subjectID), zap.Error(err))
		return errorResponse(c, "Failed to list jobs")
	}
	return successResponse(c, "", jobs)
}
