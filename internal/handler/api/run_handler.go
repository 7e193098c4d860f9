package api

import (
	"errors"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"docflow/internal/models"
	"docflow/internal/repository"
	"docflow/internal/trigger"
	"docflow/internal/workflow"
)

// RunHandler exposes workflow runs: manual generation, progress callbacks
// from the external generator, and polling reads.
type RunHandler struct {
	tracker *workflow.Tracker
	runs    *repository.WorkflowRunRepository
	clients *repository.ClientRepository
	trigger *trigger.Client
	logger  *zap.Logger
}

func NewRunHandler(
	tracker *workflow.Tracker,
	runs *repository.WorkflowRunRepository,
	clients *repository.ClientRepository,
	triggerClient *trigger.Client,
	logger *zap.Logger,
) *RunHandler {
	return &RunHandler{
		tracker: tracker,
		runs:    runs,
		clients: clients,
		trigger: triggerClient,
		logger:  logger,
	}
}

// runView inlines the decoded step log for polling observers.
type runView struct {
	*models.WorkflowRun
	StepLog []models.WorkflowStep `json:"steps"`
}

func (h *RunHandler) view(run *models.WorkflowRun) runView {
	steps, err := run.StepList()
	if err != nil {
		h.logger.Error("Corrupt step log", zap.Uint("run_id", run.ID), zap.Error(err))
	}
	return runView{WorkflowRun: run, StepLog: steps}
}

// Generate handles POST /api/clients/:id/generate — a manual generation run.
// The correlation check in Start keeps a resubmitted form response from
// producing a second run.
func (h *RunHandler) Generate(c echo.Context) error {
	subjectID, err := pathID(c, "id")
	if err != nil {
		return errorResponse(c, "Invalid client id")
	}

	client, err := h.clients.FindByID(subjectID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errorResponse(c, "Client not found")
		}
		h.logger.Error("Failed to load client", zap.Uint("subject_id", subjectID), zap.Error(err))
		return errorResponse(c, "Failed to load client")
	}
	if client.Email == "" || client.SourceResponseID == "" {
		return errorResponse(c, "Client is missing required generation inputs")
	}

	ctx := c.Request().Context()
	run, created, err := h.tracker.Start(ctx, subjectID, client.SourceResponseID)
	if err != nil {
		h.logger.Error("Failed to start run", zap.Uint("subject_id", subjectID), zap.Error(err))
		return errorResponse(c, "Failed to start run")
	}
	if !created {
		return successResponse(c, "Run already in progress for this response", h.view(run))
	}

	err = h.trigger.Trigger(ctx, trigger.Request{
		CorrelationID: client.SourceResponseID,
		Email:         client.Email,
		SubjectID:     client.ID,
		PrimaryURL:    client.DocEndpoint,
		FallbackURL:   client.DocFallbackURL,
	})
	if err != nil {
		if failErr := h.tracker.Fail(ctx, run.ID, err.Error()); failErr != nil {
			h.logger.Error("Failed to mark run failed", zap.Uint("run_id", run.ID), zap.Error(failErr))
		}
		return errorResponse(c, "Generation trigger failed: "+err.Error())
	}

	if err := h.tracker.AppendStep(ctx, run.ID, models.WorkflowStep{
		Name:   "trigger",
		Status: models.StepStatusSuccess,
	}, models.RunStatusGenerating); err != nil {
		h.logger.Error("Failed to append trigger step", zap.Uint("run_id", run.ID), zap.Error(err))
	}

	run, err = h.tracker.Get(ctx, run.ID)
	if err != nil {
		return errorResponse(c, "Failed to reload run")
	}
	return successResponse(c, "Generation triggered", h.view(run))
}

// GetRun handles GET /api/runs/:id for polling observers.
func (h *RunHandler) GetRun(c echo.Context) error {
	runID, err := pathID(c, "id")
	if err != nil {
		return errorResponse(c, "Invalid run id")
	}
	run, err := h.tracker.Get(c.Request().Context(), runID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errorResponse(c, "Run not found")
		}
		return errorResponse(c, "Failed to load run")
	}
	return successResponse(c, "", h.view(run))
}

// ListRuns handles GET /api/clients/:id/runs.
func (h *RunHandler) ListRuns(c echo.Context) error {
	subjectID, err := pathID(c, "id")
	if err != nil {
		return errorResponse(c, "Invalid client id")
	}
	runs, err := h.runs.ListBySubject(subjectID)
	if err != nil {
		h.logger.Error("Failed to list runs", zap.Uint("subject_id", subjectID), zap.Error(err))
		return errorResponse(c, "Failed to list runs")
	}
	views := make([]runView, 0, len(runs))
	for i := range runs {
		views = append(views, h.view(&runs[i]))
	}
	return successResponse(c, "", views)
}

type stepRequest struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	Detail    string `json:"detail"`
	AdvanceTo string `json:"advance_to"`
}

// AppendStep handles POST /api/runs/:id/steps — progress callbacks from the
// external generator.
func (h *RunHandler) AppendStep(c echo.Context) error {
	runID, err := pathID(c, "id")
	if err != nil {
		return errorResponse(c, "Invalid run id")
	}
	var req stepRequest
	if err := c.Bind(&req); err != nil || req.Name == "" {
		return errorResponse(c, "Step name is required")
	}
	err = h.tracker.AppendStep(c.Request().Context(), runID, models.WorkflowStep{
		Name:   req.Name,
		Status: req.Status,
		Detail: req.Detail,
	}, req.AdvanceTo)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errorResponse(c, "Run not found")
		}
		h.logger.Error("Failed to append step", zap.Uint("run_id", runID), zap.Error(err))
		return errorResponse(c, "Failed to append step")
	}
	return successResponse(c, "Step recorded", nil)
}

// CompleteRun handles POST /api/runs/:id/complete.
func (h *RunHandler) CompleteRun(c echo.Context) error {
	runID, err := pathID(c, "id")
	if err != nil {
		return errorResponse(c, "Invalid run id")
	}
	if err := h.tracker.Complete(c.Request().Context(), runID); err != nil {
		h.logger.Error("Failed to complete run", zap.Uint("run_id", runID), zap.Error(err))
		return errorResponse(c, "Failed to complete run")
	}
	return successResponse(c, "Run completed", nil)
}

type failRequest struct {
	Error string `json:"error"`
}

// FailRun handles POST /api/runs/:id/fail.
func (h *RunHandler) FailRun(c echo.Context) error {
	runID, err := pathID(c, "id")
	if err != nil {
		return errorResponse(c, "Invalid run id")
	}
	var req failRequest
	_ = c.Bind(&req)
	if req.Error == "" {
		req.Error = "unspecified failure"
	}
	if err := h.tracker.Fail(c.Request().Context(), runID, req.Error); err != nil {
		h.logger.Error("Failed to fail run", zap.Uint("run_id", runID), zap.Error(err))
		return errorResponse(c, "Failed to record failure")
	}
	return successResponse(c, "Run failed", nil)
}
