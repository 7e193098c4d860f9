package api

import (
	"errors"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"docflow/internal/models"
	"docflow/internal/repository"
)

// ClientHandler covers the minimal client registry the scheduler needs.
type ClientHandler struct {
	clients *repository.ClientRepository
	logger  *zap.Logger
}

func NewClientHandler(clients *repository.ClientRepository, logger *zap.Logger) *ClientHandler {
	return &ClientHandler{clients: clients, logger: logger}
}

type clientRequest struct {
	Email             string `json:"email"`
	SourceResponseID  string `json:"source_response_id"`
	SchedulingEnabled bool   `json:"scheduling_enabled"`
	DocEndpoint       string `json:"doc_endpoint"`
	DocFallbackURL    string `json:"doc_fallback_url"`
}

// Create handles POST /api/clients.
func (h *ClientHandler) Create(c echo.Context) error {
	var req clientRequest
	if err := c.Bind(&req); err != nil || req.Email == "" {
		return errorResponse(c, "Email is required")
	}

	client := &models.Client{
		Email:             req.Email,
		SourceResponseID:  req.SourceResponseID,
		SchedulingEnabled: req.SchedulingEnabled,
		DocEndpoint:       req.DocEndpoint,
		DocFallbackURL:    req.DocFallbackURL,
	}
	if err := h.clients.Create(client); err != nil {
		h.logger.Error("Failed to create client", zap.Error(err))
		return errorResponse(c, "Failed to create client")
	}
	return successResponse(c, "Client created", client)
}

// Get handles GET /api/clients/:id.
func (h *ClientHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return errorResponse(c, "Invalid client id")
	}
	client, err := h.clients.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errorResponse(c, "Client not found")
		}
		return errorResponse(c, "Failed to load client")
	}
	return successResponse(c, "", client)
}

// Update handles PATCH /api/clients/:id.
func (h *ClientHandler) Update(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return errorResponse(c, "Invalid client id")
	}
	client, err := h.clients.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errorResponse(c, "Client not found")
		}
		return errorResponse(c, "Failed to load client")
	}

	var req clientRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, "Invalid request body")
	}
	if req.Email != "" {
		client.Email = req.Email
	}
	if req.SourceResponseID != "" {
		client.SourceResponseID = req.SourceResponseID
	}
	client.SchedulingEnabled = req.SchedulingEnabled
	client.DocEndpoint = req.DocEndpoint
	client.DocFallbackURL = req.DocFallbackURL

	if err := h.clients.Update(client); err != nil {
		h.logger.Error("Failed to update client", zap.Uint("client_id", id), zap.Error(err))
		return errorResponse(c, "Failed to update client")
	}
	return successResponse(c, "Client updated", client)
}
