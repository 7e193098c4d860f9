package router

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"docflow/internal/handler/api"
	"docflow/internal/middleware"
)

// Deps bundles the handlers the router wires up.
type Deps struct {
	Clients  *api.ClientHandler
	Schedule *api.ScheduleHandler
	Runs     *api.RunHandler
}

// Setup configures all routes for the Echo server.
func Setup(e *echo.Echo, deps Deps, apiKey string, logger *zap.Logger) {
	// Global middleware
	e.Use(echomw.Recover())
	e.Use(middleware.CORS())

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	g := e.Group("/api", middleware.APIAuth(apiKey))

	g.POST("/clients", deps.Clients.Create)
	g.GET("/clients/:id", deps.Clients.Get)
	g.PATCH("/clients/:id", deps.Clients.Update)

	g.POST("/clients/:id/schedule", deps.Schedule.EstablishSchedule)
	g.GET("/clients/:id/jobs", deps.Schedule.ListJobs)

	g.POST("/clients/:id/generate", deps.Runs.Generate)
	g.GET("/clients/:id/runs", deps.Runs.ListRuns)
	g.GET("/runs/:id", deps.Runs.GetRun)
	g.POST("/runs/:id/steps", deps.Runs.AppendStep)
	g.POST("/runs/:id/complete", deps.Runs.CompleteRun)
	g.POST("/runs/:id/fail", deps.Runs.FailRun)
}
