// Package handlers exposes the HTTP API: video and clip management, stage
// triggers, progress polling and the WebSocket push channel.
package handlers

import (
	"errors"
	"net/http"

	"clipforge/internal/auth"
	"clipforge/internal/pipeline"
	"clipforge/internal/storage"
	"clipforge/internal/version"
	"clipforge/internal/ws"

	"github.com/labstack/echo/v4"
)

// Handler bundles the dependencies of all HTTP endpoints.
type Handler struct {
	apiSecret string
	auth      *auth.Service
	videos    *storage.VideoRepository
	tasks     *storage.TaskRepository
	clips     *storage.ClipRepository
	pipeline  *pipeline.Pipeline
	hub       *ws.Hub
}

// New creates a Handler.
func New(
	apiSecret string,
	authSvc *auth.Service,
	videos *storage.VideoRepository,
	tasks *storage.TaskRepository,
	clips *storage.ClipRepository,
	p *pipeline.Pipeline,
	hub *ws.Hub,
) *Handler {
	return &Handler{
		apiSecret: apiSecret,
		auth:      authSvc,
		videos:    videos,
		tasks:     tasks,
		clips:     clips,
		pipeline:  p,
		hub:       hub,
	}
}

// Register mounts all routes on the Echo instance.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/health", h.health)
	e.POST("/api/token", h.issueToken)
	e.GET("/ws", h.serveWS)

	api := e.Group("/api", h.requireAuth)
	api.POST("/videos", h.createVideo)
	api.GET("/videos", h.listVideos)
	api.GET("/videos/:id", h.getVideo)
	api.DELETE("/videos/:id", h.deleteVideo)
	api.GET("/videos/:id/progress", h.getProgress)
	api.GET("/videos/:id/tasks", h.listTasks)
	api.POST("/videos/:id/stages/:stage", h.triggerStage)
	api.POST("/videos/:id/cancel", h.cancelVideo)
	api.GET("/videos/:id/clips", h.listClips)
	api.PATCH("/clips/:id", h.updateClip)
	api.GET("/tasks/stats", h.taskStats)
	api.GET("/tasks/:id", h.getTask)
}

func (h *Handler) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

// httpError maps domain errors onto HTTP status codes. Lifecycle conflicts
// (duplicate active stage, terminal tasks, out-of-order triggers) are 409s.
func httpError(err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, storage.ErrDuplicateActiveStage),
		errors.Is(err, storage.ErrInvalidTransition),
		errors.Is(err, storage.ErrAlreadyTerminal),
		errors.Is(err, pipeline.ErrStageNotReady):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, storage.ErrOutOfRange):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return err
	}
}
