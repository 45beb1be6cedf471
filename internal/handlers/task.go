package handlers

import (
	"net/http"

	"clipforge/internal/models"

	"github.com/labstack/echo/v4"
)

// getTask returns one task together with its append-only log.
func (h *Handler) getTask(c echo.Context) error {
	ctx := c.Request().Context()
	task, err := h.tasks.GetByID(ctx, c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	if _, err := h.ownedVideo(c, task.VideoID); err != nil {
		return err
	}
	logs, err := h.tasks.ListLogs(ctx, task.ID)
	if err != nil {
		return err
	}
	if logs == nil {
		logs = []models.TaskLogEntry{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"task": task,
		"logs": logs,
	})
}

// taskStats returns task counts per status across the whole queue.
func (h *Handler) taskStats(c echo.Context) error {
	counts, err := h.tasks.CountByStatus(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, counts)
}
