package handlers

import (
	"net/http"

	"clipforge/internal/models"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

type createVideoRequest struct {
	URL       string `json:"url"`
	Title     string `json:"title"`
	AutoStart *bool  `json:"auto_start"` // default true
	Target    string `json:"target"`     // export target, carried down the chain
}

// createVideo registers a source video and, unless auto_start is false,
// kicks off the pipeline at the download stage.
func (h *Handler) createVideo(c echo.Context) error {
	var req createVideoRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.URL == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "url is required")
	}

	ctx := c.Request().Context()
	video := &models.Video{
		OwnerID: subject(c),
		URL:     req.URL,
		Title:   req.Title,
	}
	if err := h.videos.Create(ctx, video); err != nil {
		return err
	}

	var task *models.ProcessingTask
	if req.AutoStart == nil || *req.AutoStart {
		var metadata map[string]any
		if req.Target != "" {
			metadata = map[string]any{"target": req.Target}
		}
		var err error
		task, err = h.pipeline.Trigger(ctx, video.ID, models.StageDownload, metadata)
		if err != nil {
			return httpError(err)
		}
	}

	log.Info().Str("video_id", video.ID).Str("url", video.URL).Msg("video created")
	return c.JSON(http.StatusCreated, map[string]any{
		"video": video,
		"task":  task,
	})
}

func (h *Handler) listVideos(c echo.Context) error {
	videos, err := h.videos.ListByOwner(c.Request().Context(), subject(c), 0)
	if err != nil {
		return err
	}
	if videos == nil {
		videos = []models.Video{}
	}
	return c.JSON(http.StatusOK, videos)
}

func (h *Handler) getVideo(c echo.Context) error {
	video, err := h.ownedVideo(c, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, video)
}

func (h *Handler) deleteVideo(c echo.Context) error {
	video, err := h.ownedVideo(c, c.Param("id"))
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	active, err := h.tasks.HasActive(ctx, video.ID)
	if err != nil {
		return err
	}
	if active {
		return echo.NewHTTPError(http.StatusConflict, "video has active tasks, cancel them first")
	}
	if err := h.videos.Delete(ctx, video.ID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// getProgress serves the polling fallback: the same snapshot pushed on the
// WebSocket channel.
func (h *Handler) getProgress(c echo.Context) error {
	video, err := h.ownedVideo(c, c.Param("id"))
	if err != nil {
		return err
	}
	snap, err := h.tasks.Snapshot(c.Request().Context(), video.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, snap)
}

func (h *Handler) listTasks(c echo.Context) error {
	video, err := h.ownedVideo(c, c.Param("id"))
	if err != nil {
		return err
	}
	tasks, err := h.tasks.ListByVideo(c.Request().Context(), video.ID)
	if err != nil {
		return err
	}
	if tasks == nil {
		tasks = []models.ProcessingTask{}
	}
	return c.JSON(http.StatusOK, tasks)
}

type triggerStageRequest struct {
	Target string `json:"target"`
}

// triggerStage enqueues one stage for the video. Out-of-order triggers and
// duplicate active stages come back as 409.
func (h *Handler) triggerStage(c echo.Context) error {
	video, err := h.ownedVideo(c, c.Param("id"))
	if err != nil {
		return err
	}
	stage := models.Stage(c.Param("stage"))
	if !stage.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown stage: "+c.Param("stage"))
	}

	var req triggerStageRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}
	var metadata map[string]any
	if req.Target != "" {
		metadata = map[string]any{"target": req.Target}
	}

	task, err := h.pipeline.Trigger(c.Request().Context(), video.ID, stage, metadata)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusAccepted, task)
}

// cancelVideo requests cooperative cancellation of the video's active tasks.
func (h *Handler) cancelVideo(c echo.Context) error {
	video, err := h.ownedVideo(c, c.Param("id"))
	if err != nil {
		return err
	}
	n, err := h.pipeline.Cancel(c.Request().Context(), video.ID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]int64{"canceled": n})
}
