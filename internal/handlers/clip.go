package handlers

import (
	"net/http"

	"clipforge/internal/models"

	"github.com/labstack/echo/v4"
)

func (h *Handler) listClips(c echo.Context) error {
	video, err := h.ownedVideo(c, c.Param("id"))
	if err != nil {
		return err
	}
	clips, err := h.clips.ListByVideo(c.Request().Context(), video.ID)
	if err != nil {
		return err
	}
	if clips == nil {
		clips = []models.Clip{}
	}
	return c.JSON(http.StatusOK, clips)
}

type updateClipRequest struct {
	Selected *bool `json:"selected"`
}

// updateClip toggles whether a suggested clip participates in slicing.
func (h *Handler) updateClip(c echo.Context) error {
	ctx := c.Request().Context()
	clip, err := h.clips.GetByID(ctx, c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	if _, err := h.ownedVideo(c, clip.VideoID); err != nil {
		return err
	}

	var req updateClipRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Selected == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "selected is required")
	}

	if err := h.clips.SetSelected(ctx, clip.ID, *req.Selected); err != nil {
		return httpError(err)
	}
	clip.Selected = *req.Selected
	return c.JSON(http.StatusOK, clip)
}
