package handlers

import (
	"net/http"
	"strings"

	"clipforge/internal/models"

	"github.com/labstack/echo/v4"
)

const subjectKey = "auth.subject"

type tokenRequest struct {
	Secret  string `json:"secret"`
	Subject string `json:"subject"`
}

// issueToken exchanges the shared API secret for a bearer token bound to a
// subject (the owner identity of all resources it creates).
func (h *Handler) issueToken(c echo.Context) error {
	var req tokenRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Subject == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "subject is required")
	}
	if req.Secret != h.apiSecret {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid secret")
	}
	token, err := h.auth.Issue(req.Subject)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"token": token})
}

// requireAuth validates the bearer token and stores its subject on the
// request context.
func (h *Handler) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
		}
		subject, err := h.auth.Subject(token)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
		}
		c.Set(subjectKey, subject)
		return next(c)
	}
}

func subject(c echo.Context) string {
	s, _ := c.Get(subjectKey).(string)
	return s
}

// ownedVideo loads the video and enforces that the caller owns it.
func (h *Handler) ownedVideo(c echo.Context, id string) (*models.Video, error) {
	video, err := h.videos.GetByID(c.Request().Context(), id)
	if err != nil {
		return nil, httpError(err)
	}
	if video.OwnerID != subject(c) {
		return nil, echo.NewHTTPError(http.StatusForbidden, "not your video")
	}
	return video, nil
}
