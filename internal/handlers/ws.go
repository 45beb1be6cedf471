package handlers

import (
	"net/http"

	"clipforge/internal/ws"

	"github.com/labstack/echo/v4"
)

// serveWS upgrades the push channel. Browsers cannot set headers on a
// WebSocket handshake, so the token travels as a query parameter; per-video
// authorization happens on each subscribe message.
func (h *Handler) serveWS(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing token")
	}
	subj, err := h.auth.Subject(token)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	return ws.ServeWS(h.hub, c.Response(), c.Request(), subj)
}
