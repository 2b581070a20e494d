package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/medassist/internal/domain"
)

// CreateSession creates a session.
// POST /v1/sessions
func (h *Handler) CreateSession(c echo.Context) error {
	var req domain.CreateSessionRequest
	if ok, err := bind(c, &req); !ok {
		return err
	}

	session, err := h.service.CreateSession(c.Request().Context(), userID(c), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, session)
}

// ListSessions lists the caller's sessions.
// GET /v1/sessions?mode=
func (h *Handler) ListSessions(c echo.Context) error {
	sessions, err := h.service.ListSessions(c.Request().Context(), userID(c), c.QueryParam("mode"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"sessions": sessions,
	})
}

// ClearSessions deletes the caller's sessions, optionally of one mode.
// DELETE /v1/sessions?mode=
func (h *Handler) ClearSessions(c echo.Context) error {
	n, err := h.service.ClearSessions(c.Request().Context(), userID(c), c.QueryParam("mode"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"ok":      true,
		"deleted": n,
	})
}

// GetSession returns one session.
// GET /v1/sessions/:session_id
func (h *Handler) GetSession(c echo.Context) error {
	session, err := h.service.GetSession(c.Request().Context(), userID(c), c.Param("session_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, session)
}

// DeleteSession deletes a session and its transcript.
// DELETE /v1/sessions/:session_id
func (h *Handler) DeleteSession(c echo.Context) error {
	if err := h.service.DeleteSession(c.Request().Context(), userID(c), c.Param("session_id")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// GetSessionMessages retrieves messages for a session.
// GET /v1/sessions/:session_id/messages
func (h *Handler) GetSessionMessages(c echo.Context) error {
	limit := queryInt(c, "limit", 50)
	messages, err := h.service.GetMessages(c.Request().Context(), userID(c), c.Param("session_id"), limit, c.QueryParam("before"))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"messages": messages,
		"has_more": limit > 0 && len(messages) == limit,
	})
}

// ListEmergencyScenarios lists the emergency guidance scenarios.
// GET /v1/emergency/scenarios
func (h *Handler) ListEmergencyScenarios(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"scenarios": h.service.EmergencyScenarios(),
	})
}
