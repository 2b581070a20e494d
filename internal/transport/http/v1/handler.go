// Package v1 provides the HTTP handlers of the public API.
package v1

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/medassist/internal/domain"
	"github.com/xiaot623/gogo/medassist/internal/logger"
	"github.com/xiaot623/gogo/medassist/internal/publisher"
	"github.com/xiaot623/gogo/medassist/internal/service"
)

const (
	// HeaderUserID carries the caller identity.
	HeaderUserID = "X-User-ID"
	// DefaultUserID is used when the header is absent.
	DefaultUserID = "default_user"

	version = "0.1.0"
)

// Handler handles HTTP requests.
type Handler struct {
	service   *service.Service
	publisher *publisher.Publisher
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service, pub *publisher.Publisher) *Handler {
	if pub == nil {
		pub = publisher.New(nil)
	}
	return &Handler{
		service:   service,
		publisher: pub,
	}
}

// RegisterRoutes registers the routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Sessions
	e.POST("/v1/sessions", h.CreateSession)
	e.GET("/v1/sessions", h.ListSessions)
	e.DELETE("/v1/sessions", h.ClearSessions)
	e.GET("/v1/sessions/:session_id", h.GetSession)
	e.DELETE("/v1/sessions/:session_id", h.DeleteSession)
	e.GET("/v1/sessions/:session_id/messages", h.GetSessionMessages)

	// Streaming turns
	e.POST("/v1/sessions/:session_id/messages", h.SendMessage)
	e.POST("/v1/messages", h.SendAutoMessage)
	e.GET("/v1/sessions/:session_id/ws", h.SessionWebSocket)

	e.GET("/v1/turns/:turn_id/events", h.GetTurnEvents)
	e.GET("/v1/emergency/scenarios", h.ListEmergencyScenarios)

	// Triage
	e.POST("/v1/triage/analyze/stream", h.AnalyzeTriage)
	e.GET("/v1/triage/records", h.ListTriageRecords)
	e.GET("/v1/triage/records/:record_id", h.GetTriageRecord)

	// Module configuration admin
	e.GET("/v1/llm/configs", h.ListConfigs)
	e.POST("/v1/llm/configs", h.CreateConfig)
	e.POST("/v1/llm/configs/init-default", h.InitDefaultConfigs)
	e.GET("/v1/llm/configs/:config_id", h.GetConfig)
	e.PUT("/v1/llm/configs/:config_id", h.UpdateConfig)
	e.DELETE("/v1/llm/configs/:config_id", h.DeleteConfig)
	e.GET("/v1/llm/configs/:config_id/models", h.ListConfigModels)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	if err := h.service.Ping(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": version,
	})
}

func userID(c echo.Context) string {
	if id := c.Request().Header.Get(HeaderUserID); id != "" {
		return id
	}
	return DefaultUserID
}

// bind decodes and validates the request body. On failure the 400 response
// has already been written and ok is false.
func bind(c echo.Context, req interface{}) (ok bool, err error) {
	if err := c.Bind(req); err != nil {
		return false, c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return false, c.JSON(http.StatusBadRequest, map[string]string{"error": validationMessage(err)})
	}
	return true, nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Param() != "" {
			return fe.Field() + " failed " + fe.Tag() + "=" + fe.Param()
		}
		return fe.Field() + " failed " + fe.Tag()
	}
	return err.Error()
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrSessionBusy):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// errorCode names a rejection on channels without status codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, domain.ErrSessionBusy):
		return "session_busy"
	default:
		return "internal_error"
	}
}

func respondError(c echo.Context, err error) error {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "method", c.Request().Method, "path", c.Path(), "err", err)
	}
	return c.JSON(status, map[string]string{"error": err.Error()})
}

func queryInt(c echo.Context, name string, def int) int {
	if v := c.QueryParam(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}
