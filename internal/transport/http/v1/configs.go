package v1

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/medassist/internal/adapter/llm"
	"github.com/xiaot623/gogo/medassist/internal/domain"
)

func configID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("config_id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: config_id must be a positive integer", domain.ErrInvalidInput)
	}
	return id, nil
}

// ListConfigs lists module configurations with masked credentials.
// GET /v1/llm/configs
func (h *Handler) ListConfigs(c echo.Context) error {
	configs, err := h.service.ListModuleConfigs(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"configs": configs,
	})
}

// CreateConfig creates a module configuration.
// POST /v1/llm/configs
func (h *Handler) CreateConfig(c echo.Context) error {
	var req domain.ModuleConfigRequest
	if ok, err := bind(c, &req); !ok {
		return err
	}

	cfg, err := h.service.CreateModuleConfig(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, cfg)
}

// GetConfig returns one module configuration.
// GET /v1/llm/configs/:config_id
func (h *Handler) GetConfig(c echo.Context) error {
	id, err := configID(c)
	if err != nil {
		return respondError(c, err)
	}
	cfg, err := h.service.GetModuleConfig(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, cfg)
}

// UpdateConfig updates the fields present in the body.
// PUT /v1/llm/configs/:config_id
func (h *Handler) UpdateConfig(c echo.Context) error {
	id, err := configID(c)
	if err != nil {
		return respondError(c, err)
	}
	var req domain.ModuleConfigRequest
	if ok, err := bind(c, &req); !ok {
		return err
	}

	cfg, err := h.service.UpdateModuleConfig(c.Request().Context(), id, req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, cfg)
}

// DeleteConfig deletes a module configuration.
// DELETE /v1/llm/configs/:config_id
func (h *Handler) DeleteConfig(c echo.Context) error {
	id, err := configID(c)
	if err != nil {
		return respondError(c, err)
	}
	if err := h.service.DeleteModuleConfig(c.Request().Context(), id); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// InitDefaultConfigs seeds the built-in module configurations.
// POST /v1/llm/configs/init-default
func (h *Handler) InitDefaultConfigs(c echo.Context) error {
	created, err := h.service.InitDefaultModuleConfigs(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"ok":      true,
		"created": created,
	})
}

// ListConfigModels lists the models offered by a configuration's endpoint.
// GET /v1/llm/configs/:config_id/models
func (h *Handler) ListConfigModels(c echo.Context) error {
	id, err := configID(c)
	if err != nil {
		return respondError(c, err)
	}
	models, err := h.service.ListConfigModels(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return respondError(c, err)
		}
		return c.JSON(http.StatusBadGateway, llm.ErrorResponse{
			Error: &llm.APIError{
				Message: err.Error(),
				Type:    "upstream_error",
			},
		})
	}
	return c.JSON(http.StatusOK, llm.ModelsResponse{
		Object: "list",
		Data:   models,
	})
}
