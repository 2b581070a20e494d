package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/medassist/internal/domain"
	"github.com/xiaot623/gogo/medassist/internal/publisher"
)

// AnalyzeTriage streams a triage analysis as server-sent events.
// POST /v1/triage/analyze/stream
func (h *Handler) AnalyzeTriage(c echo.Context) error {
	var req domain.TriageRequest
	if ok, err := bind(c, &req); !ok {
		return err
	}

	return h.stream(c, func(stream *publisher.Stream) error {
		return h.service.AnalyzeTriage(c.Request().Context(), userID(c), req, stream)
	})
}

// ListTriageRecords returns the caller's triage records, newest first.
// GET /v1/triage/records?limit=&offset=
func (h *Handler) ListTriageRecords(c echo.Context) error {
	limit := queryInt(c, "limit", 20)
	offset := queryInt(c, "offset", 0)
	records, err := h.service.ListTriageRecords(c.Request().Context(), userID(c), limit, offset)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"records": records,
		"limit":   limit,
		"offset":  offset,
	})
}

// GetTriageRecord returns one triage record.
// GET /v1/triage/records/:record_id
func (h *Handler) GetTriageRecord(c echo.Context) error {
	record, err := h.service.GetTriageRecord(c.Request().Context(), userID(c), c.Param("record_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, record)
}
