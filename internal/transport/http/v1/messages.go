package v1

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/medassist/internal/domain"
	"github.com/xiaot623/gogo/medassist/internal/logger"
	"github.com/xiaot623/gogo/medassist/internal/publisher"
)

const maxWSMessageSize = 64 * 1024

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// SendMessage runs one turn and streams it as server-sent events.
// POST /v1/sessions/:session_id/messages
func (h *Handler) SendMessage(c echo.Context) error {
	var req domain.SendMessageRequest
	if ok, err := bind(c, &req); !ok {
		return err
	}

	return h.stream(c, func(stream *publisher.Stream) error {
		return h.service.SendMessage(c.Request().Context(), userID(c), c.Param("session_id"), req, stream)
	})
}

// SendAutoMessage runs one turn on the caller's latest session of a mode.
// POST /v1/messages
func (h *Handler) SendAutoMessage(c echo.Context) error {
	var req domain.AutoMessageRequest
	if ok, err := bind(c, &req); !ok {
		return err
	}

	return h.stream(c, func(stream *publisher.Stream) error {
		return h.service.SendMessageAuto(c.Request().Context(), userID(c), req, stream)
	})
}

// stream opens an SSE stream for run. Rejections that happen before the
// first frame are answered as plain JSON errors.
func (h *Handler) stream(c echo.Context, run func(*publisher.Stream) error) error {
	sink, err := publisher.NewSSESink(c.Response())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	stream := h.publisher.Open(sink)
	stream.OnDisconnect(func(err error) {
		logger.Info("sse client went away, turn continues", "path", c.Path(), "session_id", c.Param("session_id"), "err", err)
	})

	err = run(stream)
	if err == nil {
		return nil
	}
	if !sink.Started() {
		return respondError(c, err)
	}
	logger.Warn("turn failed after streaming started", "path", c.Path(), "err", err)
	return stream.Send(domain.Frame{Type: domain.FrameError, Code: errorCode(err), Message: err.Error()})
}

// SessionWebSocket serves turns over a websocket. Each client message
// {"content": "..."} runs one turn; its frames are sent as JSON messages.
// GET /v1/sessions/:session_id/ws
func (h *Handler) SessionWebSocket(c echo.Context) error {
	ctx := c.Request().Context()
	user := userID(c)
	sessionID := c.Param("session_id")

	if _, err := h.service.GetSession(ctx, user, sessionID); err != nil {
		return respondError(c, err)
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Warn("failed to upgrade websocket", "session_id", sessionID, "err", err)
		return nil
	}
	defer ws.Close()
	ws.SetReadLimit(maxWSMessageSize)

	sink := publisher.NewWSSink(ws, publisher.DefaultWriteWait)
	for {
		var req domain.SendMessageRequest
		if err := ws.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("websocket closed", "session_id", sessionID, "err", err)
			}
			return nil
		}

		stream := h.publisher.Open(sink)
		if err := c.Validate(&req); err != nil {
			_ = stream.Send(domain.Frame{Type: domain.FrameError, Code: "invalid_input", Message: validationMessage(err)})
			continue
		}
		if err := h.service.SendMessage(ctx, user, sessionID, req, stream); err != nil {
			_ = stream.Send(domain.Frame{Type: domain.FrameError, Code: errorCode(err), Message: err.Error()})
		}
		if stream.Disconnected() {
			return nil
		}
	}
}

// GetTurnEvents retrieves the recorded events of a turn.
// GET /v1/turns/:turn_id/events?after_ts=&types=a,b&limit=
func (h *Handler) GetTurnEvents(c echo.Context) error {
	limit := queryInt(c, "limit", 100)
	afterTs := int64(0)
	if t := c.QueryParam("after_ts"); t != "" {
		if val, err := strconv.ParseInt(t, 10, 64); err == nil {
			afterTs = val
		}
	}
	var types []string
	for _, t := range strings.Split(c.QueryParam("types"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, t)
		}
	}

	events, err := h.service.GetTurnEvents(c.Request().Context(), userID(c), c.Param("turn_id"), afterTs, types, limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"events": events,
	})
}
