package domain

import (
	"encoding/json"
	"time"
)

// Turn tracks one request/response exchange through the orchestrator.
type Turn struct {
	TurnID    string          `json:"turn_id"`
	SessionID string          `json:"session_id"`
	Module    string          `json:"module"`
	Status    TurnStatus      `json:"status"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   *time.Time      `json:"ended_at,omitempty"`
	Error     json.RawMessage `json:"error,omitempty"`
}

// Event is a trace event recorded during a turn.
type Event struct {
	EventID string          `json:"event_id"`
	TurnID  string          `json:"turn_id"`
	Ts      int64           `json:"ts"` // Unix milliseconds
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// TurnStartedPayload is the payload of a turn_started event.
type TurnStartedPayload struct {
	SessionID string `json:"session_id"`
	Mode      Mode   `json:"mode"`
	MessageID string `json:"message_id"`
}

// ConfigResolvedPayload is the payload of a config_resolved event.
type ConfigResolvedPayload struct {
	Module      string `json:"module"`
	Model       string `json:"model"`
	FromDefault bool   `json:"from_default"`
	RefreshErr  string `json:"refresh_error,omitempty"`
}

// TurnDonePayload is the payload of a turn_done event.
type TurnDonePayload struct {
	MessageID  string     `json:"message_id"`
	Degraded   bool       `json:"degraded"`
	LatencyMs  int64      `json:"latency_ms"`
	ContentLen int        `json:"content_len"`
	Usage      *UsageData `json:"usage,omitempty"`
}

// ErrorPayload is the payload of error events.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
