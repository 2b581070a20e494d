// Package domain defines the core domain models for the assistant backend.
package domain

import "strings"

// Mode selects the conversation behavior of a session.
type Mode string

const (
	ModeKnowledge     Mode = "knowledge"
	ModeDeepReasoning Mode = "deep-reasoning"
	ModeTriage        Mode = "triage"
	ModeEmergency     Mode = "emergency"
)

// ParseMode normalizes a client supplied mode. The short names used by the
// web client ("kb", "graph") are accepted as aliases.
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "knowledge", "kb":
		return ModeKnowledge, true
	case "deep-reasoning", "graph":
		return ModeDeepReasoning, true
	case "triage":
		return ModeTriage, true
	case "emergency":
		return ModeEmergency, true
	}
	return "", false
}

// Role is the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// TurnStatus represents the lifecycle state of a turn.
type TurnStatus string

const (
	TurnStatusRunning  TurnStatus = "RUNNING"
	TurnStatusDone     TurnStatus = "DONE"
	TurnStatusDegraded TurnStatus = "DEGRADED"
	TurnStatusFailed   TurnStatus = "FAILED"
)

// IsTerminal reports whether no further transitions are expected.
func (s TurnStatus) IsTerminal() bool {
	return s == TurnStatusDone || s == TurnStatusDegraded || s == TurnStatusFailed
}

// EventType represents the type of a recorded turn event.
type EventType string

const (
	EventTypeTurnStarted        EventType = "turn_started"
	EventTypeConfigResolved     EventType = "config_resolved"
	EventTypeUpstreamError      EventType = "upstream_error"
	EventTypeFallbackUsed       EventType = "fallback_used"
	EventTypeClientDisconnected EventType = "client_disconnected"
	EventTypeTurnDone           EventType = "turn_done"
	EventTypeTurnFailed         EventType = "turn_failed"
)

// Emergency scenarios. Each maps to its own module configuration.
const (
	ScenarioCPR       = "cpr"
	ScenarioTrauma    = "trauma"
	ScenarioPoisoning = "poisoning"
	ScenarioBurn      = "burn"
)

// ValidScenario reports whether s names a known emergency scenario.
func ValidScenario(s string) bool {
	switch s {
	case ScenarioCPR, ScenarioTrauma, ScenarioPoisoning, ScenarioBurn:
		return true
	}
	return false
}
