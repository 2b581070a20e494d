package domain

import (
	"encoding/json"
	"time"
)

// Session is a conversation container owned by one user.
type Session struct {
	SessionID string    `json:"id"`
	UserID    string    `json:"user_id"`
	Mode      Mode      `json:"mode"`
	Scenario  string    `json:"scenario,omitempty"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one persisted conversation turn.
type Message struct {
	MessageID string          `json:"id"`
	SessionID string          `json:"session_id"`
	TurnID    string          `json:"turn_id,omitempty"`
	Role      Role            `json:"role"`
	Content   string          `json:"content"`
	CreatedAt time.Time       `json:"created_at"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

// TurnMetadata is stored alongside assistant messages.
type TurnMetadata struct {
	Reasoning string     `json:"reasoning,omitempty"`
	Steps     []string   `json:"steps,omitempty"`
	Equipment []string   `json:"equipment,omitempty"`
	Degraded  bool       `json:"degraded,omitempty"`
	Usage     *UsageData `json:"usage,omitempty"`
}

// MaxTitleRunes is the length of a title derived from the first user turn.
const MaxTitleRunes = 20

// DeriveTitle builds a session title from the first user turn.
func DeriveTitle(content string) string {
	r := []rune(content)
	if len(r) <= MaxTitleRunes {
		return content
	}
	return string(r[:MaxTitleRunes]) + "..."
}
