package domain

import "encoding/json"

// FrameType is the discriminator of a client-facing frame.
type FrameType string

const (
	FrameThinking         FrameType = "thinking"
	FrameAnswerStart      FrameType = "answer_start"
	FrameAnswer           FrameType = "answer"
	FrameUsage            FrameType = "usage"
	FrameDone             FrameType = "done"
	FrameError            FrameType = "error"
	FrameSessionInfo      FrameType = "session_info"
	FrameUserMessage      FrameType = "user_message"
	FrameAssistantMessage FrameType = "assistant_message"
	FrameAnalysisStart    FrameType = "analysis_start"
	FrameAnalysisResult   FrameType = "analysis_result"
)

// Frame is one JSON object delivered to the client.
type Frame struct {
	Type      FrameType       `json:"type"`
	Content   string          `json:"content,omitempty"`
	Reasoning string          `json:"reasoning,omitempty"`
	Message   string          `json:"message,omitempty"`
	Code      string          `json:"code,omitempty"`
	MessageID string          `json:"message_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// UsageData represents token usage information.
type UsageData struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}
