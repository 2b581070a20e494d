package llm

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"
)

const (
	mockChunkRunes = 10
	mockReasoning  = "[MOCK] Checking the situation against first-aid guidance."
)

// MockClient is an offline LLMClient selected by GOGO_MODE=MOCK. It echoes
// the last user turn back as a canned first-aid style answer.
type MockClient struct{}

// NewMockClient creates a new mock LLM client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// CreateChatCompletionStream streams the canned answer in small chunks.
// Reasoning chunks go first when thinking is enabled on the request; the
// final chunk carries only usage, as with stream_options.include_usage.
func (m *MockClient) CreateChatCompletionStream(ctx context.Context, req *ChatCompletionRequest, callback StreamCallback) (*Usage, error) {
	answer := mockAnswer(req.Messages)
	frame := mockFrame{id: fmt.Sprintf("mock-chatcmpl-%d", time.Now().UnixNano()), model: req.Model, created: time.Now().Unix()}

	var deltas []ChatMessage
	if req.EnableThinking != nil && *req.EnableThinking {
		for _, part := range splitRunes(mockReasoning, mockChunkRunes) {
			deltas = append(deltas, ChatMessage{Role: "assistant", ReasoningContent: part})
		}
	}
	for _, part := range splitRunes(answer, mockChunkRunes) {
		deltas = append(deltas, ChatMessage{Role: "assistant", Content: part})
	}

	for i := range deltas {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		finish := ""
		if i == len(deltas)-1 {
			finish = "stop"
		}
		if err := callback(frame.delta(&deltas[i], finish)); err != nil {
			return nil, err
		}
	}

	usage := mockUsage(req.Messages, answer)
	return usage, callback(frame.usage(usage))
}

// ListModels returns a fixed model list.
func (m *MockClient) ListModels(ctx context.Context) ([]Model, error) {
	now := time.Now().Unix()
	return []Model{
		{ID: "mock-qwen-plus", Object: "model", Created: now, OwnedBy: "mock"},
		{ID: "mock-qwen-max", Object: "model", Created: now, OwnedBy: "mock"},
	}, nil
}

type mockFrame struct {
	id      string
	model   string
	created int64
}

func (f mockFrame) delta(d *ChatMessage, finish string) *StreamChunk {
	return &StreamChunk{
		ID:      f.id,
		Object:  "chat.completion.chunk",
		Created: f.created,
		Model:   f.model,
		Choices: []Choice{{Index: 0, Delta: d, FinishReason: finish}},
	}
}

func (f mockFrame) usage(u *Usage) *StreamChunk {
	return &StreamChunk{ID: f.id, Object: "chat.completion.chunk", Created: f.created, Model: f.model, Usage: u}
}

func mockAnswer(messages []ChatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" && messages[i].Content != "" {
			return fmt.Sprintf("[MOCK] You asked: %q. Keep the patient safe and call emergency services if symptoms are severe.", truncate(messages[i].Content, 100))
		}
	}
	return "[MOCK] No question was provided."
}

// mockUsage approximates token counts at four bytes per token.
func mockUsage(messages []ChatMessage, answer string) *Usage {
	prompt := 0
	for _, msg := range messages {
		prompt += len(msg.Content) / 4
	}
	completion := len(answer) / 4
	return &Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion}
}

// splitRunes splits s into pieces of at most size runes.
func splitRunes(s string, size int) []string {
	var parts []string
	for s != "" {
		end := 0
		for n := 0; end < len(s) && n < size; n++ {
			_, w := utf8.DecodeRuneInString(s[end:])
			end += w
		}
		parts = append(parts, s[:end])
		s = s[end:]
	}
	return parts
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
