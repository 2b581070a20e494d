package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientEndpointWithV1Suffix(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, `{"object":"list","data":[{"id":"qwen-plus","object":"model","created":1,"owned_by":"me"}]}`)
	}))
	defer server.Close()

	client := NewClient(server.URL+"/v1/", "", time.Second)
	models, err := client.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/v1/models", gotPath)
	require.Len(t, models, 1)
	assert.Equal(t, "qwen-plus", models[0].ID)
}

func TestClientStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"error":{"message":"overloaded","type":"server_error"}}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", time.Second)
	_, err := client.CreateChatCompletionStream(context.Background(), &ChatCompletionRequest{
		Model:    "qwen",
		Messages: []ChatMessage{{Role: "user", Content: "hello"}},
	}, func(*StreamChunk) error { return nil })

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Equal(t, "overloaded", statusErr.Message)
	assert.True(t, statusErr.Retryable())

	assert.False(t, (&StatusError{StatusCode: http.StatusUnauthorized}).Retryable())
}

func TestClientCreateChatCompletionStream(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"id\":\"c1\",\"choices\":[{\"index\":0,\"delta\":{\"reasoning_content\":\"hmm\"}}]}\n\n")
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "data: {\"id\":\"c1\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"hi\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"id\":\"c1\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"\"},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: {\"id\":\"c1\",\"choices\":[],\"usage\":{\"prompt_tokens\":4,\"completion_tokens\":2,\"total_tokens\":6}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	enable := true
	budget := 100
	client := NewClient(server.URL, "", time.Second, WithIdleTimeout(time.Second))
	var chunks []StreamChunk
	usage, err := client.CreateChatCompletionStream(context.Background(), &ChatCompletionRequest{
		Model:          "qwen",
		Messages:       []ChatMessage{{Role: "user", Content: "hello"}},
		EnableThinking: &enable,
		ThinkingBudget: &budget,
	}, func(chunk *StreamChunk) error {
		chunks = append(chunks, *chunk)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, chunks, 4)
	assert.Equal(t, "hmm", chunks[0].Choices[0].Delta.ReasoningContent)
	assert.Equal(t, "hi", chunks[1].Choices[0].Delta.Content)
	assert.Equal(t, "stop", chunks[2].Choices[0].FinishReason)
	require.NotNil(t, usage)
	assert.Equal(t, 6, usage.TotalTokens)

	assert.Equal(t, true, body["stream"])
	assert.Equal(t, true, body["enable_thinking"])
	assert.Equal(t, float64(100), body["thinking_budget"])
	assert.Equal(t, map[string]any{"include_usage": true}, body["stream_options"])
}

func TestClientStreamMultiLineData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"id\":\"c1\",\n")
		fmt.Fprint(w, "data: \"choices\":[{\"index\":0,\"delta\":{\"content\":\"joined\"}}]}\n\n")
	}))
	defer server.Close()

	client := NewClient(server.URL, "", time.Second)
	var got string
	_, err := client.CreateChatCompletionStream(context.Background(), &ChatCompletionRequest{Model: "qwen"}, func(chunk *StreamChunk) error {
		got += chunk.Choices[0].Delta.Content
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "joined", got)
}

func TestClientStreamMalformedChunk(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"id\":\"c1\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"a\"}}]}\n\n")
		fmt.Fprint(w, "data: {not json\n\n")
	}))
	defer server.Close()

	client := NewClient(server.URL, "", time.Second)
	calls := 0
	_, err := client.CreateChatCompletionStream(context.Background(), &ChatCompletionRequest{Model: "qwen"}, func(*StreamChunk) error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, ErrMalformedChunk)
	assert.Equal(t, 1, calls)
}

func TestClientStreamIdleTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"id\":\"c1\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"a\"}}]}\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, "", time.Second, WithIdleTimeout(50*time.Millisecond))
	start := time.Now()
	_, err := client.CreateChatCompletionStream(context.Background(), &ChatCompletionRequest{Model: "qwen"}, func(*StreamChunk) error { return nil })
	assert.ErrorIs(t, err, ErrIdleTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestClientStreamSlowCallbackIsNotIdle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, part := range []string{"a", "b"} {
			fmt.Fprintf(w, "data: {\"id\":\"c1\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", part)
			w.(http.Flusher).Flush()
			time.Sleep(10 * time.Millisecond)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := NewClient(server.URL, "", 5*time.Second, WithIdleTimeout(50*time.Millisecond))
	var got string
	_, err := client.CreateChatCompletionStream(context.Background(), &ChatCompletionRequest{Model: "qwen"}, func(chunk *StreamChunk) error {
		time.Sleep(150 * time.Millisecond)
		got += chunk.Choices[0].Delta.Content
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ab", got)
}

func TestClientStreamCallbackErrorStops(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i < 3; i++ {
			fmt.Fprint(w, "data: {\"id\":\"c1\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"a\"}}]}\n\n")
		}
	}))
	defer server.Close()

	stop := errors.New("stop")
	client := NewClient(server.URL, "", time.Second)
	calls := 0
	_, err := client.CreateChatCompletionStream(context.Background(), &ChatCompletionRequest{Model: "qwen"}, func(*StreamChunk) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestMockClientStream(t *testing.T) {
	enable := true
	client := NewMockClient()
	var reasoning, content strings.Builder
	var finish string
	usage, err := client.CreateChatCompletionStream(context.Background(), &ChatCompletionRequest{
		Model:          "mock",
		Messages:       []ChatMessage{{Role: "user", Content: "胸痛怎么办"}},
		EnableThinking: &enable,
	}, func(chunk *StreamChunk) error {
		for _, c := range chunk.Choices {
			reasoning.WriteString(c.Delta.ReasoningContent)
			content.WriteString(c.Delta.Content)
			if c.FinishReason != "" {
				finish = c.FinishReason
			}
		}
		return nil
	})
	require.NoError(t, err)
	assert.NotEmpty(t, reasoning.String())
	assert.Contains(t, content.String(), "胸痛怎么办")
	assert.Equal(t, "stop", finish)
	require.NotNil(t, usage)
}
