package publisher

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/medassist/internal/domain"
	"github.com/xiaot623/gogo/medassist/internal/observability"
)

type failingSink struct {
	okWrites int
	writes   int
}

func (s *failingSink) WriteFrame(domain.Frame) error {
	s.writes++
	if s.writes > s.okWrites {
		return errors.New("broken pipe")
	}
	return nil
}

func TestSSESinkWritesFrames(t *testing.T) {
	rec := httptest.NewRecorder()
	sink, err := NewSSESink(rec)
	require.NoError(t, err)
	assert.False(t, sink.Started())

	stream := New(nil).Open(sink)
	require.NoError(t, stream.Send(domain.Frame{Type: domain.FrameAnswerStart, MessageID: "msg_1"}))
	require.NoError(t, stream.Send(FrameFor(domain.AnswerEvent{Content: "hi"})))
	require.NoError(t, stream.Send(FrameFor(domain.DoneEvent{Content: "hi"})))

	assert.True(t, sink.Started())
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))
	assert.True(t, rec.Flushed)

	want := "data: {\"type\":\"answer_start\",\"message_id\":\"msg_1\"}\n\n" +
		"data: {\"type\":\"answer\",\"content\":\"hi\"}\n\n" +
		"data: {\"type\":\"done\",\"content\":\"hi\"}\n\n"
	assert.Equal(t, want, rec.Body.String())
}

func TestStreamStopsForwardingAfterDisconnect(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	sink := &failingSink{okWrites: 1}
	stream := New(metrics).Open(sink)

	var hookErr error
	hooks := 0
	stream.OnDisconnect(func(err error) {
		hooks++
		hookErr = err
	})

	assert.NoError(t, stream.Send(domain.Frame{Type: domain.FrameAnswer, Content: "a"}))
	assert.False(t, stream.Disconnected())
	assert.NoError(t, stream.Send(domain.Frame{Type: domain.FrameAnswer, Content: "b"}))
	assert.True(t, stream.Disconnected())
	assert.NoError(t, stream.Send(domain.Frame{Type: domain.FrameDone}))

	assert.Equal(t, 2, sink.writes)
	assert.Equal(t, 1, hooks)
	assert.EqualError(t, hookErr, "broken pipe")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ClientDisconnectsTotal))
}

func TestFrameFor(t *testing.T) {
	tests := []struct {
		ev   domain.StreamEvent
		want string
	}{
		{domain.ThinkingEvent{Content: "hm"}, `{"type":"thinking","content":"hm"}`},
		{domain.AnswerStartEvent{}, `{"type":"answer_start"}`},
		{domain.AnswerEvent{Content: "x"}, `{"type":"answer","content":"x"}`},
		{domain.UsageEvent{Usage: domain.UsageData{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3}}, `{"type":"usage","data":{"prompt_tokens":1,"completion_tokens":2,"total_tokens":3}}`},
		{domain.DoneEvent{Content: "x", Reasoning: "r", Degraded: true}, `{"type":"done","content":"x","reasoning":"r"}`},
		{domain.ErrorEvent{Code: "upstream_error", Message: "boom"}, `{"type":"error","message":"boom","code":"upstream_error"}`},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		sink, _ := NewSSESink(rec)
		require.NoError(t, sink.WriteFrame(FrameFor(tt.ev)))
		body := strings.TrimSuffix(strings.TrimPrefix(rec.Body.String(), "data: "), "\n\n")
		assert.JSONEq(t, tt.want, body)
	}
}

func TestDataFrame(t *testing.T) {
	f, err := DataFrame(domain.FrameSessionInfo, map[string]string{"id": "sess_1"})
	require.NoError(t, err)
	assert.Equal(t, domain.FrameSessionInfo, f.Type)
	assert.JSONEq(t, `{"id":"sess_1"}`, string(f.Data))

	_, err = DataFrame(domain.FrameSessionInfo, make(chan int))
	assert.Error(t, err)
}

func TestWSSinkWritesJSON(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		sink := NewWSSink(conn, time.Second)
		_ = sink.WriteFrame(domain.Frame{Type: domain.FrameAnswer, Content: "hello"})
		_ = sink.WriteFrame(domain.Frame{Type: domain.FrameDone, Content: "hello"})
	}))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	var first, second domain.Frame
	require.NoError(t, conn.ReadJSON(&first))
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, domain.FrameAnswer, first.Type)
	assert.Equal(t, "hello", first.Content)
	assert.Equal(t, domain.FrameDone, second.Type)
}
