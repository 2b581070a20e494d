// Package publisher delivers turn frames to clients over SSE or websockets.
package publisher

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xiaot623/gogo/medassist/internal/domain"
	"github.com/xiaot623/gogo/medassist/internal/logger"
	"github.com/xiaot623/gogo/medassist/internal/observability"
)

// Publisher opens client streams.
type Publisher struct {
	metrics *observability.Metrics
}

// New creates a Publisher. metrics may be nil.
func New(metrics *observability.Metrics) *Publisher {
	return &Publisher{metrics: metrics}
}

// Open starts forwarding to sink.
func (p *Publisher) Open(sink Sink) *Stream {
	return &Stream{sink: sink, metrics: p.metrics}
}

// Stream forwards frames in order until the client goes away. After the
// first failed write every Send is a no-op so the producer can keep
// draining.
type Stream struct {
	sink    Sink
	metrics *observability.Metrics

	mu           sync.Mutex
	disconnected bool
	onDisconnect []func(error)
}

// OnDisconnect registers fn to run once when the client is lost.
func (s *Stream) OnDisconnect(fn func(error)) {
	s.mu.Lock()
	s.onDisconnect = append(s.onDisconnect, fn)
	s.mu.Unlock()
}

// Send writes frame to the client. Write failures mark the stream
// disconnected and are not returned.
func (s *Stream) Send(frame domain.Frame) error {
	s.mu.Lock()
	if s.disconnected {
		s.mu.Unlock()
		return nil
	}
	err := s.sink.WriteFrame(frame)
	if err == nil {
		s.mu.Unlock()
		return nil
	}
	s.disconnected = true
	hooks := s.onDisconnect
	s.mu.Unlock()

	logger.Debug("client disconnected, no longer forwarding frames", "frame", frame.Type, "err", err)
	s.metrics.ClientDisconnected()
	for _, fn := range hooks {
		fn(err)
	}
	return nil
}

// Disconnected reports whether the client has gone away.
func (s *Stream) Disconnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnected
}

// FrameFor converts a stream event into its wire frame.
func FrameFor(ev domain.StreamEvent) domain.Frame {
	switch e := ev.(type) {
	case domain.ThinkingEvent:
		return domain.Frame{Type: domain.FrameThinking, Content: e.Content}
	case domain.AnswerStartEvent:
		return domain.Frame{Type: domain.FrameAnswerStart}
	case domain.AnswerEvent:
		return domain.Frame{Type: domain.FrameAnswer, Content: e.Content}
	case domain.UsageEvent:
		data, _ := json.Marshal(e.Usage)
		return domain.Frame{Type: domain.FrameUsage, Data: data}
	case domain.DoneEvent:
		return domain.Frame{Type: domain.FrameDone, Content: e.Content, Reasoning: e.Reasoning}
	case domain.ErrorEvent:
		return domain.Frame{Type: domain.FrameError, Code: e.Code, Message: e.Message}
	default:
		panic(fmt.Sprintf("publisher: unknown stream event %T", ev))
	}
}

// DataFrame builds a frame whose payload is v encoded as JSON.
func DataFrame(t domain.FrameType, v any) (domain.Frame, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return domain.Frame{}, fmt.Errorf("failed to marshal %s frame: %w", t, err)
	}
	return domain.Frame{Type: t, Data: data}, nil
}
