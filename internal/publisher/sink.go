package publisher

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xiaot623/gogo/medassist/internal/domain"
)

// ErrStreamingUnsupported is returned when the response cannot be flushed.
var ErrStreamingUnsupported = errors.New("streaming not supported")

// Sink delivers frames to one client connection.
type Sink interface {
	WriteFrame(frame domain.Frame) error
}

// SSESink writes frames as server-sent events. Headers are sent with the
// first frame so a request can still be rejected with a plain status code.
type SSESink struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

// NewSSESink wraps w, which must support flushing.
func NewSSESink(w http.ResponseWriter) (*SSESink, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	return &SSESink{w: w, flusher: flusher}, nil
}

// Started reports whether the event stream has been opened.
func (s *SSESink) Started() bool {
	return s.started
}

// WriteFrame writes one "data:" event and flushes it.
func (s *SSESink) WriteFrame(frame domain.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}
	if !s.started {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// DefaultWriteWait bounds a single websocket write.
const DefaultWriteWait = 10 * time.Second

// WSSink writes each frame as one websocket text message.
type WSSink struct {
	mu        sync.Mutex
	conn      *websocket.Conn
	writeWait time.Duration
}

// NewWSSink wraps an upgraded connection.
func NewWSSink(conn *websocket.Conn, writeWait time.Duration) *WSSink {
	if writeWait <= 0 {
		writeWait = DefaultWriteWait
	}
	return &WSSink{conn: conn, writeWait: writeWait}
}

// WriteFrame sends frame as JSON.
func (s *WSSink) WriteFrame(frame domain.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeWait)); err != nil {
		return err
	}
	return s.conn.WriteJSON(frame)
}
