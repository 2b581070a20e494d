package llm

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"sync"
	"time"
)

// sseEvent is one dispatched server-sent event.
type sseEvent struct {
	Event string
	Data  string
}

var errStreamDone = errors.New("stream done")

const maxSSELineSize = 1 << 20

// parseSSE parses an SSE stream and calls the handler for each event.
func parseSSE(reader io.Reader, handler func(sseEvent) error) error {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELineSize)
	var event sseEvent
	hasData := false

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		// Empty line marks end of event
		if line == "" {
			if hasData {
				if err := handler(event); err != nil {
					return err
				}
			}
			event = sseEvent{}
			hasData = false
			continue
		}

		// Parse event/data lines
		if strings.HasPrefix(line, "event:") {
			event.Event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		} else if strings.HasPrefix(line, "data:") {
			data := strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " ")
			if hasData {
				event.Data += "\n" + data
			} else {
				event.Data = data
				hasData = true
			}
		}
		// Ignore comments (lines starting with :) and other fields
	}

	if err := scanner.Err(); err != nil {
		return err
	}

	// Handle any remaining event
	if hasData {
		return handler(event)
	}
	return nil
}

// idleWatchdog calls fire when a single armed wait lasts longer than d.
type idleWatchdog struct {
	d     time.Duration
	mu    sync.Mutex
	timer *time.Timer
}

func newIdleWatchdog(d time.Duration, fire func()) *idleWatchdog {
	t := time.AfterFunc(d, fire)
	t.Stop()
	return &idleWatchdog{d: d, timer: t}
}

func (w *idleWatchdog) arm() {
	w.mu.Lock()
	w.timer.Reset(w.d)
	w.mu.Unlock()
}

func (w *idleWatchdog) stop() {
	w.mu.Lock()
	w.timer.Stop()
	w.mu.Unlock()
}

// watchedReader arms the watchdog only while a read is blocked on the
// upstream, so time spent in the chunk callback is not counted as idle.
type watchedReader struct {
	r io.Reader
	w *idleWatchdog
}

func (r *watchedReader) Read(p []byte) (int, error) {
	r.w.arm()
	n, err := r.r.Read(p)
	r.w.stop()
	return n, err
}
