package domain

// StreamEvent is one classified fragment of a streamed completion.
// The set of variants is closed: ThinkingEvent, AnswerStartEvent, AnswerEvent,
// UsageEvent, DoneEvent and ErrorEvent.
type StreamEvent interface {
	streamEvent()
}

// ThinkingEvent carries a fragment of model reasoning.
type ThinkingEvent struct {
	Content string
}

// AnswerStartEvent marks the first answer fragment of a turn.
type AnswerStartEvent struct{}

// AnswerEvent carries a fragment of the visible answer.
type AnswerEvent struct {
	Content string
}

// UsageEvent passes upstream token accounting through.
type UsageEvent struct {
	Usage UsageData
}

// DoneEvent terminates a successful stream. Content is the concatenation of
// every AnswerEvent emitted before it.
type DoneEvent struct {
	Content   string
	Reasoning string
	Degraded  bool
}

// ErrorEvent reports a recoverable failure. Degraded content may follow.
type ErrorEvent struct {
	Code    string
	Message string
}

func (ThinkingEvent) streamEvent()    {}
func (AnswerStartEvent) streamEvent() {}
func (AnswerEvent) streamEvent()      {}
func (UsageEvent) streamEvent()       {}
func (DoneEvent) streamEvent()        {}
func (ErrorEvent) streamEvent()       {}

// Error codes carried by ErrorEvent and error frames.
const (
	ErrorCodeUpstream    = "upstream_error"
	ErrorCodeConfig      = "config_error"
	ErrorCodePersistence = "persistence_error"
	ErrorCodeTimeout     = "timeout"
)
