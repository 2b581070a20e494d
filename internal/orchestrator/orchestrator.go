// Package orchestrator drives one streamed completion and classifies the
// upstream deltas into typed stream events.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xiaot623/gogo/medassist/internal/adapter/llm"
	"github.com/xiaot623/gogo/medassist/internal/domain"
	"github.com/xiaot623/gogo/medassist/internal/logger"
)

const (
	// DefaultIdleTimeout aborts an upstream stream that produced no frame
	// for this long.
	DefaultIdleTimeout = 60 * time.Second
	// DefaultRetries is how many times a failed upstream call is re-sent
	// before any delta was received.
	DefaultRetries = 1

	defaultRetryBackoff = 200 * time.Millisecond
)

var errConsumerGone = errors.New("stream consumer stopped")

// Overrides are per-request adjustments applied over the module config.
type Overrides struct {
	Temperature *float64
	MaxTokens   *int
}

// Orchestrator turns a conversation into a sequence of stream events.
type Orchestrator struct {
	clients      llm.Factory
	fallback     *Fallback
	retries      int
	retryBackoff time.Duration
	idleTimeout  time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRetries sets the number of pre-stream retries.
func WithRetries(n int) Option {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.retries = n
		}
	}
}

// WithRetryBackoff sets the wait between retries.
func WithRetryBackoff(d time.Duration) Option {
	return func(o *Orchestrator) { o.retryBackoff = d }
}

// WithIdleTimeout sets the inactivity limit between upstream frames. Zero
// disables it.
func WithIdleTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.idleTimeout = d }
}

// New creates an Orchestrator. clients builds the upstream client for a
// module's endpoint and credential.
func New(clients llm.Factory, fallback *Fallback, opts ...Option) *Orchestrator {
	if fallback == nil {
		fallback = NewFallback(nil, DefaultFallbackDelay)
	}
	o := &Orchestrator{
		clients:      clients,
		fallback:     fallback,
		retries:      DefaultRetries,
		retryBackoff: defaultRetryBackoff,
		idleTimeout:  DefaultIdleTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// StreamCompletion returns the event sequence for one assistant turn. The
// sequence is single-pass: each iteration opens one upstream stream. It
// always ends with a DoneEvent unless the consumer stops early.
func (o *Orchestrator) StreamCompletion(ctx context.Context, turns []domain.Message, cfg domain.ModuleConfig, mode domain.Mode, ov Overrides) (iter.Seq[domain.StreamEvent], error) {
	if len(turns) == 0 {
		return nil, fmt.Errorf("%w: empty conversation", domain.ErrInvalidInput)
	}
	lastUser := lastUserContent(turns)

	return func(yield func(domain.StreamEvent) bool) {
		st := &turnState{yield: yield, reasoningEnabled: cfg.ReasoningEnabled}
		log := logger.With("module", cfg.ModuleName, "model", cfg.ModelName)

		if !cfg.Enabled || cfg.APIKey == "" {
			log.Info("module unavailable, using degraded generator", "enabled", cfg.Enabled)
			o.fallback.stream(ctx, st, lastUser, mode)
			return
		}

		req := o.buildRequest(turns, cfg, mode, ov)
		err := o.streamUpstream(ctx, cfg, req, st)
		if err == nil || st.stopped {
			return
		}

		code := domain.ErrorCodeUpstream
		if errors.Is(err, llm.ErrIdleTimeout) || errors.Is(err, context.DeadlineExceeded) {
			code = domain.ErrorCodeTimeout
		}
		log.Warn("upstream stream failed, using degraded generator", "err", err, "code", code, "partial_len", st.answer.Len())
		if !st.emit(domain.ErrorEvent{Code: code, Message: fmt.Sprintf("model call failed: %v", err)}) {
			return
		}
		o.fallback.stream(ctx, st, lastUser, mode)
	}, nil
}

// buildRequest assembles the upstream request: the mode template replaces
// any system turn and the config values are overridden per request.
func (o *Orchestrator) buildRequest(turns []domain.Message, cfg domain.ModuleConfig, mode domain.Mode, ov Overrides) *llm.ChatCompletionRequest {
	messages := make([]llm.ChatMessage, 0, len(turns)+1)
	messages = append(messages, llm.ChatMessage{Role: string(domain.RoleSystem), Content: SystemPrompt(mode)})
	for _, t := range turns {
		if t.Role == domain.RoleSystem {
			continue
		}
		messages = append(messages, llm.ChatMessage{Role: string(t.Role), Content: t.Content})
	}

	req := &llm.ChatCompletionRequest{
		Model:    cfg.ModelName,
		Messages: messages,
	}

	temperature := cfg.Temperature
	if ov.Temperature != nil {
		temperature = *ov.Temperature
	}
	req.Temperature = &temperature

	maxTokens := cfg.MaxTokens
	if ov.MaxTokens != nil {
		maxTokens = *ov.MaxTokens
	}
	if maxTokens > 0 {
		req.MaxTokens = &maxTokens
	}

	if cfg.ReasoningEnabled {
		enable := true
		req.EnableThinking = &enable
		if cfg.ThinkingBudget > 0 {
			budget := cfg.ThinkingBudget
			req.ThinkingBudget = &budget
		}
	}
	return req
}

// streamUpstream runs the upstream call, retrying failures that happen
// before anything was emitted.
func (o *Orchestrator) streamUpstream(ctx context.Context, cfg domain.ModuleConfig, req *llm.ChatCompletionRequest, st *turnState) error {
	ctx, span := tracer.Start(ctx, "prompt llm stream")
	defer span.End()
	span.SetAttributes(
		attribute.String("request.model", cfg.ModelName),
		attribute.String("request.module", cfg.ModuleName),
		attribute.Bool("request.reasoning", cfg.ReasoningEnabled),
	)

	client := o.clients(cfg.BaseURL, cfg.APIKey)
	for attempt := 0; ; attempt++ {
		span.AddEvent("request started", trace.WithAttributes(attribute.Int("attempt", attempt)))
		err := o.attempt(ctx, client, req, st, span)
		if err == nil {
			span.SetStatus(codes.Ok, "")
			return nil
		}
		if st.stopped {
			return err
		}
		span.RecordError(err)

		if st.events > 0 || attempt >= o.retries || !retryable(ctx, err) {
			span.SetStatus(codes.Error, err.Error())
			return err
		}

		logger.Debug("retrying upstream stream", "attempt", attempt+1, "err", err)
		select {
		case <-ctx.Done():
			span.SetStatus(codes.Error, ctx.Err().Error())
			return err
		case <-time.After(o.retryBackoff):
		}
	}
}

// attempt performs one upstream call. A finish signal is not the end of the
// call: the usage frame follows it, so done is emitted once the stream ends.
func (o *Orchestrator) attempt(ctx context.Context, client llm.LLMClient, req *llm.ChatCompletionRequest, st *turnState, span trace.Span) error {
	attemptCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var watchdog *time.Timer
	if o.idleTimeout > 0 {
		watchdog = time.AfterFunc(o.idleTimeout, func() { cancel(llm.ErrIdleTimeout) })
		defer watchdog.Stop()
	}

	started := time.Now()
	firstToken := false
	finished := false

	_, err := client.CreateChatCompletionStream(attemptCtx, req, func(chunk *llm.StreamChunk) error {
		// Time spent handing events to the consumer is not upstream inactivity.
		if watchdog != nil {
			watchdog.Stop()
			defer watchdog.Reset(o.idleTimeout)
		}

		for _, choice := range chunk.Choices {
			if choice.Delta != nil && !finished {
				if choice.Delta.ReasoningContent != "" && !st.thinking(choice.Delta.ReasoningContent) {
					return errConsumerGone
				}
				if choice.Delta.Content != "" {
					if !firstToken {
						firstToken = true
						span.SetAttributes(attribute.Float64("response.request_to_first_token_time", time.Since(started).Seconds()))
						span.AddEvent("received first chunk")
					}
					if !st.answerDelta(choice.Delta.Content) {
						return errConsumerGone
					}
				}
			}
			if choice.FinishReason != "" {
				finished = true
				span.SetAttributes(attribute.String("response.finish_reason", choice.FinishReason))
			}
		}

		if chunk.Usage != nil {
			span.SetAttributes(
				attribute.Int("usage.prompt", chunk.Usage.PromptTokens),
				attribute.Int("usage.completion", chunk.Usage.CompletionTokens),
				attribute.Int("usage.total", chunk.Usage.TotalTokens),
			)
			if !st.emit(domain.UsageEvent{Usage: domain.UsageData{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.TotalTokens,
			}}) {
				return errConsumerGone
			}
		}
		return nil
	})

	if st.stopped {
		return errConsumerGone
	}
	if err != nil && !finished {
		if errors.Is(context.Cause(attemptCtx), llm.ErrIdleTimeout) {
			return fmt.Errorf("%w after %s", llm.ErrIdleTimeout, o.idleTimeout)
		}
		return err
	}
	if err != nil {
		logger.Debug("upstream error after finish signal ignored", "err", err)
	}

	// A stream without a finish signal ends the turn with what was received.
	st.finish(false)
	return nil
}

// retryable reports whether a failed call may be sent again.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var statusErr *llm.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	if errors.Is(err, llm.ErrMalformedChunk) || errors.Is(err, llm.ErrIdleTimeout) {
		return false
	}
	return true
}

func lastUserContent(turns []domain.Message) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == domain.RoleUser {
			return turns[i].Content
		}
	}
	return turns[len(turns)-1].Content
}

// turnState tracks what has been emitted for one turn. Upstream and
// degraded output share it so the answer stays one continuous text.
type turnState struct {
	yield            func(domain.StreamEvent) bool
	reasoningEnabled bool

	answerStarted bool
	answer        strings.Builder
	reasoning     strings.Builder
	events        int
	stopped       bool
	done          bool
}

func (s *turnState) emit(ev domain.StreamEvent) bool {
	if s.stopped || s.done {
		return false
	}
	s.events++
	if !s.yield(ev) {
		s.stopped = true
		return false
	}
	return true
}

// thinking emits reasoning text. It is dropped when reasoning is disabled
// or the answer has already started.
func (s *turnState) thinking(text string) bool {
	if !s.reasoningEnabled || s.answerStarted || text == "" {
		return true
	}
	s.reasoning.WriteString(text)
	return s.emit(domain.ThinkingEvent{Content: text})
}

func (s *turnState) answerDelta(text string) bool {
	if text == "" {
		return true
	}
	if !s.answerStarted {
		s.answerStarted = true
		if !s.emit(domain.AnswerStartEvent{}) {
			return false
		}
	}
	s.answer.WriteString(text)
	return s.emit(domain.AnswerEvent{Content: text})
}

func (s *turnState) finish(degraded bool) bool {
	ok := s.emit(domain.DoneEvent{
		Content:   s.answer.String(),
		Reasoning: s.reasoning.String(),
		Degraded:  degraded,
	})
	s.done = true
	return ok
}
