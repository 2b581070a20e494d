package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/xiaot623/gogo/medassist/internal/domain"
	"github.com/xiaot623/gogo/medassist/internal/lease"
	"github.com/xiaot623/gogo/medassist/internal/logger"
	"github.com/xiaot623/gogo/medassist/internal/observability"
	"github.com/xiaot623/gogo/medassist/internal/orchestrator"
	"github.com/xiaot623/gogo/medassist/internal/publisher"
	"github.com/xiaot623/gogo/medassist/internal/resolver"
)

const (
	// leaseSlack keeps the session lease past the turn timeout while the
	// assistant message is persisted.
	leaseSlack = 30 * time.Second
	// persistTimeout bounds the final writes of a turn.
	persistTimeout = 10 * time.Second
)

// SendMessage runs one conversation turn on an existing session and streams
// its frames to out. Errors returned before any frame was sent mean the
// request was rejected; later failures are reported as error frames.
func (s *Service) SendMessage(ctx context.Context, userID, sessionID string, req domain.SendMessageRequest, out Emitter) error {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return fmt.Errorf("%w: content is required", domain.ErrInvalidInput)
	}
	if utf8.RuneCountInString(content) > domain.MaxContentLength {
		return fmt.Errorf("%w: content exceeds %d characters", domain.ErrInvalidInput, domain.MaxContentLength)
	}

	session, err := s.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return err
	}

	l, err := s.leaser.Acquire(ctx, "session:"+sessionID, s.config.TurnTimeout+leaseSlack)
	if err != nil {
		if errors.Is(err, lease.ErrHeld) {
			return fmt.Errorf("%w: a reply is still being generated", domain.ErrSessionBusy)
		}
		return fmt.Errorf("failed to acquire session lease: %w", err)
	}
	defer func() {
		if err := l.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("failed to release session lease", "session_id", sessionID, "err", err)
		}
	}()

	// The turn outlives the client connection.
	turnCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.TurnTimeout)
	defer cancel()

	return s.runTurn(turnCtx, session, content, req, out)
}

// SendMessageAuto continues the caller's most recent session of the
// requested mode, creating one when none exists.
func (s *Service) SendMessageAuto(ctx context.Context, userID string, req domain.AutoMessageRequest, out Emitter) error {
	mode, ok := domain.ParseMode(req.Mode)
	if !ok {
		return fmt.Errorf("%w: unknown mode %q", domain.ErrInvalidInput, req.Mode)
	}

	session, err := s.store.GetLatestSession(ctx, userID, mode)
	if err != nil {
		return fmt.Errorf("failed to get latest session: %w", err)
	}
	if session == nil || (mode == domain.ModeEmergency && req.Scenario != "" && session.Scenario != req.Scenario) {
		session, err = s.CreateSession(ctx, userID, domain.CreateSessionRequest{Mode: string(mode), Scenario: req.Scenario})
		if err != nil {
			return err
		}
	}
	return s.SendMessage(ctx, userID, session.SessionID, req.SendMessageRequest, out)
}

type turnRun struct {
	session     *domain.Session
	turnID      string
	module      string
	assistantID string
	started     time.Time
	log         *log.Logger
}

func (s *Service) runTurn(ctx context.Context, session *domain.Session, content string, req domain.SendMessageRequest, out Emitter) error {
	t := &turnRun{
		session:     session,
		turnID:      "turn_" + uuid.New().String(),
		module:      resolver.ModuleForMode(session.Mode, session.Scenario),
		assistantID: "msg_" + uuid.New().String(),
		started:     time.Now(),
	}
	t.log = logger.With("session_id", session.SessionID, "turn_id", t.turnID, "module", t.module)

	userMsg := &domain.Message{
		MessageID: "msg_" + uuid.New().String(),
		SessionID: session.SessionID,
		TurnID:    t.turnID,
		Role:      domain.RoleUser,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.AppendUserTurn(ctx, userMsg); err != nil {
		return fmt.Errorf("failed to save user message: %w", err)
	}

	history, err := s.store.LoadHistory(ctx, session.SessionID)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	if refreshed, err := s.store.GetSession(ctx, session.SessionID); err == nil && refreshed != nil {
		t.session = refreshed
	}

	res := s.resolver.Resolve(ctx, t.module)
	s.startTurn(ctx, t, userMsg, res)

	s.metrics.StreamStarted()
	defer s.metrics.StreamEnded()

	if f, err := publisher.DataFrame(domain.FrameSessionInfo, t.session); err == nil {
		out.Send(f)
	}
	if f, err := publisher.DataFrame(domain.FrameUserMessage, userMsg); err == nil {
		out.Send(f)
	}
	if res.RefreshErr != nil && res.FromDefault {
		out.Send(domain.Frame{
			Type:    domain.FrameError,
			Code:    domain.ErrorCodeConfig,
			Message: "configuration store unavailable, answering with offline guidance",
		})
	}

	turns := history
	if session.Mode == domain.ModeEmergency {
		turns = withScenarioContext(history, session.Scenario)
	}
	seq, err := s.orchestrator.StreamCompletion(ctx, turns, res.Config, session.Mode, orchestrator.Overrides{
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		s.failTurn(ctx, t, out, domain.ErrorCodeUpstream, err.Error())
		return nil
	}

	var done *domain.DoneEvent
	var usage *domain.UsageData
	for ev := range seq {
		switch e := ev.(type) {
		case domain.AnswerStartEvent:
			s.metrics.FirstToken(t.module, time.Since(t.started))
			frame := publisher.FrameFor(e)
			frame.MessageID = t.assistantID
			out.Send(frame)
		case domain.UsageEvent:
			u := e.Usage
			usage = &u
			out.Send(publisher.FrameFor(e))
		case domain.ErrorEvent:
			s.metrics.UpstreamError(t.module, e.Code)
			s.recordEvent(ctx, t.log, t.turnID, domain.EventTypeUpstreamError, domain.ErrorPayload{Code: e.Code, Message: e.Message})
			out.Send(publisher.FrameFor(e))
		case domain.DoneEvent:
			done = &e
		default:
			out.Send(publisher.FrameFor(ev))
		}
	}

	// Persistence must not depend on the turn deadline either.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if out.Disconnected() {
		s.recordEvent(persistCtx, t.log, t.turnID, domain.EventTypeClientDisconnected, map[string]string{"session_id": session.SessionID})
	}

	if done == nil {
		s.failTurn(persistCtx, t, out, domain.ErrorCodeUpstream, "completion ended without a result")
		return nil
	}
	s.completeTurn(persistCtx, t, done, usage, out)
	return nil
}

func (s *Service) startTurn(ctx context.Context, t *turnRun, userMsg *domain.Message, res resolver.Resolution) {
	turn := &domain.Turn{
		TurnID:    t.turnID,
		SessionID: t.session.SessionID,
		Module:    t.module,
		Status:    domain.TurnStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := s.store.CreateTurn(ctx, turn); err != nil {
		t.log.Warn("failed to create turn record", "err", err)
		return
	}

	s.recordEvent(ctx, t.log, t.turnID, domain.EventTypeTurnStarted, domain.TurnStartedPayload{
		SessionID: t.session.SessionID,
		Mode:      t.session.Mode,
		MessageID: userMsg.MessageID,
	})

	resolved := domain.ConfigResolvedPayload{
		Module:      t.module,
		Model:       res.Config.ModelName,
		FromDefault: res.FromDefault,
	}
	if res.RefreshErr != nil {
		s.metrics.ConfigRefreshFailed()
		resolved.RefreshErr = res.RefreshErr.Error()
		t.log.Warn("module config refresh failed", "err", res.RefreshErr, "from_default", res.FromDefault)
	}
	s.recordEvent(ctx, t.log, t.turnID, domain.EventTypeConfigResolved, resolved)
}

// completeTurn persists the assistant message exactly once, then reports it.
func (s *Service) completeTurn(ctx context.Context, t *turnRun, done *domain.DoneEvent, usage *domain.UsageData, out Emitter) {
	meta := domain.TurnMetadata{
		Reasoning: done.Reasoning,
		Degraded:  done.Degraded,
		Usage:     usage,
	}
	if t.session.Mode == domain.ModeEmergency {
		meta.Steps, meta.Equipment = extractGuidance(done.Content)
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		s.failTurn(ctx, t, out, domain.ErrorCodePersistence, "failed to encode message metadata")
		return
	}

	assistant := &domain.Message{
		MessageID: t.assistantID,
		SessionID: t.session.SessionID,
		TurnID:    t.turnID,
		Role:      domain.RoleAssistant,
		Content:   done.Content,
		CreatedAt: time.Now().UTC(),
		Metadata:  metaBytes,
	}
	inserted, err := s.store.AppendAssistantTurn(ctx, assistant)
	if err != nil {
		t.log.Error("failed to save assistant message", "err", err)
		s.failTurn(ctx, t, out, domain.ErrorCodePersistence, "failed to save the reply")
		return
	}
	if !inserted {
		t.log.Warn("assistant message already stored", "message_id", t.assistantID)
	}

	if f, err := publisher.DataFrame(domain.FrameAssistantMessage, assistant); err == nil {
		out.Send(f)
	}
	frame := publisher.FrameFor(*done)
	frame.MessageID = t.assistantID
	out.Send(frame)

	status, outcome := domain.TurnStatusDone, observability.OutcomeDone
	if done.Degraded {
		status, outcome = domain.TurnStatusDegraded, observability.OutcomeDegraded
		s.recordEvent(ctx, t.log, t.turnID, domain.EventTypeFallbackUsed, map[string]string{"module": t.module})
	}
	if _, err := s.store.UpdateTurnCompleted(ctx, t.turnID, status, nil); err != nil {
		t.log.Warn("failed to update turn status", "err", err)
	}
	latency := time.Since(t.started)
	s.recordEvent(ctx, t.log, t.turnID, domain.EventTypeTurnDone, domain.TurnDonePayload{
		MessageID:  t.assistantID,
		Degraded:   done.Degraded,
		LatencyMs:  latency.Milliseconds(),
		ContentLen: utf8.RuneCountInString(done.Content),
		Usage:      usage,
	})
	s.metrics.TurnFinished(t.module, outcome, latency)
	t.log.Info("turn finished", "status", status, "latency_ms", latency.Milliseconds())
}

// failTurn reports a terminal failure. No done frame follows.
func (s *Service) failTurn(ctx context.Context, t *turnRun, out Emitter, code, message string) {
	out.Send(domain.Frame{Type: domain.FrameError, Code: code, Message: message})

	payload := domain.ErrorPayload{Code: code, Message: message}
	errData, _ := json.Marshal(payload)
	if _, err := s.store.UpdateTurnCompleted(ctx, t.turnID, domain.TurnStatusFailed, errData); err != nil {
		t.log.Warn("failed to update turn status", "err", err)
	}
	s.recordEvent(ctx, t.log, t.turnID, domain.EventTypeTurnFailed, payload)
	s.metrics.TurnFinished(t.module, observability.OutcomeFailed, time.Since(t.started))
}
