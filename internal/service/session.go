package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/gogo/medassist/internal/domain"
)

// CreateSession creates an empty session for userID.
func (s *Service) CreateSession(ctx context.Context, userID string, req domain.CreateSessionRequest) (*domain.Session, error) {
	mode, ok := domain.ParseMode(req.Mode)
	if !ok {
		return nil, fmt.Errorf("%w: unknown mode %q", domain.ErrInvalidInput, req.Mode)
	}

	scenario := ""
	if mode == domain.ModeEmergency {
		scenario = req.Scenario
		if scenario == "" {
			scenario = domain.ScenarioCPR
		}
		if !domain.ValidScenario(scenario) {
			return nil, fmt.Errorf("%w: unknown scenario %q", domain.ErrInvalidInput, scenario)
		}
	}

	now := time.Now().UTC()
	session := &domain.Session{
		SessionID: "sess_" + uuid.New().String(),
		UserID:    userID,
		Mode:      mode,
		Scenario:  scenario,
		Title:     strings.TrimSpace(req.Title),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// GetSession returns a session owned by userID.
func (s *Service) GetSession(ctx context.Context, userID, sessionID string) (*domain.Session, error) {
	return s.ownedSession(ctx, userID, sessionID)
}

// ListSessions lists the sessions of userID, newest first. An empty mode
// lists every mode.
func (s *Service) ListSessions(ctx context.Context, userID, mode string) ([]domain.Session, error) {
	m, err := optionalMode(mode)
	if err != nil {
		return nil, err
	}
	sessions, err := s.store.ListSessions(ctx, userID, m)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	if sessions == nil {
		sessions = []domain.Session{}
	}
	return sessions, nil
}

// GetMessages returns a page of the session transcript.
func (s *Service) GetMessages(ctx context.Context, userID, sessionID string, limit int, before string) ([]domain.Message, error) {
	if _, err := s.ownedSession(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	messages, err := s.store.GetMessages(ctx, sessionID, limit, before)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	return messages, nil
}

// DeleteSession removes a session with its transcript and turns.
func (s *Service) DeleteSession(ctx context.Context, userID, sessionID string) error {
	if _, err := s.ownedSession(ctx, userID, sessionID); err != nil {
		return err
	}
	if err := s.store.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// ClearSessions removes every session of userID in mode, or in all modes
// when mode is empty. It returns the number of sessions removed.
func (s *Service) ClearSessions(ctx context.Context, userID, mode string) (int64, error) {
	m, err := optionalMode(mode)
	if err != nil {
		return 0, err
	}
	n, err := s.store.DeleteSessions(ctx, userID, m)
	if err != nil {
		return 0, fmt.Errorf("failed to clear sessions: %w", err)
	}
	return n, nil
}

// GetTurnEvents returns the recorded events of a turn in a session owned by
// userID.
func (s *Service) GetTurnEvents(ctx context.Context, userID, turnID string, afterTs int64, types []string, limit int) ([]domain.Event, error) {
	turn, err := s.store.GetTurn(ctx, turnID)
	if err != nil {
		return nil, fmt.Errorf("failed to get turn: %w", err)
	}
	if turn == nil {
		return nil, domain.ErrNotFound
	}
	if _, err := s.ownedSession(ctx, userID, turn.SessionID); err != nil {
		return nil, err
	}

	events, err := s.store.GetEvents(ctx, turnID, afterTs, types, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	if events == nil {
		events = []domain.Event{}
	}
	return events, nil
}

// ownedSession loads a session and hides it from other users.
func (s *Service) ownedSession(ctx context.Context, userID, sessionID string) (*domain.Session, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil || session.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return session, nil
}

func optionalMode(mode string) (domain.Mode, error) {
	if strings.TrimSpace(mode) == "" {
		return "", nil
	}
	m, ok := domain.ParseMode(mode)
	if !ok {
		return "", fmt.Errorf("%w: unknown mode %q", domain.ErrInvalidInput, mode)
	}
	return m, nil
}
