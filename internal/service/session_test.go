package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/medassist/internal/domain"
	"github.com/xiaot623/gogo/medassist/tests/helpers"
)

func TestCreateSession(t *testing.T) {
	env := newTestEnv(t, &scriptedClient{}, nil)
	ctx := context.Background()

	s, err := env.svc.CreateSession(ctx, "u1", domain.CreateSessionRequest{Mode: "graph", Title: " Night shift "})
	require.NoError(t, err)
	assert.Equal(t, domain.ModeDeepReasoning, s.Mode)
	assert.Equal(t, "Night shift", s.Title)
	assert.Empty(t, s.Scenario)

	s, err = env.svc.CreateSession(ctx, "u1", domain.CreateSessionRequest{Mode: "emergency", Scenario: domain.ScenarioBurn})
	require.NoError(t, err)
	assert.Equal(t, domain.ScenarioBurn, s.Scenario)

	// scenarios only apply to emergency sessions
	s, err = env.svc.CreateSession(ctx, "u1", domain.CreateSessionRequest{Mode: "triage", Scenario: domain.ScenarioBurn})
	require.NoError(t, err)
	assert.Empty(t, s.Scenario)

	_, err = env.svc.CreateSession(ctx, "u1", domain.CreateSessionRequest{Mode: "chitchat"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = env.svc.CreateSession(ctx, "u1", domain.CreateSessionRequest{Mode: "emergency", Scenario: "flood"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSessionOwnership(t *testing.T) {
	env := newTestEnv(t, &scriptedClient{}, nil)
	ctx := context.Background()
	helpers.CreateTestSession(t, env.db, "s1", "u1", domain.ModeKnowledge)

	_, err := env.svc.GetSession(ctx, "u2", "s1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = env.svc.GetMessages(ctx, "u2", "s1", 0, "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, env.svc.DeleteSession(ctx, "u2", "s1"), domain.ErrNotFound)

	s, err := env.svc.GetSession(ctx, "u1", "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", s.SessionID)

	messages, err := env.svc.GetMessages(ctx, "u1", "s1", 0, "")
	require.NoError(t, err)
	assert.NotNil(t, messages)
	assert.Empty(t, messages)

	require.NoError(t, env.svc.DeleteSession(ctx, "u1", "s1"))
	_, err = env.svc.GetSession(ctx, "u1", "s1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListAndClearSessions(t *testing.T) {
	env := newTestEnv(t, &scriptedClient{}, nil)
	ctx := context.Background()
	helpers.CreateTestSession(t, env.db, "s1", "u1", domain.ModeKnowledge)
	helpers.CreateTestSession(t, env.db, "s2", "u1", domain.ModeTriage)
	helpers.CreateTestSession(t, env.db, "s3", "u1", domain.ModeTriage)
	helpers.CreateTestSession(t, env.db, "s4", "u2", domain.ModeTriage)

	all, err := env.svc.ListSessions(ctx, "u1", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	triage, err := env.svc.ListSessions(ctx, "u1", "triage")
	require.NoError(t, err)
	assert.Len(t, triage, 2)

	_, err = env.svc.ListSessions(ctx, "u1", "bogus")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	n, err := env.svc.ClearSessions(ctx, "u1", "triage")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	rest, err := env.svc.ListSessions(ctx, "u1", "")
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "s1", rest[0].SessionID)

	other, err := env.svc.ListSessions(ctx, "u2", "")
	require.NoError(t, err)
	assert.Len(t, other, 1)

	none, err := env.svc.ListSessions(ctx, "nobody", "")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestGetTurnEvents(t *testing.T) {
	env := newTestEnv(t, &scriptedClient{chunks: reply("ok")}, nil)
	ctx := context.Background()
	helpers.CreateTestSession(t, env.db, "s1", "u1", domain.ModeKnowledge)
	require.NoError(t, env.send(t, &recordingSink{}, "s1", "hello"))

	history, err := env.db.LoadHistory(ctx, "s1")
	require.NoError(t, err)
	turnID := history[0].TurnID
	require.NotEmpty(t, turnID)

	events, err := env.svc.GetTurnEvents(ctx, "u1", turnID, 0, nil, 0)
	require.NoError(t, err)
	assert.Len(t, events, 3)

	filtered, err := env.svc.GetTurnEvents(ctx, "u1", turnID, 0, []string{string(domain.EventTypeTurnDone)}, 0)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, domain.EventTypeTurnDone, filtered[0].Type)

	_, err = env.svc.GetTurnEvents(ctx, "u2", turnID, 0, nil, 0)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = env.svc.GetTurnEvents(ctx, "u1", "turn_missing", 0, nil, 0)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSweepStaleTurns(t *testing.T) {
	env := newTestEnv(t, &scriptedClient{}, nil)
	ctx := context.Background()
	helpers.CreateTestSession(t, env.db, "s1", "u1", domain.ModeKnowledge)

	require.NoError(t, env.db.CreateTurn(ctx, &domain.Turn{
		TurnID: "turn_old", SessionID: "s1", Module: "chat_kb",
		Status: domain.TurnStatusRunning, StartedAt: time.Now().UTC().Add(-time.Hour),
	}))
	require.NoError(t, env.db.CreateTurn(ctx, &domain.Turn{
		TurnID: "turn_new", SessionID: "s1", Module: "chat_kb",
		Status: domain.TurnStatusRunning, StartedAt: time.Now().UTC(),
	}))

	assert.Equal(t, 1, env.svc.sweepStaleTurns(ctx))

	old, err := env.db.GetTurn(ctx, "turn_old")
	require.NoError(t, err)
	assert.Equal(t, domain.TurnStatusFailed, old.Status)
	assert.NotNil(t, old.EndedAt)
	assert.Equal(t, []domain.EventType{domain.EventTypeTurnFailed}, eventTypes(t, env.db, "turn_old"))

	fresh, err := env.db.GetTurn(ctx, "turn_new")
	require.NoError(t, err)
	assert.Equal(t, domain.TurnStatusRunning, fresh.Status)

	// a second sweep finds nothing left to do
	assert.Equal(t, 0, env.svc.sweepStaleTurns(ctx))
}

func TestRunStaleTurnMonitorStops(t *testing.T) {
	env := newTestEnv(t, &scriptedClient{}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		env.svc.RunStaleTurnMonitor(ctx, 5*time.Millisecond)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}
