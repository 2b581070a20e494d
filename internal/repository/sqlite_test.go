package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xiaot623/gogo/medassist/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func createSession(t *testing.T, store *SQLiteStore, id, user string, mode domain.Mode, created time.Time) {
	t.Helper()
	session := &domain.Session{SessionID: id, UserID: user, Mode: mode, CreatedAt: created}
	if err := store.CreateSession(context.Background(), session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
}

func TestSQLiteStoreSessionAndMessages(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	created := time.Now().UTC().Add(-time.Minute)
	createSession(t, store, "s1", "u1", domain.ModeKnowledge, created)

	gotSession, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if gotSession == nil || gotSession.UserID != "u1" || gotSession.Mode != domain.ModeKnowledge {
		t.Fatalf("unexpected session: %+v", gotSession)
	}

	missing, err := store.GetSession(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	user := &domain.Message{
		MessageID: "m1",
		SessionID: "s1",
		Role:      domain.RoleUser,
		Content:   "How do I perform chest compressions on an adult?",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.AppendUserTurn(ctx, user))

	gotSession, err = store.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "How do I perform che...", gotSession.Title)
	assert.True(t, gotSession.UpdatedAt.After(created))

	meta, _ := json.Marshal(domain.TurnMetadata{Reasoning: "think"})
	assistant := &domain.Message{
		MessageID: "m2",
		SessionID: "s1",
		TurnID:    "turn_1",
		Role:      domain.RoleAssistant,
		Content:   "Push hard and fast.",
		CreatedAt: time.Now().UTC(),
		Metadata:  meta,
	}
	inserted, err := store.AppendAssistantTurn(ctx, assistant)
	require.NoError(t, err)
	assert.True(t, inserted)

	history, err := store.LoadHistory(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, domain.RoleUser, history[0].Role)
	assert.Equal(t, domain.RoleAssistant, history[1].Role)
	assert.Equal(t, "turn_1", history[1].TurnID)
	assert.JSONEq(t, `{"reasoning":"think"}`, string(history[1].Metadata))
}

func TestSQLiteStoreTitleOnlyFromFirstTurn(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	createSession(t, store, "s1", "u1", domain.ModeTriage, time.Now().UTC())

	require.NoError(t, store.AppendUserTurn(ctx, &domain.Message{MessageID: "m1", SessionID: "s1", Role: domain.RoleUser, Content: "fever", CreatedAt: time.Now().UTC()}))
	require.NoError(t, store.AppendUserTurn(ctx, &domain.Message{MessageID: "m2", SessionID: "s1", Role: domain.RoleUser, Content: "and a cough", CreatedAt: time.Now().UTC()}))

	s, err := store.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "fever", s.Title)
}

func TestSQLiteStoreAppendAssistantTurnOnce(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	createSession(t, store, "s1", "u1", domain.ModeKnowledge, time.Now().UTC())

	msg := &domain.Message{MessageID: "m1", SessionID: "s1", Role: domain.RoleAssistant, Content: "a", CreatedAt: time.Now().UTC()}
	inserted, err := store.AppendAssistantTurn(ctx, msg)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = store.AppendAssistantTurn(ctx, msg)
	require.NoError(t, err)
	assert.False(t, inserted)

	n, err := store.CountMessages(ctx, "s1", domain.RoleAssistant)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLiteStoreAppendToUnknownSession(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	err := store.AppendUserTurn(ctx, &domain.Message{MessageID: "m1", SessionID: "ghost", Role: domain.RoleUser, Content: "hi", CreatedAt: time.Now().UTC()})
	assert.Error(t, err)

	assert.ErrorIs(t, store.TouchSession(ctx, "ghost"), domain.ErrNotFound)
}

func TestSQLiteStoreListAndDeleteSessions(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	base := time.Now().UTC().Add(-time.Hour)
	createSession(t, store, "s1", "u1", domain.ModeKnowledge, base)
	createSession(t, store, "s2", "u1", domain.ModeKnowledge, base.Add(time.Minute))
	createSession(t, store, "s3", "u1", domain.ModeTriage, base.Add(2*time.Minute))
	createSession(t, store, "s4", "u2", domain.ModeKnowledge, base.Add(3*time.Minute))

	sessions, err := store.ListSessions(ctx, "u1", domain.ModeKnowledge)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "s2", sessions[0].SessionID)

	all, err := store.ListSessions(ctx, "u1", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, store.TouchSession(ctx, "s1"))
	latest, err := store.GetLatestSession(ctx, "u1", domain.ModeKnowledge)
	require.NoError(t, err)
	assert.Equal(t, "s1", latest.SessionID)

	none, err := store.GetLatestSession(ctx, "u1", domain.ModeEmergency)
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, store.AppendUserTurn(ctx, &domain.Message{MessageID: "m1", SessionID: "s1", Role: domain.RoleUser, Content: "x", CreatedAt: time.Now().UTC()}))
	require.NoError(t, store.DeleteSession(ctx, "s1"))
	history, err := store.LoadHistory(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.ErrorIs(t, store.DeleteSession(ctx, "s1"), domain.ErrNotFound)

	n, err := store.DeleteSessions(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	remaining, err := store.ListSessions(ctx, "u2", "")
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestSQLiteStoreGetMessagesPaging(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	createSession(t, store, "s1", "u1", domain.ModeKnowledge, time.Now().UTC())

	base := time.Now().UTC()
	for i, id := range []string{"m1", "m2", "m3"} {
		msg := &domain.Message{MessageID: id, SessionID: "s1", Role: domain.RoleUser, Content: id, CreatedAt: base.Add(time.Duration(i) * time.Second)}
		require.NoError(t, store.AppendUserTurn(ctx, msg))
	}

	page, err := store.GetMessages(ctx, "s1", 2, "")
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "m1", page[0].MessageID)

	before, err := store.GetMessages(ctx, "s1", 0, "m3")
	require.NoError(t, err)
	assert.Len(t, before, 2)
}

func TestSQLiteStoreTurnsAndEvents(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	createSession(t, store, "s1", "u1", domain.ModeKnowledge, time.Now().UTC())

	turn := &domain.Turn{
		TurnID:    "t1",
		SessionID: "s1",
		Module:    "chat_kb",
		Status:    domain.TurnStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	require.NoError(t, store.CreateTurn(ctx, turn))

	errPayload := json.RawMessage(`{"code":"persistence_error"}`)
	updated, err := store.UpdateTurnCompleted(ctx, "t1", domain.TurnStatusFailed, errPayload)
	require.NoError(t, err)
	assert.True(t, updated)

	updated, err = store.UpdateTurnCompleted(ctx, "t1", domain.TurnStatusDone, nil)
	require.NoError(t, err)
	assert.False(t, updated)

	gotTurn, err := store.GetTurn(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, gotTurn)
	assert.Equal(t, domain.TurnStatusFailed, gotTurn.Status)
	assert.NotNil(t, gotTurn.EndedAt)

	for i, typ := range []domain.EventType{domain.EventTypeTurnStarted, domain.EventTypeFallbackUsed} {
		event := &domain.Event{
			EventID: "e" + string(rune('1'+i)),
			TurnID:  "t1",
			Ts:      time.Now().UnixMilli() + int64(i),
			Type:    typ,
			Payload: json.RawMessage(`{"session_id":"s1"}`),
		}
		require.NoError(t, store.CreateEvent(ctx, event))
	}

	events, err := store.GetEvents(ctx, "t1", 0, nil, 10)
	require.NoError(t, err)
	assert.Len(t, events, 2)

	filtered, err := store.GetEvents(ctx, "t1", 0, []string{string(domain.EventTypeFallbackUsed)}, 10)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, domain.EventTypeFallbackUsed, filtered[0].Type)
}

func TestSQLiteStoreListStaleTurns(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	createSession(t, store, "s1", "u1", domain.ModeKnowledge, time.Now().UTC())

	require.NoError(t, store.CreateTurn(ctx, &domain.Turn{TurnID: "old", SessionID: "s1", Module: "chat_kb", Status: domain.TurnStatusRunning, StartedAt: time.Now().UTC().Add(-time.Hour)}))
	require.NoError(t, store.CreateTurn(ctx, &domain.Turn{TurnID: "new", SessionID: "s1", Module: "chat_kb", Status: domain.TurnStatusRunning, StartedAt: time.Now().UTC()}))

	stale, err := store.ListStaleTurns(ctx, int64(time.Minute/time.Millisecond), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "old", stale[0].TurnID)
}
