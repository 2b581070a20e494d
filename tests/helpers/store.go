package helpers

import (
	"context"
	"testing"
	"time"

	"github.com/xiaot623/gogo/medassist/internal/domain"
	"github.com/xiaot623/gogo/medassist/internal/repository"
)

func NewTestSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}

// CreateTestSession inserts a session owned by userID.
func CreateTestSession(t *testing.T, s store.Store, sessionID, userID string, mode domain.Mode) *domain.Session {
	t.Helper()

	now := time.Now().UTC()
	session := &domain.Session{
		SessionID: sessionID,
		UserID:    userID,
		Mode:      mode,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.CreateSession(context.Background(), session); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return session
}
