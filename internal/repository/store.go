// Package store defines the storage interface and implementations.
package store

import (
	"context"

	"github.com/xiaot623/gogo/medassist/internal/domain"
)

// Store defines the interface for data persistence.
type Store interface {
	// Session operations
	CreateSession(ctx context.Context, session *domain.Session) error
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	GetLatestSession(ctx context.Context, userID string, mode domain.Mode) (*domain.Session, error)
	ListSessions(ctx context.Context, userID string, mode domain.Mode) ([]domain.Session, error)
	TouchSession(ctx context.Context, sessionID string) error
	DeleteSession(ctx context.Context, sessionID string) error
	DeleteSessions(ctx context.Context, userID string, mode domain.Mode) (int64, error)

	// Turn persistence
	AppendUserTurn(ctx context.Context, message *domain.Message) error
	AppendAssistantTurn(ctx context.Context, message *domain.Message) (bool, error)
	LoadHistory(ctx context.Context, sessionID string) ([]domain.Message, error)
	GetMessages(ctx context.Context, sessionID string, limit int, before string) ([]domain.Message, error)
	CountMessages(ctx context.Context, sessionID string, role domain.Role) (int, error)

	// Turn lifecycle
	CreateTurn(ctx context.Context, turn *domain.Turn) error
	GetTurn(ctx context.Context, turnID string) (*domain.Turn, error)
	UpdateTurnCompleted(ctx context.Context, turnID string, status domain.TurnStatus, errData []byte) (bool, error)
	ListStaleTurns(ctx context.Context, olderThanMs int64, limit int) ([]domain.Turn, error)

	// Event operations
	CreateEvent(ctx context.Context, event *domain.Event) error
	GetEvents(ctx context.Context, turnID string, afterTs int64, types []string, limit int) ([]domain.Event, error)

	// Module configuration
	ListModuleConfigs(ctx context.Context) ([]domain.ModuleConfig, error)
	GetModuleConfig(ctx context.Context, id int64) (*domain.ModuleConfig, error)
	GetModuleConfigByName(ctx context.Context, moduleName string) (*domain.ModuleConfig, error)
	CreateModuleConfig(ctx context.Context, cfg *domain.ModuleConfig) error
	UpdateModuleConfig(ctx context.Context, cfg *domain.ModuleConfig) error
	DeleteModuleConfig(ctx context.Context, id int64) (bool, error)
	SeedModuleConfigs(ctx context.Context, configs []domain.ModuleConfig) ([]string, error)

	// Triage records
	CreateTriageRecord(ctx context.Context, record *domain.TriageRecord) error
	GetTriageRecord(ctx context.Context, recordID string) (*domain.TriageRecord, error)
	ListTriageRecords(ctx context.Context, userID string, limit, offset int) ([]domain.TriageRecord, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}

// Ensure SQLiteStore implements Store interface.
var _ Store = (*SQLiteStore)(nil)
