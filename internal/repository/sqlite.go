package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/xiaot623/gogo/medassist/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			mode TEXT NOT NULL,
			scenario TEXT,
			title TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user_mode ON sessions(user_id, mode, updated_at)`,
		`CREATE TABLE IF NOT EXISTS messages (
			message_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			turn_id TEXT,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			metadata TEXT,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS turns (
			turn_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			module TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			ended_at DATETIME,
			error TEXT,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_status ON turns(status, started_at)`,
		`CREATE TABLE IF NOT EXISTS events (
			event_id TEXT PRIMARY KEY,
			turn_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			type TEXT NOT NULL,
			payload TEXT,
			FOREIGN KEY (turn_id) REFERENCES turns(turn_id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_turn ON events(turn_id, ts)`,
		`CREATE TABLE IF NOT EXISTS module_configs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			module_name TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL DEFAULT '',
			api_key TEXT NOT NULL DEFAULT '',
			base_url TEXT NOT NULL DEFAULT '',
			model_name TEXT NOT NULL DEFAULT '',
			temperature REAL NOT NULL DEFAULT 0.7,
			max_tokens INTEGER NOT NULL DEFAULT 2000,
			enable_thinking INTEGER NOT NULL DEFAULT 0,
			is_enabled INTEGER NOT NULL DEFAULT 1,
			description TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS triage_records (
			record_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			patient_name TEXT NOT NULL,
			chief_complaint TEXT NOT NULL,
			urgency_level TEXT NOT NULL,
			priority_score INTEGER NOT NULL,
			request TEXT NOT NULL,
			analysis TEXT NOT NULL,
			degraded INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_triage_records_user ON triage_records(user_id, created_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	// Add new columns for existing DBs (SQLite has limited ALTER TABLE support).
	if err := s.ensureColumn("module_configs", "thinking_budget", "ALTER TABLE module_configs ADD COLUMN thinking_budget INTEGER NOT NULL DEFAULT 0"); err != nil {
		return err
	}

	return nil
}

func (s *SQLiteStore) ensureColumn(tableName, columnName, ddl string) error {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dfltValue sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		if name == columnName {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	_, err = s.db.Exec(ddl)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const sessionColumns = `session_id, user_id, mode, scenario, title, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var session domain.Session
	var scenario sql.NullString
	if err := row.Scan(&session.SessionID, &session.UserID, &session.Mode, &scenario, &session.Title, &session.CreatedAt, &session.UpdatedAt); err != nil {
		return nil, err
	}
	if scenario.Valid {
		session.Scenario = scenario.String
	}
	return &session, nil
}

// CreateSession creates a new session.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.Session) error {
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = session.CreatedAt
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, user_id, mode, scenario, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		session.SessionID, session.UserID, session.Mode, nullString(session.Scenario), session.Title, session.CreatedAt, session.UpdatedAt)
	return err
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, sessionID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

// GetLatestSession returns the most recently updated session of a user in a mode.
func (s *SQLiteStore) GetLatestSession(ctx context.Context, userID string, mode domain.Mode) (*domain.Session, error) {
	session, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE user_id = ? AND mode = ? ORDER BY updated_at DESC, rowid DESC LIMIT 1`,
		userID, mode))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

// ListSessions lists a user's sessions, newest first. An empty mode lists all.
func (s *SQLiteStore) ListSessions(ctx context.Context, userID string, mode domain.Mode) ([]domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE user_id = ?`
	args := []interface{}{userID}
	if mode != "" {
		query += ` AND mode = ?`
		args = append(args, mode)
	}
	query += ` ORDER BY updated_at DESC, rowid DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	return sessions, rows.Err()
}

// TouchSession bumps updated_at.
func (s *SQLiteStore) TouchSession(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE session_id = ?`, time.Now().UTC(), sessionID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// DeleteSession deletes a session and everything recorded under it.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := deleteSessionChildren(ctx, tx, `session_id = ?`, sessionID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID)
		if err != nil {
			return err
		}
		return requireAffected(res)
	})
}

// DeleteSessions deletes all sessions of a user, optionally limited to one mode.
func (s *SQLiteStore) DeleteSessions(ctx context.Context, userID string, mode domain.Mode) (int64, error) {
	where := `user_id = ?`
	args := []interface{}{userID}
	if mode != "" {
		where += ` AND mode = ?`
		args = append(args, mode)
	}

	var deleted int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := deleteSessionChildren(ctx, tx, `session_id IN (SELECT session_id FROM sessions WHERE `+where+`)`, args...); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE `+where, args...)
		if err != nil {
			return err
		}
		deleted, err = res.RowsAffected()
		return err
	})
	return deleted, err
}

// deleteSessionChildren removes rows that reference the matched sessions.
// Foreign key enforcement is per connection in SQLite, so cascades are not
// relied upon.
func deleteSessionChildren(ctx context.Context, tx *sql.Tx, sessionFilter string, args ...interface{}) error {
	stmts := []string{
		`DELETE FROM events WHERE turn_id IN (SELECT turn_id FROM turns WHERE ` + sessionFilter + `)`,
		`DELETE FROM turns WHERE ` + sessionFilter,
		`DELETE FROM messages WHERE ` + sessionFilter,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return err
		}
	}
	return nil
}

// AppendUserTurn stores a user message, bumps the session and derives its
// title when none is set. All three happen in one transaction.
func (s *SQLiteStore) AppendUserTurn(ctx context.Context, message *domain.Message) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertMessage(ctx, tx, message, false); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE sessions SET updated_at = ?, title = CASE WHEN title = '' THEN ? ELSE title END WHERE session_id = ?`,
			message.CreatedAt, domain.DeriveTitle(message.Content), message.SessionID)
		if err != nil {
			return err
		}
		return requireAffected(res)
	})
}

// AppendAssistantTurn stores an assistant message and bumps the session.
// A second call with the same message ID stores nothing and reports false.
func (s *SQLiteStore) AppendAssistantTurn(ctx context.Context, message *domain.Message) (bool, error) {
	inserted := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertMessage(ctx, tx, message, true); err != nil {
			if errors.Is(err, errDuplicate) {
				return nil
			}
			return err
		}
		inserted = true
		res, err := tx.ExecContext(ctx,
			`UPDATE sessions SET updated_at = ? WHERE session_id = ?`, message.CreatedAt, message.SessionID)
		if err != nil {
			return err
		}
		return requireAffected(res)
	})
	return inserted, err
}

var errDuplicate = errors.New("duplicate message")

func insertMessage(ctx context.Context, tx *sql.Tx, message *domain.Message, ignoreDuplicate bool) error {
	verb := "INSERT"
	if ignoreDuplicate {
		verb = "INSERT OR IGNORE"
	}
	res, err := tx.ExecContext(ctx,
		verb+` INTO messages (message_id, session_id, turn_id, role, content, created_at, metadata) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		message.MessageID, message.SessionID, nullString(message.TurnID), message.Role, message.Content, message.CreatedAt, nullStringBytes(message.Metadata))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errDuplicate
	}
	return nil
}

const messageColumns = `message_id, session_id, turn_id, role, content, created_at, metadata`

func scanMessage(row rowScanner) (*domain.Message, error) {
	var msg domain.Message
	var turnID, metadata sql.NullString
	if err := row.Scan(&msg.MessageID, &msg.SessionID, &turnID, &msg.Role, &msg.Content, &msg.CreatedAt, &metadata); err != nil {
		return nil, err
	}
	if turnID.Valid {
		msg.TurnID = turnID.String
	}
	if metadata.Valid && metadata.String != "" {
		msg.Metadata = json.RawMessage(metadata.String)
	}
	return &msg, nil
}

func (s *SQLiteStore) queryMessages(ctx context.Context, query string, args ...interface{}) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}

// LoadHistory returns every turn of a session in conversation order.
func (s *SQLiteStore) LoadHistory(ctx context.Context, sessionID string) ([]domain.Message, error) {
	return s.queryMessages(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE session_id = ? ORDER BY created_at ASC, rowid ASC`, sessionID)
}

// GetMessages retrieves a page of messages for a session. before is a message
// ID; only messages created earlier are returned.
func (s *SQLiteStore) GetMessages(ctx context.Context, sessionID string, limit int, before string) ([]domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE session_id = ?`
	args := []interface{}{sessionID}

	if before != "" {
		query += ` AND rowid < (SELECT rowid FROM messages WHERE message_id = ?)`
		args = append(args, before)
	}

	query += ` ORDER BY created_at ASC, rowid ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	return s.queryMessages(ctx, query, args...)
}

// CountMessages counts the messages of one role in a session.
func (s *SQLiteStore) CountMessages(ctx context.Context, sessionID string, role domain.Role) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE session_id = ? AND role = ?`, sessionID, role).Scan(&n)
	return n, err
}

// CreateTurn creates a new turn record.
func (s *SQLiteStore) CreateTurn(ctx context.Context, turn *domain.Turn) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns (turn_id, session_id, module, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		turn.TurnID, turn.SessionID, turn.Module, turn.Status, turn.StartedAt)
	return err
}

// GetTurn retrieves a turn by ID.
func (s *SQLiteStore) GetTurn(ctx context.Context, turnID string) (*domain.Turn, error) {
	var turn domain.Turn
	var errData sql.NullString
	var endedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT turn_id, session_id, module, status, started_at, ended_at, error FROM turns WHERE turn_id = ?`,
		turnID).Scan(&turn.TurnID, &turn.SessionID, &turn.Module, &turn.Status, &turn.StartedAt, &endedAt, &errData)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if endedAt.Valid {
		turn.EndedAt = &endedAt.Time
	}
	if errData.Valid {
		turn.Error = json.RawMessage(errData.String)
	}
	return &turn, nil
}

// UpdateTurnCompleted moves a running turn to a terminal status. It reports
// false when the turn had already completed.
func (s *SQLiteStore) UpdateTurnCompleted(ctx context.Context, turnID string, status domain.TurnStatus, errData []byte) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE turns SET status = ?, ended_at = ?, error = ? WHERE turn_id = ? AND ended_at IS NULL`,
		status, time.Now().UTC(), nullStringBytes(errData), turnID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ListStaleTurns returns running turns started more than olderThanMs ago.
func (s *SQLiteStore) ListStaleTurns(ctx context.Context, olderThanMs int64, limit int) ([]domain.Turn, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(olderThanMs) * time.Millisecond)
	rows, err := s.db.QueryContext(ctx, `
		SELECT turn_id, session_id, module, status, started_at
		FROM turns
		WHERE ended_at IS NULL
		  AND status = ?
		  AND started_at < ?
		ORDER BY started_at ASC
		LIMIT ?
	`, domain.TurnStatusRunning, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Turn
	for rows.Next() {
		var turn domain.Turn
		if err := rows.Scan(&turn.TurnID, &turn.SessionID, &turn.Module, &turn.Status, &turn.StartedAt); err != nil {
			return nil, err
		}
		out = append(out, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateEvent creates a new event.
func (s *SQLiteStore) CreateEvent(ctx context.Context, event *domain.Event) error {
	payload := ""
	if event.Payload != nil {
		payload = string(event.Payload)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (event_id, turn_id, ts, type, payload) VALUES (?, ?, ?, ?, ?)`,
		event.EventID, event.TurnID, event.Ts, event.Type, payload)
	return err
}

// GetEvents retrieves events for a turn.
func (s *SQLiteStore) GetEvents(ctx context.Context, turnID string, afterTs int64, types []string, limit int) ([]domain.Event, error) {
	query := `SELECT event_id, turn_id, ts, type, payload FROM events WHERE turn_id = ?`
	args := []interface{}{turnID}

	if afterTs > 0 {
		query += ` AND ts > ?`
		args = append(args, afterTs)
	}

	if len(types) > 0 {
		placeholders := make([]string, len(types))
		for i, t := range types {
			placeholders[i] = "?"
			args = append(args, t)
		}
		query += fmt.Sprintf(" AND type IN (%s)", strings.Join(placeholders, ","))
	}

	query += ` ORDER BY ts ASC, rowid ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var event domain.Event
		var payload sql.NullString
		if err := rows.Scan(&event.EventID, &event.TurnID, &event.Ts, &event.Type, &payload); err != nil {
			return nil, err
		}
		if payload.Valid && payload.String != "" {
			event.Payload = json.RawMessage(payload.String)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullStringBytes(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
