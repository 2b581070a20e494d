package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/xiaot623/gogo/medassist/internal/domain"
)

const triageColumns = `record_id, user_id, request, analysis, degraded, created_at`

func scanTriageRecord(row rowScanner) (*domain.TriageRecord, error) {
	var record domain.TriageRecord
	var request, analysis string
	if err := row.Scan(&record.RecordID, &record.UserID, &request, &analysis, &record.Degraded, &record.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(request), &record.Request); err != nil {
		return nil, fmt.Errorf("decode triage request %s: %w", record.RecordID, err)
	}
	if err := json.Unmarshal([]byte(analysis), &record.Analysis); err != nil {
		return nil, fmt.Errorf("decode triage analysis %s: %w", record.RecordID, err)
	}
	return &record, nil
}

// CreateTriageRecord stores a finished triage analysis.
func (s *SQLiteStore) CreateTriageRecord(ctx context.Context, record *domain.TriageRecord) error {
	request, err := json.Marshal(record.Request)
	if err != nil {
		return err
	}
	analysis, err := json.Marshal(record.Analysis)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO triage_records (record_id, user_id, patient_name, chief_complaint, urgency_level, priority_score, request, analysis, degraded, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.RecordID, record.UserID, record.Request.PatientInfo.Name, record.Request.SymptomInfo.ChiefComplaint,
		record.Analysis.UrgencyLevel, record.Analysis.PriorityScore, string(request), string(analysis), record.Degraded, record.CreatedAt)
	return err
}

// GetTriageRecord retrieves a triage record by ID.
func (s *SQLiteStore) GetTriageRecord(ctx context.Context, recordID string) (*domain.TriageRecord, error) {
	record, err := scanTriageRecord(s.db.QueryRowContext(ctx,
		`SELECT `+triageColumns+` FROM triage_records WHERE record_id = ?`, recordID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ListTriageRecords lists a user's triage records, newest first.
func (s *SQLiteStore) ListTriageRecords(ctx context.Context, userID string, limit, offset int) ([]domain.TriageRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+triageColumns+` FROM triage_records WHERE user_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.TriageRecord
	for rows.Next() {
		record, err := scanTriageRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}
