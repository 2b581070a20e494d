package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/xiaot623/gogo/medassist/internal/domain"
)

const moduleConfigColumns = `id, module_name, display_name, api_key, base_url, model_name, temperature, max_tokens, enable_thinking, thinking_budget, is_enabled, description, created_at, updated_at`

func scanModuleConfig(row rowScanner) (*domain.ModuleConfig, error) {
	var cfg domain.ModuleConfig
	var description sql.NullString
	if err := row.Scan(&cfg.ID, &cfg.ModuleName, &cfg.DisplayName, &cfg.APIKey, &cfg.BaseURL, &cfg.ModelName,
		&cfg.Temperature, &cfg.MaxTokens, &cfg.ReasoningEnabled, &cfg.ThinkingBudget, &cfg.Enabled,
		&description, &cfg.CreatedAt, &cfg.UpdatedAt); err != nil {
		return nil, err
	}
	if description.Valid {
		cfg.Description = description.String
	}
	return &cfg, nil
}

// ListModuleConfigs lists every module configuration.
func (s *SQLiteStore) ListModuleConfigs(ctx context.Context) ([]domain.ModuleConfig, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+moduleConfigColumns+` FROM module_configs ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []domain.ModuleConfig
	for rows.Next() {
		cfg, err := scanModuleConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, *cfg)
	}
	return configs, rows.Err()
}

// GetModuleConfig retrieves a module configuration by ID.
func (s *SQLiteStore) GetModuleConfig(ctx context.Context, id int64) (*domain.ModuleConfig, error) {
	cfg, err := scanModuleConfig(s.db.QueryRowContext(ctx,
		`SELECT `+moduleConfigColumns+` FROM module_configs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// GetModuleConfigByName retrieves a module configuration by module name.
func (s *SQLiteStore) GetModuleConfigByName(ctx context.Context, moduleName string) (*domain.ModuleConfig, error) {
	cfg, err := scanModuleConfig(s.db.QueryRowContext(ctx,
		`SELECT `+moduleConfigColumns+` FROM module_configs WHERE module_name = ?`, moduleName))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// CreateModuleConfig inserts a module configuration and sets its ID.
// A duplicate module name yields domain.ErrInvalidInput.
func (s *SQLiteStore) CreateModuleConfig(ctx context.Context, cfg *domain.ModuleConfig) error {
	now := time.Now().UTC()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO module_configs (module_name, display_name, api_key, base_url, model_name, temperature, max_tokens, enable_thinking, thinking_budget, is_enabled, description, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cfg.ModuleName, cfg.DisplayName, cfg.APIKey, cfg.BaseURL, cfg.ModelName, cfg.Temperature, cfg.MaxTokens,
		cfg.ReasoningEnabled, cfg.ThinkingBudget, cfg.Enabled, nullString(cfg.Description), cfg.CreatedAt, cfg.UpdatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return domain.ErrInvalidInput
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	cfg.ID = id
	return nil
}

// UpdateModuleConfig overwrites a module configuration by ID.
func (s *SQLiteStore) UpdateModuleConfig(ctx context.Context, cfg *domain.ModuleConfig) error {
	cfg.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE module_configs SET module_name = ?, display_name = ?, api_key = ?, base_url = ?, model_name = ?, temperature = ?,
		 max_tokens = ?, enable_thinking = ?, thinking_budget = ?, is_enabled = ?, description = ?, updated_at = ? WHERE id = ?`,
		cfg.ModuleName, cfg.DisplayName, cfg.APIKey, cfg.BaseURL, cfg.ModelName, cfg.Temperature, cfg.MaxTokens,
		cfg.ReasoningEnabled, cfg.ThinkingBudget, cfg.Enabled, nullString(cfg.Description), cfg.UpdatedAt, cfg.ID)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return domain.ErrInvalidInput
		}
		return err
	}
	return requireAffected(res)
}

// DeleteModuleConfig deletes a module configuration by ID.
func (s *SQLiteStore) DeleteModuleConfig(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM module_configs WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// SeedModuleConfigs inserts the given configurations, skipping module names
// that already exist. It returns the names that were inserted.
func (s *SQLiteStore) SeedModuleConfigs(ctx context.Context, configs []domain.ModuleConfig) ([]string, error) {
	var created []string
	for _, c := range configs {
		cfg := c
		if err := s.CreateModuleConfig(ctx, &cfg); err != nil {
			// Ignore if exists
			if err == domain.ErrInvalidInput {
				continue
			}
			return created, err
		}
		created = append(created, cfg.ModuleName)
	}
	return created, nil
}
