package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/xiaot623/gogo/medassist/internal/domain"
)

// PostgresConfigSource reads module configurations from a PostgreSQL table
// shared between deployments. It only serves reads; writes go through the
// local store.
type PostgresConfigSource struct {
	db    *sql.DB
	table string
}

// OpenPostgresConfigSource connects to dsn and ensures the table exists.
func OpenPostgresConfigSource(ctx context.Context, dsn, table string) (*PostgresConfigSource, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	src, err := NewPostgresConfigSource(ctx, db, table, true)
	if err != nil {
		db.Close()
		return nil, err
	}
	return src, nil
}

// NewPostgresConfigSource wraps an open database. table defaults to
// "module_configs". If createTable is true, the table is created.
func NewPostgresConfigSource(ctx context.Context, db *sql.DB, table string, createTable bool) (*PostgresConfigSource, error) {
	if table == "" {
		table = "module_configs"
	}
	src := &PostgresConfigSource{db: db, table: table}
	if createTable {
		if err := src.createTable(ctx); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", table, err)
		}
	}
	return src, nil
}

func (p *PostgresConfigSource) createTable(ctx context.Context) error {
	q := `CREATE TABLE IF NOT EXISTS ` + pq.QuoteIdentifier(p.table) + ` (
		id BIGSERIAL PRIMARY KEY,
		module_name VARCHAR(100) NOT NULL UNIQUE,
		display_name VARCHAR(200) NOT NULL DEFAULT '',
		api_key TEXT NOT NULL DEFAULT '',
		base_url TEXT NOT NULL DEFAULT '',
		model_name VARCHAR(100) NOT NULL DEFAULT '',
		temperature DOUBLE PRECISION NOT NULL DEFAULT 0.7,
		max_tokens INTEGER NOT NULL DEFAULT 2000,
		enable_thinking BOOLEAN NOT NULL DEFAULT FALSE,
		thinking_budget INTEGER NOT NULL DEFAULT 0,
		is_enabled BOOLEAN NOT NULL DEFAULT TRUE,
		description TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`
	_, err := p.db.ExecContext(ctx, q)
	return err
}

// ListModuleConfigs lists every module configuration.
func (p *PostgresConfigSource) ListModuleConfigs(ctx context.Context) ([]domain.ModuleConfig, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+moduleConfigColumns+` FROM `+pq.QuoteIdentifier(p.table)+` ORDER BY id ASC`)
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

// Close closes the database connection.
func (p *PostgresConfigSource) Close() error {
	return p.db.Close()
}
