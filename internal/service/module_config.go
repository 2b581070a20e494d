package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/xiaot623/gogo/medassist/internal/adapter/llm"
	"github.com/xiaot623/gogo/medassist/internal/domain"
	"github.com/xiaot623/gogo/medassist/internal/logger"
	"github.com/xiaot623/gogo/medassist/internal/repository"
)

const (
	defaultConfigTemperature = 0.7
	defaultConfigMaxTokens   = 2000
)

// ListModuleConfigs lists every module config with its credential masked.
func (s *Service) ListModuleConfigs(ctx context.Context) ([]domain.ModuleConfig, error) {
	configs, err := s.store.ListModuleConfigs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list module configs: %w", err)
	}
	out := make([]domain.ModuleConfig, 0, len(configs))
	for _, c := range configs {
		out = append(out, c.Redacted())
	}
	return out, nil
}

// GetModuleConfig returns one module config with its credential masked.
func (s *Service) GetModuleConfig(ctx context.Context, id int64) (*domain.ModuleConfig, error) {
	cfg, err := s.moduleConfig(ctx, id)
	if err != nil {
		return nil, err
	}
	redacted := cfg.Redacted()
	return &redacted, nil
}

// CreateModuleConfig stores a new module config. Unset fields take the
// process defaults.
func (s *Service) CreateModuleConfig(ctx context.Context, req domain.ModuleConfigRequest) (*domain.ModuleConfig, error) {
	name := strings.TrimSpace(req.ModuleName)
	if name == "" {
		return nil, fmt.Errorf("%w: module_name is required", domain.ErrInvalidInput)
	}

	def := DefaultModuleConfig(s.config)
	cfg := domain.ModuleConfig{
		APIKey:      def.APIKey,
		BaseURL:     def.BaseURL,
		ModelName:   def.ModelName,
		Temperature: defaultConfigTemperature,
		MaxTokens:   defaultConfigMaxTokens,
		Enabled:     true,
	}
	req.Apply(&cfg)
	cfg.ModuleName = name
	if cfg.DisplayName == "" {
		cfg.DisplayName = name
	}

	if err := s.store.CreateModuleConfig(ctx, &cfg); err != nil {
		if err == domain.ErrInvalidInput {
			return nil, fmt.Errorf("%w: module %q already exists", domain.ErrInvalidInput, name)
		}
		return nil, fmt.Errorf("failed to create module config: %w", err)
	}
	s.resolver.Invalidate()
	logger.Info("module config created", "module", cfg.ModuleName, "id", cfg.ID)

	redacted := cfg.Redacted()
	return &redacted, nil
}

// UpdateModuleConfig applies the set fields of req to an existing config.
func (s *Service) UpdateModuleConfig(ctx context.Context, id int64, req domain.ModuleConfigRequest) (*domain.ModuleConfig, error) {
	cfg, err := s.moduleConfig(ctx, id)
	if err != nil {
		return nil, err
	}
	req.Apply(cfg)

	if err := s.store.UpdateModuleConfig(ctx, cfg); err != nil {
		if err == domain.ErrInvalidInput {
			return nil, fmt.Errorf("%w: module %q already exists", domain.ErrInvalidInput, cfg.ModuleName)
		}
		return nil, fmt.Errorf("failed to update module config: %w", err)
	}
	s.resolver.Invalidate()
	logger.Info("module config updated", "module", cfg.ModuleName, "id", cfg.ID)

	redacted := cfg.Redacted()
	return &redacted, nil
}

// DeleteModuleConfig removes a module config.
func (s *Service) DeleteModuleConfig(ctx context.Context, id int64) error {
	deleted, err := s.store.DeleteModuleConfig(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete module config: %w", err)
	}
	if !deleted {
		return domain.ErrNotFound
	}
	s.resolver.Invalidate()
	return nil
}

// InitDefaultModuleConfigs seeds the built-in module configs, skipping
// modules that already exist. It returns the names that were created.
func (s *Service) InitDefaultModuleConfigs(ctx context.Context) ([]string, error) {
	defaults, err := store.DefaultModuleConfigs(DefaultModuleConfig(s.config))
	if err != nil {
		return nil, err
	}
	created, err := s.store.SeedModuleConfigs(ctx, defaults)
	if err != nil {
		return created, fmt.Errorf("failed to seed module configs: %w", err)
	}
	if created == nil {
		created = []string{}
	}
	s.resolver.Invalidate()
	return created, nil
}

// ListConfigModels asks the endpoint of a stored config for its models.
func (s *Service) ListConfigModels(ctx context.Context, id int64) ([]llm.Model, error) {
	cfg, err := s.moduleConfig(ctx, id)
	if err != nil {
		return nil, err
	}
	models, err := s.clients(cfg.BaseURL, cfg.APIKey).ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models for %s: %w", cfg.ModuleName, err)
	}
	return models, nil
}

func (s *Service) moduleConfig(ctx context.Context, id int64) (*domain.ModuleConfig, error) {
	cfg, err := s.store.GetModuleConfig(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get module config: %w", err)
	}
	if cfg == nil {
		return nil, domain.ErrNotFound
	}
	return cfg, nil
}
