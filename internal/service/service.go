// Package service implements the assistant use cases on top of the store,
// the configuration resolver and the completion orchestrator.
package service

import (
	"context"

	"github.com/xiaot623/gogo/medassist/internal/adapter/llm"
	"github.com/xiaot623/gogo/medassist/internal/config"
	"github.com/xiaot623/gogo/medassist/internal/domain"
	"github.com/xiaot623/gogo/medassist/internal/lease"
	"github.com/xiaot623/gogo/medassist/internal/observability"
	"github.com/xiaot623/gogo/medassist/internal/orchestrator"
	"github.com/xiaot623/gogo/medassist/internal/repository"
	"github.com/xiaot623/gogo/medassist/internal/resolver"
)

// Emitter receives the frames of one turn.
type Emitter interface {
	Send(frame domain.Frame) error
	Disconnected() bool
}

type Service struct {
	store        store.Store
	resolver     *resolver.Resolver
	orchestrator *orchestrator.Orchestrator
	leaser       lease.Leaser
	clients      llm.Factory
	metrics      *observability.Metrics
	config       *config.Config
}

func New(store store.Store, resolver *resolver.Resolver, orch *orchestrator.Orchestrator, leaser lease.Leaser, clients llm.Factory, metrics *observability.Metrics, cfg *config.Config) *Service {
	if leaser == nil {
		leaser = lease.NewMemoryLeaser()
	}
	return &Service{
		store:        store,
		resolver:     resolver,
		orchestrator: orch,
		leaser:       leaser,
		clients:      clients,
		metrics:      metrics,
		config:       cfg,
	}
}

// DefaultModuleConfig is the configuration used for modules without an
// enabled row.
func DefaultModuleConfig(cfg *config.Config) domain.ModuleConfig {
	return domain.ModuleConfig{
		ModuleName:  "default",
		DisplayName: "Default",
		APIKey:      cfg.LLMAPIKey,
		BaseURL:     cfg.LLMBaseURL,
		ModelName:   cfg.LLMModel,
		Temperature: cfg.LLMTemperature,
		MaxTokens:   cfg.LLMMaxTokens,
		Enabled:     true,
	}
}

// Ping checks that the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
