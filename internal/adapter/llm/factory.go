package llm

import (
	"os"
	"time"

	"github.com/xiaot623/gogo/medassist/internal/logger"
)

const (
	// EnvGogoMode is the environment variable name for mode selection.
	EnvGogoMode = "GOGO_MODE"
	// ModeMock indicates mock mode should be used.
	ModeMock = "MOCK"
)

// Factory builds a client for one module's endpoint and credential.
type Factory func(baseURL, apiKey string) LLMClient

// NewFactory returns a Factory based on the GOGO_MODE environment variable.
// If GOGO_MODE=MOCK, every client is a MockClient; otherwise real Clients are
// built with the given timeouts.
func NewFactory(timeout, idleTimeout time.Duration) Factory {
	if os.Getenv(EnvGogoMode) == ModeMock {
		logger.Info("GOGO_MODE=MOCK detected, using mock LLM client")
		mock := NewMockClient()
		return func(string, string) LLMClient { return mock }
	}

	return func(baseURL, apiKey string) LLMClient {
		return NewClient(baseURL, apiKey, timeout, WithIdleTimeout(idleTimeout))
	}
}
