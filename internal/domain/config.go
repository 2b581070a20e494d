package domain

import "time"

// ModuleConfig is the upstream model configuration for one logical module.
type ModuleConfig struct {
	ID               int64     `json:"id" yaml:"-"`
	ModuleName       string    `json:"module_name" yaml:"module_name"`
	DisplayName      string    `json:"display_name" yaml:"display_name"`
	APIKey           string    `json:"api_key,omitempty" yaml:"api_key"`
	BaseURL          string    `json:"base_url" yaml:"base_url"`
	ModelName        string    `json:"model_name" yaml:"model_name"`
	Temperature      float64   `json:"temperature" yaml:"temperature"`
	MaxTokens        int       `json:"max_tokens" yaml:"max_tokens"`
	ReasoningEnabled bool      `json:"enable_thinking" yaml:"enable_thinking"`
	ThinkingBudget   int       `json:"thinking_budget,omitempty" yaml:"thinking_budget"`
	Enabled          bool      `json:"is_enabled" yaml:"is_enabled"`
	Description      string    `json:"description,omitempty" yaml:"description"`
	CreatedAt        time.Time `json:"created_at" yaml:"-"`
	UpdatedAt        time.Time `json:"updated_at" yaml:"-"`
}

// Redacted returns a copy safe to show to clients.
func (c ModuleConfig) Redacted() ModuleConfig {
	if c.APIKey != "" {
		if len(c.APIKey) > 8 {
			c.APIKey = c.APIKey[:4] + "****" + c.APIKey[len(c.APIKey)-4:]
		} else {
			c.APIKey = "****"
		}
	}
	return c
}
