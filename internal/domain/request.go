package domain

// MaxContentLength bounds a single user message.
const MaxContentLength = 4000

// CreateSessionRequest is the body of POST /v1/sessions.
type CreateSessionRequest struct {
	Mode     string `json:"mode" validate:"required"`
	Scenario string `json:"scenario,omitempty" validate:"omitempty,oneof=cpr trauma poisoning burn"`
	Title    string `json:"title,omitempty" validate:"max=200"`
}

// SendMessageRequest is the body of POST /v1/sessions/:id/messages.
type SendMessageRequest struct {
	Content     string   `json:"content" validate:"required,max=4000"`
	Temperature *float64 `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	MaxTokens   *int     `json:"max_tokens,omitempty" validate:"omitempty,gt=0,lte=32768"`
}

// AutoMessageRequest is the body of POST /v1/messages, which picks or
// creates a session for the requested mode.
type AutoMessageRequest struct {
	SendMessageRequest
	Mode     string `json:"mode" validate:"required"`
	Scenario string `json:"scenario,omitempty" validate:"omitempty,oneof=cpr trauma poisoning burn"`
}

// ModuleConfigRequest is the body for creating or updating a module config.
// Pointer fields are optional on update.
type ModuleConfigRequest struct {
	ModuleName       string   `json:"module_name" validate:"omitempty,max=100"`
	DisplayName      *string  `json:"display_name,omitempty" validate:"omitempty,max=200"`
	APIKey           *string  `json:"api_key,omitempty"`
	BaseURL          *string  `json:"base_url,omitempty" validate:"omitempty,url"`
	ModelName        *string  `json:"model_name,omitempty" validate:"omitempty,max=100"`
	Temperature      *float64 `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	MaxTokens        *int     `json:"max_tokens,omitempty" validate:"omitempty,gt=0,lte=32768"`
	ReasoningEnabled *bool    `json:"enable_thinking,omitempty"`
	ThinkingBudget   *int     `json:"thinking_budget,omitempty" validate:"omitempty,gte=0"`
	Enabled          *bool    `json:"is_enabled,omitempty"`
	Description      *string  `json:"description,omitempty"`
}

// Apply copies the set fields of r onto cfg.
func (r ModuleConfigRequest) Apply(cfg *ModuleConfig) {
	if r.ModuleName != "" {
		cfg.ModuleName = r.ModuleName
	}
	if r.DisplayName != nil {
		cfg.DisplayName = *r.DisplayName
	}
	if r.APIKey != nil {
		cfg.APIKey = *r.APIKey
	}
	if r.BaseURL != nil {
		cfg.BaseURL = *r.BaseURL
	}
	if r.ModelName != nil {
		cfg.ModelName = *r.ModelName
	}
	if r.Temperature != nil {
		cfg.Temperature = *r.Temperature
	}
	if r.MaxTokens != nil {
		cfg.MaxTokens = *r.MaxTokens
	}
	if r.ReasoningEnabled != nil {
		cfg.ReasoningEnabled = *r.ReasoningEnabled
	}
	if r.ThinkingBudget != nil {
		cfg.ThinkingBudget = *r.ThinkingBudget
	}
	if r.Enabled != nil {
		cfg.Enabled = *r.Enabled
	}
	if r.Description != nil {
		cfg.Description = *r.Description
	}
}
