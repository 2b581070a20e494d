// Package policy classifies user messages for the degraded generator with
// an OPA rego policy.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Categories produced by DefaultPolicy.
const (
	CategoryTriageChestPain = "triage_chest_pain"
	CategoryTriage          = "triage"
	CategoryEmergency       = "emergency"
	CategoryGeneral         = "general"
)

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content. The
// policy must define data.fallback.category.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.fallback.category"),
		rego.Module("fallback.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Input is the document the policy is evaluated against.
type Input struct {
	Message string `json:"message"`
	Mode    string `json:"mode"`
}

// Classify returns the fallback category for the input. An undefined result
// is reported as CategoryGeneral.
func (e *Engine) Classify(ctx context.Context, in Input) (string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(map[string]interface{}{
		"message": in.Message,
		"mode":    in.Mode,
	}))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return CategoryGeneral, nil
	}

	if s, ok := results[0].Expressions[0].Value.(string); ok && s != "" {
		return s, nil
	}
	return CategoryGeneral, nil
}

// DefaultPolicy is the keyword policy used when no override is configured.
const DefaultPolicy = `
package fallback

import rego.v1

default category := "general"

triage_words := ["分诊", "症状", "患者信息", "triage", "symptom", "patient"]

chest_pain_words := ["胸痛", "chest pain"]

emergency_words := ["急救", "紧急", "emergency", "first aid", "cpr", "bleeding", "unconscious"]

mentions(words) if {
	some w in words
	contains(lower(input.message), w)
}

triage_request if mentions(triage_words)

triage_request if input.mode == "triage"

category := "triage_chest_pain" if {
	triage_request
	mentions(chest_pain_words)
}

category := "triage" if {
	triage_request
	not mentions(chest_pain_words)
}

category := "emergency" if {
	not triage_request
	mentions(emergency_words)
}
`
