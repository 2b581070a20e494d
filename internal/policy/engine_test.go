package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicyCategories(t *testing.T) {
	ctx := context.Background()
	engine, err := NewEngine(ctx, DefaultPolicy)
	require.NoError(t, err)

	tests := []struct {
		name string
		in   Input
		want string
	}{
		{"chest pain triage", Input{Message: "患者信息：男，55岁，胸痛30分钟", Mode: "knowledge"}, CategoryTriageChestPain},
		{"english chest pain", Input{Message: "Patient has chest pain", Mode: "knowledge"}, CategoryTriageChestPain},
		{"triage keywords", Input{Message: "症状：发热咳嗽", Mode: "knowledge"}, CategoryTriage},
		{"triage mode", Input{Message: "fever since yesterday", Mode: "triage"}, CategoryTriage},
		{"emergency", Input{Message: "How do I do CPR?", Mode: "knowledge"}, CategoryEmergency},
		{"chinese emergency", Input{Message: "需要急救", Mode: "emergency"}, CategoryEmergency},
		{"general", Input{Message: "what is a normal resting heart rate", Mode: "knowledge"}, CategoryGeneral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := engine.Classify(ctx, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewEngineRejectsBadPolicy(t *testing.T) {
	_, err := NewEngine(context.Background(), "package fallback\ncategory := ")
	assert.Error(t, err)
}

func TestUndefinedCategoryIsGeneral(t *testing.T) {
	ctx := context.Background()
	engine, err := NewEngine(ctx, "package fallback\n\nimport rego.v1\n\ncategory := \"x\" if input.message == \"never\"\n")
	require.NoError(t, err)

	got, err := engine.Classify(ctx, Input{Message: "hello"})
	require.NoError(t, err)
	assert.Equal(t, CategoryGeneral, got)
}
