package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseModeAliases(t *testing.T) {
	cases := map[string]Mode{
		"kb":             ModeKnowledge,
		"knowledge":      ModeKnowledge,
		"graph":          ModeDeepReasoning,
		"Deep-Reasoning": ModeDeepReasoning,
		" triage ":       ModeTriage,
		"emergency":      ModeEmergency,
	}
	for in, want := range cases {
		got, ok := ParseMode(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	_, ok := ParseMode("chitchat")
	assert.False(t, ok)
}

func TestDeriveTitle(t *testing.T) {
	assert.Equal(t, "short", DeriveTitle("short"))
	assert.Equal(t, "12345678901234567890", DeriveTitle("12345678901234567890"))
	assert.Equal(t, "12345678901234567890...", DeriveTitle("123456789012345678901"))
	// multi-byte runes are counted as characters, not bytes
	assert.Equal(t, "胸痛胸痛胸痛胸痛胸痛胸痛胸痛胸痛胸痛胸痛...", DeriveTitle("胸痛胸痛胸痛胸痛胸痛胸痛胸痛胸痛胸痛胸痛胸"))
}

func TestModuleConfigRedacted(t *testing.T) {
	cfg := ModuleConfig{APIKey: "sk-1234567890abcd"}
	assert.Equal(t, "sk-1****abcd", cfg.Redacted().APIKey)
	assert.Equal(t, "sk-1234567890abcd", cfg.APIKey)

	short := ModuleConfig{APIKey: "abc"}
	assert.Equal(t, "****", short.Redacted().APIKey)

	empty := ModuleConfig{}
	assert.Empty(t, empty.Redacted().APIKey)
}

func TestModuleConfigRequestApply(t *testing.T) {
	temp := 0.2
	enabled := false
	cfg := ModuleConfig{ModuleName: "triage", Temperature: 0.7, MaxTokens: 1500, Enabled: true}
	ModuleConfigRequest{Temperature: &temp, Enabled: &enabled}.Apply(&cfg)

	assert.Equal(t, "triage", cfg.ModuleName)
	assert.Equal(t, 0.2, cfg.Temperature)
	assert.Equal(t, 1500, cfg.MaxTokens)
	assert.False(t, cfg.Enabled)
}

func TestTurnStatusIsTerminal(t *testing.T) {
	assert.False(t, TurnStatusRunning.IsTerminal())
	assert.True(t, TurnStatusDone.IsTerminal())
	assert.True(t, TurnStatusDegraded.IsTerminal())
	assert.True(t, TurnStatusFailed.IsTerminal())
}
