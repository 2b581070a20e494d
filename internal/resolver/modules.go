package resolver

import "github.com/xiaot623/gogo/medassist/internal/domain"

// Module names.
const (
	ModuleKnowledge     = "chat_kb"
	ModuleDeepReasoning = "chat_graph"
	ModuleTriage        = "triage"
	ModuleEmergencyCPR  = "emergency_cpr"
)

// ModuleForMode maps a session mode (and emergency scenario) to its module.
// Unknown modes map to the knowledge module.
func ModuleForMode(mode domain.Mode, scenario string) string {
	switch mode {
	case domain.ModeKnowledge:
		return ModuleKnowledge
	case domain.ModeDeepReasoning:
		return ModuleDeepReasoning
	case domain.ModeTriage:
		return ModuleTriage
	case domain.ModeEmergency:
		if domain.ValidScenario(scenario) {
			return "emergency_" + scenario
		}
		return ModuleEmergencyCPR
	}
	return ModuleKnowledge
}
