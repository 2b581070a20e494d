package service

import (
	"regexp"
	"strings"

	"github.com/xiaot623/gogo/medassist/internal/domain"
)

// Scenario describes one emergency guidance scenario.
type Scenario struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

var scenarios = []Scenario{
	{ID: domain.ScenarioCPR, Title: "Cardiopulmonary resuscitation", Description: "Cardiac arrest, no breathing or no pulse"},
	{ID: domain.ScenarioTrauma, Title: "Trauma and bleeding", Description: "Wounds, fractures and heavy bleeding"},
	{ID: domain.ScenarioPoisoning, Title: "Poisoning", Description: "Ingested, inhaled or contact toxins"},
	{ID: domain.ScenarioBurn, Title: "Burns", Description: "Thermal, chemical and electrical burns"},
}

// EmergencyScenarios lists the supported emergency scenarios.
func (s *Service) EmergencyScenarios() []Scenario {
	out := make([]Scenario, len(scenarios))
	copy(out, scenarios)
	return out
}

func scenarioTitle(id string) string {
	for _, sc := range scenarios {
		if sc.ID == id {
			return sc.Title
		}
	}
	return id
}

// withScenarioContext returns a copy of history whose first user turn names
// the emergency situation.
func withScenarioContext(history []domain.Message, scenario string) []domain.Message {
	out := make([]domain.Message, len(history))
	copy(out, history)
	for i := range out {
		if out[i].Role == domain.RoleUser {
			out[i].Content = "Current situation: " + scenarioTitle(scenario) + ". User question: " + out[i].Content
			break
		}
	}
	return out
}

const maxGuidanceItems = 5

var (
	stepLine      = regexp.MustCompile(`^(?i:step\b\s*\d*[.:)]?|步骤\s*\d*[.:：、]?|[1-5](?:[.)]\s|、))\s*`)
	equipmentLine = regexp.MustCompile(`^(?i:equipment|supplies|tools|设备|器材|工具)\s*[:：]?\s*`)
)

// extractGuidance pulls the numbered steps and the equipment lines out of an
// emergency answer.
func extractGuidance(content string) (steps, equipment []string) {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*# "))
		if line == "" {
			continue
		}
		if loc := equipmentLine.FindStringIndex(line); loc != nil {
			if len(equipment) < maxGuidanceItems {
				if item := strings.TrimSpace(line[loc[1]:]); item != "" {
					equipment = append(equipment, item)
				}
			}
			continue
		}
		if loc := stepLine.FindStringIndex(line); loc != nil && loc[1] > 0 {
			if len(steps) < maxGuidanceItems {
				if item := strings.TrimSpace(line[loc[1]:]); item != "" {
					steps = append(steps, item)
				}
			}
		}
	}
	return steps, equipment
}
