package store

import (
	_ "embed"
	"fmt"

	"github.com/xiaot623/gogo/medassist/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed default_modules.yaml
var defaultModulesYAML []byte

type moduleFile struct {
	Modules []domain.ModuleConfig `yaml:"modules"`
}

// DefaultModuleConfigs returns the built-in module configurations. Empty
// credential, endpoint and model fields are filled from fallback.
func DefaultModuleConfigs(fallback domain.ModuleConfig) ([]domain.ModuleConfig, error) {
	return ParseModuleConfigs(defaultModulesYAML, fallback)
}

// ParseModuleConfigs decodes a module configuration YAML document.
func ParseModuleConfigs(data []byte, fallback domain.ModuleConfig) ([]domain.ModuleConfig, error) {
	var f moduleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse module configs: %w", err)
	}
	for i := range f.Modules {
		m := &f.Modules[i]
		if m.ModuleName == "" {
			return nil, fmt.Errorf("module config %d: module_name is required", i)
		}
		if m.APIKey == "" {
			m.APIKey = fallback.APIKey
		}
		if m.BaseURL == "" {
			m.BaseURL = fallback.BaseURL
		}
		if m.ModelName == "" {
			m.ModelName = fallback.ModelName
		}
	}
	return f.Modules, nil
}
