package processing

import (
	"fmt"
	"maps"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/api"
)

// LoadPromptContext reads a YAML mapping of extra prompt variables.
// An empty file yields an empty map.
func LoadPromptContext(filename string) (map[string]any, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading prompt context: %w", err)
	}

	vars := map[string]any{}
	if err := yaml.Unmarshal(data, &vars); err != nil {
		return nil, fmt.Errorf("parsing prompt context %s: %w", filename, err)
	}
	if vars == nil {
		vars = map[string]any{}
	}
	return vars, nil
}

// ApplyPromptContext layers vars over the builder context from the config.
// Keys in vars win at the top level.
func ApplyPromptContext(cfg *api.Config, vars map[string]any) {
	merged := make(map[string]any, len(cfg.Builder.Context)+len(vars))
	maps.Copy(merged, cfg.Builder.Context)
	maps.Copy(merged, vars)
	cfg.Builder.Context = merged
}
