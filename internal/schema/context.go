package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// MediaAnalysis is the vision-service summary of uploaded media. The engine
// treats it as opaque grounding except for the named suggestion fields, which
// seed a fresh session's extracted fields.
type MediaAnalysis struct {
	Summary         string `json:"summary" yaml:"summary"`
	SuggestedType   string `json:"suggested_type" yaml:"suggested_type"`
	SuggestedDomain string `json:"suggested_domain" yaml:"suggested_domain"`
	Source          string `json:"source" yaml:"source"`
}

// Seed returns the fields a new session starts with when the analysis is
// present. Only the explicit suggestions are taken; the free-text summary
// stays conversational grounding.
func (m MediaAnalysis) Seed() Entity {
	var e Entity
	if t := strings.TrimSpace(m.SuggestedType); t != "" {
		e.Type = t
	}
	if d := strings.TrimSpace(m.SuggestedDomain); d != "" {
		e.Domain = d
	}
	return e
}

// EntityContext carries prior knowledge about the entity under cataloging,
// passed through to the dialogue as grounding.
type EntityContext struct {
	EntityID string `json:"entity_id" yaml:"entity_id"`
	Name     string `json:"name" yaml:"name"`
	Known    Entity `json:"known" yaml:"known"`
	Notes    string `json:"notes" yaml:"notes"`
}

// LoadEntityContext reads an EntityContext from a JSON or YAML file.
func LoadEntityContext(path string) (*EntityContext, error) {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("failed to read context file: %w", err)
	}

	var ec EntityContext
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &ec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal JSON context: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &ec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal YAML context: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported context format: %s (use .json or .yaml)", ext)
	}

	return &ec, nil
}
