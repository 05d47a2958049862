package dialogue

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Archivist tool names.
const (
	ToolRecordField         = "record_field"
	ToolFlagConflict        = "flag_conflict"
	ToolSuggestRelationship = "suggest_relationship"
)

// RecordFieldArgs asks to record one extracted field value.
type RecordFieldArgs struct {
	Field      string   `json:"field"`
	Value      string   `json:"value"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// FlagConflictArgs reports that the user contradicted earlier information.
type FlagConflictArgs struct {
	Field   string `json:"field"`
	Claimed string `json:"claimed"`
	Reason  string `json:"reason"`
}

// SuggestRelationshipArgs asks for related, already-archived entities.
type SuggestRelationshipArgs struct {
	Description string `json:"description"`
}

// ParsedCall is the typed form of a raw tool call. Exactly one payload
// pointer is non-nil.
type ParsedCall struct {
	ID       string
	Name     string
	Record   *RecordFieldArgs
	Conflict *FlagConflictArgs
	Relation *SuggestRelationshipArgs
}

// Parse converts a raw tool call into the closed union. Unknown tool names
// and malformed arguments are errors; callers record those as failed
// invocations rather than failing the turn.
func Parse(tc ToolCall) (ParsedCall, error) {
	out := ParsedCall{ID: tc.ID, Name: tc.Name}
	raw := []byte(tc.Args)
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	switch tc.Name {
	case ToolRecordField:
		var args RecordFieldArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return out, fmt.Errorf("dialogue: bad %s args: %w", tc.Name, err)
		}
		if strings.TrimSpace(args.Field) == "" {
			return out, fmt.Errorf("dialogue: %s missing field name", tc.Name)
		}
		out.Record = &args
	case ToolFlagConflict:
		var args FlagConflictArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return out, fmt.Errorf("dialogue: bad %s args: %w", tc.Name, err)
		}
		if strings.TrimSpace(args.Field) == "" {
			return out, fmt.Errorf("dialogue: %s missing field name", tc.Name)
		}
		out.Conflict = &args
	case ToolSuggestRelationship:
		var args SuggestRelationshipArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return out, fmt.Errorf("dialogue: bad %s args: %w", tc.Name, err)
		}
		if strings.TrimSpace(args.Description) == "" {
			return out, fmt.Errorf("dialogue: %s missing description", tc.Name)
		}
		out.Relation = &args
	default:
		return out, fmt.Errorf("dialogue: unknown tool %q", tc.Name)
	}
	return out, nil
}

// Definitions returns the archivist tool set offered to every provider.
func Definitions() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:        ToolRecordField,
			Description: "Record one catalog field extracted from the conversation",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"field": map[string]interface{}{
						"type":        "string",
						"description": "Field name: type, domain, description, alignment, corporeality, volatility, resonance, lore or capabilities",
					},
					"value": map[string]interface{}{
						"type":        "string",
						"description": "The value to record, as plain text",
					},
					"confidence": map[string]interface{}{
						"type":        "number",
						"description": "Optional confidence in this value, 0 to 1",
					},
				},
				"required": []string{"field", "value"},
			},
		},
		{
			Name:        ToolFlagConflict,
			Description: "Flag that the user contradicted previously recorded information",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"field": map[string]interface{}{
						"type":        "string",
						"description": "The contested field name",
					},
					"claimed": map[string]interface{}{
						"type":        "string",
						"description": "The newly claimed value",
					},
					"reason": map[string]interface{}{
						"type":        "string",
						"description": "Why this looks like a contradiction",
					},
				},
				"required": []string{"field", "claimed"},
			},
		},
		{
			Name:        ToolSuggestRelationship,
			Description: "Look up already-archived entities that may relate to the one being cataloged",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"description": map[string]interface{}{
						"type":        "string",
						"description": "Short description of the entity to find relatives for",
					},
				},
				"required": []string{"description"},
			},
		},
	}
}
