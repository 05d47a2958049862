// Package schema defines the typed shape of a catalog entity: which fields
// exist, which are required before an entity may be committed, and how raw
// values proposed during an interview are coerced and validated.
package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// Field names as used by the record_field tool and in missing-field lists.
const (
	FieldType         = "type"
	FieldDomain       = "domain"
	FieldDescription  = "description"
	FieldAlignment    = "alignment"
	FieldCorporeality = "corporeality"
	FieldVolatility   = "volatility"
	FieldResonance    = "resonance"
	FieldLore         = "lore"
	FieldCapabilities = "capabilities"
)

// RequiredFields is the set an entity must populate before commit.
var RequiredFields = []string{FieldType, FieldDomain, FieldDescription}

// AlignmentValues enumerates the accepted alignment parameter.
var AlignmentValues = []string{"luminous", "umbral", "liminal", "feral", "neutral"}

// Entity is the cumulative, partial field record built up across interview
// turns. String fields are unset when empty; continuous parameters are unset
// when nil so zero remains a valid recorded value.
type Entity struct {
	Type         string   `json:"type,omitempty"`
	Domain       string   `json:"domain,omitempty"`
	Description  string   `json:"description,omitempty"`
	Alignment    string   `json:"alignment,omitempty"`
	Corporeality *float64 `json:"corporeality,omitempty"`
	Volatility   *float64 `json:"volatility,omitempty"`
	Resonance    *float64 `json:"resonance,omitempty"`
	Lore         string   `json:"lore,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// FieldNames returns every known field name in stable order.
func FieldNames() []string {
	return []string{
		FieldType, FieldDomain, FieldDescription, FieldAlignment,
		FieldCorporeality, FieldVolatility, FieldResonance,
		FieldLore, FieldCapabilities,
	}
}

// Has reports whether name is populated.
func (e Entity) Has(name string) bool {
	_, ok := e.Get(name)
	return ok
}

// Get returns the display value for a field and whether it is populated.
func (e Entity) Get(name string) (string, bool) {
	switch name {
	case FieldType:
		return e.Type, e.Type != ""
	case FieldDomain:
		return e.Domain, e.Domain != ""
	case FieldDescription:
		return e.Description, e.Description != ""
	case FieldAlignment:
		return e.Alignment, e.Alignment != ""
	case FieldCorporeality:
		return formatParam(e.Corporeality)
	case FieldVolatility:
		return formatParam(e.Volatility)
	case FieldResonance:
		return formatParam(e.Resonance)
	case FieldLore:
		return e.Lore, e.Lore != ""
	case FieldCapabilities:
		return strings.Join(e.Capabilities, ", "), len(e.Capabilities) > 0
	}
	return "", false
}

func formatParam(v *float64) (string, bool) {
	if v == nil {
		return "", false
	}
	return strconv.FormatFloat(*v, 'g', -1, 64), true
}

// Set coerces a raw tool-supplied value into the named field. Unknown fields,
// out-of-range parameters and unknown alignments are errors; the entity is
// left unchanged on error.
func (e *Entity) Set(name, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("schema: empty value for field %q", name)
	}

	switch name {
	case FieldType:
		e.Type = raw
	case FieldDomain:
		e.Domain = raw
	case FieldDescription:
		e.Description = raw
	case FieldAlignment:
		v := strings.ToLower(raw)
		for _, a := range AlignmentValues {
			if a == v {
				e.Alignment = v
				return nil
			}
		}
		return fmt.Errorf("schema: unknown alignment %q (want one of %s)", raw, strings.Join(AlignmentValues, ", "))
	case FieldCorporeality, FieldVolatility, FieldResonance:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("schema: field %q wants a number in [0,1]: %w", name, err)
		}
		if v < 0 || v > 1 {
			return fmt.Errorf("schema: field %q out of range: %g", name, v)
		}
		switch name {
		case FieldCorporeality:
			e.Corporeality = &v
		case FieldVolatility:
			e.Volatility = &v
		case FieldResonance:
			e.Resonance = &v
		}
	case FieldLore:
		e.Lore = raw
	case FieldCapabilities:
		e.Capabilities = splitList(raw)
	default:
		return fmt.Errorf("schema: unknown field %q", name)
	}
	return nil
}

func splitList(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n'
	})
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Present returns the populated field names in stable order.
func (e Entity) Present() []string {
	var out []string
	for _, name := range FieldNames() {
		if e.Has(name) {
			out = append(out, name)
		}
	}
	return out
}

// Missing returns RequiredFields minus the populated fields, in the order
// RequiredFields declares them. The result depends on the schema and the
// entity alone.
func (e Entity) Missing() []string {
	var out []string
	for _, name := range RequiredFields {
		if !e.Has(name) {
			out = append(out, name)
		}
	}
	return out
}

// Coverage is the fraction of required fields populated, in [0,1].
func (e Entity) Coverage() float64 {
	if len(RequiredFields) == 0 {
		return 1
	}
	n := 0
	for _, name := range RequiredFields {
		if e.Has(name) {
			n++
		}
	}
	return float64(n) / float64(len(RequiredFields))
}

// Merged returns a copy of e with every populated field of overlay written
// over it. Fields absent from overlay are untouched; nothing is ever cleared.
func (e Entity) Merged(overlay Entity) Entity {
	out := e
	if overlay.Type != "" {
		out.Type = overlay.Type
	}
	if overlay.Domain != "" {
		out.Domain = overlay.Domain
	}
	if overlay.Description != "" {
		out.Description = overlay.Description
	}
	if overlay.Alignment != "" {
		out.Alignment = overlay.Alignment
	}
	if overlay.Corporeality != nil {
		v := *overlay.Corporeality
		out.Corporeality = &v
	}
	if overlay.Volatility != nil {
		v := *overlay.Volatility
		out.Volatility = &v
	}
	if overlay.Resonance != nil {
		v := *overlay.Resonance
		out.Resonance = &v
	}
	if overlay.Lore != "" {
		out.Lore = overlay.Lore
	}
	if len(overlay.Capabilities) > 0 {
		out.Capabilities = append([]string(nil), overlay.Capabilities...)
	}
	return out
}

// ValidationResult reports the outcome of a commit-time validation pass.
type ValidationResult struct {
	Valid    bool
	Warnings []string
	Errors   []string
}

// Validate checks an entity against the required-field set and flags thin
// content that is technically present but unlikely to be useful.
func Validate(e Entity) ValidationResult {
	res := ValidationResult{
		Valid:    true,
		Warnings: []string{},
		Errors:   []string{},
	}

	for _, name := range e.Missing() {
		res.Valid = false
		res.Errors = append(res.Errors, fmt.Sprintf("required field %q is missing", name))
	}

	if e.Description != "" && len(e.Description) < 20 {
		res.Warnings = append(res.Warnings, "description is very short; consider asking for more detail")
	}
	if len(e.Capabilities) == 0 {
		res.Warnings = append(res.Warnings, "no capabilities recorded")
	}

	return res
}
