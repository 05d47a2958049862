// Package merge reconciles newly extracted fields with accumulated session
// state and recomputes the session's confidence after every turn.
package merge

import (
	"fmt"
	"time"

	"github.com/lorekeep/archivist/internal/policy"
	"github.com/lorekeep/archivist/internal/schema"
	"github.com/lorekeep/archivist/internal/store"
)

// Derived interview phases. Never persisted; both map to an active session.
const (
	PhaseGathering = "gathering"
	PhaseReady     = "ready-to-commit"
)

// Merger applies per-field last-write-wins merges and scores the result.
type Merger struct {
	Policy policy.Policy
}

func New(p policy.Policy) Merger {
	return Merger{Policy: p}
}

// Outcome of applying one turn's proposal.
type Outcome struct {
	Fields   schema.Entity
	Warnings []store.Warning // full updated list, append-only
	Added    []store.Warning // entries appended by this merge
}

// Apply merges proposal into current. A proposed value replaces the prior
// value for that field; fields absent from the proposal are untouched.
// Overwriting a differing value while priorConfidence is at or above the
// conflict threshold appends a high-severity warning instead of silently
// discarding either value; the new value still wins. Re-supplying a warned
// field marks its earlier warnings resolved. conflicts are tool-flagged
// warnings appended as-is.
func (m Merger) Apply(current, proposal schema.Entity, warnings []store.Warning, conflicts []store.Warning, priorConfidence float64, now time.Time) Outcome {
	out := Outcome{
		Warnings: append([]store.Warning(nil), warnings...),
	}

	proposed := map[string]string{}
	for _, name := range schema.FieldNames() {
		if v, ok := proposal.Get(name); ok {
			proposed[name] = v
		}
	}

	// A new value for a warned field is a re-assertion that resolves the
	// earlier notices for that field.
	for i := range out.Warnings {
		w := &out.Warnings[i]
		if w.Resolved || w.Field == "" {
			continue
		}
		if _, ok := proposed[w.Field]; ok {
			w.Resolved = true
		}
	}

	for _, name := range schema.FieldNames() {
		newVal, ok := proposed[name]
		if !ok {
			continue
		}
		oldVal, had := current.Get(name)
		if had && oldVal != newVal && priorConfidence >= m.Policy.ConflictThreshold {
			w := store.Warning{
				Field:    name,
				Severity: store.SeverityHigh,
				Text:     fmt.Sprintf("field %q changed from %q to %q after it was asserted with high confidence", name, oldVal, newVal),
				At:       now,
			}
			out.Warnings = append(out.Warnings, w)
			out.Added = append(out.Added, w)
		}
	}

	for _, c := range conflicts {
		if c.At.IsZero() {
			c.At = now
		}
		if c.Severity == "" {
			c.Severity = store.SeverityHigh
		}
		out.Warnings = append(out.Warnings, c)
		out.Added = append(out.Added, c)
	}

	out.Fields = current.Merged(proposal)
	return out
}

// Score computes session confidence from the fraction of required fields
// populated and the turn's explicit signal, when present:
//
//	confidence = (RequiredWeight·coverage + SignalWeight·signal) / (RequiredWeight + SignalWeight)
//
// With no signal the coverage stands alone. The result depends only on the
// fields and the signal, so it is reproducible from session state.
func (m Merger) Score(fields schema.Entity, signal *float64) float64 {
	coverage := fields.Coverage()
	if signal == nil {
		return clamp01(coverage)
	}

	wr, ws := m.Policy.RequiredWeight, m.Policy.SignalWeight
	if wr+ws <= 0 {
		return clamp01(coverage)
	}
	return clamp01((wr*coverage + ws*clamp01(*signal)) / (wr + ws))
}

// Complete reports whether the session may commit: every required field is
// populated and no unresolved high-severity warning targets a required field.
func (m Merger) Complete(fields schema.Entity, warnings []store.Warning) bool {
	if len(fields.Missing()) > 0 {
		return false
	}
	for _, w := range warnings {
		if w.Resolved || w.Severity != store.SeverityHigh {
			continue
		}
		for _, name := range schema.RequiredFields {
			if w.Field == name {
				return false
			}
		}
	}
	return true
}

// Phase derives the interview phase from session state.
func (m Merger) Phase(fields schema.Entity, warnings []store.Warning, confidence float64) string {
	if m.Complete(fields, warnings) && confidence >= m.Policy.CompleteConfidence {
		return PhaseReady
	}
	return PhaseGathering
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
