package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/lorekeep/archivist/internal/dialogue"
	"github.com/lorekeep/archivist/internal/store"
)

func newOrchestrator(t *testing.T) (*Orchestrator, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	return New(dialogue.NewStubService(), st), st
}

func TestRunRecordField(t *testing.T) {
	o, _ := newOrchestrator(t)
	st := &TurnState{}

	records := o.Run(context.Background(), []dialogue.ToolCall{
		{ID: "c1", Name: dialogue.ToolRecordField, Args: `{"field": "type", "value": "Guardian", "confidence": 0.8}`},
	}, st)

	if len(records) != 1 || !records[0].Success {
		t.Fatalf("expected one successful record, got %+v", records)
	}
	if records[0].EndTime.Before(records[0].StartTime) {
		t.Error("record timing is inverted")
	}
	if v, _ := st.Proposed.Get("type"); v != "Guardian" {
		t.Errorf("proposed field lost: %q", v)
	}
	if len(st.FieldConfidences) != 1 || st.FieldConfidences[0] != 0.8 {
		t.Errorf("confidence lost: %v", st.FieldConfidences)
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	o, _ := newOrchestrator(t)
	st := &TurnState{}

	records := o.Run(context.Background(), []dialogue.ToolCall{
		{ID: "c1", Name: dialogue.ToolRecordField, Args: `{"field": "alignment", "value": "chaotic"}`},
		{ID: "c2", Name: dialogue.ToolRecordField, Args: `{"field": "domain", "value": "Dream Threshold"}`},
	}, st)

	if len(records) != 2 {
		t.Fatalf("every call yields a record, got %d", len(records))
	}
	if records[0].Success {
		t.Error("invalid alignment should fail")
	}
	if records[0].Error == "" {
		t.Error("failure must carry the error text")
	}
	if !records[1].Success {
		t.Errorf("later call must still run: %+v", records[1])
	}
	if v, _ := st.Proposed.Get("domain"); v != "Dream Threshold" {
		t.Errorf("surviving call's effect lost: %q", v)
	}
	if st.Proposed.Has("alignment") {
		t.Error("failed call must not leave a partial field")
	}
}

func TestRunUnknownTool(t *testing.T) {
	o, _ := newOrchestrator(t)
	st := &TurnState{}

	records := o.Run(context.Background(), []dialogue.ToolCall{
		{ID: "c1", Name: "summon_entity", Args: `{}`},
	}, st)

	if len(records) != 1 || records[0].Success {
		t.Fatalf("unknown tool should fail in its record: %+v", records)
	}
}

func TestFlagConflict(t *testing.T) {
	o, _ := newOrchestrator(t)
	st := &TurnState{}

	records := o.Run(context.Background(), []dialogue.ToolCall{
		{ID: "c1", Name: dialogue.ToolFlagConflict, Args: `{"field": "domain", "claimed": "Sunken City", "reason": "contradicts the ledger"}`},
	}, st)

	if !records[0].Success {
		t.Fatalf("flag_conflict failed: %s", records[0].Error)
	}
	if len(st.Conflicts) != 1 {
		t.Fatalf("expected one conflict, got %d", len(st.Conflicts))
	}
	w := st.Conflicts[0]
	if w.Field != "domain" || w.Severity != store.SeverityHigh {
		t.Errorf("unexpected conflict: %+v", w)
	}
	if !strings.Contains(w.Text, "Sunken City") || !strings.Contains(w.Text, "ledger") {
		t.Errorf("conflict text should carry claim and reason: %s", w.Text)
	}
}

func TestSuggestRelationship(t *testing.T) {
	o, st := newOrchestrator(t)
	svc := dialogue.NewStubService()

	vec, _ := svc.Embed(context.Background(), "the pale warden of dreams")
	st.AddReference("pale-warden", vec, map[string]string{"domain": "Dream Threshold"})

	turn := &TurnState{}
	records := o.Run(context.Background(), []dialogue.ToolCall{
		{ID: "c1", Name: dialogue.ToolSuggestRelationship, Args: `{"description": "a dream guardian"}`},
	}, turn)

	if !records[0].Success {
		t.Fatalf("suggest_relationship failed: %s", records[0].Error)
	}
	if len(turn.Suggestions) != 1 {
		t.Fatalf("expected one suggestion, got %v", turn.Suggestions)
	}
	if !strings.Contains(turn.Suggestions[0], "pale-warden") || !strings.Contains(turn.Suggestions[0], "Dream Threshold") {
		t.Errorf("suggestion should name the entity and its domain: %s", turn.Suggestions[0])
	}
}

func TestSuggestRelationshipEmptyArchive(t *testing.T) {
	o, _ := newOrchestrator(t)
	st := &TurnState{}

	records := o.Run(context.Background(), []dialogue.ToolCall{
		{ID: "c1", Name: dialogue.ToolSuggestRelationship, Args: `{"description": "a dream guardian"}`},
	}, st)

	if !records[0].Success {
		t.Fatalf("empty archive is not an error: %s", records[0].Error)
	}
	if len(st.Suggestions) != 1 || !strings.Contains(st.Suggestions[0], "no related entities") {
		t.Errorf("expected the empty-archive notice, got %v", st.Suggestions)
	}
}

func TestDescribe(t *testing.T) {
	got := Describe([]store.ToolInvocationRecord{
		{Name: "record_field", Success: true},
		{Name: "flag_conflict", Success: false},
	})
	if got != "record_field ok, flag_conflict err" {
		t.Errorf("unexpected summary: %q", got)
	}
}

func TestNames(t *testing.T) {
	o, _ := newOrchestrator(t)
	names := o.Names()
	if len(names) != 3 {
		t.Errorf("expected 3 default tools, got %v", names)
	}
}
