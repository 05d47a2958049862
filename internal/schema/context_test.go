package schema

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMediaAnalysisSeed(t *testing.T) {
	m := MediaAnalysis{
		Summary:         "A pale figure at a threshold.",
		SuggestedType:   " Guardian ",
		SuggestedDomain: "Dream Threshold",
	}

	e := m.Seed()
	if e.Type != "Guardian" || e.Domain != "Dream Threshold" {
		t.Errorf("unexpected seed: %+v", e)
	}
	// The summary never becomes a field.
	if e.Description != "" {
		t.Error("summary should not seed the description")
	}

	empty := MediaAnalysis{Summary: "only prose"}
	if got := empty.Seed(); len(got.Present()) != 0 {
		t.Errorf("analysis without suggestions should seed nothing, got %v", got.Present())
	}
}

func TestLoadEntityContextYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ctx.yaml")
	content := `entity_id: wisp-07
name: The Pale Warden
known:
  type: Guardian
notes: Mentioned twice in the eastern ledgers.
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	ec, err := LoadEntityContext(path)
	if err != nil {
		t.Fatalf("LoadEntityContext: %v", err)
	}
	if ec.EntityID != "wisp-07" || ec.Name != "The Pale Warden" {
		t.Errorf("unexpected context: %+v", ec)
	}
	if ec.Known.Type != "Guardian" {
		t.Errorf("known fields not parsed: %+v", ec.Known)
	}
}

func TestLoadEntityContextJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ctx.json")
	content := `{"entity_id": "wisp-07", "name": "The Pale Warden", "known": {"domain": "Dream Threshold"}}`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	ec, err := LoadEntityContext(path)
	if err != nil {
		t.Fatalf("LoadEntityContext: %v", err)
	}
	if ec.Known.Domain != "Dream Threshold" {
		t.Errorf("known fields not parsed: %+v", ec.Known)
	}
}

func TestLoadEntityContextUnsupported(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ctx.toml")
	os.WriteFile(path, []byte("x = 1"), 0600)

	if _, err := LoadEntityContext(path); err == nil {
		t.Error("expected error for unsupported extension")
	}
	if _, err := LoadEntityContext(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
