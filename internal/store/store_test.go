package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/lorekeep/archivist/internal/schema"
)

// storeFixtures runs the contract tests against every Storage implementation
// that needs no external service.
func storeFixtures(t *testing.T) map[string]Storage {
	t.Helper()

	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("failed to open sqlite store: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Storage{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func sampleSession(id string) *Session {
	now := time.Now().UTC().Truncate(time.Second)
	var fields schema.Entity
	fields.Set("type", "Guardian")

	return &Session{
		ID:       id,
		UserID:   "u1",
		EntityID: "wisp-07",
		Status:   StatusActive,
		Messages: []Message{
			{Role: RoleAssistant, Content: "Welcome to the archive.", Timestamp: now},
		},
		Fields:         fields,
		Confidence:     0.33,
		StartedAt:      now,
		LastActivityAt: now,
	}
}

func TestSessionRoundTrip(t *testing.T) {
	for name, s := range storeFixtures(t) {
		t.Run(name, func(t *testing.T) {
			sess := sampleSession("s1")
			if err := s.CreateSession(sess); err != nil {
				t.Fatalf("CreateSession: %v", err)
			}

			got, err := s.GetSession("s1")
			if err != nil {
				t.Fatalf("GetSession: %v", err)
			}
			if got.UserID != "u1" || got.EntityID != "wisp-07" {
				t.Errorf("identity lost: %+v", got)
			}
			if len(got.Messages) != 1 || got.Messages[0].Role != RoleAssistant {
				t.Errorf("messages lost: %+v", got.Messages)
			}
			if v, ok := got.Fields.Get("type"); !ok || v != "Guardian" {
				t.Errorf("fields lost: %q", v)
			}
			if got.Confidence != 0.33 {
				t.Errorf("confidence lost: %f", got.Confidence)
			}

			got.Status = StatusCompleted
			got.Warnings = append(got.Warnings, Warning{
				Field: "type", Severity: SeverityHigh, Text: "contested", At: time.Now(),
			})
			if err := s.UpdateSession(got); err != nil {
				t.Fatalf("UpdateSession: %v", err)
			}

			again, err := s.GetSession("s1")
			if err != nil {
				t.Fatalf("GetSession: %v", err)
			}
			if again.Status != StatusCompleted || len(again.Warnings) != 1 {
				t.Errorf("update lost: %+v", again)
			}
		})
	}
}

func TestGetSessionNotFound(t *testing.T) {
	for name, s := range storeFixtures(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.GetSession("ghost"); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
			if err := s.UpdateSession(sampleSession("ghost")); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound on update, got %v", err)
			}
		})
	}
}

func TestFindActiveSession(t *testing.T) {
	for name, s := range storeFixtures(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.FindActiveSession("u1", "wisp-07"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound on empty store, got %v", err)
			}

			sess := sampleSession("s1")
			if err := s.CreateSession(sess); err != nil {
				t.Fatalf("CreateSession: %v", err)
			}

			found, err := s.FindActiveSession("u1", "wisp-07")
			if err != nil {
				t.Fatalf("FindActiveSession: %v", err)
			}
			if found.ID != "s1" {
				t.Errorf("found wrong session: %s", found.ID)
			}

			// Terminal sessions are not resumable.
			found.Status = StatusAbandoned
			if err := s.UpdateSession(found); err != nil {
				t.Fatalf("UpdateSession: %v", err)
			}
			if _, err := s.FindActiveSession("u1", "wisp-07"); !errors.Is(err, ErrNotFound) {
				t.Errorf("abandoned session should not be found, got %v", err)
			}

			// Other owners never see the session.
			fresh := sampleSession("s2")
			if err := s.CreateSession(fresh); err != nil {
				t.Fatalf("CreateSession: %v", err)
			}
			if _, err := s.FindActiveSession("u2", "wisp-07"); !errors.Is(err, ErrNotFound) {
				t.Errorf("wrong owner should not match, got %v", err)
			}
		})
	}
}

func TestRecordRoundTrip(t *testing.T) {
	for name, s := range storeFixtures(t) {
		t.Run(name, func(t *testing.T) {
			var fields schema.Entity
			fields.Set("type", "Guardian")
			fields.Set("domain", "Dream Threshold")
			fields.Set("description", "A tall sentinel wrapped in veils.")

			rec := &Record{
				ID:        "r1",
				SessionID: "s1",
				UserID:    "u1",
				EntityID:  "wisp-07",
				Fields:    fields,
				CreatedAt: time.Now().UTC().Truncate(time.Second),
			}
			if err := s.SaveRecord(rec); err != nil {
				t.Fatalf("SaveRecord: %v", err)
			}

			got, err := s.GetRecord("r1")
			if err != nil {
				t.Fatalf("GetRecord: %v", err)
			}
			if v, _ := got.Fields.Get("domain"); v != "Dream Threshold" {
				t.Errorf("fields lost: %q", v)
			}

			list, err := s.ListRecords("u1")
			if err != nil {
				t.Fatalf("ListRecords: %v", err)
			}
			if len(list) != 1 {
				t.Errorf("expected 1 record, got %d", len(list))
			}

			other, err := s.ListRecords("someone-else")
			if err != nil {
				t.Fatalf("ListRecords: %v", err)
			}
			if len(other) != 0 {
				t.Errorf("owner filter leaked %d records", len(other))
			}
		})
	}
}

func TestReferenceSearchRanking(t *testing.T) {
	for name, s := range storeFixtures(t) {
		t.Run(name, func(t *testing.T) {
			refs := map[string][]float32{
				"warden":  {1, 0, 0},
				"wisp":    {0.9, 0.1, 0},
				"leviath": {0, 0, 1},
			}
			for n, vec := range refs {
				if err := s.AddReference(n, vec, map[string]string{"domain": "test"}); err != nil {
					t.Fatalf("AddReference: %v", err)
				}
			}

			got, err := s.SearchReferences([]float32{1, 0, 0}, 2)
			if err != nil {
				t.Fatalf("SearchReferences: %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("expected 2 results, got %d", len(got))
			}
			if got[0].Name != "warden" || got[1].Name != "wisp" {
				t.Errorf("ranking wrong: %s, %s", got[0].Name, got[1].Name)
			}
			if got[0].Similarity < got[1].Similarity {
				t.Error("results must be sorted by similarity")
			}
			if got[0].Metadata["domain"] != "test" {
				t.Errorf("metadata lost: %v", got[0].Metadata)
			}
		})
	}
}

func TestConfigRoundTrip(t *testing.T) {
	for name, s := range storeFixtures(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.SetConfig("k", "v1"); err != nil {
				t.Fatalf("SetConfig: %v", err)
			}
			if err := s.SetConfig("k", "v2"); err != nil {
				t.Fatalf("SetConfig overwrite: %v", err)
			}
			got, err := s.GetConfig("k")
			if err != nil {
				t.Fatalf("GetConfig: %v", err)
			}
			if got != "v2" {
				t.Errorf("expected v2, got %q", got)
			}

			missing, err := s.GetConfig("absent")
			if err != nil || missing != "" {
				t.Errorf("missing key should be empty, got %q, %v", missing, err)
			}
		})
	}
}

func TestMemoryStoreCopies(t *testing.T) {
	s := NewMemoryStore()
	sess := sampleSession("s1")
	if err := s.CreateSession(sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	// Mutating a fetched session must not leak into the store.
	got, _ := s.GetSession("s1")
	got.Fields.Set("domain", "Scribbled Over")
	got.Messages = append(got.Messages, Message{Role: RoleUser, Content: "stray"})

	clean, _ := s.GetSession("s1")
	if _, ok := clean.Fields.Get("domain"); ok {
		t.Error("store state mutated through a fetched copy")
	}
	if len(clean.Messages) != 1 {
		t.Errorf("messages mutated through a fetched copy: %d", len(clean.Messages))
	}
}
