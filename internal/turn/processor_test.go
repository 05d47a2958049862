package turn

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/lorekeep/archivist/internal/dialogue"
	"github.com/lorekeep/archivist/internal/observe"
	"github.com/lorekeep/archivist/internal/schema"
	"github.com/lorekeep/archivist/internal/store"
	"github.com/lorekeep/archivist/internal/tools"
)

// recordingService captures the request it was sent and replies from a script.
type recordingService struct {
	reply    *dialogue.Reply
	err      error
	lastReq  dialogue.Request
	converse int
}

func (r *recordingService) Converse(_ context.Context, req dialogue.Request) (*dialogue.Reply, error) {
	r.lastReq = req
	r.converse++
	if r.err != nil {
		return nil, r.err
	}
	return r.reply, nil
}

func (r *recordingService) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (r *recordingService) Name() string { return "recording" }

func newProcessor(svc dialogue.Service) *Processor {
	st := store.NewMemoryStore()
	obs := observe.New(io.Discard, false)
	return New(svc, tools.New(svc, st), obs)
}

func TestProcessPlainReply(t *testing.T) {
	svc := &recordingService{reply: &dialogue.Reply{Content: "Tell me more about it."}}
	p := newProcessor(svc)

	out, err := p.Process(context.Background(), Input{
		UserMessage: "It lives near the old mill.",
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if out.Reply != "Tell me more about it." {
		t.Errorf("unexpected reply: %q", out.Reply)
	}
	if len(out.Proposed.Present()) != 0 {
		t.Errorf("no tool calls means no proposed fields, got %v", out.Proposed.Present())
	}
	if svc.converse != 1 {
		t.Errorf("the service must be invoked exactly once, got %d", svc.converse)
	}
}

func TestProcessAssemblesContext(t *testing.T) {
	svc := &recordingService{reply: &dialogue.Reply{Content: "Noted."}}
	p := newProcessor(svc)

	var fields schema.Entity
	fields.Set("type", "Guardian")

	_, err := p.Process(context.Background(), Input{
		History: []store.Message{
			{Role: store.RoleAssistant, Content: "Welcome."},
			{Role: store.RoleUser, Content: "It is a guardian."},
		},
		UserMessage: "It guards the mill.",
		ImageURL:    "https://img.example/mill.png",
		Fields:      fields,
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	msgs := svc.lastReq.Messages
	if msgs[0].Role != store.RoleSystem {
		t.Fatal("first message must be the system prompt")
	}
	if !strings.Contains(msgs[0].Content, "type: Guardian") {
		t.Error("system prompt should list already-recorded fields")
	}
	if !strings.Contains(msgs[0].Content, "domain") {
		t.Error("system prompt should list still-required fields")
	}
	if len(msgs) != 4 {
		t.Fatalf("expected system + 2 history + user, got %d", len(msgs))
	}
	last := msgs[len(msgs)-1]
	if last.Role != store.RoleUser || !strings.Contains(last.Content, "attached media") {
		t.Errorf("image URL should ride on the user message: %+v", last)
	}
	if len(svc.lastReq.Tools) != 3 {
		t.Errorf("tool set must always be offered, got %d", len(svc.lastReq.Tools))
	}
}

func TestProcessRoutesToolCalls(t *testing.T) {
	svc := &recordingService{reply: &dialogue.Reply{
		Content: "Recorded.",
		ToolCalls: []dialogue.ToolCall{
			{ID: "c1", Name: dialogue.ToolRecordField, Args: `{"field": "type", "value": "Guardian", "confidence": 0.7}`},
			{ID: "c2", Name: dialogue.ToolFlagConflict, Args: `{"field": "domain", "claimed": "Sunken City"}`},
		},
	}}
	p := newProcessor(svc)

	out, err := p.Process(context.Background(), Input{UserMessage: "hm"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if v, _ := out.Proposed.Get("type"); v != "Guardian" {
		t.Errorf("proposed field lost: %q", v)
	}
	if len(out.Conflicts) != 1 {
		t.Errorf("conflict lost: %+v", out.Conflicts)
	}
	if len(out.Tools) != 2 {
		t.Fatalf("every tool call yields a record, got %d", len(out.Tools))
	}
	// No explicit completeness: signal falls back to the field confidences.
	if out.Signal == nil || *out.Signal != 0.7 {
		t.Errorf("expected signal 0.7 from field confidences, got %v", out.Signal)
	}
}

func TestProcessToolFailureDoesNotAbortTurn(t *testing.T) {
	svc := &recordingService{reply: &dialogue.Reply{
		Content: "Hm.",
		ToolCalls: []dialogue.ToolCall{
			{ID: "c1", Name: "summon_entity", Args: `{}`},
		},
	}}
	p := newProcessor(svc)

	out, err := p.Process(context.Background(), Input{UserMessage: "hm"})
	if err != nil {
		t.Fatalf("tool failure must not abort the turn: %v", err)
	}
	if len(out.Tools) != 1 || out.Tools[0].Success {
		t.Errorf("expected one failed record, got %+v", out.Tools)
	}
}

func TestProcessEmptyReplyFallback(t *testing.T) {
	svc := &recordingService{reply: &dialogue.Reply{
		ToolCalls: []dialogue.ToolCall{
			{ID: "c1", Name: dialogue.ToolRecordField, Args: `{"field": "type", "value": "Guardian"}`},
		},
	}}
	p := newProcessor(svc)

	out, err := p.Process(context.Background(), Input{UserMessage: "a guardian"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.Reply == "" {
		t.Error("tool-only replies still need visible text")
	}
}

func TestProcessServiceError(t *testing.T) {
	svc := &recordingService{err: errors.New("provider down")}
	p := newProcessor(svc)

	if _, err := p.Process(context.Background(), Input{UserMessage: "hi"}); err == nil {
		t.Error("service errors must surface")
	}
}

func TestOpening(t *testing.T) {
	svc := &recordingService{reply: &dialogue.Reply{Content: "Welcome to the archive."}}
	p := newProcessor(svc)

	greeting, err := p.Opening(context.Background(), Input{})
	if err != nil {
		t.Fatalf("Opening: %v", err)
	}
	if greeting != "Welcome to the archive." {
		t.Errorf("unexpected greeting: %q", greeting)
	}

	empty := &recordingService{reply: &dialogue.Reply{}}
	p2 := newProcessor(empty)
	greeting, err = p2.Opening(context.Background(), Input{})
	if err != nil {
		t.Fatalf("Opening: %v", err)
	}
	if greeting == "" {
		t.Error("empty provider reply should fall back to a canned greeting")
	}
}

func TestBuildSystemPromptContext(t *testing.T) {
	var fields schema.Entity
	fields.Set("type", "Guardian")

	ec := &schema.EntityContext{
		Name:  "The Pale Warden",
		Notes: "Mentioned twice in the eastern ledgers.",
	}
	media := &schema.MediaAnalysis{Summary: "A tall silhouette at a gate."}

	prompt := buildSystemPrompt(fields, ec, media)

	for _, want := range []string{"The Pale Warden", "eastern ledgers", "tall silhouette", "type: Guardian"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
