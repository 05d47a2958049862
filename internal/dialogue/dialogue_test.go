package dialogue

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
)

func TestParseRecordField(t *testing.T) {
	conf := `{"field": "type", "value": "Guardian", "confidence": 0.8}`
	call, err := Parse(ToolCall{ID: "c1", Name: ToolRecordField, Args: conf})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if call.Record == nil {
		t.Fatal("expected record payload")
	}
	if call.Conflict != nil || call.Relation != nil {
		t.Error("exactly one payload must be set")
	}
	if call.Record.Field != "type" || call.Record.Value != "Guardian" {
		t.Errorf("unexpected args: %+v", call.Record)
	}
	if call.Record.Confidence == nil || *call.Record.Confidence != 0.8 {
		t.Errorf("confidence lost: %v", call.Record.Confidence)
	}
}

func TestParseFlagConflict(t *testing.T) {
	call, err := Parse(ToolCall{Name: ToolFlagConflict, Args: `{"field": "domain", "claimed": "Sunken City", "reason": "contradicts turn 2"}`})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if call.Conflict == nil || call.Conflict.Claimed != "Sunken City" {
		t.Errorf("unexpected args: %+v", call.Conflict)
	}
}

func TestParseSuggestRelationship(t *testing.T) {
	call, err := Parse(ToolCall{Name: ToolSuggestRelationship, Args: `{"description": "a dream guardian"}`})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if call.Relation == nil || call.Relation.Description != "a dream guardian" {
		t.Errorf("unexpected args: %+v", call.Relation)
	}
}

func TestParseRejections(t *testing.T) {
	cases := []ToolCall{
		{Name: "summon_entity", Args: `{}`},
		{Name: ToolRecordField, Args: `{"value": "Guardian"}`},
		{Name: ToolRecordField, Args: `not json`},
		{Name: ToolFlagConflict, Args: `{}`},
		{Name: ToolSuggestRelationship, Args: `{"description": "  "}`},
	}
	for _, tc := range cases {
		if _, err := Parse(tc); err == nil {
			t.Errorf("Parse(%s, %s) should fail", tc.Name, tc.Args)
		}
	}
}

func TestDefinitions(t *testing.T) {
	defs := Definitions()
	if len(defs) != 3 {
		t.Fatalf("expected 3 tools, got %d", len(defs))
	}
	names := map[string]bool{}
	for _, d := range defs {
		names[d.Name] = true
		if d.Parameters["type"] != "object" {
			t.Errorf("tool %s parameters should be an object schema", d.Name)
		}
	}
	for _, want := range []string{ToolRecordField, ToolFlagConflict, ToolSuggestRelationship} {
		if !names[want] {
			t.Errorf("missing tool %s", want)
		}
	}
}

func TestStubService(t *testing.T) {
	s := NewStubService()
	if s.Name() != "stub" {
		t.Errorf("Expected 'stub', got '%s'", s.Name())
	}

	first, err := s.Converse(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Converse failed: %v", err)
	}
	if first.Content == "" {
		t.Error("scripted reply should carry content")
	}

	// The script eventually runs out and repeats the final reply.
	for i := 0; i < 10; i++ {
		if _, err := s.Converse(context.Background(), Request{}); err != nil {
			t.Fatalf("Converse failed: %v", err)
		}
	}
}

func TestStubService_CanceledContext(t *testing.T) {
	s := NewStubService()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Converse(ctx, Request{}); err == nil {
		t.Error("Expected error on canceled context")
	}
}

func TestStubServiceEmbedDeterministic(t *testing.T) {
	s := NewStubService()
	a, _ := s.Embed(context.Background(), "a dream guardian")
	b, _ := s.Embed(context.Background(), "a dream guardian")
	c, _ := s.Embed(context.Background(), "a sunken leviathan")

	if len(a) == 0 {
		t.Fatal("expected non-empty vector")
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("same text must embed identically")
		}
	}
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
		}
	}
	if same {
		t.Error("different texts should embed differently")
	}
}

func TestOpenAIService(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"choices": [{"message": {"content": "", "role": "assistant", "tool_calls": [
				{"id": "c1", "type": "function", "function": {"name": "record_field", "arguments": "{\"field\": \"type\", \"value\": \"Guardian\"}"}}
			]}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	}))
	defer server.Close()

	s, _ := NewOpenAIService("test-key", server.URL, "gpt-4o")
	if s.Name() != "openai" {
		t.Errorf("Expected 'openai', got '%s'", s.Name())
	}

	reply, err := s.Converse(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "hi"}},
		Tools:    Definitions(),
	})
	if err != nil {
		t.Fatalf("Converse failed: %v", err)
	}
	if len(reply.ToolCalls) != 1 || reply.ToolCalls[0].Name != ToolRecordField {
		t.Errorf("tool calls lost: %+v", reply.ToolCalls)
	}
	if reply.Usage.TotalTokens != 15 {
		t.Errorf("usage lost: %+v", reply.Usage)
	}
}

func TestOpenAIService_Init(t *testing.T) {
	if _, err := NewOpenAIService("", "", ""); err == nil {
		t.Error("Expected error for empty key")
	}
}

func TestOllamaService(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message": {"content": "which domain?"}, "done": true, "eval_count": 10, "prompt_eval_count": 5}`))
	}))
	defer server.Close()

	os.Setenv("OLLAMA_HOST", server.URL)
	defer os.Unsetenv("OLLAMA_HOST")

	s, _ := NewOllamaService("llama3")
	if s.Name() != "ollama" {
		t.Errorf("Expected 'ollama', got '%s'", s.Name())
	}

	reply, err := s.Converse(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Converse failed: %v", err)
	}
	if reply.Content != "which domain?" {
		t.Errorf("Expected 'which domain?', got '%s'", reply.Content)
	}
}

func TestAnthropicService(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg_123",
			"content": [
				{"type": "text", "text": "noted"},
				{"type": "tool_use", "id": "t1", "name": "record_field", "input": {"field": "type", "value": "Guardian"}}
			],
			"usage": {"input_tokens": 5, "output_tokens": 5}
		}`))
	}))
	defer server.Close()

	s, _ := NewAnthropicService("test-key", "claude-3")
	s.SetBaseURL(server.URL)
	if s.Name() != "anthropic" {
		t.Errorf("Expected 'anthropic', got '%s'", s.Name())
	}

	reply, err := s.Converse(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "hi"}},
		Tools:    Definitions(),
	})
	if err != nil {
		t.Fatalf("Converse failed: %v", err)
	}
	if reply.Content != "noted" {
		t.Errorf("Expected 'noted', got '%s'", reply.Content)
	}
	if len(reply.ToolCalls) != 1 || reply.ToolCalls[0].Name != ToolRecordField {
		t.Fatalf("tool calls lost: %+v", reply.ToolCalls)
	}
}

func TestAnthropicService_NoEmbeddings(t *testing.T) {
	s, _ := NewAnthropicService("test-key", "")
	if _, err := s.Embed(context.Background(), "text"); err == nil {
		t.Error("Expected embeddings to be unsupported")
	}
}

func TestGeminiService_Name(t *testing.T) {
	s, err := NewGeminiService("fake-key", "gemini-pro")
	if err != nil {
		t.Logf("Skipping Gemini Name test due to client init error: %v", err)
		return
	}
	if s.Name() != "gemini" {
		t.Errorf("Expected 'gemini', got '%s'", s.Name())
	}
}

func TestFallbackService(t *testing.T) {
	dead := &failingService{}
	alive := NewStubService()

	f := NewFallbackService(dead, alive)
	if f.Name() != "err+stub" {
		t.Errorf("unexpected name: %s", f.Name())
	}

	reply, err := f.Converse(context.Background(), Request{})
	if err != nil {
		t.Fatalf("fallback should have answered: %v", err)
	}
	if reply.Content == "" {
		t.Error("expected the stub's scripted reply")
	}

	both := NewFallbackService(&failingService{}, &failingService{})
	if _, err := both.Converse(context.Background(), Request{}); err == nil {
		t.Error("both providers down must surface an error")
	}
}

func TestFallbackServiceCanceledContext(t *testing.T) {
	f := NewFallbackService(&failingService{}, NewStubService())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A canceled context must not trigger the fallback.
	if _, err := f.Converse(ctx, Request{}); err == nil {
		t.Error("expected the primary's error to surface")
	}
}

type failingService struct{}

func (failingService) Converse(context.Context, Request) (*Reply, error) {
	return nil, errors.New("unreachable")
}

func (failingService) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("unreachable")
}

func (failingService) Name() string { return "err" }
