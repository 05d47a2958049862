package dialogue

import (
	"context"
	"hash/fnv"
)

// StubService replays scripted replies. It backs tests and the offline demo
// provider.
type StubService struct {
	Replies []Reply
	// Final is returned once the script runs out.
	Final Reply
}

// NewStubService returns a stub that walks a short cataloging interview.
func NewStubService() *StubService {
	conf := func(v float64) *float64 { return &v }
	return &StubService{
		Replies: []Reply{
			{
				Content: "Welcome to the archive. What kind of entity are we cataloging today?",
				Usage:   Usage{PromptTokens: 80, CompletionTokens: 18, TotalTokens: 98},
			},
			{
				Content: "A guardian, noted. Which domain does it watch over?",
				ToolCalls: []ToolCall{
					{ID: "call_1", Name: ToolRecordField, Args: `{"field": "type", "value": "Guardian"}`},
				},
				Completeness: conf(0.3),
				FollowUps:    []string{"Which domain does it watch over?"},
				Usage:        Usage{PromptTokens: 120, CompletionTokens: 30, TotalTokens: 150},
			},
			{
				Content: "The Dream Threshold, recorded. Describe its appearance and bearing.",
				ToolCalls: []ToolCall{
					{ID: "call_2", Name: ToolRecordField, Args: `{"field": "domain", "value": "Dream Threshold"}`},
				},
				Completeness: conf(0.6),
				FollowUps:    []string{"Describe its appearance and bearing."},
				Usage:        Usage{PromptTokens: 160, CompletionTokens: 32, TotalTokens: 192},
			},
			{
				Content: "A fine portrait. The entry looks ready for the archive.",
				ToolCalls: []ToolCall{
					{ID: "call_3", Name: ToolRecordField, Args: `{"field": "description", "value": "A tall sentinel wrapped in drifting veils of half-remembered dreams."}`},
				},
				Completeness: conf(0.95),
				Usage:        Usage{PromptTokens: 200, CompletionTokens: 40, TotalTokens: 240},
			},
		},
		Final: Reply{
			Content: "The entry looks ready for the archive.",
			Usage:   Usage{PromptTokens: 200, CompletionTokens: 12, TotalTokens: 212},
		},
	}
}

func (s *StubService) Converse(ctx context.Context, req Request) (*Reply, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if len(s.Replies) == 0 {
		reply := s.Final
		return &reply, nil
	}

	reply := s.Replies[0]
	s.Replies = s.Replies[1:]
	return &reply, nil
}

// Embed hashes the text into a small deterministic vector so similarity
// ranking is stable in tests.
func (s *StubService) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, 8)
	h := fnv.New32a()
	for i := range vec {
		h.Write([]byte(text))
		h.Write([]byte{byte(i)})
		vec[i] = float32(h.Sum32()%1000) / 1000
	}
	return vec, nil
}

func (s *StubService) Name() string {
	return "stub"
}
