// Package dialogue defines the contract to the external language-model
// dialogue service and the adapters implementing it. Tool calls coming back
// from a provider are parsed into a closed union at this boundary; nothing
// past it handles untyped payloads.
package dialogue

import (
	"context"
)

// Message is one wire-level conversation entry sent to a provider.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // for tool results
}

// ToolCall is a raw tool request emitted by the model within a turn.
type ToolCall struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Args string `json:"args"`
}

// Usage reports token consumption for one exchange.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Reply is the model's output for one turn. Completeness, when the provider
// supplies it, is the model's own estimate in [0,1] of how finished the
// catalog entry is; FollowUps are suggested next questions.
type Reply struct {
	Content      string     `json:"content"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	Completeness *float64   `json:"completeness,omitempty"`
	FollowUps    []string   `json:"follow_ups,omitempty"`
	Usage        Usage      `json:"usage"`
}

// ToolDefinition describes a tool the model may invoke, in JSON-schema form.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// Request carries one turn's outbound context.
type Request struct {
	Messages []Message
	Tools    []ToolDefinition
}

// Service is the dialogue service adapter.
type Service interface {
	// Converse sends the assembled turn context and returns the reply.
	Converse(ctx context.Context, req Request) (*Reply, error)

	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Name returns the provider identifier (e.g., "stub", "openai").
	Name() string
}
