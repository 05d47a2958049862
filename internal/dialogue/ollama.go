package dialogue

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/ollama/ollama/api"
)

type OllamaService struct {
	client *api.Client
	model  string
}

func NewOllamaService(model string) (*OllamaService, error) {
	if model == "" {
		model = "llama3.2"
	}

	baseURL := "http://localhost:11434"
	if envURL := os.Getenv("OLLAMA_HOST"); envURL != "" {
		baseURL = envURL
	}
	uri, _ := url.Parse(baseURL)
	client := api.NewClient(uri, http.DefaultClient)

	return &OllamaService{
		client: client,
		model:  model,
	}, nil
}

func (p *OllamaService) Name() string {
	return "ollama"
}

func (p *OllamaService) Converse(ctx context.Context, req Request) (*Reply, error) {
	var apiMsgs []api.Message
	for _, m := range req.Messages {
		apiMsgs = append(apiMsgs, api.Message{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	tools := make([]api.Tool, 0, len(req.Tools))
	for _, def := range req.Tools {
		tools = append(tools, toOllamaTool(def))
	}

	chatReq := &api.ChatRequest{
		Model:    p.model,
		Messages: apiMsgs,
		Stream:   new(bool), // false
		Tools:    tools,
	}

	var respContent string
	var totalTokens int
	var toolCalls []ToolCall

	err := p.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		respContent += resp.Message.Content
		if resp.Done {
			totalTokens = resp.EvalCount + resp.PromptEvalCount
		}

		for _, tc := range resp.Message.ToolCalls {
			argsBytes, _ := json.Marshal(tc.Function.Arguments)
			toolCalls = append(toolCalls, ToolCall{
				ID:   "call_" + tc.Function.Name,
				Name: tc.Function.Name,
				Args: string(argsBytes),
			})
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("ollama chat failed: %w", err)
	}

	return &Reply{
		Content:   respContent,
		ToolCalls: toolCalls,
		Usage:     usageFromTokens(totalTokens),
	}, nil
}

func toOllamaTool(def ToolDefinition) api.Tool {
	props := api.NewToolPropertiesMap()
	var required []string

	if rawProps, ok := def.Parameters["properties"].(map[string]interface{}); ok {
		for name, raw := range rawProps {
			prop, _ := raw.(map[string]interface{})
			typ := "string"
			if t, _ := prop["type"].(string); t != "" {
				typ = t
			}
			desc, _ := prop["description"].(string)
			props.Set(name, api.ToolProperty{
				Type:        api.PropertyType{typ},
				Description: desc,
			})
		}
	}
	if req, ok := def.Parameters["required"].([]string); ok {
		required = req
	}

	return api.Tool{
		Type: "function",
		Function: api.ToolFunction{
			Name:        def.Name,
			Description: def.Description,
			Parameters: api.ToolFunctionParameters{
				Type:       "object",
				Properties: props,
				Required:   required,
			},
		},
	}
}

func usageFromTokens(total int) Usage {
	return Usage{
		TotalTokens:      total,
		PromptTokens:     0,
		CompletionTokens: total,
	}
}

func (p *OllamaService) Embed(ctx context.Context, text string) ([]float32, error) {
	req := &api.EmbeddingRequest{
		Model:  p.model,
		Prompt: text,
	}
	resp, err := p.client.Embeddings(ctx, req)
	if err != nil {
		return nil, err
	}
	vec := make([]float32, len(resp.Embedding))
	for i, v := range resp.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}
