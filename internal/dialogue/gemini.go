package dialogue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

type GeminiService struct {
	client *genai.Client
	model  string
}

func NewGeminiService(apiKey, model string) (*GeminiService, error) {
	if apiKey == "" {
		return nil, errors.New("API key is required")
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	if model == "" {
		model = "gemini-1.5-pro-latest"
	}

	return &GeminiService{
		client: client,
		model:  model,
	}, nil
}

func (p *GeminiService) Name() string {
	return "gemini"
}

func (p *GeminiService) Converse(ctx context.Context, req Request) (*Reply, error) {
	geminiModel := p.client.GenerativeModel(p.model)

	var decls []*genai.FunctionDeclaration
	for _, def := range req.Tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  toGeminiSchema(def.Parameters),
		})
	}
	geminiModel.Tools = []*genai.Tool{{FunctionDeclarations: decls}}

	cs := geminiModel.StartChat()

	messages := req.Messages
	if len(messages) == 0 {
		return nil, fmt.Errorf("empty request")
	}

	var history []*genai.Content
	for _, m := range messages[:len(messages)-1] {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}

		content := &genai.Content{Role: role}

		if m.ToolCallID != "" {
			content.Role = "user"
			content.Parts = append(content.Parts, genai.FunctionResponse{
				Name:     m.ToolCallID,
				Response: map[string]any{"result": m.Content},
			})
		} else {
			if m.Content != "" {
				content.Parts = append(content.Parts, genai.Text(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var args map[string]any
				json.Unmarshal([]byte(tc.Args), &args)
				content.Parts = append(content.Parts, genai.FunctionCall{
					Name: tc.Name,
					Args: args,
				})
			}
		}
		history = append(history, content)
	}
	cs.History = history

	lastMsg := messages[len(messages)-1]
	resp, err := cs.SendMessage(ctx, genai.Text(lastMsg.Content))
	if err != nil {
		return nil, fmt.Errorf("gemini completion failed: %w", err)
	}

	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("no candidates returned")
	}
	cand := resp.Candidates[0]

	var contentStr string
	var toolCalls []ToolCall

	for _, part := range cand.Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			contentStr += string(v)
		case genai.FunctionCall:
			argsBytes, _ := json.Marshal(v.Args)
			toolCalls = append(toolCalls, ToolCall{
				ID:   v.Name,
				Name: v.Name,
				Args: string(argsBytes),
			})
		}
	}

	usage := Usage{}
	if resp.UsageMetadata != nil {
		usage = Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}

	return &Reply{
		Content:   contentStr,
		ToolCalls: toolCalls,
		Usage:     usage,
	}, nil
}

// toGeminiSchema converts the JSON-schema style parameter map used by
// ToolDefinition into the genai schema type.
func toGeminiSchema(params map[string]interface{}) *genai.Schema {
	schema := &genai.Schema{Type: genai.TypeObject}

	if props, ok := params["properties"].(map[string]interface{}); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			prop, _ := raw.(map[string]interface{})
			child := &genai.Schema{Type: genai.TypeString}
			if t, _ := prop["type"].(string); t == "number" {
				child.Type = genai.TypeNumber
			}
			if d, _ := prop["description"].(string); d != "" {
				child.Description = d
			}
			schema.Properties[name] = child
		}
	}
	if required, ok := params["required"].([]string); ok {
		schema.Required = required
	}
	return schema
}

func (p *GeminiService) Embed(ctx context.Context, text string) ([]float32, error) {
	em := p.client.EmbeddingModel("text-embedding-004")
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, err
	}
	if res.Embedding == nil {
		return nil, fmt.Errorf("no embedding returned")
	}
	return res.Embedding.Values, nil
}
