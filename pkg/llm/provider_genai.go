package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GenaiProvider calls Google's Gemini models via google.golang.org/genai.
// The token passed to Generate/Embed is ignored — genai authenticates with
// the API key baked in at construction — but is accepted to satisfy the
// Provider interface uniformly for providers that do need a per-call bearer
// token.
type GenaiProvider struct {
	client *genai.Client
}

// NewGenaiProvider constructs a provider bound to a single API key.
func NewGenaiProvider(ctx context.Context, apiKey string) (*GenaiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	return &GenaiProvider{client: client}, nil
}

func (p *GenaiProvider) Generate(ctx context.Context, req Request, _ string) (*Response, error) {
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{genai.NewPartFromText(req.UserPrompt)},
		},
	}

	config := &genai.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{genai.NewPartFromText(req.SystemPrompt)},
		}
	}
	if req.Temperature > 0 {
		t := float32(req.Temperature)
		config.Temperature = &t
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}

	model := req.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}

	resp, err := p.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("genai generate (model: %s): %w", model, err)
	}

	var usage genai.GenerateContentResponseUsageMetadata
	if resp.UsageMetadata != nil {
		usage = *resp.UsageMetadata
	}

	return &Response{
		Text:         resp.Text(),
		TokensInput:  int(usage.PromptTokenCount),
		TokensOutput: int(usage.CandidatesTokenCount),
		TokensTotal:  int(usage.TotalTokenCount),
	}, nil
}

func (p *GenaiProvider) Embed(ctx context.Context, text string, _ string) ([]float32, error) {
	contents := []*genai.Content{
		{Parts: []*genai.Part{genai.NewPartFromText(text)}},
	}
	resp, err := p.client.Models.EmbedContent(ctx, "text-embedding-004", contents, nil)
	if err != nil {
		return nil, fmt.Errorf("genai embed: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("genai embed: empty response")
	}
	return resp.Embeddings[0].Values, nil
}
