package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"
)

type geminiConfig struct {
	APIKey string `json:"api_key"`
	// Dimensions truncates vectors server side. Zero keeps the model default.
	Dimensions int `json:"dimensions"`
}

// geminiEmbedProvider creates its client on first use so a missing key only
// fails the calls that need it.
type geminiEmbedProvider struct {
	apiKey     string
	dimensions int32

	once      sync.Once
	client    *genai.Client
	clientErr error
}

func (p *geminiEmbedProvider) Name() string {
	return "gemini"
}

func (p *geminiEmbedProvider) genaiClient(ctx context.Context) (*genai.Client, error) {
	p.once.Do(func() {
		p.client, p.clientErr = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  p.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
	})
	return p.client, p.clientErr
}

func (p *geminiEmbedProvider) embedConfig(taskType string) *genai.EmbedContentConfig {
	if taskType == "" && p.dimensions == 0 {
		return nil
	}
	cfg := &genai.EmbedContentConfig{TaskType: taskType}
	if p.dimensions > 0 {
		dims := p.dimensions
		cfg.OutputDimensionality = &dims
	}
	return cfg
}

func (p *geminiEmbedProvider) Embed(ctx context.Context, model string, text string, taskType string) ([]float32, error) {
	if p.apiKey == "" {
		return nil, ErrUnavailable
	}
	client, err := p.genaiClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}
	resp, err := client.Models.EmbedContent(ctx, model, contents, p.embedConfig(taskType))
	if err != nil {
		return nil, fmt.Errorf("gemini embed %s: %w", model, err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("gemini embed %s: empty response", model)
	}
	return resp.Embeddings[0].Values, nil
}

func createGeminiEmbedFactory(args interface{}) (IEmbedProvider, error) {
	cfg := &geminiConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.Dimensions < 0 {
		return nil, fmt.Errorf("gemini: dimensions must not be negative")
	}
	return &geminiEmbedProvider{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		dimensions: int32(cfg.Dimensions),
	}, nil
}

func init() {
	RegisterEmbed("gemini", createGeminiEmbedFactory)
}
