package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/bassam-ai/bassam/internal/domain"
)

// GeminiConfig holds settings for the Gemini provider.
type GeminiConfig struct {
	Descriptor domain.ProviderDescriptor
	Model      string
	BaseURL    string // optional override, used by tests
	HTTPClient *http.Client
}

// GeminiProvider calls Gemini through the genai SDK.
type GeminiProvider struct {
	client *genai.Client
	desc   domain.ProviderDescriptor
	model  string
}

// NewGeminiProvider creates the genai client. It does not contact the API.
func NewGeminiProvider(ctx context.Context, cfg *GeminiConfig) (*GeminiProvider, error) {
	cc := &genai.ClientConfig{
		APIKey:     cfg.Descriptor.CredentialRef,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiProvider{client: client, desc: cfg.Descriptor, model: cfg.Model}, nil
}

// Descriptor implements Provider.
func (p *GeminiProvider) Descriptor() domain.ProviderDescriptor { return p.desc }

// Generate implements Provider.
func (p *GeminiProvider) Generate(ctx context.Context, prompt string, maxTokens int) (Completion, error) {
	var gc *genai.GenerateContentConfig
	if maxTokens > 0 {
		gc = &genai.GenerateContentConfig{MaxOutputTokens: int32(maxTokens)} //nolint:gosec // bounded by config
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), gc)
	if err != nil {
		return Completion{}, domain.NewProviderError(p.desc.Name, fmt.Errorf("generate content: %w", err))
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return Completion{}, domain.NewProviderError(p.desc.Name, errors.New("empty completion"))
	}
	var tokens int
	if resp.UsageMetadata != nil {
		tokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	return Completion{Text: text, Tokens: tokens}, nil
}
