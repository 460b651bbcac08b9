package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/bassam-ai/bassam/internal/domain"
)

// OpenAIConfig holds settings for an OpenAI-compatible provider.
type OpenAIConfig struct {
	Descriptor domain.ProviderDescriptor
	BaseURL    string // e.g. https://api.perplexity.ai or http://localhost:11434/v1
	Model      string
	ProbeURL   string // local servers only: base for GET /api/tags
	HTTPClient *http.Client
}

// OpenAIProvider talks to any endpoint that speaks the chat completions API.
type OpenAIProvider struct {
	client   *openai.Client
	http     *http.Client
	desc     domain.ProviderDescriptor
	model    string
	probeURL string
}

// NewOpenAIProvider creates an OpenAI-compatible provider.
func NewOpenAIProvider(cfg *OpenAIConfig) *OpenAIProvider {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	clientCfg := openai.DefaultConfig(cfg.Descriptor.CredentialRef)
	clientCfg.BaseURL = cfg.BaseURL
	clientCfg.HTTPClient = hc

	return &OpenAIProvider{
		client:   openai.NewClientWithConfig(clientCfg),
		http:     hc,
		desc:     cfg.Descriptor,
		model:    cfg.Model,
		probeURL: cfg.ProbeURL,
	}
}

// Descriptor implements Provider.
func (p *OpenAIProvider) Descriptor() domain.ProviderDescriptor { return p.desc }

// Generate implements Provider.
func (p *OpenAIProvider) Generate(ctx context.Context, prompt string, maxTokens int) (Completion, error) {
	req := openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if maxTokens > 0 {
		req.MaxTokens = maxTokens
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Completion{}, p.parseAPIError(err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return Completion{}, domain.NewProviderError(p.desc.Name, errors.New("empty completion"))
	}
	return Completion{
		Text:   strings.TrimSpace(resp.Choices[0].Message.Content),
		Tokens: resp.Usage.TotalTokens,
	}, nil
}

// Probe implements Prober. Cloud endpoints have nothing to probe.
func (p *OpenAIProvider) Probe(ctx context.Context) error {
	if p.probeURL == "" {
		return nil
	}
	if err := probeTags(ctx, p.http, p.probeURL); err != nil {
		return domain.NewProviderError(p.desc.Name, fmt.Errorf("probe: %w", err))
	}
	return nil
}

// parseAPIError extracts a readable message from the API response.
func (p *OpenAIProvider) parseAPIError(err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return domain.NewProviderError(p.desc.Name, fmt.Errorf("API error %d: %s", reqErr.HTTPStatusCode, detail))
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return domain.NewProviderError(p.desc.Name, fmt.Errorf("API error %d: %s", apiErr.HTTPStatusCode, apiErr.Message))
	}

	return domain.NewProviderError(p.desc.Name, fmt.Errorf("request failed: %w", err))
}

// extractDetail reads the "detail" (HF router) or "error" string field of an error body.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if json.Unmarshal(body, &parsed) != nil {
		return ""
	}
	if parsed.Detail != "" {
		return parsed.Detail
	}
	return parsed.Error
}
