package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bassam-ai/bassam/internal/domain"
)

const (
	anthropicVersion   = "2023-06-01"
	anthropicDefTokens = 1024
)

// AnthropicConfig holds settings for the Messages API provider.
type AnthropicConfig struct {
	Descriptor domain.ProviderDescriptor
	BaseURL    string // https://api.anthropic.com
	Model      string
	HTTPClient *http.Client
}

// AnthropicProvider calls the Anthropic Messages API.
type AnthropicProvider struct {
	http    *http.Client
	desc    domain.ProviderDescriptor
	baseURL string
	model   string
}

// NewAnthropicProvider creates the provider.
func NewAnthropicProvider(cfg *AnthropicConfig) *AnthropicProvider {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &AnthropicProvider{
		http:    hc,
		desc:    cfg.Descriptor,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
	}
}

// Descriptor implements Provider.
func (p *AnthropicProvider) Descriptor() domain.ProviderDescriptor { return p.desc }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Generate implements Provider.
func (p *AnthropicProvider) Generate(ctx context.Context, prompt string, maxTokens int) (Completion, error) {
	if maxTokens <= 0 {
		maxTokens = anthropicDefTokens
	}
	body, err := json.Marshal(anthropicRequest{
		Model:     p.model,
		MaxTokens: maxTokens,
		Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return Completion{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return Completion{}, domain.NewProviderError(p.desc.Name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.desc.CredentialRef)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.http.Do(req)
	if err != nil {
		return Completion{}, domain.NewProviderError(p.desc.Name, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return Completion{}, domain.NewProviderError(p.desc.Name, fmt.Errorf("read body: %w", err))
	}

	var parsed anthropicResponse
	decodeErr := json.Unmarshal(raw, &parsed)

	if resp.StatusCode/100 != 2 {
		msg := strings.TrimSpace(string(raw))
		if decodeErr == nil && parsed.Error != nil {
			msg = parsed.Error.Type + ": " + parsed.Error.Message
		}
		return Completion{}, domain.NewProviderError(p.desc.Name, fmt.Errorf("API error %d: %s", resp.StatusCode, msg))
	}
	if decodeErr != nil {
		return Completion{}, domain.NewProviderError(p.desc.Name, fmt.Errorf("decode response: %w", decodeErr))
	}

	var sb strings.Builder
	for _, c := range parsed.Content {
		if c.Type == "text" {
			sb.WriteString(c.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return Completion{}, domain.NewProviderError(p.desc.Name, errors.New("empty completion"))
	}
	return Completion{Text: text, Tokens: parsed.Usage.InputTokens + parsed.Usage.OutputTokens}, nil
}
