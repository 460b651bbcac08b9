// Package llm gives uniform access to heterogeneous language-model providers.
//
// Every provider kind implements Provider with its own transport: the
// Gemini SDK, the Anthropic Messages API, or an OpenAI-compatible endpoint
// (Perplexity, Hugging Face router, Ollama, a local llama.cpp server).
package llm

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/bassam-ai/bassam/internal/domain"
)

// Transport names a provider implementation.
type Transport string

// Provider transports.
const (
	TransportGemini    Transport = "gemini"
	TransportAnthropic Transport = "anthropic"
	TransportOpenAI    Transport = "openai"
)

// Completion is the raw result of one provider call.
type Completion struct {
	Text   string
	Tokens int // 0 when the provider did not report usage
}

// Provider is one backend that turns a prompt into text.
type Provider interface {
	Descriptor() domain.ProviderDescriptor
	Generate(ctx context.Context, prompt string, maxTokens int) (Completion, error)
}

// Prober is implemented by local providers whose availability is checked over the network.
type Prober interface {
	Probe(ctx context.Context) error
}

// DefaultProbeTimeout bounds a local provider probe.
const DefaultProbeTimeout = 2 * time.Second

// probeTags checks that a local model server answers GET <base>/api/tags.
func probeTags(ctx context.Context, client *http.Client, base string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+"/api/tags", http.NoBody)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return &statusError{code: resp.StatusCode}
	}
	return nil
}

type statusError struct{ code int }

func (e *statusError) Error() string { return "unexpected status " + http.StatusText(e.code) }

// wordCount estimates tokens for providers that do not report usage.
func wordCount(s string) int { return len(strings.Fields(s)) }
