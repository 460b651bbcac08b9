package llm

import (
	"context"
	"sync"

	"github.com/bassam-ai/bassam/internal/domain"
)

const testCredential = "test-credential-0123"

func cloudDesc(name string, cost, quality int) domain.ProviderDescriptor {
	return domain.ProviderDescriptor{
		Name: name, Kind: domain.ProviderCloudHosted,
		CostTier: cost, QualityScore: quality, MaxTokens: 1024,
		SupportsArabic: true, CredentialRef: testCredential,
	}
}

func localDesc(name string, cost, quality int) domain.ProviderDescriptor {
	return domain.ProviderDescriptor{
		Name: name, Kind: domain.ProviderLocalHosted,
		CostTier: cost, QualityScore: quality, Endpoint: "http://127.0.0.1:11434",
	}
}

// callLog records provider attempts in order.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(name string) {
	l.mu.Lock()
	l.calls = append(l.calls, name)
	l.mu.Unlock()
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type fakeProvider struct {
	desc       domain.ProviderDescriptor
	log        *callLog
	generateFn func(ctx context.Context, prompt string, maxTokens int) (Completion, error)
}

func (f *fakeProvider) Descriptor() domain.ProviderDescriptor { return f.desc }

func (f *fakeProvider) Generate(ctx context.Context, prompt string, maxTokens int) (Completion, error) {
	if f.log != nil {
		f.log.add(f.desc.Name)
	}
	if f.generateFn != nil {
		return f.generateFn(ctx, prompt, maxTokens)
	}
	return Completion{Text: "answer from " + f.desc.Name, Tokens: 10}, nil
}

type fakeLocal struct {
	fakeProvider
	probeFn func(ctx context.Context) error
}

func (f *fakeLocal) Probe(ctx context.Context) error {
	if f.probeFn != nil {
		return f.probeFn(ctx)
	}
	return nil
}

func failing(err error) func(context.Context, string, int) (Completion, error) {
	return func(context.Context, string, int) (Completion, error) { return Completion{}, err }
}
