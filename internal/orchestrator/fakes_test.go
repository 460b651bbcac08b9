package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bassam-ai/bassam/internal/classifier"
	"github.com/bassam-ai/bassam/internal/domain"
	"github.com/bassam-ai/bassam/internal/ledger"
	"github.com/bassam-ai/bassam/internal/llm"
	"github.com/bassam-ai/bassam/internal/mathskill"
	"github.com/bassam-ai/bassam/internal/session"
)

type mapCache struct {
	mu      sync.Mutex
	entries map[string]domain.CacheEntry
	stores  int
}

func newMapCache() *mapCache { return &mapCache{entries: make(map[string]domain.CacheEntry)} }

func (c *mapCache) Lookup(_ context.Context, q string) (domain.CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[q]
	return e, ok
}

func (c *mapCache) Store(_ context.Context, q string, ans domain.Answer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stores++
	c.entries[q] = domain.CacheEntry{QueryText: q, Answer: ans, ProviderName: ans.Provider, CreatedAt: time.Now()}
	return nil
}

type fakeProvider struct {
	name       string
	mu         sync.Mutex
	prompts    []string
	generateFn func(ctx context.Context, prompt string) (llm.Completion, error)
}

func (f *fakeProvider) Descriptor() domain.ProviderDescriptor {
	return domain.ProviderDescriptor{
		Name: f.name, Kind: domain.ProviderCloudHosted, CostTier: 1, QualityScore: 5,
		SupportsArabic: true, CredentialRef: "test-credential-0123",
	}
}

func (f *fakeProvider) Generate(ctx context.Context, prompt string, _ int) (llm.Completion, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.generateFn != nil {
		return f.generateFn(ctx, prompt)
	}
	return llm.Completion{Text: "الذكاء الاصطناعي فرع من علوم الحاسوب.", Tokens: 12}, nil
}

func (f *fakeProvider) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

var errDown = errors.New("provider down")

func downProvider(name string) *fakeProvider {
	return &fakeProvider{name: name, generateFn: func(context.Context, string) (llm.Completion, error) {
		return llm.Completion{}, errDown
	}}
}

type fakeSearcher struct {
	hits  []domain.Hit
	err   error
	calls int
	lastK int
}

func (s *fakeSearcher) Search(ctx context.Context, _ string, k int) ([]domain.Hit, error) {
	domain.UsageFromContext(ctx).AddSearchCall()
	s.calls++
	s.lastK = k
	if s.err != nil {
		return nil, s.err
	}
	return s.hits[:min(k, len(s.hits))], nil
}

type fakeFetcher struct {
	pages   map[string]string
	fetched []string
	delay   time.Duration
}

func (f *fakeFetcher) FetchClean(ctx context.Context, url string) string {
	domain.UsageFromContext(ctx).AddFetchCall()
	f.fetched = append(f.fetched, url)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return f.pages[url]
		}
	}
	return f.pages[url]
}

type fakeRetriever struct {
	docs []domain.Document
	err  error
}

func (r *fakeRetriever) Retrieve(string, int) ([]domain.Document, error) { return r.docs, r.err }

type buildSpy struct {
	mu    sync.Mutex
	total time.Duration
}

func (b *buildSpy) AddBuildTime(d time.Duration) {
	b.mu.Lock()
	b.total += d
	b.mu.Unlock()
}

type harness struct {
	orch     *Orchestrator
	cache    *mapCache
	ledger   *ledger.Ledger
	search   *fakeSearcher
	fetch    *fakeFetcher
	sessions *session.Store
	build    *buildSpy
}

func newHarness(providers []llm.Provider, mutate ...func(*Deps, *Config)) *harness {
	log := zap.NewNop()
	h := &harness{
		cache:    newMapCache(),
		ledger:   ledger.New(nil, log),
		search:   &fakeSearcher{},
		fetch:    &fakeFetcher{pages: map[string]string{}},
		sessions: session.NewStore(log),
		build:    &buildSpy{},
	}
	registry := llm.NewRegistry(context.Background(), providers, llm.RegistryConfig{}, log)
	deps := Deps{
		Cache:      h.cache,
		Classifier: classifier.New(),
		Math:       mathskill.New(),
		LLM:        llm.NewDispatcher(registry, h.ledger, time.Second, log),
		Search:     h.search,
		Fetch:      h.fetch,
		Local:      &fakeRetriever{err: domain.ErrNotFound},
		Sessions:   h.sessions,
		Build:      h.build,
	}
	cfg := Config{MaxTokens: 256}
	for _, m := range mutate {
		m(&deps, &cfg)
	}
	h.orch = New(deps, cfg, log)
	return h
}
