// Package orchestrator routes each query through identity, cache, math,
// research and general answering, and records the result.
package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/bassam-ai/bassam/internal/domain"
	"github.com/bassam-ai/bassam/internal/llm"
	"github.com/bassam-ai/bassam/internal/logger"
	"github.com/bassam-ai/bassam/internal/metrics"
	"github.com/bassam-ai/bassam/internal/summarize"
	"github.com/bassam-ai/bassam/internal/textnorm"
)

// Defaults applied by New.
const (
	DefaultRequestTimeout = 45 * time.Second
	DefaultMaxSources     = 3
	localTopK             = 3
)

// Cache is the answer cache.
type Cache interface {
	Lookup(ctx context.Context, query string) (domain.CacheEntry, bool)
	Store(ctx context.Context, query string, answer domain.Answer) error
}

// Classifier labels a query.
type Classifier interface {
	Classify(text string) domain.Classification
}

// MathSolver answers math questions without a model.
type MathSolver interface {
	LooksLikeMath(text string) bool
	Solve(text string) (string, error)
}

// Dispatcher generates text through the provider chain.
type Dispatcher interface {
	Generate(ctx context.Context, req llm.Request) domain.DispatchOutcome
}

// Searcher returns ranked web hits.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]domain.Hit, error)
}

// Fetcher returns cleaned page text, or "" on failure.
type Fetcher interface {
	FetchClean(ctx context.Context, url string) string
}

// Retriever searches the local corpus.
type Retriever interface {
	Retrieve(query string, topK int) ([]domain.Document, error)
}

// Sessions records conversation turns.
type Sessions interface {
	Acquire(id string) (release func())
	Append(id string, role domain.Role, content string, intent domain.Intent)
	Record(ctx context.Context, id string, tokens int)
}

// BuildClock accumulates request wall time in the monthly ledger.
type BuildClock interface {
	AddBuildTime(d time.Duration)
}

// Deps are the collaborators of an Orchestrator. Search, Fetch, Local,
// Sessions and Build are optional.
type Deps struct {
	Cache      Cache
	Classifier Classifier
	Math       MathSolver
	LLM        Dispatcher
	Search     Searcher
	Fetch      Fetcher
	Local      Retriever
	Sessions   Sessions
	Build      BuildClock
}

// Config tunes an Orchestrator.
type Config struct {
	RequestTimeout time.Duration
	MaxSources     int
	MaxTokens      int
}

// Orchestrator is safe for concurrent use.
type Orchestrator struct {
	deps   Deps
	cfg    Config
	flight singleflight.Group
	logger *zap.Logger
}

// New creates an Orchestrator.
func New(deps Deps, cfg Config, logger *zap.Logger) *Orchestrator {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.MaxSources <= 0 {
		cfg.MaxSources = DefaultMaxSources
	}
	return &Orchestrator{deps: deps, cfg: cfg, logger: logger}
}

// Answer resolves one query. It never fails: model-level problems come back
// as an answer with Success=false and the fixed fallback text.
func (o *Orchestrator) Answer(ctx context.Context, q domain.Query) domain.Answer {
	start := time.Now()
	log := logger.FromContext(ctx, o.logger)
	text := textnorm.Normalize(q.RawText)

	if IsIdentityQuery(text) {
		metrics.RoutesTotal.WithLabelValues(string(domain.RouteIdentity)).Inc()
		return domain.Answer{Text: Bio, Route: domain.RouteIdentity, Success: true, Latency: time.Since(start)}
	}

	if q.SessionID != "" && o.deps.Sessions != nil {
		release := o.deps.Sessions.Acquire(q.SessionID)
		defer release()
	}

	// The shared resolution outlives any single caller; each caller only
	// stops waiting when its own context ends.
	ch := o.flight.DoChan(flightKey(text, q.Options), func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.RequestTimeout)
		defer cancel()
		return o.resolve(fctx, text, q.Options), nil
	})

	var ans resolved
	select {
	case res := <-ch:
		ans = res.Val.(resolved)
		if res.Shared {
			log.Debug("Answer shared with a concurrent identical query")
		}
	case <-ctx.Done():
		log.Info("Query abandoned by caller", zap.Error(ctx.Err()), zap.Duration("elapsed", time.Since(start)))
		return domain.Answer{
			Text:     llm.FallbackText,
			Route:    domain.RouteGeneral,
			Provider: llm.FallbackProvider,
			Latency:  time.Since(start),
		}
	}

	ans.Latency = time.Since(start)
	metrics.RoutesTotal.WithLabelValues(string(ans.Route)).Inc()
	o.record(context.WithoutCancel(ctx), q, text, ans)

	log.Info("Query answered",
		zap.String("route", string(ans.Route)),
		zap.String("provider", ans.Provider),
		zap.Bool("from_cache", ans.FromCache),
		zap.Bool("success", ans.Success),
		zap.Int("sources", len(ans.Sources)),
		zap.Duration("elapsed", ans.Latency))
	return ans.Answer
}

type resolved struct {
	domain.Answer
	intent domain.Intent
}

func (o *Orchestrator) resolve(ctx context.Context, text string, opts domain.Options) resolved {
	if entry, ok := o.deps.Cache.Lookup(ctx, text); ok {
		ans := entry.Answer
		ans.FromCache = true
		ans.Route = domain.RouteCache
		ans.Classification = nil
		return resolved{Answer: ans}
	}

	cls := o.deps.Classifier.Classify(text)
	var ans domain.Answer
	switch {
	case cls.Intent == domain.IntentMathematical || o.deps.Math.LooksLikeMath(text):
		cls.Intent = domain.IntentMathematical
		ans = o.math(text)
	case cls.NeedsResearch || opts.WantPrices:
		ans = o.research(ctx, text, cls, opts)
	default:
		ans = o.general(ctx, text, cls, opts)
	}
	ans.Classification = &cls

	if ans.Success && ans.Route != domain.RouteMath {
		if err := o.deps.Cache.Store(context.WithoutCancel(ctx), text, ans); err != nil {
			logger.FromContext(ctx, o.logger).Warn("Answer cache store failed", zap.Error(err))
		}
	}
	return resolved{Answer: ans, intent: cls.Intent}
}

func (o *Orchestrator) math(text string) domain.Answer {
	out, err := o.deps.Math.Solve(text)
	return domain.Answer{Text: out, Route: domain.RouteMath, Success: err == nil}
}

func (o *Orchestrator) research(ctx context.Context, text string, cls domain.Classification, opts domain.Options) domain.Answer {
	log := logger.FromContext(ctx, o.logger)
	ans := domain.Answer{Route: domain.RouteResearch}

	var passages []domain.Passage
	if o.deps.Search != nil && o.deps.Fetch != nil {
		hits, err := o.deps.Search.Search(ctx, text, 2*o.cfg.MaxSources)
		if err != nil {
			log.Warn("Web search failed", zap.Error(err))
		}
		for _, h := range hits[:min(o.cfg.MaxSources, len(hits))] {
			if ctx.Err() != nil {
				break
			}
			body := o.deps.Fetch.FetchClean(ctx, h.URL)
			if body == "" {
				continue
			}
			passages = append(passages, domain.Passage{URL: h.URL, Title: h.Title, Text: body})
			ans.Sources = append(ans.Sources, domain.Source{Title: h.Title, URL: h.URL})
		}
	}

	if o.deps.Local != nil {
		docs, err := o.deps.Local.Retrieve(text, localTopK)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			log.Warn("Local retrieval failed", zap.Error(err))
		}
		for _, d := range docs {
			passages = append(passages, domain.Passage{URL: d.Path, Title: filepath.Base(d.Path), Text: d.Content})
		}
	}

	out := o.deps.LLM.Generate(ctx, llm.Request{
		Prompt:    enrichmentPrompt(text, passages, opts.WantPrices),
		MaxTokens: o.maxTokens(opts),
		Provider:  opts.ForceProvider,
	})
	if out.Success {
		ans.Text = out.Text
		ans.Provider = out.ProviderName
		ans.TokensUsed = out.TokensUsed
		ans.Success = true
		return ans
	}

	if len(passages) > 0 {
		texts := make([]string, len(passages))
		for i, p := range passages {
			texts[i] = p.Text
		}
		if summary := summarize.SummarizeFor(strings.Join(texts, "\n\n"), summarize.DefaultMaxSentences, text); summary != "" {
			log.Info("Research answered from passage summary", zap.Int("passages", len(passages)), zap.Error(out.Err))
			ans.Text = summary
			ans.Success = true
			return ans
		}
	}

	ans.Text = out.Text
	ans.Provider = out.ProviderName
	return ans
}

func (o *Orchestrator) general(ctx context.Context, text string, cls domain.Classification, opts domain.Options) domain.Answer {
	out := o.deps.LLM.Generate(ctx, llm.Request{
		Prompt:    text,
		Context:   preamble(cls.Intent, cls.Emotion),
		MaxTokens: o.maxTokens(opts),
		Provider:  opts.ForceProvider,
	})
	ans := domain.Answer{Route: domain.RouteGeneral, Provider: out.ProviderName, TokensUsed: out.TokensUsed}
	if !out.Success {
		ans.Text = out.Text
		return ans
	}

	var sb strings.Builder
	if cls.EmotionConfidence >= 0.3 {
		sb.WriteString(openers[cls.Emotion])
	}
	sb.WriteString(strings.TrimSpace(out.Text))
	sb.WriteString("\n\n")
	sb.WriteString(followUp(cls.Intent))
	ans.Text = sb.String()
	ans.Success = true
	return ans
}

func (o *Orchestrator) record(ctx context.Context, q domain.Query, text string, ans resolved) {
	if o.deps.Build != nil {
		o.deps.Build.AddBuildTime(ans.Latency)
	}
	if q.SessionID == "" || o.deps.Sessions == nil {
		return
	}
	o.deps.Sessions.Append(q.SessionID, domain.RoleUser, text, ans.intent)
	o.deps.Sessions.Append(q.SessionID, domain.RoleAssistant, ans.Text, "")
	o.deps.Sessions.Record(ctx, q.SessionID, ans.TokensUsed)
}

func (o *Orchestrator) maxTokens(opts domain.Options) int {
	if opts.MaxTokens > 0 {
		return opts.MaxTokens
	}
	return o.cfg.MaxTokens
}

// People returns ranked web hits for a name without model post-processing.
func (o *Orchestrator) People(ctx context.Context, name string) ([]domain.Source, error) {
	if o.deps.Search == nil {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
	defer cancel()

	hits, err := o.deps.Search.Search(ctx, textnorm.Normalize(name), 2*o.cfg.MaxSources)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Source, len(hits))
	for i, h := range hits {
		out[i] = domain.Source{Title: h.Title, URL: h.URL}
	}
	return out, nil
}

func flightKey(text string, opts domain.Options) string {
	var sb strings.Builder
	sb.WriteString(strings.ToLower(text))
	sb.WriteByte(0)
	if opts.WantPrices {
		sb.WriteByte('p')
	}
	sb.WriteByte(0)
	sb.WriteString(opts.ForceProvider)
	return sb.String()
}
