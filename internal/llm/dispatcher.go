package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bassam-ai/bassam/internal/domain"
	"github.com/bassam-ai/bassam/internal/ledger"
	"github.com/bassam-ai/bassam/internal/logger"
	"github.com/bassam-ai/bassam/internal/metrics"
)

// FallbackProvider is the provider name reported when every provider failed.
const FallbackProvider = "fallback"

// FallbackText is returned to users when no provider could answer.
const FallbackText = "عذراً، خدمات الذكاء الاصطناعي غير متاحة حالياً. يرجى المحاولة مرة أخرى بعد قليل."

// DefaultCallTimeout bounds a single provider call.
const DefaultCallTimeout = 30 * time.Second

const operationGenerate = "generate"

// Ledger is the quota view the dispatcher needs.
type Ledger interface {
	Check(provider string) ledger.Status
	Record(ctx context.Context, provider, operation string, tokens int64, elapsed time.Duration, success bool) error
}

// Request is one dispatch.
type Request struct {
	Prompt    string
	Context   string // prepended to Prompt when non-empty
	MaxTokens int
	Provider  string // restrict to one provider; empty means registry order
}

// Dispatcher tries available providers in order until one answers.
type Dispatcher struct {
	registry *Registry
	ledger   Ledger
	timeout  time.Duration
	logger   *zap.Logger

	mu    sync.Mutex
	stats map[string]*providerStats
}

// NewDispatcher creates a dispatcher. callTimeout <= 0 uses DefaultCallTimeout.
func NewDispatcher(registry *Registry, l Ledger, callTimeout time.Duration, logger *zap.Logger) *Dispatcher {
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	return &Dispatcher{
		registry: registry,
		ledger:   l,
		timeout:  callTimeout,
		logger:   logger,
		stats:    make(map[string]*providerStats),
	}
}

// AvailableProviders returns descriptors in dispatch order.
func (d *Dispatcher) AvailableProviders() []domain.ProviderDescriptor {
	return d.registry.Available()
}

// Generate runs the failover loop. Providers are contacted one at a time;
// an earlier failure completes before the next provider is tried. When all
// fail the outcome carries FallbackText, provider "fallback" and an error
// wrapping domain.ErrAllProvidersFailed.
func (d *Dispatcher) Generate(ctx context.Context, req Request) domain.DispatchOutcome {
	start := time.Now()
	log := logger.FromContext(ctx, d.logger)

	prompt := req.Prompt
	if req.Context != "" {
		prompt = req.Context + "\n\n" + req.Prompt
	}

	var errs []error
	for _, e := range d.registry.available {
		name := e.Descriptor().Name
		if req.Provider != "" && req.Provider != name {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		if st := d.ledger.Check(name); !st.Allowed {
			d.skip(name)
			log.Info("Provider skipped: daily quota exhausted",
				zap.String("provider", name), zap.Time("reset_time", st.ResetTime))
			errs = append(errs, domain.NewProviderError(name, domain.ErrQuotaExhausted))
			continue
		}

		if err := d.registry.ready(ctx, e); err != nil {
			d.skip(name)
			log.Warn("Provider skipped: re-probe failed", zap.String("provider", name), zap.Error(err))
			errs = append(errs, err)
			continue
		}

		comp, elapsed, err := d.call(ctx, e, prompt, req.MaxTokens)
		domain.UsageFromContext(ctx).AddLLMCall(comp.Tokens)
		if err != nil {
			d.registry.markFailed(e)
			d.observe(name, elapsed, false, 0)
			if rerr := d.ledger.Record(ctx, name, operationGenerate, 0, elapsed, false); rerr != nil {
				log.Warn("Ledger record failed", zap.String("provider", name), zap.Error(rerr))
			}
			log.Warn("Provider failed, trying next",
				zap.String("provider", name), zap.Duration("elapsed", elapsed), zap.Error(err))
			errs = append(errs, err)
			continue
		}

		tokens := comp.Tokens
		if tokens <= 0 {
			tokens = wordCount(prompt) + wordCount(comp.Text)
		}
		d.observe(name, elapsed, true, tokens)
		if rerr := d.ledger.Record(ctx, name, operationGenerate, int64(tokens), elapsed, true); rerr != nil {
			log.Warn("Ledger record failed", zap.String("provider", name), zap.Error(rerr))
		}

		return domain.DispatchOutcome{
			Success:      true,
			Text:         comp.Text,
			ProviderName: name,
			TokensUsed:   tokens,
			ElapsedMs:    time.Since(start).Milliseconds(),
		}
	}

	metrics.LLMFallbackTotal.Inc()
	err := fmt.Errorf("%w: %w", domain.ErrAllProvidersFailed, errors.Join(errs...))
	log.Warn("All providers failed", zap.Int("attempted", len(errs)), zap.Error(err))
	return domain.DispatchOutcome{
		Success:      false,
		Text:         FallbackText,
		ProviderName: FallbackProvider,
		ElapsedMs:    time.Since(start).Milliseconds(),
		Err:          err,
	}
}

func (d *Dispatcher) call(ctx context.Context, e *entry, prompt string, maxTokens int) (Completion, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	comp, err := e.Generate(ctx, prompt, maxTokens)
	elapsed := time.Since(start)
	switch {
	case err == nil:
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		err = domain.NewProviderError(e.Descriptor().Name, fmt.Errorf("%w: %w", domain.ErrTimeout, err))
	case !errors.Is(err, domain.ErrProviderUnavailable):
		err = domain.NewProviderError(e.Descriptor().Name, err)
	}
	return comp, elapsed, err
}

// ProviderStats is the dispatcher's view of one provider.
type ProviderStats struct {
	Provider      string  `json:"provider"`
	Attempts      int64   `json:"attempts"`
	Successes     int64   `json:"successes"`
	Failures      int64   `json:"failures"`
	Skipped       int64   `json:"skipped"`
	MeanLatencyMs float64 `json:"mean_latency_ms"`
}

type providerStats struct {
	attempts, successes, failures, skipped int64
	totalLatency                           time.Duration
}

// Stats returns per-provider counters in dispatch order.
func (d *Dispatcher) Stats() []ProviderStats {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]ProviderStats, 0, len(d.registry.available))
	for _, e := range d.registry.available {
		name := e.Descriptor().Name
		ps := ProviderStats{Provider: name}
		if s, ok := d.stats[name]; ok {
			ps.Attempts = s.attempts
			ps.Successes = s.successes
			ps.Failures = s.failures
			ps.Skipped = s.skipped
			if s.attempts > 0 {
				ps.MeanLatencyMs = float64(s.totalLatency.Milliseconds()) / float64(s.attempts)
			}
		}
		out = append(out, ps)
	}
	return out
}

func (d *Dispatcher) entryStats(name string) *providerStats {
	s, ok := d.stats[name]
	if !ok {
		s = &providerStats{}
		d.stats[name] = s
	}
	return s
}

func (d *Dispatcher) skip(name string) {
	d.mu.Lock()
	d.entryStats(name).skipped++
	d.mu.Unlock()
	metrics.LLMRequestsTotal.WithLabelValues(name, "skipped").Inc()
}

func (d *Dispatcher) observe(name string, elapsed time.Duration, ok bool, tokens int) {
	d.mu.Lock()
	s := d.entryStats(name)
	s.attempts++
	s.totalLatency += elapsed
	if ok {
		s.successes++
	} else {
		s.failures++
	}
	d.mu.Unlock()

	status := "failure"
	if ok {
		status = "success"
		metrics.LLMTokensTotal.WithLabelValues(name).Add(float64(tokens))
	}
	metrics.LLMRequestsTotal.WithLabelValues(name, status).Inc()
	metrics.LLMRequestDuration.WithLabelValues(name).Observe(elapsed.Seconds())
}
