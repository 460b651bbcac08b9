package llm

import (
	"context"
	"slices"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/bassam-ai/bassam/internal/domain"
)

type entry struct {
	Provider
	// stale marks a local provider that failed; it is re-probed before its next attempt.
	stale atomic.Bool
}

// Registry is the fixed set of providers available after startup.
type Registry struct {
	available    []*entry
	probeTimeout time.Duration
	logger       *zap.Logger
}

// RegistryConfig tunes availability checks.
type RegistryConfig struct {
	EnableLocal  bool
	ProbeTimeout time.Duration
}

// NewRegistry filters providers down to the available ones and orders them
// by cost tier ascending, then quality descending. Cloud providers need a
// credential; local providers need a successful probe.
func NewRegistry(ctx context.Context, providers []Provider, cfg RegistryConfig, logger *zap.Logger) *Registry {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	r := &Registry{probeTimeout: cfg.ProbeTimeout, logger: logger}

	for _, p := range providers {
		d := p.Descriptor()
		if !d.HasAccess() {
			logger.Info("Provider disabled: no access configured", zap.String("provider", d.Name))
			continue
		}
		if d.Kind == domain.ProviderLocalHosted {
			if !cfg.EnableLocal {
				logger.Info("Provider disabled: local models off", zap.String("provider", d.Name))
				continue
			}
			if err := r.probe(ctx, p); err != nil {
				logger.Warn("Provider disabled: probe failed", zap.String("provider", d.Name), zap.Error(err))
				continue
			}
		}
		r.available = append(r.available, &entry{Provider: p})
	}

	slices.SortStableFunc(r.available, func(a, b *entry) int {
		return domain.CompareProviders(a.Descriptor(), b.Descriptor())
	})

	names := make([]string, len(r.available))
	for i, e := range r.available {
		names[i] = e.Descriptor().Name
	}
	logger.Info("Provider registry ready", zap.Strings("order", names))
	return r
}

// Available returns the ordered descriptors.
func (r *Registry) Available() []domain.ProviderDescriptor {
	out := make([]domain.ProviderDescriptor, len(r.available))
	for i, e := range r.available {
		out[i] = e.Descriptor()
	}
	return out
}

func (r *Registry) probe(ctx context.Context, p Provider) error {
	pr, ok := p.(Prober)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()
	return pr.Probe(ctx) //nolint:wrapcheck // probes return provider errors
}

// ready re-probes a stale local provider. Cloud providers are always ready.
func (r *Registry) ready(ctx context.Context, e *entry) error {
	if !e.stale.Load() {
		return nil
	}
	if err := r.probe(ctx, e.Provider); err != nil {
		return err
	}
	e.stale.Store(false)
	return nil
}

func (r *Registry) markFailed(e *entry) {
	if e.Descriptor().Kind == domain.ProviderLocalHosted {
		e.stale.Store(true)
	}
}
