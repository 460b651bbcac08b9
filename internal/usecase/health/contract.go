package health

import (
	"context"

	"github.com/bassam-ai/bassam/internal/domain"
)

// Pinger checks store availability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ProviderLister reports the providers the dispatcher can use.
type ProviderLister interface {
	AvailableProviders() []domain.ProviderDescriptor
}
