package usage

import (
	"context"
	"time"

	"github.com/bassam-ai/bassam/internal/db/sqlite"
	"github.com/bassam-ai/bassam/internal/ledger"
	"github.com/bassam-ai/bassam/internal/llm"
)

// LedgerReader provides read-only access to quota counters.
type LedgerReader interface {
	Report() ledger.Report
}

// StatsReader exposes in-process dispatcher counters.
type StatsReader interface {
	Stats() []llm.ProviderStats
}

// LogReader aggregates persisted usage logs.
type LogReader interface {
	UsageSince(ctx context.Context, since time.Time) ([]sqlite.ServiceUsage, error)
}
