package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/bassam-ai/bassam/internal/db/sqlite"
	"github.com/bassam-ai/bassam/internal/domain"
	"github.com/bassam-ai/bassam/internal/ledger"
	"github.com/bassam-ai/bassam/internal/llm"
)

// Report combines quota counters, dispatcher stats and the usage log window.
type Report struct {
	Ledger    ledger.Report         `json:"ledger"`
	Dispatch  []llm.ProviderStats   `json:"dispatch"`
	Logs      []sqlite.ServiceUsage `json:"logs"`
	LogsSince time.Time             `json:"logs_since"`
}

// Service handles usage reporting.
type Service struct {
	ledger LedgerReader
	stats  StatsReader
	logs   LogReader
	now    func() time.Time
}

// New creates a Service. stats and logs can be nil.
func New(l LedgerReader, stats StatsReader, logs LogReader) *Service {
	return &Service{ledger: l, stats: stats, logs: logs, now: time.Now}
}

// GetReport builds the report. A log query failure still returns the
// in-memory parts together with the error.
func (s *Service) GetReport(ctx context.Context) (Report, error) {
	r := Report{
		Ledger:    s.ledger.Report(),
		LogsSince: s.now().UTC().Add(-domain.UsageLogsRetention),
	}
	if s.stats != nil {
		r.Dispatch = s.stats.Stats()
	}
	if s.logs == nil {
		return r, nil
	}
	logs, err := s.logs.UsageSince(ctx, r.LogsSince)
	if err != nil {
		return r, fmt.Errorf("usage logs: %w", err)
	}
	r.Logs = logs
	return r, nil
}
