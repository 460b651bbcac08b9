// Package ledger tracks per-provider daily quotas and monthly resource counters.
//
// Check is in-memory only. Record updates memory, stages the deltas and
// flushes them to the CounterStore before returning, so a crash after a
// successful dispatch never loses quota accounting. Deltas that fail to
// persist stay staged and are retried on the next flush.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bassam-ai/bassam/internal/db/sqlite"
	"github.com/bassam-ai/bassam/internal/metrics"
)

// Quota is a provider's daily allowance. Zero means unlimited.
type Quota struct {
	DailyRequests int64
	DailyTokens   int64
}

// Status is the answer to Check. Remaining values are -1 when unlimited.
type Status struct {
	Allowed           bool      `json:"allowed"`
	RequestsRemaining int64     `json:"requests_remaining"`
	TokensRemaining   int64     `json:"tokens_remaining"`
	ResetTime         time.Time `json:"reset_time"`
}

// LogWriter receives usage_logs rows.
type LogWriter interface {
	InsertUsageLogs(ctx context.Context, logs []sqlite.UsageLog) error
}

type counters struct {
	requests int64
	tokens   int64
	failures int64
}

const (
	counterRequests  = "requests"
	counterTokens    = "tokens"
	counterFailures  = "failures"
	counterBandwidth = "bandwidth_bytes"
	counterBuildMs   = "build_ms"
)

// Ledger is the process-wide usage ledger. Safe for concurrent use.
type Ledger struct {
	mu        sync.Mutex
	quotas    map[string]Quota
	daily     map[string]*counters
	bandwidth int64
	buildMs   int64
	day       time.Time
	month     time.Time
	staged    map[Key]int64
	logs      []sqlite.UsageLog

	flushMu sync.Mutex
	store   CounterStore
	writer  LogWriter
	now     func() time.Time
	logger  *zap.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithLogWriter sends usage_logs rows to w on every flush.
func WithLogWriter(w LogWriter) Option {
	return func(l *Ledger) { l.writer = w }
}

// New creates a ledger. quotas lists every known provider; providers not in
// the map are tracked with unlimited quota.
func New(quotas map[string]Quota, logger *zap.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		quotas: make(map[string]Quota, len(quotas)),
		daily:  make(map[string]*counters, len(quotas)),
		staged: make(map[Key]int64),
		now:    time.Now,
		logger: logger,
	}
	for name, q := range quotas {
		l.quotas[name] = q
		l.daily[name] = &counters{}
	}
	for _, o := range opts {
		o(l)
	}
	now := l.clock()
	l.day = truncateToDay(now)
	l.month = truncateToMonth(now)
	return l
}

// WithStore attaches a persistence store and loads the current period's counters.
func (l *Ledger) WithStore(ctx context.Context, store CounterStore) *Ledger {
	l.store = store
	l.load(ctx)
	return l
}

func (l *Ledger) clock() time.Time { return l.now().UTC() }

func (l *Ledger) load(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	get := func(k Key) int64 {
		v, err := l.store.Get(ctx, k)
		if err != nil {
			l.logger.Warn("Failed to load ledger counter", zap.String("key", k.String()), zap.Error(err))
			return 0
		}
		return v
	}

	for name, c := range l.daily {
		c.requests = get(dailyKey(now, name, counterRequests))
		c.tokens = get(dailyKey(now, name, counterTokens))
		c.failures = get(dailyKey(now, name, counterFailures))
		l.publish(name, c)
	}
	l.bandwidth = get(monthlyKey(now, counterBandwidth))
	l.buildMs = get(monthlyKey(now, counterBuildMs))

	l.logger.Info("Ledger loaded from store",
		zap.Int("providers", len(l.daily)),
		zap.Int64("bandwidth_bytes", l.bandwidth),
		zap.Int64("build_ms", l.buildMs),
	)
}

// Check reports whether provider may be called now. In-memory only.
func (l *Ledger) Check(provider string) Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.resetIfNeeded()
	q := l.quotas[provider]
	c := l.counter(provider)

	st := Status{
		RequestsRemaining: remaining(q.DailyRequests, c.requests),
		TokensRemaining:   remaining(q.DailyTokens, c.tokens),
		ResetTime:         l.day.AddDate(0, 0, 1),
	}
	st.Allowed = st.RequestsRemaining != 0 && st.TokensRemaining != 0
	return st
}

// Record accounts for one provider call. Successes add to requests and
// tokens; failures only to the failure counter. The call returns after the
// deltas are durable or the flush has failed.
func (l *Ledger) Record(
	ctx context.Context, provider, operation string,
	tokens int64, elapsed time.Duration, success bool,
) error {
	l.mu.Lock()
	l.resetIfNeeded()
	now := l.clock()
	c := l.counter(provider)
	if success {
		c.requests++
		c.tokens += tokens
		l.staged[dailyKey(now, provider, counterRequests)]++
		l.staged[dailyKey(now, provider, counterTokens)] += tokens
	} else {
		c.failures++
		l.staged[dailyKey(now, provider, counterFailures)]++
		tokens = 0
	}
	l.logs = append(l.logs, sqlite.UsageLog{
		TS:           now,
		Service:      provider,
		Operation:    operation,
		TokensUsed:   int(tokens),
		ResponseTime: elapsed,
		Success:      success,
	})
	l.publish(provider, c)
	l.mu.Unlock()

	// Accounting must survive the caller's cancellation.
	return l.Flush(context.WithoutCancel(ctx))
}

// AddBandwidth stages fetched bytes into the monthly counter.
func (l *Ledger) AddBandwidth(bytes int64) {
	if bytes <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetIfNeeded()
	l.bandwidth += bytes
	l.staged[monthlyKey(l.clock(), counterBandwidth)] += bytes
	metrics.LedgerMonthly.WithLabelValues(counterBandwidth).Set(float64(l.bandwidth))
}

// AddBuildTime stages request wall time into the monthly counter.
func (l *Ledger) AddBuildTime(d time.Duration) {
	ms := d.Milliseconds()
	if ms <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetIfNeeded()
	l.buildMs += ms
	l.staged[monthlyKey(l.clock(), counterBuildMs)] += ms
	metrics.LedgerMonthly.WithLabelValues(counterBuildMs).Set(float64(l.buildMs))
}

// Flush writes staged deltas and usage rows. Failed deltas are re-staged.
func (l *Ledger) Flush(ctx context.Context) error {
	l.flushMu.Lock()
	defer l.flushMu.Unlock()

	l.mu.Lock()
	staged := l.staged
	logs := l.logs
	l.staged = make(map[Key]int64)
	l.logs = nil
	l.mu.Unlock()

	var errs []error
	failed := make(map[Key]int64)
	if l.store != nil {
		for k, v := range staged {
			if v == 0 {
				continue
			}
			if err := l.store.IncrBy(ctx, k, v); err != nil {
				failed[k] = v
				errs = append(errs, err)
			}
		}
	}

	var failedLogs []sqlite.UsageLog
	if l.writer != nil && len(logs) > 0 {
		if err := l.writer.InsertUsageLogs(ctx, logs); err != nil {
			failedLogs = logs
			errs = append(errs, fmt.Errorf("usage logs: %w", err))
		}
	}

	if len(errs) == 0 {
		return nil
	}

	l.mu.Lock()
	for k, v := range failed {
		l.staged[k] += v
	}
	l.logs = append(failedLogs, l.logs...)
	l.mu.Unlock()

	metrics.LedgerPersistErrorsTotal.Inc()
	err := errors.Join(errs...)
	l.logger.Warn("Ledger flush failed, deltas kept for retry",
		zap.Int("staged_keys", len(failed)),
		zap.Int("staged_logs", len(failedLogs)),
		zap.Error(err),
	)
	return fmt.Errorf("ledger flush: %w", err)
}

// ProviderUsage is one provider row of the usage report.
type ProviderUsage struct {
	Provider string `json:"provider"`
	Requests int64  `json:"requests"`
	Tokens   int64  `json:"tokens"`
	Failures int64  `json:"failures"`
	Status
}

// Report is a snapshot of the current day and month.
type Report struct {
	Day            string          `json:"day"`
	Month          string          `json:"month"`
	Providers      []ProviderUsage `json:"providers"`
	BandwidthBytes int64           `json:"bandwidth_bytes"`
	BuildMinutes   float64         `json:"build_minutes"`
	MonthResetTime time.Time       `json:"month_reset_time"`
}

// Report snapshots the ledger, providers sorted by name.
func (l *Ledger) Report() Report {
	l.mu.Lock()
	l.resetIfNeeded()
	r := Report{
		Day:            l.day.Format(dayLayout),
		Month:          l.month.Format(monthLayout),
		BandwidthBytes: l.bandwidth,
		BuildMinutes:   float64(l.buildMs) / float64(time.Minute/time.Millisecond),
		MonthResetTime: l.month.AddDate(0, 1, 0),
	}
	names := make([]string, 0, len(l.daily))
	for name := range l.daily {
		names = append(names, name)
	}
	l.mu.Unlock()

	sort.Strings(names)
	for _, name := range names {
		st := l.Check(name)
		l.mu.Lock()
		c := *l.daily[name]
		l.mu.Unlock()
		r.Providers = append(r.Providers, ProviderUsage{
			Provider: name,
			Requests: c.requests,
			Tokens:   c.tokens,
			Failures: c.failures,
			Status:   st,
		})
	}
	return r
}

// counter returns the provider's counters, creating them on first use. Caller holds mu.
func (l *Ledger) counter(provider string) *counters {
	c, ok := l.daily[provider]
	if !ok {
		c = &counters{}
		l.daily[provider] = c
	}
	return c
}

// publish mirrors remaining quota into the gauges. Caller holds mu.
func (l *Ledger) publish(provider string, c *counters) {
	q := l.quotas[provider]
	metrics.LedgerQuotaRemaining.WithLabelValues(provider, counterRequests).Set(float64(remaining(q.DailyRequests, c.requests)))
	metrics.LedgerQuotaRemaining.WithLabelValues(provider, counterTokens).Set(float64(remaining(q.DailyTokens, c.tokens)))
}

// resetIfNeeded zeroes counters when the day or month rolls over. Caller holds mu.
func (l *Ledger) resetIfNeeded() {
	now := l.clock()
	today := truncateToDay(now)
	thisMonth := truncateToMonth(now)

	if today.After(l.day) {
		for name, c := range l.daily {
			*c = counters{}
			l.publish(name, c)
		}
		l.day = today
	}
	if thisMonth.After(l.month) {
		l.bandwidth = 0
		l.buildMs = 0
		l.month = thisMonth
	}
}

func remaining(limit, used int64) int64 {
	if limit <= 0 {
		return -1
	}
	if r := limit - used; r > 0 {
		return r
	}
	return 0
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func truncateToMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
