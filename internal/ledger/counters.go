package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bassam-ai/bassam/internal/db"
	"github.com/bassam-ai/bassam/internal/domain"
)

// Scope is the calendar window a counter belongs to.
type Scope string

// Counter windows.
const (
	ScopeDaily   Scope = "daily"
	ScopeMonthly Scope = "monthly"
)

const (
	dayLayout   = "2006-01-02"
	monthLayout = "2006-01"
)

// Key addresses one persisted counter: a name inside a calendar period.
type Key struct {
	Scope  Scope
	Period string // "2006-01-02" for daily, "2006-01" for monthly
	Name   string // "gemini:requests", "bandwidth_bytes", ...
}

func (k Key) String() string {
	return fmt.Sprintf("%sledger:%s:%s:%s", domain.KeyPrefix, k.Scope, k.Period, k.Name)
}

func dailyKey(t time.Time, provider, counter string) Key {
	return Key{Scope: ScopeDaily, Period: t.Format(dayLayout), Name: provider + ":" + counter}
}

func monthlyKey(t time.Time, counter string) Key {
	return Key{Scope: ScopeMonthly, Period: t.Format(monthLayout), Name: counter}
}

// CounterStore persists ledger counters. IncrBy must be durable when it returns nil.
type CounterStore interface {
	IncrBy(ctx context.Context, key Key, val int64) error
	Get(ctx context.Context, key Key) (int64, error)
}

// kv is the subset of db.KVStore the KV counters need.
type kv interface {
	Get(ctx context.Context, key string) ([]byte, error)
	IncrBy(ctx context.Context, key string, val int64) error
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

// KVCounters keeps counters in the durable KV tier (INCRBY + EXPIRE NX).
type KVCounters struct {
	store    kv
	dailyTTL time.Duration
	monthTTL time.Duration
}

// NewKVCounters creates KV-backed counters.
// dailyTTL is the TTL for daily keys (recommended: 48h).
// monthTTL is the TTL for monthly keys (recommended: 62 days).
func NewKVCounters(s kv, dailyTTL, monthTTL time.Duration) *KVCounters {
	return &KVCounters{store: s, dailyTTL: dailyTTL, monthTTL: monthTTL}
}

// IncrBy atomically increments the counter and sets its TTL once.
func (c *KVCounters) IncrBy(ctx context.Context, key Key, val int64) error {
	k := key.String()
	if err := c.store.IncrBy(ctx, k, val); err != nil {
		return fmt.Errorf("ledger INCRBY %s: %w", k, err)
	}
	// NX: repeat increments must not push the expiry forward.
	if err := c.store.Expire(ctx, k, c.ttl(key.Scope), true); err != nil {
		return fmt.Errorf("ledger EXPIRE %s: %w", k, err)
	}
	return nil
}

// Get returns the counter value, 0 when absent.
func (c *KVCounters) Get(ctx context.Context, key Key) (int64, error) {
	k := key.String()
	data, err := c.store.Get(ctx, k)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("ledger GET %s: %w", k, err)
	}
	val, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("ledger GET %s parse: %w", k, err)
	}
	return val, nil
}

func (c *KVCounters) ttl(s Scope) time.Duration {
	if s == ScopeDaily {
		return c.dailyTTL
	}
	return c.monthTTL
}
