// Package cache is the two-tier answer cache: a size-bounded in-memory TTL
// tier in front of a durable KV + relational tier.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/bassam-ai/bassam/internal/domain"
	"github.com/bassam-ai/bassam/internal/metrics"
	"github.com/bassam-ai/bassam/internal/textnorm"
)

const (
	defaultMaxEntries = 10_000
	optimizeThreshold = 0.8
)

// Sweeper removes expired entries from a durable KV backend.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Config tunes the cache.
type Config struct {
	MaxBytes   int64         // in-memory byte cap
	MaxEntries int           // in-memory entry cap, defaultMaxEntries when 0
	MemoryTTL  time.Duration // domain.AnswerMemoryTTL when 0
}

// Cache looks answers up memory-first, then durable.
type Cache struct {
	mem      *expirable.LRU[string, domain.CacheEntry]
	mu       sync.Mutex
	memBytes int64
	maxBytes int64

	durable durable
	sweeper Sweeper
	now     func() time.Time
	logger  *zap.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithKV enables the durable KV tier.
func WithKV(kv kvStore) Option {
	return func(c *Cache) { c.durable.kv = kv }
}

// WithRows enables the relational cached_responses tier.
func WithRows(rows rowStore) Option {
	return func(c *Cache) { c.durable.rows = rows }
}

// WithSweeper runs s during Optimize.
func WithSweeper(s Sweeper) Option {
	return func(c *Cache) { c.sweeper = s }
}

// WithClock overrides the time source used for durable retention.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates an answer cache.
func New(cfg Config, logger *zap.Logger, opts ...Option) *Cache {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = defaultMaxEntries
	}
	if cfg.MemoryTTL <= 0 {
		cfg.MemoryTTL = domain.AnswerMemoryTTL
	}
	c := &Cache{
		maxBytes: cfg.MaxBytes,
		now:      time.Now,
		logger:   logger,
	}
	c.durable.logger = logger
	c.mem = expirable.NewLRU[string, domain.CacheEntry](cfg.MaxEntries, c.onEvict, cfg.MemoryTTL)
	for _, o := range opts {
		o(c)
	}
	return c
}

// Hash is the cache key of a query: sha256 over the normalized, lowercased text.
func Hash(query string) string {
	h := sha256.Sum256([]byte(textnorm.Normalize(strings.ToLower(strings.TrimSpace(query)))))
	return hex.EncodeToString(h[:])
}

// Lookup returns a cached answer. Durable hits are promoted to memory and
// their access_count incremented.
func (c *Cache) Lookup(ctx context.Context, query string) (domain.CacheEntry, bool) {
	hash := Hash(query)

	if e, ok := c.mem.Get(hash); ok {
		metrics.AnswerCacheTotal.WithLabelValues("memory", "hit").Inc()
		return e, true
	}
	metrics.AnswerCacheTotal.WithLabelValues("memory", "miss").Inc()

	e, ok := c.durable.get(ctx, hash, c.now())
	if !ok {
		metrics.AnswerCacheTotal.WithLabelValues("durable", "miss").Inc()
		return domain.CacheEntry{}, false
	}
	metrics.AnswerCacheTotal.WithLabelValues("durable", "hit").Inc()

	c.durable.touch(ctx, hash)
	e.AccessCount++
	c.addMemory(e)
	return e, true
}

// Store records an answer in both tiers. Durable failures are returned but
// the memory tier is always updated.
func (c *Cache) Store(ctx context.Context, query string, ans domain.Answer) error {
	e := domain.CacheEntry{
		QueryHash:    Hash(query),
		QueryText:    query,
		Answer:       ans,
		ProviderName: ans.Provider,
		CreatedAt:    c.now().UTC(),
	}
	c.addMemory(e)
	if err := c.durable.put(ctx, e); err != nil {
		c.logger.Warn("Failed to persist cached answer", zap.String("hash", e.QueryHash), zap.Error(err))
		return fmt.Errorf("store answer: %w", err)
	}
	return nil
}

// MemoryBytes is the approximate byte volume of the memory tier.
func (c *Cache) MemoryBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.memBytes
}

// OptimizeResult reports what Optimize removed.
type OptimizeResult struct {
	MemoryCleared   bool  `json:"memory_cleared"`
	MemoryBytes     int64 `json:"memory_bytes"`
	AnswersPurged   int64 `json:"answers_purged"`
	UsageLogsPurged int64 `json:"usage_logs_purged"`
	KeysSwept       int   `json:"keys_swept"`
}

// Optimize clears memory past 80% of the byte cap and deletes durable rows
// older than the retention windows in one transaction.
func (c *Cache) Optimize(ctx context.Context) (OptimizeResult, error) {
	var res OptimizeResult
	res.MemoryBytes = c.MemoryBytes()
	if c.maxBytes > 0 && float64(res.MemoryBytes) > optimizeThreshold*float64(c.maxBytes) {
		c.mem.Purge()
		c.mu.Lock()
		c.memBytes = 0
		c.mu.Unlock()
		metrics.AnswerCacheBytes.Set(0)
		res.MemoryCleared = true
	}

	now := c.now().UTC()
	if c.durable.rows != nil {
		pr, err := c.durable.rows.Purge(ctx, now.Add(-domain.AnswerDurableTTL), now.Add(-domain.UsageLogsRetention))
		if err != nil {
			return res, fmt.Errorf("purge durable rows: %w", err)
		}
		res.AnswersPurged = pr.CachedResponses
		res.UsageLogsPurged = pr.UsageLogs
	}
	if c.sweeper != nil {
		n, err := c.sweeper.Sweep(ctx)
		if err != nil {
			return res, fmt.Errorf("sweep durable keys: %w", err)
		}
		res.KeysSwept = n
	}

	c.logger.Info("Cache optimized",
		zap.Bool("memory_cleared", res.MemoryCleared),
		zap.Int64("memory_bytes", res.MemoryBytes),
		zap.Int64("answers_purged", res.AnswersPurged),
		zap.Int64("usage_logs_purged", res.UsageLogsPurged),
		zap.Int("keys_swept", res.KeysSwept),
	)
	return res, nil
}

func (c *Cache) addMemory(e domain.CacheEntry) {
	// Add on an existing key does not fire onEvict.
	if old, ok := c.mem.Peek(e.QueryHash); ok {
		c.adjust(-entrySize(old))
	}
	c.mem.Add(e.QueryHash, e)
	c.adjust(entrySize(e))
}

func (c *Cache) onEvict(_ string, e domain.CacheEntry) {
	c.adjust(-entrySize(e))
}

func (c *Cache) adjust(delta int64) {
	c.mu.Lock()
	c.memBytes += delta
	if c.memBytes < 0 {
		c.memBytes = 0
	}
	b := c.memBytes
	c.mu.Unlock()
	metrics.AnswerCacheBytes.Set(float64(b))
}

func entrySize(e domain.CacheEntry) int64 {
	n := len(e.QueryHash) + len(e.QueryText) + len(e.Answer.Text) + len(e.ProviderName)
	for _, s := range e.Answer.Sources {
		n += len(s.Title) + len(s.URL)
	}
	return int64(n)
}
