package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bassam-ai/bassam/internal/db"
	"github.com/bassam-ai/bassam/internal/db/sqlite"
	"github.com/bassam-ai/bassam/internal/domain"
)

var answerKeyPrefix = domain.KeyPrefix + "answer:"

// kvStore is the consumer interface for the durable KV tier (ISP).
type kvStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// rowStore is the consumer interface for cached_responses.
type rowStore interface {
	PutCachedResponse(ctx context.Context, r sqlite.CachedResponse) error
	GetCachedResponse(ctx context.Context, hash string) (sqlite.CachedResponse, error)
	IncrementAccess(ctx context.Context, hash string) error
	Purge(ctx context.Context, answersBefore, logsBefore time.Time) (sqlite.PurgeResult, error)
}

// durable is the long-retention tier: KV for fast reads, relational rows
// for access counts and retention.
type durable struct {
	kv     kvStore
	rows   rowStore
	logger *zap.Logger
}

func answerKey(hash string) string { return answerKeyPrefix + hash }

func (d *durable) get(ctx context.Context, hash string, now time.Time) (domain.CacheEntry, bool) {
	if d.kv != nil {
		if e, ok := d.getKV(ctx, hash); ok && !e.Expired(now) {
			return e, true
		}
	}
	if d.rows == nil {
		return domain.CacheEntry{}, false
	}

	row, err := d.rows.GetCachedResponse(ctx, hash)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			d.logger.Warn("Failed to read cached response row", zap.String("hash", hash), zap.Error(err))
		}
		return domain.CacheEntry{}, false
	}
	var ans domain.Answer
	if err := json.Unmarshal(row.ResponseData, &ans); err != nil {
		d.logger.Warn("Failed to decode cached response row", zap.String("hash", hash), zap.Error(err))
		return domain.CacheEntry{}, false
	}
	e := domain.CacheEntry{
		QueryHash:    row.QueryHash,
		QueryText:    row.QueryText,
		Answer:       ans,
		ProviderName: row.ModelUsed,
		CreatedAt:    row.CreatedAt,
		AccessCount:  row.AccessCount,
	}
	if e.Expired(now) {
		return domain.CacheEntry{}, false
	}
	return e, true
}

func (d *durable) getKV(ctx context.Context, hash string) (domain.CacheEntry, bool) {
	key := answerKey(hash)
	data, err := d.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			d.logger.Warn("Failed to get cached answer", zap.String("key", key), zap.Error(err))
		}
		return domain.CacheEntry{}, false
	}
	var e domain.CacheEntry
	if err := json.Unmarshal(data, &e); err != nil {
		d.logger.Warn("Failed to parse cached answer", zap.String("key", key), zap.Error(err))
		return domain.CacheEntry{}, false
	}
	return e, true
}

// touch increments access_count once per durable hit.
func (d *durable) touch(ctx context.Context, hash string) {
	if d.rows == nil {
		return
	}
	if err := d.rows.IncrementAccess(ctx, hash); err != nil {
		d.logger.Warn("Failed to increment access count", zap.String("hash", hash), zap.Error(err))
	}
}

func (d *durable) put(ctx context.Context, e domain.CacheEntry) error {
	var errs []error
	if d.kv != nil {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode cache entry: %w", err)
		}
		if err := d.kv.SetWithTTL(ctx, answerKey(e.QueryHash), data, domain.AnswerDurableTTL); err != nil {
			errs = append(errs, fmt.Errorf("kv put: %w", err))
		}
	}
	if d.rows != nil {
		data, err := json.Marshal(e.Answer)
		if err != nil {
			return fmt.Errorf("encode answer: %w", err)
		}
		if err := d.rows.PutCachedResponse(ctx, sqlite.CachedResponse{
			QueryHash:    e.QueryHash,
			QueryText:    e.QueryText,
			ResponseData: data,
			ModelUsed:    e.ProviderName,
			CreatedAt:    e.CreatedAt,
		}); err != nil {
			errs = append(errs, fmt.Errorf("row put: %w", err))
		}
	}
	return errors.Join(errs...)
}
