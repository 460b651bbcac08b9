// Package disk implements db.Store on a single bbolt file. TTL is kept
// alongside each value and enforced on read and by Sweep.
package disk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/bassam-ai/bassam/internal/db"
)

var _ db.Store = (*Store)(nil)

const fileName = "kv.db"

var bucket = []byte("kv")

type record struct {
	Value     []byte `json:"value"`
	ExpiresAt int64  `json:"expires_at,omitempty"` // unix nanos, 0 = no expiry
}

func (r record) expired(now time.Time) bool {
	return r.ExpiresAt != 0 && now.UnixNano() >= r.ExpiresAt
}

// Store keeps values in dir/kv.db. bbolt serializes write transactions, so
// read-modify-write operations run inside a single Update.
type Store struct {
	bdb *bolt.DB
	now func() time.Time

	mu     sync.RWMutex
	closed bool
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for TTL checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates the directory if needed and opens the database file in it.
func NewStore(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create kv dir: %w", err)
	}
	bdb, err := bolt.Open(filepath.Join(dir, fileName), 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open kv file: %w", err)
	}
	if err := bdb.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	}); err != nil {
		_ = bdb.Close()
		return nil, fmt.Errorf("create kv bucket: %w", err)
	}
	s := &Store{bdb: bdb, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Ping verifies the database file is open and readable.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return &db.Error{Op: db.OpPing, Err: db.ErrClosed}
	}
	err := s.bdb.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucket) == nil {
			return errors.New("kv bucket missing")
		}
		return nil
	})
	if err != nil {
		return &db.Error{Op: db.OpPing, Err: err}
	}
	return nil
}

// Close releases the database file. Later calls return db.ErrClosed.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	_ = s.bdb.Close()
}

// WaitForReady returns as soon as the database answers.
func (s *Store) WaitForReady(ctx context.Context, _ time.Duration) error {
	return s.Ping(ctx)
}

func decode(key string, data []byte) (record, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return record{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return r, nil
}

// load returns the live record for key, deleting it when expired.
// Must run inside an Update.
func (s *Store) load(b *bolt.Bucket, key string) (record, error) {
	data := b.Get([]byte(key))
	if data == nil {
		return record{}, db.ErrKeyNotFound
	}
	r, err := decode(key, data)
	if err != nil {
		return record{}, err
	}
	if r.expired(s.now()) {
		if err := b.Delete([]byte(key)); err != nil {
			return record{}, err
		}
		return record{}, db.ErrKeyNotFound
	}
	return r, nil
}

func store(b *bolt.Bucket, key string, r record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), data)
}

// update runs fn in a write transaction, wrapping failures in db.Error.
// db.ErrKeyNotFound passes through unwrapped.
func (s *Store) update(op string, fn func(b *bolt.Bucket) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return &db.Error{Op: op, Err: db.ErrClosed}
	}
	err := s.bdb.Update(func(tx *bolt.Tx) error {
		return fn(tx.Bucket(bucket))
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, db.ErrKeyNotFound):
		return err
	default:
		return &db.Error{Op: op, Err: err}
	}
}

// Get retrieves a live value. An expired entry is removed on the way out.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.update(db.OpGet, func(b *bolt.Bucket) error {
		r, err := s.load(b, key)
		if err != nil {
			return err
		}
		value = r.Value
		return nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set stores a value without expiry.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.SetWithTTL(ctx, key, value, 0)
}

// SetWithTTL stores a value that expires after ttl. A zero ttl never expires.
func (s *Store) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	r := record{Value: value}
	if ttl > 0 {
		r.ExpiresAt = s.now().Add(ttl).UnixNano()
	}
	return s.update(db.OpSet, func(b *bolt.Bucket) error {
		return store(b, key, r)
	})
}

// Del removes a key. Missing keys are not an error.
func (s *Store) Del(_ context.Context, key string) error {
	return s.update(db.OpDel, func(b *bolt.Bucket) error {
		return b.Delete([]byte(key))
	})
}

// IncrBy adds val to the integer stored at key, creating it at zero.
func (s *Store) IncrBy(_ context.Context, key string, val int64) error {
	return s.update(db.OpIncrBy, func(b *bolt.Bucket) error {
		r, err := s.load(b, key)
		switch {
		case errors.Is(err, db.ErrKeyNotFound):
			r = record{}
		case err != nil:
			return err
		}
		var cur int64
		if len(r.Value) > 0 {
			cur, err = strconv.ParseInt(string(r.Value), 10, 64)
			if err != nil {
				return fmt.Errorf("value is not an integer: %w", err)
			}
		}
		r.Value = []byte(strconv.FormatInt(cur+val, 10))
		return store(b, key, r)
	})
}

// Expire sets a TTL. With nx it only applies to keys without one.
func (s *Store) Expire(_ context.Context, key string, ttl time.Duration, nx bool) error {
	return s.update(db.OpExpire, func(b *bolt.Bucket) error {
		r, err := s.load(b, key)
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if nx && r.ExpiresAt != 0 {
			return nil
		}
		r.ExpiresAt = s.now().Add(ttl).UnixNano()
		return store(b, key, r)
	})
}

// Sweep deletes expired and undecodable entries. Returns the number removed.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	removed := 0
	err := s.update(db.OpDel, func(b *bolt.Bucket) error {
		now := s.now()
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := decode(string(k), v)
			if err != nil || r.expired(now) {
				// keys are only valid for the life of the transaction
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}
