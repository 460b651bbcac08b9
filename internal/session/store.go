// Package session keeps short-lived conversation memory in process.
package session

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bassam-ai/bassam/internal/domain"
)

// sweepInterval throttles idle sweeps; they only ever run on access.
const sweepInterval = time.Minute

// Persister receives per-query session activity.
type Persister interface {
	TouchSession(ctx context.Context, id string, at time.Time, tokens int) error
}

type entry struct {
	turn sync.Mutex // held across one request so appends follow arrival order
	sess domain.Session
}

// Store maps session ids to conversation state.
type Store struct {
	mu        sync.Mutex
	sessions  map[string]*entry
	idle      time.Duration
	lastSweep time.Time
	now       func() time.Time
	persist   Persister
	logger    *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithPersister mirrors activity into durable storage.
func WithPersister(p Persister) Option {
	return func(s *Store) { s.persist = p }
}

// WithIdleTimeout overrides domain.SessionIdleTimeout.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Store) { s.idle = d }
}

// NewStore creates an empty store.
func NewStore(logger *zap.Logger, opts ...Option) *Store {
	s := &Store{
		sessions: make(map[string]*entry),
		idle:     domain.SessionIdleTimeout,
		now:      time.Now,
		logger:   logger,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Create starts a new session and returns its id.
func (s *Store) Create() string {
	id := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	s.entryLocked(id)
	return id
}

// Acquire serializes requests of one session. The returned func releases it.
// An unknown id creates the session.
func (s *Store) Acquire(id string) (release func()) {
	s.mu.Lock()
	s.sweepLocked()
	e := s.entryLocked(id)
	s.mu.Unlock()

	e.turn.Lock()
	return e.turn.Unlock
}

// Append adds one message. A user message whose intent differs from the
// current segment's opens a new segment.
func (s *Store) Append(id string, role domain.Role, content string, intent domain.Intent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()

	e := s.entryLocked(id)
	now := s.now()
	idx := len(e.sess.Messages)
	e.sess.Messages = append(e.sess.Messages, domain.Message{Role: role, Content: content, TS: now})
	e.sess.LastActivity = now

	if role != domain.RoleUser || intent == "" {
		return
	}
	if n := len(e.sess.Segments); n == 0 || e.sess.Segments[n-1].Intent != intent {
		e.sess.Segments = append(e.sess.Segments, domain.Segment{Intent: intent, StartIndex: idx, StartedAt: now})
	}
}

// Record forwards one answered query to the persister. Failures are logged.
func (s *Store) Record(ctx context.Context, id string, tokens int) {
	if s.persist == nil || id == "" {
		return
	}
	if err := s.persist.TouchSession(ctx, id, s.now(), tokens); err != nil {
		s.logger.Warn("Session persist failed", zap.String("session_id", id), zap.Error(err))
	}
}

// Get returns a copy of the session.
func (s *Store) Get(id string) (domain.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()

	e, ok := s.sessions[id]
	if !ok {
		return domain.Session{}, false
	}
	out := e.sess
	out.Messages = slices.Clone(e.sess.Messages)
	out.Segments = slices.Clone(e.sess.Segments)
	return out, true
}

// Len is the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Store) entryLocked(id string) *entry {
	if e, ok := s.sessions[id]; ok {
		return e
	}
	now := s.now()
	e := &entry{sess: domain.Session{ID: id, CreatedAt: now, LastActivity: now}}
	s.sessions[id] = e
	return e
}

func (s *Store) sweepLocked() {
	now := s.now()
	if now.Sub(s.lastSweep) < sweepInterval {
		return
	}
	s.lastSweep = now

	evicted := 0
	for id, e := range s.sessions {
		if now.Sub(e.sess.LastActivity) > s.idle {
			delete(s.sessions, id)
			evicted++
		}
	}
	if evicted > 0 {
		s.logger.Debug("Idle sessions evicted", zap.Int("count", evicted), zap.Int("live", len(s.sessions)))
	}
}
