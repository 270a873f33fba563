package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"sales-agent/internal/domain"
)

// ErrInvalidTTL is returned by New for a non-positive TTL.
var ErrInvalidTTL = errors.New("session: ttl must be positive")

// Store keeps conversation contexts in memory and expires them once they
// have not been updated for longer than the TTL.
//
// Every multi-step sequence (expiry check + eviction, get-or-create, save,
// delete) runs under a single lock. Contexts cross the Store boundary as
// deep copies, so callers never share mutable state with the map or with
// each other.
type Store struct {
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu       sync.Mutex
	contexts map[string]*domain.ConversationContext
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Store. The TTL is fixed for the life of the Store.
func New(ttl time.Duration, opts ...Option) (*Store, error) {
	if ttl <= 0 {
		return nil, ErrInvalidTTL
	}
	s := &Store{
		ttl:      ttl,
		now:      time.Now,
		logger:   slog.Default(),
		contexts: make(map[string]*domain.ConversationContext),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) TTL() time.Duration {
	return s.ttl
}

// expired must be called with mu held.
func (s *Store) expired(c *domain.ConversationContext, now time.Time) bool {
	return now.Sub(c.UpdatedAt) > s.ttl
}

// live returns the stored context for id, evicting it when expired. It must
// be called with mu held.
func (s *Store) live(id string, now time.Time) *domain.ConversationContext {
	c, ok := s.contexts[id]
	if !ok {
		return nil
	}
	if s.expired(c, now) {
		delete(s.contexts, id)
		s.logger.Debug("session expired", "session_id", id)
		return nil
	}
	return c
}

// Get returns a copy of the live context for id, or nil when it is absent
// or expired. An expired entry is removed.
func (s *Store) Get(_ context.Context, id string) (*domain.ConversationContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.live(id, s.now())
	if c == nil {
		return nil, nil
	}
	return s.handOut(c), nil
}

// GetOrCreate returns a copy of the live context for id, creating and
// storing an empty one when there is none.
func (s *Store) GetOrCreate(_ context.Context, id string) (*domain.ConversationContext, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("session: id must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	c := s.live(id, now)
	if c == nil {
		c = domain.NewConversationContext(id, now)
		s.contexts[id] = c
		s.logger.Debug("session created", "session_id", id)
	}
	return s.handOut(c), nil
}

// Save upserts c and refreshes its UpdatedAt to now, both on c and on the
// stored copy.
func (s *Store) Save(_ context.Context, c *domain.ConversationContext) error {
	if c == nil {
		return errors.New("session: context must not be nil")
	}
	if strings.TrimSpace(c.SessionID) == "" {
		return errors.New("session: context has no session id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c.Touch(s.now())
	stored := c.Clone()
	stored.SetClock(nil)
	s.contexts[c.SessionID] = stored
	return nil
}

// Delete removes id and reports whether it was present.
func (s *Store) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contexts[id]; !ok {
		return false, nil
	}
	delete(s.contexts, id)
	return true, nil
}

// Exists reports whether a live context is stored for id.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return c != nil, nil
}

// ClearAll removes every context and returns how many of them were still
// live. Expired entries are dropped without being counted.
func (s *Store) ClearAll(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for _, c := range s.contexts {
		if !s.expired(c, now) {
			n++
		}
	}
	s.contexts = make(map[string]*domain.ConversationContext)
	return n, nil
}

// ExpireNow evicts every expired context without waiting for it to be read
// and returns how many were evicted.
func (s *Store) ExpireNow(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for id, c := range s.contexts {
		if s.expired(c, now) {
			delete(s.contexts, id)
			n++
		}
	}
	if n > 0 {
		s.logger.Debug("expired sessions swept", "count", n)
	}
	return n, nil
}

// Len returns the number of stored contexts, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.contexts)
}

func (s *Store) handOut(c *domain.ConversationContext) *domain.ConversationContext {
	out := c.Clone()
	out.SetClock(s.now)
	return out
}
