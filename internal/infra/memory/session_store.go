package memory

import (
	"context"
	"sync"
	"time"

	"friction-gate/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionStore.
// The map lock only guards lookup and insertion; each session is mutated
// under its own lock so distinct sessions never contend.
type SessionStore struct {
	ttl   time.Duration
	clock func() time.Time

	mu       sync.RWMutex
	sessions map[string]*entry
}

type entry struct {
	mu      sync.Mutex
	session domain.Session
}

// NewSessionStore creates a store; sessions older than ttl read as missing.
// A non-positive ttl keeps sessions for the life of the process.
func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		ttl:      ttl,
		clock:    time.Now,
		sessions: make(map[string]*entry),
	}
}

func (s *SessionStore) Create(_ context.Context, id string, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.sessions[id]; ok {
		e.mu.Lock()
		expired := s.expired(e)
		e.mu.Unlock()
		if !expired {
			return domain.ErrDuplicateSession
		}
	}
	s.sessions[id] = &entry{session: session.Clone()}
	return nil
}

func (s *SessionStore) Read(_ context.Context, id string) (domain.Session, error) {
	e, ok := s.lookup(id)
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if s.expired(e) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return e.session.Clone(), nil
}

func (s *SessionStore) Write(_ context.Context, id string, session domain.Session) error {
	e, ok := s.lookup(id)
	if !ok {
		return domain.ErrSessionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if s.expired(e) {
		return domain.ErrSessionNotFound
	}
	e.session = session.Clone()
	return nil
}

// Update applies fn to a private copy under the session lock and commits it
// only if fn succeeds.
func (s *SessionStore) Update(_ context.Context, id string, fn func(*domain.Session) error) (domain.Session, error) {
	e, ok := s.lookup(id)
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if s.expired(e) {
		return domain.Session{}, domain.ErrSessionNotFound
	}

	working := e.session.Clone()
	if err := fn(&working); err != nil {
		return domain.Session{}, err
	}
	e.session = working
	return working.Clone(), nil
}

// Len reports how many sessions are held, expired ones included.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *SessionStore) lookup(id string) (*entry, bool) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if s.ttl > 0 {
		e.mu.Lock()
		expired := s.expired(e)
		e.mu.Unlock()
		if expired {
			s.mu.Lock()
			if s.sessions[id] == e {
				delete(s.sessions, id)
			}
			s.mu.Unlock()
			return nil, false
		}
	}
	return e, true
}

// expired must be called with e.mu held.
func (s *SessionStore) expired(e *entry) bool {
	return e.session.Expired(s.ttl, s.clock())
}
