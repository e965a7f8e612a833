package session

import (
	"sync"
	"time"

	"github.com/hupe1980/replanmesh/core"
)

// InMemoryStore is a volatile Store keeping sessions in a process local map.
// Returned sessions are clones, so callers cannot mutate stored state.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*Session), now: time.Now}
}

// Get implements Store.
func (s *InMemoryStore) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sess.Clone(), nil
}

// Save implements Store.
func (s *InMemoryStore) Save(id string, msgs []core.Message, rec RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		sess = &Session{ID: id}
		s.sessions[id] = sess
	}

	now := s.now().UTC()
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = now
	}

	sess.Messages = append([]core.Message(nil), msgs...)
	sess.Runs = append(sess.Runs, rec)
	sess.UpdatedAt = now

	return nil
}

// Delete implements Store.
func (s *InMemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// IDs returns the known session ids in no particular order.
func (s *InMemoryStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}
