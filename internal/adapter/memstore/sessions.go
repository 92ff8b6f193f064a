package memstore

import (
	"sort"
	"sync"

	"knowflow/internal/domain"
)

// History is the ordered transcript of one session.
type History struct {
	mu    sync.RWMutex
	turns []domain.Turn

	// turnMu serialises whole turns of this session.
	turnMu sync.Mutex
}

// Turns returns a copy of the transcript.
func (h *History) Turns() []domain.Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]domain.Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}

// Append adds turns in order as a single step.
func (h *History) Append(turns ...domain.Turn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, turns...)
}

func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = nil
}

// LockTurn blocks until no other turn of this session is running and returns
// the matching unlock.
func (h *History) LockTurn() func() {
	h.turnMu.Lock()
	return h.turnMu.Unlock
}

// SessionStore maps session ids to histories. Histories are created on first
// use and live until cleared.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*History
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*History)}
}

// Get returns the history for id, creating an empty one if needed. Repeated
// calls return the same pointer until the session is cleared.
func (s *SessionStore) Get(id string) *History {
	s.mu.RLock()
	h, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		return h
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.sessions[id]; ok {
		return h
	}
	h = &History{}
	s.sessions[id] = h
	return h
}

// Clear empties the history of id and forgets it. A turn already running for
// id finishes against the detached history; the next Get starts fresh.
func (s *SessionStore) Clear(id string) {
	s.mu.Lock()
	h, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if ok {
		h.Clear()
	}
}

func (s *SessionStore) ClearAll() {
	s.mu.Lock()
	old := s.sessions
	s.sessions = make(map[string]*History)
	s.mu.Unlock()

	for _, h := range old {
		h.Clear()
	}
}

// List returns a snapshot of the id -> history map.
func (s *SessionStore) List() map[string]*History {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*History, len(s.sessions))
	for id, h := range s.sessions {
		out[id] = h
	}
	return out
}

// IDs returns the known session ids in sorted order.
func (s *SessionStore) IDs() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
