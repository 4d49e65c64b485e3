package reading

import (
	"errors"
	"sync"
	"time"
)

var ErrSessionExists = errors.New("session already exists")

// Session is one child/book reading session.
type Session struct {
	ID        string    `json:"session_id"`
	BookID    string    `json:"book_id"`
	BookTitle string    `json:"book_title"`
	ChildName string    `json:"child_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Status    string    `json:"status"` // created | reading | ended
}

// Event is one journal entry of a reading session.
type Event struct {
	Type    string         `json:"type"`
	Ts      time.Time      `json:"timestamp"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Store keeps sessions, their event journals and their live runtimes.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	events   map[string][]Event
	runtimes map[string]*Runtime
}

func New() *Store {
	return &Store{
		sessions: make(map[string]*Session),
		events:   make(map[string][]Event),
		runtimes: make(map[string]*Runtime),
	}
}

func (s *Store) CreateSession(sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; ok {
		return ErrSessionExists
	}
	s.sessions[sess.ID] = sess
	s.events[sess.ID] = []Event{}
	return nil
}

func (s *Store) GetSession(id string) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[id]
}

func (s *Store) SetStatus(id, status string) {
	s.mu.Lock()
	if sess, ok := s.sessions[id]; ok {
		sess.Status = status
	}
	s.mu.Unlock()
}

func (s *Store) AttachRuntime(id string, rt *Runtime) {
	s.mu.Lock()
	s.runtimes[id] = rt
	s.mu.Unlock()
}

func (s *Store) Runtime(id string) *Runtime {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runtimes[id]
}

func (s *Store) ListSessionIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		out = append(out, id)
	}
	return out
}

func (s *Store) AppendEvent(sessionID, typ string, payload map[string]any) Event {
	evt := Event{Type: typ, Ts: time.Now().UTC(), Payload: payload}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[sessionID] = append(s.events[sessionID], evt)
	// Cap total events per session to avoid unbounded growth
	const maxEvents = 500
	if l := len(s.events[sessionID]); l > maxEvents {
		// Keep space for a single truncation warning so the total stays at maxEvents
		keep := maxEvents - 1
		dropped := l - keep
		s.events[sessionID] = append([]Event(nil), s.events[sessionID][l-keep:]...)
		warn := Event{Type: "events_truncated", Ts: time.Now().UTC(), Payload: map[string]any{"session_id": sessionID, "dropped": dropped, "kept": keep}}
		s.events[sessionID] = append(s.events[sessionID], warn)
	}
	return evt
}

func (s *Store) ListEvents(sessionID string) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.events[sessionID]
	out := make([]Event, len(src))
	copy(out, src)
	return out
}
