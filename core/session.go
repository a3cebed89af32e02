package core

import (
	"maps"
	"sync"
	"time"
)

// Session is a conversational container tracking mutable key/value state plus
// an ordered event history. It is owned by a SessionStore; the execution core
// holds a reference and never deep-copies it across branches.
//
// All state mutations go through the locked methods below. Concurrent
// branches of one run share the session by reference, so writes follow
// last-write-wins per key. This is a documented property of parallel
// composition, not an accident: branch authors must choose disjoint keys or
// accept the race.
type Session struct {
	ID      string         `json:"id"`
	AppName string         `json:"app_name"`
	UserID  string         `json:"user_id"`
	State   map[string]any `json:"state"`
	Events  []Event        `json:"events"`
	Created time.Time      `json:"created"`
	Updated time.Time      `json:"updated"`
	mu      sync.RWMutex
}

// NewSession creates an empty session.
func NewSession(id, appName, userID string) *Session {
	now := time.Now()
	return &Session{
		ID:      id,
		AppName: appName,
		UserID:  userID,
		State:   map[string]any{},
		Events:  []Event{},
		Created: now,
		Updated: now,
	}
}

// GetState returns the value and existence flag for a state key.
func (s *Session) GetState(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.State[key]
	return v, ok
}

// SetState sets a single key/value pair.
func (s *Session) SetState(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State[key] = value
	s.Updated = time.Now()
}

// MergeState merges the provided key/value delta into State. This is the
// single mutation entry point used by stores and contexts.
func (s *Session) MergeState(delta map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	maps.Copy(s.State, delta)
	s.Updated = time.Now()
}

// AddEvent appends an event to the history.
func (s *Session) AddEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Events = append(s.Events, ev)
	s.Updated = time.Now()
}

// GetEvents returns a defensive copy of the full event slice.
func (s *Session) GetEvents() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := make([]Event, len(s.Events))
	copy(events, s.Events)
	return events
}

// GetConversationHistory returns events suitable as model context: only
// user/assistant/tool roles, with streaming partials excluded.
func (s *Session) GetConversationHistory() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	allowed := map[string]bool{"user": true, "assistant": true, "tool": true}
	res := make([]Event, 0, len(s.Events))
	for _, ev := range s.Events {
		if ev.Content == nil || !allowed[ev.Content.Role] {
			continue
		}
		if ev.IsPartial() {
			continue
		}
		res = append(res, ev)
	}
	return res
}

// Clone returns a deep copy of the session safe for independent mutation.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := &Session{
		ID:      s.ID,
		AppName: s.AppName,
		UserID:  s.UserID,
		State:   make(map[string]any, len(s.State)),
		Events:  make([]Event, len(s.Events)),
		Created: s.Created,
		Updated: s.Updated,
	}
	maps.Copy(clone.State, s.State)
	copy(clone.Events, s.Events)
	return clone
}

// SessionStore persists sessions and their evolving state / event history.
// The core never assumes a specific storage medium.
type SessionStore interface {
	// Create allocates a session for an app/user pair, seeding optional
	// initial state.
	Create(appName, userID string, initialState map[string]any) (*Session, error)

	// Get returns the session with the given id, or an error when unknown.
	Get(sessionID string) (*Session, error)

	// AppendEvent adds an event to the session's history.
	AppendEvent(sessionID string, event Event) error

	// ApplyDelta merges a key/value delta into the session state.
	ApplyDelta(sessionID string, delta map[string]any) error

	// Update replaces the stored session with the provided snapshot.
	Update(session *Session) error
}
