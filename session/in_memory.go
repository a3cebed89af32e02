package session

import (
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/agentloom/agentloom/core"
)

// ErrSessionNotFound is returned when a session id is unknown, possibly
// because retention evicted it.
var ErrSessionNotFound = errors.New("session not found")

// DefaultMaxSessions bounds how many sessions the in-memory store retains
// before evicting the least recently used one.
const DefaultMaxSessions = 1024

// Options configures the in-memory session store.
type Options struct {
	// MaxSessions caps retained sessions; least recently used sessions are
	// evicted past the cap. Values < 1 fall back to DefaultMaxSessions.
	MaxSessions int
}

// InMemoryStore is a volatile core.SessionStore keeping sessions in a
// process-local LRU cache. It is safe for concurrent access and best suited
// for tests, demos and single-process deployments. Returned sessions are
// clones, so callers cannot mutate stored state except through the store's
// own methods.
type InMemoryStore struct {
	sessions *lru.Cache[string, *core.Session]
}

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore(optFns ...func(o *Options)) *InMemoryStore {
	opts := Options{MaxSessions: DefaultMaxSessions}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxSessions < 1 {
		opts.MaxSessions = DefaultMaxSessions
	}

	cache, _ := lru.New[string, *core.Session](opts.MaxSessions)

	return &InMemoryStore{sessions: cache}
}

// Create allocates a session with a generated id for an app/user pair,
// seeding optional initial state.
func (s *InMemoryStore) Create(appName, userID string, initialState map[string]any) (*core.Session, error) {
	sess := core.NewSession(core.NewID(), appName, userID)
	if len(initialState) > 0 {
		sess.MergeState(initialState)
	}

	s.sessions.Add(sess.ID, sess)

	return sess.Clone(), nil
}

// Get returns a clone of the stored session. Lookup is by session id alone;
// the session's AppName and UserID are record fields, not part of the key,
// so callers needing per-app or per-user isolation must enforce it
// themselves. Durable store implementations should scope their lookups.
func (s *InMemoryStore) Get(sessionID string) (*core.Session, error) {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return sess.Clone(), nil
}

// AppendEvent adds an event to the session's history.
func (s *InMemoryStore) AppendEvent(sessionID string, ev core.Event) error {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	sess.AddEvent(ev)
	return nil
}

// ApplyDelta merges a key/value delta into the session state.
func (s *InMemoryStore) ApplyDelta(sessionID string, delta map[string]any) error {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	sess.MergeState(delta)
	return nil
}

// Update replaces the stored session with a clone of the provided snapshot.
func (s *InMemoryStore) Update(session *core.Session) error {
	if session == nil || session.ID == "" {
		return errors.New("session must have an id")
	}
	s.sessions.Add(session.ID, session.Clone())
	return nil
}

// Delete removes a session. Deleting an unknown id is a no-op.
func (s *InMemoryStore) Delete(sessionID string) {
	s.sessions.Remove(sessionID)
}

// Len reports how many sessions are currently retained.
func (s *InMemoryStore) Len() int { return s.sessions.Len() }
