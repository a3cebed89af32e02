package testutil

import (
	"github.com/agentloom/agentloom/core"
)

// SessionBuilder helps construct sessions with fluent chaining for tests.
// Example:
//
//	sess := NewSessionBuilder("sess-1").State("k", "v").Events(ev1, ev2).Build()
type SessionBuilder struct {
	id      string
	appName string
	userID  string
	state   map[string]any
	events  []core.Event
}

// NewSessionBuilder creates a new builder for a session with the given id.
// Use chainable methods (App, User, State, Event, Events) then call Build.
func NewSessionBuilder(id string) *SessionBuilder {
	return &SessionBuilder{id: id, appName: "test-app", userID: "test-user", state: map[string]any{}}
}

// App sets the application name (chainable).
func (b *SessionBuilder) App(name string) *SessionBuilder {
	b.appName = name
	return b
}

// User sets the owning user ID (chainable).
func (b *SessionBuilder) User(id string) *SessionBuilder {
	b.userID = id
	return b
}

// State sets or overwrites a state key/value pair on the resulting session
// (chainable).
func (b *SessionBuilder) State(key string, val any) *SessionBuilder {
	b.state[key] = val
	return b
}

// Event appends a single event to the session history (chainable).
func (b *SessionBuilder) Event(ev core.Event) *SessionBuilder {
	b.events = append(b.events, ev)
	return b
}

// Events appends multiple events to the session history (chainable).
func (b *SessionBuilder) Events(evs ...core.Event) *SessionBuilder {
	b.events = append(b.events, evs...)
	return b
}

// Build returns a *core.Session with pre-populated state and events.
func (b *SessionBuilder) Build() *core.Session {
	s := core.NewSession(b.id, b.appName, b.userID)

	for k, v := range b.state {
		s.State[k] = v
	}

	s.Events = append(s.Events, b.events...)

	return s
}
