package core

import (
	"context"

	"github.com/agentloom/agentloom/logging"
)

type mockSessionStore struct {
	sessions map[string]*Session
	applied  map[string]map[string]any
}

func newMockSessionStore() *mockSessionStore {
	return &mockSessionStore{sessions: map[string]*Session{}, applied: map[string]map[string]any{}}
}

func (m *mockSessionStore) Create(appName, userID string, initialState map[string]any) (*Session, error) {
	s := NewSession(NewID(), appName, userID)
	for k, v := range initialState {
		s.State[k] = v
	}
	m.sessions[s.ID] = s
	return s, nil
}

func (m *mockSessionStore) Get(id string) (*Session, error) {
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	s := NewSession(id, "test-app", "test-user")
	m.sessions[id] = s
	return s, nil
}

func (m *mockSessionStore) AppendEvent(id string, ev Event) error {
	if s, ok := m.sessions[id]; ok {
		s.AddEvent(ev)
	}
	return nil
}

func (m *mockSessionStore) ApplyDelta(id string, delta map[string]any) error {
	cp := map[string]any{}
	for k, v := range delta {
		cp[k] = v
	}
	m.applied[id] = cp
	if s, ok := m.sessions[id]; ok {
		s.MergeState(delta)
	}
	return nil
}

func (m *mockSessionStore) Update(s *Session) error {
	m.sessions[s.ID] = s
	return nil
}

type mockArtifactStore struct{ data map[string]map[string][]byte }

func (a *mockArtifactStore) Save(sid, aid string, b []byte) error {
	if a.data == nil {
		a.data = map[string]map[string][]byte{}
	}
	if _, ok := a.data[sid]; !ok {
		a.data[sid] = map[string][]byte{}
	}
	a.data[sid][aid] = append([]byte{}, b...)
	return nil
}

func (a *mockArtifactStore) Get(sid, aid string) ([]byte, error) {
	if m, ok := a.data[sid]; ok {
		return m[aid], nil
	}
	return nil, nil
}

func (a *mockArtifactStore) List(sid string) ([]string, error) {
	res := []string{}
	for k := range a.data[sid] {
		res = append(res, k)
	}
	return res, nil
}

func (a *mockArtifactStore) Delete(sid, aid string) error { return nil }

type mockMemoryStore struct{}

func (m *mockMemoryStore) Get(sid string) (map[string]any, error)     { return map[string]any{}, nil }
func (m *mockMemoryStore) Put(sid string, delta map[string]any) error { return nil }

func (m *mockMemoryStore) Search(sid, q string, limit int) ([]SearchResult, error) {
	return []SearchResult{{ID: "m1", Content: "remembered", Score: 0.9, Metadata: map[string]any{"test": true}}}, nil
}

func (m *mockMemoryStore) Store(sid, content string, md map[string]any) error { return nil }
func (m *mockMemoryStore) Delete(sid, memoryID string) error                  { return nil }

func newRunContextForTest() (*RunContext, chan Event) {
	emit := make(chan Event, 10)
	resume := make(chan struct{}, 10)
	store := newMockSessionStore()
	sess, _ := store.Create("test-app", "test-user", nil)

	rc := NewRunContext(context.Background(), RunContextConfig{
		SessionID:     sess.ID,
		RunID:         "run-x",
		Agent:         AgentInfo{Name: "agent1", Type: "test"},
		UserContent:   Content{Role: "user", Parts: []Part{TextPart{Text: "hi"}}},
		MaxModelCalls: 10,
		Emit:          emit,
		Resume:        resume,
		Session:       sess,
		SessionStore:  store,
		ArtifactStore: &mockArtifactStore{},
		MemoryStore:   &mockMemoryStore{},
		Logger:        logging.NoOpLogger{},
	})

	return rc, emit
}
