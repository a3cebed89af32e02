package memory

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/agentloom/agentloom/core"
)

// StoredMemory is one append-only snippet kept for a session.
type StoredMemory struct {
	ID        string
	Content   string
	Metadata  map[string]any
	CreatedAt time.Time
}

// InMemoryStore keeps session memory in process memory. Search matches by
// case-insensitive substring with a flat score. Safe for concurrent use.
type InMemoryStore struct {
	mu      sync.RWMutex
	scratch map[string]map[string]any
	stored  map[string][]StoredMemory
	counter int
}

var _ core.MemoryStore = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-process memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		scratch: make(map[string]map[string]any),
		stored:  make(map[string][]StoredMemory),
	}
}

// Get returns a copy of the session's key/value memory. Unknown sessions
// return an empty map.
func (s *InMemoryStore) Get(sessionID string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]any, len(s.scratch[sessionID]))
	for k, v := range s.scratch[sessionID] {
		out[k] = v
	}
	return out, nil
}

// Put merges delta into the session's key/value memory.
func (s *InMemoryStore) Put(sessionID string, delta map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scratch[sessionID] == nil {
		s.scratch[sessionID] = make(map[string]any, len(delta))
	}
	for k, v := range delta {
		s.scratch[sessionID][k] = v
	}
	return nil
}

// Store appends a snippet to the session's memory and assigns it an ID.
func (s *InMemoryStore) Store(sessionID string, content string, metadata map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counter++
	s.stored[sessionID] = append(s.stored[sessionID], StoredMemory{
		ID:        fmt.Sprintf("mem_%d", s.counter),
		Content:   content,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	})
	return nil
}

// Search returns stored snippets whose content contains query, newest first,
// capped at limit when limit is positive.
func (s *InMemoryStore) Search(sessionID string, query string, limit int) ([]core.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(query)
	items := s.stored[sessionID]

	var results []core.SearchResult
	for i := len(items) - 1; i >= 0; i-- {
		if needle != "" && !strings.Contains(strings.ToLower(items[i].Content), needle) {
			continue
		}
		results = append(results, core.SearchResult{
			ID:       items[i].ID,
			Content:  items[i].Content,
			Score:    1.0,
			Metadata: items[i].Metadata,
		})
		if limit > 0 && len(results) >= limit {
			break
		}
	}
	return results, nil
}

// Delete removes one stored snippet by ID.
func (s *InMemoryStore) Delete(sessionID string, memoryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.stored[sessionID]
	for i, m := range items {
		if m.ID == memoryID {
			s.stored[sessionID] = append(items[:i], items[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("memory %s not found in session %s", memoryID, sessionID)
}
