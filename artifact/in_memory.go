package artifact

import (
	"fmt"
	"sort"
	"sync"

	"github.com/agentloom/agentloom/core"
)

// InMemoryStore keeps artifacts in process memory. All data is copied on the
// way in and out so callers cannot alias internal buffers. Safe for
// concurrent use.
type InMemoryStore struct {
	mu        sync.RWMutex
	artifacts map[string]map[string][]byte
}

var _ core.ArtifactStore = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-process artifact store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		artifacts: make(map[string]map[string][]byte),
	}
}

// Save stores data under the session and artifact ID, replacing any
// previous version.
func (s *InMemoryStore) Save(sessionID, artifactID string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.artifacts[sessionID] == nil {
		s.artifacts[sessionID] = make(map[string][]byte)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	s.artifacts[sessionID][artifactID] = buf
	return nil
}

// Get returns a copy of the stored artifact.
func (s *InMemoryStore) Get(sessionID, artifactID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.artifacts[sessionID][artifactID]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, sessionID, artifactID)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return buf, nil
}

// List returns the artifact IDs stored for a session in sorted order.
func (s *InMemoryStore) List(sessionID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.artifacts[sessionID]))
	for id := range s.artifacts[sessionID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes one artifact. Deleting an unknown artifact is not an error.
func (s *InMemoryStore) Delete(sessionID, artifactID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.artifacts[sessionID], artifactID)
	return nil
}
