package history

import (
	"context"
	"sync"
)

// MemoryStore keeps transcripts in process memory. Suitable for tests and
// single-process deployments without persistence needs.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]Exchange
}

// NewMemoryStore creates an empty in-memory transcript store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]Exchange)}
}

// Append implements Store.
func (s *MemoryStore) Append(_ context.Context, sessionID string, ex Exchange) error {
	if sessionID == "" {
		return ErrInvalidSessionID
	}
	s.mu.Lock()
	s.sessions[sessionID] = append(s.sessions[sessionID], ex)
	s.mu.Unlock()
	return nil
}

// Recent implements Store.
func (s *MemoryStore) Recent(_ context.Context, sessionID string, n int) ([]Exchange, error) {
	if sessionID == "" {
		return nil, ErrInvalidSessionID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	transcript, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if n > 0 && n < len(transcript) {
		transcript = transcript[len(transcript)-n:]
	}
	out := make([]Exchange, len(transcript))
	copy(out, transcript)
	return out, nil
}

// Clear implements Store.
func (s *MemoryStore) Clear(_ context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrInvalidSessionID
	}
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	return nil
}
