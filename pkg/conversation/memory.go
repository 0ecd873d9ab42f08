package conversation

import (
	"context"
	"sync"

	"github.com/entrhq/scout/pkg/types"
)

// MemoryStore keeps transcripts in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	messages map[string][]types.Message
	meta     map[string]Metadata
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages: make(map[string][]types.Message),
		meta:     make(map[string]Metadata),
	}
}

func (s *MemoryStore) Append(_ context.Context, key string, msg types.Message) error {
	if err := checkAppend(key, msg); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages[key] = append(s.messages[key], msg.Clone())
	m, ok := s.meta[key]
	if !ok {
		m = newMetadata(key)
	}
	touch(&m, key, len(s.messages[key]), StatusActive, now())
	s.meta[key] = m
	return nil
}

func (s *MemoryStore) Load(_ context.Context, key string) ([]types.Message, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return types.CloneMessages(s.messages[key]), nil
}

func (s *MemoryStore) Clear(_ context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages[key] = []types.Message{}
	m, ok := s.meta[key]
	if !ok {
		m = newMetadata(key)
	}
	touch(&m, key, 0, StatusCleared, now())
	s.meta[key] = m
	return nil
}

func (s *MemoryStore) Meta(_ context.Context, key string) (Metadata, error) {
	if err := ValidateKey(key); err != nil {
		return Metadata{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.meta[key]; ok {
		return m.clone(), nil
	}
	return newMetadata(key), nil
}

func (s *MemoryStore) UpdateMeta(_ context.Context, key string, patch func(*Metadata)) (Metadata, error) {
	if err := ValidateKey(key); err != nil {
		return Metadata{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.meta[key]
	if !ok {
		m = newMetadata(key)
	}
	m = applyPatch(m, key, len(s.messages[key]), patch)
	s.meta[key] = m
	return m.clone(), nil
}

func (s *MemoryStore) Close() error { return nil }
