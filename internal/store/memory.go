package store

import (
	"context"
	"sync"

	"dixi/internal/domain"
)

// memoryStore keeps the encoded blob in memory so Load returns an
// independent copy, the same as the persistent drivers.
type memoryStore struct {
	mu   sync.RWMutex
	blob []byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{}
}

func (s *memoryStore) Load(_ context.Context) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return decodeLog(s.blob)
}

func (s *memoryStore) Save(_ context.Context, messages []domain.Message) error {
	blob, err := encodeLog(messages)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blob = blob
	return nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blob = nil
	return nil
}
