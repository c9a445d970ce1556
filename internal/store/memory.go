package store

import (
	"context"
	"sync"

	"github.com/zhouzirui/z-relay/backend/internal/model/chat"
)

// MemoryStore keeps state for the life of the process only.
type MemoryStore struct {
	mu       sync.RWMutex
	messages []chat.Message
	clients  map[string]chat.ClientRecord
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{clients: make(map[string]chat.ClientRecord)}
}

func (s *MemoryStore) SaveMessages(_ context.Context, messages []chat.Message) error {
	s.mu.Lock()
	s.messages = append([]chat.Message(nil), messages...)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) SaveClients(_ context.Context, clients map[string]chat.ClientRecord) error {
	copied := make(map[string]chat.ClientRecord, len(clients))
	for id, record := range clients {
		copied[id] = record
	}

	s.mu.Lock()
	s.clients = copied
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) LoadMessages(_ context.Context) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]chat.Message(nil), s.messages...), nil
}

func (s *MemoryStore) LoadClients(_ context.Context) (map[string]chat.ClientRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	copied := make(map[string]chat.ClientRecord, len(s.clients))
	for id, record := range s.clients {
		copied[id] = record
	}
	return copied, nil
}

func (s *MemoryStore) Close() error { return nil }
