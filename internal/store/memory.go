package store

import (
	"context"
	"sync"

	"github.com/RAHAT11790/RS-ANIME-02-sub000/internal/models"
)

// MemoryStore is a process-local Store used when no Redis URL is configured
// and as the registry fixture in tests. Semantics mirror RedisStore,
// including batched deletes counting only entries that existed.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]map[string][]byte)}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) SetEntry(_ context.Context, userID, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, ok := s.users[userID]
	if !ok {
		entries = make(map[string][]byte)
		s.users[userID] = entries
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	entries[key] = cp
	return nil
}

func (s *MemoryStore) ListEntries(_ context.Context, userID string) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make(map[string][]byte, len(s.users[userID]))
	for k, v := range s.users[userID] {
		entries[k] = v
	}
	return entries, nil
}

func (s *MemoryStore) ListUsers(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]string, 0, len(s.users))
	for userID := range s.users {
		users = append(users, userID)
	}
	return users, nil
}

func (s *MemoryStore) DeleteEntries(_ context.Context, paths []models.TokenPath) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for _, p := range paths {
		entries, ok := s.users[p.UserID]
		if !ok {
			continue
		}
		if _, ok := entries[p.Key]; ok {
			delete(entries, p.Key)
			removed++
		}
		if len(entries) == 0 {
			delete(s.users, p.UserID)
		}
	}
	return removed, nil
}
