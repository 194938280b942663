package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is a non-durable Store for tests and ephemeral runs.
type MemoryStore struct {
	mu        sync.RWMutex
	docs      map[string][]byte
	conflicts map[string]*Conflict
	history   map[string]*SyncHistory
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:      make(map[string][]byte),
		conflicts: make(map[string]*Conflict),
		history:   make(map[string]*SyncHistory),
	}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.docs[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (s *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[key] = append([]byte{}, value...)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, key)
	return nil
}

func (s *MemoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.docs {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStore) CreateConflict(_ context.Context, conflict *Conflict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *conflict
	s.conflicts[c.ID] = &c
	return nil
}

func (s *MemoryStore) GetConflict(_ context.Context, id string) (*Conflict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conflicts[id]
	if !ok {
		return nil, nil
	}
	out := *c
	return &out, nil
}

func (s *MemoryStore) ListConflicts(_ context.Context, resolved bool, limit, offset int) ([]*Conflict, error) {
	s.mu.RLock()
	var all []*Conflict
	for _, c := range s.conflicts {
		if c.Resolved == resolved {
			out := *c
			all = append(all, &out)
		}
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].DetectedAt.After(all[j].DetectedAt) })
	return page(all, limit, offset), nil
}

func (s *MemoryStore) ResolveConflict(_ context.Context, id string, strategy string, resolvedData []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conflicts[id]
	if !ok {
		return nil
	}
	c.Resolved = true
	c.ResolutionStrategy.String, c.ResolutionStrategy.Valid = strategy, true
	c.ResolvedAt.Time, c.ResolvedAt.Valid = time.Now().UTC(), true
	c.ResolvedData = append([]byte(nil), resolvedData...)
	return nil
}

func (s *MemoryStore) CreateSyncHistory(_ context.Context, history *SyncHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := *history
	s.history[h.ID] = &h
	return nil
}

func (s *MemoryStore) UpdateSyncHistory(_ context.Context, history *SyncHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.history[history.ID]
	if !ok {
		return nil
	}
	h.CompletedAt = history.CompletedAt
	h.Processed = history.Processed
	h.Failed = history.Failed
	h.Status = history.Status
	h.ErrorMessage = history.ErrorMessage
	return nil
}

func (s *MemoryStore) GetSyncHistory(_ context.Context, limit, offset int) ([]*SyncHistory, error) {
	s.mu.RLock()
	all := make([]*SyncHistory, 0, len(s.history))
	for _, h := range s.history {
		out := *h
		all = append(all, &out)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].StartedAt.After(all[j].StartedAt) })
	return page(all, limit, offset), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit >= 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
