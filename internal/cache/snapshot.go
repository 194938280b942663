package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"finance-datalayer/internal/logger"
)

// SnapshotKey is the document key used by Snapshot and Restore.
const SnapshotKey = "cache_snapshot"

// KV is the slice of the durable store the cache persists into.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

type snapshotEntry struct {
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	TTL       time.Duration   `json:"ttl"`
}

// Snapshot writes every unexpired JSON entry to kv. Entries holding other
// Go values are skipped.
func (m *Manager) Snapshot(ctx context.Context, kv KV) (int, error) {
	m.mu.Lock()
	now := m.now()
	out := make([]snapshotEntry, 0, len(m.entries))
	for _, k := range m.sortedKeysLocked() {
		e := m.entries[k]
		if !e.Valid(now) {
			continue
		}
		var raw json.RawMessage
		switch d := e.Data.(type) {
		case json.RawMessage:
			raw = d
		case []byte:
			raw = d
		default:
			continue
		}
		if !json.Valid(raw) {
			continue
		}
		out = append(out, snapshotEntry{Key: k, Data: raw, Timestamp: e.Timestamp, TTL: e.TTL})
	}
	m.mu.Unlock()

	b, err := json.Marshal(out)
	if err != nil {
		return 0, fmt.Errorf("failed to encode cache snapshot: %w", err)
	}
	if err := kv.Put(ctx, SnapshotKey, b); err != nil {
		return 0, fmt.Errorf("failed to persist cache snapshot: %w", err)
	}
	return len(out), nil
}

// Restore loads a snapshot written by Snapshot. Entries that expired in the
// meantime are dropped. The original write times are kept so eviction order
// and expiry carry over.
func (m *Manager) Restore(ctx context.Context, kv KV) (int, error) {
	b, err := kv.Get(ctx, SnapshotKey)
	if err != nil {
		return 0, fmt.Errorf("failed to load cache snapshot: %w", err)
	}
	if b == nil {
		return 0, nil
	}

	var in []snapshotEntry
	if err := json.Unmarshal(b, &in); err != nil {
		logger.Log.Warn("Discarding unreadable cache snapshot", zap.Error(err))
		return 0, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := 0
	for _, s := range in {
		e := &Entry{Data: s.Data, Timestamp: s.Timestamp, TTL: s.TTL}
		if !e.Valid(now) {
			continue
		}
		if _, exists := m.entries[s.Key]; !exists && len(m.entries) >= m.maxEntries {
			m.evictOldest()
		}
		m.seq++
		e.seq = m.seq
		m.entries[s.Key] = e
		n++
	}
	return n, nil
}

func (m *Manager) sortedKeysLocked() []string {
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sortByAge(keys, m.entries)
	return keys
}
