// Package cache is an in-memory TTL cache with a hard entry limit.
//
// Entries expire lazily on Get and eagerly through a periodic sweep. When the
// limit is reached the entry with the oldest write time is evicted; reads never
// refresh an entry's position.
package cache

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"finance-datalayer/internal/logger"
)

const (
	DefaultMaxEntries    = 1000
	DefaultTTL           = 5 * time.Minute
	DefaultSweepInterval = 60 * time.Second
)

// Entry wraps a cached value with its write time and lifetime.
type Entry struct {
	Data      any
	Timestamp time.Time
	TTL       time.Duration
	seq       uint64
}

// Valid reports whether the entry is still live at now. An entry expires
// once its full TTL has elapsed.
func (e *Entry) Valid(now time.Time) bool {
	return now.Before(e.Timestamp.Add(e.TTL))
}

type Stats struct {
	TotalEntries int     `json:"totalEntries"`
	MemoryUsage  int     `json:"memoryUsage"`
	HitRate      float64 `json:"hitRate"`
	MissRate     float64 `json:"missRate"`
	TotalHits    uint64  `json:"totalHits"`
	TotalMisses  uint64  `json:"totalMisses"`
}

type Manager struct {
	mu            sync.Mutex
	entries       map[string]*Entry
	maxEntries    int
	defaultTTL    time.Duration
	sweepInterval time.Duration
	now           func() time.Time
	seq           uint64
	hits          uint64
	misses        uint64

	cron *cron.Cron
}

type Option func(*Manager)

func WithMaxEntries(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxEntries = n
		}
	}
}

func WithDefaultTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.defaultTTL = ttl
		}
	}
}

func WithSweepInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.sweepInterval = d
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func New(opts ...Option) *Manager {
	m := &Manager{
		entries:       make(map[string]*Entry),
		maxEntries:    DefaultMaxEntries,
		defaultTTL:    DefaultTTL,
		sweepInterval: DefaultSweepInterval,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start schedules the background sweep. It is a no-op when already started.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cron != nil {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", m.sweepInterval), func() { m.Sweep() }); err != nil {
		return fmt.Errorf("failed to schedule cache sweep: %w", err)
	}
	c.Start()
	m.cron = c
	return nil
}

// Stop halts the background sweep.
func (m *Manager) Stop() {
	m.mu.Lock()
	c := m.cron
	m.cron = nil
	m.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
}

// Get returns the live value for key. Expired entries are removed.
func (m *Manager) Get(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		m.misses++
		return nil, false
	}
	if !e.Valid(m.now()) {
		delete(m.entries, key)
		m.misses++
		return nil, false
	}
	m.hits++
	return e.Data, true
}

// Set stores data under key. A ttl <= 0 uses the default TTL.
func (m *Manager) Set(key string, data any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[key]; !exists && len(m.entries) >= m.maxEntries {
		m.evictOldest()
	}
	m.seq++
	m.entries[key] = &Entry{Data: data, Timestamp: m.now(), TTL: ttl, seq: m.seq}
}

func (m *Manager) Invalidate(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

// InvalidatePattern removes every key matching re and returns how many were removed.
func (m *Manager) InvalidatePattern(re *regexp.Regexp) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for k := range m.entries {
		if re.MatchString(k) {
			delete(m.entries, k)
			n++
		}
	}
	return n
}

// Clear drops all entries. Hit and miss counters are kept.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*Entry)
}

// Sweep removes all expired entries and returns how many were removed.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := 0
	for k, e := range m.entries {
		if !e.Valid(now) {
			delete(m.entries, k)
			n++
		}
	}
	if n > 0 {
		logger.Log.Debug("Swept expired cache entries", zap.Int("removed", n))
	}
	return n
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{
		TotalEntries: len(m.entries),
		TotalHits:    m.hits,
		TotalMisses:  m.misses,
	}
	for k, e := range m.entries {
		s.MemoryUsage += len(k) + sizeOf(e.Data)
	}
	if total := m.hits + m.misses; total > 0 {
		s.HitRate = float64(m.hits) / float64(total)
		s.MissRate = float64(m.misses) / float64(total)
	}
	return s
}

// Keys returns the current keys in write order, oldest first.
func (m *Manager) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.sortedKeysLocked()
}

func (m *Manager) evictOldest() {
	var oldestKey string
	var oldest *Entry
	for k, e := range m.entries {
		if oldest == nil || older(e, oldest) {
			oldestKey, oldest = k, e
		}
	}
	if oldest != nil {
		delete(m.entries, oldestKey)
	}
}

func sortByAge(keys []string, entries map[string]*Entry) {
	sort.Slice(keys, func(i, j int) bool {
		return older(entries[keys[i]], entries[keys[j]])
	})
}

func older(a, b *Entry) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.seq < b.seq
}

func sizeOf(v any) int {
	switch d := v.(type) {
	case json.RawMessage:
		return len(d)
	case []byte:
		return len(d)
	case string:
		return len(d)
	case interface{ Len() int }:
		return d.Len()
	default:
		return len(fmt.Sprint(d))
	}
}

// BuildKey derives the cache key for a resource request: "kind",
// "kind:id", or "kind?a=1&b=2" with params sorted by name.
func BuildKey(kind, id string, params map[string]string) string {
	var b strings.Builder
	b.WriteString(kind)
	if id != "" {
		b.WriteString(":")
		b.WriteString(id)
	}
	if len(params) > 0 {
		names := make([]string, 0, len(params))
		for k := range params {
			names = append(names, k)
		}
		sort.Strings(names)
		b.WriteString("?")
		for i, k := range names {
			if i > 0 {
				b.WriteString("&")
			}
			b.WriteString(k)
			b.WriteString("=")
			b.WriteString(params[k])
		}
	}
	return b.String()
}

// ListPattern matches every list key of kind (with or without params) and
// none of its single-resource keys.
func ListPattern(kind string) *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(kind) + `(\?|$)`)
}

// KindPattern matches every key of kind.
func KindPattern(kind string) *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(kind) + `([:?]|$)`)
}
