// Package cache is a TTL key/value cache with an API-first lookup strategy.
// Entries are owned by a single Manager and written through to its Store.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"contextanalyzer/internal/metrics"
)

const DefaultTTLDays = 7

type Manager struct {
	name    string
	ttlDays int
	store   Store
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]Entry
}

type Option func(*Manager)

// WithStore enables persistence. Without it the cache lives in memory only.
func WithStore(s Store) Option { return func(m *Manager) { m.store = s } }

func WithLogger(l *zap.Logger) Option { return func(m *Manager) { m.logger = l } }

func WithMetrics(mt *metrics.Metrics) Option { return func(m *Manager) { m.metrics = mt } }

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// New builds a Manager named name (used in logs and metrics) and loads any
// persisted entries from the store.
func New(name string, ttlDays int, opts ...Option) (*Manager, error) {
	if ttlDays <= 0 {
		ttlDays = DefaultTTLDays
	}
	m := &Manager{
		name:    name,
		ttlDays: ttlDays,
		now:     time.Now,
		entries: make(map[string]Entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	m.logger = m.logger.With(zap.String("cache", name))

	if m.store != nil {
		loaded, err := m.store.Load()
		if err != nil {
			return nil, fmt.Errorf("load cache %s: %w", name, err)
		}
		m.entries = loaded
		m.logger.Debug("cache loaded", zap.Int("entries", len(loaded)))
	}
	return m, nil
}

// HashKey is the storage key for a caller key.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func (m *Manager) TTLDays() int { return m.ttlDays }

func (m *Manager) Name() string { return m.name }

// Get returns the raw value for key. Expired entries are evicted and
// reported as missing.
func (m *Manager) Get(key string) (json.RawMessage, bool) {
	hashed := HashKey(key)

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[hashed]
	if !ok {
		m.metrics.CacheLookup(m.name, "miss")
		return nil, false
	}
	if entry.IsExpired(m.now()) {
		delete(m.entries, hashed)
		m.persistDelete(hashed)
		m.metrics.CacheLookup(m.name, "evicted")
		return nil, false
	}
	entry.Hits++
	m.entries[hashed] = entry
	m.persistPut(hashed, entry)
	m.metrics.CacheLookup(m.name, "hit")
	return entry.Data, true
}

// Set stores value under key with a fresh timestamp.
func (m *Manager) Set(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value: %w", err)
	}
	hashed := HashKey(key)
	entry := Entry{Data: data, CreatedAt: m.now().UTC(), TTLDays: m.ttlDays}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[hashed] = entry
	if m.store != nil {
		if err := m.store.Put(hashed, entry); err != nil {
			return fmt.Errorf("persist cache entry: %w", err)
		}
	}
	return nil
}

// peek returns the entry for key regardless of expiry, without counting a hit.
func (m *Manager) peek(key string) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[HashKey(key)]
	return entry, ok
}

// Prune removes every expired entry and returns how many were removed.
func (m *Manager) Prune() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var removed []string
	for k, e := range m.entries {
		if e.IsExpired(now) {
			delete(m.entries, k)
			removed = append(removed, k)
		}
	}
	if len(removed) > 0 {
		m.persistDelete(removed...)
		m.logger.Info("cache pruned", zap.Int("removed", len(removed)))
	}
	return len(removed)
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	st := Stats{Entries: len(m.entries)}
	for _, e := range m.entries {
		st.Hits += e.Hits
		if e.IsExpired(now) {
			st.Expired++
		}
	}
	return st
}

func (m *Manager) persistPut(key string, entry Entry) {
	if m.store == nil {
		return
	}
	if err := m.store.Put(key, entry); err != nil {
		m.logger.Warn("cache write-through failed", zap.Error(err))
	}
}

func (m *Manager) persistDelete(keys ...string) {
	if m.store == nil {
		return
	}
	if err := m.store.Delete(keys...); err != nil {
		m.logger.Warn("cache delete failed", zap.Error(err))
	}
}

// GetOrCompute returns the cached value for key, or calls compute and caches
// its result. fromCache reports which happened. forceRefresh skips the lookup.
func GetOrCompute[T any](m *Manager, key string, compute func() (T, error), forceRefresh bool) (T, bool, error) {
	if !forceRefresh {
		if raw, ok := m.Get(key); ok {
			var v T
			if err := json.Unmarshal(raw, &v); err == nil {
				return v, true, nil
			}
			m.logger.Warn("cached value has unexpected shape, recomputing")
		}
	}

	v, err := compute()
	if err != nil {
		var zero T
		return zero, false, err
	}
	if err := m.Set(key, v); err != nil {
		m.logger.Warn("cache set failed", zap.Error(err))
	}
	return v, false, nil
}

// GetOrComputeWithAPIFirst prefers a fresh cached value over calling api.
// Without one it calls api; on api failure any existing entry, even an
// expired one, is returned tagged SourceCacheExpired. Only when nothing is
// cached does the api error surface.
func GetOrComputeWithAPIFirst[T any](m *Manager, key string, api func() (T, error)) (T, Source, error) {
	var zero T

	entry, exists := m.peek(key)
	if exists && !entry.IsExpired(m.now()) {
		if raw, ok := m.Get(key); ok {
			var v T
			if err := json.Unmarshal(raw, &v); err == nil {
				return v, SourceCache, nil
			}
		}
	}

	v, err := api()
	if err == nil {
		if setErr := m.Set(key, v); setErr != nil {
			m.logger.Warn("cache set failed", zap.Error(setErr))
		}
		m.metrics.CacheLookup(m.name, string(SourceAPI))
		return v, SourceAPI, nil
	}

	if exists {
		var stale T
		if jsonErr := json.Unmarshal(entry.Data, &stale); jsonErr == nil {
			m.logger.Warn("api call failed, serving stale cache",
				zap.Error(err),
				zap.Duration("age", entry.Age(m.now())),
			)
			m.metrics.CacheLookup(m.name, string(SourceCacheExpired))
			return stale, SourceCacheExpired, nil
		}
	}
	return zero, "", err
}
