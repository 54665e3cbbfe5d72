package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmmcquay/katago-retro/internal/config"
	"github.com/dmmcquay/katago-retro/internal/logging"
)

// Manager caches engine results under content-derived keys. A disabled
// manager misses every lookup and drops every store.
type Manager[V any] struct {
	lru     *LRU[V]
	logger  logging.ContextLogger
	enabled bool
}

// NewManager creates a manager from cfg. A nil or disabled cfg yields a
// disabled manager.
func NewManager[V any](cfg *config.CacheConfig, logger logging.ContextLogger) *Manager[V] {
	if cfg == nil || !cfg.Enabled {
		return &Manager[V]{logger: logger}
	}

	return &Manager[V]{
		lru:     NewLRU[V](cfg.MaxItems, cfg.MaxSizeBytes, time.Duration(cfg.TTLSeconds)*time.Second),
		logger:  logger,
		enabled: true,
	}
}

// Key hashes the JSON encoding of v. Struct fields encode in declaration
// order and map keys sorted, so equal inputs give equal keys.
func Key(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cache key: %w", err)
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// Get returns the cached value for key.
func (m *Manager[V]) Get(key string) (V, bool) {
	if !m.enabled {
		var zero V
		return zero, false
	}
	return m.lru.Get(key)
}

// Put stores value under key, sized by its JSON encoding.
func (m *Manager[V]) Put(key string, value V) {
	if !m.enabled {
		return
	}
	size := EstimateSize(value)
	m.lru.Put(key, value, size)
	m.logger.Debug("Cached engine result", "key", key[:min(len(key), 12)], "size", size)
}

// Stats returns cache counters. A disabled manager reports zeros.
func (m *Manager[V]) Stats() Stats {
	if !m.enabled {
		return Stats{}
	}
	return m.lru.Stats()
}

func (m *Manager[V]) Clear() {
	if m.enabled {
		m.lru.Clear()
	}
}

func (m *Manager[V]) IsEnabled() bool {
	return m.enabled
}

// EstimateSize approximates the memory used by v from its JSON encoding.
func EstimateSize(v interface{}) int64 {
	data, err := json.Marshal(v)
	if err != nil {
		return 1024
	}
	return int64(len(data))
}
