// Package storage fans reading batches out to the configured sinks.
package storage

import (
	"fmt"
	"sync"
	"time"

	"github.com/eddielth/pt100-south/logger"
	"github.com/eddielth/pt100-south/plugin"
)

// StorageBackend represents a sink for reading batches
type StorageBackend interface {
	// Store persists a batch
	Store(batch plugin.Batch) error
	// Close releases the backend's connections
	Close() error
}

// Manager manages multiple storage backends
type Manager struct {
	backends []StorageBackend
	mutex    sync.RWMutex
}

// NewManager creates a new storage manager
func NewManager(backends []StorageBackend) *Manager {
	return &Manager{
		backends: backends,
	}
}

// Store writes batch to every backend. A failing backend is logged and does not stop the others;
// the number of failed backends is returned.
func (m *Manager) Store(batch plugin.Batch) int {
	if len(batch) == 0 {
		return 0
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()

	failed := 0
	for _, backend := range m.backends {
		if err := backend.Store(batch); err != nil {
			logger.Error("failed to store batch in backend %T: %v", backend, err)
			failed++
		}
	}

	return failed
}

// Close closes all storage backends
func (m *Manager) Close() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, backend := range m.backends {
		if err := backend.Close(); err != nil {
			logger.Error("failed to close storage backend %T: %v", backend, err)
		}
	}
}

// AddBackend adds a new storage backend
func (m *Manager) AddBackend(backend StorageBackend) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.backends = append(m.backends, backend)
}

// Len returns the number of backends
func (m *Manager) Len() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.backends)
}

// readingTime parses the timestamp of a reading
func readingTime(r plugin.Reading) (time.Time, error) {
	t, err := time.Parse(plugin.TimestampLayout, r.Timestamp)
	if err == nil {
		return t, nil
	}
	t, err = time.Parse(time.RFC3339Nano, r.Timestamp)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q of reading %s: %w", r.Timestamp, r.Key, err)
	}
	return t, nil
}
