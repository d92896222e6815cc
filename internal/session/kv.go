package session

import (
	"context"
	"sync"
)

// KV is the device-local key-value persistence the store is built on.
// Implementations must apply Set and Delete atomically across keys.
type KV interface {
	// Get returns the values present for keys; missing keys are absent from the map.
	Get(ctx context.Context, keys ...string) (map[string]string, error)
	Set(ctx context.Context, values map[string]string) error
	Delete(ctx context.Context, keys ...string) error
}

type memoryKV struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryKV builds an in-process KV, used by tests and when no backend is configured.
func NewMemoryKV() KV {
	return &memoryKV{values: make(map[string]string)}
}

func (m *memoryKV) Get(_ context.Context, keys ...string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := m.values[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (m *memoryKV) Set(_ context.Context, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range values {
		m.values[k] = v
	}
	return nil
}

func (m *memoryKV) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}
