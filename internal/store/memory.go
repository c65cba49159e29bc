package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Memory is an in-memory Store for tests and for running without a database.
// The host list is kept as JSON under KeyDNSHostnames, the same layout the
// Android app uses.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *Memory) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *Memory) Remove(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func (m *Memory) LoadHosts(ctx context.Context) ([]HostRecord, error) {
	m.mu.RLock()
	raw, ok := m.values[KeyDNSHostnames]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	var hosts []HostRecord
	if err := json.Unmarshal([]byte(raw), &hosts); err != nil {
		return nil, fmt.Errorf("decoding host list: %w", err)
	}
	return hosts, nil
}

func (m *Memory) SaveHosts(ctx context.Context, hosts []HostRecord) error {
	data, err := json.Marshal(hosts)
	if err != nil {
		return fmt.Errorf("encoding host list: %w", err)
	}
	return m.Set(ctx, KeyDNSHostnames, string(data))
}

func (m *Memory) Close() error { return nil }
