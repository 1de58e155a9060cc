package kvstore

import (
	"context"
	"fmt"
	"strconv"
	"sync"
)

// Memory is an in-process Store for tests and single-node runs without Redis.
type Memory struct {
	mu        sync.Mutex
	namespace string
	data      map[string]string
}

// NewMemory creates an empty in-memory store.
func NewMemory(namespace string) *Memory {
	return &Memory{namespace: namespace, data: make(map[string]string)}
}

// Get returns the value at key, or ErrNotFound.
func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	val, ok := m.data[namespaced(m.namespace, key)]
	if !ok {
		return "", ErrNotFound
	}
	return val, nil
}

// Set stores value at key.
func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[namespaced(m.namespace, key)] = value
	return nil
}

// Increment adds delta to the integer at key.
func (m *Memory) Increment(_ context.Context, key string, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := namespaced(m.namespace, key)
	var current int64
	if raw, ok := m.data[k]; ok {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("value at %q is not an integer: %w", key, err)
		}
		current = n
	}
	current += delta
	m.data[k] = strconv.FormatInt(current, 10)
	return current, nil
}
