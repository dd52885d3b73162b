package prefs

import (
	"context"
	"sync"
)

// MemoryStore keeps state in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
	lists  map[string][]string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string]string),
		lists:  make(map[string][]string),
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryStore) PushFront(_ context.Context, key, value string, max int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := []string{value}
	for _, v := range m.lists[key] {
		if v != value {
			list = append(list, v)
		}
	}
	if max > 0 && len(list) > max {
		list = list[:max]
	}
	m.lists[key] = list
	return append([]string(nil), list...), nil
}

func (m *MemoryStore) Append(_ context.Context, key, value string, max int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := append(m.lists[key], value)
	if max > 0 && len(list) > max {
		list = append([]string(nil), list[len(list)-max:]...)
	}
	m.lists[key] = list
	return nil
}

func (m *MemoryStore) List(_ context.Context, key string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.lists[key]...), nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	delete(m.lists, key)
	return nil
}
