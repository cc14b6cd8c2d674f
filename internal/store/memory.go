package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-memory ObjectStore for tests and local runs. It can
// additionally simulate read-after-write lag: with Delay(key, n) the
// first n Get/Exists calls for the key behave as if it were invisible.
type Memory struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	delays  map[string]int
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		objects: make(map[string][]byte),
		types:   make(map[string]string),
		delays:  make(map[string]int),
	}
}

// Delay makes the next n reads of key report ErrNotExist even when the
// object is present.
func (m *Memory) Delay(key string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays[key] = n
}

func (m *Memory) consumeDelay(key string) bool {
	if m.delays[key] > 0 {
		m.delays[key]--
		return true
	}
	return false
}

// Get returns a copy of the object body.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.consumeDelay(key) {
		return nil, ErrNotExist
	}
	body, ok := m.objects[key]
	if !ok {
		return nil, ErrNotExist
	}
	out := make([]byte, len(body))
	copy(out, body)
	return out, nil
}

// Put stores a copy of the body.
func (m *Memory) Put(_ context.Context, key string, body []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(body))
	copy(cp, body)
	m.objects[key] = cp
	m.types[key] = contentType
	return nil
}

// Exists reports key visibility, honoring pending delays.
func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.consumeDelay(key) {
		return false, nil
	}
	_, ok := m.objects[key]
	return ok, nil
}

// List returns up to max keys under the prefix in sorted order.
func (m *Memory) List(_ context.Context, prefix string, max int32) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0)
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	if max > 0 && int32(len(names)) > max {
		names = names[:max]
	}
	return names, nil
}

// ContentType returns the stored content type of a key, for tests.
func (m *Memory) ContentType(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.types[key]
}
