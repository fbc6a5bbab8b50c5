package cache

import (
	"sync"
	"time"
)

type entry struct {
	value     string
	expiresAt time.Time
}

// Memory is an in-process Store with per-key TTLs. Expired entries are
// dropped lazily on read.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

func (m *Memory) Get(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return "", ErrNotFound
	}
	if !e.expiresAt.IsZero() && m.now().After(e.expiresAt) {
		delete(m.entries, key)
		return "", ErrNotFound
	}
	return e.value, nil
}

// Put stores value under key. A ttlSeconds of zero or below keeps the entry
// until it is removed.
func (m *Memory) Put(key string, value string, ttlSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := entry{value: value}
	if ttlSeconds > 0 {
		e.expiresAt = m.now().Add(time.Duration(ttlSeconds) * time.Second)
	}
	m.entries[key] = e
	return nil
}

func (m *Memory) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}
