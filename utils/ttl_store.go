package utils

import (
	"sync"
	"time"
)

// memoryTTLSet is the single-instance fallback used when Redis is not configured.
type memoryTTLSet struct {
	mu   sync.Mutex
	keys map[string]time.Time
}

var localKeys = &memoryTTLSet{keys: map[string]time.Time{}}

func (m *memoryTTLSet) setNX(key string, ttl time.Duration) bool {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	if exp, ok := m.keys[key]; ok && now.Before(exp) {
		return false
	}
	m.keys[key] = now.Add(ttl)
	m.sweepLocked(now)
	return true
}

func (m *memoryTTLSet) set(key string, ttl time.Duration) {
	m.mu.Lock()
	m.keys[key] = time.Now().Add(ttl)
	m.mu.Unlock()
}

func (m *memoryTTLSet) remaining(key string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.keys[key]
	if !ok {
		return 0
	}
	left := time.Until(exp)
	if left <= 0 {
		delete(m.keys, key)
		return 0
	}
	return left
}

func (m *memoryTTLSet) del(key string) {
	m.mu.Lock()
	delete(m.keys, key)
	m.mu.Unlock()
}

// sweepLocked drops expired keys once the map grows.
func (m *memoryTTLSet) sweepLocked(now time.Time) {
	if len(m.keys) < 1024 {
		return
	}
	for k, exp := range m.keys {
		if now.After(exp) {
			delete(m.keys, k)
		}
	}
}
