// Package cache provides stores for effect series shared between runs
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/mrcode/loop-engine/internal/models"
)

type memoryEntry struct {
	effects *models.Effects
	expires time.Time
}

// Memory is an in-process effect cache
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration // Zero keeps entries until overwritten
	now     func() time.Time
}

// NewMemory creates an in-process cache whose entries expire after ttl
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get implements loop.EffectCache
func (m *Memory) Get(_ context.Context, key string) (*models.Effects, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		m.mu.Lock()
		if cur, ok := m.entries[key]; ok && cur.expires.Equal(e.expires) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, false, nil
	}
	return e.effects, true, nil
}

// Set implements loop.EffectCache
func (m *Memory) Set(_ context.Context, key string, effects *models.Effects) error {
	e := memoryEntry{effects: effects}
	if m.ttl > 0 {
		e.expires = m.now().Add(m.ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = e
	return nil
}

// Len returns the number of stored entries, expired ones included
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
