// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package inflight

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	entry   Entry
	expires time.Time
}

// Memory is a process-local Tracker. Entries expire lazily after ttl.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memEntry
	ttl     time.Duration
	maxSize int
}

// MemoryOption configures a Memory tracker.
type MemoryOption func(*Memory)

// WithTTL sets the entry lifetime.
func WithTTL(ttl time.Duration) MemoryOption {
	return func(m *Memory) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithMaxSize caps the number of entries; the oldest is evicted first.
func WithMaxSize(n int) MemoryOption {
	return func(m *Memory) { m.maxSize = n }
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries: make(map[string]memEntry),
		ttl:     DefaultTTL,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Track(_ context.Context, e Entry) error {
	now := time.Now()
	if e.StartedAt.IsZero() {
		e.StartedAt = now
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireLocked(now)
	if m.maxSize > 0 && len(m.entries) >= m.maxSize {
		if _, exists := m.entries[e.UploadID]; !exists {
			m.evictOldestLocked()
		}
	}
	m.entries[e.UploadID] = memEntry{entry: e, expires: now.Add(m.ttl)}
	return nil
}

func (m *Memory) Forget(_ context.Context, uploadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, uploadID)
	return nil
}

func (m *Memory) List(context.Context) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireLocked(time.Now())

	out := make([]Entry, 0, len(m.entries))
	for _, me := range m.entries {
		out = append(out, me.entry)
	}
	sortEntries(out)
	return out, nil
}

// Size returns the number of unexpired entries.
func (m *Memory) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireLocked(time.Now())
	return len(m.entries)
}

func (m *Memory) expireLocked(now time.Time) {
	for id, me := range m.entries {
		if !now.Before(me.expires) {
			delete(m.entries, id)
		}
	}
}

func (m *Memory) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	for id, me := range m.entries {
		if oldestID == "" || me.expires.Before(oldest) {
			oldestID, oldest = id, me.expires
		}
	}
	delete(m.entries, oldestID)
}
