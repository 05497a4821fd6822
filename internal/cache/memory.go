// Package cache provides domain.ResultCache backends: an in-process LRU,
// Redis, and SQLite. All of them treat expired entries as absent.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/sunset-stats/internal/domain"
)

// Memory is an in-process result cache. When it holds more than maxEntries
// results it drops expired ones first and then the least recently used. A
// maxEntries of zero or less means unbounded.
type Memory struct {
	clock      clockwork.Clock
	maxEntries int

	mu    sync.Mutex
	order *list.List // of *memEntry, most recently used at the front
	index map[string]*list.Element
	// earliest is a lower bound on every stored expiry. Sweeps are skipped
	// until the clock passes it.
	earliest time.Time
}

type memEntry struct {
	key       string
	result    domain.SunsetResult
	expiresAt time.Time
}

// NewMemory creates an in-memory cache.
func NewMemory(maxEntries int, clock clockwork.Clock) *Memory {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Memory{
		clock:      clock,
		maxEntries: maxEntries,
		order:      list.New(),
		index:      make(map[string]*list.Element),
	}
}

func (m *Memory) Get(_ context.Context, key string) (domain.SunsetResult, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.index[key]
	if !ok {
		return domain.SunsetResult{}, false, nil
	}
	e := el.Value.(*memEntry)
	if !m.clock.Now().Before(e.expiresAt) {
		m.drop(el)
		return domain.SunsetResult{}, false, nil
	}
	m.order.MoveToFront(el)
	return e.result, true, nil
}

func (m *Memory) Put(_ context.Context, key string, result domain.SunsetResult, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	expiresAt := now.Add(ttl)
	if m.order.Len() == 0 || expiresAt.Before(m.earliest) {
		m.earliest = expiresAt
	}

	if el, ok := m.index[key]; ok {
		e := el.Value.(*memEntry)
		e.result, e.expiresAt = result, expiresAt
		m.order.MoveToFront(el)
		return nil
	}
	m.index[key] = m.order.PushFront(&memEntry{key: key, result: result, expiresAt: expiresAt})

	if m.maxEntries > 0 && m.order.Len() > m.maxEntries {
		m.sweep(now)
		for m.order.Len() > m.maxEntries {
			m.drop(m.order.Back())
		}
	}
	return nil
}

// Len returns the number of stored entries, including expired ones not yet
// dropped.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}

// sweep drops every entry expired at now and recomputes earliest.
func (m *Memory) sweep(now time.Time) {
	if now.Before(m.earliest) {
		return
	}
	var next time.Time
	for el := m.order.Back(); el != nil; {
		prev := el.Prev()
		e := el.Value.(*memEntry)
		switch {
		case !now.Before(e.expiresAt):
			m.drop(el)
		case next.IsZero() || e.expiresAt.Before(next):
			next = e.expiresAt
		}
		el = prev
	}
	m.earliest = next
}

func (m *Memory) drop(el *list.Element) {
	delete(m.index, el.Value.(*memEntry).key)
	m.order.Remove(el)
}
