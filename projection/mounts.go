package projection

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Closer is anything a Mounts registry can release.
type Closer interface {
	Close()
}

// Mounts keeps mounted views alive between requests. Views unused for longer
// than the TTL, or the least recently used ones beyond the size limit, are
// closed and dropped.
type Mounts[V Closer] struct {
	mu      sync.Mutex
	entries map[string]*mounted[V]
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

type mounted[V Closer] struct {
	value  V
	usedAt time.Time
}

// NewMounts creates a registry with the given TTL and max size.
func NewMounts[V Closer](ttl time.Duration, maxSize int) *Mounts[V] {
	if maxSize <= 0 {
		maxSize = 1024
	}
	return &Mounts[V]{
		entries: make(map[string]*mounted[V]),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Acquire returns the view mounted under key, mounting it when absent or
// expired.
func (m *Mounts[V]) Acquire(key string, mount func() (V, error)) (V, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if e, ok := m.entries[key]; ok {
		if !m.expired(e, now) {
			e.usedAt = now
			return e.value, nil
		}
		e.value.Close()
		delete(m.entries, key)
	}

	v, err := mount()
	if err != nil {
		var zero V
		return zero, err
	}
	m.entries[key] = &mounted[V]{value: v, usedAt: now}
	if len(m.entries) > m.maxSize {
		m.evictOldest(key)
	}
	return v, nil
}

// Release closes and drops the view under key.
func (m *Mounts[V]) Release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok {
		e.value.Close()
		delete(m.entries, key)
	}
}

// Range calls fn for every mounted view, outside the registry lock.
func (m *Mounts[V]) Range(fn func(key string, v V)) {
	m.mu.Lock()
	keys := make([]string, 0, len(m.entries))
	values := make([]V, 0, len(m.entries))
	for k, e := range m.entries {
		keys = append(keys, k)
		values = append(values, e.value)
	}
	m.mu.Unlock()

	for i := range keys {
		fn(keys[i], values[i])
	}
}

func (m *Mounts[V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Sweep drops expired views and reports how many were closed.
func (m *Mounts[V]) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := 0
	for k, e := range m.entries {
		if m.expired(e, now) {
			e.value.Close()
			delete(m.entries, k)
			n++
		}
	}
	return n
}

// Run sweeps periodically until ctx is done, then closes every view.
func (m *Mounts[V]) Run(ctx context.Context) {
	interval := m.ttl / 2
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Sweep()
		case <-ctx.Done():
			m.Close()
			return
		}
	}
}

// Close closes and drops every view.
func (m *Mounts[V]) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, e := range m.entries {
		e.value.Close()
		delete(m.entries, k)
	}
}

func (m *Mounts[V]) expired(e *mounted[V], now time.Time) bool {
	return m.ttl > 0 && now.Sub(e.usedAt) > m.ttl
}

// evictOldest drops the least recently used quarter of the views, never keep.
func (m *Mounts[V]) evictOldest(keep string) {
	type aged struct {
		key    string
		usedAt time.Time
	}
	all := make([]aged, 0, len(m.entries))
	for k, e := range m.entries {
		if k != keep {
			all = append(all, aged{k, e.usedAt})
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].usedAt.Before(all[j].usedAt) })

	n := len(m.entries) - m.maxSize
	if quarter := m.maxSize / 4; quarter > n {
		n = quarter
	}
	for i := 0; i < n && i < len(all); i++ {
		m.entries[all[i].key].value.Close()
		delete(m.entries, all[i].key)
	}
}
