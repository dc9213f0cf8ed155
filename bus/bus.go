// Package bus is the process-wide cache-invalidation bus. It carries a single
// monotonically increasing version, the latest observed block number, to every
// subscriber. Any cached value tagged with an older version is stale.
package bus

import (
	"sync"
)

// Bus fans a monotonic version out to subscribers.
type Bus struct {
	mu      sync.RWMutex
	version uint64
	nextID  int
	subs    map[int]chan uint64
}

// New returns an empty bus at version zero.
func New() *Bus {
	return &Bus{subs: make(map[int]chan uint64)}
}

// Version returns the latest version.
func (b *Bus) Version() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.version
}

// Advance moves the bus to v. Versions at or below the current one are
// ignored; the return value reports whether the bus moved.
func (b *Bus) Advance(v uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if v <= b.version {
		return false
	}
	b.version = v
	for _, ch := range b.subs {
		offer(ch, v)
	}
	return true
}

// Subscribe returns a channel that receives each new version. The channel
// holds at most one pending value; a slow reader only sees the latest one.
// cancel closes the channel and must be called once the reader is done.
func (b *Bus) Subscribe() (<-chan uint64, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan uint64, 1)
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

// Subscribers reports how many readers are attached.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// offer replaces any pending value with v. Callers hold b.mu, so there is a
// single sender per channel at a time.
func offer(ch chan uint64, v uint64) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}
