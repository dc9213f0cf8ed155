package activity

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps entries in process. It is used when no database is
// configured.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
	maxSize int
	now     func() time.Time
}

// NewMemoryStore keeps at most maxSize entries, dropping the oldest.
func NewMemoryStore(maxSize int) *MemoryStore {
	if maxSize <= 0 {
		maxSize = 10_000
	}
	return &MemoryStore{
		entries: make(map[string]Entry),
		maxSize: maxSize,
		now:     time.Now,
	}
}

func (s *MemoryStore) Append(_ context.Context, e Entry) (Entry, error) {
	e, err := prepare(e, s.now())
	if err != nil {
		return Entry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.ID] = e
	if len(s.entries) > s.maxSize {
		s.dropOldest()
	}
	return e, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return Entry{}, ErrEntryNotFound
	}
	return e, nil
}

// List returns matching entries, newest first.
func (s *MemoryStore) List(_ context.Context, f Filter) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entry
	for _, e := range s.entries {
		if f.Account != "" && !strings.EqualFold(e.Account, f.Account) {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		if f.Outcome != "" && e.Outcome != f.Outcome {
			continue
		}
		out = append(out, e)
	}
	sortNewest(out)
	if limit := limitOf(f); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Close() {}

func (s *MemoryStore) dropOldest() {
	all := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		all = append(all, e)
	}
	sortNewest(all)
	for _, e := range all[s.maxSize:] {
		delete(s.entries, e.ID)
	}
}

func sortNewest(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].ID > entries[j].ID
		}
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
}
