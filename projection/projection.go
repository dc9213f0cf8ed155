// Package projection keeps per-view caches of contract reads. A Scope is one
// mounted view; each Projection inside it holds the last good value of one
// read, tagged with the key it was fetched under. A projection is fetched again
// only when its key changes: a new block tick (for block-bound reads), a new
// completion token, another account or another contract set.
package projection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"workhard-dashboard/bus"
	"workhard-dashboard/metrics"
)

// Key is the fetch key of a projection value.
type Key struct {
	Account    common.Address `json:"account"`
	Contracts  string         `json:"contracts"`
	Block      uint64         `json:"block"`
	Completion common.Hash    `json:"completion"`
}

// Deps selects the optional parts of a key.
type Deps uint8

const (
	// Static projections only change with the account, the contract set or a
	// completion token.
	Static Deps = 0
	// OnBlock projections are also fetched again on every block tick.
	OnBlock Deps = 1
)

// Fetch reads a projection value for key.
type Fetch[T any] func(ctx context.Context, key Key) (T, error)

type Option func(*Scope)

func WithLogger(l *zap.Logger) Option {
	return func(s *Scope) { s.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scope) { s.metrics = m }
}

// WithConcurrency bounds the number of fetches one Refresh runs at once.
func WithConcurrency(n int) Option {
	return func(s *Scope) { s.limit = n }
}

// Scope is a mounted view. It must be closed when the view goes away; values
// are dropped and fetches still in flight are discarded when they land.
type Scope struct {
	bus       *bus.Bus
	account   common.Address
	contracts string
	logger    *zap.Logger
	metrics   *metrics.Metrics
	limit     int

	mu         sync.Mutex
	completion common.Hash
	closed     bool
	entries    []entry
	names      map[string]struct{}

	kick      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// Mount creates a scope for account over the contract set contracts.
func Mount(b *bus.Bus, account common.Address, contracts string, opts ...Option) *Scope {
	s := &Scope{
		bus:       b,
		account:   account,
		contracts: contracts,
		logger:    zap.NewNop(),
		names:     make(map[string]struct{}),
		kick:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scope) Account() common.Address { return s.account }

func (s *Scope) ContractsID() string { return s.contracts }

// Key is the current key for a projection with deps.
func (s *Scope) Key(deps Deps) Key {
	s.mu.Lock()
	completion := s.completion
	s.mu.Unlock()

	k := Key{Account: s.account, Contracts: s.contracts, Completion: completion}
	if deps&OnBlock != 0 {
		k.Block = s.bus.Version()
	}
	return k
}

// Complete records a confirmed transaction. Every projection key changes, so
// the next Refresh fetches each projection once more.
func (s *Scope) Complete(hash common.Hash) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.completion = hash
	s.mu.Unlock()

	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Completion is the latest completion token.
func (s *Scope) Completion() common.Hash {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completion
}

func (s *Scope) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Done is closed when the scope is closed.
func (s *Scope) Done() <-chan struct{} { return s.done }

// Close releases the scope. It is safe to call more than once.
func (s *Scope) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		entries := s.entries
		s.mu.Unlock()

		for _, e := range entries {
			e.evict()
		}
		close(s.done)
	})
}

// Refresh fetches every projection whose key changed since its last good
// value. Fetches run concurrently; a projection already being fetched under
// the same key is joined, not fetched twice. A failed fetch keeps the previous
// value and the first error is returned.
func (s *Scope) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	entries := append([]entry(nil), s.entries...)
	s.mu.Unlock()

	var g errgroup.Group
	if s.limit > 0 {
		g.SetLimit(s.limit)
	}
	for _, e := range entries {
		key := s.Key(e.deps())
		if e.current(key) {
			continue
		}
		g.Go(func() error {
			return e.load(ctx, key)
		})
	}
	return g.Wait()
}

// Run refreshes on every bus advance and every completion until ctx is done
// or the scope is closed.
func (s *Scope) Run(ctx context.Context) error {
	ch, cancel := s.bus.Subscribe()
	defer cancel()

	s.refreshLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		case _, ok := <-ch:
			if !ok {
				return nil
			}
			s.refreshLogged(ctx)
		case <-s.kick:
			s.refreshLogged(ctx)
		}
	}
}

func (s *Scope) refreshLogged(ctx context.Context) {
	if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
		s.logger.Warn("projection refresh failed",
			zap.String("account", s.account.Hex()),
			zap.String("contracts", s.contracts),
			zap.Error(err))
	}
}

// Status describes one projection for diagnostics.
type Status struct {
	Name    string `json:"name"`
	Key     Key    `json:"key"`
	Ready   bool   `json:"ready"`
	Fetches int    `json:"fetches"`
	Error   string `json:"error,omitempty"`
}

// Status lists every projection in registration order.
func (s *Scope) Status() []Status {
	s.mu.Lock()
	entries := append([]entry(nil), s.entries...)
	s.mu.Unlock()

	out := make([]Status, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.status())
	}
	return out
}

type entry interface {
	deps() Deps
	current(key Key) bool
	load(ctx context.Context, key Key) error
	status() Status
	evict()
}

// Projection is one typed read inside a scope.
type Projection[T any] struct {
	scope *Scope
	name  string
	dep   Deps
	fetch Fetch[T]

	mu       sync.Mutex
	value    T
	ok       bool
	key      Key
	err      error
	fetches  int
	gen      uint64
	storedAt uint64
	inflight map[Key]*flight
}

type flight struct {
	done chan struct{}
	err  error
}

// Register adds a projection named name to s. Names are unique per scope.
func Register[T any](s *Scope, name string, deps Deps, fetch Fetch[T]) *Projection[T] {
	p := &Projection[T]{
		scope:    s,
		name:     name,
		dep:      deps,
		fetch:    fetch,
		inflight: make(map[Key]*flight),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.names[name]; dup {
		panic(fmt.Sprintf("projection %q registered twice", name))
	}
	s.names[name] = struct{}{}
	s.entries = append(s.entries, p)
	return p
}

func (p *Projection[T]) Name() string { return p.name }

func (p *Projection[T]) deps() Deps { return p.dep }

func (p *Projection[T]) current(key Key) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ok && p.key == key
}

func (p *Projection[T]) load(ctx context.Context, key Key) error {
	p.mu.Lock()
	if p.ok && p.key == key {
		p.mu.Unlock()
		return nil
	}
	if f, ok := p.inflight[key]; ok {
		p.mu.Unlock()
		select {
		case <-f.done:
			return f.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f := &flight{done: make(chan struct{})}
	p.inflight[key] = f
	p.fetches++
	p.gen++
	gen := p.gen
	p.mu.Unlock()

	start := time.Now()
	v, err := p.fetch(ctx, key)
	p.scope.metrics.Fetched(p.name, time.Since(start), err)

	p.mu.Lock()
	delete(p.inflight, key)
	switch {
	case p.scope.Closed():
		// Stale: the view is gone.
	case err != nil:
		p.err = fmt.Errorf("%s: %w", p.name, err)
		f.err = p.err
	case gen > p.storedAt:
		p.value, p.ok, p.key, p.err = v, true, key, nil
		p.storedAt = gen
	}
	p.mu.Unlock()
	close(f.done)
	return f.err
}

// Get returns the last good value and whether there is one.
func (p *Projection[T]) Get() (T, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value, p.ok
}

// Value is the last good value, or the zero value.
func (p *Projection[T]) Value() T {
	v, _ := p.Get()
	return v
}

// Err is the error of the latest failed fetch, cleared by the next success.
func (p *Projection[T]) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Key is the key the current value was fetched under.
func (p *Projection[T]) Key() Key {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.key
}

// Fetches counts the fetches started for this projection.
func (p *Projection[T]) Fetches() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetches
}

// Load refreshes this projection alone and returns its value.
func (p *Projection[T]) Load(ctx context.Context) (T, error) {
	if err := p.load(ctx, p.scope.Key(p.dep)); err != nil {
		var zero T
		return zero, err
	}
	return p.Value(), nil
}

func (p *Projection[T]) status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := Status{Name: p.name, Key: p.key, Ready: p.ok, Fetches: p.fetches}
	if p.err != nil {
		st.Error = p.err.Error()
	}
	return st
}

func (p *Projection[T]) evict() {
	p.mu.Lock()
	defer p.mu.Unlock()
	var zero T
	p.value, p.ok, p.key = zero, false, Key{}
}
