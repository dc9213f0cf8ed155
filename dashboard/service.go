// Package dashboard serves the per-account views. Each view mounts a
// projection scope keyed by account, view and parameter; scopes live in a
// TTL registry between requests and are refreshed before every render.
// Confirmed commands re-key every scope of the signing account.
package dashboard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"workhard-dashboard/bus"
	"workhard-dashboard/command"
	"workhard-dashboard/fork"
	"workhard-dashboard/metrics"
	"workhard-dashboard/projection"
	"workhard-dashboard/registry"
	"workhard-dashboard/storage/activity"
)

// Clock reports the latest observed block and its timestamp.
type Clock interface {
	Height() uint64
	Timestamp(ctx context.Context, height uint64) (int64, error)
}

// Service owns the mounted views of every account and the command runner of
// the local wallet.
type Service struct {
	contracts *registry.Contracts
	bus       *bus.Bus
	clock     Clock
	runner    *command.Runner
	wizard    *fork.Wizard
	publisher *fork.Publisher
	content   fork.Fetcher
	journal   activity.Store
	pages     *projection.Mounts[*page]
	logger    *zap.Logger
	metrics   *metrics.Metrics

	ttl         time.Duration
	maxPages    int
	concurrency int
	wall        func() time.Time

	mu   sync.Mutex
	live context.Context
}

type Option func(*Service)

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithJournal records every command outcome and enables Activity.
func WithJournal(j activity.Store) Option {
	return func(s *Service) { s.journal = j }
}

// WithPublisher enables the fork wizard's metadata upload.
func WithPublisher(p *fork.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithContent lets project pages read their metadata document.
func WithContent(f fork.Fetcher) Option {
	return func(s *Service) { s.content = f }
}

// WithMounts sets how long an unused view stays mounted and how many views
// are kept.
func WithMounts(ttl time.Duration, maxPages int) Option {
	return func(s *Service) {
		s.ttl = ttl
		s.maxPages = maxPages
	}
}

// WithConcurrency bounds the fetches a single refresh runs at once.
func WithConcurrency(n int) Option {
	return func(s *Service) { s.concurrency = n }
}

// New builds the service over a resolved contract set. signer may be nil for a
// read-only dashboard.
func New(contracts *registry.Contracts, b *bus.Bus, clock Clock, signer command.Signer, waiter command.Waiter, opts ...Option) *Service {
	s := &Service{
		contracts:   contracts,
		bus:         b,
		clock:       clock,
		logger:      zap.NewNop(),
		ttl:         5 * time.Minute,
		maxPages:    1024,
		concurrency: 8,
		wall:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.pages = projection.NewMounts[*page](s.ttl, s.maxPages)

	runnerOpts := []command.Option{
		command.WithLogger(s.logger),
		command.WithMetrics(s.metrics),
		command.WithNetwork(contracts.Network),
		command.OnComplete(s.completed),
	}
	if s.journal != nil {
		runnerOpts = append(runnerOpts, command.WithJournal(s.journal))
	}
	s.runner = command.NewRunner(signer, waiter, runnerOpts...)

	s.wizard = fork.NewWizard(s.runner, contracts, s.publisher)
	return s
}

// Contracts is the resolved contract set.
func (s *Service) Contracts() *registry.Contracts { return s.contracts }

// Runner is the command runner of the local wallet.
func (s *Service) Runner() *command.Runner { return s.runner }

// Account is the local wallet's account, if one can sign.
func (s *Service) Account() (common.Address, bool) { return s.runner.Account() }

// Run keeps mounted views refreshing on block ticks until ctx is done, then
// closes them all.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	s.live = ctx
	s.mu.Unlock()

	s.pages.Run(ctx)

	s.mu.Lock()
	s.live = nil
	s.mu.Unlock()
	return ctx.Err()
}

// Close unmounts every view.
func (s *Service) Close() {
	s.pages.Close()
	s.metrics.Mounted(0)
}

// Mounted is the number of views currently mounted.
func (s *Service) Mounted() int { return s.pages.Len() }

// Now is the timestamp of the latest observed block, or wall time before the
// first tick.
func (s *Service) Now(ctx context.Context) (int64, error) {
	h := s.clock.Height()
	if h == 0 {
		return s.wall().Unix(), nil
	}
	return s.clock.Timestamp(ctx, h)
}

// Network describes the deployment the service runs against.
type Network struct {
	Name      string            `json:"name"`
	ChainID   int64             `json:"chain_id"`
	Height    uint64            `json:"height"`
	Contracts map[string]string `json:"contracts"`
	Account   string            `json:"account,omitempty"`
	CanSign   bool              `json:"can_sign"`
	Mounted   int               `json:"mounted"`
}

func (s *Service) Network() Network {
	n := Network{
		Name:      s.contracts.Network,
		ChainID:   s.contracts.ChainID,
		Height:    s.clock.Height(),
		Contracts: make(map[string]string),
		Mounted:   s.pages.Len(),
	}
	for name, addr := range s.contracts.Addresses() {
		n.Contracts[name] = addr.Hex()
	}
	if acct, ok := s.runner.Account(); ok {
		n.Account = acct.Hex()
		n.CanSign = true
	}
	return n
}

// Activity lists journaled command outcomes.
func (s *Service) Activity(ctx context.Context, f activity.Filter) ([]activity.Entry, error) {
	if s.journal == nil {
		return []activity.Entry{}, nil
	}
	return s.journal.List(ctx, f)
}

// completed re-keys every view mounted for account.
func (s *Service) completed(account common.Address, c command.Completion) {
	n := 0
	s.pages.Range(func(_ string, p *page) {
		if p.scope.Account() == account {
			p.scope.Complete(c.Hash)
			n++
		}
	})
	s.logger.Debug("views re-keyed",
		zap.String("account", account.Hex()),
		zap.String("tx", c.Hash.Hex()),
		zap.Int("views", n))
}

// remounts bounds how often acquire mounts a view again after another request
// evicted it mid-refresh.
const remounts = 3

// acquire returns the view under (account, view, param), mounting it with
// setup on first use, and refreshes it. A view closed before its refresh
// finished holds no values, so it is mounted again.
func (s *Service) acquire(ctx context.Context, account common.Address, view, param string, setup func(p *page)) (*page, error) {
	key := pageKey(account, view, param)
	for attempt := 0; ; attempt++ {
		p, err := s.pages.Acquire(key, func() (*page, error) {
			scope := projection.Mount(s.bus, account, s.contracts.ID(),
				projection.WithLogger(s.logger),
				projection.WithMetrics(s.metrics),
				projection.WithConcurrency(s.concurrency))
			p := &page{scope: scope}
			setup(p)
			s.goLive(scope)
			return p, nil
		})
		if err != nil {
			return nil, err
		}
		s.metrics.Mounted(s.pages.Len())

		err = p.scope.Refresh(ctx)
		if p.scope.Closed() {
			if attempt < remounts {
				s.logger.Debug("view evicted during refresh, mounting again",
					zap.String("view", view),
					zap.String("account", account.Hex()))
				continue
			}
			return nil, fmt.Errorf("%s: %w", view, ErrViewEvicted)
		}
		if err != nil {
			if !p.ready() {
				return nil, fmt.Errorf("%s: %w", view, err)
			}
			// Render the last good values.
			s.logger.Warn("view refresh failed",
				zap.String("view", view),
				zap.String("account", account.Hex()),
				zap.Error(err))
		}
		return p, nil
	}
}

func (s *Service) goLive(scope *projection.Scope) {
	s.mu.Lock()
	ctx := s.live
	s.mu.Unlock()
	if ctx == nil {
		return
	}
	go func() { _ = scope.Run(ctx) }()
}

func pageKey(account common.Address, view, param string) string {
	return strings.Join([]string{strings.ToLower(account.Hex()), view, strings.ToLower(param)}, "|")
}
