package dashboard

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"workhard-dashboard/core/dao"
	"workhard-dashboard/fork"
	"workhard-dashboard/jobs"
	"workhard-dashboard/projection"
	"workhard-dashboard/registry"
	"workhard-dashboard/views"
)

// View names, as used in page keys.
const (
	ViewBalance    = "balance"
	ViewCreateLock = "create-lock"
	ViewLocks      = "locks"
	ViewProposal   = "proposal"
	ViewJobs       = "jobs"
)

var (
	ErrLockNotFound = dao.Err("lock not found")
	// ErrViewEvicted means the view kept being evicted before it could render.
	ErrViewEvicted = dao.Err("view evicted before it rendered")
)

// page is one mounted view. Only the projections the view registers are set.
type page struct {
	scope *projection.Scope

	balance   *projection.Projection[*big.Int]
	symbol    *projection.Projection[string]
	allowance *projection.Projection[*big.Int]
	locks     *projection.Projection[[]dao.Lock]
	epoch     *projection.Projection[*big.Int]
	proposal  *projection.Projection[dao.Proposal]
	scheduled *projection.Projection[*big.Int]
	votes     *projection.Projection[*big.Int]
	board     *projection.Projection[jobs.Board]
}

func (p *page) Close() { p.scope.Close() }

func (p *page) ready() bool {
	for _, st := range p.scope.Status() {
		if !st.Ready {
			return false
		}
	}
	return true
}

// Balance renders the account's balance of token, or of VISION when token is
// the zero address.
func (s *Service) Balance(ctx context.Context, account, token common.Address) (views.BalanceCard, error) {
	if token == (common.Address{}) {
		token = s.contracts.Vision.Address()
	}
	erc20, err := s.contracts.ERC20(token)
	if err != nil {
		return views.BalanceCard{}, err
	}
	p, err := s.acquire(ctx, account, ViewBalance, token.Hex(), func(p *page) {
		p.balance = registerBalance(p.scope, erc20, account)
		p.symbol = projection.Register(p.scope, "symbol", projection.Static, func(ctx context.Context, _ projection.Key) (string, error) {
			return erc20.Symbol(ctx)
		})
	})
	if err != nil {
		return views.BalanceCard{}, err
	}
	return views.NewBalanceCard(token, p.symbol.Value(), p.balance.Value()), nil
}

// CreateLockParams is the create-lock form input.
type CreateLockParams struct {
	Amount string `json:"amount"`
	Epochs int64  `json:"epochs"`
}

func (s *Service) CreateLockForm(ctx context.Context, account common.Address, in CreateLockParams) (views.CreateLockForm, error) {
	p, err := s.lockPage(ctx, account, ViewCreateLock)
	if err != nil {
		return views.CreateLockForm{}, err
	}
	return views.NewCreateLockForm(views.CreateLockInput{
		Balance:   p.balance.Value(),
		Allowance: p.allowance.Value(),
		Staked:    staked(p.locks.Value()),
		Amount:    in.Amount,
		Epochs:    in.Epochs,
	}), nil
}

// LockParams is the lock card form input shared by every card.
type LockParams struct {
	Amount     string `json:"amount"`
	Epochs     int64  `json:"epochs"`
	DelegateTo string `json:"delegate_to"`
}

// Locks renders one card per lock the account owns.
func (s *Service) Locks(ctx context.Context, account common.Address, in LockParams) ([]views.LockCard, error) {
	p, err := s.lockPage(ctx, account, ViewLocks)
	if err != nil {
		return nil, err
	}
	now, err := s.Now(ctx)
	if err != nil {
		return nil, err
	}
	locks := p.locks.Value()
	cards := make([]views.LockCard, 0, len(locks))
	for i, lock := range locks {
		cards = append(cards, views.NewLockCard(views.LockInput{
			Index:        i,
			Lock:         lock,
			Delegatee:    lock.Delegatee,
			Now:          now,
			CurrentEpoch: p.epoch.Value(),
			Balance:      p.balance.Value(),
			Allowance:    p.allowance.Value(),
			Amount:       in.Amount,
			Epochs:       in.Epochs,
			DelegateTo:   in.DelegateTo,
		}))
	}
	return cards, nil
}

// lockPage mounts balance, locker allowance and the lock list. The lock cards
// also follow the dividend pool's epoch.
func (s *Service) lockPage(ctx context.Context, account common.Address, view string) (*page, error) {
	vision, locker, pool := s.contracts.Vision, s.contracts.Locker, s.contracts.DividendPool
	return s.acquire(ctx, account, view, "", func(p *page) {
		p.balance = registerBalance(p.scope, vision, account)
		p.allowance = projection.Register(p.scope, "allowance", projection.OnBlock, func(ctx context.Context, _ projection.Key) (*big.Int, error) {
			return vision.Allowance(ctx, account, locker.Address())
		})
		p.locks = projection.Register(p.scope, "locks", projection.OnBlock, func(ctx context.Context, _ projection.Key) ([]dao.Lock, error) {
			return loadLocks(ctx, locker, account)
		})
		if view == ViewLocks {
			p.epoch = projection.Register(p.scope, "epoch", projection.OnBlock, func(ctx context.Context, _ projection.Key) (*big.Int, error) {
				return pool.CurrentEpoch(ctx)
			})
		}
	})
}

// ProposalView renders a proposed transaction for account.
func (s *Service) ProposalView(ctx context.Context, account common.Address, tx dao.ProposedTx) (views.ProposalCard, error) {
	p, err := s.proposalPage(ctx, account, tx)
	if err != nil {
		return views.ProposalCard{}, err
	}
	now, err := s.Now(ctx)
	if err != nil {
		return views.ProposalCard{}, err
	}
	return views.NewProposalCard(views.ProposalInput{
		Tx:        tx,
		Proposal:  p.proposal.Value(),
		Scheduled: p.scheduled.Value(),
		Now:       now,
		MyVotes:   p.votes.Value(),
	}), nil
}

func (s *Service) proposalPage(ctx context.Context, account common.Address, tx dao.ProposedTx) (*page, error) {
	union, timelock := s.contracts.Union, s.contracts.Timelock
	return s.acquire(ctx, account, ViewProposal, tx.TxHash.Hex(), func(p *page) {
		p.proposal = projection.Register(p.scope, "proposal", projection.OnBlock, func(ctx context.Context, _ projection.Key) (dao.Proposal, error) {
			return union.Proposal(ctx, tx.TxHash)
		})
		p.scheduled = projection.Register(p.scope, "scheduled", projection.OnBlock, func(ctx context.Context, _ projection.Key) (*big.Int, error) {
			return timelock.Timestamp(ctx, tx.TxHash)
		})
		p.votes = projection.Register(p.scope, "votes", projection.OnBlock, func(ctx context.Context, _ projection.Key) (*big.Int, error) {
			now, err := s.Now(ctx)
			if err != nil {
				return nil, err
			}
			return union.VotesAt(ctx, account, now)
		})
	})
}

// Jobs renders the job board. The board only changes through commands, so it
// is keyed on completions, not blocks.
func (s *Service) Jobs(ctx context.Context, account common.Address) (views.JobBoard, error) {
	project, board := s.contracts.Project, s.contracts.JobBoard
	p, err := s.acquire(ctx, account, ViewJobs, "", func(p *page) {
		p.board = projection.Register(p.scope, "board", projection.Static, func(ctx context.Context, _ projection.Key) (jobs.Board, error) {
			return jobs.Load(ctx, project, board, s.concurrency)
		})
	})
	if err != nil {
		return views.JobBoard{}, err
	}
	return views.NewJobBoard(p.board.Value()), nil
}

// ProjectPage is one project of the board with its metadata document, when
// the content store could serve it.
type ProjectPage struct {
	jobs.Project
	Metadata *fork.Metadata `json:"metadata,omitempty"`
}

// Project describes one project of the board. Unreadable metadata leaves
// Metadata nil; the on-chain fields still render.
func (s *Service) Project(ctx context.Context, id int64) (ProjectPage, error) {
	p, err := jobs.Describe(ctx, s.contracts.Project, s.contracts.JobBoard, id)
	if err != nil {
		return ProjectPage{}, err
	}
	page := ProjectPage{Project: p}
	if s.content == nil || p.URI == "" {
		return page, nil
	}
	meta, err := fork.ReadMetadata(ctx, s.content, p.URI)
	if err != nil {
		s.logger.Warn("project metadata unavailable",
			zap.Int64("project", id),
			zap.String("uri", p.URI),
			zap.Error(err))
		return page, nil
	}
	page.Metadata = meta
	return page, nil
}

func registerBalance(scope *projection.Scope, token registry.Token, account common.Address) *projection.Projection[*big.Int] {
	return projection.Register(scope, "balance", projection.OnBlock, func(ctx context.Context, _ projection.Key) (*big.Int, error) {
		return token.BalanceOf(ctx, account)
	})
}

// loadLocks enumerates the account's lock NFTs and reads each one with its
// delegatee.
func loadLocks(ctx context.Context, locker registry.Locker, account common.Address) ([]dao.Lock, error) {
	count, err := locker.BalanceOf(ctx, account)
	if err != nil {
		return nil, err
	}
	if !count.IsInt64() {
		return nil, fmt.Errorf("lock count out of range: %s", count)
	}
	locks := make([]dao.Lock, count.Int64())
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i := range locks {
		g.Go(func() error {
			id, err := locker.TokenOfOwnerByIndex(gctx, account, big.NewInt(int64(i)))
			if err != nil {
				return err
			}
			lock, err := locker.Lock(gctx, id)
			if err != nil {
				return err
			}
			lock.ID = id
			if lock.Delegatee, err = locker.DelegateeOf(gctx, id); err != nil {
				return err
			}
			locks[i] = lock
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return locks, nil
}

func staked(locks []dao.Lock) *big.Int {
	total := new(big.Int)
	for _, l := range locks {
		if l.Amount != nil {
			total.Add(total, l.Amount)
		}
	}
	return total
}

func findLock(locks []dao.Lock, id *big.Int) (dao.Lock, error) {
	for _, l := range locks {
		if l.ID != nil && id != nil && l.ID.Cmp(id) == 0 {
			return l, nil
		}
	}
	return dao.Lock{}, fmt.Errorf("%w: %v", ErrLockNotFound, id)
}
