package dashboard

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"workhard-dashboard/chain"
	"workhard-dashboard/command"
	"workhard-dashboard/core/dao"
	"workhard-dashboard/fork"
)

// Commands act for the local wallet. Preconditions read the same cached
// projections the views render, so a command sees what the user saw.

func (s *Service) signerAccount() common.Address {
	acct, _ := s.runner.Account()
	return acct
}

// requireSigner lets the runner report and journal Not connected before any
// cached state is read for a missing account.
func (s *Service) requireSigner(ctx context.Context, action string) error {
	if _, ok := s.runner.Account(); ok {
		return nil
	}
	_, err := s.runner.Submit(ctx, action, nil, nil)
	return err
}

// ApproveLocker grants the locker the maximum VISION allowance.
func (s *Service) ApproveLocker(ctx context.Context) (*command.Completion, error) {
	return s.runner.Approve(ctx, s.contracts.Vision, s.contracts.Locker.Address())
}

func (s *Service) CreateLock(ctx context.Context, in CreateLockParams) (*command.Completion, error) {
	if err := s.requireSigner(ctx, command.ActionCreateLock); err != nil {
		return nil, err
	}
	balance, err := s.cachedBalance(ctx)
	if err != nil {
		return nil, err
	}
	return s.runner.CreateLock(ctx, s.contracts.Locker, command.CreateLockInput{
		Amount:  in.Amount,
		Epochs:  in.Epochs,
		Balance: balance,
	})
}

func (s *Service) IncreaseAmount(ctx context.Context, lockID *big.Int, amount string) (*command.Completion, error) {
	if err := s.requireSigner(ctx, command.ActionIncreaseAmount); err != nil {
		return nil, err
	}
	lock, balance, err := s.cachedLock(ctx, lockID)
	if err != nil {
		return nil, err
	}
	now, err := s.Now(ctx)
	if err != nil {
		return nil, err
	}
	return s.runner.IncreaseAmount(ctx, s.contracts.Locker, command.IncreaseAmountInput{
		Lock:    lock,
		Amount:  amount,
		Balance: balance,
		Now:     now,
	})
}

func (s *Service) ExtendLock(ctx context.Context, lockID *big.Int, epochs int64) (*command.Completion, error) {
	if err := s.requireSigner(ctx, command.ActionExtendLock); err != nil {
		return nil, err
	}
	lock, _, err := s.cachedLock(ctx, lockID)
	if err != nil {
		return nil, err
	}
	now, err := s.Now(ctx)
	if err != nil {
		return nil, err
	}
	return s.runner.ExtendLock(ctx, s.contracts.Locker, command.ExtendLockInput{Lock: lock, Epochs: epochs, Now: now})
}

func (s *Service) Delegate(ctx context.Context, lockID *big.Int, to string) (*command.Completion, error) {
	if err := s.requireSigner(ctx, command.ActionDelegate); err != nil {
		return nil, err
	}
	lock, _, err := s.cachedLock(ctx, lockID)
	if err != nil {
		return nil, err
	}
	return s.runner.Delegate(ctx, s.contracts.Locker, lock.ID, to)
}

func (s *Service) Withdraw(ctx context.Context, lockID *big.Int) (*command.Completion, error) {
	if err := s.requireSigner(ctx, command.ActionWithdraw); err != nil {
		return nil, err
	}
	lock, _, err := s.cachedLock(ctx, lockID)
	if err != nil {
		return nil, err
	}
	now, err := s.Now(ctx)
	if err != nil {
		return nil, err
	}
	return s.runner.Withdraw(ctx, s.contracts.Locker, lock, now)
}

func (s *Service) Vote(ctx context.Context, tx dao.ProposedTx, agree bool) (*command.Completion, error) {
	if err := s.requireSigner(ctx, command.ActionVote); err != nil {
		return nil, err
	}
	p, err := s.proposalPage(ctx, s.signerAccount(), tx)
	if err != nil {
		return nil, err
	}
	now, err := s.Now(ctx)
	if err != nil {
		return nil, err
	}
	proposal := p.proposal.Value()
	proposal.TxHash = tx.TxHash
	return s.runner.Vote(ctx, s.contracts.Union, proposal, agree, now)
}

func (s *Service) Schedule(ctx context.Context, tx dao.ProposedTx) (*command.Completion, error) {
	if err := s.requireSigner(ctx, command.ActionSchedule); err != nil {
		return nil, err
	}
	in, err := s.governance(ctx, tx)
	if err != nil {
		return nil, err
	}
	return s.runner.Schedule(ctx, s.contracts.Union, in)
}

func (s *Service) Execute(ctx context.Context, tx dao.ProposedTx) (*command.Completion, error) {
	if err := s.requireSigner(ctx, command.ActionExecute); err != nil {
		return nil, err
	}
	in, err := s.governance(ctx, tx)
	if err != nil {
		return nil, err
	}
	return s.runner.Execute(ctx, s.contracts.Union, in)
}

func (s *Service) governance(ctx context.Context, tx dao.ProposedTx) (command.GovernanceInput, error) {
	p, err := s.proposalPage(ctx, s.signerAccount(), tx)
	if err != nil {
		return command.GovernanceInput{}, err
	}
	now, err := s.Now(ctx)
	if err != nil {
		return command.GovernanceInput{}, err
	}
	return command.GovernanceInput{
		Proposal: p.proposal.Value(),
		Tx:       tx,
		State:    dao.StateOf(p.scheduled.Value(), now),
	}, nil
}

// CreateProject runs the first fork step.
func (s *Service) CreateProject(ctx context.Context, in fork.ProjectInput) (*fork.Result, error) {
	return s.wizard.Create(ctx, in)
}

func (s *Service) UpgradeToDAO(ctx context.Context, projID *big.Int, name, symbol string) (*fork.Result, error) {
	return s.wizard.Upgrade(ctx, projID, name, symbol)
}

func (s *Service) Launch(ctx context.Context, projID *big.Int, params chain.LaunchParams) (*fork.Result, error) {
	return s.wizard.Launch(ctx, projID, params)
}

func (s *Service) cachedBalance(ctx context.Context) (*big.Int, error) {
	p, err := s.lockPage(ctx, s.signerAccount(), ViewCreateLock)
	if err != nil {
		return nil, err
	}
	return p.balance.Value(), nil
}

func (s *Service) cachedLock(ctx context.Context, id *big.Int) (dao.Lock, *big.Int, error) {
	p, err := s.lockPage(ctx, s.signerAccount(), ViewLocks)
	if err != nil {
		return dao.Lock{}, nil, err
	}
	lock, err := findLock(p.locks.Value(), id)
	if err != nil {
		return dao.Lock{}, nil, err
	}
	return lock, p.balance.Value(), nil
}

// ProposalRequest is the wire form of a proposed transaction. Target, value
// and data are each a scalar or a list; TxHash defaults to the timelock
// operation id.
type ProposalRequest struct {
	TxHash string `json:"tx_hash,omitempty"`
	dao.RawCall
	Predecessor string `json:"predecessor,omitempty"`
	Salt        string `json:"salt,omitempty"`
}

// Decode checks the call shape once. A mismatch is ErrShapeMismatch and the
// proposal is never submitted.
func (r ProposalRequest) Decode() (dao.ProposedTx, error) {
	call, err := dao.DecodeCall(r.RawCall)
	if err != nil {
		return dao.ProposedTx{}, err
	}
	tx := dao.ProposedTx{Call: call}
	if tx.Predecessor, err = parseHash("predecessor", r.Predecessor); err != nil {
		return dao.ProposedTx{}, err
	}
	if tx.Salt, err = parseHash("salt", r.Salt); err != nil {
		return dao.ProposedTx{}, err
	}
	if tx.TxHash, err = parseHash("tx_hash", r.TxHash); err != nil {
		return dao.ProposedTx{}, err
	}
	if tx.TxHash == (common.Hash{}) {
		if tx.TxHash, err = dao.OperationID(call, tx.Predecessor, tx.Salt); err != nil {
			return dao.ProposedTx{}, err
		}
	}
	return tx, nil
}

func parseHash(field, s string) (common.Hash, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return common.Hash{}, nil
	}
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("%s: not a 32-byte hex value: %q", field, s)
	}
	return common.BytesToHash(b), nil
}
