package command

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"

	"workhard-dashboard/chain"
	"workhard-dashboard/core/dao"
	"workhard-dashboard/derive"
	"workhard-dashboard/registry"
)

// Action names, as journaled.
const (
	ActionApprove        = "approve"
	ActionCreateLock     = "createLock"
	ActionIncreaseAmount = "increaseAmount"
	ActionExtendLock     = "extendLock"
	ActionDelegate       = "delegate"
	ActionWithdraw       = "withdraw"
	ActionVote           = "vote"
	ActionSchedule       = "schedule"
	ActionExecute        = "execute"
	ActionCreateProject  = "createProject"
	ActionUpgradeToDAO   = "upgradeToDAO"
	ActionLaunch         = "launch"
)

// Approve grants spender the maximum allowance over token, so the approval
// toggle stays on whatever amount is typed later.
func (r *Runner) Approve(ctx context.Context, token registry.Token, spender common.Address) (*Completion, error) {
	return r.Submit(ctx, ActionApprove, nil, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return token.Approve(opts, spender, new(big.Int).Set(math.MaxBig256))
	})
}

// CreateLockInput is the create-lock form. Balance is the cached token balance.
type CreateLockInput struct {
	Amount  string
	Epochs  int64
	Balance *big.Int
}

// CheckCreateLock validates the form and returns the amount in base units.
func CheckCreateLock(in CreateLockInput) (*big.Int, error) {
	amount, err := checkAmount(in.Amount, in.Balance)
	if err != nil {
		return nil, err
	}
	if in.Epochs < 1 || in.Epochs > dao.MaxLockEpochs {
		return nil, precondition(MsgLockPeriod)
	}
	return amount, nil
}

func (r *Runner) CreateLock(ctx context.Context, locker registry.Locker, in CreateLockInput) (*Completion, error) {
	var amount *big.Int
	check := func() (err error) {
		amount, err = CheckCreateLock(in)
		return err
	}
	return r.Submit(ctx, ActionCreateLock, check, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return locker.CreateLock(opts, amount, in.Epochs)
	})
}

// IncreaseAmountInput adds tokens to a running lock.
type IncreaseAmountInput struct {
	Lock    dao.Lock
	Amount  string
	Balance *big.Int
	Now     int64
}

// CheckIncreaseAmount only accepts a lock whose locked period has run out.
func CheckIncreaseAmount(in IncreaseAmountInput) (*big.Int, error) {
	if running(in.Lock, in.Now) {
		return nil, precondition(MsgExpired)
	}
	return checkAmount(in.Amount, in.Balance)
}

func (r *Runner) IncreaseAmount(ctx context.Context, locker registry.Locker, in IncreaseAmountInput) (*Completion, error) {
	var amount *big.Int
	check := func() (err error) {
		amount, err = CheckIncreaseAmount(in)
		return err
	}
	return r.Submit(ctx, ActionIncreaseAmount, check, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return locker.IncreaseAmount(opts, in.Lock.ID, amount)
	})
}

// ExtendLockInput pushes a lock's end out by Epochs.
type ExtendLockInput struct {
	Lock   dao.Lock
	Epochs int64
	Now    int64
}

func CheckExtendLock(in ExtendLockInput) error {
	if in.Epochs <= 0 {
		return precondition(MsgEpochNotSetup)
	}
	// An unlocked lock has the full 208 epochs available.
	if in.Epochs > derive.LockProgress(in.Lock.Start, in.Lock.End, in.Now).ExtendableEpochs {
		return precondition(MsgTooLong)
	}
	return nil
}

func (r *Runner) ExtendLock(ctx context.Context, locker registry.Locker, in ExtendLockInput) (*Completion, error) {
	return r.Submit(ctx, ActionExtendLock, func() error { return CheckExtendLock(in) }, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return locker.ExtendLock(opts, in.Lock.ID, in.Epochs)
	})
}

// CheckDelegate parses the delegatee address.
func CheckDelegate(to string) (common.Address, error) {
	to = strings.TrimSpace(to)
	if !common.IsHexAddress(to) {
		return common.Address{}, precondition(MsgInvalidAddress)
	}
	addr := common.HexToAddress(to)
	if addr == (common.Address{}) {
		return common.Address{}, precondition(MsgInvalidAddress)
	}
	return addr, nil
}

func (r *Runner) Delegate(ctx context.Context, locker registry.Locker, lockID *big.Int, to string) (*Completion, error) {
	var addr common.Address
	check := func() (err error) {
		addr, err = CheckDelegate(to)
		return err
	}
	return r.Submit(ctx, ActionDelegate, check, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return locker.Delegate(opts, lockID, addr)
	})
}

// CheckWithdraw requires the lock period to have elapsed.
func CheckWithdraw(lock dao.Lock, now int64) error {
	if running(lock, now) {
		return precondition(MsgStillLocked)
	}
	if lock.Amount == nil || lock.Amount.Sign() == 0 {
		return precondition(MsgNothingLocked)
	}
	return nil
}

func (r *Runner) Withdraw(ctx context.Context, locker registry.Locker, lock dao.Lock, now int64) (*Completion, error) {
	return r.Submit(ctx, ActionWithdraw, func() error { return CheckWithdraw(lock, now) }, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return locker.Withdraw(opts, lock.ID)
	})
}

// CheckVote requires the voting window to be open.
func CheckVote(p dao.Proposal, now int64) error {
	if dao.StatusAt(p.Start, p.End, now) != dao.VotingOpen {
		return precondition(MsgVotingClosed)
	}
	return nil
}

func (r *Runner) Vote(ctx context.Context, union registry.Union, p dao.Proposal, agree bool, now int64) (*Completion, error) {
	return r.Submit(ctx, ActionVote, func() error { return CheckVote(p, now) }, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return union.Vote(opts, p.TxHash, agree)
	})
}

// GovernanceInput is a proposed transaction with its observed state.
type GovernanceInput struct {
	Proposal dao.Proposal
	Tx       dao.ProposedTx
	State    dao.TxState
}

func CheckSchedule(in GovernanceInput) error {
	if !in.Proposal.Passed() {
		return precondition(MsgNotPassed)
	}
	if in.State != dao.TxNotScheduled {
		return precondition(MsgAlreadyScheduled)
	}
	return nil
}

func CheckExecute(in GovernanceInput) error {
	if !in.Proposal.Passed() {
		return precondition(MsgNotPassed)
	}
	if in.State != dao.TxReady {
		return precondition(MsgNotReady)
	}
	return nil
}

// Schedule queues the proposed call on the timelock. The call's shape picks
// the single or batch entry point. A missing call is a decoding bug and is
// returned as ErrShapeMismatch, not as a notice.
func (r *Runner) Schedule(ctx context.Context, union registry.Union, in GovernanceInput) (*Completion, error) {
	if in.Tx.Call == nil {
		return nil, dao.ErrShapeMismatch
	}
	return r.Submit(ctx, ActionSchedule, func() error { return CheckSchedule(in) }, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return union.Schedule(opts, in.Tx.Call, in.Tx.Predecessor, in.Tx.Salt)
	})
}

func (r *Runner) Execute(ctx context.Context, union registry.Union, in GovernanceInput) (*Completion, error) {
	if in.Tx.Call == nil {
		return nil, dao.ErrShapeMismatch
	}
	return r.Submit(ctx, ActionExecute, func() error { return CheckExecute(in) }, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return union.Execute(opts, in.Tx.Call, in.Tx.Predecessor, in.Tx.Salt)
	})
}

// CreateProject mints a project NFT pointing at uri and returns its id.
func (r *Runner) CreateProject(ctx context.Context, project registry.Project, uri string) (*Completion, *big.Int, error) {
	check := func() error {
		if strings.TrimSpace(uri) == "" {
			return precondition(MsgMissingURI)
		}
		return nil
	}
	c, err := r.Submit(ctx, ActionCreateProject, check, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return project.Create(opts, uri)
	})
	if err != nil {
		return nil, nil, err
	}
	id, err := project.MintedID(c.Receipt)
	if err != nil {
		return c, nil, err
	}
	return c, id, nil
}

func (r *Runner) UpgradeToDAO(ctx context.Context, workhard registry.Workhard, projID *big.Int, name, symbol string) (*Completion, error) {
	check := func() error {
		if projID == nil || projID.Sign() < 0 {
			return precondition(MsgUnknownProject)
		}
		if strings.TrimSpace(name) == "" || strings.TrimSpace(symbol) == "" {
			return precondition(MsgMissingName)
		}
		return nil
	}
	return r.Submit(ctx, ActionUpgradeToDAO, check, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return workhard.UpgradeToDAO(opts, projID, name, symbol)
	})
}

func (r *Runner) Launch(ctx context.Context, workhard registry.Workhard, projID *big.Int, params chain.LaunchParams) (*Completion, error) {
	check := func() error {
		if projID == nil || projID.Sign() < 0 {
			return precondition(MsgUnknownProject)
		}
		return nil
	}
	return r.Submit(ctx, ActionLaunch, check, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return workhard.Launch(opts, projID, params)
	})
}

// checkAmount parses an 18-decimal amount and compares it with the cached
// balance.
func checkAmount(input string, balance *big.Int) (*big.Int, error) {
	amount, err := derive.ParseEther(input)
	if err != nil || amount.Sign() <= 0 {
		return nil, precondition(MsgInvalidAmount)
	}
	if balance == nil || amount.Cmp(balance) > 0 {
		return nil, precondition(MsgNotEnoughBalance)
	}
	return amount, nil
}

func running(lock dao.Lock, now int64) bool {
	return now < lock.End
}
