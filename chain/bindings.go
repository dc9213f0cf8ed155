package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"workhard-dashboard/core/dao"
)

type contract struct {
	address common.Address
	bound   *bind.BoundContract
}

func bindContract(abiName string, address common.Address, backend bind.ContractBackend) (contract, error) {
	parsed, err := parsedABI(abiName)
	if err != nil {
		return contract{}, err
	}
	return contract{
		address: address,
		bound:   bind.NewBoundContract(address, parsed, backend, backend, backend),
	}, nil
}

// Address is the deployed address of the contract.
func (c contract) Address() common.Address {
	return c.address
}

func (c contract) call(ctx context.Context, method string, args ...any) ([]any, error) {
	var out []any
	if err := c.bound.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, fmt.Errorf("%s.%s: %w", c.address.Hex(), method, err)
	}
	return out, nil
}

func (c contract) transact(opts *bind.TransactOpts, method string, args ...any) (*types.Transaction, error) {
	return c.bound.Transact(opts, method, args...)
}

func outAt[T any](out []any, i int) (T, error) {
	var zero T
	if i >= len(out) {
		return zero, fmt.Errorf("missing return value %d", i)
	}
	v, ok := out[i].(T)
	if !ok {
		return zero, fmt.Errorf("return value %d: unexpected type %T", i, out[i])
	}
	return v, nil
}

// Token is an ERC-20 binding.
type Token struct{ contract }

// NewToken binds an ERC-20 at address.
func NewToken(address common.Address, backend bind.ContractBackend) (*Token, error) {
	c, err := bindContract("erc20", address, backend)
	if err != nil {
		return nil, err
	}
	return &Token{c}, nil
}

func (t *Token) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	out, err := t.call(ctx, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return outAt[*big.Int](out, 0)
}

func (t *Token) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	out, err := t.call(ctx, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return outAt[*big.Int](out, 0)
}

func (t *Token) Symbol(ctx context.Context) (string, error) {
	out, err := t.call(ctx, "symbol")
	if err != nil {
		return "", err
	}
	return outAt[string](out, 0)
}

func (t *Token) Decimals(ctx context.Context) (uint8, error) {
	out, err := t.call(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	return outAt[uint8](out, 0)
}

func (t *Token) Approve(opts *bind.TransactOpts, spender common.Address, amount *big.Int) (*types.Transaction, error) {
	return t.transact(opts, "approve", spender, amount)
}

// Locker is the vote-escrow locker. Each lock is an NFT id.
type Locker struct{ contract }

func NewLocker(address common.Address, backend bind.ContractBackend) (*Locker, error) {
	c, err := bindContract("locker", address, backend)
	if err != nil {
		return nil, err
	}
	return &Locker{c}, nil
}

// Lock reads the amount and window of lock id. Delegatee is left empty.
func (l *Locker) Lock(ctx context.Context, id *big.Int) (dao.Lock, error) {
	out, err := l.call(ctx, "locks", id)
	if err != nil {
		return dao.Lock{}, err
	}
	amount, err := outAt[*big.Int](out, 0)
	if err != nil {
		return dao.Lock{}, err
	}
	start, err := outAt[*big.Int](out, 1)
	if err != nil {
		return dao.Lock{}, err
	}
	end, err := outAt[*big.Int](out, 2)
	if err != nil {
		return dao.Lock{}, err
	}
	return dao.Lock{ID: id, Amount: amount, Start: start.Int64(), End: end.Int64()}, nil
}

func (l *Locker) DelegateeOf(ctx context.Context, id *big.Int) (common.Address, error) {
	out, err := l.call(ctx, "delegateeOf", id)
	if err != nil {
		return common.Address{}, err
	}
	return outAt[common.Address](out, 0)
}

func (l *Locker) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	out, err := l.call(ctx, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return outAt[*big.Int](out, 0)
}

func (l *Locker) TokenOfOwnerByIndex(ctx context.Context, owner common.Address, index *big.Int) (*big.Int, error) {
	out, err := l.call(ctx, "tokenOfOwnerByIndex", owner, index)
	if err != nil {
		return nil, err
	}
	return outAt[*big.Int](out, 0)
}

func (l *Locker) CreateLock(opts *bind.TransactOpts, amount *big.Int, epochs int64) (*types.Transaction, error) {
	return l.transact(opts, "createLock", amount, big.NewInt(epochs))
}

func (l *Locker) IncreaseAmount(opts *bind.TransactOpts, id, amount *big.Int) (*types.Transaction, error) {
	return l.transact(opts, "increaseAmount", id, amount)
}

func (l *Locker) ExtendLock(opts *bind.TransactOpts, id *big.Int, epochs int64) (*types.Transaction, error) {
	return l.transact(opts, "extendLock", id, big.NewInt(epochs))
}

func (l *Locker) Delegate(opts *bind.TransactOpts, id *big.Int, to common.Address) (*types.Transaction, error) {
	return l.transact(opts, "delegate", id, to)
}

func (l *Locker) Withdraw(opts *bind.TransactOpts, id *big.Int) (*types.Transaction, error) {
	return l.transact(opts, "withdraw", id)
}

// DividendPool pays out protocol revenue per epoch to lockers.
type DividendPool struct{ contract }

func NewDividendPool(address common.Address, backend bind.ContractBackend) (*DividendPool, error) {
	c, err := bindContract("dividendPool", address, backend)
	if err != nil {
		return nil, err
	}
	return &DividendPool{c}, nil
}

func (d *DividendPool) CurrentEpoch(ctx context.Context) (*big.Int, error) {
	out, err := d.call(ctx, "getCurrentEpoch")
	if err != nil {
		return nil, err
	}
	return outAt[*big.Int](out, 0)
}

// Project is the ERC-721 registry of projects.
type Project struct{ contract }

func NewProject(address common.Address, backend bind.ContractBackend) (*Project, error) {
	c, err := bindContract("project", address, backend)
	if err != nil {
		return nil, err
	}
	return &Project{c}, nil
}

func (p *Project) TotalSupply(ctx context.Context) (*big.Int, error) {
	out, err := p.call(ctx, "totalSupply")
	if err != nil {
		return nil, err
	}
	return outAt[*big.Int](out, 0)
}

func (p *Project) OwnerOf(ctx context.Context, id *big.Int) (common.Address, error) {
	out, err := p.call(ctx, "ownerOf", id)
	if err != nil {
		return common.Address{}, err
	}
	return outAt[common.Address](out, 0)
}

func (p *Project) TokenURI(ctx context.Context, id *big.Int) (string, error) {
	out, err := p.call(ctx, "tokenURI", id)
	if err != nil {
		return "", err
	}
	return outAt[string](out, 0)
}

func (p *Project) Create(opts *bind.TransactOpts, uri string) (*types.Transaction, error) {
	return p.transact(opts, "create", uri)
}

var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// MintedID finds the id minted to a fresh owner in receipt.
func (p *Project) MintedID(receipt *types.Receipt) (*big.Int, error) {
	return MintedID(p.address, receipt)
}

// MintedID scans receipt for an ERC-721 mint emitted by token.
func MintedID(token common.Address, receipt *types.Receipt) (*big.Int, error) {
	if receipt == nil {
		return nil, fmt.Errorf("no receipt")
	}
	for _, lg := range receipt.Logs {
		if lg.Address != token || len(lg.Topics) != 4 || lg.Topics[0] != transferTopic {
			continue
		}
		if lg.Topics[1] != (common.Hash{}) {
			continue
		}
		return new(big.Int).SetBytes(lg.Topics[3].Bytes()), nil
	}
	return nil, fmt.Errorf("no mint from %s in %s", token.Hex(), receipt.TxHash.Hex())
}

// JobBoard tracks which projects may post jobs.
type JobBoard struct{ contract }

func NewJobBoard(address common.Address, backend bind.ContractBackend) (*JobBoard, error) {
	c, err := bindContract("jobBoard", address, backend)
	if err != nil {
		return nil, err
	}
	return &JobBoard{c}, nil
}

func (j *JobBoard) Approved(ctx context.Context, projID *big.Int) (bool, error) {
	out, err := j.call(ctx, "approvedProjects", projID)
	if err != nil {
		return false, err
	}
	return outAt[bool](out, 0)
}

// Union is the workers union: proposal voting in front of the timelock.
type Union struct{ contract }

func NewUnion(address common.Address, backend bind.ContractBackend) (*Union, error) {
	c, err := bindContract("union", address, backend)
	if err != nil {
		return nil, err
	}
	return &Union{c}, nil
}

func (u *Union) Proposal(ctx context.Context, txHash common.Hash) (dao.Proposal, error) {
	out, err := u.call(ctx, "proposals", txHash)
	if err != nil {
		return dao.Proposal{}, err
	}
	proposer, err := outAt[common.Address](out, 0)
	if err != nil {
		return dao.Proposal{}, err
	}
	nums := make([]*big.Int, 4)
	for i := range nums {
		if nums[i], err = outAt[*big.Int](out, i+1); err != nil {
			return dao.Proposal{}, err
		}
	}
	return dao.Proposal{
		TxHash:       txHash,
		Proposer:     proposer,
		Start:        nums[0].Int64(),
		End:          nums[1].Int64(),
		ForVotes:     nums[2],
		AgainstVotes: nums[3],
	}, nil
}

func (u *Union) VotesAt(ctx context.Context, account common.Address, timestamp int64) (*big.Int, error) {
	out, err := u.call(ctx, "getVotesAt", account, big.NewInt(timestamp))
	if err != nil {
		return nil, err
	}
	return outAt[*big.Int](out, 0)
}

func (u *Union) Vote(opts *bind.TransactOpts, txHash common.Hash, agree bool) (*types.Transaction, error) {
	return u.transact(opts, "vote", txHash, agree)
}

// Schedule queues call on the timelock, using the batch entry point for batches.
func (u *Union) Schedule(opts *bind.TransactOpts, call dao.Call, predecessor, salt common.Hash) (*types.Transaction, error) {
	return u.dispatch(opts, "schedule", call, predecessor, salt)
}

// Execute runs a ready call, using the batch entry point for batches.
func (u *Union) Execute(opts *bind.TransactOpts, call dao.Call, predecessor, salt common.Hash) (*types.Transaction, error) {
	return u.dispatch(opts, "execute", call, predecessor, salt)
}

func (u *Union) dispatch(opts *bind.TransactOpts, method string, call dao.Call, predecessor, salt common.Hash) (*types.Transaction, error) {
	switch c := call.(type) {
	case dao.Single:
		return u.transact(opts, method, c.Target, nonNil(c.Value), c.Data, predecessor, salt)
	case dao.Batch:
		values := make([]*big.Int, len(c.Values))
		for i, v := range c.Values {
			values[i] = nonNil(v)
		}
		return u.transact(opts, method+"Batch", c.Targets, values, c.Datas, predecessor, salt)
	default:
		return nil, fmt.Errorf("%s: unsupported call %T", method, call)
	}
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// Timelock is the governance timelock controller.
type Timelock struct{ contract }

func NewTimelock(address common.Address, backend bind.ContractBackend) (*Timelock, error) {
	c, err := bindContract("timelock", address, backend)
	if err != nil {
		return nil, err
	}
	return &Timelock{c}, nil
}

// Timestamp is 0 for unknown operations, 1 once executed, otherwise the
// time the operation becomes ready.
func (t *Timelock) Timestamp(ctx context.Context, id common.Hash) (*big.Int, error) {
	out, err := t.call(ctx, "getTimestamp", id)
	if err != nil {
		return nil, err
	}
	return outAt[*big.Int](out, 0)
}

// LaunchParams configures emission for a freshly upgraded DAO.
type LaunchParams struct {
	MinEmissionRatePerWeek *big.Int `json:"min_emission_rate_per_week"`
	EmissionCutRate        *big.Int `json:"emission_cut_rate"`
	FounderShare           *big.Int `json:"founder_share"`
}

// Workhard is the DAO factory used by the fork-and-launch flow.
type Workhard struct{ contract }

func NewWorkhard(address common.Address, backend bind.ContractBackend) (*Workhard, error) {
	c, err := bindContract("workhard", address, backend)
	if err != nil {
		return nil, err
	}
	return &Workhard{c}, nil
}

func (w *Workhard) UpgradeToDAO(opts *bind.TransactOpts, projID *big.Int, name, symbol string) (*types.Transaction, error) {
	return w.transact(opts, "upgradeToDAO", projID, name, symbol)
}

func (w *Workhard) Launch(opts *bind.TransactOpts, projID *big.Int, p LaunchParams) (*types.Transaction, error) {
	return w.transact(opts, "launch", projID, nonNil(p.MinEmissionRatePerWeek), nonNil(p.EmissionCutRate), nonNil(p.FounderShare))
}
