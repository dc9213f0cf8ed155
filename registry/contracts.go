package registry

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"workhard-dashboard/chain"
	"workhard-dashboard/core/dao"
)

// The interfaces below are the contract surface projections and commands
// depend on. The chain bindings implement them; tests substitute fakes.

type Token interface {
	Address() common.Address
	BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error)
	Symbol(ctx context.Context) (string, error)
	Approve(opts *bind.TransactOpts, spender common.Address, amount *big.Int) (*types.Transaction, error)
}

type Locker interface {
	Address() common.Address
	Lock(ctx context.Context, id *big.Int) (dao.Lock, error)
	DelegateeOf(ctx context.Context, id *big.Int) (common.Address, error)
	BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error)
	TokenOfOwnerByIndex(ctx context.Context, owner common.Address, index *big.Int) (*big.Int, error)
	CreateLock(opts *bind.TransactOpts, amount *big.Int, epochs int64) (*types.Transaction, error)
	IncreaseAmount(opts *bind.TransactOpts, id, amount *big.Int) (*types.Transaction, error)
	ExtendLock(opts *bind.TransactOpts, id *big.Int, epochs int64) (*types.Transaction, error)
	Delegate(opts *bind.TransactOpts, id *big.Int, to common.Address) (*types.Transaction, error)
	Withdraw(opts *bind.TransactOpts, id *big.Int) (*types.Transaction, error)
}

type DividendPool interface {
	Address() common.Address
	CurrentEpoch(ctx context.Context) (*big.Int, error)
}

type Project interface {
	Address() common.Address
	TotalSupply(ctx context.Context) (*big.Int, error)
	OwnerOf(ctx context.Context, id *big.Int) (common.Address, error)
	TokenURI(ctx context.Context, id *big.Int) (string, error)
	Create(opts *bind.TransactOpts, uri string) (*types.Transaction, error)
	MintedID(receipt *types.Receipt) (*big.Int, error)
}

type JobBoard interface {
	Address() common.Address
	Approved(ctx context.Context, projID *big.Int) (bool, error)
}

type Union interface {
	Address() common.Address
	Proposal(ctx context.Context, txHash common.Hash) (dao.Proposal, error)
	VotesAt(ctx context.Context, account common.Address, timestamp int64) (*big.Int, error)
	Vote(opts *bind.TransactOpts, txHash common.Hash, agree bool) (*types.Transaction, error)
	Schedule(opts *bind.TransactOpts, call dao.Call, predecessor, salt common.Hash) (*types.Transaction, error)
	Execute(opts *bind.TransactOpts, call dao.Call, predecessor, salt common.Hash) (*types.Transaction, error)
}

type Timelock interface {
	Address() common.Address
	Timestamp(ctx context.Context, id common.Hash) (*big.Int, error)
}

type Workhard interface {
	Address() common.Address
	UpgradeToDAO(opts *bind.TransactOpts, projID *big.Int, name, symbol string) (*types.Transaction, error)
	Launch(opts *bind.TransactOpts, projID *big.Int, p chain.LaunchParams) (*types.Transaction, error)
}

// Contracts is the resolved contract set of one network.
type Contracts struct {
	Network string
	ChainID int64

	Vision       Token
	Locker       Locker
	DividendPool DividendPool
	Project      Project
	JobBoard     JobBoard
	Union        Union
	Timelock     Timelock
	Workhard     Workhard

	tokens func(common.Address) (Token, error)
}

// ID identifies the contract set in projection keys.
func (c *Contracts) ID() string {
	if c == nil {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Network, c.ChainID)
}

// ERC20 binds an arbitrary token on the same network. When the set was not
// built by a Registry the Vision token is the only one known.
func (c *Contracts) ERC20(addr common.Address) (Token, error) {
	if c.tokens != nil {
		return c.tokens(addr)
	}
	if c.Vision != nil && c.Vision.Address() == addr {
		return c.Vision, nil
	}
	return nil, fmt.Errorf("no token binder for %s", addr.Hex())
}

// WithTokens installs the binder used by ERC20.
func (c *Contracts) WithTokens(binder func(common.Address) (Token, error)) *Contracts {
	c.tokens = binder
	return c
}

// Addresses lists the deployed address of every contract in the set.
func (c *Contracts) Addresses() map[string]common.Address {
	out := make(map[string]common.Address, len(Required))
	add := func(name string, a interface{ Address() common.Address }) {
		if a != nil {
			out[name] = a.Address()
		}
	}
	add(NameVision, c.Vision)
	add(NameVeLocker, c.Locker)
	add(NameDividendPool, c.DividendPool)
	add(NameProject, c.Project)
	add(NameJobBoard, c.JobBoard)
	add(NameWorkersUnion, c.Union)
	add(NameTimelockedGovernance, c.Timelock)
	add(NameWorkhard, c.Workhard)
	return out
}
