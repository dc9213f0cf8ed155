package chaintest

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"workhard-dashboard/chain"
	"workhard-dashboard/core/dao"
	"workhard-dashboard/registry"
)

const weekSeconds = int64(dao.Epoch / time.Second)

// MinDelay is the timelock delay applied by Schedule.
const MinDelay = int64(2 * 24 * 60 * 60)

type Token struct {
	c    *Chain
	addr common.Address
}

func (t *Token) Address() common.Address { return t.addr }

func (t *Token) BalanceOf(_ context.Context, owner common.Address) (*big.Int, error) {
	if err := t.c.read("balanceOf"); err != nil {
		return nil, err
	}
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if t.addr != t.c.addrs[registry.NameVision] {
		return new(big.Int), nil
	}
	return new(big.Int).Set(t.c.balanceOf(owner)), nil
}

func (t *Token) Allowance(_ context.Context, owner, spender common.Address) (*big.Int, error) {
	if err := t.c.read("allowance"); err != nil {
		return nil, err
	}
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if a, ok := t.c.allowances[[2]common.Address{owner, spender}]; ok {
		return new(big.Int).Set(a), nil
	}
	return new(big.Int), nil
}

func (t *Token) Symbol(context.Context) (string, error) {
	if err := t.c.read("symbol"); err != nil {
		return "", err
	}
	if t.addr == t.c.addrs[registry.NameVision] {
		return "VISION", nil
	}
	return "TKN", nil
}

func (t *Token) Approve(opts *bind.TransactOpts, spender common.Address, amount *big.Int) (*types.Transaction, error) {
	owner := from(opts)
	amount = new(big.Int).Set(amount)
	return t.c.submit(opts, "approve", func(*types.Receipt) {
		t.c.allowances[[2]common.Address{owner, spender}] = amount
	})
}

type Locker struct {
	c    *Chain
	addr common.Address
}

func (l *Locker) Address() common.Address { return l.addr }

func (l *Locker) Lock(_ context.Context, id *big.Int) (dao.Lock, error) {
	if err := l.c.read("locks"); err != nil {
		return dao.Lock{}, err
	}
	l.c.mu.Lock()
	defer l.c.mu.Unlock()
	lock, ok := l.c.locks[id.String()]
	if !ok {
		return dao.Lock{ID: id, Amount: new(big.Int)}, nil
	}
	lock.Amount = new(big.Int).Set(lock.Amount)
	return lock, nil
}

func (l *Locker) DelegateeOf(_ context.Context, id *big.Int) (common.Address, error) {
	if err := l.c.read("delegateeOf"); err != nil {
		return common.Address{}, err
	}
	l.c.mu.Lock()
	defer l.c.mu.Unlock()
	return l.c.delegatees[id.String()], nil
}

func (l *Locker) BalanceOf(_ context.Context, owner common.Address) (*big.Int, error) {
	if err := l.c.read("lockCount"); err != nil {
		return nil, err
	}
	l.c.mu.Lock()
	defer l.c.mu.Unlock()
	return big.NewInt(int64(len(l.c.owners[owner]))), nil
}

func (l *Locker) TokenOfOwnerByIndex(_ context.Context, owner common.Address, index *big.Int) (*big.Int, error) {
	if err := l.c.read("tokenOfOwnerByIndex"); err != nil {
		return nil, err
	}
	l.c.mu.Lock()
	defer l.c.mu.Unlock()
	ids := l.c.owners[owner]
	if !index.IsInt64() || index.Int64() >= int64(len(ids)) {
		return nil, fmt.Errorf("index %s out of range", index)
	}
	return ids[index.Int64()], nil
}

func (l *Locker) CreateLock(opts *bind.TransactOpts, amount *big.Int, epochs int64) (*types.Transaction, error) {
	owner := from(opts)
	amount = new(big.Int).Set(amount)
	return l.c.submit(opts, "createLock", func(*types.Receipt) {
		l.c.debit(owner, amount)
		l.c.addLock(owner, amount, l.c.now, l.c.now+epochs*weekSeconds)
	})
}

func (l *Locker) IncreaseAmount(opts *bind.TransactOpts, id, amount *big.Int) (*types.Transaction, error) {
	owner := from(opts)
	amount = new(big.Int).Set(amount)
	return l.c.submit(opts, "increaseAmount", func(*types.Receipt) {
		lock := l.c.locks[id.String()]
		l.c.debit(owner, amount)
		lock.Amount = new(big.Int).Add(lock.Amount, amount)
		l.c.locks[id.String()] = lock
	})
}

func (l *Locker) ExtendLock(opts *bind.TransactOpts, id *big.Int, epochs int64) (*types.Transaction, error) {
	return l.c.submit(opts, "extendLock", func(*types.Receipt) {
		lock := l.c.locks[id.String()]
		lock.End += epochs * weekSeconds
		l.c.locks[id.String()] = lock
	})
}

func (l *Locker) Delegate(opts *bind.TransactOpts, id *big.Int, to common.Address) (*types.Transaction, error) {
	return l.c.submit(opts, "delegate", func(*types.Receipt) {
		l.c.delegatees[id.String()] = to
	})
}

func (l *Locker) Withdraw(opts *bind.TransactOpts, id *big.Int) (*types.Transaction, error) {
	owner := from(opts)
	return l.c.submit(opts, "withdraw", func(*types.Receipt) {
		lock := l.c.locks[id.String()]
		if lock.Amount != nil {
			l.c.credit(owner, lock.Amount)
		}
		lock.Amount = new(big.Int)
		l.c.locks[id.String()] = lock
	})
}

type DividendPool struct {
	c    *Chain
	addr common.Address
}

func (d *DividendPool) Address() common.Address { return d.addr }

func (d *DividendPool) CurrentEpoch(context.Context) (*big.Int, error) {
	if err := d.c.read("getCurrentEpoch"); err != nil {
		return nil, err
	}
	d.c.mu.Lock()
	defer d.c.mu.Unlock()
	return new(big.Int).Set(d.c.epoch), nil
}

type Project struct {
	c    *Chain
	addr common.Address
}

func (p *Project) Address() common.Address { return p.addr }

func (p *Project) TotalSupply(context.Context) (*big.Int, error) {
	if err := p.c.read("totalSupply"); err != nil {
		return nil, err
	}
	p.c.mu.Lock()
	defer p.c.mu.Unlock()
	return big.NewInt(int64(len(p.c.projects))), nil
}

func (p *Project) OwnerOf(_ context.Context, id *big.Int) (common.Address, error) {
	if err := p.c.read("ownerOf"); err != nil {
		return common.Address{}, err
	}
	p.c.mu.Lock()
	defer p.c.mu.Unlock()
	if !id.IsInt64() || id.Int64() >= int64(len(p.c.projects)) {
		return common.Address{}, fmt.Errorf("project %s does not exist", id)
	}
	return p.c.projects[id.Int64()], nil
}

func (p *Project) TokenURI(_ context.Context, id *big.Int) (string, error) {
	if err := p.c.read("tokenURI"); err != nil {
		return "", err
	}
	p.c.mu.Lock()
	defer p.c.mu.Unlock()
	if !id.IsInt64() || id.Int64() >= int64(len(p.c.uris)) {
		return "", fmt.Errorf("project %s does not exist", id)
	}
	return p.c.uris[id.Int64()], nil
}

func (p *Project) Create(opts *bind.TransactOpts, uri string) (*types.Transaction, error) {
	owner := from(opts)
	return p.c.submit(opts, "create", func(r *types.Receipt) {
		id := int64(len(p.c.projects))
		p.c.projects = append(p.c.projects, owner)
		p.c.uris = append(p.c.uris, uri)
		r.Logs = append(r.Logs, &types.Log{
			Address: p.addr,
			Topics: []common.Hash{
				transferTopic,
				{},
				common.BytesToHash(owner.Bytes()),
				common.BigToHash(big.NewInt(id)),
			},
		})
	})
}

func (p *Project) MintedID(receipt *types.Receipt) (*big.Int, error) {
	return chain.MintedID(p.addr, receipt)
}

type JobBoard struct {
	c    *Chain
	addr common.Address
}

func (j *JobBoard) Address() common.Address { return j.addr }

func (j *JobBoard) Approved(_ context.Context, projID *big.Int) (bool, error) {
	if err := j.c.read("approvedProjects"); err != nil {
		return false, err
	}
	j.c.mu.Lock()
	defer j.c.mu.Unlock()
	return j.c.approved[projID.Int64()], nil
}

type Union struct {
	c    *Chain
	addr common.Address
}

func (u *Union) Address() common.Address { return u.addr }

func (u *Union) Proposal(_ context.Context, txHash common.Hash) (dao.Proposal, error) {
	if err := u.c.read("proposals"); err != nil {
		return dao.Proposal{}, err
	}
	u.c.mu.Lock()
	defer u.c.mu.Unlock()
	p, ok := u.c.proposals[txHash]
	if !ok {
		return dao.Proposal{TxHash: txHash, ForVotes: new(big.Int), AgainstVotes: new(big.Int)}, nil
	}
	return p, nil
}

func (u *Union) VotesAt(_ context.Context, account common.Address, _ int64) (*big.Int, error) {
	if err := u.c.read("getVotesAt"); err != nil {
		return nil, err
	}
	u.c.mu.Lock()
	defer u.c.mu.Unlock()
	if v, ok := u.c.votes[account]; ok {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

func (u *Union) Vote(opts *bind.TransactOpts, txHash common.Hash, agree bool) (*types.Transaction, error) {
	voter := from(opts)
	return u.c.submit(opts, "vote", func(*types.Receipt) {
		p := u.c.proposals[txHash]
		power := u.c.votes[voter]
		if power == nil {
			power = new(big.Int)
		}
		if agree {
			p.ForVotes = new(big.Int).Add(orZero(p.ForVotes), power)
		} else {
			p.AgainstVotes = new(big.Int).Add(orZero(p.AgainstVotes), power)
		}
		u.c.proposals[txHash] = p
	})
}

// Schedule records the batch or single entry point in Sent.
func (u *Union) Schedule(opts *bind.TransactOpts, call dao.Call, predecessor, salt common.Hash) (*types.Transaction, error) {
	method := "schedule"
	if _, ok := call.(dao.Batch); ok {
		method = "scheduleBatch"
	}
	id, err := dao.OperationID(call, predecessor, salt)
	if err != nil {
		return nil, err
	}
	return u.c.submit(opts, method, func(*types.Receipt) {
		u.c.timestamps[id] = big.NewInt(u.c.now + MinDelay)
	})
}

func (u *Union) Execute(opts *bind.TransactOpts, call dao.Call, predecessor, salt common.Hash) (*types.Transaction, error) {
	method := "execute"
	if _, ok := call.(dao.Batch); ok {
		method = "executeBatch"
	}
	id, err := dao.OperationID(call, predecessor, salt)
	if err != nil {
		return nil, err
	}
	return u.c.submit(opts, method, func(*types.Receipt) {
		u.c.timestamps[id] = big.NewInt(1)
	})
}

type Timelock struct {
	c    *Chain
	addr common.Address
}

func (t *Timelock) Address() common.Address { return t.addr }

func (t *Timelock) Timestamp(_ context.Context, id common.Hash) (*big.Int, error) {
	if err := t.c.read("getTimestamp"); err != nil {
		return nil, err
	}
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if ts, ok := t.c.timestamps[id]; ok {
		return new(big.Int).Set(ts), nil
	}
	return new(big.Int), nil
}

type Workhard struct {
	c    *Chain
	addr common.Address
}

func (w *Workhard) Address() common.Address { return w.addr }

func (w *Workhard) UpgradeToDAO(opts *bind.TransactOpts, projID *big.Int, name, symbol string) (*types.Transaction, error) {
	return w.c.submit(opts, "upgradeToDAO", func(*types.Receipt) {})
}

func (w *Workhard) Launch(opts *bind.TransactOpts, projID *big.Int, p chain.LaunchParams) (*types.Transaction, error) {
	return w.c.submit(opts, "launch", func(*types.Receipt) {
		w.c.approved[projID.Int64()] = true
	})
}

func from(opts *bind.TransactOpts) common.Address {
	if opts == nil {
		return common.Address{}
	}
	return opts.From
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
