// Package chaintest is an in-memory Workhard deployment for tests. Writes are
// queued as pending transactions and applied when WaitMined is called, so a
// test can make a transaction revert and check that nothing changed.
package chaintest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"workhard-dashboard/chain"
	"workhard-dashboard/core/dao"
	"workhard-dashboard/registry"
)

// ErrNoSigner is returned for writes without transact options.
var ErrNoSigner = errors.New("chaintest: no signer")

var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// Chain is the simulated network.
type Chain struct {
	mu sync.Mutex

	block uint64
	now   int64
	nonce uint64

	balances   map[common.Address]*big.Int
	allowances map[[2]common.Address]*big.Int
	locks      map[string]dao.Lock
	owners     map[common.Address][]*big.Int
	delegatees map[string]common.Address
	nextLock   int64
	proposals  map[common.Hash]dao.Proposal
	votes      map[common.Address]*big.Int
	timestamps map[common.Hash]*big.Int
	projects   []common.Address
	uris       []string
	approved   map[int64]bool
	epoch      *big.Int

	pending map[common.Hash]func(*types.Receipt)
	sent    []string
	reads   map[string]int

	// RevertNext makes the next WaitMined fail as reverted.
	RevertNext bool
	// SendErr makes every write fail before a transaction exists.
	SendErr error
	// ReadErr makes every read fail.
	ReadErr error

	addrs map[string]common.Address
}

// New returns an empty chain at block 1 and the given unix time.
func New(now int64) *Chain {
	c := &Chain{
		block:      1,
		now:        now,
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[[2]common.Address]*big.Int),
		locks:      make(map[string]dao.Lock),
		owners:     make(map[common.Address][]*big.Int),
		delegatees: make(map[string]common.Address),
		nextLock:   1,
		proposals:  make(map[common.Hash]dao.Proposal),
		votes:      make(map[common.Address]*big.Int),
		timestamps: make(map[common.Hash]*big.Int),
		approved:   make(map[int64]bool),
		epoch:      big.NewInt(1),
		pending:    make(map[common.Hash]func(*types.Receipt)),
		reads:      make(map[string]int),
		addrs:      make(map[string]common.Address),
	}
	for i, name := range registry.Required {
		c.addrs[name] = common.BigToAddress(big.NewInt(int64(0x1000 + i)))
	}
	return c
}

// Contracts returns the deployment as a localhost contract set.
func (c *Chain) Contracts() *registry.Contracts {
	set := &registry.Contracts{
		Network:      "localhost",
		ChainID:      31337,
		Vision:       &Token{c, c.addrs[registry.NameVision]},
		Locker:       &Locker{c, c.addrs[registry.NameVeLocker]},
		DividendPool: &DividendPool{c, c.addrs[registry.NameDividendPool]},
		Project:      &Project{c, c.addrs[registry.NameProject]},
		JobBoard:     &JobBoard{c, c.addrs[registry.NameJobBoard]},
		Union:        &Union{c, c.addrs[registry.NameWorkersUnion]},
		Timelock:     &Timelock{c, c.addrs[registry.NameTimelockedGovernance]},
		Workhard:     &Workhard{c, c.addrs[registry.NameWorkhard]},
	}
	return set.WithTokens(func(addr common.Address) (registry.Token, error) {
		return &Token{c, addr}, nil
	})
}

// Address of a deployed contract by deployment name.
func (c *Chain) Address(name string) common.Address {
	return c.addrs[name]
}

// BlockNumber and BlockTime make the chain a tick source.
func (c *Chain) BlockNumber(context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.block, nil
}

func (c *Chain) BlockTime(_ context.Context, height uint64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now - int64(c.block-min(height, c.block))*12, nil
}

// Mine advances one block and secs seconds.
func (c *Chain) Mine(secs int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.block++
	c.now += secs
}

func (c *Chain) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Mint credits amount of the Vision token to owner.
func (c *Chain) Mint(owner common.Address, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.credit(owner, amount)
}

// SetEpoch moves the dividend pool to epoch n.
func (c *Chain) SetEpoch(n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch = big.NewInt(n)
}

// SetLock installs a lock owned by owner and returns its id.
func (c *Chain) SetLock(owner common.Address, amount *big.Int, start, end int64) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addLock(owner, amount, start, end)
}

// SetProposal installs a proposal.
func (c *Chain) SetProposal(p dao.Proposal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.proposals[p.TxHash] = p
}

// SetVotes sets the voting power of account.
func (c *Chain) SetVotes(account common.Address, power *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.votes[account] = power
}

// SetTimestamp sets the timelock timestamp of an operation.
func (c *Chain) SetTimestamp(id common.Hash, ts int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timestamps[id] = big.NewInt(ts)
}

// AddProject mints a project to owner and returns its id.
func (c *Chain) AddProject(owner common.Address, uri string, approved bool) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := int64(len(c.projects))
	c.projects = append(c.projects, owner)
	c.uris = append(c.uris, uri)
	c.approved[id] = approved
	return id
}

// Sent lists the methods of every transaction created so far.
func (c *Chain) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

// Reads counts contract reads of method.
func (c *Chain) Reads(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads[method]
}

func (c *Chain) Balance(owner common.Address) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(c.balanceOf(owner))
}

func (c *Chain) LockOf(id *big.Int) dao.Lock {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.locks[id.String()]
}

func (c *Chain) Proposal(hash common.Hash) dao.Proposal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.proposals[hash]
}

// WaitMined applies a pending transaction, or drops it when RevertNext is set.
func (c *Chain) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	apply, ok := c.pending[tx.Hash()]
	if !ok {
		return nil, fmt.Errorf("chaintest: unknown transaction %s", tx.Hash().Hex())
	}
	delete(c.pending, tx.Hash())
	c.block++

	receipt := &types.Receipt{
		TxHash:      tx.Hash(),
		BlockNumber: new(big.Int).SetUint64(c.block),
		Status:      types.ReceiptStatusSuccessful,
	}
	if c.RevertNext {
		c.RevertNext = false
		receipt.Status = types.ReceiptStatusFailed
		return receipt, fmt.Errorf("%w: %s", chain.ErrReverted, tx.Hash().Hex())
	}
	apply(receipt)
	return receipt, nil
}

func (c *Chain) read(method string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads[method]++
	return c.ReadErr
}

// submit queues a write. Callers do not hold c.mu.
func (c *Chain) submit(opts *bind.TransactOpts, method string, apply func(*types.Receipt)) (*types.Transaction, error) {
	if opts == nil {
		return nil, ErrNoSigner
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return nil, c.SendErr
	}
	c.nonce++
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    c.nonce,
		GasPrice: big.NewInt(1),
		Gas:      21_000,
		Data:     []byte(method),
	})
	c.pending[tx.Hash()] = apply
	c.sent = append(c.sent, method)
	return tx, nil
}

func (c *Chain) balanceOf(owner common.Address) *big.Int {
	if b, ok := c.balances[owner]; ok {
		return b
	}
	return new(big.Int)
}

func (c *Chain) credit(owner common.Address, amount *big.Int) {
	c.balances[owner] = new(big.Int).Add(c.balanceOf(owner), amount)
}

func (c *Chain) debit(owner common.Address, amount *big.Int) {
	c.balances[owner] = new(big.Int).Sub(c.balanceOf(owner), amount)
}

func (c *Chain) addLock(owner common.Address, amount *big.Int, start, end int64) *big.Int {
	id := big.NewInt(c.nextLock)
	c.nextLock++
	c.locks[id.String()] = dao.Lock{ID: id, Amount: new(big.Int).Set(amount), Start: start, End: end}
	c.owners[owner] = append(c.owners[owner], id)
	c.delegatees[id.String()] = owner
	return id
}
