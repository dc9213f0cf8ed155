package dao

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// MaxLockEpochs is the longest lock the locker accepts, roughly four years.
	MaxLockEpochs = 208
	// Epoch is the locker's period unit.
	Epoch = 7 * 24 * time.Hour
)

// Lock is a staked-token position held by the locker.
type Lock struct {
	ID        *big.Int       `json:"id"`
	Amount    *big.Int       `json:"amount"`
	Start     int64          `json:"start"` // unix seconds
	End       int64          `json:"end"`   // unix seconds
	Delegatee common.Address `json:"delegatee"`
}

// Proposal mirrors the workers union proposal record.
type Proposal struct {
	TxHash       common.Hash    `json:"tx_hash"`
	Proposer     common.Address `json:"proposer"`
	Start        int64          `json:"start"`
	End          int64          `json:"end"`
	ForVotes     *big.Int       `json:"for_votes"`
	AgainstVotes *big.Int       `json:"against_votes"`
}

// Passed reports whether for-votes strictly outnumber against-votes.
func (p Proposal) Passed() bool {
	if p.ForVotes == nil {
		return false
	}
	against := p.AgainstVotes
	if against == nil {
		against = new(big.Int)
	}
	return p.ForVotes.Cmp(against) > 0
}

// ProposedTx is a governance call waiting for votes and the timelock.
type ProposedTx struct {
	TxHash      common.Hash `json:"tx_hash"`
	Call        Call        `json:"-"`
	Predecessor common.Hash `json:"predecessor"`
	Salt        common.Hash `json:"salt"`
	Start       int64       `json:"start"`
	End         int64       `json:"end"`
}

// Allowance is a spender-authorized transfer limit.
type Allowance struct {
	Owner   common.Address `json:"owner"`
	Spender common.Address `json:"spender"`
	Amount  *big.Int       `json:"amount"`
}

// TxState is the timelock lifecycle of a scheduled transaction.
type TxState string

const (
	TxNotScheduled TxState = "Not scheduled"
	TxPending      TxState = "Pending"
	TxReady        TxState = "Ready"
	TxExecuted     TxState = "Executed"
)

// timelock timestamps below this are markers, not times
var doneTimestamp = big.NewInt(1)

// StateOf derives the timelock state from the scheduled timestamp and the
// latest block time.
func StateOf(scheduled *big.Int, blockTime int64) TxState {
	switch {
	case scheduled == nil || scheduled.Sign() == 0:
		return TxNotScheduled
	case scheduled.Cmp(doneTimestamp) == 0:
		return TxExecuted
	case scheduled.Cmp(big.NewInt(blockTime)) > 0:
		return TxPending
	default:
		return TxReady
	}
}

// VotingStatus is where a proposal sits relative to its voting window.
type VotingStatus string

const (
	VotingPending VotingStatus = "pending"
	VotingOpen    VotingStatus = "voting"
	VotingEnded   VotingStatus = "ended"
)

// StatusAt places now relative to the [start, end] voting window.
func StatusAt(start, end, now int64) VotingStatus {
	switch {
	case now < start:
		return VotingPending
	case now <= end:
		return VotingOpen
	default:
		return VotingEnded
	}
}
