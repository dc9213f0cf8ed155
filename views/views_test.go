package views

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workhard-dashboard/command"
	"workhard-dashboard/core/dao"
	"workhard-dashboard/jobs"
)

const (
	t0   = int64(1_700_000_000)
	week = int64(7 * 24 * 60 * 60)
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func TestCreateLockFormApprovalToggle(t *testing.T) {
	in := CreateLockInput{Balance: ether(100), Allowance: ether(50), Amount: "80", Epochs: 4}

	form := NewCreateLockForm(in)
	assert.False(t, form.Approved)
	assert.Equal(t, command.ActionApprove, form.Primary.Action)
	assert.Equal(t, "approve", form.Primary.Label)
	assert.True(t, form.Primary.Enabled)

	in.Allowance = new(big.Int).Set(math.MaxBig256)
	form = NewCreateLockForm(in)
	assert.True(t, form.Approved)
	assert.Equal(t, Button{Action: command.ActionCreateLock, Label: "Stake and lock 4 epoch(s)", Enabled: true}, form.Primary)

	in.Amount = "1000000"
	form = NewCreateLockForm(in)
	assert.True(t, form.Approved)
	assert.False(t, form.Primary.Enabled)
	assert.Equal(t, command.MsgNotEnoughBalance, form.Primary.WhyDisabled)
}

func TestCreateLockFormStakeShare(t *testing.T) {
	form := NewCreateLockForm(CreateLockInput{Balance: ether(75), Staked: ether(25), Epochs: 52})
	assert.Equal(t, 25.0, form.Staked.Percent)
	assert.Equal(t, "warning", form.Staked.Variant)
	assert.Equal(t, "25.00 / 100.00 of your $VISION token is staked.", form.StakedText)
	assert.Equal(t, "52 weeks(1.0 years) / 4 years", form.PeriodText)

	empty := NewCreateLockForm(CreateLockInput{})
	assert.Zero(t, empty.Staked.Percent)
	assert.Equal(t, "0.00", empty.MaxAmount)
}

func TestLockCardMidway(t *testing.T) {
	lock := dao.Lock{ID: big.NewInt(255), Amount: ether(10), Start: t0, End: t0 + 100*week}
	card := NewLockCard(LockInput{
		Index:        0,
		Lock:         lock,
		Now:          t0 + 40*week,
		CurrentEpoch: big.NewInt(7),
		Balance:      ether(5),
		Allowance:    new(big.Int).Set(math.MaxBig256),
		Amount:       "1",
		Epochs:       10,
		DelegateTo:   "nope",
	})
	assert.Equal(t, "7", card.CurrentEpoch)

	assert.Equal(t, "Your veVISION NFT #0 - id: 0xff", card.Title)
	assert.Equal(t, "10.00", card.Locked)
	assert.Equal(t, int64(60), card.Progress.LockedWeeks)
	assert.InDelta(t, 60.0, card.Progress.LockedPercent, 1e-9)
	assert.Equal(t, int64(148), card.Progress.ExtendableEpochs)
	assert.Equal(t, "info", card.Bar.Variant)

	assert.False(t, card.Increase.Enabled)
	assert.Equal(t, command.MsgExpired, card.Increase.WhyDisabled)
	assert.True(t, card.Extend.Enabled)
	assert.Equal(t, Button{Action: command.ActionDelegate, Label: "Delegate your votes", WhyDisabled: command.MsgInvalidAddress}, card.Delegate)
	assert.Equal(t, command.MsgStillLocked, card.Withdraw.WhyDisabled)
}

func TestLockCardExpired(t *testing.T) {
	lock := dao.Lock{ID: big.NewInt(1), Amount: ether(10), Start: t0, End: t0 + week}
	card := NewLockCard(LockInput{
		Lock:       lock,
		Now:        t0 + 2*week,
		Allowance:  new(big.Int),
		Epochs:     1,
		DelegateTo: "0x00000000000000000000000000000000000000aa",
	})

	assert.True(t, card.Progress.Unlocked)
	assert.Equal(t, "You staked the MAX!", card.Increase.WhyDisabled)
	assert.True(t, card.Extend.Enabled)
	assert.Equal(t, int64(dao.MaxLockEpochs), card.Progress.ExtendableEpochs)
	assert.True(t, card.Delegate.Enabled)
	assert.True(t, card.Withdraw.Enabled)

	card = NewLockCard(LockInput{
		Lock:      lock,
		Now:       t0 + 2*week,
		Balance:   ether(5),
		Allowance: new(big.Int).Set(math.MaxBig256),
		Amount:    "5",
		Epochs:    dao.MaxLockEpochs + 1,
	})
	assert.True(t, card.Increase.Enabled)
	assert.Equal(t, command.MsgTooLong, card.Extend.WhyDisabled)
}

func TestLockCardMaxedOut(t *testing.T) {
	lock := dao.Lock{ID: big.NewInt(1), Amount: ether(1), Start: t0, End: t0 + dao.MaxLockEpochs*week}
	card := NewLockCard(LockInput{Lock: lock, Now: t0, Balance: ether(1)})
	assert.False(t, card.Extend.Enabled)
	assert.Equal(t, "You locked the MAX!", card.Extend.WhyDisabled)
	assert.Equal(t, command.ActionApprove, card.Increase.Action)
}

func TestProposalCardVoting(t *testing.T) {
	target := common.HexToAddress("0xaa")
	card := NewProposalCard(ProposalInput{
		Tx: dao.ProposedTx{
			TxHash: common.HexToHash("0x01"),
			Call:   dao.Single{Target: target, Value: big.NewInt(7), Data: []byte{0xde, 0xad}},
			Start:  t0 - 10,
			End:    t0 + 10,
		},
		Proposal: dao.Proposal{ForVotes: big.NewInt(3e9), AgainstVotes: big.NewInt(1e9)},
		Now:      t0,
		MyVotes:  big.NewInt(1_500_000_000),
	})

	assert.Equal(t, dao.VotingOpen, card.Status)
	assert.Equal(t, dao.TxNotScheduled, card.State)
	assert.Equal(t, "1.50", card.VotingPower)
	assert.Equal(t, 75.0, card.For.Percent)
	assert.Equal(t, 25.0, card.Against.Percent)
	assert.Equal(t, "3.00 votes for / 1.00 votes against", card.TallyText)
	assert.False(t, card.Batch)
	require.Len(t, card.Calls, 1)
	assert.Equal(t, CallEntry{Target: target.Hex(), Value: "7", Data: "0xdead"}, card.Calls[0])
	require.Len(t, card.Buttons, 2)
	assert.Equal(t, "For", card.Buttons[0].Label)
	assert.Equal(t, "Against", card.Buttons[1].Label)
}

func TestProposalCardGovernanceButtons(t *testing.T) {
	batch, err := dao.NewBatch(
		[]common.Address{common.HexToAddress("0x01"), common.HexToAddress("0x02")},
		[]*big.Int{big.NewInt(0), big.NewInt(0)},
		[][]byte{{}, {}},
	)
	require.NoError(t, err)
	tx := dao.ProposedTx{Call: batch, Start: t0 - 20, End: t0 - 10}
	passed := dao.Proposal{ForVotes: big.NewInt(2), AgainstVotes: big.NewInt(1)}
	failed := dao.Proposal{ForVotes: big.NewInt(1), AgainstVotes: big.NewInt(1)}

	cases := []struct {
		name      string
		proposal  dao.Proposal
		scheduled *big.Int
		schedule  Button
		execute   Button
	}{
		{
			name:     "passed and not scheduled",
			proposal: passed,
			schedule: Button{Action: command.ActionSchedule, Label: "Schedule", Enabled: true},
			execute:  Button{Action: command.ActionExecute, Label: "Execute", WhyDisabled: "Pending."},
		},
		{
			name:     "not passed",
			proposal: failed,
			schedule: Button{Action: command.ActionSchedule, Label: "Schedule", WhyDisabled: "Proposal is not passed"},
			execute:  Button{Action: command.ActionExecute, Label: "Execute", WhyDisabled: "Proposal is not passed"},
		},
		{
			name:      "pending",
			proposal:  passed,
			scheduled: big.NewInt(t0 + 100),
			schedule:  Button{Action: command.ActionSchedule, Label: "Schedule", WhyDisabled: "Already scheduled"},
			execute:   Button{Action: command.ActionExecute, Label: "Execute", WhyDisabled: "Pending."},
		},
		{
			name:      "ready",
			proposal:  passed,
			scheduled: big.NewInt(t0 - 1),
			schedule:  Button{Action: command.ActionSchedule, Label: "Schedule", WhyDisabled: "Already scheduled"},
			execute:   Button{Action: command.ActionExecute, Label: "Execute", Enabled: true},
		},
		{
			name:      "executed",
			proposal:  passed,
			scheduled: big.NewInt(1),
			schedule:  Button{Action: command.ActionSchedule, Label: "Schedule", WhyDisabled: "Already scheduled"},
			execute:   Button{Action: command.ActionExecute, Label: "Execute", WhyDisabled: "Already executed"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			card := NewProposalCard(ProposalInput{Tx: tx, Proposal: tc.proposal, Scheduled: tc.scheduled, Now: t0})
			assert.Equal(t, dao.VotingEnded, card.Status)
			assert.True(t, card.Batch)
			assert.Len(t, card.Calls, 2)
			require.Len(t, card.Buttons, 2)
			assert.Equal(t, tc.schedule, card.Buttons[0])
			assert.Equal(t, tc.execute, card.Buttons[1])
		})
	}
}

func TestProposalCardPendingHasNoButtons(t *testing.T) {
	card := NewProposalCard(ProposalInput{Proposal: dao.Proposal{Start: t0 + 1, End: t0 + 2}, Now: t0})
	assert.Equal(t, dao.VotingPending, card.Status)
	assert.Empty(t, card.Buttons)
	assert.Equal(t, "0.00", card.VotingPower)
	assert.Zero(t, card.For.Percent)
}

func TestBalanceCardAndJobBoard(t *testing.T) {
	token := common.HexToAddress("0x1000")
	card := NewBalanceCard(token, "VISION", big.NewInt(1_234_500_000_000_000_000))
	assert.Equal(t, BalanceCard{Token: token.Hex(), Symbol: "$VISION", Balance: "1.23", Raw: "1234500000000000000"}, card)

	board := NewJobBoard(jobs.Board{Total: 3, Active: []int64{0, 2}, Inactive: []int64{1}})
	assert.Equal(t, JobBoard{Total: 3, Active: []string{"0", "2"}, Inactive: []string{"1"}}, board)
}
