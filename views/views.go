// Package views builds the view models served to clients. Builders are pure:
// they take projection values and form input and never touch the network.
package views

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"workhard-dashboard/command"
	"workhard-dashboard/core/dao"
	"workhard-dashboard/derive"
	"workhard-dashboard/jobs"
)

// Button is a conditional button. WhyDisabled is set only when Enabled is false.
type Button struct {
	Action      string `json:"action"`
	Label       string `json:"label"`
	Enabled     bool   `json:"enabled"`
	WhyDisabled string `json:"why_disabled,omitempty"`
}

func conditional(action, label string, enabled bool, why string) Button {
	b := Button{Action: action, Label: label, Enabled: enabled}
	if !enabled {
		b.WhyDisabled = why
	}
	return b
}

// fromCheck enables the button when check passes and explains the notice otherwise.
func fromCheck(action, label string, err error) Button {
	if err == nil {
		return Button{Action: action, Label: label, Enabled: true}
	}
	why := err.Error()
	if n, ok := command.AsNotice(err); ok {
		why = n.Message
	}
	return Button{Action: action, Label: label, WhyDisabled: why}
}

func approveButton() Button {
	return Button{Action: command.ActionApprove, Label: "approve", Enabled: true}
}

// Bar is a progress bar.
type Bar struct {
	Percent float64 `json:"percent"`
	Variant string  `json:"variant"`
}

func bar(percent float64) Bar {
	return Bar{Percent: percent, Variant: derive.ProgressVariant(percent)}
}

// BalanceCard shows the account's balance of one token.
type BalanceCard struct {
	Token   string `json:"token"`
	Symbol  string `json:"symbol"`
	Balance string `json:"balance"`
	Raw     string `json:"raw"`
}

func NewBalanceCard(token common.Address, symbol string, balance *big.Int) BalanceCard {
	return BalanceCard{
		Token:   token.Hex(),
		Symbol:  "$" + symbol,
		Balance: derive.FormatEther(balance),
		Raw:     bigString(balance),
	}
}

// CreateLockInput is what the create-lock form is built from.
type CreateLockInput struct {
	Balance   *big.Int
	Allowance *big.Int
	Staked    *big.Int
	Amount    string
	Epochs    int64
}

// CreateLockForm is the stake-and-lock form.
type CreateLockForm struct {
	MaxAmount  string `json:"max_amount"`
	Staked     Bar    `json:"staked"`
	StakedText string `json:"staked_text"`
	Epochs     int64  `json:"epochs"`
	MaxEpochs  int64  `json:"max_epochs"`
	PeriodText string `json:"period_text"`
	Approved   bool   `json:"approved"`
	Primary    Button `json:"primary"`
}

// NewCreateLockForm resolves the approval toggle against the typed amount. The
// primary button approves until the allowance covers the amount, then locks.
func NewCreateLockForm(in CreateLockInput) CreateLockForm {
	total := new(big.Int).Add(orZero(in.Balance), orZero(in.Staked))
	form := CreateLockForm{
		MaxAmount:  derive.FormatEther(in.Balance),
		Staked:     bar(float64(derive.StakePercent(in.Staked, in.Balance))),
		StakedText: fmt.Sprintf("%s / %s of your $VISION token is staked.", derive.FormatEther(in.Staked), derive.FormatEther(total)),
		Epochs:     in.Epochs,
		MaxEpochs:  dao.MaxLockEpochs,
		PeriodText: fmt.Sprintf("%d weeks(%.1f years) / 4 years", in.Epochs, float64(in.Epochs)/52),
		Approved:   bool(derive.Approval(in.Allowance, typed(in.Amount))),
	}
	if !form.Approved {
		form.Primary = approveButton()
		return form
	}
	label := "Stake and lock"
	if in.Epochs > 0 {
		label = fmt.Sprintf("Stake and lock %d epoch(s)", in.Epochs)
	}
	_, err := command.CheckCreateLock(command.CreateLockInput{Amount: in.Amount, Epochs: in.Epochs, Balance: in.Balance})
	form.Primary = fromCheck(command.ActionCreateLock, label, err)
	return form
}

// LockInput is what a lock card is built from.
type LockInput struct {
	Index        int
	Lock         dao.Lock
	Delegatee    common.Address
	Now          int64
	CurrentEpoch *big.Int
	Balance      *big.Int
	Allowance    *big.Int
	Amount       string
	Epochs       int64
	DelegateTo   string
}

// LockCard is one veVISION position with its four actions.
type LockCard struct {
	Title         string          `json:"title"`
	CurrentEpoch  string          `json:"current_epoch"`
	Locked        string          `json:"locked"`
	Progress      derive.Progress `json:"progress"`
	Bar           Bar             `json:"bar"`
	LockedText    string          `json:"locked_text"`
	AddableText   string          `json:"addable_text"`
	ExtendText    string          `json:"extend_text"`
	DelegateeText string          `json:"delegatee_text"`
	Approved      bool            `json:"approved"`
	Increase      Button          `json:"increase"`
	Extend        Button          `json:"extend"`
	Delegate      Button          `json:"delegate"`
	Withdraw      Button          `json:"withdraw"`
}

func NewLockCard(in LockInput) LockCard {
	p := derive.LockProgress(in.Lock.Start, in.Lock.End, in.Now)
	card := LockCard{
		Title:         fmt.Sprintf("Your veVISION NFT #%d - id: %s", in.Index, hexutil.EncodeBig(orZero(in.Lock.ID))),
		CurrentEpoch:  bigString(in.CurrentEpoch),
		Locked:        derive.FormatEther(in.Lock.Amount),
		Progress:      p,
		Bar:           bar(p.LockedPercent),
		LockedText:    fmt.Sprintf("Locked %s/ 4 years", p.LockedYearsString),
		AddableText:   fmt.Sprintf("You can add %s $VISION to this lock.", derive.FormatEther(in.Balance)),
		ExtendText:    fmt.Sprintf("You can extend %d weeks / %d weeks", in.Epochs, p.ExtendableEpochs),
		DelegateeText: fmt.Sprintf("%s is exercising your voting rights.", in.Delegatee.Hex()),
		Approved:      bool(derive.Approval(in.Allowance, typed(in.Amount))),
	}

	switch {
	case in.Balance == nil || in.Balance.Sign() == 0:
		card.Increase = conditional(command.ActionIncreaseAmount, "Increase amount", false, "You staked the MAX!")
	case !card.Approved:
		card.Increase = approveButton()
	default:
		_, err := command.CheckIncreaseAmount(command.IncreaseAmountInput{Lock: in.Lock, Amount: in.Amount, Balance: in.Balance, Now: in.Now})
		card.Increase = fromCheck(command.ActionIncreaseAmount, "Increase amount", err)
	}

	if p.ExtendableEpochs == 0 {
		card.Extend = conditional(command.ActionExtendLock, "Extend lock", false, "You locked the MAX!")
	} else {
		card.Extend = fromCheck(command.ActionExtendLock, "Extend lock",
			command.CheckExtendLock(command.ExtendLockInput{Lock: in.Lock, Epochs: in.Epochs, Now: in.Now}))
	}

	_, err := command.CheckDelegate(in.DelegateTo)
	card.Delegate = fromCheck(command.ActionDelegate, "Delegate your votes", err)
	card.Withdraw = fromCheck(command.ActionWithdraw, "Withdraw", command.CheckWithdraw(in.Lock, in.Now))
	return card
}

// ProposalInput is what a proposal card is built from.
type ProposalInput struct {
	Tx        dao.ProposedTx
	Proposal  dao.Proposal
	Scheduled *big.Int
	Now       int64
	MyVotes   *big.Int
}

// CallEntry is one decoded target of a proposed call.
type CallEntry struct {
	Target string `json:"target"`
	Value  string `json:"value"`
	Data   string `json:"data"`
}

// ProposalCard shows a proposed transaction, its tally and its governance actions.
type ProposalCard struct {
	TxHash       string           `json:"tx_hash"`
	Status       dao.VotingStatus `json:"status"`
	State        dao.TxState      `json:"state"`
	VotingPeriod string           `json:"voting_period"`
	Batch        bool             `json:"batch"`
	Calls        []CallEntry      `json:"calls"`
	VotingPower  string           `json:"voting_power"`
	For          Bar              `json:"for"`
	Against      Bar              `json:"against"`
	TallyText    string           `json:"tally_text"`
	Buttons      []Button         `json:"buttons"`
}

func NewProposalCard(in ProposalInput) ProposalCard {
	start, end := in.Tx.Start, in.Tx.End
	if start == 0 && end == 0 {
		start, end = in.Proposal.Start, in.Proposal.End
	}
	forPct, againstPct := derive.VoteShare(orZero(in.Proposal.ForVotes), orZero(in.Proposal.AgainstVotes))
	card := ProposalCard{
		TxHash:       in.Tx.TxHash.Hex(),
		Status:       dao.StatusAt(start, end, in.Now),
		State:        dao.StateOf(in.Scheduled, in.Now),
		VotingPeriod: fmt.Sprintf("%s ~ %s", unixTime(start), unixTime(end)),
		VotingPower:  derive.FormatGwei(in.MyVotes),
		For:          Bar{Percent: float64(forPct), Variant: "success"},
		Against:      Bar{Percent: float64(againstPct), Variant: "danger"},
		TallyText: fmt.Sprintf("%s votes for / %s votes against",
			derive.FormatGwei(in.Proposal.ForVotes), derive.FormatGwei(in.Proposal.AgainstVotes)),
	}
	if _, ok := in.Tx.Call.(dao.Batch); ok {
		card.Batch = true
	}
	for _, e := range dao.Entries(in.Tx.Call) {
		card.Calls = append(card.Calls, CallEntry{
			Target: e.Target.Hex(),
			Value:  bigString(e.Value),
			Data:   hexutil.Encode(e.Data),
		})
	}

	switch card.Status {
	case dao.VotingOpen:
		card.Buttons = []Button{
			{Action: command.ActionVote, Label: "For", Enabled: true},
			{Action: command.ActionVote, Label: "Against", Enabled: true},
		}
	case dao.VotingEnded:
		gov := command.GovernanceInput{Proposal: in.Proposal, Tx: in.Tx, State: card.State}
		schedule := conditional(command.ActionSchedule, "Schedule", command.CheckSchedule(gov) == nil, "Already scheduled")
		if card.State == dao.TxNotScheduled {
			schedule.WhyDisabled = blank(schedule.Enabled, "Proposal is not passed")
		}
		execute := conditional(command.ActionExecute, "Execute", command.CheckExecute(gov) == nil, "Pending.")
		switch {
		case execute.Enabled:
		case card.State == dao.TxExecuted:
			execute.WhyDisabled = "Already executed"
		case !in.Proposal.Passed():
			execute.WhyDisabled = "Proposal is not passed"
		}
		card.Buttons = []Button{schedule, execute}
	}
	return card
}

// JobBoard lists project ids in the two tabs of the board.
type JobBoard struct {
	Total    int64    `json:"total"`
	Active   []string `json:"active"`
	Inactive []string `json:"inactive"`
}

func NewJobBoard(b jobs.Board) JobBoard {
	return JobBoard{Total: b.Total, Active: ids(b.Active), Inactive: ids(b.Inactive)}
}

func ids(in []int64) []string {
	out := make([]string, 0, len(in))
	for _, id := range in {
		out = append(out, fmt.Sprint(id))
	}
	return out
}

// typed parses the amount field; anything unparsable counts as zero for the toggle.
func typed(amount string) *big.Int {
	if strings.TrimSpace(amount) == "" {
		return new(big.Int)
	}
	v, err := derive.ParseEther(amount)
	if err != nil {
		return new(big.Int)
	}
	return v
}

func blank(enabled bool, why string) string {
	if enabled {
		return ""
	}
	return why
}

func unixTime(sec int64) string {
	return time.Unix(sec, 0).UTC().Format(time.RFC3339)
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func bigString(v *big.Int) string {
	return orZero(v).String()
}
