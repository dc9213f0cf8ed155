package command

import (
	"errors"
	"fmt"
)

// Kind classifies a notice.
type Kind string

const (
	// KindPrecondition: rejected locally before any network call.
	KindPrecondition Kind = "precondition"
	// KindRejected: the signer refused, the node rejected the transaction or
	// it reverted.
	KindRejected Kind = "rejected"
)

// Messages shown for failed preconditions.
const (
	MsgNotConnected     = "Not connected"
	MsgNotEnoughBalance = "Not enough balance"
	MsgExpired          = "Expired"
	MsgEpochNotSetup    = "Epoch is not setup"
	MsgInvalidAddress   = "Not a valid address"
	MsgStillLocked      = "Still locked"
	MsgInvalidAmount    = "Invalid amount"
	MsgLockPeriod       = "Lock period must be between 1 and 208 epochs"
	MsgTooLong          = "Exceeds the maximum lock period"
	MsgNothingLocked    = "Nothing to withdraw"
	MsgVotingClosed     = "Voting is closed"
	MsgNotPassed        = "Proposal has not passed"
	MsgAlreadyScheduled = "Already scheduled"
	MsgNotReady         = "Not ready to execute"
	MsgMissingURI       = "Project metadata is missing"
	MsgMissingName      = "Name and symbol are required"
	MsgUnknownProject   = "Unknown project"
)

// Notice is a blocking user notification. Commands return it instead of
// letting recoverable failures escape.
type Notice struct {
	Kind    Kind   `json:"kind"`
	Action  string `json:"action"`
	Message string `json:"message"`
	err     error
}

func (n *Notice) Error() string { return n.Message }

func (n *Notice) Unwrap() error { return n.err }

func precondition(msg string) *Notice {
	return &Notice{Kind: KindPrecondition, Message: msg}
}

func rejected(err error) *Notice {
	return &Notice{Kind: KindRejected, Message: fmt.Sprintf("Rejected with %v", err), err: err}
}

// AsNotice extracts a notice from err.
func AsNotice(err error) (*Notice, bool) {
	var n *Notice
	if errors.As(err, &n) {
		return n, true
	}
	return nil, false
}
