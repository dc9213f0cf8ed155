// Package command submits signed transactions. Every command checks its
// preconditions locally, sends exactly one call to one contract, waits for the
// receipt and returns a completion token. Failures come back as notices;
// nothing is retried.
package command

import (
	"context"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"workhard-dashboard/metrics"
	"workhard-dashboard/storage/activity"
)

// Signer is the wallet boundary.
type Signer interface {
	// Account returns the wallet address and whether it can sign.
	Account() (common.Address, bool)
	TransactOpts(ctx context.Context) (*bind.TransactOpts, error)
}

// Waiter blocks until a transaction is mined. A reverted receipt is an error.
type Waiter interface {
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// Completion is the token of a confirmed transaction.
type Completion struct {
	Hash    common.Hash    `json:"hash"`
	Receipt *types.Receipt `json:"-"`
}

// Send builds and submits one transaction.
type Send func(opts *bind.TransactOpts) (*types.Transaction, error)

// Runner drives the submission lifecycle.
type Runner struct {
	signer  Signer
	waiter  Waiter
	network string
	journal activity.Store
	metrics *metrics.Metrics
	logger  *zap.Logger
	hooks   []func(account common.Address, c Completion)
}

type Option func(*Runner)

func WithJournal(s activity.Store) Option {
	return func(r *Runner) { r.journal = s }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithNetwork tags journal entries.
func WithNetwork(name string) Option {
	return func(r *Runner) { r.network = name }
}

// OnComplete registers fn to receive every completion, typically to re-key
// the account's projections.
func OnComplete(fn func(account common.Address, c Completion)) Option {
	return func(r *Runner) { r.hooks = append(r.hooks, fn) }
}

func NewRunner(signer Signer, waiter Waiter, opts ...Option) *Runner {
	r := &Runner{signer: signer, waiter: waiter, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Account is the connected account, if any.
func (r *Runner) Account() (common.Address, bool) {
	if r.signer == nil {
		return common.Address{}, false
	}
	return r.signer.Account()
}

// Submit runs check, then send, then waits for the receipt. check runs before
// anything touches the network; a nil check only requires a connected wallet.
// ctx bounds everything up to the send. The receipt wait is bounded only by
// the node.
func (r *Runner) Submit(ctx context.Context, action string, check func() error, send Send) (*Completion, error) {
	account, connected := r.Account()
	if !connected {
		return nil, r.fail(ctx, action, account, precondition(MsgNotConnected), "")
	}
	if check != nil {
		if err := check(); err != nil {
			n, ok := AsNotice(err)
			if !ok {
				n = precondition(err.Error())
			}
			return nil, r.fail(ctx, action, account, n, "")
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, r.fail(ctx, action, account, rejected(err), "")
	}
	opts, err := r.signer.TransactOpts(ctx)
	if err != nil {
		return nil, r.fail(ctx, action, account, rejected(err), "")
	}
	tx, err := send(opts)
	if err != nil {
		return nil, r.fail(ctx, action, account, rejected(err), "")
	}
	r.logger.Info("transaction submitted",
		zap.String("action", action),
		zap.String("account", account.Hex()),
		zap.String("tx", tx.Hash().Hex()))

	// A sent transaction is mined whether or not the caller is still
	// waiting, so its receipt wait is not tied to ctx.
	receipt, err := r.waiter.WaitMined(context.WithoutCancel(ctx), tx)
	if err != nil {
		return nil, r.fail(ctx, action, account, rejected(err), tx.Hash().Hex())
	}

	c := Completion{Hash: tx.Hash(), Receipt: receipt}
	r.record(ctx, activity.Entry{
		Account: account.Hex(),
		Action:  action,
		Outcome: activity.OutcomeConfirmed,
		TxHash:  c.Hash.Hex(),
	})
	r.logger.Info("transaction confirmed", zap.String("action", action), zap.String("tx", c.Hash.Hex()))
	for _, hook := range r.hooks {
		hook(account, c)
	}
	return &c, nil
}

func (r *Runner) fail(ctx context.Context, action string, account common.Address, n *Notice, txHash string) *Notice {
	n.Action = action
	outcome := activity.OutcomeRejected
	if n.Kind == KindPrecondition {
		outcome = activity.OutcomePrecondition
	}
	r.record(ctx, activity.Entry{
		Account: account.Hex(),
		Action:  action,
		Outcome: outcome,
		TxHash:  txHash,
		Reason:  n.Message,
	})
	r.logger.Warn("command failed",
		zap.String("action", action),
		zap.String("kind", string(n.Kind)),
		zap.String("reason", n.Message))
	return n
}

func (r *Runner) record(ctx context.Context, e activity.Entry) {
	r.metrics.Command(e.Action, e.Outcome)
	if r.journal == nil {
		return
	}
	e.Network = r.network
	if _, err := r.journal.Append(context.WithoutCancel(ctx), e); err != nil {
		r.logger.Warn("journal append failed", zap.String("action", e.Action), zap.Error(err))
	}
}
