package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/spf13/cobra"

	"workhard-dashboard/chain"
	"workhard-dashboard/container"
	"workhard-dashboard/core/dao"
	"workhard-dashboard/dashboard"
	"workhard-dashboard/fork"
)

// oneShot connects, observes the current block once and runs fn against the
// service.
func oneShot(fn func(ctx context.Context, svc *dashboard.Service, cmd *cobra.Command, args []string) (any, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		c, err := container.New(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer c.Close()
		if _, err := c.Ticks.Poll(ctx); err != nil {
			return fmt.Errorf("poll block: %w", err)
		}

		out, err := fn(ctx, c.Service, cmd, args)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
}

// viewAccount is the account argument, or the configured wallet.
func viewAccount(svc *dashboard.Service, args []string) (common.Address, error) {
	if len(args) > 0 {
		if !common.IsHexAddress(args[0]) {
			return common.Address{}, fmt.Errorf("not an address: %q", args[0])
		}
		return common.HexToAddress(args[0]), nil
	}
	if acct, _ := svc.Account(); acct != (common.Address{}) {
		return acct, nil
	}
	return common.Address{}, fmt.Errorf("pass an account or configure a wallet")
}

func parseID(raw string) (*big.Int, error) {
	id, ok := math.ParseBig256(raw)
	if !ok {
		return nil, fmt.Errorf("not an id: %q", raw)
	}
	return id, nil
}

func addQueryCommands(root *cobra.Command) {
	balanceCmd := &cobra.Command{
		Use:   "balance [account]",
		Short: "Show a token balance, VISION by default",
		Args:  cobra.MaximumNArgs(1),
		RunE: oneShot(func(ctx context.Context, svc *dashboard.Service, cmd *cobra.Command, args []string) (any, error) {
			acct, err := viewAccount(svc, args)
			if err != nil {
				return nil, err
			}
			var token common.Address
			if raw, _ := cmd.Flags().GetString("token"); raw != "" {
				if !common.IsHexAddress(raw) {
					return nil, fmt.Errorf("not a token address: %q", raw)
				}
				token = common.HexToAddress(raw)
			}
			return svc.Balance(ctx, acct, token)
		}),
	}
	balanceCmd.Flags().String("token", "", "ERC20 token address")

	projectsCmd := &cobra.Command{
		Use:   "projects [id]",
		Short: "Show the job board, or one project",
		Args:  cobra.MaximumNArgs(1),
		RunE: oneShot(func(ctx context.Context, svc *dashboard.Service, cmd *cobra.Command, args []string) (any, error) {
			if len(args) == 1 {
				id, err := parseID(args[0])
				if err != nil || !id.IsInt64() {
					return nil, fmt.Errorf("not a project id: %q", args[0])
				}
				return svc.Project(ctx, id.Int64())
			}
			acct, _ := svc.Account()
			return svc.Jobs(ctx, acct)
		}),
	}

	root.AddCommand(balanceCmd, projectsCmd)
}

func addLockCommands(root *cobra.Command) {
	var amount string
	var epochs int64

	approveCmd := &cobra.Command{
		Use:   "approve",
		Short: "Approve the locker to spend the wallet's VISION",
		RunE: oneShot(func(ctx context.Context, svc *dashboard.Service, cmd *cobra.Command, args []string) (any, error) {
			return svc.ApproveLocker(ctx)
		}),
	}

	lockCmd := &cobra.Command{
		Use:   "lock",
		Short: "List and manage vote locks",
	}
	listCmd := &cobra.Command{
		Use:   "list [account]",
		Short: "List the account's locks",
		Args:  cobra.MaximumNArgs(1),
		RunE: oneShot(func(ctx context.Context, svc *dashboard.Service, cmd *cobra.Command, args []string) (any, error) {
			acct, err := viewAccount(svc, args)
			if err != nil {
				return nil, err
			}
			return svc.Locks(ctx, acct, dashboard.LockParams{})
		}),
	}
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Lock VISION for a number of weeks",
		RunE: oneShot(func(ctx context.Context, svc *dashboard.Service, cmd *cobra.Command, args []string) (any, error) {
			return svc.CreateLock(ctx, dashboard.CreateLockParams{Amount: amount, Epochs: epochs})
		}),
	}
	increaseCmd := &cobra.Command{
		Use:   "increase <lock-id>",
		Short: "Add VISION to a running lock",
		Args:  cobra.ExactArgs(1),
		RunE: oneShot(func(ctx context.Context, svc *dashboard.Service, cmd *cobra.Command, args []string) (any, error) {
			id, err := parseID(args[0])
			if err != nil {
				return nil, err
			}
			return svc.IncreaseAmount(ctx, id, amount)
		}),
	}
	extendCmd := &cobra.Command{
		Use:   "extend <lock-id>",
		Short: "Extend a running lock",
		Args:  cobra.ExactArgs(1),
		RunE: oneShot(func(ctx context.Context, svc *dashboard.Service, cmd *cobra.Command, args []string) (any, error) {
			id, err := parseID(args[0])
			if err != nil {
				return nil, err
			}
			return svc.ExtendLock(ctx, id, epochs)
		}),
	}
	delegateCmd := &cobra.Command{
		Use:   "delegate <lock-id> <address>",
		Short: "Delegate a lock's voting power",
		Args:  cobra.ExactArgs(2),
		RunE: oneShot(func(ctx context.Context, svc *dashboard.Service, cmd *cobra.Command, args []string) (any, error) {
			id, err := parseID(args[0])
			if err != nil {
				return nil, err
			}
			return svc.Delegate(ctx, id, args[1])
		}),
	}
	withdrawCmd := &cobra.Command{
		Use:   "withdraw <lock-id>",
		Short: "Withdraw an expired lock",
		Args:  cobra.ExactArgs(1),
		RunE: oneShot(func(ctx context.Context, svc *dashboard.Service, cmd *cobra.Command, args []string) (any, error) {
			id, err := parseID(args[0])
			if err != nil {
				return nil, err
			}
			return svc.Withdraw(ctx, id)
		}),
	}

	for _, c := range []*cobra.Command{createCmd, increaseCmd} {
		c.Flags().StringVar(&amount, "amount", "", "VISION amount")
		c.MarkFlagRequired("amount")
	}
	for _, c := range []*cobra.Command{createCmd, extendCmd} {
		c.Flags().Int64Var(&epochs, "epochs", 0, "Weeks")
		c.MarkFlagRequired("epochs")
	}

	lockCmd.AddCommand(listCmd, createCmd, increaseCmd, extendCmd, delegateCmd, withdrawCmd)
	root.AddCommand(approveCmd, lockCmd)
}

// proposalFlags holds the proposed call shared by the governance commands.
type proposalFlags struct {
	call        string
	predecessor string
	salt        string
	txHash      string
}

func (f *proposalFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.call, "call", "", `Proposed call as JSON {"target","value","data"}, or @file`)
	cmd.Flags().StringVar(&f.predecessor, "predecessor", "", "32-byte timelock predecessor")
	cmd.Flags().StringVar(&f.salt, "salt", "", "32-byte timelock salt")
	cmd.Flags().StringVar(&f.txHash, "tx-hash", "", "Proposal id; defaults to the timelock operation id")
	cmd.MarkFlagRequired("call")
}

func (f *proposalFlags) decode() (dao.ProposedTx, error) {
	raw := []byte(f.call)
	if strings.HasPrefix(f.call, "@") {
		data, err := os.ReadFile(filepath.Clean(f.call[1:]))
		if err != nil {
			return dao.ProposedTx{}, fmt.Errorf("read call: %w", err)
		}
		raw = data
	}
	var call dao.RawCall
	if err := json.Unmarshal(raw, &call); err != nil {
		return dao.ProposedTx{}, fmt.Errorf("parse call: %w", err)
	}
	return dashboard.ProposalRequest{
		TxHash:      f.txHash,
		RawCall:     call,
		Predecessor: f.predecessor,
		Salt:        f.salt,
	}.Decode()
}

func addGovernanceCommands(root *cobra.Command) {
	var pf proposalFlags
	var against bool

	proposalCmd := &cobra.Command{
		Use:   "proposal [account]",
		Short: "Show a proposed transaction",
		Args:  cobra.MaximumNArgs(1),
		RunE: oneShot(func(ctx context.Context, svc *dashboard.Service, cmd *cobra.Command, args []string) (any, error) {
			tx, err := pf.decode()
			if err != nil {
				return nil, err
			}
			acct, err := viewAccount(svc, args)
			if err != nil {
				return nil, err
			}
			return svc.ProposalView(ctx, acct, tx)
		}),
	}
	voteCmd := &cobra.Command{
		Use:   "vote",
		Short: "Vote for a proposed transaction",
		RunE: oneShot(func(ctx context.Context, svc *dashboard.Service, cmd *cobra.Command, args []string) (any, error) {
			tx, err := pf.decode()
			if err != nil {
				return nil, err
			}
			return svc.Vote(ctx, tx, !against)
		}),
	}
	voteCmd.Flags().BoolVar(&against, "against", false, "Vote against")

	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Schedule a passed proposal on the timelock",
		RunE: oneShot(func(ctx context.Context, svc *dashboard.Service, cmd *cobra.Command, args []string) (any, error) {
			tx, err := pf.decode()
			if err != nil {
				return nil, err
			}
			return svc.Schedule(ctx, tx)
		}),
	}
	executeCmd := &cobra.Command{
		Use:   "execute",
		Short: "Execute a scheduled proposal",
		RunE: oneShot(func(ctx context.Context, svc *dashboard.Service, cmd *cobra.Command, args []string) (any, error) {
			tx, err := pf.decode()
			if err != nil {
				return nil, err
			}
			return svc.Execute(ctx, tx)
		}),
	}

	for _, c := range []*cobra.Command{proposalCmd, voteCmd, scheduleCmd, executeCmd} {
		pf.register(c)
		root.AddCommand(c)
	}
}

func addForkCommands(root *cobra.Command) {
	forkCmd := &cobra.Command{
		Use:   "fork",
		Short: "Create, upgrade and launch a project",
	}

	var name, description, image string
	newCmd := &cobra.Command{
		Use:   "new",
		Short: "Publish project metadata and mint the project",
		RunE: oneShot(func(ctx context.Context, svc *dashboard.Service, cmd *cobra.Command, args []string) (any, error) {
			in := fork.ProjectInput{Name: name, Description: description}
			if image != "" {
				data, err := os.ReadFile(filepath.Clean(image))
				if err != nil {
					return nil, fmt.Errorf("read image: %w", err)
				}
				in.Image = data
				in.ImageName = filepath.Base(image)
			}
			return svc.CreateProject(ctx, in)
		}),
	}
	newCmd.Flags().StringVar(&name, "name", "", "Project name")
	newCmd.Flags().StringVar(&description, "description", "", "Project description")
	newCmd.Flags().StringVar(&image, "image", "", "Image file")
	newCmd.MarkFlagRequired("name")

	var symbol string
	upgradeCmd := &cobra.Command{
		Use:   "upgrade <project-id>",
		Short: "Upgrade a project to a DAO",
		Args:  cobra.ExactArgs(1),
		RunE: oneShot(func(ctx context.Context, svc *dashboard.Service, cmd *cobra.Command, args []string) (any, error) {
			id, err := parseID(args[0])
			if err != nil {
				return nil, err
			}
			return svc.UpgradeToDAO(ctx, id, name, symbol)
		}),
	}
	upgradeCmd.Flags().StringVar(&name, "name", "", "Token name")
	upgradeCmd.Flags().StringVar(&symbol, "symbol", "", "Token symbol")

	var emission, cut, share string
	launchCmd := &cobra.Command{
		Use:   "launch <project-id>",
		Short: "Launch an upgraded DAO",
		Args:  cobra.ExactArgs(1),
		RunE: oneShot(func(ctx context.Context, svc *dashboard.Service, cmd *cobra.Command, args []string) (any, error) {
			id, err := parseID(args[0])
			if err != nil {
				return nil, err
			}
			var p chain.LaunchParams
			for _, f := range []struct {
				dst **big.Int
				raw string
				nm  string
			}{
				{&p.MinEmissionRatePerWeek, emission, "min-emission"},
				{&p.EmissionCutRate, cut, "emission-cut"},
				{&p.FounderShare, share, "founder-share"},
			} {
				if f.raw == "" {
					continue
				}
				v, ok := math.ParseBig256(f.raw)
				if !ok {
					return nil, fmt.Errorf("%s: not a number: %q", f.nm, f.raw)
				}
				*f.dst = v
			}
			return svc.Launch(ctx, id, p)
		}),
	}
	launchCmd.Flags().StringVar(&emission, "min-emission", "", "Minimum weekly emission rate")
	launchCmd.Flags().StringVar(&cut, "emission-cut", "", "Emission cut rate")
	launchCmd.Flags().StringVar(&share, "founder-share", "", "Founder share")

	forkCmd.AddCommand(newCmd, upgradeCmd, launchCmd)
	root.AddCommand(forkCmd)
}
