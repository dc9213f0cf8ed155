// Package mcp exposes the dashboard views and commands as MCP tools so an
// agent can read an account's state and act for the local wallet.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"workhard-dashboard/chain"
	"workhard-dashboard/command"
	"workhard-dashboard/core/dao"
	"workhard-dashboard/dashboard"
	"workhard-dashboard/fork"
	"workhard-dashboard/storage/activity"
)

// Tool categories used by Search.
const (
	CategoryViews    = "views"
	CategoryCommands = "commands"
	CategoryFork     = "fork"
)

// ToolInfo describes a registered tool.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// MCPServer wraps the mcp-go server with the dashboard service.
type MCPServer struct {
	mcpServer *server.MCPServer
	svc       *dashboard.Service

	tools    []ToolInfo
	handlers map[string]server.ToolHandlerFunc
}

// NewMCPServer creates the server and registers every tool.
func NewMCPServer(svc *dashboard.Service) *MCPServer {
	mcpServer := server.NewMCPServer(
		"Workhard Dashboard MCP Server",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s := &MCPServer{
		mcpServer: mcpServer,
		svc:       svc,
		handlers:  make(map[string]server.ToolHandlerFunc),
	}
	s.registerTools()
	return s
}

// GetMCPServer returns the underlying MCP server for transport setup.
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio serves MCP over stdin and stdout until the client disconnects.
func (s *MCPServer) ServeStdio() error {
	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("serve MCP: %w", err)
	}
	return nil
}

// HTTPHandler serves MCP over streamable HTTP.
func (s *MCPServer) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcpServer)
}

// Call invokes a registered tool directly.
func (s *MCPServer) Call(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	h, ok := s.handlers[name]
	if !ok {
		return nil, fmt.Errorf("unknown tool %q", name)
	}
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return h(ctx, req)
}

// Search lists tools whose name or description contains q, optionally limited
// to one category.
func (s *MCPServer) Search(q, category string) []ToolInfo {
	q = strings.ToLower(strings.TrimSpace(q))
	out := make([]ToolInfo, 0, len(s.tools))
	for _, t := range s.tools {
		if category != "" && t.Category != category {
			continue
		}
		if q != "" && !strings.Contains(t.Name, q) && !strings.Contains(strings.ToLower(t.Description), q) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SearchHandler serves Search as JSON.
func (s *MCPServer) SearchHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tools := s.Search(r.URL.Query().Get("q"), r.URL.Query().Get("category"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"tools":   tools,
			"matched": len(tools),
			"total":   len(s.tools),
		})
	})
}

func (s *MCPServer) add(category string, tool mcp.Tool, h server.ToolHandlerFunc) {
	s.mcpServer.AddTool(tool, h)
	s.handlers[tool.Name] = h
	s.tools = append(s.tools, ToolInfo{Name: tool.Name, Description: tool.Description, Category: category})
}

func (s *MCPServer) registerTools() {
	// Views
	s.registerNetworkTool()
	s.registerBalanceTool()
	s.registerCreateLockFormTool()
	s.registerLocksTool()
	s.registerProposalTool()
	s.registerJobsTool()
	s.registerProjectTool()
	s.registerActivityTool()

	// Commands
	s.registerApproveTool()
	s.registerCreateLockTool()
	s.registerLockTools()
	s.registerGovernanceTools()

	// Fork and launch
	s.registerForkTools()
}

func (s *MCPServer) registerNetworkTool() {
	tool := mcp.NewTool("network",
		mcp.WithDescription("Describe the network, the resolved contracts and the local wallet"),
	)
	s.add(CategoryViews, tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(s.svc.Network())
	})
}

func (s *MCPServer) registerBalanceTool() {
	tool := mcp.NewTool("balance",
		mcp.WithDescription("Show an account's token balance, VISION by default"),
		mcp.WithString("account", mcp.Description("Account address; defaults to the local wallet")),
		mcp.WithString("token", mcp.Description("ERC20 token address")),
	)
	s.add(CategoryViews, tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		account, err := s.account(request)
		if err != nil {
			return toolError(err), nil
		}
		var token common.Address
		if raw := request.GetString("token", ""); raw != "" {
			if token, err = parseAddress("token", raw); err != nil {
				return toolError(err), nil
			}
		}
		card, err := s.svc.Balance(ctx, account, token)
		if err != nil {
			return toolError(err), nil
		}
		return jsonResult(card)
	})
}

func (s *MCPServer) registerCreateLockFormTool() {
	tool := mcp.NewTool("create_lock_form",
		mcp.WithDescription("Render the create-lock form: balance, staked share, allowance and the enabled button"),
		mcp.WithString("account", mcp.Description("Account address; defaults to the local wallet")),
		mcp.WithString("amount", mcp.Description("VISION amount to lock")),
		mcp.WithNumber("epochs", mcp.Description("Lock duration in weeks")),
	)
	s.add(CategoryViews, tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		account, err := s.account(request)
		if err != nil {
			return toolError(err), nil
		}
		form, err := s.svc.CreateLockForm(ctx, account, dashboard.CreateLockParams{
			Amount: request.GetString("amount", ""),
			Epochs: int64(request.GetInt("epochs", 0)),
		})
		if err != nil {
			return toolError(err), nil
		}
		return jsonResult(form)
	})
}

func (s *MCPServer) registerLocksTool() {
	tool := mcp.NewTool("locks",
		mcp.WithDescription("List an account's locks as cards with their remaining time and available actions"),
		mcp.WithString("account", mcp.Description("Account address; defaults to the local wallet")),
		mcp.WithString("amount", mcp.Description("Amount to add to a lock")),
		mcp.WithNumber("epochs", mcp.Description("Weeks to extend a lock by")),
		mcp.WithString("delegate_to", mcp.Description("Address to delegate voting power to")),
	)
	s.add(CategoryViews, tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		account, err := s.account(request)
		if err != nil {
			return toolError(err), nil
		}
		cards, err := s.svc.Locks(ctx, account, dashboard.LockParams{
			Amount:     request.GetString("amount", ""),
			Epochs:     int64(request.GetInt("epochs", 0)),
			DelegateTo: request.GetString("delegate_to", ""),
		})
		if err != nil {
			return toolError(err), nil
		}
		return jsonResult(map[string]any{"locks": cards, "total_count": len(cards)})
	})
}

// proposalArgs is the argument shape shared by the proposal, vote, schedule
// and execute tools.
type proposalArgs struct {
	Account     string      `json:"account"`
	Call        dao.RawCall `json:"call"`
	Predecessor string      `json:"predecessor"`
	Salt        string      `json:"salt"`
	TxHash      string      `json:"tx_hash"`
	Agree       bool        `json:"agree"`
}

func proposalOptions(extra ...mcp.ToolOption) []mcp.ToolOption {
	opts := []mcp.ToolOption{
		mcp.WithObject("call", mcp.Required(),
			mcp.Description("Proposed call {target, value, data}; each field is a scalar or a list of equal length")),
		mcp.WithString("predecessor", mcp.Description("32-byte timelock predecessor")),
		mcp.WithString("salt", mcp.Description("32-byte timelock salt")),
		mcp.WithString("tx_hash", mcp.Description("Proposal id; defaults to the timelock operation id")),
	}
	return append(opts, extra...)
}

func decodeProposal(request mcp.CallToolRequest) (proposalArgs, dao.ProposedTx, error) {
	var args proposalArgs
	if err := request.BindArguments(&args); err != nil {
		return args, dao.ProposedTx{}, fmt.Errorf("invalid proposal arguments: %w", err)
	}
	tx, err := dashboard.ProposalRequest{
		TxHash:      args.TxHash,
		RawCall:     args.Call,
		Predecessor: args.Predecessor,
		Salt:        args.Salt,
	}.Decode()
	return args, tx, err
}

func (s *MCPServer) registerProposalTool() {
	opts := proposalOptions(mcp.WithDescription("Render a proposed transaction: votes, timelock state and available actions"),
		mcp.WithString("account", mcp.Description("Account address; defaults to the local wallet")))
	tool := mcp.NewTool("proposal", opts...)
	s.add(CategoryViews, tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, tx, err := decodeProposal(request)
		if err != nil {
			return toolError(err), nil
		}
		account, err := s.resolve(args.Account)
		if err != nil {
			return toolError(err), nil
		}
		card, err := s.svc.ProposalView(ctx, account, tx)
		if err != nil {
			return toolError(err), nil
		}
		return jsonResult(card)
	})
}

func (s *MCPServer) registerJobsTool() {
	tool := mcp.NewTool("jobs",
		mcp.WithDescription("List the job board: active projects and those awaiting approval"),
		mcp.WithString("account", mcp.Description("Account address; defaults to the local wallet")),
	)
	s.add(CategoryViews, tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		account, err := s.account(request)
		if err != nil {
			return toolError(err), nil
		}
		board, err := s.svc.Jobs(ctx, account)
		if err != nil {
			return toolError(err), nil
		}
		return jsonResult(board)
	})
}

func (s *MCPServer) registerProjectTool() {
	tool := mcp.NewTool("project",
		mcp.WithDescription("Describe one project: owner, metadata URI and approval"),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Project id")),
	)
	s.add(CategoryViews, tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireInt("id")
		if err != nil {
			return toolError(err), nil
		}
		p, err := s.svc.Project(ctx, int64(id))
		if err != nil {
			return toolError(err), nil
		}
		return jsonResult(p)
	})
}

func (s *MCPServer) registerActivityTool() {
	tool := mcp.NewTool("activity",
		mcp.WithDescription("List journaled command outcomes, newest first"),
		mcp.WithString("account", mcp.Description("Filter by account")),
		mcp.WithString("action", mcp.Description("Filter by action, e.g. createLock")),
		mcp.WithString("outcome", mcp.Description("confirmed, rejected or precondition")),
		mcp.WithNumber("limit", mcp.Description("Maximum entries to return")),
	)
	s.add(CategoryViews, tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		f := activity.Filter{
			Action:  request.GetString("action", ""),
			Outcome: request.GetString("outcome", ""),
			Limit:   request.GetInt("limit", 0),
		}
		if raw := request.GetString("account", ""); raw != "" {
			account, err := parseAddress("account", raw)
			if err != nil {
				return toolError(err), nil
			}
			f.Account = account.Hex()
		}
		entries, err := s.svc.Activity(ctx, f)
		if err != nil {
			return toolError(err), nil
		}
		return jsonResult(map[string]any{"entries": entries, "total_count": len(entries)})
	})
}

func (s *MCPServer) registerApproveTool() {
	tool := mcp.NewTool("approve",
		mcp.WithDescription("Approve the locker to spend the wallet's VISION"),
	)
	s.add(CategoryCommands, tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return completion(s.svc.ApproveLocker(ctx))
	})
}

func (s *MCPServer) registerCreateLockTool() {
	tool := mcp.NewTool("create_lock",
		mcp.WithDescription("Lock VISION for a number of weeks"),
		mcp.WithString("amount", mcp.Required(), mcp.Description("VISION amount")),
		mcp.WithNumber("epochs", mcp.Required(), mcp.Description("Lock duration in weeks")),
	)
	s.add(CategoryCommands, tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		amount, err := request.RequireString("amount")
		if err != nil {
			return toolError(err), nil
		}
		epochs, err := request.RequireInt("epochs")
		if err != nil {
			return toolError(err), nil
		}
		return completion(s.svc.CreateLock(ctx, dashboard.CreateLockParams{Amount: amount, Epochs: int64(epochs)}))
	})
}

func (s *MCPServer) registerLockTools() {
	lockID := mcp.WithString("lock_id", mcp.Required(), mcp.Description("Lock id, decimal or 0x hex"))

	s.add(CategoryCommands, mcp.NewTool("increase_amount",
		mcp.WithDescription("Add VISION to a running lock"),
		lockID,
		mcp.WithString("amount", mcp.Required(), mcp.Description("VISION amount")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := requireID(request, "lock_id")
		if err != nil {
			return toolError(err), nil
		}
		amount, err := request.RequireString("amount")
		if err != nil {
			return toolError(err), nil
		}
		return completion(s.svc.IncreaseAmount(ctx, id, amount))
	})

	s.add(CategoryCommands, mcp.NewTool("extend_lock",
		mcp.WithDescription("Extend a running lock by a number of weeks"),
		lockID,
		mcp.WithNumber("epochs", mcp.Required(), mcp.Description("Weeks to add")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := requireID(request, "lock_id")
		if err != nil {
			return toolError(err), nil
		}
		epochs, err := request.RequireInt("epochs")
		if err != nil {
			return toolError(err), nil
		}
		return completion(s.svc.ExtendLock(ctx, id, int64(epochs)))
	})

	s.add(CategoryCommands, mcp.NewTool("delegate",
		mcp.WithDescription("Delegate a lock's voting power"),
		lockID,
		mcp.WithString("to", mcp.Required(), mcp.Description("Delegatee address")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := requireID(request, "lock_id")
		if err != nil {
			return toolError(err), nil
		}
		to, err := request.RequireString("to")
		if err != nil {
			return toolError(err), nil
		}
		return completion(s.svc.Delegate(ctx, id, to))
	})

	s.add(CategoryCommands, mcp.NewTool("withdraw",
		mcp.WithDescription("Withdraw an expired lock"),
		lockID,
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := requireID(request, "lock_id")
		if err != nil {
			return toolError(err), nil
		}
		return completion(s.svc.Withdraw(ctx, id))
	})
}

func (s *MCPServer) registerGovernanceTools() {
	s.add(CategoryCommands, mcp.NewTool("vote", proposalOptions(
		mcp.WithDescription("Vote for or against a proposed transaction"),
		mcp.WithBoolean("agree", mcp.Required(), mcp.Description("true to vote for")),
	)...), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, tx, err := decodeProposal(request)
		if err != nil {
			return toolError(err), nil
		}
		return completion(s.svc.Vote(ctx, tx, args.Agree))
	})

	s.add(CategoryCommands, mcp.NewTool("schedule", proposalOptions(
		mcp.WithDescription("Schedule a passed proposal on the timelock"),
	)...), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		_, tx, err := decodeProposal(request)
		if err != nil {
			return toolError(err), nil
		}
		return completion(s.svc.Schedule(ctx, tx))
	})

	s.add(CategoryCommands, mcp.NewTool("execute", proposalOptions(
		mcp.WithDescription("Execute a scheduled proposal once its delay has passed"),
	)...), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		_, tx, err := decodeProposal(request)
		if err != nil {
			return toolError(err), nil
		}
		return completion(s.svc.Execute(ctx, tx))
	})
}

type forkCreateArgs struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageName   string `json:"image_name"`
	Image       []byte `json:"image"`
}

type forkLaunchArgs struct {
	ProjectID string `json:"project_id"`
	chain.LaunchParams
}

func (s *MCPServer) registerForkTools() {
	s.add(CategoryFork, mcp.NewTool("fork_create",
		mcp.WithDescription("Publish project metadata and mint the project"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Project name")),
		mcp.WithString("description", mcp.Description("Project description")),
		mcp.WithString("image_name", mcp.Description("Image file name, e.g. logo.png")),
		mcp.WithString("image", mcp.Description("Base64 image bytes")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args forkCreateArgs
		if err := request.BindArguments(&args); err != nil {
			return toolError(fmt.Errorf("invalid project arguments: %w", err)), nil
		}
		res, err := s.svc.CreateProject(ctx, fork.ProjectInput{
			Name:        args.Name,
			Description: args.Description,
			ImageName:   args.ImageName,
			Image:       args.Image,
		})
		if err != nil {
			return toolError(err), nil
		}
		return jsonResult(res)
	})

	s.add(CategoryFork, mcp.NewTool("fork_upgrade",
		mcp.WithDescription("Upgrade a project to a DAO with its own token"),
		mcp.WithString("project_id", mcp.Required(), mcp.Description("Project id")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Token name")),
		mcp.WithString("symbol", mcp.Required(), mcp.Description("Token symbol")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := requireID(request, "project_id")
		if err != nil {
			return toolError(err), nil
		}
		name, err := request.RequireString("name")
		if err != nil {
			return toolError(err), nil
		}
		symbol, err := request.RequireString("symbol")
		if err != nil {
			return toolError(err), nil
		}
		res, err := s.svc.UpgradeToDAO(ctx, id, name, symbol)
		if err != nil {
			return toolError(err), nil
		}
		return jsonResult(res)
	})

	s.add(CategoryFork, mcp.NewTool("fork_launch",
		mcp.WithDescription("Launch an upgraded DAO with its emission parameters"),
		mcp.WithString("project_id", mcp.Required(), mcp.Description("Project id")),
		mcp.WithNumber("min_emission_rate_per_week", mcp.Description("Minimum weekly emission rate")),
		mcp.WithNumber("emission_cut_rate", mcp.Description("Emission cut rate")),
		mcp.WithNumber("founder_share", mcp.Description("Founder share")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args forkLaunchArgs
		if err := request.BindArguments(&args); err != nil {
			return toolError(fmt.Errorf("invalid launch arguments: %w", err)), nil
		}
		id, err := parseID("project_id", args.ProjectID)
		if err != nil {
			return toolError(err), nil
		}
		res, err := s.svc.Launch(ctx, id, args.LaunchParams)
		if err != nil {
			return toolError(err), nil
		}
		return jsonResult(res)
	})
}

// account resolves the optional account argument.
func (s *MCPServer) account(request mcp.CallToolRequest) (common.Address, error) {
	return s.resolve(request.GetString("account", ""))
}

func (s *MCPServer) resolve(raw string) (common.Address, error) {
	if raw == "" {
		if acct, _ := s.svc.Account(); acct != (common.Address{}) {
			return acct, nil
		}
		return common.Address{}, fmt.Errorf("account is required without a wallet")
	}
	return parseAddress("account", raw)
}

func parseAddress(field, raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%s: not an address: %q", field, raw)
	}
	return common.HexToAddress(raw), nil
}

func requireID(request mcp.CallToolRequest, field string) (*big.Int, error) {
	raw, err := request.RequireString(field)
	if err != nil {
		return nil, err
	}
	return parseID(field, raw)
}

func parseID(field, raw string) (*big.Int, error) {
	id, ok := math.ParseBig256(strings.TrimSpace(raw))
	if !ok || raw == "" {
		return nil, fmt.Errorf("%s: not an id: %q", field, raw)
	}
	return id, nil
}

func completion(c *command.Completion, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(c)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

// toolError renders a notice with its kind and the action that raised it.
func toolError(err error) *mcp.CallToolResult {
	if n, ok := command.AsNotice(err); ok {
		msg := fmt.Sprintf("%s: %s", n.Kind, n.Message)
		if n.Action != "" {
			msg += fmt.Sprintf(" (%s)", n.Action)
		}
		return mcp.NewToolResultError(msg)
	}
	return mcp.NewToolResultError(err.Error())
}
