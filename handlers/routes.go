package handlers

import "net/http"

// Set is every handler the HTTP server mounts.
type Set struct {
	Health    *HealthHandler
	QRCode    *QRCodeHandler
	Dashboard *DashboardHandler
	Commands  *CommandHandler
	// Guard wraps command endpoints, typically with API key checks. Nil
	// leaves them open.
	Guard   func(http.Handler) http.Handler
	Metrics http.Handler
	// MCP serves the tool protocol over HTTP and MCPTools lists the tools.
	// Both are optional.
	MCP      http.Handler
	MCPTools http.Handler
}

// Routes builds the API mux.
func (s Set) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Health endpoints
	mux.HandleFunc("GET /api/health", s.Health.HandleHealth)
	if s.Metrics != nil {
		mux.Handle("GET /metrics", s.Metrics)
	}

	// QR code endpoints
	mux.HandleFunc("GET /api/qrcode", s.QRCode.HandleGenerateQRCode)

	// Views
	d := s.Dashboard
	mux.HandleFunc("GET /api/network", d.HandleNetwork)
	mux.HandleFunc("GET /api/accounts/{account}/balance", d.HandleBalance)
	mux.HandleFunc("GET /api/accounts/{account}/create-lock", d.HandleCreateLockForm)
	mux.HandleFunc("GET /api/accounts/{account}/locks", d.HandleLocks)
	mux.HandleFunc("POST /api/accounts/{account}/proposal", d.HandleProposal)
	mux.HandleFunc("GET /api/accounts/{account}/jobs", d.HandleJobs)
	mux.HandleFunc("GET /api/projects/{id}", d.HandleProject)
	mux.HandleFunc("GET /api/activity", d.HandleActivity)
	mux.HandleFunc("GET /api/fork/{rest...}", d.HandleForkRoute)

	// Commands
	guard := s.Guard
	if guard == nil {
		guard = func(h http.Handler) http.Handler { return h }
	}
	c := s.Commands
	commands := map[string]http.Handler{
		"approve":           http.HandlerFunc(c.HandleApprove),
		"create-lock":       http.HandlerFunc(c.HandleCreateLock),
		"increase-amount":   c.HandleIncreaseAmount(),
		"extend-lock":       c.HandleExtendLock(),
		"delegate":          c.HandleDelegate(),
		"withdraw":          c.HandleWithdraw(),
		"vote":              http.HandlerFunc(c.HandleVote),
		"schedule":          c.HandleSchedule(),
		"execute":           c.HandleExecute(),
		"fork/new":          http.HandlerFunc(c.HandleCreateProject),
		"fork/upgrade/{id}": http.HandlerFunc(c.HandleUpgrade),
		"fork/launch/{id}":  http.HandlerFunc(c.HandleLaunch),
	}
	for path, h := range commands {
		mux.Handle("POST /api/commands/"+path, guard(h))
	}

	// MCP
	if s.MCPTools != nil {
		mux.Handle("GET /api/mcp/tools", s.MCPTools)
	}
	if s.MCP != nil {
		// Tool calls act for the wallet, so they sit behind the same guard.
		mux.Handle("/mcp", guard(s.MCP))
	}
	return mux
}
