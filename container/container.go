// Package container wires the dashboard from its configuration.
package container

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"workhard-dashboard/bus"
	"workhard-dashboard/chain"
	"workhard-dashboard/command"
	"workhard-dashboard/config"
	"workhard-dashboard/dashboard"
	"workhard-dashboard/fork"
	"workhard-dashboard/handlers"
	"workhard-dashboard/ipfs"
	"workhard-dashboard/mcp"
	"workhard-dashboard/metrics"
	"workhard-dashboard/middleware"
	"workhard-dashboard/registry"
	"workhard-dashboard/services"
	"workhard-dashboard/storage/activity"
	"workhard-dashboard/storage/auth"
	"workhard-dashboard/tick"
	"workhard-dashboard/wallet"
)

// Deps are the outside-world pieces the container is assembled over. New
// fills them from a live node; tests pass in-memory ones.
type Deps struct {
	Heads     tick.Heads
	Contracts *registry.Contracts
	Waiter    command.Waiter
	Journal   activity.Store
	Uploader  fork.Uploader
	Content   fork.Fetcher
}

// Container holds all application dependencies
type Container struct {
	Config  config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics

	// Chain
	Client *chain.Client
	Ticks  *tick.Source

	// Services
	Service       *dashboard.Service
	Journal       activity.Store
	Keys          *auth.APIKeyStore
	MCP           *mcp.MCPServer
	QRCodeService *services.QRCodeService
	HealthService *services.HealthService

	// Handlers
	Handlers handlers.Set
}

// New dials the node, resolves the contract set of its chain and opens the
// activity journal.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Container, error) {
	client, err := chain.Dial(ctx, cfg.RPCURL, cfg.RPCRate, cfg.RPCBurst, logger)
	if err != nil {
		return nil, err
	}
	chainID := cfg.ChainID
	if chainID == 0 {
		id, err := client.ChainID(ctx)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("chain id: %w", err)
		}
		chainID = id.Int64()
		cfg.ChainID = chainID
	}

	deployments, err := loadDeployments(cfg.Deployments)
	if err != nil {
		client.Close()
		return nil, err
	}
	contracts, err := registry.New(deployments, client.Backend()).Resolve(chainID)
	if err != nil {
		client.Close()
		return nil, err
	}

	journal, err := openJournal(ctx, cfg)
	if err != nil {
		client.Close()
		return nil, err
	}

	content := ipfs.NewClient(cfg.IPFSAPIURL, cfg.IPFSTimeout)
	c, err := Assemble(cfg, logger, Deps{
		Heads:     client,
		Contracts: contracts,
		Waiter:    client,
		Journal:   journal,
		Uploader:  content,
		Content:   content,
	})
	if err != nil {
		journal.Close()
		client.Close()
		return nil, err
	}
	c.Client = client
	logger.Info("dashboard assembled",
		zap.String("network", contracts.Network),
		zap.Int64("chain_id", chainID),
		zap.Bool("can_sign", cfg.CanSign()))
	return c, nil
}

// Assemble builds every service and handler over deps.
func Assemble(cfg config.Config, logger *zap.Logger, deps Deps) (*Container, error) {
	signer, err := newSigner(cfg)
	if err != nil {
		return nil, err
	}
	if deps.Journal == nil {
		deps.Journal = activity.NewMemoryStore(cfg.JournalSize)
	}

	m := metrics.New()
	b := bus.New()
	ticks := tick.New(deps.Heads, b, cfg.TickInterval, logger, m)

	opts := []dashboard.Option{
		dashboard.WithLogger(logger),
		dashboard.WithMetrics(m),
		dashboard.WithJournal(deps.Journal),
		dashboard.WithMounts(cfg.MountTTL, cfg.MaxMounts),
		dashboard.WithConcurrency(cfg.Concurrency),
	}
	if deps.Content != nil {
		opts = append(opts, dashboard.WithContent(deps.Content))
	}
	if deps.Uploader != nil {
		opts = append(opts, dashboard.WithPublisher(fork.NewPublisher(deps.Uploader, logger)))
	}
	svc := dashboard.New(deps.Contracts, b, ticks, signer, deps.Waiter, opts...)

	keys := auth.NewAPIKeyStore()
	for i, key := range cfg.APIKeys {
		keys.Seed(key, fmt.Sprintf("env-%d", i))
	}

	qr := services.NewQRCodeService()
	health := services.NewHealthService(svc.Network)
	agent := mcp.NewMCPServer(svc)

	set := handlers.Set{
		Health:    handlers.NewHealthHandler(health, logger),
		QRCode:    handlers.NewQRCodeHandler(qr, logger),
		Dashboard: handlers.NewDashboardHandler(svc, logger),
		Commands:  handlers.NewCommandHandler(svc, logger),
		Metrics:   m.Handler(),
		MCPTools:  agent.SearchHandler(),
	}
	if keys.Len() > 0 {
		set.Guard = middleware.APIAuth(keys)
	}
	if cfg.MCPOverHTTP {
		set.MCP = agent.HTTPHandler()
	}

	return &Container{
		Config:        cfg,
		Logger:        logger,
		Metrics:       m,
		Ticks:         ticks,
		Service:       svc,
		Journal:       deps.Journal,
		Keys:          keys,
		MCP:           agent,
		QRCodeService: qr,
		HealthService: health,
		Handlers:      set,
	}, nil
}

// Handler is the API mux behind the middleware stack. The first middleware
// is outermost.
func (c *Container) Handler() http.Handler {
	return middleware.Chain(c.Handlers.Routes(),
		middleware.Recovery(c.Logger),
		middleware.Logging(c.Logger),
		middleware.SecurityHeaders,
		middleware.CORS,
		middleware.RateLimit(c.Config.HTTPRate, c.Config.HTTPBurst),
		middleware.Timeout(c.Config.RequestTimeout),
		middleware.ContentType,
		middleware.ValidateQuery,
	)
}

// Run polls blocks and keeps mounted views live until ctx is done.
func (c *Container) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.Ticks.Run(gctx) })
	g.Go(func() error { return c.Service.Run(gctx) })
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close unmounts every view and releases the journal and node connection.
func (c *Container) Close() {
	c.Service.Close()
	c.Journal.Close()
	if c.Client != nil {
		c.Client.Close()
	}
}

func newSigner(cfg config.Config) (command.Signer, error) {
	switch {
	case cfg.PrivateKey != "":
		w, err := wallet.FromHex(cfg.PrivateKey, cfg.ChainID)
		if err != nil {
			return nil, fmt.Errorf("wallet: %w", err)
		}
		return w, nil
	case cfg.Account != "":
		if !common.IsHexAddress(cfg.Account) {
			return nil, fmt.Errorf("wallet: not an address: %q", cfg.Account)
		}
		return wallet.NewWatch(common.HexToAddress(cfg.Account)), nil
	default:
		return nil, nil
	}
}

func loadDeployments(path string) (registry.Deployments, error) {
	if path == "" {
		return registry.DevDeployments()
	}
	return registry.LoadDeployments(path)
}

func openJournal(ctx context.Context, cfg config.Config) (activity.Store, error) {
	if cfg.PGDSN == "" {
		return activity.NewMemoryStore(cfg.JournalSize), nil
	}
	return activity.NewPGStore(ctx, cfg.PGDSN)
}
