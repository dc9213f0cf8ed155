package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"workhard-dashboard/config"
	"workhard-dashboard/container"
)

var (
	// Global flags, layered over WORKHARD_* variables
	rpcURL      string
	privateKey  string
	account     string
	deployments string
	chainID     int64
	logLevel    string
	timeout     time.Duration

	cfg    config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "workhard",
	Short: "Workhard DAO dashboard",
	Long: `workhard serves the Workhard DAO dashboard: VISION balances, vote locks,
governance proposals, the job board and the fork-and-launch wizard.

Views refresh once per block. Commands sign with the local wallet
(WORKHARD_PRIVATE_KEY); without one the dashboard is read-only.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Parse(); err != nil {
			return err
		}
		applyFlags(cmd)
		if err := cfg.Validate(); err != nil {
			return err
		}
		if logger, err = cfg.NewLogger(); err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func applyFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("rpc") {
		cfg.RPCURL = rpcURL
	}
	if flags.Changed("private-key") {
		cfg.PrivateKey = privateKey
	}
	if flags.Changed("account") {
		cfg.Account = account
	}
	if flags.Changed("deployments") {
		cfg.Deployments = deployments
	}
	if flags.Changed("chain-id") {
		cfg.ChainID = chainID
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard API",
	RunE:  runServe,
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the dashboard tools over MCP stdio",
	RunE:  runMCP,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rpcURL, "rpc", "", "JSON-RPC endpoint (or WORKHARD_RPC_URL)")
	rootCmd.PersistentFlags().StringVar(&privateKey, "private-key", "", "Hex signing key (or WORKHARD_PRIVATE_KEY)")
	rootCmd.PersistentFlags().StringVar(&account, "account", "", "Watch-only account for views (or WORKHARD_ACCOUNT)")
	rootCmd.PersistentFlags().StringVar(&deployments, "deployments", "", "Deployment table, JSON or YAML (or WORKHARD_DEPLOYMENTS)")
	rootCmd.PersistentFlags().Int64Var(&chainID, "chain-id", 0, "Chain id; 0 asks the node")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Timeout of one-shot commands")

	serveCmd.Flags().String("listen", "", "Listen address (or WORKHARD_LISTEN_ADDR)")
	serveCmd.Flags().Bool("mcp-http", false, "Also serve MCP at /mcp")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
	addQueryCommands(rootCmd)
	addLockCommands(rootCmd)
	addGovernanceCommands(rootCmd)
	addForkCommands(rootCmd)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runServe(cmd *cobra.Command, args []string) error {
	if addr, _ := cmd.Flags().GetString("listen"); addr != "" {
		cfg.ListenAddr = addr
	}
	if on, _ := cmd.Flags().GetBool("mcp-http"); on {
		cfg.MCPOverHTTP = true
	}

	ctx, stop := signalContext()
	defer stop()

	c, err := container.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           c.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() { errCh <- c.Run(ctx) }()
	go func() {
		logger.Info("dashboard listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		if err != nil {
			logger.Error("dashboard stopped", zap.Error(err))
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	c, err := container.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	go func() {
		if err := c.Run(ctx); err != nil {
			logger.Warn("refresh loop stopped", zap.Error(err))
		}
	}()

	logger.Info("Workhard MCP server starting", zap.String("network", c.Service.Network().Name))
	return c.MCP.ServeStdio()
}
