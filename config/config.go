// Package config loads the dashboard settings from WORKHARD_* environment
// variables. Command-line flags override individual fields after Load.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	// Chain
	RPCURL      string  `env:"WORKHARD_RPC_URL" envDefault:"http://127.0.0.1:8545"`
	ChainID     int64   `env:"WORKHARD_CHAIN_ID"`
	Deployments string  `env:"WORKHARD_DEPLOYMENTS"`
	RPCRate     float64 `env:"WORKHARD_RPC_RPS" envDefault:"20"`
	RPCBurst    int     `env:"WORKHARD_RPC_BURST" envDefault:"40"`

	// Wallet. Without a private key the dashboard is read-only; Account then
	// names the default account for views.
	PrivateKey string `env:"WORKHARD_PRIVATE_KEY"`
	Account    string `env:"WORKHARD_ACCOUNT"`

	// Refresh
	TickInterval time.Duration `env:"WORKHARD_TICK_INTERVAL" envDefault:"4s"`
	MountTTL     time.Duration `env:"WORKHARD_MOUNT_TTL" envDefault:"5m"`
	MaxMounts    int           `env:"WORKHARD_MAX_MOUNTS" envDefault:"1024"`
	Concurrency  int           `env:"WORKHARD_CONCURRENCY" envDefault:"8"`

	// Storage
	PGDSN       string        `env:"WORKHARD_PG_DSN"`
	JournalSize int           `env:"WORKHARD_JOURNAL_SIZE" envDefault:"1000"`
	IPFSAPIURL  string        `env:"WORKHARD_IPFS_API_URL" envDefault:"http://127.0.0.1:5001"`
	IPFSTimeout time.Duration `env:"WORKHARD_IPFS_TIMEOUT" envDefault:"30s"`

	// HTTP
	ListenAddr     string        `env:"WORKHARD_LISTEN_ADDR" envDefault:":8080"`
	APIKeys        []string      `env:"WORKHARD_API_KEYS" envSeparator:","`
	HTTPRate       float64       `env:"WORKHARD_HTTP_RPS" envDefault:"10"`
	HTTPBurst      int           `env:"WORKHARD_HTTP_BURST" envDefault:"20"`
	RequestTimeout time.Duration `env:"WORKHARD_REQUEST_TIMEOUT" envDefault:"60s"`
	MCPOverHTTP    bool          `env:"WORKHARD_MCP_HTTP" envDefault:"false"`

	LogLevel string `env:"WORKHARD_LOG_LEVEL" envDefault:"info"`
}

var ErrInvalid = errors.New("invalid configuration")

// Parse reads the environment without validating, so callers can layer
// flags on top first.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	cfg, err := Parse()
	if err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var problems []string
	if u, err := url.Parse(c.RPCURL); err != nil || u.Scheme == "" {
		problems = append(problems, fmt.Sprintf("rpc url %q", c.RPCURL))
	}
	if c.ChainID < 0 {
		problems = append(problems, "chain id must not be negative")
	}
	if c.TickInterval <= 0 {
		problems = append(problems, "tick interval must be positive")
	}
	if c.MaxMounts <= 0 {
		problems = append(problems, "max mounts must be positive")
	}
	if c.Concurrency <= 0 {
		problems = append(problems, "concurrency must be positive")
	}
	if c.RPCRate < 0 || c.HTTPRate < 0 {
		problems = append(problems, "rates must not be negative")
	}
	if c.PrivateKey != "" && c.Account != "" {
		problems = append(problems, "set either a private key or a watch account, not both")
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		problems = append(problems, fmt.Sprintf("log level %q", c.LogLevel))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// CanSign reports whether commands can be submitted.
func (c Config) CanSign() bool { return c.PrivateKey != "" }

// NewLogger builds a production zap logger at the configured level.
func (c Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
