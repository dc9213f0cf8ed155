package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:8545", cfg.RPCURL)
	assert.Equal(t, 4*time.Second, cfg.TickInterval)
	assert.Equal(t, 1024, cfg.MaxMounts)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Empty(t, cfg.APIKeys)
	assert.False(t, cfg.CanSign())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("WORKHARD_RPC_URL", "https://rpc.example.org")
	t.Setenv("WORKHARD_CHAIN_ID", "1")
	t.Setenv("WORKHARD_TICK_INTERVAL", "12s")
	t.Setenv("WORKHARD_API_KEYS", "a,b")
	t.Setenv("WORKHARD_PRIVATE_KEY", "0x01")
	t.Setenv("WORKHARD_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, int64(1), cfg.ChainID)
	assert.Equal(t, 12*time.Second, cfg.TickInterval)
	assert.Equal(t, []string{"a", "b"}, cfg.APIKeys)
	assert.True(t, cfg.CanSign())

	logger, err := cfg.NewLogger()
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(-1))
}

func TestLoadParseError(t *testing.T) {
	t.Setenv("WORKHARD_MAX_MOUNTS", "many")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}

func TestValidate(t *testing.T) {
	base, err := Load()
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"relative rpc url", func(c *Config) { c.RPCURL = "localhost" }},
		{"zero tick", func(c *Config) { c.TickInterval = 0 }},
		{"no mounts", func(c *Config) { c.MaxMounts = 0 }},
		{"no concurrency", func(c *Config) { c.Concurrency = 0 }},
		{"negative rate", func(c *Config) { c.HTTPRate = -1 }},
		{"key and watch account", func(c *Config) { c.PrivateKey, c.Account = "0x01", "0x02" }},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}
