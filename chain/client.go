package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrReverted is returned when a mined transaction has a failed status.
var ErrReverted = errors.New("transaction reverted")

// Client talks JSON-RPC to a node. Contract reads go through a rate limiter so
// a burst of projection refreshes cannot flood the node.
type Client struct {
	eth     *ethclient.Client
	backend bind.ContractBackend
	logger  *zap.Logger
}

// Dial connects to rpcURL. rps <= 0 disables read limiting.
func Dial(ctx context.Context, rpcURL string, rps float64, burst int, logger *zap.Logger) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		eth:     eth,
		backend: &limitedBackend{Client: eth, limiter: rate.NewLimiter(limit, burst)},
		logger:  logger,
	}, nil
}

// Backend is the contract backend bindings are built on.
func (c *Client) Backend() bind.ContractBackend {
	return c.backend
}

// ChainID returns the network identifier of the node.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	return c.eth.ChainID(ctx)
}

// BlockNumber returns the latest block height.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return c.eth.BlockNumber(ctx)
}

// BlockTime returns the timestamp of the block at height.
func (c *Client) BlockTime(ctx context.Context, height uint64) (int64, error) {
	header, err := c.eth.HeaderByNumber(ctx, new(big.Int).SetUint64(height))
	if err != nil {
		return 0, fmt.Errorf("header %d: %w", height, err)
	}
	return int64(header.Time), nil
}

// WaitMined blocks until tx is included and fails with ErrReverted when the
// receipt status is not successful.
func (c *Client) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	c.logger.Debug("waiting for transaction", zap.String("tx", tx.Hash().Hex()))
	receipt, err := bind.WaitMined(ctx, c.eth, tx)
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: %s", ErrReverted, tx.Hash().Hex())
	}
	return receipt, nil
}

// Close releases the RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

type limitedBackend struct {
	*ethclient.Client
	limiter *rate.Limiter
}

func (b *limitedBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return b.Client.CallContract(ctx, msg, blockNumber)
}
