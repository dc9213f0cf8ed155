// Package wallet is the signer boundary. A Keyed wallet signs with a local
// private key; a watch-only wallet exposes an account but cannot sign.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"workhard-dashboard/core/dao"
)

var ErrNotConnected = dao.Err("Not connected")

// Keyed signs transactions with a private key for one chain.
type Keyed struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
}

// FromHex parses a hex private key, with or without 0x prefix.
func FromHex(hexKey string, chainID int64) (*Keyed, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return New(key, chainID), nil
}

func New(key *ecdsa.PrivateKey, chainID int64) *Keyed {
	return &Keyed{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: big.NewInt(chainID),
	}
}

// Account is the signing address. A keyed wallet is always connected.
func (k *Keyed) Account() (common.Address, bool) {
	return k.address, true
}

// TransactOpts returns fresh options bound to ctx.
func (k *Keyed) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(k.key, k.chainID)
	if err != nil {
		return nil, fmt.Errorf("transactor: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}

// Watch is a read-only wallet. Views render for its address; commands
// answer Not connected.
type Watch struct {
	address common.Address
}

func NewWatch(address common.Address) Watch {
	return Watch{address: address}
}

func (w Watch) Account() (common.Address, bool) {
	return w.address, false
}

func (w Watch) TransactOpts(context.Context) (*bind.TransactOpts, error) {
	return nil, ErrNotConnected
}
