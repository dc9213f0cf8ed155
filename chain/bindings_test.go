package chain

import (
	"bytes"
	"context"
	"math/big"
	"testing"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workhard-dashboard/core/dao"
)

// stubBackend answers eth_call with canned return data keyed by selector.
type stubBackend struct {
	bind.ContractBackend
	returns map[[4]byte][]byte
	calls   int
}

func (s *stubBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	s.calls++
	var sel [4]byte
	copy(sel[:], msg.Data[:4])
	return s.returns[sel], nil
}

func (s *stubBackend) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{0x1}, nil
}

func packReturn(t *testing.T, abiName, method string, values ...any) ([4]byte, []byte) {
	t.Helper()
	parsed, err := parsedABI(abiName)
	require.NoError(t, err)
	m, ok := parsed.Methods[method]
	require.True(t, ok, "method %s missing", method)
	data, err := m.Outputs.Pack(values...)
	require.NoError(t, err)
	var sel [4]byte
	copy(sel[:], m.ID)
	return sel, data
}

func TestAllABIsParse(t *testing.T) {
	for _, name := range []string{"erc20", "locker", "dividendPool", "project", "jobBoard", "union", "timelock", "workhard"} {
		_, err := parsedABI(name)
		require.NoError(t, err, name)
	}
	_, err := parsedABI("nope")
	require.Error(t, err)
}

func TestLockerReadsLockTuple(t *testing.T) {
	sel, data := packReturn(t, "locker", "locks", big.NewInt(500), big.NewInt(100), big.NewInt(200))
	backend := &stubBackend{returns: map[[4]byte][]byte{sel: data}}

	locker, err := NewLocker(common.HexToAddress("0x01"), backend)
	require.NoError(t, err)

	lock, err := locker.Lock(context.Background(), big.NewInt(7))
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(7), lock.ID)
	assert.Equal(t, big.NewInt(500), lock.Amount)
	assert.Equal(t, int64(100), lock.Start)
	assert.Equal(t, int64(200), lock.End)
	assert.Equal(t, 1, backend.calls)
}

func TestUnionReadsProposal(t *testing.T) {
	proposer := common.HexToAddress("0xabc")
	sel, data := packReturn(t, "union", "proposals", proposer, big.NewInt(10), big.NewInt(20), big.NewInt(3), big.NewInt(1))
	backend := &stubBackend{returns: map[[4]byte][]byte{sel: data}}

	union, err := NewUnion(common.HexToAddress("0x02"), backend)
	require.NoError(t, err)

	hash := common.HexToHash("0xfeed")
	p, err := union.Proposal(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, hash, p.TxHash)
	assert.Equal(t, proposer, p.Proposer)
	assert.Equal(t, int64(10), p.Start)
	assert.Equal(t, int64(20), p.End)
	assert.True(t, p.Passed())
}

func TestTokenSymbolAndBalance(t *testing.T) {
	symSel, symData := packReturn(t, "erc20", "symbol", "VISION")
	balSel, balData := packReturn(t, "erc20", "balanceOf", big.NewInt(42))
	backend := &stubBackend{returns: map[[4]byte][]byte{symSel: symData, balSel: balData}}

	token, err := NewToken(common.HexToAddress("0x03"), backend)
	require.NoError(t, err)

	sym, err := token.Symbol(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "VISION", sym)

	bal, err := token.BalanceOf(context.Background(), common.HexToAddress("0x04"))
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(42), bal)
}

// offline opts build and sign a transaction without touching the backend.
func offlineOpts() *bind.TransactOpts {
	return &bind.TransactOpts{
		From:     common.HexToAddress("0x05"),
		Nonce:    big.NewInt(0),
		GasPrice: big.NewInt(1),
		GasLimit: 100_000,
		NoSend:   true,
		Signer: func(_ common.Address, tx *types.Transaction) (*types.Transaction, error) {
			return tx, nil
		},
		Context: context.Background(),
	}
}

func selector(t *testing.T, abiName, method string) []byte {
	t.Helper()
	parsed, err := parsedABI(abiName)
	require.NoError(t, err)
	return parsed.Methods[method].ID
}

func TestUnionScheduleDispatchesOnCallShape(t *testing.T) {
	union, err := NewUnion(common.HexToAddress("0x02"), &stubBackend{})
	require.NoError(t, err)

	single := dao.Single{Target: common.HexToAddress("0xaa"), Value: big.NewInt(1), Data: []byte{0x01}}
	tx, err := union.Schedule(offlineOpts(), single, common.Hash{}, common.Hash{})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(tx.Data(), selector(t, "union", "schedule")))

	batch, err := dao.NewBatch(
		[]common.Address{common.HexToAddress("0xaa"), common.HexToAddress("0xbb")},
		[]*big.Int{big.NewInt(1), nil},
		[][]byte{{0x01}, {}},
	)
	require.NoError(t, err)
	tx, err = union.Schedule(offlineOpts(), batch, common.Hash{}, common.Hash{})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(tx.Data(), selector(t, "union", "scheduleBatch")))

	tx, err = union.Execute(offlineOpts(), batch, common.Hash{}, common.Hash{})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(tx.Data(), selector(t, "union", "executeBatch")))
}

func TestMintedIDFromReceipt(t *testing.T) {
	project := common.HexToAddress("0x06")
	owner := common.HexToAddress("0x07")
	receipt := &types.Receipt{
		Logs: []*types.Log{
			{Address: common.HexToAddress("0x99"), Topics: []common.Hash{transferTopic, {}, common.BytesToHash(owner.Bytes()), common.BigToHash(big.NewInt(1))}},
			{Address: project, Topics: []common.Hash{transferTopic, {}, common.BytesToHash(owner.Bytes()), common.BigToHash(big.NewInt(12))}},
		},
	}
	id, err := MintedID(project, receipt)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(12), id)

	_, err = MintedID(common.HexToAddress("0x08"), receipt)
	require.Error(t, err)
}
