package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNetworkName(t *testing.T) {
	assert.Equal(t, "mainnet", NetworkName(1))
	assert.Equal(t, "rinkeby", NetworkName(4))
	assert.Equal(t, "localhost", NetworkName(31337))
	assert.Equal(t, "chain-99", NetworkName(99))
}

func TestDevDeploymentsResolve(t *testing.T) {
	d, err := DevDeployments()
	require.NoError(t, err)
	assert.Equal(t, []string{"localhost"}, d.Networks())

	c, err := New(d, nil).Resolve(31337)
	require.NoError(t, err)
	assert.Equal(t, "localhost:31337", c.ID())
	assert.Equal(t, common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"), c.Vision.Address())
	assert.Len(t, c.Addresses(), len(Required))

	token, err := c.ERC20(common.HexToAddress("0x1234"))
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x1234"), token.Address())
}

func TestResolveUnsupportedNetwork(t *testing.T) {
	d, err := DevDeployments()
	require.NoError(t, err)

	_, err = New(d, nil).Resolve(1)
	require.ErrorIs(t, err, ErrUnsupportedNetwork)
}

func TestResolveIncompleteDeployment(t *testing.T) {
	d, err := ParseDeployments([]byte(`
rinkeby:
  Vision: "0x0000000000000000000000000000000000000001"
  VeLocker: "0x0000000000000000000000000000000000000002"
`))
	require.NoError(t, err)
	assert.Empty(t, d.Networks())

	_, err = New(d, nil).Resolve(4)
	require.ErrorIs(t, err, ErrUnsupportedNetwork)
	assert.Contains(t, err.Error(), "DividendPool")
}

func TestParseDeploymentsRejectsBadAddress(t *testing.T) {
	_, err := ParseDeployments([]byte("mainnet:\n  Vision: nope\n"))
	require.Error(t, err)

	_, err = ParseDeployments([]byte("::"))
	require.Error(t, err)
}

func TestLoadDeployments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deployed.yaml")
	require.NoError(t, os.WriteFile(path, devDeployments, 0o600))

	d, err := LoadDeployments(path)
	require.NoError(t, err)
	assert.Contains(t, d, "localhost")

	_, err = LoadDeployments(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestContractsERC20WithoutBinder(t *testing.T) {
	var c Contracts
	_, err := c.ERC20(common.HexToAddress("0x01"))
	require.Error(t, err)
	assert.Equal(t, "", (*Contracts)(nil).ID())
}
