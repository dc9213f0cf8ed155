// Package registry resolves a chain id to the deployed Workhard contract set
// and builds typed bindings for each contract.
package registry

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"workhard-dashboard/chain"
	"workhard-dashboard/core/dao"
)

var (
	ErrUnsupportedNetwork = dao.Err("network has no complete Workhard deployment")
)

// Contract names as they appear in deployment tables.
const (
	NameVision               = "Vision"
	NameVeLocker             = "VeLocker"
	NameDividendPool         = "DividendPool"
	NameProject              = "Project"
	NameJobBoard             = "JobBoard"
	NameWorkersUnion         = "WorkersUnion"
	NameTimelockedGovernance = "TimelockedGovernance"
	NameWorkhard             = "Workhard"
)

// Required lists every contract a network must deploy to be usable.
var Required = []string{
	NameVision, NameVeLocker, NameDividendPool, NameProject,
	NameJobBoard, NameWorkersUnion, NameTimelockedGovernance, NameWorkhard,
}

var networkNames = map[int64]string{
	1:        "mainnet",
	4:        "rinkeby",
	5:        "goerli",
	11155111: "sepolia",
	31337:    "localhost",
}

// NetworkName maps a chain id to its deployment table key.
func NetworkName(chainID int64) string {
	if name, ok := networkNames[chainID]; ok {
		return name
	}
	return fmt.Sprintf("chain-%d", chainID)
}

// Deployments maps network name to contract name to address.
type Deployments map[string]map[string]string

//go:embed deployed.dev.yaml
var devDeployments []byte

// DevDeployments is the table shipped for local development.
func DevDeployments() (Deployments, error) {
	return ParseDeployments(devDeployments)
}

// ParseDeployments decodes a YAML deployment table.
func ParseDeployments(data []byte) (Deployments, error) {
	var d Deployments
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse deployments: %w", err)
	}
	for network, contracts := range d {
		for name, addr := range contracts {
			if !common.IsHexAddress(addr) {
				return nil, fmt.Errorf("deployments: %s.%s: invalid address %q", network, name, addr)
			}
		}
	}
	return d, nil
}

// LoadDeployments reads a YAML deployment table from path.
func LoadDeployments(path string) (Deployments, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read deployments: %w", err)
	}
	return ParseDeployments(data)
}

// Networks lists the networks with a complete deployment, sorted.
func (d Deployments) Networks() []string {
	var out []string
	for network := range d {
		if _, missing := d.addresses(network); len(missing) == 0 {
			out = append(out, network)
		}
	}
	sort.Strings(out)
	return out
}

func (d Deployments) addresses(network string) (map[string]common.Address, []string) {
	table := d[network]
	out := make(map[string]common.Address, len(Required))
	var missing []string
	for _, name := range Required {
		raw, ok := table[name]
		if !ok || raw == "" {
			missing = append(missing, name)
			continue
		}
		out[name] = common.HexToAddress(raw)
	}
	return out, missing
}

// Registry builds contract sets for the networks in its deployment table.
type Registry struct {
	deployments Deployments
	backend     bind.ContractBackend
}

// New returns a registry binding contracts through backend.
func New(deployments Deployments, backend bind.ContractBackend) *Registry {
	return &Registry{deployments: deployments, backend: backend}
}

// Resolve returns the contract set for chainID, or ErrUnsupportedNetwork when
// the network is unknown or misses any required contract.
func (r *Registry) Resolve(chainID int64) (*Contracts, error) {
	network := NetworkName(chainID)
	addrs, missing := r.deployments.addresses(network)
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s missing %s", ErrUnsupportedNetwork, network, strings.Join(missing, ", "))
	}

	c := &Contracts{Network: network, ChainID: chainID}
	var err error
	if c.Vision, err = chain.NewToken(addrs[NameVision], r.backend); err != nil {
		return nil, err
	}
	if c.Locker, err = chain.NewLocker(addrs[NameVeLocker], r.backend); err != nil {
		return nil, err
	}
	if c.DividendPool, err = chain.NewDividendPool(addrs[NameDividendPool], r.backend); err != nil {
		return nil, err
	}
	if c.Project, err = chain.NewProject(addrs[NameProject], r.backend); err != nil {
		return nil, err
	}
	if c.JobBoard, err = chain.NewJobBoard(addrs[NameJobBoard], r.backend); err != nil {
		return nil, err
	}
	if c.Union, err = chain.NewUnion(addrs[NameWorkersUnion], r.backend); err != nil {
		return nil, err
	}
	if c.Timelock, err = chain.NewTimelock(addrs[NameTimelockedGovernance], r.backend); err != nil {
		return nil, err
	}
	if c.Workhard, err = chain.NewWorkhard(addrs[NameWorkhard], r.backend); err != nil {
		return nil, err
	}
	c.tokens = func(addr common.Address) (Token, error) {
		t, err := chain.NewToken(addr, r.backend)
		if err != nil {
			return nil, err
		}
		return t, nil
	}
	return c, nil
}
