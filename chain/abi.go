package chain

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ABI fragments for the methods the dashboard reads and writes. They cover a
// subset of each deployed contract.
const (
	erc20ABI = `[
{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

	lockerABI = `[
{"type":"function","name":"locks","stateMutability":"view","inputs":[{"name":"id","type":"uint256"}],"outputs":[{"name":"amount","type":"uint256"},{"name":"start","type":"uint256"},{"name":"end","type":"uint256"}]},
{"type":"function","name":"delegateeOf","stateMutability":"view","inputs":[{"name":"id","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"tokenOfOwnerByIndex","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"index","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"createLock","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"},{"name":"epochs","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"increaseAmount","stateMutability":"nonpayable","inputs":[{"name":"id","type":"uint256"},{"name":"amount","type":"uint256"}],"outputs":[]},
{"type":"function","name":"extendLock","stateMutability":"nonpayable","inputs":[{"name":"id","type":"uint256"},{"name":"epochs","type":"uint256"}],"outputs":[]},
{"type":"function","name":"delegate","stateMutability":"nonpayable","inputs":[{"name":"id","type":"uint256"},{"name":"to","type":"address"}],"outputs":[]},
{"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[{"name":"id","type":"uint256"}],"outputs":[]}
]`

	dividendPoolABI = `[
{"type":"function","name":"getCurrentEpoch","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

	projectABI = `[
{"type":"function","name":"totalSupply","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"ownerOf","stateMutability":"view","inputs":[{"name":"id","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
{"type":"function","name":"tokenURI","stateMutability":"view","inputs":[{"name":"id","type":"uint256"}],"outputs":[{"name":"","type":"string"}]},
{"type":"function","name":"create","stateMutability":"nonpayable","inputs":[{"name":"uri","type":"string"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"event","name":"Transfer","anonymous":false,"inputs":[{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"tokenId","type":"uint256","indexed":true}]}
]`

	jobBoardABI = `[
{"type":"function","name":"approvedProjects","stateMutability":"view","inputs":[{"name":"projId","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

	unionABI = `[
{"type":"function","name":"proposals","stateMutability":"view","inputs":[{"name":"txHash","type":"bytes32"}],"outputs":[{"name":"proposer","type":"address"},{"name":"start","type":"uint256"},{"name":"end","type":"uint256"},{"name":"totalForVotes","type":"uint256"},{"name":"totalAgainstVotes","type":"uint256"}]},
{"type":"function","name":"getVotesAt","stateMutability":"view","inputs":[{"name":"account","type":"address"},{"name":"timestamp","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"vote","stateMutability":"nonpayable","inputs":[{"name":"txHash","type":"bytes32"},{"name":"agree","type":"bool"}],"outputs":[]},
{"type":"function","name":"schedule","stateMutability":"nonpayable","inputs":[{"name":"target","type":"address"},{"name":"value","type":"uint256"},{"name":"data","type":"bytes"},{"name":"predecessor","type":"bytes32"},{"name":"salt","type":"bytes32"}],"outputs":[]},
{"type":"function","name":"scheduleBatch","stateMutability":"nonpayable","inputs":[{"name":"target","type":"address[]"},{"name":"value","type":"uint256[]"},{"name":"data","type":"bytes[]"},{"name":"predecessor","type":"bytes32"},{"name":"salt","type":"bytes32"}],"outputs":[]},
{"type":"function","name":"execute","stateMutability":"payable","inputs":[{"name":"target","type":"address"},{"name":"value","type":"uint256"},{"name":"data","type":"bytes"},{"name":"predecessor","type":"bytes32"},{"name":"salt","type":"bytes32"}],"outputs":[]},
{"type":"function","name":"executeBatch","stateMutability":"payable","inputs":[{"name":"target","type":"address[]"},{"name":"value","type":"uint256[]"},{"name":"data","type":"bytes[]"},{"name":"predecessor","type":"bytes32"},{"name":"salt","type":"bytes32"}],"outputs":[]}
]`

	timelockABI = `[
{"type":"function","name":"getTimestamp","stateMutability":"view","inputs":[{"name":"id","type":"bytes32"}],"outputs":[{"name":"","type":"uint256"}]}
]`

	workhardABI = `[
{"type":"function","name":"upgradeToDAO","stateMutability":"nonpayable","inputs":[{"name":"projId","type":"uint256"},{"name":"name","type":"string"},{"name":"symbol","type":"string"}],"outputs":[]},
{"type":"function","name":"launch","stateMutability":"nonpayable","inputs":[{"name":"projId","type":"uint256"},{"name":"minEmissionRatePerWeek","type":"uint256"},{"name":"emissionCutRate","type":"uint256"},{"name":"founderShare","type":"uint256"}],"outputs":[]}
]`
)

var (
	abiOnce   sync.Once
	abiByName map[string]abi.ABI
	abiErr    error
)

// parsedABI returns the parsed ABI for one of the fragments above.
func parsedABI(name string) (abi.ABI, error) {
	abiOnce.Do(func() {
		sources := map[string]string{
			"erc20":        erc20ABI,
			"locker":       lockerABI,
			"dividendPool": dividendPoolABI,
			"project":      projectABI,
			"jobBoard":     jobBoardABI,
			"union":        unionABI,
			"timelock":     timelockABI,
			"workhard":     workhardABI,
		}
		abiByName = make(map[string]abi.ABI, len(sources))
		for n, src := range sources {
			parsed, err := abi.JSON(strings.NewReader(src))
			if err != nil {
				abiErr = fmt.Errorf("parse %s abi: %w", n, err)
				return
			}
			abiByName[n] = parsed
		}
	})
	if abiErr != nil {
		return abi.ABI{}, abiErr
	}
	parsed, ok := abiByName[name]
	if !ok {
		return abi.ABI{}, fmt.Errorf("unknown abi %q", name)
	}
	return parsed, nil
}
