package dao

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	singleOperation abi.Arguments
	batchOperation  abi.Arguments
)

func init() {
	must := func(t string) abi.Type {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			panic(err)
		}
		return typ
	}
	singleOperation = abi.Arguments{
		{Type: must("address")}, {Type: must("uint256")}, {Type: must("bytes")},
		{Type: must("bytes32")}, {Type: must("bytes32")},
	}
	batchOperation = abi.Arguments{
		{Type: must("address[]")}, {Type: must("uint256[]")}, {Type: must("bytes[]")},
		{Type: must("bytes32")}, {Type: must("bytes32")},
	}
}

// OperationID is the timelock id of call: keccak256 over the ABI encoding of
// the call, predecessor and salt. Proposals in the workers union are filed
// under the same id.
func OperationID(call Call, predecessor, salt common.Hash) (common.Hash, error) {
	var (
		packed []byte
		err    error
	)
	switch c := call.(type) {
	case Single:
		packed, err = singleOperation.Pack(c.Target, orZero(c.Value), orEmpty(c.Data), predecessor, salt)
	case Batch:
		values := make([]*big.Int, len(c.Values))
		for i, v := range c.Values {
			values[i] = orZero(v)
		}
		datas := make([][]byte, len(c.Datas))
		for i, d := range c.Datas {
			datas[i] = orEmpty(d)
		}
		packed, err = batchOperation.Pack(c.Targets, values, datas, predecessor, salt)
	default:
		return common.Hash{}, fmt.Errorf("operation id: unsupported call %T", call)
	}
	if err != nil {
		return common.Hash{}, fmt.Errorf("operation id: %w", err)
	}
	return crypto.Keccak256Hash(packed), nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func orEmpty(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
