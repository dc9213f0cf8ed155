package dao

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Err is a simple string error helper.
type Err string

func (e Err) Error() string { return string(e) }

var (
	ErrShapeMismatch = Err("target, value and data must all be single values or all be lists")
	ErrBatchLength   = Err("batch target, value and data lists must have the same length")
	ErrEmptyBatch    = Err("batch call needs at least one target")
)

// Call is the payload of a governance transaction: either one target or an
// ordered batch. The shape is decided once, when the call is decoded.
type Call interface {
	// Len is the number of targets the call touches.
	Len() int
	isCall()
}

// Single is a call against one target.
type Single struct {
	Target common.Address
	Value  *big.Int
	Data   []byte
}

// Batch is an ordered list of calls executed atomically by the timelock.
type Batch struct {
	Targets []common.Address
	Values  []*big.Int
	Datas   [][]byte
}

func (Single) Len() int  { return 1 }
func (b Batch) Len() int { return len(b.Targets) }

func (Single) isCall() {}
func (Batch) isCall()  {}

// NewBatch validates that the parallel lists line up.
func NewBatch(targets []common.Address, values []*big.Int, datas [][]byte) (Batch, error) {
	if len(targets) == 0 {
		return Batch{}, ErrEmptyBatch
	}
	if len(values) != len(targets) || len(datas) != len(targets) {
		return Batch{}, fmt.Errorf("%w: %d targets, %d values, %d datas", ErrBatchLength, len(targets), len(values), len(datas))
	}
	return Batch{Targets: targets, Values: values, Datas: datas}, nil
}

// Entries flattens the call into one Single per target.
func Entries(c Call) []Single {
	switch v := c.(type) {
	case Single:
		return []Single{v}
	case Batch:
		out := make([]Single, 0, len(v.Targets))
		for i := range v.Targets {
			out = append(out, Single{Target: v.Targets[i], Value: v.Values[i], Data: v.Datas[i]})
		}
		return out
	default:
		return nil
	}
}

// RawCall is the wire form of a call where each field may be a scalar or a list.
type RawCall struct {
	Target json.RawMessage `json:"target"`
	Value  json.RawMessage `json:"value"`
	Data   json.RawMessage `json:"data"`
}

// DecodeCall turns the wire form into a Single or a Batch. Mixed shapes are a
// configuration error and are never submitted.
func DecodeCall(raw RawCall) (Call, error) {
	tList, vList, dList := isList(raw.Target), isList(raw.Value), isList(raw.Data)
	switch {
	case !tList && !vList && !dList:
		return decodeSingle(raw)
	case tList && vList && dList:
		return decodeBatch(raw)
	default:
		return nil, ErrShapeMismatch
	}
}

func decodeSingle(raw RawCall) (Single, error) {
	var target string
	if err := json.Unmarshal(raw.Target, &target); err != nil {
		return Single{}, fmt.Errorf("decode target: %w", err)
	}
	addr, err := parseAddress(target)
	if err != nil {
		return Single{}, err
	}
	value, err := parseValue(raw.Value)
	if err != nil {
		return Single{}, err
	}
	data, err := parseData(raw.Data)
	if err != nil {
		return Single{}, err
	}
	return Single{Target: addr, Value: value, Data: data}, nil
}

func decodeBatch(raw RawCall) (Batch, error) {
	var targets []string
	if err := json.Unmarshal(raw.Target, &targets); err != nil {
		return Batch{}, fmt.Errorf("decode targets: %w", err)
	}
	var values, datas []json.RawMessage
	if err := json.Unmarshal(raw.Value, &values); err != nil {
		return Batch{}, fmt.Errorf("decode values: %w", err)
	}
	if err := json.Unmarshal(raw.Data, &datas); err != nil {
		return Batch{}, fmt.Errorf("decode datas: %w", err)
	}

	addrs := make([]common.Address, len(targets))
	for i, t := range targets {
		addr, err := parseAddress(t)
		if err != nil {
			return Batch{}, fmt.Errorf("target %d: %w", i, err)
		}
		addrs[i] = addr
	}
	vals := make([]*big.Int, len(values))
	for i, v := range values {
		val, err := parseValue(v)
		if err != nil {
			return Batch{}, fmt.Errorf("value %d: %w", i, err)
		}
		vals[i] = val
	}
	ds := make([][]byte, len(datas))
	for i, d := range datas {
		data, err := parseData(d)
		if err != nil {
			return Batch{}, fmt.Errorf("data %d: %w", i, err)
		}
		ds[i] = data
	}
	return NewBatch(addrs, vals, ds)
}

// EncodeCall is the inverse of DecodeCall.
func EncodeCall(c Call) (RawCall, error) {
	var target, value, data any
	switch v := c.(type) {
	case Single:
		target, value, data = v.Target.Hex(), bigString(v.Value), hexutil.Encode(v.Data)
	case Batch:
		ts := make([]string, len(v.Targets))
		vs := make([]string, len(v.Values))
		ds := make([]string, len(v.Datas))
		for i := range v.Targets {
			ts[i] = v.Targets[i].Hex()
			vs[i] = bigString(v.Values[i])
			ds[i] = hexutil.Encode(v.Datas[i])
		}
		target, value, data = ts, vs, ds
	default:
		return RawCall{}, fmt.Errorf("unknown call type %T", c)
	}
	var raw RawCall
	var err error
	if raw.Target, err = json.Marshal(target); err != nil {
		return RawCall{}, err
	}
	if raw.Value, err = json.Marshal(value); err != nil {
		return RawCall{}, err
	}
	if raw.Data, err = json.Marshal(data); err != nil {
		return RawCall{}, err
	}
	return raw, nil
}

func isList(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

// parseValue accepts a JSON number, a decimal string or a 0x-prefixed hex string.
func parseValue(raw json.RawMessage) (*big.Int, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return new(big.Int), nil
	}
	var s string
	if trimmed[0] == '"' {
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, fmt.Errorf("decode value: %w", err)
		}
	} else {
		s = string(trimmed)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return new(big.Int), nil
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := hexutil.DecodeBig(s)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q: %w", s, err)
		}
		return v, nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid value %q", s)
	}
	return v, nil
}

func parseData(raw json.RawMessage) ([]byte, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return []byte{}, nil
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return nil, fmt.Errorf("decode data: %w", err)
	}
	if s == "" || s == "0x" {
		return []byte{}, nil
	}
	data, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("invalid data %q: %w", s, err)
	}
	return data, nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
