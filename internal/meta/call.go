package meta

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"txdecoder/internal/chain"
)

// errNoAnswer marks a call the contract rejected or answered with nothing.
// The probe is negative for that method; the node itself worked.
var errNoAnswer = errors.New("contract did not answer")

func callMethod(ctx context.Context, reader chain.Reader, to common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	resp, err := reader.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		if chain.IsRevert(err) {
			return nil, fmt.Errorf("call %s: %w", method, errNoAnswer)
		}
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	if len(resp) == 0 {
		return nil, fmt.Errorf("call %s: %w", method, errNoAnswer)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil || len(values) == 0 {
		return nil, fmt.Errorf("unpack %s: %w", method, errNoAnswer)
	}
	return values, nil
}

// readText calls a string getter, falling back to the bytes32 variant used by older tokens.
func readText(ctx context.Context, reader chain.Reader, to common.Address, method string) (string, error) {
	stringABI, err := erc20StringABI.get()
	if err != nil {
		return "", err
	}
	values, err := callMethod(ctx, reader, to, stringABI, method)
	if err == nil {
		if s, ok := values[0].(string); ok {
			return s, nil
		}
	}
	if err != nil && !errors.Is(err, errNoAnswer) {
		return "", err
	}

	bytes32ABI, err := erc20Bytes32ABI.get()
	if err != nil {
		return "", err
	}
	values, err = callMethod(ctx, reader, to, bytes32ABI, method)
	if err != nil {
		return "", err
	}
	s, _ := bytes32ToString(values[0])
	return s, nil
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case uint16:
		return uint8(v), nil
	case uint32:
		return uint8(v), nil
	case uint64:
		return uint8(v), nil
	case *big.Int:
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}
