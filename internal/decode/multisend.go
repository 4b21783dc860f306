package decode

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"txdecoder/internal/model"
)

// MultiSendTx is one entry of a Safe multiSend payload.
type MultiSendTx struct {
	Operation uint8
	To        common.Address
	Value     *big.Int
	Data      []byte
}

const multiSendHeader = 1 + 20 + 32 + 32

// ParseMultiSend splits the packed transactions blob:
// operation (1) | to (20) | value (32) | data length (32) | data, repeated.
func ParseMultiSend(blob []byte) ([]MultiSendTx, error) {
	var txs []MultiSendTx
	for off := 0; off < len(blob); {
		if len(blob)-off < multiSendHeader {
			return nil, fmt.Errorf("multisend entry %d truncated at offset %d", len(txs), off)
		}
		op := blob[off]
		to := common.BytesToAddress(blob[off+1 : off+21])
		value := new(big.Int).SetBytes(blob[off+21 : off+53])
		size := new(big.Int).SetBytes(blob[off+53 : off+85])
		off += multiSendHeader
		if !size.IsUint64() || size.Uint64() > uint64(len(blob)-off) {
			return nil, fmt.Errorf("multisend entry %d data length %s exceeds payload", len(txs), size)
		}
		n := int(size.Uint64())
		data := make([]byte, n)
		copy(data, blob[off:off+n])
		off += n
		txs = append(txs, MultiSendTx{Operation: op, To: to, Value: value, Data: data})
	}
	return txs, nil
}

func multiSendNode(i int, tx MultiSendTx) model.TreeNode {
	return model.TreeNode{
		Name: strconv.Itoa(i),
		Type: "tuple",
		Components: []model.TreeNode{
			{Name: "operation", Type: "uint8", Value: strconv.Itoa(int(tx.Operation))},
			{Name: "to", Type: "address", Value: strings.ToLower(tx.To.Hex())},
			{Name: "value", Type: "uint256", Value: tx.Value.String()},
			{Name: "dataLength", Type: "uint256", Value: strconv.Itoa(len(tx.Data))},
			{Name: "data", Type: "bytes", Value: hexutil.Encode(tx.Data)},
		},
	}
}

// expandMultiSend replaces the packed blob's decode with one tuple per inner transaction.
func (s *session) expandMultiSend(ctx context.Context, node *model.TreeNode, depth int) {
	blob, ok := leafBytes(node)
	if !ok {
		return
	}
	txs, err := ParseMultiSend(blob)
	if err != nil {
		s.logger.Warn("multisend payload unreadable", zap.Error(err))
		return
	}

	entries := make([]model.TreeNode, len(txs))
	for i, tx := range txs {
		entries[i] = multiSendNode(i, tx)
	}
	calls := make([]nestedCall, 0, len(txs))
	for i, tx := range txs {
		calls = append(calls, nestedCall{target: tx.To, node: findChild(&entries[i], "data")})
	}
	s.decodeNested(ctx, calls, depth)

	node.ValueDecoded = &model.ValueDecoded{Calls: entries}
}
