package decode

import (
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"txdecoder/internal/abiloader"
	"txdecoder/internal/chain"
	"txdecoder/internal/chain/chaintest"
	"txdecoder/internal/meta"
	"txdecoder/internal/model"
	"txdecoder/internal/resilience"
	"txdecoder/internal/storage"
	"txdecoder/internal/strategy"
)

const tokenABI = `[
	{"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"event","name":"Transfer","anonymous":false,"inputs":[{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"value","type":"uint256","indexed":false}]},
	{"type":"error","name":"InsufficientBalance","inputs":[{"name":"available","type":"uint256"},{"name":"required","type":"uint256"}]}
]`

const wethABI = `[
	{"type":"function","name":"deposit","stateMutability":"payable","inputs":[],"outputs":[]},
	{"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[{"name":"wad","type":"uint256"}],"outputs":[]},
	{"type":"event","name":"Deposit","anonymous":false,"inputs":[{"name":"dst","type":"address","indexed":true},{"name":"wad","type":"uint256","indexed":false}]}
]`

var (
	sender    = common.HexToAddress("0x0000000000000000000000000000000000000001")
	receiver  = common.HexToAddress("0x0000000000000000000000000000000000000abc")
	tokenAddr = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	wethAddr  = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	safeAddr  = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	mcallAddr = common.HexToAddress("0x00000000000000000000000000000000000000dd")
	unknown   = common.HexToAddress("0x00000000000000000000000000000000000000ee")
)

func mustABI(t *testing.T, raw string) abi.ABI {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	return parsed
}

func pack(t *testing.T, raw, method string, args ...interface{}) []byte {
	t.Helper()
	parsed := mustABI(t, raw)
	data, err := parsed.Pack(method, args...)
	if err != nil {
		t.Fatalf("pack %s: %v", method, err)
	}
	return data
}

// fixtureABIs serves address ABIs from a map.
type fixtureABIs map[common.Address]string

func (f fixtureABIs) ID() string          { return "fixture" }
func (f fixtureABIs) Kind() strategy.Kind { return strategy.KindAddress }
func (f fixtureABIs) Resolve(_ context.Context, r abiloader.Request) ([]model.ContractABI, error) {
	if raw, ok := f[common.HexToAddress(r.Address)]; ok {
		return []model.ContractABI{{ABI: raw}}, nil
	}
	return nil, strategy.ErrNotFound
}

// fixtureMetas serves metadata from a map.
type fixtureMetas map[common.Address]*model.ContractMeta

func (f fixtureMetas) Get(_ context.Context, r meta.Request) (*model.ContractMeta, error) {
	if m, ok := f[common.HexToAddress(r.Address)]; ok {
		return m, nil
	}
	return nil, &meta.MissingMetaError{ChainID: r.ChainID, Address: r.Address, Err: strategy.ErrNotFound}
}

func decimals(d uint8) *uint8 { return &d }

func defaultMetas() fixtureMetas {
	return fixtureMetas{
		tokenAddr: {Address: strings.ToLower(tokenAddr.Hex()), ChainID: 1, ContractType: model.ContractERC20, Name: "Token", Symbol: "TKN", Decimals: decimals(18)},
		wethAddr:  {Address: strings.ToLower(wethAddr.Hex()), ChainID: 1, ContractType: model.ContractWETH, Name: "Wrapped Ether", Symbol: "WETH", Decimals: decimals(18)},
	}
}

type harness struct {
	reader  *chaintest.Reader
	decoder *Decoder
}

func newHarness(t *testing.T, abis fixtureABIs, metas fixtureMetas, cfg Config) *harness {
	t.Helper()
	reader := chaintest.NewReader(1)
	reader.NoTrace = true
	reader.Call = func(common.Address, []byte) ([]byte, error) { return nil, nil }

	exec := strategy.NewExecutor(strategy.ExecutorConfig{Timeout: time.Second, RetryDelay: time.Millisecond},
		resilience.NewBreakers(resilience.DefaultBreakerConfig(), nil),
		resilience.NewRequestPool(resilience.DefaultPoolConfig(), nil), nil, nil)
	loader := abiloader.New(storage.NewMemoryStore(), exec, abiloader.Strategies{Default: []abiloader.Strategy{abis}},
		abiloader.Config{NotFoundTTL: time.Hour, BatchWait: time.Millisecond}, nil)

	registry := chain.NewRegistry()
	registry.Add(chain.Network{ChainID: 1, NativeSymbol: "ETH", NativeName: "Ether"}, reader)

	return &harness{
		reader:  reader,
		decoder: New(registry, registry, loader, metas, nil, cfg, nil, nil),
	}
}

var txHash = common.HexToHash("0x01")

// addTx registers a mined transaction, its receipt and block.
func (h *harness) addTx(to *common.Address, value *big.Int, data []byte, logs ...*types.Log) {
	tx := types.NewTx(&types.LegacyTx{Nonce: 7, To: to, Value: value, Gas: 100000, GasPrice: big.NewInt(2e9), Data: data})
	h.reader.Txs[txHash] = &chain.Transaction{Tx: tx, From: sender, BlockNumber: 100}
	for i, l := range logs {
		l.Index = uint(i)
	}
	h.reader.Receipts[txHash] = &types.Receipt{
		Status:            types.ReceiptStatusSuccessful,
		GasUsed:           50000,
		EffectiveGasPrice: big.NewInt(1e9),
		BlockNumber:       big.NewInt(100),
		Logs:              logs,
	}
	h.reader.Times[100] = 1700000000
}

func transferLog(t *testing.T, from, to common.Address, amount int64) *types.Log {
	ev := mustABI(t, tokenABI).Events["Transfer"]
	return &types.Log{
		Address: tokenAddr,
		Topics:  []common.Hash{ev.ID, common.BytesToHash(from.Bytes()), common.BytesToHash(to.Bytes())},
		Data:    common.LeftPadBytes(big.NewInt(amount).Bytes(), 32),
	}
}
