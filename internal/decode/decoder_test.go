package decode

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"txdecoder/internal/chain"
	"txdecoder/internal/model"
)

const multiSendJSON = `[{"type":"function","name":"multiSend","stateMutability":"payable","inputs":[{"name":"transactions","type":"bytes"}],"outputs":[]}]`

const aggregate3JSON = `[{"type":"function","name":"aggregate3","stateMutability":"payable","inputs":[{"name":"calls","type":"tuple[]","components":[{"name":"target","type":"address"},{"name":"allowFailure","type":"bool"},{"name":"callData","type":"bytes"}]}],"outputs":[]}]`

type call3 struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

func packMultiSend(txs ...MultiSendTx) []byte {
	var out []byte
	for _, tx := range txs {
		out = append(out, tx.Operation)
		out = append(out, tx.To.Bytes()...)
		out = append(out, common.LeftPadBytes(tx.Value.Bytes(), 32)...)
		out = append(out, common.LeftPadBytes(big.NewInt(int64(len(tx.Data))).Bytes(), 32)...)
		out = append(out, tx.Data...)
	}
	return out
}

func TestDecodeCalldataDeposit(t *testing.T) {
	h := newHarness(t, fixtureABIs{wethAddr: wethABI}, defaultMetas(), Config{})

	res, err := h.decoder.DecodeCalldata(context.Background(), 1, wethAddr, pack(t, wethABI, "deposit"))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if res.Name != "deposit" || res.Signature != "deposit()" || res.Type != "function" || len(res.Params) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	raw, _ := json.Marshal(res)
	if !strings.Contains(string(raw), `"params":[]`) {
		t.Fatalf("params should encode as an empty list: %s", raw)
	}
}

func TestDecodeCalldataErrors(t *testing.T) {
	h := newHarness(t, fixtureABIs{wethAddr: wethABI}, nil, Config{})
	ctx := context.Background()

	if _, err := h.decoder.DecodeCalldata(ctx, 1, wethAddr, nil); !errors.Is(err, ErrEmptyCalldata) {
		t.Fatalf("expected empty calldata error, got %v", err)
	}
	var unknownNet *chain.UnknownNetworkError
	if _, err := h.decoder.DecodeCalldata(ctx, 99, wethAddr, pack(t, wethABI, "deposit")); !errors.As(err, &unknownNet) {
		t.Fatalf("expected unknown network, got %v", err)
	}
	var notFound *MethodNotFoundError
	data := pack(t, tokenABI, "transfer", receiver, big.NewInt(1))
	if _, err := h.decoder.DecodeCalldata(ctx, 1, wethAddr, data); !errors.As(err, &notFound) {
		t.Fatalf("expected method not found, got %v", err)
	}
}

func TestDecodeMultiSend(t *testing.T) {
	h := newHarness(t, fixtureABIs{tokenAddr: tokenABI, wethAddr: wethABI}, nil, Config{})
	blob := packMultiSend(
		MultiSendTx{Operation: 0, To: tokenAddr, Value: big.NewInt(0), Data: pack(t, tokenABI, "transfer", receiver, big.NewInt(42))},
		MultiSendTx{Operation: 0, To: wethAddr, Value: big.NewInt(1000), Data: pack(t, wethABI, "deposit")},
	)
	data := pack(t, multiSendJSON, "multiSend", blob)

	res, err := h.decoder.DecodeCalldata(context.Background(), 1, safeAddr, data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	txs := res.Find("transactions")
	if txs == nil || txs.ValueDecoded == nil || len(txs.ValueDecoded.Calls) != 2 {
		t.Fatalf("expected two decoded transactions, got %+v", txs)
	}

	first := findChild(&txs.ValueDecoded.Calls[0], "data")
	if first.ValueDecoded == nil || first.ValueDecoded.Call.Name != "transfer" {
		t.Fatalf("first inner call not decoded: %+v", first)
	}
	if amount := first.ValueDecoded.Call.Find("amount"); amount == nil || amount.Value != "42" {
		t.Fatalf("unexpected amount %+v", amount)
	}
	second := findChild(&txs.ValueDecoded.Calls[1], "data")
	if second.ValueDecoded == nil || second.ValueDecoded.Call.Signature != "deposit()" {
		t.Fatalf("second inner call not decoded: %+v", second)
	}
	if v := findChild(&txs.ValueDecoded.Calls[1], "value"); v.Value != "1000" {
		t.Fatalf("unexpected value %+v", v)
	}
}

func TestParseMultiSendTruncated(t *testing.T) {
	blob := packMultiSend(MultiSendTx{To: tokenAddr, Value: big.NewInt(0), Data: []byte{1, 2, 3, 4}})
	if _, err := ParseMultiSend(blob[:len(blob)-1]); err == nil {
		t.Fatalf("expected error for short data")
	}
	if _, err := ParseMultiSend(blob[:50]); err == nil {
		t.Fatalf("expected error for short header")
	}
	txs, err := ParseMultiSend(nil)
	if err != nil || len(txs) != 0 {
		t.Fatalf("empty blob: %v %v", txs, err)
	}
}

func TestDecodeMulticall3(t *testing.T) {
	calls := []call3{
		{Target: tokenAddr, AllowFailure: false, CallData: pack(t, tokenABI, "transfer", receiver, big.NewInt(5))},
		{Target: unknown, AllowFailure: true, CallData: []byte{0xde, 0xad, 0xbe, 0xef}},
	}
	data := pack(t, aggregate3JSON, "aggregate3", calls)

	h := newHarness(t, fixtureABIs{tokenAddr: tokenABI}, nil, Config{})
	res, err := h.decoder.DecodeCalldata(context.Background(), 1, mcallAddr, data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	list := res.Find("calls")
	if list == nil || len(list.Components) != 2 {
		t.Fatalf("unexpected calls %+v", list)
	}
	inner := findChild(&list.Components[0], "callData")
	if inner.ValueDecoded == nil || inner.ValueDecoded.Call.Name != "transfer" {
		t.Fatalf("first call not decoded: %+v", inner)
	}
	if undecoded := findChild(&list.Components[1], "callData"); undecoded.ValueDecoded != nil {
		t.Fatalf("unknown call should stay undecoded")
	}
}

func TestDecodeRespectsMaxDepth(t *testing.T) {
	calls := []call3{{Target: tokenAddr, CallData: pack(t, tokenABI, "transfer", receiver, big.NewInt(5))}}
	data := pack(t, aggregate3JSON, "aggregate3", calls)

	h := newHarness(t, fixtureABIs{tokenAddr: tokenABI}, nil, Config{})
	// New treats zero as unset, so pin the top level as the only decodable depth here.
	h.decoder.cfg.MaxDepth = 0
	res, err := h.decoder.DecodeCalldata(context.Background(), 1, mcallAddr, data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if inner := findChild(&res.Find("calls").Components[0], "callData"); inner.ValueDecoded != nil {
		t.Fatalf("nested call beyond max depth should not be decoded")
	}
}

func TestDecodeTransactionERC20Transfer(t *testing.T) {
	h := newHarness(t, fixtureABIs{tokenAddr: tokenABI}, defaultMetas(), Config{})
	data := pack(t, tokenABI, "transfer", receiver, big.NewInt(1000000))
	h.addTx(&tokenAddr, big.NewInt(0), data, transferLog(t, sender, receiver, 1000000))

	tx, err := h.decoder.DecodeTransaction(context.Background(), 1, txHash)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if tx.TxType != model.TxContractInteraction || tx.MethodCall == nil || tx.MethodCall.Name != "transfer" {
		t.Fatalf("unexpected method call %+v", tx.MethodCall)
	}
	if len(tx.Interactions) != 1 || tx.Interactions[0].Event.EventName != "Transfer" {
		t.Fatalf("unexpected interactions %+v", tx.Interactions)
	}
	if len(tx.AssetsSent) != 1 {
		t.Fatalf("expected one sent asset, got %+v", tx.AssetsSent)
	}
	a := tx.AssetsSent[0]
	if a.Type != model.AssetERC20 || a.Amount != "0.000000000001" || a.Symbol != "TKN" {
		t.Fatalf("unexpected asset %+v", a)
	}
	if len(tx.AssetsReceived) != 0 {
		t.Fatalf("sender received nothing, got %+v", tx.AssetsReceived)
	}
	if tx.ToName != "Token" || tx.ToType != model.ContractERC20 {
		t.Fatalf("target meta not applied: %s %s", tx.ToName, tx.ToType)
	}
	if tx.Fee.String() != "50000000000000" || tx.Timestamp != 1700000000 || tx.Nonce != 7 {
		t.Fatalf("unexpected base fields fee=%s ts=%d nonce=%d", tx.Fee.String(), tx.Timestamp, tx.Nonce)
	}
	want := []string{strings.ToLower(sender.Hex()), strings.ToLower(tokenAddr.Hex()), strings.ToLower(receiver.Hex())}
	if strings.Join(tx.Addresses, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected addresses %v", tx.Addresses)
	}
	if len(tx.Errors) != 0 {
		t.Fatalf("unexpected errors %+v", tx.Errors)
	}
}

func TestDecodeTransactionIsIdempotent(t *testing.T) {
	h := newHarness(t, fixtureABIs{tokenAddr: tokenABI}, defaultMetas(), Config{})
	data := pack(t, tokenABI, "transfer", receiver, big.NewInt(1000000))
	h.addTx(&tokenAddr, big.NewInt(0), data, transferLog(t, sender, receiver, 1000000), transferLog(t, receiver, sender, 3))

	first, err := h.decoder.DecodeTransaction(context.Background(), 1, txHash)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	second, err := h.decoder.DecodeTransaction(context.Background(), 1, txHash)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Fatalf("decodes differ:\n%s\n%s", a, b)
	}
	if !strings.Contains(string(a), `"value":{"type":"bigint","value":"0"}`) {
		t.Fatalf("bigint encoding missing: %s", a)
	}
}

func TestNativeTransferShortcut(t *testing.T) {
	h := newHarness(t, fixtureABIs{}, nil, Config{})
	oneEther := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	h.addTx(&receiver, oneEther, nil)

	tx, err := h.decoder.DecodeTransaction(context.Background(), 1, txHash)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if tx.TxType != model.TxNativeTransfer || len(tx.Interactions) != 0 || tx.MethodCall != nil {
		t.Fatalf("unexpected native transfer %+v", tx)
	}
	if len(tx.AssetsSent) != 1 || tx.AssetsSent[0].Type != model.AssetNative || tx.AssetsSent[0].Amount != "1" || tx.AssetsSent[0].Symbol != "ETH" {
		t.Fatalf("unexpected assets %+v", tx.AssetsSent)
	}
	if h.reader.Calls("CallContract") != 0 {
		t.Fatalf("native transfer must not probe contracts")
	}
}

func TestGracefulDegradation(t *testing.T) {
	h := newHarness(t, fixtureABIs{tokenAddr: tokenABI}, defaultMetas(), Config{})
	data := pack(t, tokenABI, "transfer", receiver, big.NewInt(1))
	stray := &types.Log{Address: unknown, Topics: []common.Hash{common.HexToHash("0x1234")}}
	h.addTx(&tokenAddr, big.NewInt(0), data, transferLog(t, sender, receiver, 1), stray)

	tx, err := h.decoder.DecodeTransaction(context.Background(), 1, txHash)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(tx.Interactions) != 1 {
		t.Fatalf("expected the decodable log to survive, got %+v", tx.Interactions)
	}
	if len(tx.Errors) != 1 || tx.Errors[0].Stage != model.StageLog || tx.Errors[0].Index != 1 || tx.Errors[0].Address != strings.ToLower(unknown.Hex()) {
		t.Fatalf("unexpected errors %+v", tx.Errors)
	}
}

func TestDecodeTransactionFatalErrors(t *testing.T) {
	h := newHarness(t, fixtureABIs{}, nil, Config{})
	h.addTx(nil, big.NewInt(0), []byte{0x60, 0x80})

	var creation *ContractCreationError
	if _, err := h.decoder.DecodeTransaction(context.Background(), 1, txHash); !errors.As(err, &creation) {
		t.Fatalf("expected contract creation error, got %v", err)
	}

	delete(h.reader.Receipts, txHash)
	_, err := h.decoder.DecodeTransaction(context.Background(), 1, txHash)
	var fetch *FetchError
	if !errors.As(err, &fetch) || fetch.Kind != FetchReceipt || !errors.Is(err, ethereum.NotFound) {
		t.Fatalf("expected receipt fetch error, got %v", err)
	}
}

func TestDecodeTransactionWithTrace(t *testing.T) {
	h := newHarness(t, fixtureABIs{tokenAddr: tokenABI, wethAddr: wethABI}, defaultMetas(), Config{})
	h.reader.NoTrace = false

	data := pack(t, tokenABI, "transfer", receiver, big.NewInt(1))
	h.addTx(&tokenAddr, big.NewInt(0), data)

	revertMsg, _ := stringArgs.Pack("nope")
	errorOut := append(common.FromHex("0x08c379a0"), revertMsg...)
	custom := mustABI(t, tokenABI).Errors["InsufficientBalance"]
	customArgs, _ := custom.Inputs.Pack(big.NewInt(1), big.NewInt(2))
	customOut := append(append([]byte{}, custom.ID[:4]...), customArgs...)

	token, recv, weth, unk := strings.ToLower(tokenAddr.Hex()), strings.ToLower(receiver.Hex()), strings.ToLower(wethAddr.Hex()), strings.ToLower(unknown.Hex())
	h.reader.Traces[txHash] = []model.TraceEntry{
		{Type: model.TraceCall, CallType: "call", From: strings.ToLower(sender.Hex()), To: token, Value: big.NewInt(0), Input: data, TraceAddress: []int{}},
		{Type: model.TraceCall, CallType: "call", From: token, To: recv, Value: big.NewInt(5), TraceAddress: []int{0}},
		{Type: model.TraceCall, CallType: "call", From: token, To: weth, Value: big.NewInt(3), Input: pack(t, wethABI, "deposit"), TraceAddress: []int{1}},
		{Type: model.TraceCall, CallType: "call", From: token, To: unk, Value: big.NewInt(9), Error: "execution reverted", Output: errorOut, TraceAddress: []int{2}},
		{Type: model.TraceCall, CallType: "call", From: unk, To: recv, Value: big.NewInt(4), TraceAddress: []int{2, 0}},
		{Type: model.TraceCall, CallType: "call", From: token, To: token, Error: "execution reverted", Output: customOut, TraceAddress: []int{3}},
		{Type: model.TraceCall, CallType: "call", From: token, To: unk, Error: "execution reverted", Output: errorOut, TraceAddress: []int{4}},
	}

	tx, err := h.decoder.DecodeTransaction(context.Background(), 1, txHash)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(tx.TraceCalls) != 1 || tx.TraceCalls[0].Name != "deposit" {
		t.Fatalf("unexpected trace calls %+v", tx.TraceCalls)
	}

	var natives []model.Interaction
	for _, it := range tx.Interactions {
		if it.IsNative() {
			natives = append(natives, it)
		}
	}
	if len(natives) != 2 || natives[0].Event.Params["value"] != "5" || natives[1].Event.Params["value"] != "3" {
		t.Fatalf("unexpected native interactions %+v", natives)
	}

	if len(tx.RevertReasons) != 2 {
		t.Fatalf("expected deduplicated revert reasons, got %+v", tx.RevertReasons)
	}
	if r := tx.RevertReasons[0]; r.Kind != RevertError || r.Reason != "nope" {
		t.Fatalf("unexpected first revert %+v", r)
	}
	if r := tx.RevertReasons[1]; r.Kind != RevertCustom || r.Decoded == nil || r.Decoded.Name != "InsufficientBalance" {
		t.Fatalf("unexpected custom revert %+v", r)
	}
}

func TestPanicReason(t *testing.T) {
	if got := PanicReason(big.NewInt(0x11)); got != "arithmetic underflow or overflow" {
		t.Fatalf("unexpected reason %q", got)
	}
	if got := PanicReason(big.NewInt(0x99)); !strings.HasPrefix(got, "unknown panic code") {
		t.Fatalf("unexpected reason %q", got)
	}
}
