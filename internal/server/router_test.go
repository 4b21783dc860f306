package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"txdecoder/internal/abiloader"
	"txdecoder/internal/chain"
	"txdecoder/internal/decode"
	"txdecoder/internal/model"
	"txdecoder/internal/strategy"
)

type fakeDecoder struct {
	tx    *model.DecodedTransaction
	call  *model.DecodeResult
	err   error
	gotTo common.Address
	gotID uint64
}

func (f *fakeDecoder) DecodeTransaction(_ context.Context, chainID uint64, hash common.Hash) (*model.DecodedTransaction, error) {
	f.gotID = chainID
	return f.tx, f.err
}

func (f *fakeDecoder) DecodeCalldata(_ context.Context, chainID uint64, to common.Address, _ []byte) (*model.DecodeResult, error) {
	f.gotID, f.gotTo = chainID, to
	return f.call, f.err
}

func post(t *testing.T, r http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestDecodeCalldataRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	dec := &fakeDecoder{call: &model.DecodeResult{Name: "deposit", Signature: "deposit()", Type: model.DecodeTypeFunction, Params: []model.TreeNode{}}}
	r := NewRouter(dec, nil, nil)

	to := "0x00000000000000000000000000000000000000bb"
	rec := post(t, r, "/v1/decode/calldata", map[string]interface{}{"chainId": 10, "to": to, "data": "0xd0e30db0"})
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	var got model.DecodeResult
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got.Name != "deposit" || dec.gotID != 10 || dec.gotTo != common.HexToAddress(to) {
		t.Fatalf("unexpected result %+v chain=%d to=%s", got, dec.gotID, dec.gotTo.Hex())
	}
	if rec.Header().Get(requestIDHeader) == "" {
		t.Fatalf("missing request id header")
	}
}

func TestDecodeTransactionRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	dec := &fakeDecoder{tx: &model.DecodedTransaction{TxHash: "0xabc", TxType: model.TxNativeTransfer}}
	r := NewRouter(dec, nil, nil)

	hash := common.HexToHash("0x01").Hex()
	rec := post(t, r, "/v1/decode/transaction", map[string]interface{}{"chainId": 1, "hash": hash})
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"txType":"native-transfer"`)) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestDecodeCalldataMissingABI(t *testing.T) {
	gin.SetMode(gin.TestMode)
	dec := &fakeDecoder{err: &abiloader.MissingABIError{ChainID: 1, Address: "0xbb", Signature: "0xd0e30db0"}}
	r := NewRouter(dec, nil, nil)

	rec := post(t, r, "/v1/decode/calldata", map[string]interface{}{"chainId": 1, "to": "0x00000000000000000000000000000000000000bb", "data": "0xd0e30db0"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRequestValidation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewRouter(&fakeDecoder{}, nil, nil)

	cases := []struct {
		path string
		body map[string]interface{}
	}{
		{"/v1/decode/transaction", map[string]interface{}{"chainId": 1, "hash": "0x1234"}},
		{"/v1/decode/transaction", map[string]interface{}{"hash": common.HexToHash("0x01").Hex()}},
		{"/v1/decode/calldata", map[string]interface{}{"chainId": 1, "to": "nope", "data": "0x00"}},
		{"/v1/decode/calldata", map[string]interface{}{"chainId": 1, "to": "0x00000000000000000000000000000000000000bb", "data": "zz"}},
	}
	for _, c := range cases {
		if rec := post(t, r, c.path, c.body); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s %v: expected 400, got %d", c.path, c.body, rec.Code)
		}
	}
}

func TestErrorStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&chain.UnknownNetworkError{ChainID: 5}, http.StatusBadRequest},
		{decode.ErrEmptyCalldata, http.StatusBadRequest},
		{&decode.ContractCreationError{Hash: "0x1", ChainID: 1}, http.StatusUnprocessableEntity},
		{&decode.MethodNotFoundError{Address: "0x1", Signature: "0x12345678"}, http.StatusNotFound},
		{&decode.FetchError{Hash: "0x1", Kind: decode.FetchReceipt, Err: ethereum.NotFound}, http.StatusNotFound},
		{&decode.FetchError{Hash: "0x1", Kind: decode.FetchTrace, Err: fmt.Errorf("connection refused")}, http.StatusBadGateway},
		{&abiloader.MissingABIError{ChainID: 1, Address: "0x1", Signature: "0x12345678"}, http.StatusNotFound},
		{&strategy.NoHealthyStrategyError{Key: "1:0x1"}, http.StatusServiceUnavailable},
		{&abiloader.MissingABIError{ChainID: 1, Err: &strategy.NoHealthyStrategyError{Key: "1:0x1"}}, http.StatusServiceUnavailable},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := statusFor(c.err); got != c.want {
			t.Fatalf("statusFor(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

func TestHealthzAndMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok_metric 1\n")) })
	r := NewRouter(&fakeDecoder{}, metrics, nil)

	for path, want := range map[string]string{"/healthz": `{"ok":true}`, "/metrics": "ok_metric 1\n"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("%s: unexpected response %d %q", path, rec.Code, rec.Body.String())
		}
	}
}
