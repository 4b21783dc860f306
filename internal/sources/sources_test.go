package sources

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jarcoal/httpmock"

	"txdecoder/internal/abiloader"
	"txdecoder/internal/chain/chaintest"
	"txdecoder/internal/strategy"
)

const (
	token          = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
	transferSel    = "0xa9059cbb"
	transferTopic  = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"
	transferABI    = `[{"type":"function","name":"transfer","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}]`
	etherscanOK    = `{"status":"1","message":"OK","result":"[{\"type\":\"function\",\"name\":\"transfer\",\"inputs\":[{\"name\":\"to\",\"type\":\"address\"},{\"name\":\"amount\",\"type\":\"uint256\"}],\"outputs\":[]}]"}`
	etherscanNoABI = `{"status":"0","message":"NOTOK","result":"Contract source code not verified"}`
	etherscanLimit = `{"status":"0","message":"NOTOK","result":"Max rate limit reached"}`
)

func mockClient(t *testing.T) *http.Client {
	t.Helper()
	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	t.Cleanup(httpmock.DeactivateAndReset)
	return client
}

func TestEtherscanResolve(t *testing.T) {
	client := mockClient(t)
	httpmock.RegisterResponderWithQuery("GET", DefaultEtherscanURL,
		"chainid=1&module=contract&action=getabi&address="+token+"&apikey=key",
		httpmock.NewStringResponder(200, etherscanOK))

	s := NewEtherscan("", "key", client, nil)
	abis, err := s.Resolve(context.Background(), abiloader.NewRequest(1, token, transferSel, ""))
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if len(abis) != 1 || !abiloader.HasFragment(abis[0].ABI, transferSel, "") {
		t.Fatalf("unexpected abis %+v", abis)
	}
}

func TestEtherscanOutcomes(t *testing.T) {
	cases := []struct {
		name     string
		status   int
		body     string
		notFound bool
	}{
		{"not verified", 200, etherscanNoABI, true},
		{"rate limited", 200, etherscanLimit, false},
		{"server error", 502, "bad gateway", false},
		{"missing", 404, "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := mockClient(t)
			httpmock.RegisterResponder("GET", DefaultEtherscanURL, httpmock.NewStringResponder(tc.status, tc.body))

			_, err := NewEtherscan("", "", client, nil).Resolve(context.Background(), abiloader.NewRequest(1, token, "", ""))
			if err == nil {
				t.Fatalf("expected error")
			}
			if errors.Is(err, strategy.ErrNotFound) != tc.notFound {
				t.Fatalf("not found = %v, want %v (err %v)", errors.Is(err, strategy.ErrNotFound), tc.notFound, err)
			}
		})
	}
}

func TestClientErrorIsNotRetried(t *testing.T) {
	client := mockClient(t)
	httpmock.RegisterResponder("GET", DefaultEtherscanURL, httpmock.NewStringResponder(400, "bad address"))

	s := NewEtherscan("", "", client, nil)
	err := strategy.WithRetry(context.Background(), 3, time.Millisecond, func(ctx context.Context) error {
		_, err := s.Resolve(ctx, abiloader.NewRequest(1, token, "", ""))
		return err
	})
	var serr *StatusError
	if !errors.As(err, &serr) || serr.Status != 400 {
		t.Fatalf("expected 400 StatusError, got %v", err)
	}
	if n := httpmock.GetTotalCallCount(); n != 1 {
		t.Fatalf("expected 1 request, got %d", n)
	}
}

func TestRateLimitIsRetried(t *testing.T) {
	client := mockClient(t)
	httpmock.RegisterResponder("GET", DefaultEtherscanURL, httpmock.NewStringResponder(429, "slow down"))

	s := NewEtherscan("", "", client, nil)
	err := strategy.WithRetry(context.Background(), 2, time.Millisecond, func(ctx context.Context) error {
		_, err := s.Resolve(ctx, abiloader.NewRequest(1, token, "", ""))
		return err
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if n := httpmock.GetTotalCallCount(); n != 3 {
		t.Fatalf("expected 3 requests, got %d", n)
	}
}

func TestBlockscoutUnknownChain(t *testing.T) {
	client := mockClient(t)
	s := NewBlockscout(map[uint64]string{100: "https://gnosis.blockscout.com/api"}, client, nil)

	if _, err := s.Resolve(context.Background(), abiloader.NewRequest(1, token, "", "")); !errors.Is(err, strategy.ErrNotFound) {
		t.Fatalf("expected not found for unconfigured chain, got %v", err)
	}
	if httpmock.GetTotalCallCount() != 0 {
		t.Fatalf("no request expected")
	}

	httpmock.RegisterResponder("GET", "https://gnosis.blockscout.com/api", httpmock.NewStringResponder(200, etherscanOK))
	abis, err := s.Resolve(context.Background(), abiloader.NewRequest(100, token, "", ""))
	if err != nil || len(abis) != 1 {
		t.Fatalf("resolve: %+v %v", abis, err)
	}
	info := httpmock.GetCallCountInfo()
	if info["GET https://gnosis.blockscout.com/api"] != 1 {
		t.Fatalf("unexpected calls %v", info)
	}
}

func TestSourcify(t *testing.T) {
	client := mockClient(t)
	httpmock.RegisterResponder("GET", DefaultSourcifyURL+"/v2/contract/1/"+token,
		httpmock.NewStringResponder(200, `{"abi":`+transferABI+`,"match":"exact_match"}`))
	httpmock.RegisterResponder("GET", DefaultSourcifyURL+"/v2/contract/10/"+token,
		httpmock.NewStringResponder(404, `{"customCode":"not_found"}`))

	s := NewSourcify("", client, nil)
	abis, err := s.Resolve(context.Background(), abiloader.NewRequest(1, token, "", ""))
	if err != nil || len(abis) != 1 || !abiloader.HasFragment(abis[0].ABI, transferSel, "") {
		t.Fatalf("resolve: %+v %v", abis, err)
	}
	if _, err := s.Resolve(context.Background(), abiloader.NewRequest(10, token, "", "")); !errors.Is(err, strategy.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOpenChainFunction(t *testing.T) {
	client := mockClient(t)
	httpmock.RegisterResponder("GET", DefaultOpenChainURL+"/signature-database/v1/lookup",
		httpmock.NewStringResponder(200, `{"ok":true,"result":{"event":{},"function":{"0xa9059cbb":[
			{"name":"transfer(address,uint256)","filtered":false},
			{"name":"bogus(uint8)","filtered":false},
			{"name":"spam(address)","filtered":true}]}}}`))

	abis, err := NewOpenChain("", client, nil).Resolve(context.Background(), abiloader.NewRequest(1, "", transferSel, ""))
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if len(abis) != 1 || !abiloader.HasFragment(abis[0].ABI, transferSel, "") {
		t.Fatalf("expected only the matching fragment, got %+v", abis)
	}
}

func TestOpenChainEvent(t *testing.T) {
	client := mockClient(t)
	httpmock.RegisterResponder("GET", DefaultOpenChainURL+"/signature-database/v1/lookup",
		httpmock.NewStringResponder(200, `{"ok":true,"result":{"function":{},"event":{"`+transferTopic+`":[
			{"name":"Transfer(address,address,uint256)","filtered":false}]}}}`))

	abis, err := NewOpenChain("", client, nil).Resolve(context.Background(), abiloader.NewRequest(1, "", "", transferTopic))
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if len(abis) != 1 || !abiloader.HasFragment(abis[0].ABI, "", transferTopic) {
		t.Fatalf("unexpected abis %+v", abis)
	}
}

func TestFourByte(t *testing.T) {
	client := mockClient(t)
	httpmock.RegisterResponder("GET", DefaultFourByteURL+"/api/v1/signatures/",
		httpmock.NewStringResponder(200, `{"count":2,"results":[
			{"id":900,"text_signature":"wrong(bytes)"},
			{"id":145,"text_signature":"transfer(address,uint256)"}]}`))
	httpmock.RegisterResponder("GET", DefaultFourByteURL+"/api/v1/event-signatures/",
		httpmock.NewStringResponder(200, `{"count":0,"results":[]}`))

	s := NewFourByte("", client, nil)
	abis, err := s.Resolve(context.Background(), abiloader.NewRequest(1, "", transferSel, ""))
	if err != nil || len(abis) != 1 {
		t.Fatalf("resolve: %+v %v", abis, err)
	}
	if _, err := s.Resolve(context.Background(), abiloader.NewRequest(1, "", "", transferTopic)); !errors.Is(err, strategy.ErrNotFound) {
		t.Fatalf("expected not found for empty result, got %v", err)
	}
}

func TestFragmentABITuples(t *testing.T) {
	raw, err := FragmentABI("aggregate3((address,bool,bytes)[])", false)
	if err != nil {
		t.Fatalf("fragment: %v", err)
	}
	parsed, err := abiloader.ParseABI(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	m, ok := parsed.Methods["aggregate3"]
	if !ok {
		t.Fatalf("method missing in %s", raw)
	}
	if got := m.Inputs[0].Type.String(); got != "(address,bool,bytes)[]" {
		t.Fatalf("unexpected input type %s", got)
	}
	if common.Bytes2Hex(m.ID) != "82ad56cb" {
		t.Fatalf("unexpected selector %x", m.ID)
	}

	for _, bad := range []string{"", "noparens", "f(uint256", "f((uint256)", "f(uint256)x"} {
		if _, err := FragmentABI(bad, false); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
	if raw, err := FragmentABI("f(uint)", false); err != nil || !strings.Contains(raw, "uint256") {
		t.Fatalf("uint not canonicalized: %s %v", raw, err)
	}
}

func TestIPFS(t *testing.T) {
	multihash := append([]byte{0x12, 0x20}, make([]byte, 32)...)
	code := append([]byte{0x60, 0x80, 0x60, 0x40}, ipfsMarker...)
	code = append(code, multihash...)
	code = append(code, 0x64, 0x73, 0x6f, 0x6c, 0x63, 0x43, 0x00, 0x08, 0x13, 0x00, 0x33)

	cid, ok := MetadataCID(code)
	if !ok || !strings.HasPrefix(cid, "Qm") {
		t.Fatalf("unexpected cid %q", cid)
	}

	reader := chaintest.NewReader(1)
	reader.Code[common.HexToAddress(token)] = code
	client := mockClient(t)
	httpmock.RegisterResponder("GET", DefaultIPFSGateway+"/"+cid,
		httpmock.NewStringResponder(200, `{"compiler":{"version":"0.8.19"},"output":{"abi":`+transferABI+`}}`))

	s := NewIPFS(chaintest.Provider{1: reader}, "", client, nil)
	abis, err := s.Resolve(context.Background(), abiloader.NewRequest(1, token, "", ""))
	if err != nil || len(abis) != 1 || !abiloader.HasFragment(abis[0].ABI, transferSel, "") {
		t.Fatalf("resolve: %+v %v", abis, err)
	}

	// No code means nothing to look up.
	if _, err := s.Resolve(context.Background(), abiloader.NewRequest(1, "0x00000000000000000000000000000000000000ff", "", "")); !errors.Is(err, strategy.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
