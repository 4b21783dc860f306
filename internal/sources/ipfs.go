package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/btcsuite/btcutil/base58"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"txdecoder/internal/abiloader"
	"txdecoder/internal/chain"
	"txdecoder/internal/model"
	"txdecoder/internal/strategy"
)

const DefaultIPFSGateway = "https://ipfs.io/ipfs"

// CBOR prefix solc writes before the 34 byte metadata multihash: {"ipfs": bytes(34)}.
var ipfsMarker = []byte{0xa2, 0x64, 0x69, 0x70, 0x66, 0x73, 0x58, 0x22}

type metadataDocument struct {
	Output struct {
		ABI json.RawMessage `json:"abi"`
	} `json:"output"`
}

// IPFS reads the compiler metadata hash from deployed bytecode and fetches
// the ABI from the metadata document on an IPFS gateway.
type IPFS struct {
	provider chain.Provider
	gateway  string
	client   *http.Client
	logger   *zap.Logger
}

func NewIPFS(provider chain.Provider, gateway string, client *http.Client, logger *zap.Logger) *IPFS {
	if gateway == "" {
		gateway = DefaultIPFSGateway
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IPFS{provider: provider, gateway: strings.TrimRight(gateway, "/"), client: newHTTPClient(client), logger: logger}
}

func (s *IPFS) ID() string          { return "ipfs" }
func (s *IPFS) Kind() strategy.Kind { return strategy.KindAddress }

// MetadataCID extracts the base58 CIDv0 from runtime bytecode.
func MetadataCID(code []byte) (string, bool) {
	i := bytes.LastIndex(code, ipfsMarker)
	if i < 0 || len(code) < i+len(ipfsMarker)+34 {
		return "", false
	}
	start := i + len(ipfsMarker)
	return base58.Encode(code[start : start+34]), true
}

func (s *IPFS) Resolve(ctx context.Context, req abiloader.Request) ([]model.ContractABI, error) {
	if req.Address == "" {
		return nil, strategy.ErrNotFound
	}
	reader, err := s.provider.Client(req.ChainID)
	if err != nil {
		return nil, err
	}
	code, err := reader.CodeAt(ctx, common.HexToAddress(req.Address))
	if err != nil {
		return nil, err
	}
	cid, ok := MetadataCID(code)
	if !ok {
		return nil, strategy.ErrNotFound
	}

	var doc metadataDocument
	if err := getJSON(ctx, s.client, s.logger, s.gateway+"/"+cid, nil, &doc); err != nil {
		return nil, err
	}
	if len(doc.Output.ABI) == 0 || string(doc.Output.ABI) == "null" {
		return nil, strategy.ErrNotFound
	}
	return []model.ContractABI{{ABI: string(doc.Output.ABI)}}, nil
}
