package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"txdecoder/internal/abiloader"
	"txdecoder/internal/model"
	"txdecoder/internal/strategy"
)

// DefaultEtherscanURL is the multichain v2 endpoint.
const DefaultEtherscanURL = "https://api.etherscan.io/v2/api"

type explorerResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  string `json:"result"`
}

// Explorer fetches verified contract ABIs from an Etherscan-compatible API.
type Explorer struct {
	id       string
	urls     map[uint64]string
	fallback string
	apiKey   string
	chainArg bool
	client   *http.Client
	logger   *zap.Logger
}

// NewEtherscan serves every chain through the v2 multichain endpoint.
func NewEtherscan(baseURL, apiKey string, client *http.Client, logger *zap.Logger) *Explorer {
	if baseURL == "" {
		baseURL = DefaultEtherscanURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Explorer{
		id:       "etherscan",
		fallback: baseURL,
		apiKey:   apiKey,
		chainArg: true,
		client:   newHTTPClient(client),
		logger:   logger,
	}
}

// NewBlockscout serves only the chains it has an instance url for.
func NewBlockscout(urls map[uint64]string, client *http.Client, logger *zap.Logger) *Explorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Explorer{
		id:     "blockscout",
		urls:   urls,
		client: newHTTPClient(client),
		logger: logger,
	}
}

func (e *Explorer) ID() string          { return e.id }
func (e *Explorer) Kind() strategy.Kind { return strategy.KindAddress }

func (e *Explorer) endpoint(chainID uint64) (string, bool) {
	if u, ok := e.urls[chainID]; ok {
		return u, true
	}
	return e.fallback, e.fallback != ""
}

func (e *Explorer) Resolve(ctx context.Context, req abiloader.Request) ([]model.ContractABI, error) {
	base, ok := e.endpoint(req.ChainID)
	if !ok || req.Address == "" {
		return nil, strategy.ErrNotFound
	}

	q := url.Values{}
	if e.chainArg {
		q.Set("chainid", strconv.FormatUint(req.ChainID, 10))
	}
	q.Set("module", "contract")
	q.Set("action", "getabi")
	q.Set("address", req.Address)
	if e.apiKey != "" {
		q.Set("apikey", e.apiKey)
	}

	var resp explorerResponse
	if err := getJSON(ctx, e.client, e.logger, base+"?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	if resp.Status != "1" {
		if explorerNotFound(resp) {
			return nil, strategy.ErrNotFound
		}
		return nil, fmt.Errorf("%s: %s: %s", e.id, resp.Message, resp.Result)
	}
	if _, err := abiloader.ParseABI(resp.Result); err != nil {
		return nil, strategy.Permanent(fmt.Errorf("%s: invalid abi for %s: %w", e.id, req.Address, err))
	}
	return []model.ContractABI{{ABI: resp.Result}}, nil
}

func explorerNotFound(resp explorerResponse) bool {
	text := strings.ToLower(resp.Result + " " + resp.Message)
	for _, marker := range []string{"not verified", "no data found", "contract not found", "not a contract"} {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}
