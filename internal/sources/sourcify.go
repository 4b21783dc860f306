package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"txdecoder/internal/abiloader"
	"txdecoder/internal/model"
	"txdecoder/internal/strategy"
)

const DefaultSourcifyURL = "https://sourcify.dev/server"

// Sourcify reads ABIs of source-verified contracts from the v2 API.
type Sourcify struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewSourcify(baseURL string, client *http.Client, logger *zap.Logger) *Sourcify {
	if baseURL == "" {
		baseURL = DefaultSourcifyURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sourcify{baseURL: strings.TrimRight(baseURL, "/"), client: newHTTPClient(client), logger: logger}
}

func (s *Sourcify) ID() string          { return "sourcify" }
func (s *Sourcify) Kind() strategy.Kind { return strategy.KindAddress }

func (s *Sourcify) Resolve(ctx context.Context, req abiloader.Request) ([]model.ContractABI, error) {
	if req.Address == "" {
		return nil, strategy.ErrNotFound
	}
	u := fmt.Sprintf("%s/v2/contract/%d/%s?fields=abi", s.baseURL, req.ChainID, req.Address)

	var resp struct {
		ABI json.RawMessage `json:"abi"`
	}
	if err := getJSON(ctx, s.client, s.logger, u, nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.ABI) == 0 || string(resp.ABI) == "null" || string(resp.ABI) == "[]" {
		return nil, strategy.ErrNotFound
	}
	return []model.ContractABI{{ABI: string(resp.ABI)}}, nil
}
