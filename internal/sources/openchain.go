package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"txdecoder/internal/abiloader"
	"txdecoder/internal/model"
	"txdecoder/internal/strategy"
)

const DefaultOpenChainURL = "https://api.openchain.xyz"

type openChainResponse struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error"`
	Result struct {
		Function map[string][]openChainSignature `json:"function"`
		Event    map[string][]openChainSignature `json:"event"`
	} `json:"result"`
}

type openChainSignature struct {
	Name     string `json:"name"`
	Filtered bool   `json:"filtered"`
}

// OpenChain looks selectors and topics up in the OpenChain signature database.
type OpenChain struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewOpenChain(baseURL string, client *http.Client, logger *zap.Logger) *OpenChain {
	if baseURL == "" {
		baseURL = DefaultOpenChainURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenChain{baseURL: strings.TrimRight(baseURL, "/"), client: newHTTPClient(client), logger: logger}
}

func (s *OpenChain) ID() string          { return "openchain" }
func (s *OpenChain) Kind() strategy.Kind { return strategy.KindFragment }

func (s *OpenChain) Resolve(ctx context.Context, req abiloader.Request) ([]model.ContractABI, error) {
	hash, event := req.Signature, false
	if hash == "" {
		hash, event = req.Event, true
	}
	if hash == "" {
		return nil, strategy.ErrNotFound
	}

	q := url.Values{}
	if event {
		q.Set("event", hash)
	} else {
		q.Set("function", hash)
	}
	q.Set("filter", "true")

	var resp openChainResponse
	if err := getJSON(ctx, s.client, s.logger, s.baseURL+"/signature-database/v1/lookup?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, fmt.Errorf("openchain: %s", resp.Error)
	}

	matches := resp.Result.Function[hash]
	if event {
		matches = resp.Result.Event[hash]
	}
	var out []model.ContractABI
	for _, m := range matches {
		if m.Filtered || !matchesHash(m.Name, hash, event) {
			continue
		}
		raw, err := FragmentABI(m.Name, event)
		if err != nil {
			s.logger.Debug("skipping unparsable signature", zap.String("signature", m.Name), zap.Error(err))
			continue
		}
		out = append(out, model.ContractABI{ABI: raw})
	}
	if len(out) == 0 {
		return nil, strategy.ErrNotFound
	}
	return out, nil
}
