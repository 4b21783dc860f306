package sources

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"go.uber.org/zap"

	"txdecoder/internal/abiloader"
	"txdecoder/internal/model"
	"txdecoder/internal/strategy"
)

const DefaultFourByteURL = "https://www.4byte.directory"

type fourByteResponse struct {
	Results []struct {
		ID            int64  `json:"id"`
		TextSignature string `json:"text_signature"`
	} `json:"results"`
}

// FourByte looks selectors and topics up on 4byte.directory. The oldest
// registration comes first since later ones are usually collisions.
type FourByte struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewFourByte(baseURL string, client *http.Client, logger *zap.Logger) *FourByte {
	if baseURL == "" {
		baseURL = DefaultFourByteURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FourByte{baseURL: strings.TrimRight(baseURL, "/"), client: newHTTPClient(client), logger: logger}
}

func (s *FourByte) ID() string          { return "4byte" }
func (s *FourByte) Kind() strategy.Kind { return strategy.KindFragment }

func (s *FourByte) Resolve(ctx context.Context, req abiloader.Request) ([]model.ContractABI, error) {
	hash, event, path := req.Signature, false, "/api/v1/signatures/"
	if hash == "" {
		hash, event, path = req.Event, true, "/api/v1/event-signatures/"
	}
	if hash == "" {
		return nil, strategy.ErrNotFound
	}

	q := url.Values{}
	q.Set("hex_signature", hash)
	var resp fourByteResponse
	if err := getJSON(ctx, s.client, s.logger, s.baseURL+path+"?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	results := resp.Results
	sort.SliceStable(results, func(i, j int) bool { return results[i].ID < results[j].ID })

	var out []model.ContractABI
	for _, r := range results {
		if !matchesHash(r.TextSignature, hash, event) {
			continue
		}
		raw, err := FragmentABI(r.TextSignature, event)
		if err != nil {
			s.logger.Debug("skipping unparsable signature", zap.String("signature", r.TextSignature), zap.Error(err))
			continue
		}
		out = append(out, model.ContractABI{ABI: raw})
	}
	if len(out) == 0 {
		return nil, strategy.ErrNotFound
	}
	return out, nil
}
