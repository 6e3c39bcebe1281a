package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/alanyoungcy/copybot/internal/domain"
)

// GammaClient is the REST client for the Polymarket Gamma API, which
// provides market discovery and metadata.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewGammaClient creates a new Gamma API client.
//
// baseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string) *GammaClient {
	return &GammaClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetMarketByCondition returns the market identified by its condition id.
func (g *GammaClient) GetMarketByCondition(ctx context.Context, conditionID string) (APIMarket, error) {
	params := url.Values{}
	params.Set("condition_ids", conditionID)

	body, err := g.doGet(ctx, "/markets?"+params.Encode())
	if err != nil {
		return APIMarket{}, fmt.Errorf("polymarket/gamma: get market %s: %w", conditionID, err)
	}

	var apiMarkets []APIMarket
	if err := json.Unmarshal(body, &apiMarkets); err != nil {
		return APIMarket{}, fmt.Errorf("polymarket/gamma: decode markets: %w", err)
	}
	if len(apiMarkets) == 0 {
		return APIMarket{}, fmt.Errorf("polymarket/gamma: %w: condition=%s", domain.ErrNotFound, conditionID)
	}

	return apiMarkets[0], nil
}

// TokenID returns the CLOB token id for one outcome of a market.
func (g *GammaClient) TokenID(ctx context.Context, conditionID string, outcomeIndex int) (string, error) {
	market, err := g.GetMarketByCondition(ctx, conditionID)
	if err != nil {
		return "", err
	}

	ids, err := market.TokenIDs()
	if err != nil {
		return "", fmt.Errorf("polymarket/gamma: parse token ids for %s: %w", conditionID, err)
	}
	if outcomeIndex < 0 || outcomeIndex >= len(ids) {
		return "", fmt.Errorf("polymarket/gamma: %w: market %s has %d outcomes, index %d",
			domain.ErrNotFound, conditionID, len(ids), outcomeIndex)
	}

	return ids[outcomeIndex], nil
}

// doGet performs an unauthenticated GET and returns the raw response body.
func (g *GammaClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	return body, nil
}
