package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const coinPricePath = "/simple/price?ids=ethereum,solana&vs_currencies=usd"

// CoinFeedOptions parameterise the coin price feed client.
type CoinFeedOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// CoinFeed fetches ETH and SOL reference prices from a CoinGecko-style
// simple price endpoint.
type CoinFeed struct {
	opts    CoinFeedOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewCoinFeed constructs a coin price fetcher.
func NewCoinFeed(opts CoinFeedOptions, logger zerolog.Logger) *CoinFeed {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.coingecko.com/api/v3"
	}

	return &CoinFeed{
		opts:    opts,
		logger:  logger.With().Str("component", "coin_feed").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchCoinPrices retrieves the current ETH and SOL prices in USD. A coin
// absent from the response is left zero; the caller decides whether the
// snapshot is complete enough to persist.
func (c *CoinFeed) FetchCoinPrices(ctx context.Context) (CoinPrices, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+coinPricePath, nil)
	if err != nil {
		return CoinPrices{}, fmt.Errorf("create coin price request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return CoinPrices{}, fmt.Errorf("fetch coin prices: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return CoinPrices{}, fmt.Errorf("coin price feed returned status %d", resp.StatusCode)
	}

	var payload struct {
		Ethereum struct {
			USD decimal.Decimal `json:"usd"`
		} `json:"ethereum"`
		Solana struct {
			USD decimal.Decimal `json:"usd"`
		} `json:"solana"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return CoinPrices{}, fmt.Errorf("decode coin price response: %w", err)
	}

	prices := CoinPrices{ETH: payload.Ethereum.USD, SOL: payload.Solana.USD}
	c.logger.Debug().
		Str("eth", prices.ETH.String()).
		Str("sol", prices.SOL.String()).
		Msg("fetched coin prices")
	return prices, nil
}

var _ CoinPriceFetcher = (*CoinFeed)(nil)
