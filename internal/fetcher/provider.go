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

const collectionPlaceholder = "{collection}"

// FloorOptions parameterise the marketplace floor fetcher.
type FloorOptions struct {
	// Endpoints maps provider ids to floor endpoint templates containing a
	// {collection} placeholder.
	Endpoints map[string]string
	Timeout   time.Duration
	UserAgent string
}

// Floor fetches per-provider floor prices over HTTP and normalizes them to
// USD using the pass's coin price snapshot.
type Floor struct {
	opts   FloorOptions
	logger zerolog.Logger
	client *http.Client
}

// NewFloor constructs a marketplace floor fetcher.
func NewFloor(opts FloorOptions, logger zerolog.Logger) *Floor {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Floor{
		opts:   opts,
		logger: logger.With().Str("component", "floor_fetcher").Logger(),
		client: &http.Client{Timeout: timeout},
	}
}

type floorResponse struct {
	FloorPrice decimal.Decimal `json:"floorPrice"`
	Currency   string          `json:"currency"`
}

// FetchFloor retrieves one provider's floor for a collection. A 404 or a
// non-positive reported floor means the provider has nothing credible to
// report and yields missing, never zero.
func (f *Floor) FetchFloor(ctx context.Context, provider, collection string, prices CoinPrices) (decimal.Decimal, bool, error) {
	template, ok := f.opts.Endpoints[provider]
	if !ok {
		return decimal.Decimal{}, false, fmt.Errorf("no endpoint configured for provider %q", provider)
	}

	url := strings.ReplaceAll(template, collectionPlaceholder, collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Decimal{}, false, fmt.Errorf("create floor request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if f.opts.UserAgent != "" {
		req.Header.Set("User-Agent", f.opts.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, false, fmt.Errorf("fetch floor from %q: %w", provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		f.logger.Debug().
			Str("provider", provider).
			Str("collection", collection).
			Msg("provider reports no floor")
		return decimal.Decimal{}, false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decimal.Decimal{}, false, fmt.Errorf("provider %q returned status %d", provider, resp.StatusCode)
	}

	var payload floorResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return decimal.Decimal{}, false, fmt.Errorf("decode floor response from %q: %w", provider, err)
	}
	if !payload.FloorPrice.IsPositive() {
		return decimal.Decimal{}, false, nil
	}

	usd, err := toUSD(payload.FloorPrice, payload.Currency, prices)
	if err != nil {
		return decimal.Decimal{}, false, fmt.Errorf("normalize floor from %q: %w", provider, err)
	}
	if !usd.IsPositive() {
		// Conversion rate unavailable this pass; treat as missing rather
		// than persist a zero floor.
		return decimal.Decimal{}, false, nil
	}

	f.logger.Debug().
		Str("provider", provider).
		Str("collection", collection).
		Str("floor_usd", usd.String()).
		Msg("fetched provider floor")
	return usd, true, nil
}

func toUSD(value decimal.Decimal, currency string, prices CoinPrices) (decimal.Decimal, error) {
	switch strings.ToLower(currency) {
	case "", "usd":
		return value, nil
	case "eth":
		return value.Mul(prices.ETH), nil
	case "sol":
		return value.Mul(prices.SOL), nil
	default:
		return decimal.Decimal{}, fmt.Errorf("unsupported currency %q", currency)
	}
}

var _ FloorFetcher = (*Floor)(nil)
