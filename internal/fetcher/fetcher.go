package fetcher

import (
	"context"

	"github.com/shopspring/decimal"
)

// CoinPrices is the reference conversion snapshot used to normalize
// provider floors into USD. A zero field means the feed did not report
// that coin.
type CoinPrices struct {
	ETH decimal.Decimal
	SOL decimal.Decimal
}

// Complete reports whether both required coins were reported.
func (p CoinPrices) Complete() bool {
	return p.ETH.IsPositive() && p.SOL.IsPositive()
}

// CoinPriceFetcher retrieves the current reference coin prices.
type CoinPriceFetcher interface {
	FetchCoinPrices(ctx context.Context) (CoinPrices, error)
}

// FloorFetcher retrieves one provider's reported floor for an asset
// collection, normalized to USD. The boolean is false when the provider has
// no credible floor to report; a missing floor is not zero.
type FloorFetcher interface {
	FetchFloor(ctx context.Context, provider, collection string, prices CoinPrices) (decimal.Decimal, bool, error)
}
