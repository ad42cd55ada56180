package storage

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// PriceRepository defines the typed persistence operations consumed by the
// orchestration pass.
type PriceRepository interface {
	LastCoinPrice(ctx context.Context) (CoinPriceRecord, bool, error)
	LastCanonicalRecord(ctx context.Context, collection string) (CanonicalRecord, bool, error)
	LastProviderObservation(ctx context.Context, provider, collection string) (ProviderObservation, bool, error)
	SaveCoinPrice(ctx context.Context, eth, sol decimal.Decimal) (int64, error)
	SaveProviderObservation(ctx context.Context, provider, collection string, floor decimal.Decimal) (int64, error)
	SaveCanonicalRecord(ctx context.Context, collection string, price decimal.Decimal) (int64, error)
}

// Repository is the typed facade over the generic document store for the
// three record families.
type Repository struct {
	store  *Store
	logger zerolog.Logger
}

// NewRepository wires a Store into a Repository.
func NewRepository(store *Store, logger zerolog.Logger) *Repository {
	return &Repository{
		store:  store,
		logger: logger.With().Str("component", "repository").Logger(),
	}
}

// LastProviderObservation returns the most recent floor observation of one
// provider for one asset collection.
func (r *Repository) LastProviderObservation(ctx context.Context, provider, collection string) (ProviderObservation, bool, error) {
	if provider == "" || collection == "" {
		return ProviderObservation{}, false, nil
	}

	raw := map[string]any{
		"page":       1,
		"limit":      1,
		"provider":   provider,
		"collection": collection,
	}
	docs, err := r.store.FindMany(ctx, ProviderObservations, raw, SortNewestFirst)
	if err != nil {
		return ProviderObservation{}, false, err
	}
	if len(docs) == 0 {
		return ProviderObservation{}, false, nil
	}

	obs, err := providerObservationFromDocument(docs[0])
	if err != nil {
		return ProviderObservation{}, false, err
	}
	return obs, true, nil
}

// LastCanonicalRecord returns the most recent canonical floor for an asset
// collection.
func (r *Repository) LastCanonicalRecord(ctx context.Context, collection string) (CanonicalRecord, bool, error) {
	if collection == "" {
		return CanonicalRecord{}, false, nil
	}

	raw := map[string]any{"page": 1, "limit": 1, "collection": collection}
	docs, err := r.store.FindMany(ctx, CanonicalRecords, raw, SortNewestFirst)
	if err != nil {
		return CanonicalRecord{}, false, err
	}
	if len(docs) == 0 {
		return CanonicalRecord{}, false, nil
	}

	rec, err := canonicalRecordFromDocument(docs[0])
	if err != nil {
		return CanonicalRecord{}, false, err
	}
	return rec, true, nil
}

// LastCoinPrice returns the most recent reference coin price snapshot.
func (r *Repository) LastCoinPrice(ctx context.Context) (CoinPriceRecord, bool, error) {
	raw := map[string]any{"page": 1, "limit": 1}
	docs, err := r.store.FindMany(ctx, CoinPriceRecords, raw, SortNewestFirst)
	if err != nil {
		return CoinPriceRecord{}, false, err
	}
	if len(docs) == 0 {
		return CoinPriceRecord{}, false, nil
	}

	rec, err := coinPriceRecordFromDocument(docs[0])
	if err != nil {
		return CoinPriceRecord{}, false, err
	}
	return rec, true, nil
}

// RecentCanonicalRecords lists up to limit canonical records for an asset
// collection, newest first.
func (r *Repository) RecentCanonicalRecords(ctx context.Context, collection string, limit int) ([]CanonicalRecord, error) {
	raw := map[string]any{"page": 1, "limit": limit, "collection": collection}
	docs, err := r.store.FindMany(ctx, CanonicalRecords, raw, SortNewestFirst)
	if err != nil {
		return nil, err
	}

	records := make([]CanonicalRecord, 0, len(docs))
	for _, doc := range docs {
		rec, err := canonicalRecordFromDocument(doc)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// SaveProviderObservation appends one provider floor observation.
func (r *Repository) SaveProviderObservation(ctx context.Context, provider, collection string, floor decimal.Decimal) (int64, error) {
	obs := ProviderObservation{Collection: collection, Provider: provider, Floor: floor}
	id, err := r.store.InsertOne(ctx, ProviderObservations, obs.document(), false)
	if err != nil {
		return 0, err
	}

	r.logger.Info().
		Str("collection", collection).
		Str("provider", provider).
		Str("floor", floor.String()).
		Int64("id", id).
		Msg("stored provider observation")
	return id, nil
}

// SaveCanonicalRecord appends the derived canonical floor for a collection.
func (r *Repository) SaveCanonicalRecord(ctx context.Context, collection string, price decimal.Decimal) (int64, error) {
	rec := CanonicalRecord{Collection: collection, OraclePrice: price}
	id, err := r.store.InsertOne(ctx, CanonicalRecords, rec.document(), false)
	if err != nil {
		return 0, err
	}

	r.logger.Info().
		Str("collection", collection).
		Str("oracle_price", price.String()).
		Int64("id", id).
		Msg("stored canonical record")
	return id, nil
}

// SaveCoinPrice appends a coin price snapshot. Incomplete snapshots are not
// persisted; callers keep working with the previous values.
func (r *Repository) SaveCoinPrice(ctx context.Context, eth, sol decimal.Decimal) (int64, error) {
	if !eth.IsPositive() || !sol.IsPositive() {
		r.logger.Warn().
			Str("eth", eth.String()).
			Str("sol", sol.String()).
			Msg("incomplete coin price snapshot; nothing persisted")
		return 0, nil
	}

	rec := CoinPriceRecord{ETHPrice: eth, SOLPrice: sol}
	return r.store.InsertOne(ctx, CoinPriceRecords, rec.document(), false)
}

var _ PriceRepository = (*Repository)(nil)
