package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Storage collection names for the three record families.
const (
	ProviderObservations = "provider_prices"
	CanonicalRecords     = "prices"
	CoinPriceRecords     = "coin_prices"
)

// TimestampLayout is the fixed, lexicographically sortable timestamp format
// stamped onto every stored document (UTC).
const TimestampLayout = "2006-01-02 15:04:05"

// FormatTimestamp renders a time in the store's timestamp format.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ProviderObservation is one marketplace provider's reported floor for one
// asset collection at one instant. Append-only.
type ProviderObservation struct {
	ID         int64
	Collection string
	Provider   string
	Floor      decimal.Decimal
	Timestamp  string
}

func (o ProviderObservation) document() map[string]any {
	return map[string]any{
		"collection": o.Collection,
		"provider":   o.Provider,
		"floor":      o.Floor,
	}
}

// CanonicalRecord is the system's own authoritative floor for an asset
// collection, derived once per pass. Append-only.
type CanonicalRecord struct {
	ID          int64
	Collection  string
	OraclePrice decimal.Decimal
	Timestamp   string
}

func (r CanonicalRecord) document() map[string]any {
	return map[string]any{
		"collection":   r.Collection,
		"oracle_price": r.OraclePrice,
	}
}

// CoinPriceRecord holds the reference coin conversion rates used to
// normalize provider floors, written once per pass. Append-only.
type CoinPriceRecord struct {
	ID        int64
	ETHPrice  decimal.Decimal
	SOLPrice  decimal.Decimal
	Timestamp string
}

func (r CoinPriceRecord) document() map[string]any {
	return map[string]any{
		"eth_price": r.ETHPrice,
		"sol_price": r.SOLPrice,
	}
}

func providerObservationFromDocument(doc Document) (ProviderObservation, error) {
	obs := ProviderObservation{ID: doc.ID}
	var err error
	if obs.Collection, err = stringField(doc.Fields, "collection"); err != nil {
		return ProviderObservation{}, err
	}
	if obs.Provider, err = stringField(doc.Fields, "provider"); err != nil {
		return ProviderObservation{}, err
	}
	if obs.Floor, err = decimalField(doc.Fields, "floor"); err != nil {
		return ProviderObservation{}, err
	}
	obs.Timestamp, _ = stringField(doc.Fields, "timestamp")
	return obs, nil
}

func canonicalRecordFromDocument(doc Document) (CanonicalRecord, error) {
	rec := CanonicalRecord{ID: doc.ID}
	var err error
	if rec.Collection, err = stringField(doc.Fields, "collection"); err != nil {
		return CanonicalRecord{}, err
	}
	if rec.OraclePrice, err = decimalField(doc.Fields, "oracle_price"); err != nil {
		return CanonicalRecord{}, err
	}
	rec.Timestamp, _ = stringField(doc.Fields, "timestamp")
	return rec, nil
}

func coinPriceRecordFromDocument(doc Document) (CoinPriceRecord, error) {
	rec := CoinPriceRecord{ID: doc.ID}
	var err error
	if rec.ETHPrice, err = decimalField(doc.Fields, "eth_price"); err != nil {
		return CoinPriceRecord{}, err
	}
	if rec.SOLPrice, err = decimalField(doc.Fields, "sol_price"); err != nil {
		return CoinPriceRecord{}, err
	}
	rec.Timestamp, _ = stringField(doc.Fields, "timestamp")
	return rec, nil
}

func stringField(fields map[string]any, key string) (string, error) {
	value, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("document field %q missing", key)
	}
	str, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("document field %q is not a string", key)
	}
	return str, nil
}

func decimalField(fields map[string]any, key string) (decimal.Decimal, error) {
	value, ok := fields[key]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("document field %q missing", key)
	}
	switch v := value.(type) {
	case string:
		parsed, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("parse document field %q: %w", key, err)
		}
		return parsed, nil
	case json.Number:
		parsed, err := decimal.NewFromString(v.String())
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("parse document field %q: %w", key, err)
		}
		return parsed, nil
	case float64:
		return decimal.NewFromFloat(v), nil
	default:
		return decimal.Decimal{}, fmt.Errorf("document field %q has unsupported type %T", key, value)
	}
}
