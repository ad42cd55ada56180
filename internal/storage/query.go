package storage

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Sort selects the ordering of query results by insertion order.
type Sort int

const (
	// SortNewestFirst returns documents in reverse insertion order. This is
	// the default: "most recent" means the latest inserted document.
	SortNewestFirst Sort = iota
	// SortOldestFirst returns documents in insertion order.
	SortOldestFirst
)

// Query is a normalized, bounded store query: pure equality constraints plus
// explicit pagination. Skip and Limit are only applied when positive.
type Query struct {
	ID     *int64
	Filter map[string]any
	Skip   int
	Limit  int
}

// Normalizer turns loosely specified queries (page/limit/id/free-form
// equality filters) into safe Query values. Required fields and their
// defaults come from configuration.
type Normalizer struct {
	defaults map[string]any
}

// NewNormalizer builds a Normalizer applying the given defaults for any
// required field absent from the input.
func NewNormalizer(defaults map[string]any) *Normalizer {
	return &Normalizer{defaults: defaults}
}

// Normalize validates and rewrites a raw query.
//
// Pagination: when both page and limit are present, skip is computed as
// (page-1)*limit and page is removed; it is a view parameter, not a stored
// field. An id value is converted to the native document key and becomes an
// identity constraint; a value that cannot be converted fails with
// ErrInvalidIdentifier. Everything remaining is treated as an equality
// filter on document fields.
func (n *Normalizer) Normalize(raw map[string]any) (Query, error) {
	merged := make(map[string]any, len(raw)+len(n.defaults))
	for key, value := range raw {
		merged[key] = value
	}
	for key, value := range n.defaults {
		if _, ok := merged[key]; !ok {
			merged[key] = value
		}
	}

	var query Query

	if pageValue, hasPage := merged["page"]; hasPage {
		if limitValue, hasLimit := merged["limit"]; hasLimit {
			page, err := asInt(pageValue)
			if err != nil {
				return Query{}, fmt.Errorf("parse page: %w", err)
			}
			limit, err := asInt(limitValue)
			if err != nil {
				return Query{}, fmt.Errorf("parse limit: %w", err)
			}
			merged["skip"] = (page - 1) * limit
			delete(merged, "page")
		}
	}

	if value, ok := merged["id"]; ok {
		id, err := asIdentifier(value)
		if err != nil {
			return Query{}, err
		}
		query.ID = &id
		delete(merged, "id")
	}

	if value, ok := merged["skip"]; ok {
		skip, err := asInt(value)
		if err != nil {
			return Query{}, fmt.Errorf("parse skip: %w", err)
		}
		query.Skip = skip
		delete(merged, "skip")
	}

	if value, ok := merged["limit"]; ok {
		limit, err := asInt(value)
		if err != nil {
			return Query{}, fmt.Errorf("parse limit: %w", err)
		}
		query.Limit = limit
		delete(merged, "limit")
	}

	query.Filter = merged
	return query, nil
}

func asInt(value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case json.Number:
		parsed, err := v.Int64()
		if err != nil {
			return 0, err
		}
		return int(parsed), nil
	case string:
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return 0, err
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("unsupported numeric value %T", value)
	}
}

func asIdentifier(value any) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case json.Number:
		parsed, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidIdentifier, v.String())
		}
		return parsed, nil
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidIdentifier, v)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("%w: unsupported type %T", ErrInvalidIdentifier, value)
	}
}
