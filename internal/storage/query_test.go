package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestNormalizer() *Normalizer {
	return NewNormalizer(map[string]any{"page": 1, "limit": 10})
}

func TestNormalizeComputesSkipAndRemovesPage(t *testing.T) {
	query, err := newTestNormalizer().Normalize(map[string]any{
		"page":       3,
		"limit":      25,
		"collection": "degods",
	})
	require.NoError(t, err)

	require.Equal(t, 50, query.Skip)
	require.Equal(t, 25, query.Limit)
	require.NotContains(t, query.Filter, "page")
	require.NotContains(t, query.Filter, "limit")
	require.NotContains(t, query.Filter, "skip")
	require.Equal(t, "degods", query.Filter["collection"])
}

func TestNormalizeAppliesConfiguredDefaults(t *testing.T) {
	query, err := newTestNormalizer().Normalize(map[string]any{"provider": "magiceden"})
	require.NoError(t, err)

	// page=1, limit=10 defaults give skip 0 and limit 10.
	require.Equal(t, 0, query.Skip)
	require.Equal(t, 10, query.Limit)
	require.Equal(t, map[string]any{"provider": "magiceden"}, query.Filter)
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	raw := map[string]any{"page": 2, "limit": 5, "collection": "smb"}
	_, err := newTestNormalizer().Normalize(raw)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"page": 2, "limit": 5, "collection": "smb"}, raw)
}

func TestNormalizeRewritesIDAsIdentityConstraint(t *testing.T) {
	query, err := newTestNormalizer().Normalize(map[string]any{"id": "42"})
	require.NoError(t, err)

	require.NotNil(t, query.ID)
	require.Equal(t, int64(42), *query.ID)
	require.NotContains(t, query.Filter, "id")
}

func TestNormalizeRejectsUnconvertibleID(t *testing.T) {
	for _, id := range []any{"not-a-key", "12.5", true} {
		_, err := newTestNormalizer().Normalize(map[string]any{"id": id})
		require.Error(t, err, "id %v", id)
		require.True(t, errors.Is(err, ErrInvalidIdentifier), "id %v: %v", id, err)
	}
}

func TestNormalizeAcceptsStringPagination(t *testing.T) {
	query, err := newTestNormalizer().Normalize(map[string]any{"page": "4", "limit": "2"})
	require.NoError(t, err)
	require.Equal(t, 6, query.Skip)
	require.Equal(t, 2, query.Limit)
}

func TestNormalizeRejectsMalformedPagination(t *testing.T) {
	_, err := newTestNormalizer().Normalize(map[string]any{"page": "first", "limit": 10})
	require.Error(t, err)
}
