package floorcalc

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func obs(provider, value string) Observation {
	return Observation{Provider: provider, Value: decimal.RequireFromString(value)}
}

func TestComputePicksLowestObservation(t *testing.T) {
	calc := LowestCredible{}
	got := calc.Compute([]Observation{
		obs("magiceden", "1.48"),
		obs("opensea", "1.40"),
		obs("tensor", "1.52"),
	}, decimal.RequireFromString("1.45"), "2024-03-07 08:05:01")

	require.True(t, got.Equal(decimal.RequireFromString("1.40")))
}

func TestComputeCarriesPriorForwardWhenEmpty(t *testing.T) {
	calc := LowestCredible{}
	prior := decimal.RequireFromString("2.2")

	got := calc.Compute(nil, prior, "2024-03-07 08:05:01")
	require.True(t, got.Equal(prior))
}

func TestComputeZeroPriorWithNoObservations(t *testing.T) {
	calc := LowestCredible{}
	got := calc.Compute(nil, decimal.Zero, "0")
	require.True(t, got.IsZero())
}

func TestComputeClampsImplausibleJumps(t *testing.T) {
	calc := LowestCredible{MaxJumpFactor: decimal.NewFromInt(2)}
	prior := decimal.NewFromInt(10)

	up := calc.Compute([]Observation{obs("magiceden", "100")}, prior, "2024-03-07 08:05:01")
	require.True(t, up.Equal(decimal.NewFromInt(20)), "got %s", up)

	down := calc.Compute([]Observation{obs("magiceden", "1")}, prior, "2024-03-07 08:05:01")
	require.True(t, down.Equal(decimal.NewFromInt(5)), "got %s", down)
}

func TestComputeClampDisabledWithoutPrior(t *testing.T) {
	calc := LowestCredible{MaxJumpFactor: decimal.NewFromInt(2)}
	got := calc.Compute([]Observation{obs("magiceden", "100")}, decimal.Zero, "0")
	require.True(t, got.Equal(decimal.NewFromInt(100)))
}
