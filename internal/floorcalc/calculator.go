// Package floorcalc derives the canonical floor from a batch of provider
// observations. The derivation policy, including suppression of implausible
// jumps, is owned entirely by the calculator; the orchestration pass treats
// it as opaque.
package floorcalc

import (
	"github.com/shopspring/decimal"
)

// Observation is one provider's normalized floor contribution.
type Observation struct {
	Provider string
	Value    decimal.Decimal
}

// Calculator derives the canonical floor for one pass from the collected
// observations plus the prior canonical value and its timestamp.
type Calculator interface {
	Compute(observations []Observation, priorValue decimal.Decimal, priorTimestamp string) decimal.Decimal
}

// LowestCredible picks the lowest observed floor. With no observations the
// prior value carries forward. When MaxJumpFactor is set and a prior value
// exists, the result is clamped to prior*factor on the way up and
// prior/factor on the way down, discounting implausible single-pass moves.
type LowestCredible struct {
	MaxJumpFactor decimal.Decimal
}

// Compute implements Calculator.
func (c LowestCredible) Compute(observations []Observation, priorValue decimal.Decimal, priorTimestamp string) decimal.Decimal {
	if len(observations) == 0 {
		return priorValue
	}

	floor := observations[0].Value
	for _, obs := range observations[1:] {
		if obs.Value.LessThan(floor) {
			floor = obs.Value
		}
	}

	if c.MaxJumpFactor.IsPositive() && priorValue.IsPositive() {
		upper := priorValue.Mul(c.MaxJumpFactor)
		lower := priorValue.Div(c.MaxJumpFactor)
		if floor.GreaterThan(upper) {
			floor = upper
		}
		if floor.LessThan(lower) {
			floor = lower
		}
	}

	return floor
}

var _ Calculator = LowestCredible{}
