// Package tally holds the weight arithmetic shared by the dispute and
// reputation-challenge resolvers.
package tally

import "math"

// Outcome is the result of applying the decisive-ratio rule to a pair of
// opposing weights.
type Outcome uint8

const (
	// OutcomeInconclusive means neither side reached a decisive margin.
	OutcomeInconclusive Outcome = iota
	// OutcomeFor means the first weight decisively exceeded the second.
	OutcomeFor
	// OutcomeAgainst means the second weight decisively exceeded the first.
	OutcomeAgainst
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFor:
		return "for"
	case OutcomeAgainst:
		return "against"
	default:
		return "inconclusive"
	}
}

// Decide applies the decisive-ratio rule: a side wins only when its weight
// exceeds twice the opposing weight. Anything short of that margin is
// inconclusive, which damps noise from small weight differences.
func Decide(forWeight, againstWeight uint64) Outcome {
	switch {
	case exceedsDouble(forWeight, againstWeight):
		return OutcomeFor
	case exceedsDouble(againstWeight, forWeight):
		return OutcomeAgainst
	default:
		return OutcomeInconclusive
	}
}

// exceedsDouble reports a > 2*b without overflowing.
func exceedsDouble(a, b uint64) bool {
	if b > math.MaxUint64/2 {
		return false
	}
	return a > 2*b
}

// AddWeight accumulates a contribution into a running weight sum, saturating
// at the maximum representable value. Saturation keeps accumulation
// commutative so the order of concurrent contributions never changes the
// aggregate.
func AddWeight(sum, contribution uint64) uint64 {
	if sum > math.MaxUint64-contribution {
		return math.MaxUint64
	}
	return sum + contribution
}

// SubWeight removes a contribution from a running weight sum, flooring at
// zero. Callers use it when a recorded contribution is replaced, as with a
// governance revote.
func SubWeight(sum, contribution uint64) uint64 {
	if contribution > sum {
		return 0
	}
	return sum - contribution
}

// ClampScore converts a signed effective score into a non-negative voting
// weight. Negative scores carry zero weight.
func ClampScore(score int64) uint64 {
	if score <= 0 {
		return 0
	}
	return uint64(score)
}
