package shared

import "math"

// Every percentage in the subsystem is an integer in [0,100] rounded
// half-up. Client-side displays use the same rule.

// RoundPercent returns round-half-up(num/den × 100), or 0 when den ≤ 0.
// Integer arithmetic keeps 1/8 = 12.5 → 13 exact.
func RoundPercent(num, den int) int {
	if den <= 0 || num <= 0 {
		return 0
	}
	return ClampPercent((200*num + den) / (2 * den))
}

// RoundRatio returns round-half-up(num/den) for non-negative integers.
func RoundRatio(num, den int) int {
	if den <= 0 || num <= 0 {
		return 0
	}
	return (2*num + den) / (2 * den)
}

// roundEpsilon absorbs binary representation error, so that a mean which
// is mathematically x.5 but computes as x.4999999 still rounds up.
const roundEpsilon = 1e-9

// RoundHalfUp rounds a non-negative float to the nearest integer, halves up.
func RoundHalfUp(v float64) int {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	return int(math.Floor(v + 0.5 + roundEpsilon))
}

// ClampPercent bounds p to [0,100].
func ClampPercent(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
