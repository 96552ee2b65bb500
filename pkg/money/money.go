// Package money holds the two-decimal rounding helpers used everywhere
// amounts are split or compared.
package money

import "math"

// Round2 rounds to two decimal places, half away from zero.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// EqualCents reports whether a and b agree within one cent.
func EqualCents(a, b float64) bool {
	return math.Abs(a-b) < 0.01+1e-9
}
