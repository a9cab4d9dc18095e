// Package decimalx wraps shopspring/decimal conversions used by the money
// path. Floats coming off the indicator stream can be NaN or Inf; those
// convert to zero instead of panicking inside decimal.
package decimalx

import (
	"math"

	"github.com/shopspring/decimal"
)

var One = decimal.NewFromInt(1)

// FromFloat converts a float to decimal, mapping NaN and ±Inf to zero.
func FromFloat(val float64) decimal.Decimal {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(val)
}

// ToFloat converts back, discarding the exactness flag.
func ToFloat(val decimal.Decimal) float64 {
	f, _ := val.Float64()
	return f
}

// Compare compares two floats through decimal, avoiding float equality
// artifacts on price levels.
func Compare(a, b float64) int {
	return FromFloat(a).Cmp(FromFloat(b))
}

func LTE(a, b float64) bool { return Compare(a, b) <= 0 }
func GTE(a, b float64) bool { return Compare(a, b) >= 0 }
func LT(a, b float64) bool  { return Compare(a, b) < 0 }
func GT(a, b float64) bool  { return Compare(a, b) > 0 }

// AbsDiff is |a-b| computed in decimal.
func AbsDiff(a, b float64) decimal.Decimal {
	return FromFloat(a).Sub(FromFloat(b)).Abs()
}
