// Package mathx holds the decimal rounding used for every displayed figure.
package mathx

import (
	"math"

	"github.com/shopspring/decimal"
)

// Round rounds the exact binary value of f to places decimals, half away
// from zero, so 1.005 (stored as 1.00499...) rounds to 1.00. NaN and ±Inf are
// returned as is.
func Round(f float64, places int32) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return f
	}
	return decimal.NewFromFloatWithExponent(f, -places).InexactFloat64()
}
