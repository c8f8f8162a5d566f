package dosing

import "github.com/shopspring/decimal"

// RoundDown rounds value down to a whole number of increments. Decimal
// arithmetic keeps values such as 0.15 / 0.05 from landing just below 3.
func RoundDown(value, increment float64) float64 {
	if increment <= 0 {
		return value
	}
	inc := decimal.NewFromFloat(increment)
	return decimal.NewFromFloat(value).Div(inc).Floor().Mul(inc).InexactFloat64()
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}
