package trade

import "github.com/shopspring/decimal"

// NormalizeVolume rounds the volume to the instrument's volume step and
// clamps it into [min, max]. Float noise is avoided by doing the step
// arithmetic in decimal; the returned volume is what actually gets
// submitted, which callers must treat as authoritative.
func NormalizeVolume(volume, min, max, step float64) float64 {
	if step > 0 {
		v := decimal.NewFromFloat(volume)
		st := decimal.NewFromFloat(step)
		steps := v.Div(st).Round(0)
		volume = steps.Mul(st).InexactFloat64()
	}
	if min > 0 && volume < min {
		volume = min
	}
	if max > 0 && volume > max {
		volume = max
	}
	return volume
}

// RoundPrice rounds a price to the instrument's digit precision.
func RoundPrice(price float64, digits int) float64 {
	if digits < 0 {
		return price
	}
	return decimal.NewFromFloat(price).Round(int32(digits)).InexactFloat64()
}
