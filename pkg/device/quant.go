package device

import (
	"math"

	"github.com/amd-hhashemi/gemmtune/pkg/common"
)

// Round maps v onto the representable grid of dtype and back to float32.
// Tensors store pre-rounded values so kernels and the oracle agree on their
// operands bit-for-bit.
func Round(v float32, dtype common.DType) float32 {
	switch dtype {
	case common.F32:
		return v
	case common.BF16:
		return roundBF16(v)
	case common.F16:
		return roundF16(v)
	default:
		return roundF8E4M3(v)
	}
}

// RoundAll rounds a buffer in place.
func RoundAll(data []float32, dtype common.DType) {
	if dtype == common.F32 {
		return
	}
	for i, v := range data {
		data[i] = Round(v, dtype)
	}
}

// bf16 keeps the top 16 bits of the float32 layout, round-to-nearest-even.
func roundBF16(v float32) float32 {
	bits := math.Float32bits(v)
	bits += 0x7fff + (bits >> 16 & 1)
	return math.Float32frombits(bits & 0xffff0000)
}

// f16 round-trips through IEEE binary16.
func roundF16(v float32) float32 {
	const (
		maxF16 = 65504
		minF16 = 6.103515625e-05 // smallest normal
	)
	f := float64(v)
	switch {
	case math.IsNaN(f) || math.IsInf(f, 0):
		return v
	case f > maxF16:
		return maxF16
	case f < -maxF16:
		return -maxF16
	}
	a := math.Abs(f)
	if a < minF16 {
		// subnormal grid: multiples of 2^-24
		step := math.Exp2(-24)
		return float32(math.RoundToEven(f/step) * step)
	}
	exp := math.Floor(math.Log2(a))
	step := math.Exp2(exp - 10) // 10 mantissa bits
	return float32(math.RoundToEven(f/step) * step)
}

// f8 E4M3: 3 mantissa bits, exponent range [-6, 8], max finite 448.
func roundF8E4M3(v float32) float32 {
	const maxF8 = 448
	f := float64(v)
	switch {
	case math.IsNaN(f) || math.IsInf(f, 0):
		return v
	case f > maxF8:
		return maxF8
	case f < -maxF8:
		return -maxF8
	}
	a := math.Abs(f)
	if a == 0 {
		return 0
	}
	if a < math.Exp2(-6) {
		// subnormal grid: multiples of 2^-9
		step := math.Exp2(-9)
		return float32(math.RoundToEven(f/step) * step)
	}
	exp := math.Floor(math.Log2(a))
	step := math.Exp2(exp - 3)
	return float32(math.RoundToEven(f/step) * step)
}
