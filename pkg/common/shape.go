package common

import "fmt"

// Shape identifies one GEMM problem instance: an (N, K) input against an
// (M, K) weight matrix producing an (N, M) output. Identity is the exact
// integer triple.
type Shape struct {
	M int
	N int
	K int
}

func (s Shape) String() string {
	return fmt.Sprintf("%dx%dx%d", s.M, s.N, s.K)
}

// ShapeKey keys a tuned-table entry. A solution index is only meaningful for
// one shape at one precision pair, so the dtypes are part of the key.
type ShapeKey struct {
	Shape
	Indtype  DType
	Outdtype DType
}
