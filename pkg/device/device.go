package device

import (
	"github.com/amd-hhashemi/gemmtune/pkg/common"
)

// Tensor is a device-resident matrix. Data holds the values as float32
// already rounded through DType, so host-side consumers observe exactly the
// precision the device computes with. Data is only safe to read after the
// owning backend's Synchronize has returned.
type Tensor struct {
	Rows  int
	Cols  int
	DType common.DType
	Data  []float32
}

func (t *Tensor) Len() int {
	return t.Rows * t.Cols
}

func (t *Tensor) At(i, j int) float32 {
	return t.Data[i*t.Cols+j]
}

// Row returns the backing slice of one row.
func (t *Tensor) Row(i int) []float32 {
	return t.Data[i*t.Cols : (i+1)*t.Cols]
}

// Timer measures elapsed device time between two markers. ElapsedMs is only
// valid once the backend has been synchronized after Stop.
type Timer interface {
	Start()
	Stop()
	ElapsedMs() float64
}

// Backend owns device memory and the device queue. Operations are queued
// asynchronously; Synchronize blocks until everything queued so far has
// retired.
type Backend interface {
	// RandTensor materializes a rows x cols tensor of normally distributed
	// values rounded to dtype.
	RandTensor(rows, cols int, dtype common.DType) *Tensor

	// Ones allocates a flat float32 buffer of n ones. Used as the cache
	// eviction blob between timing passes.
	Ones(n int) *Tensor

	// Perturb queues one elementwise nudge of t. Repeated calls between
	// timing passes shift device cache state deterministically.
	Perturb(t *Tensor)

	Synchronize()
	NewTimer() Timer
}

// Catalog enumerates and executes candidate GEMM kernels. A solution index is
// opaque and only comparable within one (shape, dtype pair).
type Catalog interface {
	// FindAllSolutions returns every solution index able to compute
	// in x weightsᵀ at the given output precision.
	FindAllSolutions(in, weights *Tensor, outdtype common.DType) []int

	// MatMul executes one solution: out[i][j] = sum_k in[i][k]*weights[j][k],
	// rounded to outdtype.
	MatMul(in, weights *Tensor, solidx int, outdtype common.DType) (*Tensor, error)
}

// Oracle computes the trusted reference result for a correctness check,
// accumulating at full precision internally and rounding to outdtype.
type Oracle interface {
	Reference(in, weights *Tensor, outdtype common.DType) *Tensor
}
