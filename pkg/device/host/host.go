// Package host is the in-process CPU implementation of the device
// capabilities. Its solution catalog exposes a handful of GEMM kernel
// variants that differ in loop order and cache blocking, which is enough
// spread for the tuner to rank them meaningfully on real hardware.
package host

import (
	"fmt"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/amd-hhashemi/gemmtune/pkg/common"
	"github.com/amd-hhashemi/gemmtune/pkg/device"
)

// Backend implements device.Backend on the host. The device queue is the
// calling goroutine, so Synchronize is a no-op barrier.
type Backend struct {
	rng *rand.Rand
}

func NewBackend(seed int64) *Backend {
	return &Backend{rng: rand.New(rand.NewSource(seed))}
}

func (b *Backend) RandTensor(rows, cols int, dtype common.DType) *device.Tensor {
	t := &device.Tensor{
		Rows:  rows,
		Cols:  cols,
		DType: dtype,
		Data:  make([]float32, rows*cols),
	}
	for i := range t.Data {
		t.Data[i] = device.Round(float32(b.rng.NormFloat64()), dtype)
	}
	return t
}

func (b *Backend) Ones(n int) *device.Tensor {
	t := &device.Tensor{Rows: 1, Cols: n, DType: common.F32, Data: make([]float32, n)}
	for i := range t.Data {
		t.Data[i] = 1
	}
	return t
}

func (b *Backend) Perturb(t *device.Tensor) {
	for i := range t.Data {
		t.Data[i] += 0.00001
	}
}

func (b *Backend) Synchronize() {}

func (b *Backend) NewTimer() device.Timer {
	return &wallTimer{}
}

type wallTimer struct {
	start   time.Time
	elapsed time.Duration
}

func (t *wallTimer) Start() {
	t.start = time.Now()
}

func (t *wallTimer) Stop() {
	t.elapsed = time.Since(t.start)
}

func (t *wallTimer) ElapsedMs() float64 {
	return float64(t.elapsed) / float64(time.Millisecond)
}

// Solution indices of the host catalog. Indices are stable so a tuned table
// produced against this backend stays valid across runs.
const (
	solNaive     = 1
	solUnrolled  = 2
	solBlocked32 = 3
	solBlocked64 = 4
	solParallel  = 5
)

// Catalog implements device.Catalog over the host kernel variants.
type Catalog struct{}

func NewCatalog() *Catalog {
	return &Catalog{}
}

// FindAllSolutions filters the variants down to the ones whose blocking or
// parallel grain fits the problem shape.
func (c *Catalog) FindAllSolutions(in, weights *device.Tensor, outdtype common.DType) []int {
	if in.Cols != weights.Cols {
		return nil
	}
	sols := []int{solNaive, solUnrolled}
	if in.Cols >= 32 {
		sols = append(sols, solBlocked32)
	}
	if in.Cols >= 64 {
		sols = append(sols, solBlocked64)
	}
	if in.Rows >= 2*runtime.NumCPU() {
		sols = append(sols, solParallel)
	}
	return sols
}

// MatMul computes out[i][j] = sum_k in[i][k]*weights[j][k] with the selected
// kernel, rounding the result to outdtype.
func (c *Catalog) MatMul(in, weights *device.Tensor, solidx int, outdtype common.DType) (*device.Tensor, error) {
	if in.Cols != weights.Cols {
		return nil, fmt.Errorf("host: reduction dims do not match: %d vs %d", in.Cols, weights.Cols)
	}

	out := &device.Tensor{
		Rows:  in.Rows,
		Cols:  weights.Rows,
		DType: outdtype,
		Data:  make([]float32, in.Rows*weights.Rows),
	}

	switch solidx {
	case solNaive:
		gemmNaive(in, weights, out)
	case solUnrolled:
		gemmUnrolled(in, weights, out)
	case solBlocked32:
		gemmBlocked(in, weights, out, 32)
	case solBlocked64:
		gemmBlocked(in, weights, out, 64)
	case solParallel:
		gemmParallel(in, weights, out)
	default:
		return nil, fmt.Errorf("host: unknown solution index %d", solidx)
	}

	device.RoundAll(out.Data, outdtype)
	return out, nil
}

func gemmNaive(a, b, out *device.Tensor) {
	for i := 0; i < a.Rows; i++ {
		ar := a.Row(i)
		or := out.Row(i)
		for j := 0; j < b.Rows; j++ {
			br := b.Row(j)
			var acc float32
			for k := range ar {
				acc += ar[k] * br[k]
			}
			or[j] = acc
		}
	}
}

// gemmUnrolled splits the dot product across four accumulators so the
// floating-point chains are independent.
func gemmUnrolled(a, b, out *device.Tensor) {
	k4 := a.Cols &^ 3
	for i := 0; i < a.Rows; i++ {
		ar := a.Row(i)
		or := out.Row(i)
		for j := 0; j < b.Rows; j++ {
			br := b.Row(j)
			var s0, s1, s2, s3 float32
			for k := 0; k < k4; k += 4 {
				s0 += ar[k] * br[k]
				s1 += ar[k+1] * br[k+1]
				s2 += ar[k+2] * br[k+2]
				s3 += ar[k+3] * br[k+3]
			}
			acc := s0 + s1 + s2 + s3
			for k := k4; k < a.Cols; k++ {
				acc += ar[k] * br[k]
			}
			or[j] = acc
		}
	}
}

// gemmBlocked tiles the weight rows and the reduction dim so the active
// working set stays cache resident while a tile is reused.
func gemmBlocked(a, b, out *device.Tensor, block int) {
	for jj := 0; jj < b.Rows; jj += block {
		jmax := min(jj+block, b.Rows)
		for kk := 0; kk < a.Cols; kk += block {
			kmax := min(kk+block, a.Cols)
			for i := 0; i < a.Rows; i++ {
				ar := a.Row(i)
				or := out.Row(i)
				for j := jj; j < jmax; j++ {
					br := b.Row(j)
					acc := or[j]
					for k := kk; k < kmax; k++ {
						acc += ar[k] * br[k]
					}
					or[j] = acc
				}
			}
		}
	}
}

// gemmParallel shards output rows across workers, each running the blocked
// kernel on its shard.
func gemmParallel(a, b, out *device.Tensor) {
	workers := runtime.NumCPU()
	rowsPer := (a.Rows + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo := w * rowsPer
		hi := min(lo+rowsPer, a.Rows)
		if lo >= hi {
			break
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			sub := &device.Tensor{Rows: hi - lo, Cols: a.Cols, DType: a.DType, Data: a.Data[lo*a.Cols : hi*a.Cols]}
			subOut := &device.Tensor{Rows: hi - lo, Cols: out.Cols, DType: out.DType, Data: out.Data[lo*out.Cols : hi*out.Cols]}
			gemmBlocked(sub, b, subOut, 64)
		}(lo, hi)
	}
	wg.Wait()
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Oracle computes the reference result with float64 accumulation.
type Oracle struct{}

func NewOracle() *Oracle {
	return &Oracle{}
}

func (o *Oracle) Reference(in, weights *device.Tensor, outdtype common.DType) *device.Tensor {
	out := &device.Tensor{
		Rows:  in.Rows,
		Cols:  weights.Rows,
		DType: outdtype,
		Data:  make([]float32, in.Rows*weights.Rows),
	}
	for i := 0; i < in.Rows; i++ {
		ar := in.Row(i)
		or := out.Row(i)
		for j := 0; j < weights.Rows; j++ {
			br := weights.Row(j)
			var acc float64
			for k := range ar {
				acc += float64(ar[k]) * float64(br[k])
			}
			or[j] = device.Round(float32(acc), outdtype)
		}
	}
	return out
}
