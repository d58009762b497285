package host

import (
	"math"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amd-hhashemi/gemmtune/pkg/common"
	"github.com/amd-hhashemi/gemmtune/pkg/device"
)

// Every enumerated kernel variant must agree with the float64 oracle within
// the tuner's correctness tolerance, at every supported precision pair. The
// bound allows one output grid step on top of the tuner tolerance: the kernel
// accumulates in float32, the oracle in float64, and a sum landing near a
// rounding midpoint may legitimately land on the adjacent grid point.
func TestAllSolutionsMatchOracle(t *testing.T) {
	const (
		atol = 1
		rtol = 1e-5
	)
	backend := NewBackend(1)
	catalog := NewCatalog()
	oracle := NewOracle()

	shapes := []common.Shape{
		{M: 8, N: 4, K: 16},
		{M: 33, N: 5, K: 70},
		{M: 64, N: 128, K: 96},
	}
	dtypes := []common.DType{common.F32, common.F16, common.BF16, common.F8}

	for _, shape := range shapes {
		for _, indt := range dtypes {
			in := backend.RandTensor(shape.N, shape.K, indt)
			w := backend.RandTensor(shape.M, shape.K, indt)

			for _, outdt := range dtypes {
				ref := oracle.Reference(in, w, outdt)

				sols := catalog.FindAllSolutions(in, w, outdt)
				require.NotEmpty(t, sols, "shape %s in %s out %s", shape, indt, outdt)

				for _, solidx := range sols {
					out, err := catalog.MatMul(in, w, solidx, outdt)
					require.NoError(t, err)
					require.Equal(t, ref.Len(), out.Len())

					for i := range out.Data {
						v := out.Data[i]
						require.Equal(t, device.Round(v, outdt), v,
							"shape %s out %s solution %d element %d is off the output grid", shape, outdt, solidx, i)

						r := float64(ref.Data[i])
						diff := abs64(float64(v) - r)
						bound := atol + rtol*abs64(r) + gridStep(r, outdt)
						assert.LessOrEqual(t, diff, bound,
							"shape %s in %s out %s solution %d element %d", shape, indt, outdt, solidx, i)
					}
				}
			}
		}
	}
}

func abs64(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// gridStep is the spacing of the output dtype grid at v.
func gridStep(v float64, dt common.DType) float64 {
	a := abs64(v)
	if a == 0 || dt == common.F32 {
		return 0
	}
	exp := math.Floor(math.Log2(a))
	switch dt {
	case common.F16:
		return math.Exp2(exp - 10)
	case common.BF16:
		return math.Exp2(exp - 7)
	default:
		return math.Exp2(exp - 3)
	}
}

func TestFindAllSolutionsFiltersByShape(t *testing.T) {
	backend := NewBackend(1)
	catalog := NewCatalog()

	// a single input row never reaches the parallel grain, on any machine
	in := backend.RandTensor(1, 16, common.F32)
	w := backend.RandTensor(8, 16, common.F32)
	assert.Equal(t, []int{solNaive, solUnrolled}, catalog.FindAllSolutions(in, w, common.F32))

	in = backend.RandTensor(1, 48, common.F32)
	w = backend.RandTensor(8, 48, common.F32)
	assert.Equal(t, []int{solNaive, solUnrolled, solBlocked32}, catalog.FindAllSolutions(in, w, common.F32))

	rows := 2 * runtime.NumCPU()
	in = backend.RandTensor(rows, 128, common.F32)
	w = backend.RandTensor(8, 128, common.F32)
	assert.Contains(t, catalog.FindAllSolutions(in, w, common.F32), solParallel)
}

func TestFindAllSolutionsDimMismatch(t *testing.T) {
	backend := NewBackend(1)
	catalog := NewCatalog()

	in := backend.RandTensor(2, 16, common.F32)
	w := backend.RandTensor(8, 32, common.F32)
	assert.Empty(t, catalog.FindAllSolutions(in, w, common.F32))

	_, err := catalog.MatMul(in, w, solNaive, common.F32)
	assert.Error(t, err)
}

func TestMatMulUnknownSolution(t *testing.T) {
	backend := NewBackend(1)
	catalog := NewCatalog()

	in := backend.RandTensor(2, 16, common.F32)
	w := backend.RandTensor(8, 16, common.F32)
	_, err := catalog.MatMul(in, w, 999, common.F32)
	assert.Error(t, err)
}

func TestRandTensorRoundsToDType(t *testing.T) {
	backend := NewBackend(1)

	t16 := backend.RandTensor(4, 4, common.BF16)
	for _, v := range t16.Data {
		// bf16 values keep only the top 16 float32 bits
		assert.Equal(t, v, device.Round(v, common.BF16), "value %f is not on the bf16 grid", v)
	}
}

func TestWallTimer(t *testing.T) {
	backend := NewBackend(1)

	timer := backend.NewTimer()
	timer.Start()
	time.Sleep(time.Millisecond)
	timer.Stop()
	backend.Synchronize()

	assert.Greater(t, timer.ElapsedMs(), 0.0)
}

func TestPerturbNudgesEveryElement(t *testing.T) {
	backend := NewBackend(1)
	blob := backend.Ones(8)
	backend.Perturb(blob)
	backend.Perturb(blob)

	for _, v := range blob.Data {
		assert.InDelta(t, 1.00002, v, 1e-6)
	}
}
