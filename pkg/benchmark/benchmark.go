// Package benchmark finds, for one GEMM problem shape, the fastest kernel
// solution that also reproduces the reference result. Timing runs in two
// passes: a cheap coarse pass ranks every enumerated solution, then a precise
// cache-defeating pass times only the shortlisted, correctness-verified ones.
package benchmark

import (
	"math"
	"math/rand"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/amd-hhashemi/gemmtune/pkg/common"
	"github.com/amd-hhashemi/gemmtune/pkg/device"
)

// Config carries the benchmarking protocol constants.
type Config struct {
	// TopN bounds how many coarse-pass leaders advance to the correctness
	// filter and the precise pass.
	TopN int

	// PoolSize is the number of distinct weight tensors rotated through the
	// precise pass, one per measured iteration, to force a fresh memory
	// fetch instead of re-timing a cache-resident operand.
	PoolSize int

	CoarseColdIters  int
	CoarseIters      int
	PreciseColdIters int
	PreciseIters     int

	// WarmupIters perturbations of the eviction blob run between passes.
	WarmupIters int
	// BlobElems is the eviction blob length in float32 elements.
	BlobElems int

	Atol float64
	Rtol float64

	// Seed drives the weight-pool rotation so measured timings are
	// reproducible across runs.
	Seed int64
}

func DefaultConfig() Config {
	return Config{
		TopN:             20,
		PoolSize:         37,
		CoarseColdIters:  2,
		CoarseIters:      2,
		PreciseColdIters: 20,
		PreciseIters:     20,
		WarmupIters:      500,
		BlobElems:        128 * 1024 * 1024,
		Atol:             1,
		Rtol:             1e-5,
		Seed:             42,
	}
}

// Result is the winning solution for one shape.
type Result struct {
	Solidx int
	TimeMs float64
}

// NoSolution is returned when nothing enumerated, or nothing enumerated
// passed the correctness check. Solution index 0 is never a real catalog
// entry.
var NoSolution = Result{Solidx: 0, TimeMs: 0}

type sample struct {
	solidx int
	timeMs float64
}

// Bench drives the protocol for one (shape, dtype pair). All per-shape
// device allocations happen once, in New.
type Bench struct {
	shape    common.Shape
	indtype  common.DType
	outdtype common.DType
	cfg      Config

	backend device.Backend
	catalog device.Catalog
	oracle  device.Oracle

	inp     *device.Tensor   // (N, K) activation operand, reused every call
	weights *device.Tensor   // (M, K) weight operand for coarse and verify
	pool    []*device.Tensor // rotation pool for the precise pass
	blob    *device.Tensor   // eviction buffer perturbed between passes

	rng *rand.Rand
}

func New(shape common.Shape, indtype, outdtype common.DType,
	backend device.Backend, catalog device.Catalog, oracle device.Oracle, cfg Config) *Bench {
	b := &Bench{
		shape:    shape,
		indtype:  indtype,
		outdtype: outdtype,
		cfg:      cfg,
		backend:  backend,
		catalog:  catalog,
		oracle:   oracle,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
	}

	b.inp = backend.RandTensor(shape.N, shape.K, indtype)
	b.weights = backend.RandTensor(shape.M, shape.K, indtype)
	b.pool = make([]*device.Tensor, cfg.PoolSize)
	for i := range b.pool {
		b.pool[i] = backend.RandTensor(shape.M, shape.K, indtype)
	}
	b.blob = backend.Ones(cfg.BlobElems)

	return b
}

// FindFastestVerifiedSolution runs the full protocol. A shape with no
// enumerated or no verified solution yields NoSolution and a nil error; only
// a kernel invocation failure during timing is an error, and that one is left
// to the caller to treat as fatal.
func (b *Bench) FindFastestVerifiedSolution() (Result, error) {
	sols := b.catalog.FindAllSolutions(b.inp, b.weights, b.outdtype)
	log.Infof("shape %s: %d candidate solutions", b.shape, len(sols))
	if len(sols) == 0 {
		log.Warnf("shape %s: no solutions found", b.shape)
		return NoSolution, nil
	}

	b.warmup()
	coarse, err := b.timeAll(sols, b.cfg.CoarseColdIters, b.cfg.CoarseIters, false)
	if err != nil {
		return Result{}, err
	}
	if len(coarse) > b.cfg.TopN {
		coarse = coarse[:b.cfg.TopN]
	}

	verified := b.filterVerified(coarse)
	if len(verified) == 0 {
		log.Warnf("shape %s: no solution passed the reference check", b.shape)
		return NoSolution, nil
	}

	b.warmup()
	precise, err := b.timeAll(verified, b.cfg.PreciseColdIters, b.cfg.PreciseIters, true)
	if err != nil {
		return Result{}, err
	}

	best := precise[0]
	log.Infof("shape %s: fastest solution %d at %.4f ms", b.shape, best.solidx, best.timeMs)
	return Result{Solidx: best.solidx, TimeMs: best.timeMs}, nil
}

// timeAll times every listed solution and returns the samples sorted
// ascending by elapsed time.
func (b *Bench) timeAll(sols []int, coldIters, measIters int, rotate bool) ([]sample, error) {
	samples := make([]sample, 0, len(sols))
	for _, solidx := range sols {
		t, err := b.timeSolution(solidx, coldIters, measIters, rotate)
		if err != nil {
			return nil, err
		}
		log.Debugf("shape %s: solution %d took %.4f ms", b.shape, solidx, t)
		samples = append(samples, sample{solidx: solidx, timeMs: t})
	}
	sort.Slice(samples, func(i, j int) bool {
		return samples[i].timeMs < samples[j].timeMs
	})
	return samples, nil
}

// timeSolution measures the average per-iteration latency of one solution.
// The coarse pass reuses the same weight tensor every iteration, which keeps
// it cache resident; that is fine for relative ranking. The precise pass
// rotates the pool so every iteration pays the real weight fetch.
func (b *Bench) timeSolution(solidx, coldIters, measIters int, rotate bool) (float64, error) {
	for i := 0; i < coldIters; i++ {
		if _, err := b.catalog.MatMul(b.inp, b.weights, solidx, b.outdtype); err != nil {
			return 0, err
		}
	}

	timer := b.backend.NewTimer()
	timer.Start()
	for i := 0; i < measIters; i++ {
		w := b.weights
		if rotate {
			w = b.pool[b.rng.Intn(len(b.pool))]
		}
		if _, err := b.catalog.MatMul(b.inp, w, solidx, b.outdtype); err != nil {
			return 0, err
		}
	}
	timer.Stop()
	b.backend.Synchronize()

	return timer.ElapsedMs() / float64(measIters), nil
}

// filterVerified keeps the shortlisted solutions whose output matches the
// oracle. A failing or erroring candidate is logged and dropped, never fatal.
func (b *Bench) filterVerified(shortlist []sample) []int {
	ref := b.oracle.Reference(b.inp, b.weights, b.outdtype)

	var kept []int
	for _, s := range shortlist {
		out, err := b.catalog.MatMul(b.inp, b.weights, s.solidx, b.outdtype)
		if err != nil {
			log.Warnf("shape %s: solution %d failed to execute: %v", b.shape, s.solidx, err)
			continue
		}
		b.backend.Synchronize()
		if !allClose(out, ref, b.cfg.Atol, b.cfg.Rtol) {
			log.Warnf("shape %s: solution %d failed the reference check", b.shape, s.solidx)
			continue
		}
		kept = append(kept, s.solidx)
	}
	return kept
}

// warmup perturbs the eviction blob to shift device cache state between the
// coarse and precise passes.
func (b *Bench) warmup() {
	for i := 0; i < b.cfg.WarmupIters; i++ {
		b.backend.Perturb(b.blob)
	}
}

// allClose is the elementwise |a-ref| <= atol + rtol*|ref| comparison the
// reference oracle is checked with.
func allClose(out, ref *device.Tensor, atol, rtol float64) bool {
	if out.Len() != ref.Len() {
		return false
	}
	for i, v := range out.Data {
		r := float64(ref.Data[i])
		if math.Abs(float64(v)-r) > atol+rtol*math.Abs(r) {
			return false
		}
	}
	return true
}
