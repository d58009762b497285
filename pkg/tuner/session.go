// Package tuner manages a tuning sweep across many GEMM shapes and keeps the
// persistent record of the winners.
package tuner

import (
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/amd-hhashemi/gemmtune/pkg/benchmark"
	"github.com/amd-hhashemi/gemmtune/pkg/common"
	"github.com/amd-hhashemi/gemmtune/pkg/device"
)

// Session accumulates the shapes to tune for one fixed dtype pair, runs the
// benchmarker over each, and merges the results into the persisted table.
// Shapes already resolved in the loaded table are skipped, which is what makes
// an interrupted sweep resumable by simply re-running it.
type Session struct {
	id       string
	indtype  common.DType
	outdtype common.DType

	tunedFile string
	loaded    *Table

	pending    []common.Shape
	pendingSet map[common.ShapeKey]struct{}

	backend device.Backend
	catalog device.Catalog
	oracle  device.Oracle
	cfg     benchmark.Config
}

func NewSession(indtype, outdtype common.DType, tunedFile string,
	backend device.Backend, catalog device.Catalog, oracle device.Oracle,
	cfg benchmark.Config) (*Session, error) {
	loaded, err := LoadTable(tunedFile)
	if err != nil {
		return nil, err
	}
	if loaded.Len() > 0 {
		log.Infof("loaded %d tuned entries from %s", loaded.Len(), tunedFile)
	}

	return &Session{
		id:         uuid.New().String(),
		indtype:    indtype,
		outdtype:   outdtype,
		tunedFile:  tunedFile,
		loaded:     loaded,
		pendingSet: map[common.ShapeKey]struct{}{},
		backend:    backend,
		catalog:    catalog,
		oracle:     oracle,
		cfg:        cfg,
	}, nil
}

// AddShape queues (m, n, k) for benchmarking unless the loaded table already
// resolves it or it is already pending. Duplicates are informational skips.
func (s *Session) AddShape(m, n, k int) {
	key := common.ShapeKey{
		Shape:    common.Shape{M: m, N: n, K: k},
		Indtype:  s.indtype,
		Outdtype: s.outdtype,
	}
	if s.loaded.Has(key) {
		log.Infof("found duplicate shape (M:%d, N:%d, K:%d), skipping", m, n, k)
		return
	}
	if _, ok := s.pendingSet[key]; ok {
		log.Infof("shape (M:%d, N:%d, K:%d) already queued, skipping", m, n, k)
		return
	}
	s.pendingSet[key] = struct{}{}
	s.pending = append(s.pending, key.Shape)
}

// Pending returns the shapes still to benchmark, in the order added.
func (s *Session) Pending() []common.Shape {
	return s.pending
}

// Run benchmarks every pending shape sequentially, merges the new entries
// over the loaded table and writes the combined table back in full. Shapes
// with no verified solution are recorded with the sentinel solution index so
// a later run does not redo the search.
func (s *Session) Run() (*Table, error) {
	log.Infof("session %s: benchmarking %d shapes (%s -> %s)",
		s.id, len(s.pending), s.indtype, s.outdtype)

	fresh := make([]TunedEntry, 0, len(s.pending))
	for i, shape := range s.pending {
		log.Infof("session %s: shape %d/%d %s", s.id, i+1, len(s.pending), shape)

		bench := benchmark.New(shape, s.indtype, s.outdtype, s.backend, s.catalog, s.oracle, s.cfg)
		res, err := bench.FindFastestVerifiedSolution()
		if err != nil {
			return nil, err
		}

		fresh = append(fresh, TunedEntry{
			M:         shape.M,
			N:         shape.N,
			K:         shape.K,
			Solidx:    res.Solidx,
			SolTimeMs: res.TimeMs,
			Indtype:   s.indtype.String(),
			Outdtype:  s.outdtype.String(),
		})
	}

	merged := NewTable()
	for _, e := range s.loaded.Entries() {
		merged.Upsert(e)
	}
	for _, e := range fresh {
		merged.Upsert(e)
	}

	if err := merged.Save(s.tunedFile); err != nil {
		return nil, err
	}
	log.Infof("session %s: wrote %d tuned entries to %s", s.id, merged.Len(), s.tunedFile)

	s.logSummary(merged)
	return merged, nil
}

// logSummary reports the merged table and aggregate latency figures over the
// entries that resolved to a real solution.
func (s *Session) logSummary(t *Table) {
	var times []float64
	for _, e := range t.Entries() {
		log.Infof("tuned M:%d N:%d K:%d -> solution %d (%.4f ms, %s -> %s)",
			e.M, e.N, e.K, e.Solidx, e.SolTimeMs, e.Indtype, e.Outdtype)
		if e.Solidx != benchmark.NoSolution.Solidx {
			times = append(times, e.SolTimeMs)
		}
	}
	if len(times) == 0 {
		return
	}
	log.Infof("tuned %d shapes: mean %.4f ms, min %.4f ms, max %.4f ms",
		len(times), stat.Mean(times, nil), floats.Min(times), floats.Max(times))
}
