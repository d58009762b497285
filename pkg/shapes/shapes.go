// Package shapes derives the set of GEMM problem shapes a tuning session
// should cover, either from a transformer model configuration, from an
// explicit shape file, or from a built-in default sweep.
package shapes

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/gocarina/gocsv"
	"github.com/goccy/go-json"

	"github.com/amd-hhashemi/gemmtune/pkg/common"
)

// ModelConfig is the subset of a transformer config.json the shape derivation
// needs.
type ModelConfig struct {
	HiddenSize        int `json:"hidden_size"`
	IntermediateSize  int `json:"intermediate_size"`
	NumAttentionHeads int `json:"num_attention_heads"`
	NumKeyValueHeads  int `json:"num_key_value_heads"`
	VocabSize         int `json:"vocab_size"`
}

// DefaultVocabSize is assumed when a model config omits vocab_size.
const DefaultVocabSize = 32000

func (c ModelConfig) Vocab() int {
	if c.VocabSize > 0 {
		return c.VocabSize
	}
	return DefaultVocabSize
}

// ReadModelConfig reads <dir>/config.json.
func ReadModelConfig(modelDir string) (ModelConfig, error) {
	raw, err := os.ReadFile(filepath.Join(modelDir, "config.json"))
	if err != nil {
		return ModelConfig{}, err
	}

	var cfg ModelConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return ModelConfig{}, err
	}
	return cfg, nil
}

// MK is one weight-matrix shape; the N dimension comes from the batch sweep.
type MK struct {
	M int
	K int
}

// DeriveMK returns the four canonical projection shapes of one decoder layer
// sharded across tp devices: fused QKV, attention output, fused gate+up, and
// down projection.
func DeriveMK(cfg ModelConfig, tp int) []MK {
	headDim := cfg.HiddenSize / cfg.NumAttentionHeads
	return []MK{
		{M: (cfg.NumAttentionHeads + 2*cfg.NumKeyValueHeads) * headDim / tp, K: cfg.HiddenSize},
		{M: cfg.HiddenSize, K: cfg.HiddenSize / tp},
		{M: cfg.IntermediateSize * 2 / tp, K: cfg.HiddenSize},
		{M: cfg.HiddenSize, K: cfg.IntermediateSize / tp},
	}
}

// Logits is the vocabulary projection GEMM, added once per session.
func Logits(vocabSize, tp, batchSize, hiddenSize int) common.Shape {
	return common.Shape{M: vocabSize / tp, N: batchSize, K: hiddenSize}
}

// DefaultMK is the Llama-2-13B TP1 layer set, used when neither a model
// directory nor a shape file is given.
var DefaultMK = []MK{
	{M: 15360, K: 5120},
	{M: 5120, K: 5120},
	{M: 27648, K: 5120},
	{M: 5120, K: 13824},
}

// DefaultLogits matches DefaultMK.
func DefaultLogits() common.Shape {
	return common.Shape{M: 32000, N: 1, K: 5120}
}

// Sweep crosses the MK pairs with every batch-scaled N size, ascending.
func Sweep(mks []MK, nsets []int, batchSize int) []common.Shape {
	ns := make([]int, len(nsets))
	for i, n := range nsets {
		ns[i] = n * batchSize
	}
	sort.Ints(ns)

	var out []common.Shape
	for _, n := range ns {
		for _, mk := range mks {
			out = append(out, common.Shape{M: mk.M, N: n, K: mk.K})
		}
	}
	return out
}

type shapeRecord struct {
	M int `csv:"M"`
	N int `csv:"N"`
	K int `csv:"K"`
}

// ReadShapeFile reads an explicit M,N,K shape list. A missing file is the
// caller's configuration error.
func ReadShapeFile(path string) ([]common.Shape, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []shapeRecord
	if err := gocsv.UnmarshalFile(f, &records); err != nil {
		return nil, err
	}

	out := make([]common.Shape, len(records))
	for i, r := range records {
		out[i] = common.Shape{M: r.M, N: r.N, K: r.K}
	}
	return out, nil
}
