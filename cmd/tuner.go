package main

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/amd-hhashemi/gemmtune/pkg/benchmark"
	"github.com/amd-hhashemi/gemmtune/pkg/common"
	"github.com/amd-hhashemi/gemmtune/pkg/device/host"
	"github.com/amd-hhashemi/gemmtune/pkg/shapes"
	"github.com/amd-hhashemi/gemmtune/pkg/tuner"
)

var (
	modelDir  = flag.String("model_dir", envOrStr("GTUNE_MODEL", ""), "Location of the model directory holding config.json")
	tunedFile = flag.String("tuned_file", envOrStr("GTUNE_TUNED", "tuned.csv"), "Output file for tuned GEMM solutions")
	inputFile = flag.String("input_file", envOrStr("GTUNE_INPUT", ""), "CSV of M,N,K shapes to tune, mutually exclusive with model_dir")
	tp        = flag.Int("tp", envOrInt("GTUNE_TP", 1), "Tensor parallelism degree")
	indtype   = flag.String("indtype", "f8", "Input dtype: f32 f16 bf16 f8")
	outdtype  = flag.String("outdtype", "f16", "Output dtype: f32 f16 bf16 f8")
	batchSize = flag.Int("batch_size", envOrInt("GTUNE_BATCH_SIZE", 1), "Batch size to tune for")
	nsets     = flag.String("nsets", "1,512,1024,2048,3072,4096,8192,16384", "Comma-separated N sizes to sweep")
	verbosity = flag.String("verbosity", "info", "Logging verbosity - choose from [info, debug, trace]")
)

func init() {
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{
		TimestampFormat: time.StampMilli,
		FullTimestamp:   true,
	})
	log.SetOutput(os.Stdout)

	switch *verbosity {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "trace":
		log.SetLevel(log.TraceLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
}

func main() {
	in := common.ParseDType(*indtype)
	out := common.ParseDType(*outdtype)

	cfg := benchmark.DefaultConfig()
	backend := host.NewBackend(cfg.Seed)

	session, err := tuner.NewSession(in, out, *tunedFile,
		backend, host.NewCatalog(), host.NewOracle(), cfg)
	if err != nil {
		log.Fatal("Failed to load tuned file: ", err)
	}

	if *inputFile != "" {
		log.Infof("Loading shapes from %s", *inputFile)
		requested, err := shapes.ReadShapeFile(*inputFile)
		if err != nil {
			log.Fatalf("Cannot read %s: %v", *inputFile, err)
		}
		for _, s := range requested {
			session.AddShape(s.M, s.N, s.K)
		}
	} else {
		var mks []shapes.MK
		if *modelDir == "" {
			log.Warn("No model specified, tuning the default Llama-2-13B TP1 set")
			mks = shapes.DefaultMK
			logits := shapes.DefaultLogits()
			session.AddShape(logits.M, logits.N, logits.K)
		} else {
			modelCfg, err := shapes.ReadModelConfig(*modelDir)
			if err != nil {
				log.Fatalf("Cannot read model config from %s: %v", *modelDir, err)
			}
			mks = shapes.DeriveMK(modelCfg, *tp)
			logits := shapes.Logits(modelCfg.Vocab(), *tp, *batchSize, modelCfg.HiddenSize)
			session.AddShape(logits.M, logits.N, logits.K)
		}
		for _, s := range shapes.Sweep(mks, parseIntList(*nsets), *batchSize) {
			session.AddShape(s.M, s.N, s.K)
		}
	}

	if _, err := session.Run(); err != nil {
		log.Fatal("Tuning failed: ", err)
	}
}

func envOrStr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func parseIntList(arg string) []int {
	var out []int
	for _, part := range strings.Split(arg, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			log.Fatalf("Invalid N size %q", part)
		}
		out = append(out, n)
	}
	return out
}
