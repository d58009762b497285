package main

import (
	"flag"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/amd-hhashemi/gemmtune/pkg/tuner"
)

func main() {
	var (
		inputFile  = flag.String("i", "tuned.csv", "Path to the tuned GEMM solution CSV")
		outputDir  = flag.String("o", "figs", "Path to the directory for output figures")
		debugLevel = flag.String("d", "info", "Debug level: info, debug")
	)
	flag.Parse()
	log.SetOutput(os.Stdout)

	switch *debugLevel {
	case "info":
		log.SetLevel(log.InfoLevel)
	case "debug":
		log.SetLevel(log.DebugLevel)
		log.Debug("Debug mode is enabled")
	}

	entries := parseTunedFile(*inputFile)
	log.Info("The number of tuned shapes is: ", len(entries))

	plotFig(*outputDir, entries)
}

func parseTunedFile(path string) []tuner.TunedEntry {
	f, err := os.Open(path)
	if err != nil {
		log.Fatal("Cannot open the tuned file: ", err)
	}
	defer f.Close()

	var entries []tuner.TunedEntry
	if err := gocsv.UnmarshalFile(f, &entries); err != nil {
		log.Fatal("Cannot parse the tuned file: ", err)
	}
	return entries
}

func plotFig(outputDir string, entries []tuner.TunedEntry) {
	if _, err := os.Stat(outputDir); os.IsNotExist(err) {
		log.Info("Creating the output directory")
		if err := os.Mkdir(outputDir, os.ModePerm); err != nil {
			log.Fatal(err)
		}
	}

	p := plot.New()
	p.Title.Text = "Tuned GEMM latency"
	p.X.Label.Text = "Shape index (session order)"
	p.Y.Label.Text = "Best solution time [ms]"

	if err := plotutil.AddLinePoints(p, "best", getXY(entries)); err != nil {
		log.Fatal(err)
	}

	if err := p.Save(6*vg.Inch, 4*vg.Inch, filepath.Join(outputDir, "tuned_latency.png")); err != nil {
		log.Fatal(err)
	}

	times := make([]float64, 0, len(entries))
	for _, e := range entries {
		log.Debugf("Plotting %dx%dx%d -> %f ms", e.M, e.N, e.K, e.SolTimeMs)
		if e.Solidx != 0 {
			times = append(times, e.SolTimeMs)
		}
	}
	if len(times) > 0 {
		log.Infof("Mean tuned latency is %f ms", stat.Mean(times, nil))
	}
}

func getXY(entries []tuner.TunedEntry) plotter.XYs {
	pts := make(plotter.XYs, 0, len(entries))
	for i, e := range entries {
		if e.Solidx == 0 {
			continue
		}
		pts = append(pts, plotter.XY{X: float64(i), Y: e.SolTimeMs})
	}
	return pts
}
