package main

import (
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestPlotter(t *testing.T) {
	log.SetLevel(log.DebugLevel)

	dir := t.TempDir()
	tunedFile := filepath.Join(dir, "tuned.csv")
	csv := "M,N,K,solidx,soltimems,indtype,outdtype\n" +
		"5120,512,5120,3,2.1,f8,f16\n" +
		"15360,1,5120,1,0.8,f8,f16\n" +
		"128,1,256,0,0,f8,f16\n"
	require.NoError(t, os.WriteFile(tunedFile, []byte(csv), 0644))

	entries := parseTunedFile(tunedFile)
	log.Debugf("Obtained %d entries.", len(entries))
	require.Equal(t, 3, len(entries))

	// the sentinel row is skipped when plotting
	require.Equal(t, 2, len(getXY(entries)))

	plotFig(filepath.Join(dir, "figs"), entries)
	_, err := os.Stat(filepath.Join(dir, "figs", "tuned_latency.png"))
	require.NoError(t, err)
}
