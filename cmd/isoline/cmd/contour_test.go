package cmd

import (
	"context"
	"encoding/json"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MeKo-Tech/isoline/internal/config"
	"github.com/MeKo-Tech/isoline/internal/contour"
	"github.com/MeKo-Tech/isoline/internal/pipeline"
	"github.com/MeKo-Tech/isoline/internal/raster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func referencePolylines(t *testing.T, g *raster.Grid, cfg pipeline.Config) int {
	t.Helper()
	var c contour.Collector
	_, err := pipeline.Run(context.Background(), g.Reader(), &c, cfg)
	require.NoError(t, err)
	return len(c.Polylines)
}

func TestContourCommandHelp(t *testing.T) {
	output, err := executeCommandAndCaptureOutput(t, rootCmd, []string{"contour", "--help"})
	require.NoError(t, err)
	assert.Contains(t, output, "--interval")
	assert.Contains(t, output, "--fl")
	assert.Contains(t, output, "--overlay")
}

func TestContourCommand_GeoJSONFile(t *testing.T) {
	dir := t.TempDir()
	g := raster.Cone(20, 20, 10)
	in := writeGrid(t, dir, "cone.asc", g)
	out := filepath.Join(dir, "cone.geojson")

	_, err := executeCommandAndCaptureOutput(t, rootCmd, []string{"contour", in, "-i", "2", "-o", out})
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var doc struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Type string `json:"type"`
			} `json:"geometry"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "FeatureCollection", doc.Type)

	cfg := pipeline.DefaultConfig()
	cfg.Interval = 2
	assert.Len(t, doc.Features, referencePolylines(t, g, cfg))
	for _, f := range doc.Features {
		assert.Equal(t, "LineString", f.Geometry.Type)
	}
}

func TestContourCommand_CSVStdout(t *testing.T) {
	dir := t.TempDir()
	in := writeGrid(t, dir, "ramp.asc", raster.Ramp(8, 4, 1))

	output, err := executeCommandAndCaptureOutput(t, rootCmd, []string{"contour", in, "--fl", "2.5,4.5", "-f", "csv"})
	require.NoError(t, err)

	lines := strings.Split(output, "\n")
	require.Len(t, lines, 3, "header and one row per level")
	assert.True(t, strings.HasPrefix(lines[0], "id,elev"), lines[0])
	assert.Contains(t, lines[1], "LINESTRING")
}

func TestContourCommand_Overlay(t *testing.T) {
	dir := t.TempDir()
	in := writeGrid(t, dir, "cone.asc", raster.Cone(16, 12, 8))
	overlay := filepath.Join(dir, "preview.png")

	_, err := executeCommandAndCaptureOutput(t, rootCmd, []string{
		"contour", in, "-f", "text", "-o", filepath.Join(dir, "summary.txt"),
		"--overlay", overlay, "--overlay-scale", "2",
	})
	require.NoError(t, err)

	f, err := os.Open(overlay)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.Width)
	assert.Equal(t, 24, cfg.Height)
}

func TestContourCommand_Errors(t *testing.T) {
	dir := t.TempDir()
	in := writeGrid(t, dir, "flat.asc", raster.Flat(4, 4, 1))

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no args", []string{"contour"}, "accepts 1 arg"},
		{"missing file", []string{"contour", filepath.Join(dir, "nope.asc")}, "failed to open raster"},
		{"unsupported", []string{"contour", filepath.Join(dir, "dem.xyz")}, "unsupported raster format"},
		{"bad format", []string{"contour", in, "-f", "shapefile"}, "invalid format"},
		{"zero interval", []string{"contour", in, "-i", "0"}, "interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, err := executeCommandAndCaptureOutput(t, rootCmd, tt.args)
			require.Error(t, err)
			assert.Contains(t, output+err.Error(), tt.want)
		})
	}
}

func TestConfigToContourSettings(t *testing.T) {
	resetFlags(rootCmd)
	cfg := config.DefaultConfig()
	cfg.Contour.FixedLevels = []float64{1, 2}

	s, err := configToContourSettings(&cfg, contourCmd)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, s.pipeline.FixedLevels)
	assert.Equal(t, "geojson", s.format)

	require.NoError(t, contourCmd.Flags().Set("interval", "5"))
	require.NoError(t, contourCmd.Flags().Set("nodata", "-9999"))
	require.NoError(t, contourCmd.Flags().Set("format", "CSV"))
	s, err = configToContourSettings(&cfg, contourCmd)
	require.NoError(t, err)
	assert.Empty(t, s.pipeline.FixedLevels, "an explicit interval replaces configured levels")
	assert.InDelta(t, 5.0, s.pipeline.Interval, 1e-12)
	assert.True(t, s.pipeline.NoDataSet)
	assert.InDelta(t, -9999.0, s.pipeline.NoData, 1e-12)
	assert.Equal(t, "csv", s.format)

	require.NoError(t, contourCmd.Flags().Set("ignore-nodata", "true"))
	s, err = configToContourSettings(&cfg, contourCmd)
	require.NoError(t, err)
	assert.True(t, s.pipeline.IgnoreNoData)
	assert.False(t, s.pipeline.NoDataSet)
	resetFlags(rootCmd)
}
