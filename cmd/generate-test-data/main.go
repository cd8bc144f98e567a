package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/MeKo-Tech/isoline/internal/contour"
	"github.com/MeKo-Tech/isoline/internal/pipeline"
	"github.com/MeKo-Tech/isoline/internal/raster"
	"github.com/MeKo-Tech/isoline/internal/testutil"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	var (
		generateRasters  = flag.Bool("rasters", true, "Generate synthetic rasters")
		generateFixtures = flag.Bool("fixtures", true, "Generate expected-contour fixtures")
		interval         = flag.Float64("interval", 1, "Contour interval recorded in fixtures")
		verbose          = flag.Bool("v", false, "Verbose output")
		help             = flag.Bool("h", false, "Show help")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Generate test rasters and fixtures for isoline.\n\n")
		fmt.Fprintf(os.Stderr, "OPTIONS:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEXAMPLES:\n")
		fmt.Fprintf(os.Stderr, "  %s                   # Generate all test data\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -fixtures=false   # Generate only rasters\n", os.Args[0])
	}

	flag.Parse()

	if *help {
		flag.Usage()
		return
	}

	root, err := testutil.GetProjectRoot()
	if err != nil {
		slog.Error("Failed to find project root", "error", err)
		os.Exit(1)
	}
	if *verbose {
		slog.Info("Project root", "path", root)
	}
	if err := os.Chdir(root); err != nil {
		slog.Error("Failed to change to project root", "error", err)
		os.Exit(1)
	}

	rasterDir := filepath.Join("testdata", "rasters")
	fixturesDir := filepath.Join("testdata", "fixtures")
	samples := testutil.SampleRasters()
	names := make([]string, 0, len(samples))
	for name := range samples {
		names = append(names, name)
	}
	slices.Sort(names)

	if *generateRasters {
		for _, name := range names {
			if err := writeRasters(rasterDir, name, samples[name]); err != nil {
				slog.Error("Failed to write raster", "name", name, "error", err)
				os.Exit(1)
			}
			if *verbose {
				slog.Info("Wrote raster", "name", name)
			}
		}
		slog.Info("Generated synthetic rasters", "dir", rasterDir, "count", len(names))
	}

	if *generateFixtures {
		for _, name := range names {
			fixture, err := buildFixture(name, samples[name], *interval)
			if err != nil {
				slog.Error("Failed to contour sample", "name", name, "error", err)
				os.Exit(1)
			}
			if err := saveFixture(fixture, fixturesDir); err != nil {
				slog.Error("Failed to save fixture", "name", name, "error", err)
				os.Exit(1)
			}
		}
		slog.Info("Generated test fixtures", "dir", fixturesDir, "count", len(names))
	}
}

// writeRasters stores g as an ASCII grid and as a 16-bit PNG with
// millimetre resolution.
func writeRasters(dir, name string, g *raster.Grid) error {
	if err := testutil.EnsureDir(dir); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(dir, name+".asc"), func(f *os.File) error {
		return raster.WriteASCIIGrid(f, g)
	}); err != nil {
		return err
	}
	return writeFile(filepath.Join(dir, name+".png"), func(f *os.File) error {
		return raster.EncodePNG16(f, g, 0.001, 0)
	})
}

func writeFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path) //nolint:gosec // G304: test data generation uses controlled paths
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// buildFixture contours g and records what a correct run produces.
func buildFixture(name string, g *raster.Grid, interval float64) (testutil.ContourFixture, error) {
	cfg := pipeline.DefaultConfig()
	cfg.Interval = interval

	var c contour.Collector
	res, err := pipeline.Run(context.Background(), g.Reader(), &c, cfg)
	if err != nil {
		return testutil.ContourFixture{}, err
	}
	closed := 0
	for _, pl := range c.Polylines {
		if pl.Closed() {
			closed++
		}
	}
	return testutil.ContourFixture{
		Name:        name,
		Description: fmt.Sprintf("%dx%d synthetic %s surface", g.Width, g.Height, name),
		InputFile:   filepath.Join("rasters", name+".asc"),
		Interval:    interval,
		Expected: testutil.ExpectedContours{
			Polylines: len(c.Polylines),
			Closed:    closed,
			Levels:    res.Levels,
		},
		Metadata: map[string]any{
			"segments":  res.Stats.Segments,
			"anomalies": res.Stats.Anomalies,
			"peak_open": res.Stats.PeakOpen,
		},
	}, nil
}

func saveFixture(fixture testutil.ContourFixture, dir string) error {
	if err := testutil.EnsureDir(dir); err != nil {
		return err
	}
	data, err := json.MarshalIndent(fixture, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, fixture.Name+".json"), data, 0o600)
}
