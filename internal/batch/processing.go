package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MeKo-Tech/isoline/internal/contour"
	"github.com/MeKo-Tech/isoline/internal/output"
	"github.com/MeKo-Tech/isoline/internal/pipeline"
	"github.com/MeKo-Tech/isoline/internal/raster"
	"github.com/MeKo-Tech/isoline/internal/render"
)

// extensionFor returns the file extension used for per-file output.
func extensionFor(format string) string {
	switch strings.ToLower(format) {
	case output.FormatCSV:
		return ".csv"
	case output.FormatYAML, "yml":
		return ".yaml"
	case output.FormatText, "txt":
		return ".txt"
	default:
		return ".geojson"
	}
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// outputPathFor places the contours of path in dir, keeping the base name.
func outputPathFor(dir, path, format string) string {
	return filepath.Join(dir, stem(path)+extensionFor(format))
}

// processSingleFile contours one raster. Errors are reported in the result.
func processSingleFile(ctx context.Context, pl *pipeline.Pipeline, path string, config *Config) FileResult {
	start := time.Now()
	fr := FileResult{Path: path}
	fail := func(err error) FileResult {
		fr.Err = err
		fr.Error = err.Error()
		fr.Duration = time.Since(start)
		return fr
	}

	opened, err := raster.Open(path, config.Image)
	if err != nil {
		return fail(err)
	}
	defer func() { _ = opened.Close() }()

	src := opened
	var (
		grid      *raster.Grid
		collector *contour.Collector
	)
	if config.OverlayDir != "" {
		if grid, err = raster.ReadAll(opened); err != nil {
			return fail(fmt.Errorf("read %s: %w", path, err))
		}
		src = grid.Reader()
		collector = &contour.Collector{}
	}

	var (
		writer  output.Writer
		outFile *os.File
	)
	if config.OutputDir != "" {
		if err := os.MkdirAll(config.OutputDir, 0o750); err != nil {
			return fail(fmt.Errorf("create output dir: %w", err))
		}
		fr.OutputPath = outputPathFor(config.OutputDir, path, config.Format)
		outFile, err = os.Create(fr.OutputPath) //nolint:gosec // G304: output dir comes from user config
		if err != nil {
			return fail(fmt.Errorf("create output: %w", err))
		}
		defer func() { _ = outFile.Close() }()

		opts := config.Output
		opts.Transform = src.GeoTransform()
		if writer, err = output.New(config.Format, outFile, opts); err != nil {
			return fail(err)
		}
	}

	var sinks []contour.Sink
	if writer != nil {
		sinks = append(sinks, writer)
	}
	if collector != nil {
		sinks = append(sinks, collector)
	}
	counter := &output.Counter{Next: output.Tee(sinks...)}
	res, err := pl.Run(ctx, src, counter)
	if writer != nil {
		if cerr := writer.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("finish %s: %w", fr.OutputPath, cerr)
		}
	}
	if err != nil {
		return fail(err)
	}

	if grid != nil {
		if err := saveOverlay(grid, collector.Polylines, path, config); err != nil {
			return fail(err)
		}
	}

	fr.Run = res
	fr.Width, fr.Height = res.Width, res.Height
	fr.Polylines = counter.Polylines
	fr.Vertices = counter.Vertices
	fr.Anomalies = res.Stats.Anomalies
	fr.Levels = counter.Levels()
	fr.Duration = time.Since(start)
	return fr
}

// saveOverlay renders the contours over the raster into OverlayDir.
func saveOverlay(grid *raster.Grid, lines []contour.Polyline, path string, config *Config) error {
	img, err := render.Overlay(grid, lines, config.Overlay)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(config.OverlayDir, 0o750); err != nil {
		return fmt.Errorf("create overlay dir: %w", err)
	}
	return render.Save(img, filepath.Join(config.OverlayDir, stem(path)+"_overlay.png"))
}
