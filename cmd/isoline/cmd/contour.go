package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/MeKo-Tech/isoline/internal/config"
	"github.com/MeKo-Tech/isoline/internal/contour"
	"github.com/MeKo-Tech/isoline/internal/output"
	"github.com/MeKo-Tech/isoline/internal/pipeline"
	"github.com/MeKo-Tech/isoline/internal/raster"
	"github.com/MeKo-Tech/isoline/internal/render"
	"github.com/spf13/cobra"
)

// contourCmd traces the contours of a single raster.
var contourCmd = &cobra.Command{
	Use:   "contour <raster>",
	Short: "Trace contour lines through a single raster",
	Long: `Trace contour lines through an elevation raster and write them as
GeoJSON, CSV, YAML or a per-level text summary.

Supported inputs: ESRI ASCII grids (.asc, .grd) and gray or colour images
(.png, .tif, .tiff, .bmp, .jpg, .jpeg). 16-bit PNG and TIFF samples are read
at full precision and mapped to elevations with --scale and --elev-offset.

Levels are either every --interval units shifted by --offset, or the explicit
list given with --fl.

Examples:
  isoline contour dem.asc
  isoline contour dem.asc -i 5 --offset 2.5 -o contours.geojson
  isoline contour dem.png --fl 100,250,500 -f csv
  isoline contour dem.asc --nodata -9999 --overlay preview.png`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runContourCommand,
}

// contourSettings collects the flags of one contour run after the
// configuration defaults have been applied.
type contourSettings struct {
	pipeline pipeline.Config
	image    raster.ImageOptions
	output   output.Options
	render   render.Options
	format   string
	outFile  string
	overlay  string
	progress bool
	quiet    bool
}

// configToContourSettings merges the centralized configuration with the
// flags the user changed explicitly.
func configToContourSettings(cfg *config.Config, cmd *cobra.Command) (contourSettings, error) {
	s := contourSettings{
		pipeline: cfg.ToPipelineConfig(),
		image:    cfg.ToImageOptions(),
		output:   cfg.ToOutputOptions(),
		render:   cfg.ToRenderOptions(),
		format:   cfg.Output.Format,
		outFile:  cfg.Output.File,
		overlay:  cfg.Output.OverlayFile,
	}
	flags := cmd.Flags()

	if flags.Changed("interval") {
		s.pipeline.Interval, _ = flags.GetFloat64("interval")
		s.pipeline.FixedLevels = nil
	}
	if flags.Changed("offset") {
		s.pipeline.Offset, _ = flags.GetFloat64("offset")
	}
	if flags.Changed("fl") {
		s.pipeline.FixedLevels, _ = flags.GetFloat64Slice("fl")
	}
	if flags.Changed("nodata") {
		s.pipeline.NoData, _ = flags.GetFloat64("nodata")
		s.pipeline.NoDataSet = true
	}
	if ignore, _ := flags.GetBool("ignore-nodata"); ignore {
		s.pipeline.IgnoreNoData = true
		s.pipeline.NoDataSet = false
	}
	if flags.Changed("max-points") {
		s.pipeline.MaxPoints, _ = flags.GetInt("max-points")
	}

	if flags.Changed("scale") {
		s.image.Scale, _ = flags.GetFloat64("scale")
	}
	if flags.Changed("elev-offset") {
		s.image.Offset, _ = flags.GetFloat64("elev-offset")
	}
	if flags.Changed("resample") {
		s.image.Resample, _ = flags.GetFloat64("resample")
	}

	if flags.Changed("format") {
		s.format, _ = flags.GetString("format")
	}
	if s.format == "" {
		s.format = output.FormatGeoJSON
	}
	s.format = strings.ToLower(s.format)
	if !output.IsValidFormat(s.format) {
		return s, fmt.Errorf("invalid format %q (must be one of: %s)", s.format, strings.Join(output.Formats(), ", "))
	}
	if flags.Changed("precision") {
		s.output.Precision, _ = flags.GetInt("precision")
	}
	if flags.Changed("min-points") {
		s.output.MinPoints, _ = flags.GetInt("min-points")
	}
	if flags.Changed("output") {
		s.outFile, _ = flags.GetString("output")
	}

	if flags.Changed("overlay") {
		s.overlay, _ = flags.GetString("overlay")
	}
	if flags.Changed("overlay-scale") {
		s.render.Scale, _ = flags.GetInt("overlay-scale")
	}
	if flags.Changed("overlay-labels") {
		s.render.Labels, _ = flags.GetBool("overlay-labels")
	}

	s.progress, _ = flags.GetBool("progress")
	s.quiet, _ = flags.GetBool("quiet")

	if err := s.pipeline.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

func runContourCommand(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	settings, err := configToContourSettings(cfg, cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, counter, err := contourFile(ctx, args[0], settings, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	slog.Info("Contouring completed",
		"file", args[0],
		"rows", res.Rows,
		"levels", len(res.Levels),
		"polylines", counter.Polylines,
		"vertices", counter.Vertices,
		"anomalies", res.Stats.Anomalies,
		"duration", res.Duration)

	if !settings.quiet && settings.outFile != "" {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d polylines to %s\n", counter.Polylines, settings.outFile)
	}
	return nil
}

// contourFile runs one raster through the pipeline into the configured
// writer and, when requested, renders the overlay afterwards.
func contourFile(ctx context.Context, path string, s contourSettings, stdout, stderr io.Writer) (*pipeline.Result, *output.Counter, error) {
	builder := pipeline.NewBuilder().WithLogger(slog.Default())
	cfg := s.pipeline
	if s.progress {
		cfg.Progress = pipeline.NewConsoleProgressCallback(stderr, "Contouring").WithUnit("rows")
		cfg.ProgressEvery = max(cfg.ProgressEvery, 1)
	}
	builder = applyConfig(builder, cfg)
	pl, err := builder.Build()
	if err != nil {
		return nil, nil, err
	}

	opened, err := raster.Open(path, s.image)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open raster: %w", err)
	}
	defer func() { _ = opened.Close() }()

	src := opened
	var (
		grid      *raster.Grid
		collector *contour.Collector
	)
	if s.overlay != "" {
		if grid, err = raster.ReadAll(opened); err != nil {
			return nil, nil, fmt.Errorf("failed to read raster: %w", err)
		}
		src = grid.Reader()
		collector = &contour.Collector{}
	}

	dest := stdout
	if s.outFile != "" {
		f, err := os.Create(s.outFile) //nolint:gosec // G304: output path comes from the user
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create output file: %w", err)
		}
		defer func() { _ = f.Close() }()
		dest = f
	}

	opts := s.output
	opts.Transform = src.GeoTransform()
	writer, err := output.New(s.format, dest, opts)
	if err != nil {
		return nil, nil, err
	}

	sinks := []contour.Sink{writer}
	if collector != nil {
		sinks = append(sinks, collector)
	}
	counter := &output.Counter{Next: output.Tee(sinks...)}

	res, err := pl.Run(ctx, src, counter)
	if cerr := writer.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to finish output: %w", cerr)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("contouring failed: %w", err)
	}

	if grid != nil {
		img, err := render.Overlay(grid, collector.Polylines, s.render)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to render overlay: %w", err)
		}
		if err := render.Save(img, s.overlay); err != nil {
			return nil, nil, fmt.Errorf("failed to save overlay: %w", err)
		}
		slog.Debug("Overlay written", "path", s.overlay)
	}
	return res, counter, nil
}

// applyConfig feeds a resolved pipeline configuration through the builder.
func applyConfig(b *pipeline.Builder, cfg pipeline.Config) *pipeline.Builder {
	b = b.WithInterval(cfg.Interval, cfg.Offset).WithMaxPoints(cfg.MaxPoints)
	if len(cfg.FixedLevels) > 0 {
		b = b.WithFixedLevels(cfg.FixedLevels...)
	}
	switch {
	case cfg.IgnoreNoData:
		b = b.WithoutNoData()
	case cfg.NoDataSet:
		b = b.WithNoData(cfg.NoData)
	}
	if cfg.Progress != nil {
		b = b.WithProgressCallback(cfg.Progress, cfg.ProgressEvery)
	}
	return b
}

func init() {
	rootCmd.AddCommand(contourCmd)

	// Level selection
	contourCmd.Flags().Float64P("interval", "i", 10, "contour interval")
	contourCmd.Flags().Float64("offset", 0, "offset added to every interval level")
	contourCmd.Flags().Float64Slice("fl", nil, "explicit contour levels (overrides --interval)")
	contourCmd.Flags().Float64("nodata", 0, "treat this value as missing data")
	contourCmd.Flags().Bool("ignore-nodata", false, "ignore the nodata value declared by the raster")
	contourCmd.Flags().Int("max-points", 0, "maximum vertices in one polyline (0 = unlimited)")

	// Image decoding
	contourCmd.Flags().Float64("scale", 1, "elevation per image sample unit")
	contourCmd.Flags().Float64("elev-offset", 0, "elevation of image sample zero")
	contourCmd.Flags().Float64("resample", 0, "resample image rasters by this factor (0 = off)")

	// Output
	contourCmd.Flags().StringP("format", "f", output.FormatGeoJSON, "output format: geojson, csv, yaml, text")
	contourCmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	contourCmd.Flags().Int("precision", 6, "decimal places kept in coordinates (-1 = full)")
	contourCmd.Flags().Int("min-points", 0, "drop polylines with fewer vertices")
	contourCmd.Flags().String("overlay", "", "write a PNG overlay of the contours to this path")
	contourCmd.Flags().Int("overlay-scale", 4, "overlay pixels per raster cell")
	contourCmd.Flags().Bool("overlay-labels", true, "draw level labels on the overlay")

	contourCmd.Flags().Bool("progress", false, "show row progress on stderr")
	contourCmd.Flags().BoolP("quiet", "q", false, "suppress informational output")
}
