package batch

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/MeKo-Tech/isoline/internal/output"
	"github.com/MeKo-Tech/isoline/internal/pipeline"
	"github.com/MeKo-Tech/isoline/internal/raster"
	"github.com/MeKo-Tech/isoline/internal/render"
)

// Config holds all configuration for batch processing.
type Config struct {
	// Contour settings
	Interval    float64
	Offset      float64
	FixedLevels []float64
	NoData      float64
	NoDataSet   bool
	MaxPoints   int

	// Input decoding for image rasters
	Image raster.ImageOptions

	// Per-file output. Nothing is written when OutputDir is empty.
	Format     string
	OutputDir  string
	Output     output.Options
	OverlayDir string
	Overlay    render.Options

	// Parallel processing settings
	Workers         int
	MemoryLimitStr  string
	ContinueOnError bool

	// File discovery settings
	Recursive       bool
	IncludePatterns []string
	ExcludePatterns []string

	// Progress settings
	ShowProgress     bool
	Quiet            bool
	ProgressInterval time.Duration
}

// DefaultConfig returns a batch configuration with unit interval GeoJSON output.
func DefaultConfig() *Config {
	return &Config{
		Interval:         1,
		Image:            raster.DefaultImageOptions(),
		Format:           output.FormatGeoJSON,
		Output:           output.DefaultOptions(),
		Overlay:          render.DefaultOptions(),
		Workers:          pipeline.DefaultParallelConfig().MaxWorkers,
		ProgressInterval: 100 * time.Millisecond,
	}
}

// Validate checks the output format and memory limit.
func (c *Config) Validate() error {
	if !output.IsValidFormat(c.Format) {
		return fmt.Errorf("%w: %q", output.ErrUnknownFormat, c.Format)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	if c.MemoryLimitStr != "" {
		if _, err := parseMemoryLimit(c.MemoryLimitStr); err != nil {
			return fmt.Errorf("invalid memory limit %q: %w", c.MemoryLimitStr, err)
		}
	}
	return nil
}

// FileResult is the outcome of contouring one raster file.
type FileResult struct {
	Path       string              `json:"file"`
	OutputPath string              `json:"output,omitempty"`
	Width      int                 `json:"width"`
	Height     int                 `json:"height"`
	Polylines  int                 `json:"polylines"`
	Vertices   int                 `json:"vertices"`
	Anomalies  int                 `json:"anomalies"`
	Levels     []output.LevelCount `json:"levels,omitempty"`
	Duration   time.Duration       `json:"duration_ns"`
	Err        error               `json:"-"`
	Error      string              `json:"error,omitempty"`
	Run        *pipeline.Result    `json:"-"`
}

// Result holds the result of batch processing.
type Result struct {
	Files       []FileResult
	Duration    time.Duration
	WorkerCount int
}

// Failed returns the number of files that could not be processed.
func (r *Result) Failed() int {
	n := 0
	for _, f := range r.Files {
		if f.Err != nil {
			n++
		}
	}
	return n
}

// Err joins the errors of all failed files.
func (r *Result) Err() error {
	var errs []error
	for _, f := range r.Files {
		if f.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.Path, f.Err))
		}
	}
	return errors.Join(errs...)
}

// FormatResults formats the batch summary in the specified format.
func (r *Result) FormatResults(format string) (string, error) {
	return formatBatchResults(r, format)
}

// SaveResults writes the formatted summary to outputFile, or to w when
// outputFile is empty.
func (r *Result) SaveResults(w io.Writer, format, outputFile string, quiet bool) error {
	out, err := r.FormatResults(format)
	if err != nil {
		return fmt.Errorf("failed to format results: %w", err)
	}

	if outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(out), 0o600); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		if !quiet {
			_, _ = fmt.Fprintf(w, "Results written to %s\n", outputFile)
		}
		return nil
	}
	_, err = fmt.Fprint(w, out)
	return err
}

// Stats summarizes throughput over the batch.
func (r *Result) Stats() pipeline.ParallelStats {
	errs := make([]error, len(r.Files))
	for i, f := range r.Files {
		errs[i] = f.Err
	}
	return pipeline.CalculateParallelStats(errs, r.Duration, r.WorkerCount)
}

// PrintStats prints processing statistics.
func (r *Result) PrintStats(w io.Writer, quiet bool) {
	if quiet {
		return
	}
	stats := r.Stats()
	_, _ = fmt.Fprintf(w, "\nProcessing Statistics:\n")
	_, _ = fmt.Fprintf(w, "  Total files: %d\n", stats.TotalJobs)
	_, _ = fmt.Fprintf(w, "  Processed: %d\n", stats.Succeeded)
	_, _ = fmt.Fprintf(w, "  Failed: %d\n", stats.Failed)
	_, _ = fmt.Fprintf(w, "  Workers: %d\n", stats.WorkerCount)
	_, _ = fmt.Fprintf(w, "  Duration: %v\n", stats.TotalDuration.Round(time.Millisecond))
	_, _ = fmt.Fprintf(w, "  Avg per file: %v\n", stats.AveragePerJob.Round(time.Millisecond))
	_, _ = fmt.Fprintf(w, "  Throughput: %.1f files/sec\n", stats.ThroughputPerSec)
}
