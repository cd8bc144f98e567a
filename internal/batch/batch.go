// Package batch contours many raster files concurrently, one generator per
// file, and summarizes the outcome.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"github.com/MeKo-Tech/isoline/internal/pipeline"
)

// ProcessBatch discovers raster files under paths and contours each of them.
// Unless ContinueOnError is set, the first failure cancels the remaining
// files and is returned.
func ProcessBatch(ctx context.Context, paths []string, config *Config) (*Result, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	files, err := discoverRasterFiles(paths, config.Recursive, config.IncludePatterns, config.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("failed to discover raster files: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("no raster files found")
	}

	pl, err := buildPipeline(config)
	if err != nil {
		return nil, fmt.Errorf("failed to build contour pipeline: %w", err)
	}

	if config.MemoryLimitStr != "" {
		limit, _ := parseMemoryLimit(config.MemoryLimitStr)
		prev := debug.SetMemoryLimit(int64(min(limit, 1<<62)))
		defer debug.SetMemoryLimit(prev)
	}

	var progress pipeline.ProgressCallback
	if config.ShowProgress && !config.Quiet {
		progress = pipeline.NewConsoleProgressCallback(os.Stderr, "Processing: ").
			WithUnit("file").
			WithUpdateInterval(config.ProgressInterval)
	}

	workers := config.Workers
	if workers <= 0 {
		workers = pipeline.DefaultParallelConfig().MaxWorkers
	}
	workers = min(workers, len(files))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]FileResult, len(files))
	start := time.Now()
	_, _ = pipeline.ProcessParallel(runCtx, len(files), pipeline.ParallelConfig{
		MaxWorkers:       workers,
		ProgressCallback: progress,
	}, func(ctx context.Context, i int) error {
		fr := processSingleFile(ctx, pl, files[i], config)
		results[i] = fr
		if fr.Err != nil {
			slog.Warn("contouring failed", "file", files[i], "error", fr.Err)
			if !config.ContinueOnError {
				cancel()
			}
		}
		return fr.Err
	})
	duration := time.Since(start)
	slog.Debug("batch finished", "pipeline", pl.Info(), "profile", pl.Profiler().Snapshot())

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i := range results {
		if results[i].Path == "" {
			results[i] = FileResult{Path: files[i], Err: context.Canceled, Error: "skipped"}
		}
	}

	result := &Result{
		Files:       results,
		Duration:    duration,
		WorkerCount: workers,
	}
	if !config.ContinueOnError {
		if err := firstFailure(results); err != nil {
			return result, fmt.Errorf("batch processing failed: %w", err)
		}
	}
	return result, nil
}

// firstFailure returns the first error not caused by the batch cancelling
// itself, falling back to the first cancellation.
func firstFailure(results []FileResult) error {
	failed := make([]error, len(results))
	cancelled := make([]error, len(results))
	for i, fr := range results {
		switch {
		case fr.Err == nil:
		case errors.Is(fr.Err, context.Canceled):
			cancelled[i] = fmt.Errorf("%s: %w", fr.Path, fr.Err)
		default:
			failed[i] = fmt.Errorf("%s: %w", fr.Path, fr.Err)
		}
	}
	if err := pipeline.FirstError(failed); err != nil {
		return err
	}
	return pipeline.FirstError(cancelled)
}

// Summarize writes the summary of r in format to w followed by statistics.
func Summarize(w io.Writer, r *Result, format string, quiet bool) error {
	if err := r.SaveResults(w, format, "", quiet); err != nil {
		return err
	}
	if format == "text" || format == "" {
		r.PrintStats(w, quiet)
	}
	return nil
}
