package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/MeKo-Tech/isoline/internal/batch"
	"github.com/MeKo-Tech/isoline/internal/config"
	"github.com/spf13/cobra"
)

// batchCmd represents the batch command for parallel raster processing.
var batchCmd = &cobra.Command{
	Use:   "batch <paths...>",
	Short: "Contour many rasters in parallel",
	Long: `Contour every raster found under the given files and directories using a
pool of workers, one contour generator per file.

Explicit files are always processed; directories are scanned for the
supported raster extensions and filtered with --include and --exclude.
Per-file contours are written to --output-dir when it is set, and a
summary of the run is printed in --summary-format.

Examples:
  isoline batch a.asc b.asc -i 5
  isoline batch rasters/ --recursive --workers 8 --output-dir out
  isoline batch rasters/ --include "*.png" --summary-format json
  isoline batch rasters/ --overlay-dir previews --memory-limit 2GB`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE:         runBatchCommand,
}

// configToBatchConfig maps centralized configuration to batch.Config.
// Flags changed on the command line override the configuration.
func configToBatchConfig(cfg *config.Config, cmd *cobra.Command) *batch.Config {
	batchConfig := cfg.ToBatchConfig()
	flags := cmd.Flags()

	// Level selection
	if flags.Changed("interval") {
		batchConfig.Interval, _ = flags.GetFloat64("interval")
		batchConfig.FixedLevels = nil
	}
	if flags.Changed("offset") {
		batchConfig.Offset, _ = flags.GetFloat64("offset")
	}
	if flags.Changed("fl") {
		batchConfig.FixedLevels, _ = flags.GetFloat64Slice("fl")
	}
	if flags.Changed("nodata") {
		batchConfig.NoData, _ = flags.GetFloat64("nodata")
		batchConfig.NoDataSet = true
	}
	if flags.Changed("max-points") {
		batchConfig.MaxPoints, _ = flags.GetInt("max-points")
	}

	// Output
	if flags.Changed("format") {
		batchConfig.Format, _ = flags.GetString("format")
	}
	if flags.Changed("output-dir") {
		batchConfig.OutputDir, _ = flags.GetString("output-dir")
	}
	if flags.Changed("overlay-dir") {
		batchConfig.OverlayDir, _ = flags.GetString("overlay-dir")
	}

	// Parallel processing
	if flags.Changed("workers") {
		batchConfig.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("memory-limit") {
		batchConfig.MemoryLimitStr, _ = flags.GetString("memory-limit")
	}
	if flags.Changed("continue-on-error") {
		batchConfig.ContinueOnError, _ = flags.GetBool("continue-on-error")
	}

	// File discovery
	if flags.Changed("recursive") {
		batchConfig.Recursive, _ = flags.GetBool("recursive")
	}
	if flags.Changed("include") {
		batchConfig.IncludePatterns, _ = flags.GetStringSlice("include")
	}
	if flags.Changed("exclude") {
		batchConfig.ExcludePatterns, _ = flags.GetStringSlice("exclude")
	}

	// Progress is CLI only
	batchConfig.ShowProgress, _ = flags.GetBool("progress")
	batchConfig.Quiet, _ = flags.GetBool("quiet")
	batchConfig.ProgressInterval, _ = flags.GetDuration("progress-interval")

	return batchConfig
}

// summaryFormat returns the configured summary format with the flag applied.
func summaryFormat(cfg *config.Config, cmd *cobra.Command) string {
	format := cfg.Batch.SummaryFormat
	if cmd.Flags().Changed("summary-format") {
		format, _ = cmd.Flags().GetString("summary-format")
	}
	if format == "" {
		format = "text"
	}
	return format
}

func runBatchCommand(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	batchConfig := configToBatchConfig(cfg, cmd)
	format := summaryFormat(cfg, cmd)

	if !batchConfig.Quiet && format == "text" {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Processing %d path(s)...\n", len(args))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := batch.ProcessBatch(ctx, args, batchConfig)
	if result == nil {
		return fmt.Errorf("batch processing failed: %w", err)
	}

	summaryFile, _ := cmd.Flags().GetString("summary-file")
	if summaryFile != "" {
		if serr := result.SaveResults(cmd.ErrOrStderr(), format, summaryFile, batchConfig.Quiet); serr != nil {
			return fmt.Errorf("failed to save results: %w", serr)
		}
		result.PrintStats(cmd.ErrOrStderr(), batchConfig.Quiet || format != "text")
	} else if serr := batch.Summarize(cmd.OutOrStdout(), result, format, batchConfig.Quiet); serr != nil {
		return fmt.Errorf("failed to save results: %w", serr)
	}

	// With --continue-on-error failures are only reported in the summary.
	return err
}

func init() {
	rootCmd.AddCommand(batchCmd)

	// Level selection
	batchCmd.Flags().Float64P("interval", "i", 10, "contour interval")
	batchCmd.Flags().Float64("offset", 0, "offset added to every interval level")
	batchCmd.Flags().Float64Slice("fl", nil, "explicit contour levels (overrides --interval)")
	batchCmd.Flags().Float64("nodata", 0, "treat this value as missing data")
	batchCmd.Flags().Int("max-points", 0, "maximum vertices in one polyline (0 = unlimited)")

	// Output flags
	batchCmd.Flags().StringP("format", "f", "geojson", "per-file output format: geojson, csv, yaml, text")
	batchCmd.Flags().String("output-dir", "", "directory for per-file contour output")
	batchCmd.Flags().String("overlay-dir", "", "directory to save overlay images")
	batchCmd.Flags().String("summary-format", "text", "summary format: text, json, csv")
	batchCmd.Flags().String("summary-file", "", "write the summary to this file instead of stdout")

	// Parallel processing flags
	batchCmd.Flags().IntP("workers", "w", 0, fmt.Sprintf("number of parallel workers (default: %d)", runtime.NumCPU()))
	batchCmd.Flags().String("memory-limit", "", "soft memory limit (e.g., 1GB, 512MB)")
	batchCmd.Flags().Bool("continue-on-error", false, "keep processing after a file fails")

	// File discovery flags
	batchCmd.Flags().BoolP("recursive", "r", false, "recursively scan directories")
	batchCmd.Flags().StringSlice("include", []string{}, "file patterns to include")
	batchCmd.Flags().StringSlice("exclude", []string{}, "file patterns to exclude")

	// Progress and monitoring flags
	batchCmd.Flags().Bool("progress", false, "show progress bar")
	batchCmd.Flags().BoolP("quiet", "q", false, "suppress progress output")
	batchCmd.Flags().Duration("progress-interval", 500*time.Millisecond, "progress update interval")
}
