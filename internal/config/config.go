package config

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/isoline/internal/batch"
	"github.com/MeKo-Tech/isoline/internal/output"
	"github.com/MeKo-Tech/isoline/internal/pipeline"
	"github.com/MeKo-Tech/isoline/internal/raster"
	"github.com/MeKo-Tech/isoline/internal/render"
	"github.com/MeKo-Tech/isoline/internal/server"
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	out := output.DefaultOptions()
	img := raster.DefaultImageOptions()
	ov := render.DefaultOptions()
	return Config{
		LogLevel: "info",
		Verbose:  false,
		Contour: ContourConfig{
			Interval: 10,
		},
		Input: InputConfig{
			Scale:    img.Scale,
			Resample: img.Resample,
		},
		Output: OutputConfig{
			Format:           output.FormatGeoJSON,
			ElevAttr:         out.ElevAttr,
			IDAttr:           out.IDAttr,
			Precision:        out.Precision,
			OverlayScale:     ov.Scale,
			OverlayLineColor: "#DC1E1E",
			OverlayLabels:    ov.Labels,
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     50,
			TimeoutSec:      30,
			ShutdownTimeout: 10,
			ProgressEvery:   64,
		},
		Batch: BatchConfig{
			Workers:       4,
			SummaryFormat: "text",
		},
	}
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	if c.Contour.MaxPoints < 0 {
		return fmt.Errorf("invalid contour.max_points: %d (must be >= 0)", c.Contour.MaxPoints)
	}
	if err := c.ToPipelineConfig().Validate(); err != nil {
		return fmt.Errorf("invalid contour settings: %w", err)
	}

	if c.Input.Scale == 0 || math.IsNaN(c.Input.Scale) || math.IsInf(c.Input.Scale, 0) {
		return fmt.Errorf("invalid input.scale: %v (must be finite and non-zero)", c.Input.Scale)
	}
	if c.Input.Resample < 0 {
		return fmt.Errorf("invalid input.resample: %v (must be >= 0)", c.Input.Resample)
	}

	if c.Output.Format != "" && !output.IsValidFormat(c.Output.Format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)", c.Output.Format, strings.Join(output.Formats(), ", "))
	}
	if c.Output.OverlayLineColor != "" {
		if _, err := ParseHexColor(c.Output.OverlayLineColor); err != nil {
			return fmt.Errorf("invalid output.overlay_line_color: %w", err)
		}
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}
	if c.Server.ProgressEvery < 0 {
		return fmt.Errorf("invalid server.progress_every: %d (must be >= 0)", c.Server.ProgressEvery)
	}
	if c.Server.RequestsPerMinute < 0 || c.Server.RequestsPerHour < 0 ||
		c.Server.RequestsPerDay < 0 || c.Server.MaxDataPerDayMB < 0 {
		return errors.New("invalid server rate limits: must be >= 0")
	}

	if c.Batch.Workers <= 0 {
		return fmt.Errorf("invalid batch workers: %d (must be positive)", c.Batch.Workers)
	}
	validSummaries := []string{"text", "json", "csv"}
	if c.Batch.SummaryFormat != "" && !slices.Contains(validSummaries, c.Batch.SummaryFormat) {
		return fmt.Errorf("invalid batch summary format: %s (must be one of: %s)", c.Batch.SummaryFormat, strings.Join(validSummaries, ", "))
	}
	if err := validateMemoryLimit(c.Batch.MemoryLimit); err != nil {
		return fmt.Errorf("invalid batch memory limit: %w", err)
	}

	return nil
}

// ToPipelineConfig converts the contour section to a pipeline configuration.
func (c *Config) ToPipelineConfig() pipeline.Config {
	cfg := pipeline.DefaultConfig()
	cfg.Interval = c.Contour.Interval
	cfg.Offset = c.Contour.Offset
	cfg.FixedLevels = slices.Clone(c.Contour.FixedLevels)
	cfg.MaxPoints = c.Contour.MaxPoints
	if c.Contour.NoDataEnabled {
		cfg.NoData = c.Contour.NoData
		cfg.NoDataSet = true
	}
	return cfg
}

// ToImageOptions converts the input section to raster image options.
func (c *Config) ToImageOptions() raster.ImageOptions {
	return raster.ImageOptions{
		Scale:         c.Input.Scale,
		Offset:        c.Input.Offset,
		NoData:        c.Input.NoData,
		NoDataEnabled: c.Input.NoDataEnabled,
		Resample:      c.Input.Resample,
	}
}

// ToOutputOptions converts the output section to writer options. The
// transform is left as identity; callers set it from the raster source.
func (c *Config) ToOutputOptions() output.Options {
	opts := output.DefaultOptions()
	if c.Output.ElevAttr != "" {
		opts.ElevAttr = c.Output.ElevAttr
	}
	if c.Output.IDAttr != "" {
		opts.IDAttr = c.Output.IDAttr
	}
	opts.Precision = c.Output.Precision
	opts.MinPoints = c.Output.MinPoints
	return opts
}

// ToRenderOptions converts the overlay settings to render options.
func (c *Config) ToRenderOptions() render.Options {
	opts := render.DefaultOptions()
	if c.Output.OverlayScale > 0 {
		opts.Scale = c.Output.OverlayScale
	}
	if col, err := ParseHexColor(c.Output.OverlayLineColor); err == nil {
		opts.LineColor = col
	}
	opts.Labels = c.Output.OverlayLabels
	return opts
}

// ToBatchConfig converts the configuration to a batch configuration.
func (c *Config) ToBatchConfig() *batch.Config {
	pc := c.ToPipelineConfig()
	bc := batch.DefaultConfig()
	bc.Interval = pc.Interval
	bc.Offset = pc.Offset
	bc.FixedLevels = pc.FixedLevels
	bc.NoData = pc.NoData
	bc.NoDataSet = pc.NoDataSet
	bc.MaxPoints = pc.MaxPoints
	bc.Image = c.ToImageOptions()
	if c.Output.Format != "" {
		bc.Format = c.Output.Format
	}
	bc.OutputDir = c.Batch.OutputDir
	bc.Output = c.ToOutputOptions()
	bc.OverlayDir = c.Output.OverlayDir
	bc.Overlay = c.ToRenderOptions()
	bc.Workers = c.Batch.Workers
	bc.MemoryLimitStr = c.Batch.MemoryLimit
	bc.ContinueOnError = c.Batch.ContinueOnError
	bc.Recursive = c.Batch.Recursive
	bc.IncludePatterns = slices.Clone(c.Batch.Include)
	bc.ExcludePatterns = slices.Clone(c.Batch.Exclude)
	return bc
}

// ToServerConfig converts the configuration to a server configuration.
func (c *Config) ToServerConfig() server.Config {
	return server.Config{
		Host:          c.Server.Host,
		Port:          c.Server.Port,
		CORSOrigin:    c.Server.CORSOrigin,
		MaxUploadMB:   int64(c.Server.MaxUploadMB),
		TimeoutSec:    c.Server.TimeoutSec,
		ProgressEvery: c.Server.ProgressEvery,
		Pipeline:      c.ToPipelineConfig(),
		Image:         c.ToImageOptions(),
		Output:        c.ToOutputOptions(),
		RateLimits: server.RateLimits{
			PerMinute:   c.Server.RequestsPerMinute,
			PerHour:     c.Server.RequestsPerHour,
			PerDay:      c.Server.RequestsPerDay,
			BytesPerDay: int64(c.Server.MaxDataPerDayMB) * 1024 * 1024,
		},
	}
}

// ParseHexColor parses "#RRGGBB" or "#RRGGBBAA".
func ParseHexColor(s string) (color.NRGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) != 6 && len(hex) != 8 {
		return color.NRGBA{}, fmt.Errorf("color %q must be #RRGGBB or #RRGGBBAA", s)
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("color %q: %w", s, err)
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

// validateMemoryLimit validates a memory limit such as "1GB" or "512MB".
func validateMemoryLimit(limit string) error {
	if limit == "" {
		return nil
	}

	upper := strings.ToUpper(strings.TrimSpace(limit))
	for _, unit := range []string{"TB", "GB", "MB", "KB", "B"} {
		if numStr, ok := strings.CutSuffix(upper, unit); ok {
			if _, err := strconv.ParseFloat(numStr, 64); err != nil {
				return fmt.Errorf("invalid number in memory limit: %s", limit)
			}
			return nil
		}
	}
	if _, err := strconv.ParseUint(upper, 10, 64); err != nil {
		return errors.New("memory limit must be a byte count or end with one of: B, KB, MB, GB, TB")
	}
	return nil
}
