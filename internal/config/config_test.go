package config

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/isoline/internal/contour"
)

const (
	debugLevel = "debug"
	infoLevel  = "info"
	warnLevel  = "warn"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LogLevel != infoLevel {
		t.Errorf("Expected default log level '%s', got %s", infoLevel, cfg.LogLevel)
	}
	assert.Equal(t, 10.0, cfg.Contour.Interval)
	assert.Equal(t, 1.0, cfg.Input.Scale)
	assert.Equal(t, "geojson", cfg.Output.Format)
	assert.Equal(t, "elev", cfg.Output.ElevAttr)
	assert.Equal(t, 6, cfg.Output.Precision)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Batch.Workers)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"log level", func(c *Config) { c.LogLevel = "trace" }, "invalid log level"},
		{"zero interval", func(c *Config) { c.Contour.Interval = 0 }, "invalid contour settings"},
		{"fixed levels replace interval", func(c *Config) {
			c.Contour.Interval = 0
			c.Contour.FixedLevels = []float64{100, 200}
		}, ""},
		{"max points", func(c *Config) { c.Contour.MaxPoints = -1 }, "max_points"},
		{"input scale", func(c *Config) { c.Input.Scale = 0 }, "input.scale"},
		{"resample", func(c *Config) { c.Input.Resample = -2 }, "input.resample"},
		{"format", func(c *Config) { c.Output.Format = "shp" }, "invalid output format"},
		{"format alias", func(c *Config) { c.Output.Format = "csv" }, ""},
		{"line color", func(c *Config) { c.Output.OverlayLineColor = "red" }, "overlay_line_color"},
		{"port", func(c *Config) { c.Server.Port = 70000 }, "invalid server port"},
		{"upload", func(c *Config) { c.Server.MaxUploadMB = 0 }, "max upload"},
		{"timeout", func(c *Config) { c.Server.TimeoutSec = -1 }, "invalid timeout"},
		{"progress", func(c *Config) { c.Server.ProgressEvery = -1 }, "progress_every"},
		{"rate limit", func(c *Config) { c.Server.RequestsPerHour = -1 }, "rate limits"},
		{"workers", func(c *Config) { c.Batch.Workers = 0 }, "batch workers"},
		{"summary", func(c *Config) { c.Batch.SummaryFormat = "xml" }, "summary format"},
		{"memory limit", func(c *Config) { c.Batch.MemoryLimit = "lots" }, "memory limit"},
		{"memory limit ok", func(c *Config) { c.Batch.MemoryLimit = "2GB" }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_WrapsLevelError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Contour.Interval = -5
	assert.ErrorIs(t, cfg.Validate(), contour.ErrInvalidLevels)
}

func TestToPipelineConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Contour.Interval = 5
	cfg.Contour.Offset = 2
	cfg.Contour.MaxPoints = 1000

	pc := cfg.ToPipelineConfig()
	assert.Equal(t, 5.0, pc.Interval)
	assert.Equal(t, 2.0, pc.Offset)
	assert.Equal(t, 1000, pc.MaxPoints)
	assert.False(t, pc.NoDataSet)

	cfg.Contour.NoData = -9999
	cfg.Contour.NoDataEnabled = true
	cfg.Contour.FixedLevels = []float64{1, 2}
	pc = cfg.ToPipelineConfig()
	assert.True(t, pc.NoDataSet)
	assert.Equal(t, -9999.0, pc.NoData)
	assert.Equal(t, []float64{1, 2}, pc.FixedLevels)

	pc.FixedLevels[0] = 42
	assert.Equal(t, 1.0, cfg.Contour.FixedLevels[0], "levels are copied")
}

func TestToImageAndOutputOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Input = InputConfig{Scale: 0.1, Offset: -100, NoData: 0, NoDataEnabled: true, Resample: 0.5}
	cfg.Output.ElevAttr = "height"
	cfg.Output.Precision = 2
	cfg.Output.MinPoints = 3

	img := cfg.ToImageOptions()
	assert.Equal(t, 0.1, img.Scale)
	assert.Equal(t, -100.0, img.Offset)
	assert.True(t, img.NoDataEnabled)
	assert.Equal(t, 0.5, img.Resample)

	out := cfg.ToOutputOptions()
	assert.Equal(t, "height", out.ElevAttr)
	assert.Equal(t, "id", out.IDAttr)
	assert.Equal(t, 2, out.Precision)
	assert.Equal(t, 3, out.MinPoints)
	assert.True(t, out.Transform.IsIdentity())
}

func TestToRenderOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Output.OverlayScale = 2
	cfg.Output.OverlayLineColor = "#00ff00"
	cfg.Output.OverlayLabels = false

	opts := cfg.ToRenderOptions()
	assert.Equal(t, 2, opts.Scale)
	assert.Equal(t, color.NRGBA{G: 255, A: 255}, opts.LineColor)
	assert.False(t, opts.Labels)
}

func TestToBatchConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Contour.FixedLevels = []float64{100}
	cfg.Output.Format = "yaml"
	cfg.Batch = BatchConfig{
		Workers:         3,
		OutputDir:       "/tmp/out",
		ContinueOnError: true,
		Recursive:       true,
		Include:         []string{"*.asc"},
		Exclude:         []string{"tmp_*"},
		MemoryLimit:     "1GB",
	}

	bc := cfg.ToBatchConfig()
	assert.Equal(t, []float64{100}, bc.FixedLevels)
	assert.Equal(t, "yaml", bc.Format)
	assert.Equal(t, 3, bc.Workers)
	assert.Equal(t, "/tmp/out", bc.OutputDir)
	assert.True(t, bc.ContinueOnError)
	assert.True(t, bc.Recursive)
	assert.Equal(t, []string{"*.asc"}, bc.IncludePatterns)
	assert.Equal(t, []string{"tmp_*"}, bc.ExcludePatterns)
	assert.Equal(t, "1GB", bc.MemoryLimitStr)
	require.NoError(t, bc.Validate())
}

func TestToServerConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.MaxUploadMB = 8
	cfg.Server.RequestsPerMinute = 30
	cfg.Server.MaxDataPerDayMB = 2
	cfg.Contour.Interval = 25

	sc := cfg.ToServerConfig()
	assert.Equal(t, "0.0.0.0", sc.Host)
	assert.Equal(t, 8080, sc.Port)
	assert.Equal(t, int64(8), sc.MaxUploadMB)
	assert.Equal(t, 64, sc.ProgressEvery)
	assert.Equal(t, 25.0, sc.Pipeline.Interval)
	assert.Equal(t, 30, sc.RateLimits.PerMinute)
	assert.Equal(t, int64(2*1024*1024), sc.RateLimits.BytesPerDay)
	assert.True(t, sc.RateLimits.Enabled())

	def := DefaultConfig()
	assert.False(t, def.ToServerConfig().RateLimits.Enabled())
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in      string
		want    color.NRGBA
		wantErr bool
	}{
		{"#FF0000", color.NRGBA{R: 255, A: 255}, false},
		{"00ff0080", color.NRGBA{G: 255, A: 128}, false},
		{" #0000FF ", color.NRGBA{B: 255, A: 255}, false},
		{"#FFF", color.NRGBA{}, true},
		{"#GGGGGG", color.NRGBA{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseHexColor(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateMemoryLimit(t *testing.T) {
	for _, ok := range []string{"", "1024", "1GB", "512mb", "1.5TB"} {
		assert.NoError(t, validateMemoryLimit(ok), ok)
	}
	for _, bad := range []string{"abc", "1.5XB", "GB"} {
		assert.Error(t, validateMemoryLimit(bad), bad)
	}
}
