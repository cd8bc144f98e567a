//nolint:lll
package config

// Config represents the complete configuration for the isoline tool.
// It includes settings for all commands (contour, batch, serve) and
// supports loading from configuration files, environment variables, and command-line flags.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// Level selection and engine limits
	Contour ContourConfig `mapstructure:"contour" yaml:"contour" json:"contour"`

	// Raster decoding
	Input InputConfig `mapstructure:"input" yaml:"input" json:"input"`

	// Output configuration
	Output OutputConfig `mapstructure:"output" yaml:"output" json:"output"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`

	// Batch processing configuration
	Batch BatchConfig `mapstructure:"batch" yaml:"batch" json:"batch"`
}

// ContourConfig selects the traced levels.
type ContourConfig struct {
	Interval      float64   `mapstructure:"interval" yaml:"interval" json:"interval"`
	Offset        float64   `mapstructure:"offset" yaml:"offset" json:"offset"`
	FixedLevels   []float64 `mapstructure:"fixed_levels" yaml:"fixed_levels" json:"fixed_levels"`
	NoData        float64   `mapstructure:"nodata" yaml:"nodata" json:"nodata"`
	NoDataEnabled bool      `mapstructure:"nodata_enabled" yaml:"nodata_enabled" json:"nodata_enabled"`
	MaxPoints     int       `mapstructure:"max_points" yaml:"max_points" json:"max_points"`
}

// InputConfig controls how image rasters become elevations.
type InputConfig struct {
	Scale         float64 `mapstructure:"scale" yaml:"scale" json:"scale"`
	Offset        float64 `mapstructure:"offset" yaml:"offset" json:"offset"`
	NoData        float64 `mapstructure:"nodata" yaml:"nodata" json:"nodata"`
	NoDataEnabled bool    `mapstructure:"nodata_enabled" yaml:"nodata_enabled" json:"nodata_enabled"`
	Resample      float64 `mapstructure:"resample" yaml:"resample" json:"resample"`
}

// OutputConfig contains output formatting settings.
type OutputConfig struct {
	Format           string `mapstructure:"format" yaml:"format" json:"format"`
	File             string `mapstructure:"file" yaml:"file" json:"file"`
	ElevAttr         string `mapstructure:"elev_attr" yaml:"elev_attr" json:"elev_attr"`
	IDAttr           string `mapstructure:"id_attr" yaml:"id_attr" json:"id_attr"`
	Precision        int    `mapstructure:"precision" yaml:"precision" json:"precision"`
	MinPoints        int    `mapstructure:"min_points" yaml:"min_points" json:"min_points"`
	OverlayFile      string `mapstructure:"overlay_file" yaml:"overlay_file" json:"overlay_file"`
	OverlayDir       string `mapstructure:"overlay_dir" yaml:"overlay_dir" json:"overlay_dir"`
	OverlayScale     int    `mapstructure:"overlay_scale" yaml:"overlay_scale" json:"overlay_scale"`
	OverlayLineColor string `mapstructure:"overlay_line_color" yaml:"overlay_line_color" json:"overlay_line_color"`
	OverlayLabels    bool   `mapstructure:"overlay_labels" yaml:"overlay_labels" json:"overlay_labels"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string `mapstructure:"host" yaml:"host" json:"host"`
	Port            int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	ProgressEvery   int    `mapstructure:"progress_every" yaml:"progress_every" json:"progress_every"`

	// Per-client limits; zero disables a limit.
	RequestsPerMinute int `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int `mapstructure:"requests_per_hour" yaml:"requests_per_hour" json:"requests_per_hour"`
	RequestsPerDay    int `mapstructure:"requests_per_day" yaml:"requests_per_day" json:"requests_per_day"`
	MaxDataPerDayMB   int `mapstructure:"max_data_per_day_mb" yaml:"max_data_per_day_mb" json:"max_data_per_day_mb"`
}

// BatchConfig contains batch processing settings.
type BatchConfig struct {
	Workers         int      `mapstructure:"workers" yaml:"workers" json:"workers"`
	OutputDir       string   `mapstructure:"output_dir" yaml:"output_dir" json:"output_dir"`
	ContinueOnError bool     `mapstructure:"continue_on_error" yaml:"continue_on_error" json:"continue_on_error"`
	Recursive       bool     `mapstructure:"recursive" yaml:"recursive" json:"recursive"`
	Include         []string `mapstructure:"include" yaml:"include" json:"include"`
	Exclude         []string `mapstructure:"exclude" yaml:"exclude" json:"exclude"`
	SummaryFormat   string   `mapstructure:"summary_format" yaml:"summary_format" json:"summary_format"`
	MemoryLimit     string   `mapstructure:"memory_limit" yaml:"memory_limit" json:"memory_limit"`
}
