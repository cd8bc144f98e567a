package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/MeKo-Tech/isoline/internal/contour"
	"github.com/MeKo-Tech/isoline/internal/mempool"
	"github.com/MeKo-Tech/isoline/internal/raster"
)

// Config holds the contouring settings applied to every raster a Pipeline
// processes.
type Config struct {
	Interval    float64
	Offset      float64
	FixedLevels []float64

	// NoData overrides the source's nodata value when NoDataSet is true.
	NoData    float64
	NoDataSet bool

	// IgnoreNoData disables nodata handling even if the source declares one.
	IgnoreNoData bool

	MaxPoints int

	// ProgressEvery is the number of rows between OnProgress calls.
	ProgressEvery int
	Progress      ProgressCallback
	Logger        *slog.Logger
}

// DefaultConfig returns a unit interval configuration.
func DefaultConfig() Config {
	return Config{
		Interval:      1,
		ProgressEvery: 1,
	}
}

// Validate checks the level settings without a raster size.
func (c Config) Validate() error {
	if c.ProgressEvery < 0 {
		return fmt.Errorf("progress interval must be >= 0, got %d", c.ProgressEvery)
	}
	return c.contourConfig(1, 1, 0, false).Validate()
}

func (c Config) contourConfig(width, height int, srcNoData float64, srcHasNoData bool) contour.Config {
	cfg := contour.DefaultConfig(width, height)
	cfg.Interval = c.Interval
	cfg.Offset = c.Offset
	cfg.FixedLevels = c.FixedLevels
	cfg.MaxPoints = c.MaxPoints
	cfg.Logger = c.Logger
	switch {
	case c.IgnoreNoData:
	case c.NoDataSet:
		cfg.NoData, cfg.NoDataEnabled = c.NoData, true
	case srcHasNoData:
		cfg.NoData, cfg.NoDataEnabled = srcNoData, true
	}
	return cfg
}

// Result summarizes one contouring run.
type Result struct {
	Width    int           `json:"width"`
	Height   int           `json:"height"`
	Rows     int           `json:"rows"`
	Levels   []float64     `json:"levels"`
	Stats    contour.Stats `json:"stats"`
	Duration time.Duration `json:"duration_ns"`
	Mem      MemStats      `json:"mem"`
}

// Run streams every row of src through a new contour.Generator into sink.
// The context is checked between rows. A sink failure is returned wrapping
// a *contour.SinkError.
func Run(ctx context.Context, src raster.Source, sink contour.Sink, cfg Config) (*Result, error) {
	if src == nil {
		return nil, errors.New("raster source is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	progress := cfg.Progress
	if progress == nil {
		progress = NoOpProgressCallback{}
	}
	every := max(cfg.ProgressEvery, 1)

	width, height := src.Width(), src.Height()
	nd, hasND := src.NoData()
	gen, err := contour.NewGenerator(cfg.contourConfig(width, height, nd, hasND), sink)
	if err != nil {
		return nil, fmt.Errorf("create contour generator: %w", err)
	}
	defer gen.Close()

	buf := mempool.GetFloat64(width)
	defer mempool.PutFloat64(buf)

	start := time.Now()
	progress.OnStart(height)
	logger.Debug("contouring raster", "width", width, "height", height)

	for row := range height {
		if err := ctx.Err(); err != nil {
			progress.OnError(row, err)
			return nil, err
		}
		if err := src.ReadLine(buf); err != nil {
			if errors.Is(err, io.EOF) {
				err = fmt.Errorf("%w: raster ended after %d of %d rows", io.ErrUnexpectedEOF, row, height)
			}
			progress.OnError(row, err)
			return nil, fmt.Errorf("read row %d: %w", row, err)
		}
		if err := gen.FeedLine(buf); err != nil {
			progress.OnError(row, err)
			return nil, fmt.Errorf("contour row %d: %w", row, err)
		}
		if done := row + 1; done%every == 0 || done == height {
			progress.OnProgress(done, height)
		}
	}
	progress.OnComplete()

	res := &Result{
		Width:    width,
		Height:   height,
		Rows:     height,
		Levels:   gen.Levels(),
		Stats:    gen.Stats(),
		Duration: time.Since(start),
		Mem:      GetMemStats(),
	}
	logger.Debug("contouring finished",
		"polylines", res.Stats.Polylines,
		"anomalies", res.Stats.Anomalies,
		"duration", res.Duration)
	return res, nil
}

// Pipeline runs contouring with a fixed configuration and aggregates
// profiling counters over its runs.
type Pipeline struct {
	cfg      Config
	profiler *Profiler
}

// Builder constructs a Pipeline with fluent configuration.
type Builder struct {
	cfg Config
}

// NewBuilder creates a new pipeline builder with defaults.
func NewBuilder() *Builder { return &Builder{cfg: DefaultConfig()} }

// WithInterval sets the contour interval and offset.
func (b *Builder) WithInterval(interval, offset float64) *Builder {
	b.cfg.Interval = interval
	b.cfg.Offset = offset
	return b
}

// WithFixedLevels switches to an explicit level list.
func (b *Builder) WithFixedLevels(levels ...float64) *Builder {
	b.cfg.FixedLevels = slices.Clone(levels)
	return b
}

// WithNoData overrides the nodata value of every source.
func (b *Builder) WithNoData(v float64) *Builder {
	b.cfg.NoData = v
	b.cfg.NoDataSet = true
	b.cfg.IgnoreNoData = false
	return b
}

// WithoutNoData ignores nodata values declared by sources.
func (b *Builder) WithoutNoData() *Builder {
	b.cfg.NoDataSet = false
	b.cfg.IgnoreNoData = true
	return b
}

// WithMaxPoints caps the vertex count of a single polyline.
func (b *Builder) WithMaxPoints(n int) *Builder {
	b.cfg.MaxPoints = n
	return b
}

// WithProgressCallback sets a progress callback and the row interval between
// updates.
func (b *Builder) WithProgressCallback(callback ProgressCallback, every int) *Builder {
	b.cfg.Progress = callback
	if every > 0 {
		b.cfg.ProgressEvery = every
	}
	return b
}

// WithLogger sets the logger passed down to the generator.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.cfg.Logger = logger
	return b
}

// Config returns the current builder config.
func (b *Builder) Config() Config { return b.cfg }

// Build validates the configuration and returns a Pipeline.
func (b *Builder) Build() (*Pipeline, error) {
	if err := b.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	return &Pipeline{cfg: b.cfg, profiler: &Profiler{}}, nil
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Profiler returns the counters aggregated over all runs.
func (p *Pipeline) Profiler() *Profiler { return p.profiler }

// Run contours src into sink.
func (p *Pipeline) Run(ctx context.Context, src raster.Source, sink contour.Sink) (*Result, error) {
	res, err := Run(ctx, src, sink, p.cfg)
	if err != nil {
		return nil, err
	}
	p.profiler.Record(res)
	return res, nil
}

// RunFile opens path with raster.Open and contours it into sink.
func (p *Pipeline) RunFile(ctx context.Context, path string, opts raster.ImageOptions, sink contour.Sink) (*Result, error) {
	src, err := raster.Open(path, opts)
	if err != nil {
		return nil, err
	}
	defer func() { _ = src.Close() }()

	return p.Run(ctx, src, sink)
}

// Info returns a JSON friendly description of the pipeline settings.
func (p *Pipeline) Info() map[string]any {
	info := map[string]any{
		"interval":   p.cfg.Interval,
		"offset":     p.cfg.Offset,
		"max_points": p.cfg.MaxPoints,
	}
	if len(p.cfg.FixedLevels) > 0 {
		info["fixed_levels"] = p.cfg.FixedLevels
	}
	if p.cfg.NoDataSet {
		info["nodata"] = p.cfg.NoData
	}
	return info
}
