package contour

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/MeKo-Tech/isoline/internal/mempool"
)

// State is the scan progress of a Generator.
type State int

const (
	StateBeforeFirstRow State = iota
	StateRunning
	StateDraining
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateBeforeFirstRow:
		return "before-first-row"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Config describes the raster and the levels to trace.
type Config struct {
	Width  int
	Height int

	// Interval and Offset generate levels k*Interval+Offset. Ignored when
	// FixedLevels is non-empty.
	Interval float64
	Offset   float64

	// FixedLevels is an explicit level list, in any order.
	FixedLevels []float64

	// NoData marks missing samples when NoDataEnabled is set. A NaN NoData
	// matches every NaN sample.
	NoData        float64
	NoDataEnabled bool

	// MaxPoints caps the vertex count of a single open polyline. Zero means
	// unlimited.
	MaxPoints int

	Logger *slog.Logger
}

// DefaultConfig returns a Config with a unit interval and no nodata value.
func DefaultConfig(width, height int) Config {
	return Config{
		Width:    width,
		Height:   height,
		Interval: 1,
	}
}

// Validate checks the dimensions and the level specification.
func (c Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("raster size must be positive, got %dx%d", c.Width, c.Height)
	}
	if c.MaxPoints < 0 {
		return fmt.Errorf("max points must be >= 0, got %d", c.MaxPoints)
	}
	if len(c.FixedLevels) > 0 {
		for _, v := range c.FixedLevels {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: fixed level %v is not finite", ErrInvalidLevels, v)
			}
		}
		return nil
	}
	if !(c.Interval > 0) || math.IsInf(c.Interval, 0) {
		return fmt.Errorf("%w: interval must be positive and finite, got %v", ErrInvalidLevels, c.Interval)
	}
	if math.IsNaN(c.Offset) || math.IsInf(c.Offset, 0) {
		return fmt.Errorf("%w: offset must be finite, got %v", ErrInvalidLevels, c.Offset)
	}
	return nil
}

// Stats counts the work done by a Generator.
type Stats struct {
	Rows      int `json:"rows"`
	Segments  int `json:"segments"`
	Items     int `json:"items"`
	Merges    int `json:"merges"`
	Polylines int `json:"polylines"`
	Anomalies int `json:"anomalies"`
	PeakOpen  int `json:"peak_open"`
}

// Generator traces contours from scanlines fed top to bottom. It is not safe
// for concurrent use.
type Generator struct {
	width, height int
	interval      float64
	offset        float64
	fixed         []float64
	nudge         float64

	noData        float64
	noDataEnabled bool
	maxPoints     int

	sink   Sink
	logger *slog.Logger

	prev, cur []float64
	row       int
	state     State
	err       error
	levels    levelSet
	stats     Stats
}

// NewGenerator validates cfg and returns a Generator delivering finished
// polylines to sink.
func NewGenerator(cfg Config, sink Sink) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		return nil, errors.New("contour sink is required")
	}

	g := &Generator{
		width:         cfg.Width,
		height:        cfg.Height,
		interval:      cfg.Interval,
		offset:        cfg.Offset,
		noData:        cfg.NoData,
		noDataEnabled: cfg.NoDataEnabled,
		maxPoints:     cfg.MaxPoints,
		sink:          sink,
		logger:        cfg.Logger,
		row:           -1,
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}

	if len(cfg.FixedLevels) > 0 {
		g.fixed = slices.Clone(cfg.FixedLevels)
		slices.Sort(g.fixed)
		g.fixed = slices.Compact(g.fixed)

		// Nudge by a fraction of the tightest spacing so a perturbed sample
		// never reaches the next level.
		g.nudge = Fudge
		for i := 1; i < len(g.fixed); i++ {
			if gap := (g.fixed[i] - g.fixed[i-1]) * Fudge; gap < g.nudge || i == 1 {
				g.nudge = gap
			}
		}
		for _, v := range g.fixed {
			g.levels.get(v)
		}
	} else {
		g.nudge = g.interval * Fudge
	}

	rows := mempool.GetFloat64Multiple([]int{g.width, g.width})
	g.prev, g.cur = rows[0], rows[1]
	return g, nil
}

// FeedLine processes the next scanline. After Height rows the remaining
// polylines are flushed to the sink automatically. Any error leaves the
// Generator in StateFailed and is returned again by later calls.
func (g *Generator) FeedLine(row []float64) error {
	switch g.state {
	case StateDone:
		return ErrFinished
	case StateFailed:
		if g.err != nil {
			return g.err
		}
		return ErrFinished
	}
	if row == nil {
		return fmt.Errorf("%w: nil scanline", ErrRowWidth)
	}
	if len(row) != g.width {
		return fmt.Errorf("%w: got %d samples, want %d", ErrRowWidth, len(row), g.width)
	}

	if err := g.feed(row); err != nil {
		g.state = StateFailed
		g.err = err
		return err
	}
	return nil
}

// feed runs one scanline. A nil row replays the previous one to close the
// bottom edge and drains every open polyline.
func (g *Generator) feed(row []float64) error {
	g.prev, g.cur = g.cur, g.prev
	if row == nil {
		g.state = StateDraining
		copy(g.cur, g.prev)
	} else {
		copy(g.cur, row)
		g.perturb(g.cur)
	}

	if g.row < 0 {
		copy(g.prev, g.cur)
		g.row = 0
		g.state = StateRunning
	}

	g.levels.clearTouched()

	for ix := 0; ix <= g.width; ix++ {
		if err := g.processPixel(ix); err != nil {
			return err
		}
	}

	if err := g.eject(row != nil); err != nil {
		return err
	}

	if open := g.levels.openItems(); open > g.stats.PeakOpen {
		g.stats.PeakOpen = open
	}
	g.row++

	if row == nil {
		g.state = StateDone
		g.logger.Debug("contour scan finished",
			"polylines", g.stats.Polylines,
			"merges", g.stats.Merges,
			"anomalies", g.stats.Anomalies)
		return nil
	}
	g.stats.Rows++
	if g.row == g.height {
		return g.feed(nil)
	}
	return nil
}

// perturb moves samples lying exactly on a level off it.
func (g *Generator) perturb(row []float64) {
	for i, v := range row {
		if g.isNoData(v) {
			continue
		}
		if g.fixed != nil {
			if _, found := slices.BinarySearch(g.fixed, v); found {
				row[i] = v + g.nudge
			}
			continue
		}
		q := (v - g.offset) / g.interval
		if q == math.Trunc(q) {
			row[i] = v + g.nudge
		}
	}
}

func (g *Generator) isNoData(v float64) bool {
	if !g.noDataEnabled {
		return false
	}
	if math.IsNaN(g.noData) {
		return math.IsNaN(v)
	}
	return v == g.noData
}

// addSegment attaches p0-p1 to an open polyline of the level or starts a new
// one.
func (g *Generator) addSegment(value float64, p0, p1 Point, leftIsHigh bool) error {
	g.stats.Segments++
	lvl := g.levels.get(value)

	key := p1
	if p0.Y < p1.Y {
		key = p0
	}

	if i := lvl.find(key); i >= 0 {
		it := lvl.items[i]
		if !it.addSegment(p0, p1, leftIsHigh) {
			return fmt.Errorf("attach segment at level %g: %w", value, ErrInconsistentTopology)
		}
		lvl.adjust(i)
		return g.checkSize(it)
	}

	it := newItem(value)
	it.addSegment(p0, p1, leftIsHigh)
	lvl.insert(it)
	g.stats.Items++
	return nil
}

func (g *Generator) checkSize(it *item) error {
	if g.maxPoints > 0 && len(it.points) > g.maxPoints {
		return fmt.Errorf("polyline at level %g has %d points, limit %d: %w",
			it.level, len(it.points), g.maxPoints, ErrAllocation)
	}
	return nil
}

// eject finalizes polylines that can no longer grow. With onlyUntouched
// false every open polyline is finalized.
func (g *Generator) eject(onlyUntouched bool) error {
	var candidates []*item
	for _, lvl := range g.levels.levels {
		candidates = candidates[:0]
		for _, it := range lvl.items {
			if !onlyUntouched || !it.touched {
				candidates = append(candidates, it)
			}
		}

		for _, it := range candidates {
			// An earlier candidate may have been merged into this one.
			if onlyUntouched && it.touched {
				continue
			}
			i := lvl.indexOf(it)
			if i < 0 {
				continue
			}
			lvl.remove(i)

			merged := false
			for j, other := range lvl.items {
				if other.merge(it) {
					lvl.adjust(j)
					g.stats.Merges++
					merged = true
					if err := g.checkSize(other); err != nil {
						return err
					}
					break
				}
			}
			if merged {
				continue
			}

			it.prepareForOutput()
			if err := g.sink.Accept(it.level, it.points); err != nil {
				return &SinkError{Level: it.level, Err: err}
			}
			g.stats.Polylines++
		}
	}
	return nil
}

// State returns the scan progress.
func (g *Generator) State() State { return g.state }

// Stats returns the counters collected so far.
func (g *Generator) Stats() Stats { return g.stats }

// Levels returns every level seen so far in ascending order.
func (g *Generator) Levels() []float64 { return g.levels.values() }

// Close releases the scanline buffers. Feeding a closed Generator that did
// not finish returns ErrFinished.
func (g *Generator) Close() {
	mempool.PutFloat64Multiple([][]float64{g.prev, g.cur})
	g.prev, g.cur = nil, nil
	if g.state != StateDone {
		g.state = StateFailed
	}
}
