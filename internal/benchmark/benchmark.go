// Package benchmark measures contouring throughput over synthetic surfaces.
package benchmark

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"runtime"
	"slices"
	"sort"
	"strconv"
	"time"

	"github.com/MeKo-Tech/isoline/internal/contour"
	"github.com/MeKo-Tech/isoline/internal/output"
	"github.com/MeKo-Tech/isoline/internal/pipeline"
	"github.com/MeKo-Tech/isoline/internal/raster"
)

// Timer measures one named span.
type Timer struct {
	start    time.Time
	name     string
	duration time.Duration
}

// NewTimer starts a timer.
func NewTimer(name string) *Timer {
	return &Timer{name: name, start: time.Now()}
}

// Stop records and returns the elapsed time.
func (t *Timer) Stop() time.Duration {
	t.duration = time.Since(t.start)
	return t.duration
}

// Duration is the value recorded by Stop.
func (t *Timer) Duration() time.Duration { return t.duration }

func (t *Timer) String() string {
	return fmt.Sprintf("%s: %v", t.name, t.duration)
}

// SurfaceFunc builds a synthetic grid of the given size.
type SurfaceFunc func(width, height int) *raster.Grid

// Surfaces returns the named synthetic surfaces. Their elevations span
// roughly 0..100 so the same interval gives comparable level counts.
func Surfaces() map[string]SurfaceFunc {
	return map[string]SurfaceFunc{
		"ramp": func(w, h int) *raster.Grid {
			return raster.Ramp(w, h, 100/float64(max(w-1, 1)))
		},
		"cone": func(w, h int) *raster.Grid {
			return raster.Cone(w, h, 100)
		},
		"waves": func(w, h int) *raster.Grid {
			return raster.Waves(w, h, float64(max(w, h))/8, 50)
		},
		"checkerboard": func(w, h int) *raster.Grid {
			return raster.Checkerboard(w, h, max(w/16, 2), 0, 100)
		},
		"pits": func(w, h int) *raster.Grid {
			var pits []raster.Pixel
			for row := 3; row < h; row += 7 {
				for col := 3; col < w; col += 7 {
					pits = append(pits, raster.Pixel{Col: col, Row: row})
				}
			}
			return raster.Pits(w, h, 100, 50, pits...)
		},
	}
}

// SurfaceNames lists Surfaces in a stable order.
func SurfaceNames() []string {
	names := make([]string, 0, 5)
	for name := range Surfaces() {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Case is one surface at one size.
type Case struct {
	Surface string
	Width   int
	Height  int
}

// Name identifies the case in reports.
func (c Case) Name() string {
	return fmt.Sprintf("%s_%dx%d", c.Surface, c.Width, c.Height)
}

// Cases returns the cross product of surfaces and square sizes.
func Cases(surfaces []string, sizes []int) []Case {
	var out []Case
	for _, s := range surfaces {
		for _, n := range sizes {
			out = append(out, Case{Surface: s, Width: n, Height: n})
		}
	}
	return out
}

// Measurement is the outcome of running one case.
type Measurement struct {
	Case       Case
	Iterations int
	Duration   time.Duration
	// RowsPerSec counts scanlines fed per second over all iterations.
	RowsPerSec float64
	Levels     int
	Polylines  int
	Vertices   int
	Anomalies  int
	PeakOpen   int
	// AllocBytes is the heap allocated per iteration.
	AllocBytes uint64
	Err        error
}

// PerIteration is the mean duration of one run.
func (m Measurement) PerIteration() time.Duration {
	if m.Iterations == 0 {
		return 0
	}
	return m.Duration / time.Duration(m.Iterations)
}

func (m Measurement) String() string {
	if m.Err != nil {
		return fmt.Sprintf("%s: ERROR - %v", m.Case.Name(), m.Err)
	}
	return fmt.Sprintf("%s: %d iterations, avg: %v, %.0f rows/s, %d levels, %d polylines, peak open %d, %d KB/iter",
		m.Case.Name(), m.Iterations, m.PerIteration(), m.RowsPerSec, m.Levels,
		m.Polylines, m.PeakOpen, m.AllocBytes/1024)
}

// Runner contours every case a fixed number of times.
type Runner struct {
	Config     pipeline.Config
	Iterations int
}

// NewRunner returns a runner with the default pipeline and the given
// interval.
func NewRunner(interval float64, iterations int) *Runner {
	cfg := pipeline.DefaultConfig()
	cfg.Interval = interval
	return &Runner{Config: cfg, Iterations: max(iterations, 1)}
}

// Run measures each case in order. A cancelled context stops before the
// next case.
func (r *Runner) Run(ctx context.Context, cases []Case) ([]Measurement, error) {
	surfaces := Surfaces()
	out := make([]Measurement, 0, len(cases))
	for _, c := range cases {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		build, ok := surfaces[c.Surface]
		if !ok {
			out = append(out, Measurement{Case: c, Err: fmt.Errorf("unknown surface %q", c.Surface)})
			continue
		}
		out = append(out, r.measure(ctx, c, build(c.Width, c.Height)))
	}
	return out, nil
}

func (r *Runner) measure(ctx context.Context, c Case, g *raster.Grid) Measurement {
	m := Measurement{Case: c, Iterations: r.Iterations}

	runtime.GC()
	before := pipeline.GetMemStats()
	timer := NewTimer(c.Name())

	var counter output.Counter
	for range r.Iterations {
		counter = output.Counter{Next: contour.SinkFunc(func(float64, []contour.Point) error { return nil })}
		res, err := pipeline.Run(ctx, g.Reader(), &counter, r.Config)
		if err != nil {
			m.Err = err
			return m
		}
		m.Levels = len(res.Levels)
		m.Anomalies = res.Stats.Anomalies
		m.PeakOpen = res.Stats.PeakOpen
	}

	m.Duration = timer.Stop()
	after := pipeline.GetMemStats()

	m.Polylines = counter.Polylines
	m.Vertices = counter.Vertices
	m.AllocBytes = (after.TotalAllocBytes - before.TotalAllocBytes) / uint64(r.Iterations) //nolint:gosec // G115: iterations is positive
	if secs := m.Duration.Seconds(); secs > 0 {
		m.RowsPerSec = float64(c.Height*r.Iterations) / secs
	}
	return m
}

// Print writes one line per measurement followed by the fastest and slowest
// cases.
func Print(w io.Writer, ms []Measurement) {
	_, _ = fmt.Fprintln(w, "Benchmark Results:")
	_, _ = fmt.Fprintln(w, "==================")
	var ok []Measurement
	for _, m := range ms {
		_, _ = fmt.Fprintln(w, m.String())
		if m.Err == nil {
			ok = append(ok, m)
		}
	}
	if len(ok) < 2 {
		return
	}
	sort.Slice(ok, func(i, j int) bool { return ok[i].RowsPerSec > ok[j].RowsPerSec })
	_, _ = fmt.Fprintf(w, "\nFastest: %s (%.0f rows/s)\n", ok[0].Case.Name(), ok[0].RowsPerSec)
	_, _ = fmt.Fprintf(w, "Slowest: %s (%.0f rows/s)\n", ok[len(ok)-1].Case.Name(), ok[len(ok)-1].RowsPerSec)
}

// WriteCSV writes the measurements as CSV with a header row.
func WriteCSV(w io.Writer, ms []Measurement) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{
		"case", "surface", "width", "height", "iterations", "avg_ms", "rows_per_sec",
		"levels", "polylines", "vertices", "peak_open", "alloc_kb", "error",
	})
	for _, m := range ms {
		errText := ""
		if m.Err != nil {
			errText = m.Err.Error()
		}
		_ = cw.Write([]string{
			m.Case.Name(), m.Case.Surface,
			strconv.Itoa(m.Case.Width), strconv.Itoa(m.Case.Height),
			strconv.Itoa(m.Iterations),
			strconv.FormatFloat(float64(m.PerIteration().Microseconds())/1000, 'f', 3, 64),
			strconv.FormatFloat(m.RowsPerSec, 'f', 0, 64),
			strconv.Itoa(m.Levels), strconv.Itoa(m.Polylines), strconv.Itoa(m.Vertices),
			strconv.Itoa(m.PeakOpen), strconv.FormatUint(m.AllocBytes/1024, 10), errText,
		})
	}
	cw.Flush()
	return cw.Error()
}
