package raster

import (
	"fmt"
	"io"
	"math"
)

// Grid is an in-memory raster stored row-major.
type Grid struct {
	Width     int
	Height    int
	Data      []float64
	NoData    float64
	HasNoData bool
	Transform GeoTransform
}

// NewGrid allocates a zero-filled grid.
func NewGrid(width, height int) *Grid {
	return &Grid{
		Width:     width,
		Height:    height,
		Data:      make([]float64, width*height),
		Transform: IdentityTransform(),
	}
}

// GridFromFunc fills a new grid with f(col, row).
func GridFromFunc(width, height int, f func(col, row int) float64) *Grid {
	g := NewGrid(width, height)
	for r := 0; r < height; r++ {
		for c := 0; c < width; c++ {
			g.Data[r*width+c] = f(c, r)
		}
	}
	return g
}

// At returns the sample at (col, row).
func (g *Grid) At(col, row int) float64 { return g.Data[row*g.Width+col] }

// Set stores a sample at (col, row).
func (g *Grid) Set(col, row int, v float64) { g.Data[row*g.Width+col] = v }

// Row returns row r without copying.
func (g *Grid) Row(r int) []float64 { return g.Data[r*g.Width : (r+1)*g.Width] }

// IsNoData reports whether v is the grid's missing-data marker.
func (g *Grid) IsNoData(v float64) bool {
	if !g.HasNoData {
		return false
	}
	if math.IsNaN(g.NoData) {
		return math.IsNaN(v)
	}
	return v == g.NoData
}

// Range returns the smallest and largest valid samples. ok is false when the
// grid holds no valid sample.
func (g *Grid) Range() (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range g.Data {
		if g.IsNoData(v) || math.IsNaN(v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
		ok = true
	}
	return lo, hi, ok
}

// Reader returns a Source over the grid's rows.
func (g *Grid) Reader() Source {
	return &gridReader{g: g}
}

// ReadAll drains src into a Grid and closes it.
func ReadAll(src Source) (*Grid, error) {
	defer src.Close()

	g := NewGrid(src.Width(), src.Height())
	g.NoData, g.HasNoData = src.NoData()
	g.Transform = src.GeoTransform()
	for r := 0; r < g.Height; r++ {
		if err := src.ReadLine(g.Row(r)); err != nil {
			return nil, fmt.Errorf("read row %d: %w", r, err)
		}
	}
	return g, nil
}

type gridReader struct {
	g   *Grid
	row int
}

func (r *gridReader) Width() int                 { return r.g.Width }
func (r *gridReader) Height() int                { return r.g.Height }
func (r *gridReader) NoData() (float64, bool)    { return r.g.NoData, r.g.HasNoData }
func (r *gridReader) GeoTransform() GeoTransform { return r.g.Transform }
func (r *gridReader) Close() error               { return nil }

func (r *gridReader) ReadLine(dst []float64) error {
	if r.row >= r.g.Height {
		return io.EOF
	}
	if len(dst) != r.g.Width {
		return fmt.Errorf("%w: got %d, want %d", ErrShortBuffer, len(dst), r.g.Width)
	}
	copy(dst, r.g.Row(r.row))
	r.row++
	return nil
}
