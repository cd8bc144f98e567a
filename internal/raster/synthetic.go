package raster

import "math"

// Flat returns a constant surface.
func Flat(width, height int, value float64) *Grid {
	return GridFromFunc(width, height, func(int, int) float64 { return value })
}

// Plane returns a + b*col + c*row.
func Plane(width, height int, a, b, c float64) *Grid {
	return GridFromFunc(width, height, func(col, row int) float64 {
		return a + b*float64(col) + c*float64(row)
	})
}

// Ramp rises by gradient per column.
func Ramp(width, height int, gradient float64) *Grid {
	return Plane(width, height, 0, gradient, 0)
}

// Cone peaks at the centre with the given height and falls off linearly to
// zero at the nearest edge.
func Cone(width, height int, peak float64) *Grid {
	cx, cy := float64(width-1)/2, float64(height-1)/2
	radius := math.Max(1, math.Min(cx, cy))
	return GridFromFunc(width, height, func(col, row int) float64 {
		d := math.Hypot(float64(col)-cx, float64(row)-cy)
		return math.Max(0, peak*(1-d/radius))
	})
}

// Checkerboard alternates lo and hi in square blocks of size cell.
func Checkerboard(width, height, cell int, lo, hi float64) *Grid {
	cell = max(1, cell)
	return GridFromFunc(width, height, func(col, row int) float64 {
		if (col/cell+row/cell)%2 == 0 {
			return hi
		}
		return lo
	})
}

// Pixel addresses one raster sample.
type Pixel struct {
	Col, Row int
}

// Pits returns a surface at base with single-pixel depressions of the given
// depth.
func Pits(width, height int, base, depth float64, pits ...Pixel) *Grid {
	g := Flat(width, height, base)
	for _, p := range pits {
		if p.Col >= 0 && p.Col < width && p.Row >= 0 && p.Row < height {
			g.Set(p.Col, p.Row, base-depth)
		}
	}
	return g
}

// Waves is a product of sines with the given wavelength in pixels. It has
// many peaks, pits and saddles.
func Waves(width, height int, wavelength, amplitude float64) *Grid {
	k := 2 * math.Pi / math.Max(1, wavelength)
	return GridFromFunc(width, height, func(col, row int) float64 {
		return amplitude * math.Sin(k*float64(col)) * math.Cos(k*float64(row))
	})
}
