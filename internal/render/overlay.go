// Package render draws contour lines over a shaded elevation image.
package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"strconv"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/MeKo-Tech/isoline/internal/contour"
	"github.com/MeKo-Tech/isoline/internal/raster"
)

// Options control the overlay appearance.
type Options struct {
	// Scale enlarges every raster pixel to Scale x Scale output pixels.
	Scale      int
	LineColor  color.Color
	LabelColor color.Color
	NoData     color.Color
	Thickness  int
	// Contrast is passed to imaging.AdjustContrast, in the range -100..100.
	Contrast float64
	Labels   bool
}

// DefaultOptions returns red lines on a 4x enlarged background.
func DefaultOptions() Options {
	return Options{
		Scale:      4,
		LineColor:  color.NRGBA{R: 220, G: 30, B: 30, A: 255},
		LabelColor: color.NRGBA{R: 255, G: 255, B: 0, A: 255},
		NoData:     color.NRGBA{R: 0, G: 0, B: 80, A: 255},
		Thickness:  1,
		Contrast:   20,
		Labels:     true,
	}
}

// Overlay renders the grid as a grayscale background and draws the polylines
// on top.
func Overlay(g *raster.Grid, lines []contour.Polyline, opts Options) (*image.NRGBA, error) {
	if g == nil || g.Width == 0 || g.Height == 0 {
		return nil, errors.New("overlay needs a non-empty grid")
	}
	if opts.Scale < 1 {
		opts.Scale = 1
	}
	if opts.LineColor == nil {
		opts.LineColor = DefaultOptions().LineColor
	}
	if opts.LabelColor == nil {
		opts.LabelColor = opts.LineColor
	}

	bg := background(g, opts)
	scale := float64(opts.Scale)

	for _, pl := range lines {
		pts := make([]image.Point, len(pl.Points))
		for i, p := range pl.Points {
			pts[i] = image.Pt(int(math.Round(p.X*scale)), int(math.Round(p.Y*scale)))
		}
		drawPolyline(bg, pts, opts.LineColor, opts.Thickness)

		if opts.Labels && len(pts) > 0 {
			drawLabel(bg, pts[len(pts)/2], strconv.FormatFloat(pl.Level, 'g', 6, 64), opts.LabelColor)
		}
	}
	return bg, nil
}

func background(g *raster.Grid, opts Options) *image.NRGBA {
	lo, hi, ok := g.Range()
	span := hi - lo
	if !ok || span == 0 {
		span = 1
	}

	gray := image.NewNRGBA(image.Rect(0, 0, g.Width, g.Height))
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			v := g.At(x, y)
			if g.IsNoData(v) || math.IsNaN(v) {
				if opts.NoData != nil {
					gray.Set(x, y, opts.NoData)
				}
				continue
			}
			l := uint8(math.Round(255 * (v - lo) / span))
			gray.SetNRGBA(x, y, color.NRGBA{R: l, G: l, B: l, A: 255})
		}
	}

	out := gray
	if opts.Contrast != 0 {
		out = imaging.AdjustContrast(out, opts.Contrast)
	}
	if opts.Scale > 1 {
		out = imaging.Resize(out, g.Width*opts.Scale, g.Height*opts.Scale, imaging.NearestNeighbor)
	}
	return out
}

func drawLabel(dst *image.NRGBA, at image.Point, text string, col color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(at.X+2, at.Y-2),
	}
	d.DrawString(text)
}

// Save writes img to path; the format follows the file extension.
func Save(img image.Image, path string) error {
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("save overlay: %w", err)
	}
	return nil
}
