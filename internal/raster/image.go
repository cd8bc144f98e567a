package raster

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"io"
	"math"
	"os"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
)

const imageFormat = "image"

// ImageOptions control how pixel intensities become elevations:
// elevation = raw*Scale + Offset, where raw is the 16-bit gray value for
// 16-bit images and the 8-bit luminance otherwise.
type ImageOptions struct {
	Scale  float64
	Offset float64

	// NoData is compared against the raw pixel value. Matching pixels are
	// reported as NaN.
	NoData        float64
	NoDataEnabled bool

	// Resample scales the image before contouring. Values <= 0 or 1 keep the
	// original size.
	Resample float64
}

// DefaultImageOptions maps raw pixel values one to one.
func DefaultImageOptions() ImageOptions {
	return ImageOptions{Scale: 1, Resample: 1}
}

// OpenImage decodes an image file into an elevation grid.
func OpenImage(path string, opts ImageOptions) (Source, error) {
	f, err := os.Open(path) //nolint:gosec // G304: reading a user-provided raster path is expected
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer func() { _ = f.Close() }()

	g, err := DecodeImage(f, opts)
	if err != nil {
		return nil, err
	}
	return g.Reader(), nil
}

// DecodeImage reads any registered image format into a Grid.
func DecodeImage(r io.Reader, opts ImageOptions) (*Grid, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, &FormatError{Format: imageFormat, Err: err}
	}
	return GridFromImage(img, opts)
}

// GridFromImage converts img to elevations.
func GridFromImage(img image.Image, opts ImageOptions) (*Grid, error) {
	if img == nil {
		return nil, &FormatError{Format: imageFormat, Err: errors.New("input image is nil")}
	}
	if opts.Scale == 0 {
		opts.Scale = 1
	}

	wide := is16Bit(img)
	gray := toGray16(img)

	var mask *image.Gray
	if opts.NoDataEnabled {
		mask = noDataMask(gray, wide, opts.NoData)
	}

	if opts.Resample > 0 && opts.Resample != 1 {
		b := gray.Bounds()
		w := max(1, int(math.Round(float64(b.Dx())*opts.Resample)))
		h := max(1, int(math.Round(float64(b.Dy())*opts.Resample)))

		scaled := image.NewGray16(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(scaled, scaled.Bounds(), gray, b, draw.Src, nil)
		gray = scaled

		if mask != nil {
			m := image.NewGray(image.Rect(0, 0, w, h))
			draw.NearestNeighbor.Scale(m, m.Bounds(), mask, mask.Bounds(), draw.Src, nil)
			mask = m
		}
	}

	b := gray.Bounds()
	g := NewGrid(b.Dx(), b.Dy())
	if opts.NoDataEnabled {
		g.NoData, g.HasNoData = math.NaN(), true
	}
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			if mask != nil && mask.GrayAt(x, y).Y != 0 {
				g.Set(x, y, math.NaN())
				continue
			}
			g.Set(x, y, rawValue(gray.Gray16At(b.Min.X+x, b.Min.Y+y).Y, wide)*opts.Scale+opts.Offset)
		}
	}
	return g, nil
}

func is16Bit(img image.Image) bool {
	switch img.(type) {
	case *image.Gray16, *image.RGBA64, *image.NRGBA64:
		return true
	}
	return false
}

func toGray16(img image.Image) *image.Gray16 {
	if g, ok := img.(*image.Gray16); ok {
		return g
	}
	b := img.Bounds()
	out := image.NewGray16(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c, _ := color.Gray16Model.Convert(img.At(x, y)).(color.Gray16)
			out.SetGray16(x-b.Min.X, y-b.Min.Y, c)
		}
	}
	return out
}

func rawValue(v uint16, wide bool) float64 {
	if wide {
		return float64(v)
	}
	return float64(v >> 8)
}

func noDataMask(gray *image.Gray16, wide bool, noData float64) *image.Gray {
	b := gray.Bounds()
	mask := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			if rawValue(gray.Gray16At(b.Min.X+x, b.Min.Y+y).Y, wide) == noData {
				mask.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return mask
}

// EncodePNG16 writes g as a 16-bit grayscale PNG using
// raw = (elevation-offset)/scale. Nodata and out-of-range samples are
// clamped to 0 and 65535.
func EncodePNG16(w io.Writer, g *Grid, scale, offset float64) error {
	if scale == 0 {
		scale = 1
	}
	img := image.NewGray16(image.Rect(0, 0, g.Width, g.Height))
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			v := g.At(x, y)
			raw := 0.0
			if !g.IsNoData(v) && !math.IsNaN(v) {
				raw = math.Round((v - offset) / scale)
			}
			raw = math.Max(0, math.Min(math.MaxUint16, raw))
			img.SetGray16(x, y, color.Gray16{Y: uint16(raw)})
		}
	}
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}
