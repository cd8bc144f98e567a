// Package raster provides scanline sources for the contour generator: an
// in-memory grid, a streaming ESRI ASCII grid reader, image based elevation
// models and synthetic surfaces.
package raster

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// Source delivers a raster one row at a time, top to bottom.
type Source interface {
	Width() int
	Height() int
	// NoData reports the missing-data marker. A NaN marker matches every NaN
	// sample.
	NoData() (float64, bool)
	GeoTransform() GeoTransform
	// ReadLine fills dst with the next row. It returns io.EOF after the last
	// row.
	ReadLine(dst []float64) error
	Close() error
}

var (
	// ErrUnsupportedFormat is returned by Open for unknown file extensions.
	ErrUnsupportedFormat = errors.New("unsupported raster format")

	// ErrShortBuffer is returned when ReadLine gets a buffer that does not
	// match the raster width.
	ErrShortBuffer = errors.New("row buffer does not match raster width")
)

// FormatError reports malformed raster input.
type FormatError struct {
	Format string
	Line   int
	Err    error
}

func (e *FormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s raster error at line %d: %v", e.Format, e.Line, e.Err)
	}
	return fmt.Sprintf("%s raster error: %v", e.Format, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// GeoTransform maps pixel/line coordinates to world coordinates:
//
//	X = T[0] + px*T[1] + ln*T[2]
//	Y = T[3] + px*T[4] + ln*T[5]
type GeoTransform [6]float64

// IdentityTransform keeps pixel/line coordinates unchanged.
func IdentityTransform() GeoTransform {
	return GeoTransform{0, 1, 0, 0, 0, 1}
}

// IsIdentity reports whether t leaves coordinates unchanged.
func (t GeoTransform) IsIdentity() bool {
	return t == IdentityTransform()
}

// Apply maps a pixel/line position to world coordinates.
func (t GeoTransform) Apply(px, ln float64) (float64, float64) {
	return t[0] + px*t[1] + ln*t[2], t[3] + px*t[4] + ln*t[5]
}

// NorthUp builds the transform of a north-up grid whose upper-left corner is
// at (originX, originY).
func NorthUp(originX, originY, cellSize float64) GeoTransform {
	return GeoTransform{originX, cellSize, 0, originY, 0, -cellSize}
}

var (
	asciiExtensions = []string{".asc", ".grd"}
	imageExtensions = []string{".png", ".tif", ".tiff", ".bmp", ".jpg", ".jpeg"}
)

// SupportedExtensions lists the file extensions Open understands.
func SupportedExtensions() []string {
	return slices.Concat(asciiExtensions, imageExtensions)
}

// IsSupported reports whether path has a raster extension Open understands.
func IsSupported(path string) bool {
	return slices.Contains(SupportedExtensions(), strings.ToLower(filepath.Ext(path)))
}

// Open picks a reader by file extension.
func Open(path string, opts ImageOptions) (Source, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case slices.Contains(asciiExtensions, ext):
		return OpenASCII(path)
	case slices.Contains(imageExtensions, ext):
		return OpenImage(path, opts)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
}
