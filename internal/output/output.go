// Package output writes contour polylines as GeoJSON, CSV, YAML or a text
// summary.
package output

import (
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strings"

	"github.com/MeKo-Tech/isoline/internal/contour"
	"github.com/MeKo-Tech/isoline/internal/raster"
)

// Supported format names.
const (
	FormatGeoJSON = "geojson"
	FormatCSV     = "csv"
	FormatYAML    = "yaml"
	FormatText    = "text"
)

// ErrUnknownFormat is returned by New for an unsupported format name.
var ErrUnknownFormat = errors.New("unknown output format")

// Formats lists the names accepted by New.
func Formats() []string {
	return []string{FormatGeoJSON, FormatCSV, FormatYAML, FormatText}
}

// IsValidFormat reports whether New accepts format.
func IsValidFormat(format string) bool {
	return slices.Contains(Formats(), strings.ToLower(format))
}

// Writer is a contour sink that must be closed to complete the document.
type Writer interface {
	contour.Sink
	Close() error
}

// Options shape every writer's output.
type Options struct {
	// Transform maps pixel/line vertices to world coordinates.
	Transform raster.GeoTransform
	// ElevAttr and IDAttr name the level and sequence attributes.
	ElevAttr string
	IDAttr   string
	// Precision is the number of decimal places kept. Negative keeps full
	// precision.
	Precision int
	// MinPoints drops polylines with fewer vertices. Zero keeps everything.
	MinPoints int
}

// DefaultOptions returns pixel coordinates with six decimal places.
func DefaultOptions() Options {
	return Options{
		Transform: raster.IdentityTransform(),
		ElevAttr:  "elev",
		IDAttr:    "id",
		Precision: 6,
	}
}

// New creates a writer for format on w.
func New(format string, w io.Writer, opts Options) (Writer, error) {
	if opts.ElevAttr == "" {
		opts.ElevAttr = "elev"
	}
	if opts.IDAttr == "" {
		opts.IDAttr = "id"
	}
	if opts.Transform == (raster.GeoTransform{}) {
		opts.Transform = raster.IdentityTransform()
	}

	switch strings.ToLower(format) {
	case FormatGeoJSON, "json":
		return newGeoJSONWriter(w, opts), nil
	case FormatCSV:
		return newCSVWriter(w, opts), nil
	case FormatYAML, "yml":
		return newYAMLWriter(w, opts), nil
	case FormatText, "txt":
		return newTextWriter(w, opts), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// Feature is one polyline ready for encoding.
type Feature struct {
	ID     int          `json:"id" yaml:"id"`
	Level  float64      `json:"level" yaml:"level"`
	Coords [][2]float64 `json:"coordinates" yaml:"coordinates,flow"`
}

// featureBuilder applies the shared options and numbers the features.
type featureBuilder struct {
	opts   Options
	nextID int
}

func (b *featureBuilder) build(level float64, pts []contour.Point) (Feature, bool) {
	if len(pts) < 2 || len(pts) < b.opts.MinPoints {
		return Feature{}, false
	}

	coords := make([][2]float64, len(pts))
	for i, p := range pts {
		x, y := b.opts.Transform.Apply(p.X, p.Y)
		coords[i] = [2]float64{b.round(x), b.round(y)}
	}
	f := Feature{ID: b.nextID, Level: level, Coords: coords}
	b.nextID++
	return f, true
}

func (b *featureBuilder) round(v float64) float64 {
	if b.opts.Precision < 0 {
		return v
	}
	p := math.Pow(10, float64(b.opts.Precision))
	return math.Round(v*p) / p
}
