package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/MeKo-Tech/isoline/internal/contour"
)

type geoJSONGeometry struct {
	Type        string       `json:"type"`
	Coordinates [][2]float64 `json:"coordinates"`
}

type geoJSONFeature struct {
	Type       string          `json:"type"`
	Properties map[string]any  `json:"properties"`
	Geometry   geoJSONGeometry `json:"geometry"`
}

// geoJSONWriter streams a FeatureCollection, one LineString per polyline.
type geoJSONWriter struct {
	featureBuilder
	w       *bufio.Writer
	started bool
	count   int
}

func newGeoJSONWriter(w io.Writer, opts Options) *geoJSONWriter {
	return &geoJSONWriter{featureBuilder: featureBuilder{opts: opts}, w: bufio.NewWriter(w)}
}

func (g *geoJSONWriter) start() error {
	if g.started {
		return nil
	}
	g.started = true
	_, err := g.w.WriteString(`{"type":"FeatureCollection","features":[`)
	return err
}

func (g *geoJSONWriter) Accept(level float64, pts []contour.Point) error {
	f, ok := g.build(level, pts)
	if !ok {
		return nil
	}
	if err := g.start(); err != nil {
		return err
	}

	data, err := json.Marshal(geoJSONFeature{
		Type: "Feature",
		Properties: map[string]any{
			g.opts.IDAttr:   f.ID,
			g.opts.ElevAttr: f.Level,
		},
		Geometry: geoJSONGeometry{Type: "LineString", Coordinates: f.Coords},
	})
	if err != nil {
		return fmt.Errorf("encode feature %d: %w", f.ID, err)
	}

	if g.count > 0 {
		if err := g.w.WriteByte(','); err != nil {
			return err
		}
	}
	g.count++
	if _, err := g.w.Write(data); err != nil {
		return err
	}
	return nil
}

func (g *geoJSONWriter) Close() error {
	if err := g.start(); err != nil {
		return err
	}
	if _, err := g.w.WriteString("]}\n"); err != nil {
		return err
	}
	return g.w.Flush()
}
