package output

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/isoline/internal/contour"
)

type yamlDocument struct {
	Count    int       `yaml:"count"`
	Features []Feature `yaml:"features"`
}

// yamlWriter buffers every feature and encodes the document on Close.
type yamlWriter struct {
	featureBuilder
	w   io.Writer
	doc yamlDocument
}

func newYAMLWriter(w io.Writer, opts Options) *yamlWriter {
	return &yamlWriter{featureBuilder: featureBuilder{opts: opts}, w: w}
}

func (y *yamlWriter) Accept(level float64, pts []contour.Point) error {
	if f, ok := y.build(level, pts); ok {
		y.doc.Features = append(y.doc.Features, f)
	}
	return nil
}

func (y *yamlWriter) Close() error {
	y.doc.Count = len(y.doc.Features)
	enc := yaml.NewEncoder(y.w)
	enc.SetIndent(2)
	if err := enc.Encode(y.doc); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}
