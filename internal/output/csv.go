package output

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/isoline/internal/contour"
)

// csvWriter emits one row per polyline with the geometry as WKT.
type csvWriter struct {
	featureBuilder
	w           *csv.Writer
	wroteHeader bool
}

func newCSVWriter(w io.Writer, opts Options) *csvWriter {
	return &csvWriter{featureBuilder: featureBuilder{opts: opts}, w: csv.NewWriter(w)}
}

func (c *csvWriter) header() error {
	if c.wroteHeader {
		return nil
	}
	c.wroteHeader = true
	return c.w.Write([]string{c.opts.IDAttr, c.opts.ElevAttr, "points", "wkt"})
}

func (c *csvWriter) Accept(level float64, pts []contour.Point) error {
	f, ok := c.build(level, pts)
	if !ok {
		return nil
	}
	if err := c.header(); err != nil {
		return err
	}
	return c.w.Write([]string{
		strconv.Itoa(f.ID),
		strconv.FormatFloat(f.Level, 'g', -1, 64),
		strconv.Itoa(len(f.Coords)),
		WKT(f.Coords),
	})
}

func (c *csvWriter) Close() error {
	if err := c.header(); err != nil {
		return err
	}
	c.w.Flush()
	return c.w.Error()
}

// WKT renders coordinates as a LINESTRING.
func WKT(coords [][2]float64) string {
	var sb strings.Builder
	sb.WriteString("LINESTRING (")
	for i, c := range coords {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.FormatFloat(c[0], 'f', -1, 64))
		sb.WriteByte(' ')
		sb.WriteString(strconv.FormatFloat(c[1], 'f', -1, 64))
	}
	sb.WriteByte(')')
	return sb.String()
}
