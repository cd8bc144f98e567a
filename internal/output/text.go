package output

import (
	"bufio"
	"io"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/MeKo-Tech/isoline/internal/contour"
)

// textWriter prints a per-level summary on Close.
type textWriter struct {
	featureBuilder
	w       io.Writer
	counter Counter
}

func newTextWriter(w io.Writer, opts Options) *textWriter {
	return &textWriter{featureBuilder: featureBuilder{opts: opts}, w: w}
}

func (t *textWriter) Accept(level float64, pts []contour.Point) error {
	if len(pts) < 2 || len(pts) < t.opts.MinPoints {
		return nil
	}
	return t.counter.Accept(level, pts)
}

func (t *textWriter) Close() error {
	bw := bufio.NewWriter(t.w)
	WriteSummary(bw, t.counter.Levels())
	return bw.Flush()
}

// WriteSummary prints a table of level counts with grouped thousands.
func WriteSummary(w io.Writer, levels []LevelCount) {
	p := message.NewPrinter(language.English)

	p.Fprintf(w, "%12s %10s %12s %8s\n", "level", "lines", "vertices", "closed")
	var lines, vertices, closed int
	for _, lc := range levels {
		p.Fprintf(w, "%12.3f %10d %12d %8d\n", lc.Level, lc.Lines, lc.Vertices, lc.Closed)
		lines += lc.Lines
		vertices += lc.Vertices
		closed += lc.Closed
	}
	p.Fprintf(w, "total: %d levels, %d polylines (%d closed), %d vertices\n",
		len(levels), lines, closed, vertices)
}
