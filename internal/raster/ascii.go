package raster

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

const asciiFormat = "esri-ascii"

type asciiHeader struct {
	ncols, nrows int
	xll, yll     float64
	centered     bool
	dx, dy       float64
	noData       float64
	hasNoData    bool
}

// asciiReader streams an ESRI ASCII grid. Only the current text line is held
// in memory.
type asciiReader struct {
	closer  io.Closer
	sc      *bufio.Scanner
	line    int
	pending []string

	width, height int
	noData        float64
	hasNoData     bool
	transform     GeoTransform
	row           int
}

// OpenASCII opens an ESRI ASCII grid file.
func OpenASCII(path string) (Source, error) {
	f, err := os.Open(path) //nolint:gosec // G304: reading a user-provided raster path is expected
	if err != nil {
		return nil, fmt.Errorf("open ascii grid: %w", err)
	}
	src, err := newASCIIReader(f, f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return src, nil
}

// NewASCIIReader parses the grid header from r and returns a Source that
// reads the rows lazily.
func NewASCIIReader(r io.Reader) (Source, error) {
	return newASCIIReader(r, nil)
}

func newASCIIReader(r io.Reader, closer io.Closer) (*asciiReader, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 64*1024*1024)

	ar := &asciiReader{closer: closer, sc: sc}
	if err := ar.readHeader(); err != nil {
		return nil, err
	}
	return ar, nil
}

func (r *asciiReader) fail(err error) error {
	return &FormatError{Format: asciiFormat, Line: r.line, Err: err}
}

func (r *asciiReader) nextLine() ([]string, error) {
	for r.sc.Scan() {
		r.line++
		if fields := strings.Fields(r.sc.Text()); len(fields) > 0 {
			return fields, nil
		}
	}
	if err := r.sc.Err(); err != nil {
		return nil, r.fail(err)
	}
	return nil, io.EOF
}

func (r *asciiReader) readHeader() error {
	h := asciiHeader{dx: math.NaN(), dy: math.NaN()}
	seen := map[string]bool{}

	for {
		fields, err := r.nextLine()
		if errors.Is(err, io.EOF) {
			return r.fail(errors.New("unexpected end of file in header"))
		}
		if err != nil {
			return err
		}

		key := strings.ToLower(fields[0])
		if _, numErr := strconv.ParseFloat(key, 64); numErr == nil {
			r.pending = fields
			break
		}
		if len(fields) != 2 {
			return r.fail(fmt.Errorf("header %q: expected one value", fields[0]))
		}
		if seen[key] {
			return r.fail(fmt.Errorf("duplicate header %q", fields[0]))
		}
		seen[key] = true

		val, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return r.fail(fmt.Errorf("header %q: %w", fields[0], err))
		}

		switch key {
		case "ncols":
			h.ncols = int(val)
		case "nrows":
			h.nrows = int(val)
		case "xllcorner":
			h.xll = val
		case "yllcorner":
			h.yll = val
		case "xllcenter":
			h.xll = val
			h.centered = true
		case "yllcenter":
			h.yll = val
			h.centered = true
		case "cellsize":
			h.dx, h.dy = val, val
		case "dx":
			h.dx = val
		case "dy":
			h.dy = val
		case "nodata_value":
			h.noData, h.hasNoData = val, true
		default:
			return r.fail(fmt.Errorf("unknown header %q", fields[0]))
		}
	}

	if h.ncols <= 0 || h.nrows <= 0 {
		return r.fail(fmt.Errorf("invalid dimensions %dx%d", h.ncols, h.nrows))
	}
	if !(h.dx > 0) || !(h.dy > 0) {
		return r.fail(errors.New("missing or invalid cell size"))
	}
	if h.centered {
		h.xll -= h.dx / 2
		h.yll -= h.dy / 2
	}

	r.width, r.height = h.ncols, h.nrows
	r.noData, r.hasNoData = h.noData, h.hasNoData
	top := h.yll + float64(h.nrows)*h.dy
	r.transform = GeoTransform{h.xll, h.dx, 0, top, 0, -h.dy}
	return nil
}

func (r *asciiReader) Width() int                 { return r.width }
func (r *asciiReader) Height() int                { return r.height }
func (r *asciiReader) NoData() (float64, bool)    { return r.noData, r.hasNoData }
func (r *asciiReader) GeoTransform() GeoTransform { return r.transform }

func (r *asciiReader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// ReadLine parses the next width values. Rows may span or share text lines.
func (r *asciiReader) ReadLine(dst []float64) error {
	if r.row >= r.height {
		return io.EOF
	}
	if len(dst) != r.width {
		return fmt.Errorf("%w: got %d, want %d", ErrShortBuffer, len(dst), r.width)
	}

	for i := range dst {
		if len(r.pending) == 0 {
			fields, err := r.nextLine()
			if errors.Is(err, io.EOF) {
				return r.fail(fmt.Errorf("row %d: expected %d values, got %d", r.row, r.width, i))
			}
			if err != nil {
				return err
			}
			r.pending = fields
		}
		v, err := strconv.ParseFloat(r.pending[0], 64)
		if err != nil {
			return r.fail(fmt.Errorf("row %d col %d: %w", r.row, i, err))
		}
		dst[i] = v
		r.pending = r.pending[1:]
	}
	r.row++
	return nil
}

// WriteASCIIGrid writes g as an ESRI ASCII grid. Values are written with the
// shortest representation that round-trips.
func WriteASCIIGrid(w io.Writer, g *Grid) error {
	t := g.Transform
	if t[2] != 0 || t[4] != 0 {
		return errors.New("rotated grids cannot be written as ascii grids")
	}
	// Grids in pixel space (y pointing down) are written with their origin
	// as the lower-left corner.
	dx, dy := t[1], -t[5]
	yll := t[3] - float64(g.Height)*dy
	if dy < 0 {
		dy, yll = -dy, t[3]
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "ncols %d\nnrows %d\n", g.Width, g.Height)
	fmt.Fprintf(bw, "xllcorner %s\nyllcorner %s\n", formatFloat(t[0]), formatFloat(yll))
	if dx == dy {
		fmt.Fprintf(bw, "cellsize %s\n", formatFloat(dx))
	} else {
		fmt.Fprintf(bw, "dx %s\ndy %s\n", formatFloat(dx), formatFloat(dy))
	}
	if g.HasNoData {
		fmt.Fprintf(bw, "NODATA_value %s\n", formatFloat(g.NoData))
	}

	for r := 0; r < g.Height; r++ {
		for c, v := range g.Row(r) {
			if c > 0 {
				bw.WriteByte(' ')
			}
			bw.WriteString(formatFloat(v))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
