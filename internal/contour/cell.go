package contour

import (
	"math"
	"sort"
)

// levelRange returns the contour levels spanning [lo, hi] as an inclusive
// index range. Indices refer to FixedLevels or to k in k*Interval+Offset.
func (g *Generator) levelRange(lo, hi float64) (float64, float64, bool) {
	if g.fixed != nil {
		i := sort.SearchFloat64s(g.fixed, lo)
		if i >= len(g.fixed) || g.fixed[i] > hi {
			return 0, 0, false
		}
		j := i
		for j < len(g.fixed)-1 && g.fixed[j+1] < hi {
			j++
		}
		return float64(i), float64(j), true
	}

	start := math.Ceil((lo - g.offset) / g.interval)
	end := math.Floor((hi - g.offset) / g.interval)
	return start, end, start <= end
}

func (g *Generator) levelValue(k float64) float64 {
	if g.fixed != nil {
		return g.fixed[int(k)]
	}
	return k*g.interval + g.offset
}

func addCrossing(pts *[4]Point, n int, p Point, ok bool) int {
	if !ok {
		return n
	}
	pts[n] = p
	return n + 1
}

// processRect emits the segments of every level crossing the cell spanned by
// the four corners, given in the order upper-left, lower-left, lower-right,
// upper-right.
func (g *Generator) processRect(ul, ll, lr, ur corner) error {
	lo := math.Min(math.Min(ul.v, ur.v), math.Min(ll.v, lr.v))
	hi := math.Max(math.Max(ul.v, ur.v), math.Max(ll.v, lr.v))
	if math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
		return nil
	}

	start, end, ok := g.levelRange(lo, hi)
	if !ok {
		return nil
	}

	for k := start; k <= end; k++ {
		lvl := g.levelValue(k)

		var pts [4]Point
		p, ok := intersect(ul, ll, lr.v, lvl)
		n := addCrossing(&pts, 0, p, ok)
		n1 := n
		p, ok = intersect(ll, lr, ur.v, lvl)
		n = addCrossing(&pts, n, p, ok)
		n2 := n
		p, ok = intersect(lr, ur, ul.v, lvl)
		n = addCrossing(&pts, n, p, ok)
		n3 := n
		p, ok = intersect(ur, ul, ll.v, lvl)
		n = addCrossing(&pts, n, p, ok)

		if n == 1 || n == 3 {
			g.anomaly(lvl, n, ul)
			continue
		}
		if n < 2 {
			continue
		}

		var err error
		switch {
		case n1 == 1 && n2 == 2: // left + bottom
			err = g.addSegment(lvl, pts[0], pts[1], ur.v > ll.v)
		case n1 == 1 && n3 == 2: // left + right
			err = g.addSegment(lvl, pts[0], pts[1], ul.v > lr.v)
		case n1 == 1 && n == 2: // left + top
			// A contour lying on the left edge belongs to the cell on the left.
			if ul.v != lvl || ll.v != lvl {
				err = g.addSegment(lvl, pts[0], pts[1], ul.v > lr.v)
			}
		case n2 == 1 && n3 == 2: // bottom + right
			err = g.addSegment(lvl, pts[0], pts[1], ul.v > lr.v)
		case n2 == 1 && n == 2: // bottom + top
			err = g.addSegment(lvl, pts[0], pts[1], ll.v > ur.v)
		case n3 == 1 && n == 2: // right + top
			// A contour lying on the top edge belongs to the cell above.
			if ur.v != lvl || ul.v != lvl {
				err = g.addSegment(lvl, pts[0], pts[1], ll.v > ur.v)
			}
		default:
			g.anomaly(lvl, n, ul)
		}
		if err != nil {
			return err
		}

		// Saddle: the first pair was left+bottom, the second is right+top.
		if n == 4 {
			if err := g.addSegment(lvl, pts[2], pts[3], lr.v > ur.v); err != nil {
				return err
			}
		}
	}
	return nil
}

func (g *Generator) anomaly(lvl float64, n int, at corner) {
	g.stats.Anomalies++
	g.logger.Debug("skipping cell",
		"error", ErrInconsistentTopology,
		"level", lvl,
		"points", n,
		"x", at.x,
		"y", at.y)
}

// processPixel handles the cell straddling column ix between the previous
// and current scanlines. Edge columns reuse the nearest sample.
func (g *Generator) processPixel(ix int) error {
	left := max(0, ix-1)
	right := min(g.width-1, ix)

	ul, ur := g.prev[left], g.prev[right]
	ll, lr := g.cur[left], g.cur[right]

	x, y := float64(ix), float64(g.row)

	if ix > 0 && ix < g.width && g.row > 0 && g.row < g.height &&
		!g.isNoData(ul) && !g.isNoData(ur) && !g.isNoData(ll) && !g.isNoData(lr) {
		return g.processRect(
			corner{ul, x - 0.5, y - 0.5},
			corner{ll, x - 0.5, y + 0.5},
			corner{lr, x + 0.5, y + 0.5},
			corner{ur, x + 0.5, y - 0.5},
		)
	}

	return g.subdivide(ix, ul, ll, lr, ur)
}

// subdivide splits a cell touching nodata or the raster edge into four
// quadrants around its centre and processes those anchored on valid data.
func (g *Generator) subdivide(ix int, ul, ll, lr, ur float64) error {
	okUL, okLL, okLR, okUR := !g.isNoData(ul), !g.isNoData(ll), !g.isNoData(lr), !g.isNoData(ur)

	var sum float64
	good := 0
	for _, c := range []struct {
		v  float64
		ok bool
	}{{ul, okUL}, {ll, okLL}, {lr, okLR}, {ur, okUR}} {
		if c.ok {
			sum += c.v
			good++
		}
	}
	if good == 0 {
		return nil
	}
	center := sum / float64(good)

	var top, left, right, bottom float64
	if okUL {
		top = ul
		if okUR {
			top = (ul + ur) / 2
		}
		left = ul
		if okLL {
			left = (ul + ll) / 2
		}
	} else {
		top = ur
		left = ll
	}
	if okLR {
		right = lr
		if okUR {
			right = (lr + ur) / 2
		}
		bottom = lr
		if okLL {
			bottom = (lr + ll) / 2
		}
	} else {
		bottom = ll
		right = ur
	}

	x, y := float64(ix), float64(g.row)
	inLeft, inRight := ix > 0, ix < g.width
	inTop, inBottom := g.row > 0, g.row < g.height

	if okUL && inLeft && inTop {
		if err := g.processRect(
			corner{ul, x - 0.5, y - 0.5},
			corner{left, x - 0.5, y},
			corner{center, x, y},
			corner{top, x, y - 0.5},
		); err != nil {
			return err
		}
	}
	if okLL && inLeft && inBottom {
		if err := g.processRect(
			corner{left, x - 0.5, y},
			corner{ll, x - 0.5, y + 0.5},
			corner{bottom, x, y + 0.5},
			corner{center, x, y},
		); err != nil {
			return err
		}
	}
	if okLR && inRight && inBottom {
		if err := g.processRect(
			corner{center, x, y},
			corner{bottom, x, y + 0.5},
			corner{lr, x + 0.5, y + 0.5},
			corner{right, x + 0.5, y},
		); err != nil {
			return err
		}
	}
	if okUR && inRight && inTop {
		if err := g.processRect(
			corner{top, x, y - 0.5},
			corner{center, x, y},
			corner{right, x + 0.5, y},
			corner{ur, x + 0.5, y - 0.5},
		); err != nil {
			return err
		}
	}
	return nil
}
