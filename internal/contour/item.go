package contour

import (
	"math"
	"slices"
)

const (
	// JoinDist is the distance in pixels below which two endpoints are
	// treated as the same vertex.
	JoinDist = 1e-4

	// Fudge is the fraction of the contour interval added to samples that
	// fall exactly on a level.
	Fudge = 1e-3
)

// Point is a vertex in pixel/line space.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

func near(a, b Point) bool {
	return math.Abs(a.X-b.X) < JoinDist && math.Abs(a.Y-b.Y) < JoinDist
}

// item is an open polyline at a single level. New vertices are appended at
// the tail; tailX is the sort key used by the owning level.
type item struct {
	level      float64
	points     []Point
	tailX      float64
	leftIsHigh bool
	touched    bool
}

func newItem(level float64) *item {
	return &item{level: level}
}

func (it *item) head() Point { return it.points[0] }
func (it *item) tail() Point { return it.points[len(it.points)-1] }

// reserve makes room for n more points, doubling capacity plus some slack.
func (it *item) reserve(n int) {
	need := len(it.points) + n
	if need <= cap(it.points) {
		return
	}
	c := cap(it.points)*2 + 20
	if c < need {
		c = need
	}
	pts := make([]Point, len(it.points), c)
	copy(pts, it.points)
	it.points = pts
}

func (it *item) prepend(pts []Point) {
	it.reserve(len(pts))
	n := len(it.points)
	it.points = it.points[:n+len(pts)]
	copy(it.points[len(pts):], it.points[:n])
	copy(it.points, pts)
}

// addSegment extends the polyline by the segment p0-p1. An empty item takes
// both points; otherwise one endpoint must meet the current tail and the
// other one becomes the new tail.
func (it *item) addSegment(p0, p1 Point, leftIsHigh bool) bool {
	if len(it.points) == 0 {
		it.reserve(2)
		it.points = append(it.points, p0, p1)
		it.leftIsHigh = leftIsHigh
		it.tailX = p1.X
		it.touched = true
		return true
	}

	var next Point
	switch t := it.tail(); {
	case near(t, p0):
		next = p1
	case near(t, p1):
		next = p0
	default:
		return false
	}

	it.reserve(1)
	it.points = append(it.points, next)
	it.tailX = next.X
	it.touched = true
	return true
}

// merge absorbs other if one of its ends meets one of ours. The shared
// vertex is kept once.
func (it *item) merge(other *item) bool {
	if other.level != it.level || len(other.points) == 0 || len(it.points) == 0 {
		return false
	}
	n := len(other.points)

	switch {
	case near(it.tail(), other.head()):
		it.reserve(n - 1)
		it.points = append(it.points, other.points[1:]...)
	case near(it.head(), other.tail()):
		it.prepend(other.points[:n-1])
	case near(it.tail(), other.tail()):
		it.reserve(n - 1)
		for i := n - 2; i >= 0; i-- {
			it.points = append(it.points, other.points[i])
		}
	case near(it.head(), other.head()):
		rev := make([]Point, 0, n-1)
		for i := n - 1; i >= 1; i-- {
			rev = append(rev, other.points[i])
		}
		it.prepend(rev)
	default:
		return false
	}

	it.tailX = it.tail().X
	it.touched = true
	return true
}

// prepareForOutput orients the polyline so the high side is on the right.
func (it *item) prepareForOutput() {
	if it.leftIsHigh {
		slices.Reverse(it.points)
	}
}
