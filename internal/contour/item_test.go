package contour

import (
	"slices"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemAddSegment(t *testing.T) {
	it := newItem(1)
	require.True(t, it.addSegment(Point{0, 0}, Point{1, 1}, true))
	assert.True(t, it.leftIsHigh)
	assert.Equal(t, 1.0, it.tailX)

	t.Run("start meets tail", func(t *testing.T) {
		require.True(t, it.addSegment(Point{1, 1 + JoinDist/2}, Point{2, 1}, false))
		assert.Equal(t, Point{2, 1}, it.tail())
		assert.True(t, it.leftIsHigh, "flag is only set by the first segment")
	})

	t.Run("end meets tail", func(t *testing.T) {
		require.True(t, it.addSegment(Point{3, 3}, Point{2, 1}, false))
		assert.Equal(t, Point{3, 3}, it.tail())
		assert.Equal(t, 3.0, it.tailX)
	})

	t.Run("no match", func(t *testing.T) {
		assert.False(t, it.addSegment(Point{9, 9}, Point{8, 8}, false))
		assert.Len(t, it.points, 4)
	})
}

func TestItemReserveGrowth(t *testing.T) {
	it := newItem(0)
	it.reserve(1)
	assert.Equal(t, 20, cap(it.points))

	it.points = it.points[:20]
	it.reserve(1)
	assert.Equal(t, 60, cap(it.points))
	assert.Len(t, it.points, 20)
}

func TestItemMergeCases(t *testing.T) {
	a, b, c, d := Point{0, 0}, Point{1, 0}, Point{2, 0}, Point{3, 0}

	tests := []struct {
		name  string
		this  []Point
		other []Point
		want  []Point
	}{
		{"tail meets head", []Point{a, b}, []Point{b, c, d}, []Point{a, b, c, d}},
		{"head meets tail", []Point{c, d}, []Point{a, b, c}, []Point{a, b, c, d}},
		{"tail meets tail", []Point{a, b}, []Point{d, c, b}, []Point{a, b, c, d}},
		{"head meets head", []Point{c, d}, []Point{c, b, a}, []Point{a, b, c, d}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			this := &item{level: 5, points: slices.Clone(tt.this)}
			other := &item{level: 5, points: slices.Clone(tt.other)}

			require.True(t, this.merge(other))
			assert.Equal(t, tt.want, this.points)
			assert.Equal(t, this.tail().X, this.tailX)
			assert.True(t, this.touched)
		})
	}

	t.Run("different level", func(t *testing.T) {
		this := &item{level: 1, points: []Point{a, b}}
		other := &item{level: 2, points: []Point{b, c}}
		assert.False(t, this.merge(other))
	})

	t.Run("disjoint", func(t *testing.T) {
		this := &item{level: 1, points: []Point{a, b}}
		other := &item{level: 1, points: []Point{c, d}}
		assert.False(t, this.merge(other))
		assert.Equal(t, []Point{a, b}, this.points)
	})
}

func TestItemPrepareForOutput(t *testing.T) {
	it := &item{points: []Point{{0, 0}, {1, 0}, {2, 0}}, leftIsHigh: true}
	it.prepareForOutput()
	assert.Equal(t, []Point{{2, 0}, {1, 0}, {0, 0}}, it.points)

	it = &item{points: []Point{{0, 0}, {1, 0}}}
	it.prepareForOutput()
	assert.Equal(t, []Point{{0, 0}, {1, 0}}, it.points)
}

func samplePath(n int) []Point {
	pts := make([]Point, n)
	for i := range pts {
		pts[i] = Point{X: float64(i), Y: 0.1 * float64(i*i)}
	}
	return pts
}

func reversed(pts []Point) []Point {
	out := slices.Clone(pts)
	slices.Reverse(out)
	return out
}

// A polyline cut in two and merged back, in any orientation, reproduces the
// original vertices up to direction.
func TestItemMerge_SplitRoundTrip(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("split halves merge back into the original polyline", prop.ForAll(
		func(n, cut int, flipA, flipB bool) bool {
			if cut < 1 || cut >= n-1 {
				return true
			}
			pts := samplePath(n)
			a := slices.Clone(pts[:cut+1])
			b := slices.Clone(pts[cut:])
			if flipA {
				a = reversed(a)
			}
			if flipB {
				b = reversed(b)
			}

			this := &item{level: 1, points: a}
			if !this.merge(&item{level: 1, points: b}) {
				return false
			}
			return slices.Equal(this.points, pts) || slices.Equal(this.points, reversed(pts))
		},
		gen.IntRange(3, 60),
		gen.IntRange(1, 58),
		gen.Bool(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
