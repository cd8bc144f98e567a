package contour

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntersect(t *testing.T) {
	a := corner{v: 0, x: 0, y: 0}
	b := corner{v: 4, x: 2, y: 0}

	tests := []struct {
		name   string
		a, b   corner
		next   float64
		level  float64
		want   Point
		wantOK bool
	}{
		{"rising", a, b, 0, 1, Point{0.5, 0}, true},
		{"falling", b, a, 0, 3, Point{1.5, 0}, true},
		{"below both", a, b, 0, -1, Point{}, false},
		{"above both", a, b, 0, 5, Point{}, false},
		{"level on far end", a, b, 0, 4, Point{2, 0}, true},
		{"level on near end", a, b, 0, 0, Point{}, false},
		{"edge on level", corner{1, 0, 0}, corner{1, 0, 1}, 2, 1, Point{0, 1}, true},
		{"edge on level continues", corner{1, 0, 0}, corner{1, 0, 1}, 1, 1, Point{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := intersect(tt.a, tt.b, tt.next, tt.level)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.InDelta(t, tt.want.X, p.X, 1e-12)
				assert.InDelta(t, tt.want.Y, p.Y, 1e-12)
			}
		})
	}
}

func newTestGenerator(t *testing.T, cfg Config) *Generator {
	t.Helper()
	g, err := NewGenerator(cfg, &Collector{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(g.Close)
	return g
}

func TestLevelRange(t *testing.T) {
	t.Run("interval", func(t *testing.T) {
		cfg := DefaultConfig(1, 1)
		cfg.Interval = 10
		cfg.Offset = 5
		g := newTestGenerator(t, cfg)

		start, end, ok := g.levelRange(12, 37)
		assert.True(t, ok)
		assert.Equal(t, []float64{15, 25, 35}, []float64{g.levelValue(start), g.levelValue(start + 1), g.levelValue(end)})

		_, _, ok = g.levelRange(16, 24)
		assert.False(t, ok)
	})

	t.Run("fixed", func(t *testing.T) {
		cfg := DefaultConfig(1, 1)
		cfg.FixedLevels = []float64{30, 10, 20}
		g := newTestGenerator(t, cfg)

		start, end, ok := g.levelRange(5, 25)
		assert.True(t, ok)
		assert.Equal(t, 10.0, g.levelValue(start))
		assert.Equal(t, 20.0, g.levelValue(end))

		_, _, ok = g.levelRange(11, 19)
		assert.False(t, ok)

		_, _, ok = g.levelRange(31, 40)
		assert.False(t, ok)
	})
}

func TestProcessRect_EdgeAlignedSuppression(t *testing.T) {
	cfg := DefaultConfig(2, 2)
	g := newTestGenerator(t, cfg)

	// Left edge on the level, rising to the right: the only crossings are
	// on the left and top edges, and the cell to the left owns the line.
	assert.NoError(t, g.processRect(
		corner{1, 0, 0},
		corner{1, 0, 1},
		corner{1.5, 1, 1},
		corner{1.5, 1, 0},
	))
	assert.Zero(t, g.levels.openItems())
	assert.Zero(t, g.Stats().Segments)
}

func TestProcessRect_SkipsNonFinite(t *testing.T) {
	g := newTestGenerator(t, DefaultConfig(2, 2))
	nan := corner{v: math.NaN()}

	assert.NoError(t, g.processRect(nan, corner{1, 0, 1}, corner{2, 1, 1}, corner{3, 1, 0}))
	assert.Zero(t, g.Stats().Segments)
}

func TestProcessRect_EdgePairs(t *testing.T) {
	tests := []struct {
		name           string
		ul, ll, lr, ur float64
		segments       int
	}{
		{"left bottom", 0.2, 1.8, 0.2, 0.2, 1},
		{"left right", 0.2, 1.8, 1.8, 0.2, 1},
		{"bottom top", 0.2, 0.2, 1.8, 1.8, 1},
		{"right top", 0.2, 0.2, 0.2, 1.8, 1},
		{"saddle", 0.2, 1.8, 0.2, 1.8, 2},
		{"below", 0.2, 0.3, 0.4, 0.5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGenerator(t, DefaultConfig(2, 2))
			require.NoError(t, g.processRect(
				corner{tt.ul, 0, 0},
				corner{tt.ll, 0, 1},
				corner{tt.lr, 1, 1},
				corner{tt.ur, 1, 0},
			))
			assert.Equal(t, tt.segments, g.Stats().Segments)
			assert.Zero(t, g.Stats().Anomalies)
		})
	}
}
