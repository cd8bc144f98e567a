package testutil

import (
	"fmt"
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MeKo-Tech/isoline/internal/contour"
)

// PolylineSummary is an order independent fingerprint of one polyline.
type PolylineSummary struct {
	Level  float64
	Points int
	Closed bool
	MinX   float64
	MinY   float64
	MaxX   float64
	MaxY   float64
}

// Summarize fingerprints lines and sorts the result so two runs emitting
// the same polylines in different orders compare equal.
func Summarize(lines []contour.Polyline) []PolylineSummary {
	out := make([]PolylineSummary, 0, len(lines))
	for _, l := range lines {
		s := PolylineSummary{
			Level:  l.Level,
			Points: len(l.Points),
			Closed: l.Closed(),
			MinX:   math.Inf(1),
			MinY:   math.Inf(1),
			MaxX:   math.Inf(-1),
			MaxY:   math.Inf(-1),
		}
		for _, p := range l.Points {
			s.MinX = math.Min(s.MinX, p.X)
			s.MinY = math.Min(s.MinY, p.Y)
			s.MaxX = math.Max(s.MaxX, p.X)
			s.MaxY = math.Max(s.MaxY, p.Y)
		}
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b PolylineSummary) int {
		return compareKeys(a.key(), b.key())
	})
	return out
}

func (s PolylineSummary) key() []float64 {
	return []float64{s.Level, s.MinX, s.MinY, s.MaxX, s.MaxY, float64(s.Points)}
}

func compareKeys(a, b []float64) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// AssertSamePolylines checks that want and got contain the same polylines up
// to ordering, comparing bounding boxes within tol.
func AssertSamePolylines(t *testing.T, want, got []contour.Polyline, tol float64) bool {
	t.Helper()

	ws, gs := Summarize(want), Summarize(got)
	if !assert.Len(t, gs, len(ws), "polyline count") {
		return false
	}
	ok := true
	for i := range ws {
		w, g := ws[i], gs[i]
		msg := fmt.Sprintf("polyline %d at level %g", i, w.Level)
		ok = assert.InDelta(t, w.Level, g.Level, tol, msg) && ok
		ok = assert.Equal(t, w.Points, g.Points, msg) && ok
		ok = assert.Equal(t, w.Closed, g.Closed, msg) && ok
		ok = assert.InDelta(t, w.MinX, g.MinX, tol, msg) && ok
		ok = assert.InDelta(t, w.MinY, g.MinY, tol, msg) && ok
		ok = assert.InDelta(t, w.MaxX, g.MaxX, tol, msg) && ok
		ok = assert.InDelta(t, w.MaxY, g.MaxY, tol, msg) && ok
	}
	return ok
}

// AssertWithinFrame checks every vertex lies inside [0,width]x[0,height].
func AssertWithinFrame(t *testing.T, lines []contour.Polyline, width, height int) bool {
	t.Helper()

	ok := true
	for _, l := range lines {
		for _, p := range l.Points {
			if p.X < 0 || p.X > float64(width) || p.Y < 0 || p.Y > float64(height) {
				ok = assert.Fail(t, "vertex outside raster frame",
					"level %g point (%g, %g) frame %dx%d", l.Level, p.X, p.Y, width, height) && ok
			}
		}
	}
	return ok
}
