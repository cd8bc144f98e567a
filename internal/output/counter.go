package output

import (
	"errors"
	"slices"

	"github.com/MeKo-Tech/isoline/internal/contour"
)

// LevelCount summarizes the polylines of one level.
type LevelCount struct {
	Level    float64 `json:"level" yaml:"level"`
	Lines    int     `json:"lines" yaml:"lines"`
	Vertices int     `json:"vertices" yaml:"vertices"`
	Closed   int     `json:"closed" yaml:"closed"`
}

// Counter tallies polylines per level and forwards them to Next when set.
type Counter struct {
	Next contour.Sink

	Polylines int
	Vertices  int
	levels    map[float64]*LevelCount
}

// Accept records the polyline and passes it on.
func (c *Counter) Accept(level float64, pts []contour.Point) error {
	if c.levels == nil {
		c.levels = map[float64]*LevelCount{}
	}
	lc := c.levels[level]
	if lc == nil {
		lc = &LevelCount{Level: level}
		c.levels[level] = lc
	}
	lc.Lines++
	lc.Vertices += len(pts)
	if (contour.Polyline{Level: level, Points: pts}).Closed() {
		lc.Closed++
	}
	c.Polylines++
	c.Vertices += len(pts)

	if c.Next != nil {
		return c.Next.Accept(level, pts)
	}
	return nil
}

// Levels returns the per-level counts in ascending level order.
func (c *Counter) Levels() []LevelCount {
	out := make([]LevelCount, 0, len(c.levels))
	for _, lc := range c.levels {
		out = append(out, *lc)
	}
	slices.SortFunc(out, func(a, b LevelCount) int {
		switch {
		case a.Level < b.Level:
			return -1
		case a.Level > b.Level:
			return 1
		}
		return 0
	})
	return out
}

type tee []contour.Sink

func (t tee) Accept(level float64, pts []contour.Point) error {
	var errs []error
	for _, s := range t {
		if err := s.Accept(level, pts); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Tee hands every polyline to each sink in turn. Nil sinks are skipped.
func Tee(sinks ...contour.Sink) contour.Sink {
	out := make(tee, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}
