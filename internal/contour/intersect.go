package contour

// corner is one vertex of a cell: its sample value and position.
type corner struct {
	v, x, y float64
}

// intersect returns where level crosses the edge a->b. The crossing includes
// b but not a, so a level through a shared corner is reported by exactly one
// of the two edges meeting there. When both ends lie on the level the edge
// yields b, unless next (the corner following b) is on the level as well.
func intersect(a, b corner, next, level float64) (Point, bool) {
	switch {
	case a.v < level && b.v >= level, a.v > level && b.v <= level:
		r := (level - a.v) / (b.v - a.v)
		return Point{
			X: a.x*(1-r) + b.x*r,
			Y: a.y*(1-r) + b.y*r,
		}, true
	case a.v == level && b.v == level && next != level:
		return Point{X: b.x, Y: b.y}, true
	}
	return Point{}, false
}
